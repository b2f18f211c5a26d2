// Package metadata keeps an Iceberg-style snapshot log next to the parquet
// exports so consumers can tell which files belong to which export run.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"cryptofmv/internal/fsutil"
)

const metadataFile = "metadata.json"

// DataFile describes a single parquet file written by an export.
type DataFile struct {
	Path        string            `json:"path"`
	FileSize    int64             `json:"file_size_in_bytes"`
	RecordCount int64             `json:"record_count"`
	Partition   map[string]string `json:"partition"`
}

// ManifestEntry mirrors the information kept in an Iceberg manifest file.
type ManifestEntry struct {
	Status   int      `json:"status"`
	DataFile DataFile `json:"data_file"`
}

type Snapshot struct {
	SnapshotID  int64  `json:"snapshot-id"`
	TimestampMs int64  `json:"timestamp-ms"`
	Manifest    string `json:"manifest-list"`
	RunID       string `json:"run-id,omitempty"`
}

// TableMetadata is the table level metadata file.
type TableMetadata struct {
	FormatVersion     int        `json:"format-version"`
	TableUUID         string     `json:"table-uuid"`
	Name              string     `json:"name"`
	Location          string     `json:"location"`
	CurrentSnapshotID int64      `json:"current-snapshot-id"`
	Snapshots         []Snapshot `json:"snapshots"`
}

// Generator appends snapshots to the table rooted at basePath.
type Generator struct {
	basePath string

	mu   sync.Mutex
	meta TableMetadata
}

// Open loads the existing table metadata under basePath, or starts a new
// table when none exists yet.
func Open(basePath, tableName string) (*Generator, error) {
	g := &Generator{basePath: basePath}
	data, err := os.ReadFile(g.MetadataPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		g.meta = TableMetadata{
			FormatVersion: 2,
			TableUUID:     uuid.NewString(),
			Name:          tableName,
			Location:      basePath,
		}
		return g, nil
	case err != nil:
		return nil, fmt.Errorf("read table metadata: %w", err)
	}
	if err := json.Unmarshal(data, &g.meta); err != nil {
		return nil, fmt.Errorf("parse table metadata %s: %w", g.MetadataPath(), err)
	}
	return g, nil
}

func (g *Generator) MetadataPath() string {
	return filepath.Join(g.basePath, "metadata", metadataFile)
}

// Table returns a copy of the current table metadata.
func (g *Generator) Table() TableMetadata {
	g.mu.Lock()
	defer g.mu.Unlock()
	tm := g.meta
	tm.Snapshots = append([]Snapshot(nil), g.meta.Snapshots...)
	return tm
}

// Commit writes one manifest listing files and makes it the current
// snapshot. It returns the paths it wrote: the manifest and the table
// metadata file.
func (g *Generator) Commit(runID string, at time.Time, files []DataFile) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	snapID := at.UnixNano()
	if n := len(g.meta.Snapshots); n > 0 && g.meta.Snapshots[n-1].SnapshotID >= snapID {
		snapID = g.meta.Snapshots[n-1].SnapshotID + 1
	}

	entries := make([]ManifestEntry, 0, len(files))
	for _, df := range files {
		entries = append(entries, ManifestEntry{Status: 1, DataFile: df})
	}
	manifestFile := fmt.Sprintf("manifest-%d.json", snapID)
	manifestPath := filepath.Join(g.basePath, "metadata", manifestFile)
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteFileAtomic(manifestPath, b, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	next := g.meta
	next.Snapshots = append(append([]Snapshot(nil), g.meta.Snapshots...), Snapshot{
		SnapshotID:  snapID,
		TimestampMs: at.UnixMilli(),
		Manifest:    manifestFile,
		RunID:       runID,
	})
	next.CurrentSnapshotID = snapID

	b, err = json.MarshalIndent(next, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteFileAtomic(g.MetadataPath(), b, 0o644); err != nil {
		return nil, fmt.Errorf("write table metadata: %w", err)
	}
	g.meta = next
	return []string{manifestPath, g.MetadataPath()}, nil
}
