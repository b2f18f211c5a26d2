package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFile(chain string) DataFile {
	return DataFile{
		Path:        filepath.Join("export", "historical_fmv_"+chain+"_cad.parquet"),
		FileSize:    512,
		RecordCount: 10,
		Partition:   map[string]string{"chain": chain, "currency": "cad"},
	}
}

func TestCommitWritesManifestAndMetadata(t *testing.T) {
	dir := t.TempDir()
	gen, err := Open(dir, "historical_fmv")
	require.NoError(t, err)

	written, err := gen.Commit("run-1", time.Unix(100, 0), []DataFile{sampleFile("eth"), sampleFile("ton")})
	require.NoError(t, err)
	require.Len(t, written, 2)

	var entries []ManifestEntry
	raw, err := os.ReadFile(written[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "eth", entries[0].DataFile.Partition["chain"])

	table := gen.Table()
	require.Len(t, table.Snapshots, 1)
	assert.Equal(t, table.Snapshots[0].SnapshotID, table.CurrentSnapshotID)
	assert.Equal(t, "run-1", table.Snapshots[0].RunID)
	assert.Equal(t, "historical_fmv", table.Name)
}

func TestOpenResumesExistingTable(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(dir, "historical_fmv")
	require.NoError(t, err)
	at := time.Unix(100, 0)
	_, err = first.Commit("run-1", at, []DataFile{sampleFile("eth")})
	require.NoError(t, err)

	second, err := Open(dir, "historical_fmv")
	require.NoError(t, err)
	assert.Equal(t, first.Table().TableUUID, second.Table().TableUUID)

	// same timestamp still yields a distinct, later snapshot
	_, err = second.Commit("run-2", at, []DataFile{sampleFile("ton")})
	require.NoError(t, err)

	table := second.Table()
	require.Len(t, table.Snapshots, 2)
	assert.Greater(t, table.Snapshots[1].SnapshotID, table.Snapshots[0].SnapshotID)
	assert.Equal(t, table.Snapshots[1].SnapshotID, table.CurrentSnapshotID)
}

func TestCommitWithoutFilesIsNoop(t *testing.T) {
	dir := t.TempDir()
	gen, err := Open(dir, "historical_fmv")
	require.NoError(t, err)

	written, err := gen.Commit("run-1", time.Now(), nil)
	require.NoError(t, err)
	assert.Empty(t, written)
	_, err = os.Stat(gen.MetadataPath())
	assert.True(t, os.IsNotExist(err))
}

func TestOpenRejectsCorruptMetadata(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "metadata"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata", metadataFile), []byte("{"), 0o644))

	_, err := Open(dir, "historical_fmv")
	assert.Error(t, err)
}
