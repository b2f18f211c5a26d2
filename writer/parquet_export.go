package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "cryptofmv/config"
	"cryptofmv/internal/fsutil"
	"cryptofmv/internal/metadata"
	"cryptofmv/internal/ratecache"
	"cryptofmv/logger"
	"cryptofmv/models"
)

// RateRecord is one row of a chain export.
type RateRecord struct {
	Chain     string  `parquet:"name=chain, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeedID    string  `parquet:"name=feed_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Currency  string  `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date      int32   `parquet:"name=date, type=INT32, convertedtype=DATE"`
	Price     float64 `parquet:"name=price, type=DOUBLE"`
	PriceText string  `parquet:"name=price_text, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status    string  `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
}

const (
	statusRate    = "rate"
	statusMissing = "missing"
)

// memoryFile collects parquet output in memory. The writer only appends,
// so Seek reports the current size.
type memoryFile struct {
	buf *bytes.Buffer
}

func newMemoryFile() *memoryFile { return &memoryFile{buf: &bytes.Buffer{}} }

func (m *memoryFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memoryFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memoryFile) Seek(int64, int) (int64, error)            { return int64(m.buf.Len()), nil }
func (m *memoryFile) Read(b []byte) (int, error)                { return m.buf.Read(b) }
func (m *memoryFile) Write(b []byte) (int, error)               { return m.buf.Write(b) }
func (m *memoryFile) Close() error                              { return nil }
func (m *memoryFile) Bytes() []byte                             { return m.buf.Bytes() }

// Exporter writes chain stores as parquet files.
type Exporter struct {
	dir         string
	compression string
	cache       *ratecache.Cache
	mirror      ratecache.Mirror
	log         *logger.Log
}

// NewExporter writes into <cache_dir>/<export.dir>. mirror may be nil.
func NewExporter(cfg *appconfig.Config, cache *ratecache.Cache, mirror ratecache.Mirror) *Exporter {
	dir := cfg.Export.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.Paths.CacheDir, dir)
	}
	return &Exporter{
		dir:         dir,
		compression: cfg.Export.Compression,
		cache:       cache,
		mirror:      mirror,
		log:         logger.GetLogger(),
	}
}

// Path is the export file for a chain.
func (e *Exporter) Path(p models.ChainProfile) string {
	return filepath.Join(e.dir, p.FilePrefix+".parquet")
}

// Export writes the chain's store and returns the file path and row count.
// Chains with an empty store are skipped.
func (e *Exporter) Export(ctx context.Context, p models.ChainProfile) (string, int, error) {
	log := e.log.WithComponent("parquet_export").WithFields(logger.Fields{"chain": p.Name})

	records := Records(p, e.cache.Load(p))
	if len(records) == 0 {
		log.Debug("nothing to export")
		return "", 0, nil
	}

	data, err := encodeParquet(records, e.compression)
	if err != nil {
		return "", 0, err
	}
	out := e.Path(p)
	if err := fsutil.WriteFileAtomic(out, data, 0o644); err != nil {
		return "", 0, fmt.Errorf("write export: %w", err)
	}

	log.WithFields(logger.Fields{
		"file":        out,
		"rows":        len(records),
		"file_size":   len(data),
		"compression": e.compression,
	}).Info("parquet export written")

	if e.mirror != nil {
		if err := e.mirror.Mirror(ctx, out); err != nil {
			return out, len(records), fmt.Errorf("mirror export: %w", err)
		}
	}
	return out, len(records), nil
}

// ExportSummary reports one ExportAll run.
type ExportSummary struct {
	RunID    string
	Files    []metadata.DataFile
	Failed   int
	Snapshot int64
}

// ExportAll exports every profile and commits the written files as one
// snapshot of the export table. A failing chain is logged and counted; the
// remaining chains still export.
func (e *Exporter) ExportAll(ctx context.Context, profiles []models.ChainProfile) (ExportSummary, error) {
	summary := ExportSummary{RunID: uuid.NewString()}
	log := e.log.WithComponent("parquet_export").WithFields(logger.Fields{"run_id": summary.RunID})
	start := time.Now()

	table, err := metadata.Open(e.dir, "historical_fmv")
	if err != nil {
		return summary, err
	}

	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		out, rows, err := e.Export(ctx, p)
		if err != nil {
			summary.Failed++
			log.WithError(err).WithFields(logger.Fields{"chain": p.Name}).Error("export failed")
			continue
		}
		if out == "" {
			continue
		}
		info, err := os.Stat(out)
		if err != nil {
			summary.Failed++
			log.WithError(err).WithFields(logger.Fields{"chain": p.Name}).Error("export vanished")
			continue
		}
		rel, err := filepath.Rel(e.dir, out)
		if err != nil {
			rel = out
		}
		summary.Files = append(summary.Files, metadata.DataFile{
			Path:        filepath.ToSlash(rel),
			FileSize:    info.Size(),
			RecordCount: int64(rows),
			Partition:   map[string]string{"chain": p.Name, "currency": p.Currency},
		})
	}

	written, err := table.Commit(summary.RunID, time.Now().UTC(), summary.Files)
	if err != nil {
		return summary, err
	}
	summary.Snapshot = table.Table().CurrentSnapshotID
	if e.mirror != nil && len(written) > 0 {
		if err := e.mirror.Mirror(ctx, written...); err != nil {
			log.WithError(err).Warn("failed to mirror export metadata")
		}
	}

	log.LogMetric("parquet_export", "files_exported", len(summary.Files), "counter", nil)
	logger.LogPerformanceEntry(log, "parquet_export", "export_all", time.Since(start), logger.Fields{
		"files":  len(summary.Files),
		"failed": summary.Failed,
	})
	return summary, nil
}

// Records flattens a store into rows ordered by date.
func Records(p models.ChainProfile, s *ratecache.Store) []RateRecord {
	out := make([]RateRecord, 0, len(s.Rates)+len(s.Missing))
	for d, price := range s.Rates {
		f, _ := price.Float64()
		out = append(out, RateRecord{
			Chain: p.Name, FeedID: p.FeedID, Currency: p.Currency,
			Date: epochDays(d), Price: f, PriceText: price.String(), Status: statusRate,
		})
	}
	for d := range s.Missing {
		out = append(out, RateRecord{
			Chain: p.Name, FeedID: p.FeedID, Currency: p.Currency,
			Date: epochDays(d), Status: statusMissing,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func epochDays(d models.Date) int32 {
	return int32(d.Time().Unix() / int64(24*time.Hour/time.Second))
}

func encodeParquet(records []RateRecord, compression string) ([]byte, error) {
	mf := newMemoryFile()
	pw, err := pqwriter.NewParquetWriter(mf, new(RateRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, r := range records {
		if err := pw.Write(r); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return mf.Bytes(), nil
}
