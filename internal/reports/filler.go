package reports

import (
	"context"
	"strings"

	"cryptofmv/config"
	"cryptofmv/internal/dates"
	"cryptofmv/internal/ratecache"
	"cryptofmv/logger"
	"cryptofmv/models"
)

// FillSummary totals one filler run.
type FillSummary struct {
	FilesChecked  int
	NAFound       int
	FilesUpdated  int
	ValuesUpdated int
}

// Filler replaces sentinel values in the latest report of each wallet with
// cached rates.
type Filler struct {
	dir     string
	cfg     config.BacklogConfig
	cache   *ratecache.Cache
	profile models.ChainProfile
	log     *logger.Log
}

// NewFiller returns a filler over the reports in dir, priced from the
// profile's rate store.
func NewFiller(dir string, cfg config.BacklogConfig, cache *ratecache.Cache, profile models.ChainProfile) *Filler {
	return &Filler{dir: dir, cfg: cfg, cache: cache, profile: profile, log: logger.GetLogger()}
}

// Run fills every latest report. A file that cannot be processed is logged
// and skipped.
func (f *Filler) Run(ctx context.Context) (FillSummary, error) {
	log := f.log.WithComponent("report_filler")
	var sum FillSummary

	files, err := LatestByWallet(f.dir, f.cfg.ReportPrefix)
	if err != nil {
		return sum, err
	}
	store := f.cache.Load(f.profile)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.FilesChecked++
		na, updated, err := f.fillFile(file.Path, store)
		sum.NAFound += na
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"file": file.Path}).Error("failed to fill report")
			continue
		}
		if updated > 0 {
			sum.FilesUpdated++
			sum.ValuesUpdated += updated
		}
	}

	log.WithFields(logger.Fields{
		"files_checked":  sum.FilesChecked,
		"na_found":       sum.NAFound,
		"files_updated":  sum.FilesUpdated,
		"values_updated": sum.ValuesUpdated,
	}).Info("report fill complete")
	if sum.NAFound > 0 && sum.ValuesUpdated == 0 {
		log.WithFields(logger.Fields{"na_found": sum.NAFound}).Warn("found N/A values but no cached rate matched")
	}
	return sum, nil
}

func (f *Filler) fillFile(path string, store *ratecache.Store) (na, updated int, err error) {
	log := f.log.WithComponent("report_filler").WithFields(logger.Fields{"file": path})

	t, err := readTable(path)
	if err != nil {
		return 0, 0, err
	}
	if !t.has(f.cfg.DateColumn) || !t.has(f.cfg.ValueColumn) {
		log.Warn("required columns not found")
		return 0, 0, nil
	}

	for i, row := range t.rows {
		if !IsSentinel(t.cell(row, f.cfg.ValueColumn), f.cfg.Sentinel) {
			continue
		}
		na++
		raw := t.cell(row, f.cfg.DateColumn)
		d, err := dates.Parse(raw)
		if err != nil {
			log.WithFields(logger.Fields{"value": raw}).Warn("invalid date for N/A value")
			continue
		}
		rate, ok := store.Rate(d)
		if !ok {
			log.WithFields(logger.Fields{"date": d.String()}).Debug("no cached rate")
			continue
		}
		t.rows[i] = t.set(row, f.cfg.ValueColumn, rate.Round(4).String())
		updated++
	}

	if updated == 0 {
		return na, 0, nil
	}
	if err := writeTable(path, t.header, t.rows); err != nil {
		return na, 0, err
	}
	log.WithFields(logger.Fields{"updated": updated, "na": na}).Info("report updated")
	return na, updated, nil
}

// IsSentinel reports whether a cell holds the not-available marker.
func IsSentinel(value, sentinel string) bool {
	return strings.EqualFold(strings.TrimSpace(value), sentinel)
}
