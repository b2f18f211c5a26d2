package backlog

import (
	"context"
	"path/filepath"

	"cryptofmv/config"
	"cryptofmv/internal/dates"
	"cryptofmv/internal/ratecache"
	"cryptofmv/internal/reports"
	"cryptofmv/logger"
	"cryptofmv/models"
)

// ReconcileSummary totals one reconciler run.
type ReconcileSummary struct {
	FilesScanned int
	NAFound      int
	Added        int
	Resolved     int
	Remaining    int
}

// Reconciler rebuilds the backlog from the N/A cells of the latest
// reports.
type Reconciler struct {
	reportsDir string
	cfg        config.BacklogConfig
	cache      *ratecache.Cache
	profile    models.ChainProfile
	file       *File
	log        *logger.Log
}

// NewReconciler returns a reconciler for the backlog chain.
func NewReconciler(reportsDir string, cfg config.BacklogConfig, cache *ratecache.Cache, profile models.ChainProfile, file *File) *Reconciler {
	return &Reconciler{
		reportsDir: reportsDir,
		cfg:        cfg,
		cache:      cache,
		profile:    profile,
		file:       file,
		log:        logger.GetLogger(),
	}
}

// Run adds every N/A date without a cached rate to the backlog and drops
// backlog entries that now have one. Dates are added regardless of age.
func (r *Reconciler) Run(ctx context.Context) (ReconcileSummary, error) {
	log := r.log.WithComponent("backlog_reconciler").WithFields(logger.Fields{"chain": r.profile.Name})
	var sum ReconcileSummary

	existing, err := r.file.Load()
	if err != nil {
		return sum, err
	}
	files, err := reports.LatestByWallet(r.reportsDir, r.cfg.ReportPrefix)
	if err != nil {
		return sum, err
	}
	store := r.cache.Load(r.profile)

	pending := make(map[models.Date]bool, len(existing))
	for _, d := range existing {
		if _, ok := store.Rate(d); ok {
			sum.Resolved++
			continue
		}
		pending[d] = true
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.FilesScanned++
		na, added, err := r.scan(f.Path, store, pending)
		sum.NAFound += na
		sum.Added += added
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"file": filepath.Base(f.Path)}).Error("failed to scan report")
		}
	}

	remaining := make([]models.Date, 0, len(pending))
	for d := range pending {
		remaining = append(remaining, d)
	}
	if err := r.file.Save(remaining); err != nil {
		return sum, err
	}
	sum.Remaining = len(remaining)

	log.WithFields(logger.Fields{
		"files":     sum.FilesScanned,
		"na_found":  sum.NAFound,
		"added":     sum.Added,
		"resolved":  sum.Resolved,
		"remaining": sum.Remaining,
	}).Info("backlog reconciled")
	return sum, nil
}

func (r *Reconciler) scan(path string, store *ratecache.Store, pending map[models.Date]bool) (na, added int, err error) {
	log := r.log.WithComponent("backlog_reconciler").WithFields(logger.Fields{"file": filepath.Base(path)})

	ex := dates.NewExtractor([]string{r.cfg.DateColumn})
	err = reports.EachRow(path, func(header map[string]int, row []string) {
		vi, ok := header[r.cfg.ValueColumn]
		if !ok || vi >= len(row) || !reports.IsSentinel(row[vi], r.cfg.Sentinel) {
			return
		}
		na++
		raw, ok := ex.Value(header, row)
		if !ok {
			return
		}
		d, perr := dates.Parse(raw)
		if perr != nil {
			log.WithFields(logger.Fields{"value": raw}).Warn("invalid date format")
			return
		}
		if _, ok := store.Rate(d); ok || pending[d] {
			return
		}
		pending[d] = true
		added++
		log.WithFields(logger.Fields{"date": d.String()}).Info("found missing FMV")
	})
	return na, added, err
}
