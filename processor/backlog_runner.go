package processor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	appconfig "cryptofmv/config"
	"cryptofmv/internal/backlog"
	"cryptofmv/internal/inflight"
	"cryptofmv/internal/ratecache"
	"cryptofmv/logger"
	"cryptofmv/models"
)

// BacklogSummary describes a backlog run.
type BacklogSummary struct {
	RunID     string
	Pending   int
	Cached    int
	TooOld    int
	Fetched   int
	Resolved  int
	Remaining int
	Result    ChainResult
}

// BacklogRunner fetches the dates listed in the missing-FMV backlog for a
// single chain.
type BacklogRunner struct {
	config   *appconfig.Config
	cache    *ratecache.Cache
	fetcher  Fetcher
	inflight *inflight.Group
	file     *backlog.File
	profile  models.ChainProfile
	today    models.Date
	log      *logger.Log
}

// NewBacklogRunner wires a runner for one run.
func NewBacklogRunner(cfg *appconfig.Config, cache *ratecache.Cache, fetcher Fetcher, group *inflight.Group, file *backlog.File, profile models.ChainProfile, today models.Date) *BacklogRunner {
	if group == nil {
		group = inflight.NewGroup()
	}
	return &BacklogRunner{
		config:   cfg,
		cache:    cache,
		fetcher:  fetcher,
		inflight: group,
		file:     file,
		profile:  profile,
		today:    today,
		log:      logger.GetLogger(),
	}
}

// Run resolves what it can. Dates already cached leave the backlog without
// a request; dates past the history horizon are kept but not fetched.
// Prices found before a fatal error are still saved, and the backlog is
// rewritten on every path.
func (r *BacklogRunner) Run(ctx context.Context) (BacklogSummary, error) {
	sum := BacklogSummary{RunID: uuid.NewString()}
	log := r.log.WithComponent("backlog_runner").WithFields(logger.Fields{
		"run_id": sum.RunID,
		"chain":  r.profile.Name,
	})
	start := time.Now()

	pending, err := r.file.Load()
	if err != nil {
		return sum, err
	}
	sum.Pending = len(pending)
	if len(pending) == 0 {
		log.Info("backlog is empty")
		return sum, nil
	}

	horizon := r.today.AddDays(-r.config.Pipeline.HistoryDays)
	store := r.cache.Load(r.profile)

	var keep, toFetch []models.Date
	for _, d := range pending {
		switch {
		case hasRate(store, d):
			sum.Cached++
		case d.Before(horizon):
			sum.TooOld++
			keep = append(keep, d)
			log.WithFields(logger.Fields{"date": d.String()}).Info("skipping date older than history limit")
		default:
			toFetch = append(toFetch, d)
		}
	}
	sum.Fetched = len(toFetch)

	t := newTally()
	rates, _, fetchErr := fetchDates(ctx, r.config.Pipeline.Workers, r.fetcher, r.inflight, r.profile, toFetch, t)

	for _, d := range toFetch {
		if _, ok := rates[d]; !ok {
			keep = append(keep, d)
		}
	}

	if len(rates) > 0 {
		_, err := r.cache.Update(ctx, r.profile, func(s *ratecache.Store) (bool, error) {
			sum.Resolved = s.Resolve(rates)
			return true, nil
		})
		if err != nil {
			return sum, errors.Join(fetchErr, err)
		}
	}

	if err := r.file.Save(keep); err != nil {
		return sum, errors.Join(fetchErr, err)
	}
	sum.Remaining = len(backlog.Normalize(keep))

	if results := t.results(); len(results) > 0 {
		sum.Result = results[0]
	}
	logChainResults(log, "backlog_runner", t.results())
	logger.LogPerformanceEntry(log, "backlog_runner", "run", time.Since(start), logger.Fields{
		"pending":   sum.Pending,
		"cached":    sum.Cached,
		"too_old":   sum.TooOld,
		"resolved":  sum.Resolved,
		"remaining": sum.Remaining,
	})
	return sum, fetchErr
}

func hasRate(s *ratecache.Store, d models.Date) bool {
	_, ok := s.Rate(d)
	return ok
}
