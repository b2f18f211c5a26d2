// Package processor drives FMV acquisition: scanning transaction exports,
// fetching the missing rates and persisting them to the rate cache.
package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	appconfig "cryptofmv/config"
	"cryptofmv/internal/chains"
	"cryptofmv/internal/dates"
	"cryptofmv/internal/inflight"
	"cryptofmv/internal/pricing"
	"cryptofmv/internal/ratecache"
	"cryptofmv/logger"
	"cryptofmv/models"
)

// Fetcher looks up one historical price.
type Fetcher interface {
	History(ctx context.Context, coinID string, date models.Date, currency string) (pricing.Result, error)
}

// Coordinator processes every new transaction export in the CSV directory.
// Files run on a bounded pool; the dates of one file are fetched on a
// second pool of the same size. All fetches share one Fetcher (and so one
// rate gate) and one in-flight group.
type Coordinator struct {
	config     *appconfig.Config
	classifier *chains.Classifier
	extractor  *dates.Extractor
	cache      *ratecache.Cache
	fetcher    Fetcher
	inflight   *inflight.Group
	today      models.Date
	log        *logger.Log

	tally     *tally
	processed int64
	skipped   int64
	failed    int64
}

// NewCoordinator wires a coordinator for one run. today anchors the
// history horizon.
func NewCoordinator(cfg *appconfig.Config, classifier *chains.Classifier, cache *ratecache.Cache, fetcher Fetcher, group *inflight.Group, today models.Date) *Coordinator {
	if group == nil {
		group = inflight.NewGroup()
	}
	return &Coordinator{
		config:     cfg,
		classifier: classifier,
		extractor:  dates.NewExtractor(cfg.Input.DateColumns),
		cache:      cache,
		fetcher:    fetcher,
		inflight:   group,
		today:      today,
		log:        logger.GetLogger(),
		tally:      newTally(),
	}
}

// Horizon is the oldest date still fetched.
func (c *Coordinator) Horizon() models.Date {
	return c.today.AddDays(-c.config.Pipeline.HistoryDays)
}

type inputFile struct {
	path   string
	digest string
}

// Run processes all unprocessed files. Per-file failures are logged and
// leave the file unmarked; a fatal fetch error stops the run and is
// returned.
func (c *Coordinator) Run(ctx context.Context) (RunSummary, error) {
	runID := uuid.NewString()
	log := c.log.WithComponent("coordinator").WithFields(logger.Fields{"run_id": runID})
	start := time.Now()

	c.tally = newTally()
	atomic.StoreInt64(&c.processed, 0)
	atomic.StoreInt64(&c.skipped, 0)
	atomic.StoreInt64(&c.failed, 0)

	if _, err := os.Stat(c.config.Paths.CSVDir); err != nil {
		return RunSummary{RunID: runID}, fmt.Errorf("csv directory: %w", err)
	}
	paths, err := filepath.Glob(filepath.Join(c.config.Paths.CSVDir, "*.csv"))
	if err != nil {
		return RunSummary{RunID: runID}, fmt.Errorf("list csv files: %w", err)
	}
	sort.Strings(paths)

	var pending []inputFile
	for _, p := range paths {
		digest, err := fileDigest(p)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"file": filepath.Base(p)}).Error("failed to hash file")
			atomic.AddInt64(&c.failed, 1)
			continue
		}
		if _, err := os.Stat(markerPath(c.cache.Dir(), digest)); err == nil {
			log.WithFields(logger.Fields{"file": filepath.Base(p)}).Info("skipping already processed file")
			atomic.AddInt64(&c.skipped, 1)
			continue
		}
		pending = append(pending, inputFile{path: p, digest: digest})
	}

	log.WithFields(logger.Fields{
		"files":   len(paths),
		"pending": len(pending),
		"horizon": c.Horizon().String(),
	}).Info("processing new files")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Pipeline.Workers)
	for _, f := range pending {
		f := f
		g.Go(func() error {
			err := c.processFile(gctx, f, runID)
			if err == nil {
				return nil
			}
			if isFatal(err) {
				return err
			}
			atomic.AddInt64(&c.failed, 1)
			log.WithError(err).WithFields(logger.Fields{"file": filepath.Base(f.path)}).Error("error processing file")
			return nil
		})
	}
	runErr := g.Wait()

	summary := RunSummary{
		RunID:     runID,
		Files:     len(paths),
		Processed: int(atomic.LoadInt64(&c.processed)),
		Skipped:   int(atomic.LoadInt64(&c.skipped)),
		Failed:    int(atomic.LoadInt64(&c.failed)),
		Chains:    c.tally.results(),
	}

	logChainResults(log, "coordinator", summary.Chains)
	log.LogMetric("coordinator", "files_failed", summary.Failed, "counter", nil)
	logger.LogPerformanceEntry(log, "coordinator", "run", time.Since(start), logger.Fields{
		"processed": summary.Processed,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	})

	if runErr != nil {
		log.WithError(runErr).Error("run aborted")
		return summary, runErr
	}
	return summary, nil
}

func (c *Coordinator) processFile(ctx context.Context, f inputFile, runID string) error {
	name := filepath.Base(f.path)
	log := c.log.WithComponent("coordinator").WithFields(logger.Fields{"run_id": runID, "file": name})
	log.Info("processing file")

	profile, ok := c.classifier.Classify(name)
	if !ok {
		atomic.AddInt64(&c.skipped, 1)
		return nil
	}
	log = log.WithFields(logger.Fields{"chain": profile.Name})

	scan, err := c.extractor.Distinct(f.path)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"rows":    scan.Rows,
		"skipped": scan.Skipped,
		"dates":   len(scan.Dates),
	}).Info("found valid transactions")

	part := c.cache.Load(profile).Partition(scan.Dates, c.Horizon())
	c.tally.partition(profile.Name, len(part.Cached), len(part.KnownMissing))
	log.WithFields(logger.Fields{
		"cached":        len(part.Cached),
		"known_missing": len(part.KnownMissing),
		"to_fetch":      len(part.ToFetch),
		"expired":       part.Expired,
	}).Debug("gap computed")

	rates, missing, fetchErr := c.fetchAll(ctx, profile, part.ToFetch)

	if len(rates)+len(missing) > 0 {
		_, err := c.cache.Update(ctx, profile, func(s *ratecache.Store) (bool, error) {
			r, m := s.Merge(rates, missing)
			log.WithFields(logger.Fields{"rates_added": r, "missing_added": m}).Info("merged results")
			return r+m > 0, nil
		})
		if err != nil {
			return errors.Join(fetchErr, err)
		}
	}
	if fetchErr != nil {
		return fetchErr
	}

	if err := writeMarker(c.cache.Dir(), f.digest); err != nil {
		return fmt.Errorf("write processed marker: %w", err)
	}
	atomic.AddInt64(&c.processed, 1)
	log.Info("completed processing")
	return nil
}

// fetchAll looks up every date on a bounded pool. Whatever was obtained
// before a fatal error is still returned alongside it.
func (c *Coordinator) fetchAll(ctx context.Context, profile models.ChainProfile, ds []models.Date) (map[models.Date]decimal.Decimal, map[models.Date]string, error) {
	return fetchDates(ctx, c.config.Pipeline.Workers, c.fetcher, c.inflight, profile, ds, c.tally)
}

func fetchDates(ctx context.Context, workers int, fetcher Fetcher, group *inflight.Group, profile models.ChainProfile, ds []models.Date, t *tally) (map[models.Date]decimal.Decimal, map[models.Date]string, error) {
	var mu sync.Mutex
	rates := make(map[models.Date]decimal.Decimal)
	missing := make(map[models.Date]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, d := range ds {
		d := d
		g.Go(func() error {
			key := inflight.Key{FeedID: profile.FeedID, Currency: profile.Currency, Date: d}
			res, shared, err := group.Do(gctx, key, func(ctx context.Context) (pricing.Result, error) {
				return fetcher.History(ctx, profile.FeedID, d, profile.Currency)
			})
			if err != nil {
				return err
			}
			if !shared && t != nil {
				t.record(profile.Name, res)
			}

			mu.Lock()
			defer mu.Unlock()
			if res.Found {
				rates[d] = res.Price
			} else {
				missing[d] = ratecache.MissingMarker
			}
			return nil
		})
	}
	err := g.Wait()
	return rates, missing, err
}

func isFatal(err error) bool {
	return errors.Is(err, pricing.ErrUnauthorized) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
