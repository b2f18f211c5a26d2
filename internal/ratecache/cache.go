// Package ratecache persists per-chain historical rates and known-missing
// dates as YAML files in the cache directory.
package ratecache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cryptofmv/internal/fsutil"
	"cryptofmv/logger"
	"cryptofmv/models"
)

// Mirror copies freshly written cache files elsewhere, e.g. to S3.
type Mirror interface {
	Mirror(ctx context.Context, paths ...string) error
}

// Cache reads and writes chain stores under one directory.
type Cache struct {
	dir    string
	mirror Mirror
	log    *logger.Log

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customises a Cache.
type Option func(*Cache)

// WithMirror uploads every persisted file through m.
func WithMirror(m Mirror) Option {
	return func(c *Cache) { c.mirror = m }
}

// New returns a cache rooted at dir.
func New(dir string, opts ...Option) *Cache {
	c := &Cache{
		dir:   dir,
		log:   logger.GetLogger(),
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir is the cache directory.
func (c *Cache) Dir() string { return c.dir }

// RatesPath is the file holding a chain's prices.
func (c *Cache) RatesPath(p models.ChainProfile) string {
	return filepath.Join(c.dir, p.FilePrefix+".yaml")
}

// MissingPath is the file holding a chain's known-missing dates.
func (c *Cache) MissingPath(p models.ChainProfile) string {
	return filepath.Join(c.dir, p.FilePrefix+"_missing.yaml")
}

// Load reads a chain's store. Absent files yield empty maps; a file that
// cannot be parsed is logged and treated as empty.
func (c *Cache) Load(p models.ChainProfile) *Store {
	log := c.log.WithComponent("rate_cache").WithFields(logger.Fields{"chain": p.Name})
	store := NewStore()

	if data, ok := c.read(c.RatesPath(p), log); ok {
		rates, err := decodeRates(data, log)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"file": c.RatesPath(p)}).Warn("corrupt rate file, starting empty")
		} else {
			store.Rates = rates
		}
	}
	if data, ok := c.read(c.MissingPath(p), log); ok {
		missing, err := decodeMissing(data, log)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"file": c.MissingPath(p)}).Warn("corrupt missing-date file, starting empty")
		} else {
			store.Missing = missing
		}
	}

	// A rate always wins over a stale missing mark.
	for d := range store.Missing {
		if _, ok := store.Rates[d]; ok {
			delete(store.Missing, d)
		}
	}
	return store
}

func (c *Cache) read(path string, log *logger.Entry) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).WithFields(logger.Fields{"file": path}).Warn("failed to read cache file")
		}
		return nil, false
	}
	return data, true
}

// Persist writes the store back. Each map is written only when non-empty;
// an emptied missing-date map removes its file.
func (c *Cache) Persist(ctx context.Context, p models.ChainProfile, s *Store) error {
	var written []string

	if len(s.Rates) > 0 {
		data, err := encodeRates(s.Rates)
		if err != nil {
			return err
		}
		if err := fsutil.WriteFileAtomic(c.RatesPath(p), data, 0o644); err != nil {
			return fmt.Errorf("write rates for %s: %w", p.Name, err)
		}
		written = append(written, c.RatesPath(p))
	}

	if len(s.Missing) > 0 {
		data, err := encodeMissing(s.Missing)
		if err != nil {
			return err
		}
		if err := fsutil.WriteFileAtomic(c.MissingPath(p), data, 0o644); err != nil {
			return fmt.Errorf("write missing dates for %s: %w", p.Name, err)
		}
		written = append(written, c.MissingPath(p))
	} else if err := fsutil.RemoveIfExists(c.MissingPath(p)); err != nil {
		return fmt.Errorf("remove missing dates for %s: %w", p.Name, err)
	}

	c.log.WithComponent("rate_cache").WithFields(logger.Fields{
		"chain":   p.Name,
		"rates":   len(s.Rates),
		"missing": len(s.Missing),
	}).Debug("store persisted")

	if c.mirror != nil && len(written) > 0 {
		if err := c.mirror.Mirror(ctx, written...); err != nil {
			c.log.WithComponent("rate_cache").WithError(err).WithFields(logger.Fields{
				"chain": p.Name,
			}).Warn("failed to mirror cache files")
		}
	}
	return nil
}

func (c *Cache) lockFor(chain string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[chain]
	if !ok {
		l = &sync.Mutex{}
		c.locks[chain] = l
	}
	return l
}

// Update reloads the chain's store from disk, applies fn and persists the
// result, all under the chain's lock. fn reports whether it changed the
// store; nothing is written otherwise.
func (c *Cache) Update(ctx context.Context, p models.ChainProfile, fn func(*Store) (bool, error)) (*Store, error) {
	l := c.lockFor(p.Name)
	l.Lock()
	defer l.Unlock()

	store := c.Load(p)
	changed, err := fn(store)
	if err != nil {
		return nil, err
	}
	if !changed {
		return store, nil
	}
	if err := c.Persist(ctx, p, store); err != nil {
		return nil, err
	}
	return store, nil
}
