// Package inflight deduplicates concurrent price lookups for the same
// feed, currency and date within one run.
package inflight

import (
	"context"
	"sync"

	"cryptofmv/internal/pricing"
	"cryptofmv/models"
)

// Key identifies one lookup.
type Key struct {
	FeedID   string
	Currency string
	Date     models.Date
}

type call struct {
	done chan struct{}
	res  pricing.Result
	err  error
}

// Group hands every caller of the same key the result of a single fetch.
// Completed results stay in the group until it is discarded, so a key is
// fetched at most once per run. Fatal errors are shared too.
type Group struct {
	mu    sync.Mutex
	calls map[Key]*call
}

// NewGroup returns an empty group.
func NewGroup() *Group {
	return &Group{calls: make(map[Key]*call)}
}

// Do runs fn for key if no other caller has claimed it, otherwise waits for
// the claimant's result. shared reports whether the result came from
// another caller.
func (g *Group) Do(ctx context.Context, key Key, fn func(context.Context) (pricing.Result, error)) (res pricing.Result, shared bool, err error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.res, true, c.err
		case <-ctx.Done():
			return pricing.Result{}, true, ctx.Err()
		}
	}
	c := &call{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	defer close(c.done)
	c.res, c.err = fn(ctx)
	return c.res, false, c.err
}

// Len reports how many keys have been claimed.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
