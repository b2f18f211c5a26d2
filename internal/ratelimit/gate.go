// Package ratelimit provides the process-wide gate every outbound price
// request passes through.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"cryptofmv/logger"
)

// Gate enforces a minimum wall-clock interval between admitted calls across
// all goroutines sharing it. Admissions are serialised through a one-slot
// channel and the admission instant is recorded after any sleep, so two
// admissions are never closer than the interval regardless of arrival order.
// A caller queued behind a sleeping admission leaves as soon as its own
// context ends.
type Gate struct {
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	slot chan struct{}
	last time.Time

	waitLog rate.Sometimes
	log     *logger.Log
}

// Option customises a Gate.
type Option func(*Gate)

// WithClock replaces the time source and sleep function, for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gate) {
		g.now = now
		g.sleep = sleep
	}
}

// NewGate returns a gate admitting at most one call per interval.
func NewGate(interval time.Duration, opts ...Option) *Gate {
	g := &Gate{
		interval: interval,
		now:      time.Now,
		sleep:    Sleep,
		slot:     make(chan struct{}, 1),
		waitLog:  rate.Sometimes{Interval: time.Minute},
		log:      logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Interval returns the configured minimum spacing.
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Wait blocks until the caller may issue its request and returns the
// admission instant. It returns ctx.Err() if ctx ends while waiting; in that
// case no admission is recorded.
func (g *Gate) Wait(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
	defer func() { <-g.slot }()

	if !g.last.IsZero() {
		if remaining := g.interval - g.now().Sub(g.last); remaining > 0 {
			g.waitLog.Do(func() {
				g.log.WithComponent("rate_gate").WithFields(logger.Fields{
					"sleep_s": remaining.Round(10 * time.Millisecond).Seconds(),
				}).Info("rate limiting")
			})
			if err := g.sleep(ctx, remaining); err != nil {
				return time.Time{}, err
			}
		}
	}

	g.last = g.now()
	return g.last, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
