package pricing

import (
	"time"

	"cryptofmv/config"
)

// Policy holds every delay the client applies between attempts.
type Policy struct {
	MaxRetries       int
	Step             time.Duration
	MaxStep          time.Duration
	RateLimitBase    time.Duration
	RateLimitMax     time.Duration
	ServerErrorDelay time.Duration
	EdgeBlockDelay   time.Duration
	AuthUnit         time.Duration
	MaxAuthFailures  int
}

// PolicyFromConfig copies the retry section of the configuration.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxRetries:       cfg.MaxRetries,
		Step:             cfg.Step,
		MaxStep:          cfg.MaxStep,
		RateLimitBase:    cfg.RateLimitBase,
		RateLimitMax:     cfg.RateLimitMax,
		ServerErrorDelay: cfg.ServerErrorDelay,
		EdgeBlockDelay:   cfg.EdgeBlockDelay,
		AuthUnit:         cfg.AuthUnit,
		MaxAuthFailures:  cfg.MaxAuthFailures,
	}
}

// RateLimitBackoff is the sleep after the n-th consecutive 429 (n >= 1):
// base doubled per occurrence, clamped to [base, max].
func (p Policy) RateLimitBackoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.RateLimitBase
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.RateLimitMax {
			return p.RateLimitMax
		}
	}
	if d < p.RateLimitBase {
		return p.RateLimitBase
	}
	if d > p.RateLimitMax {
		return p.RateLimitMax
	}
	return d
}

// RetryDelay is the wait before standard retry k (k >= 1).
func (p Policy) RetryDelay(k int) time.Duration {
	d := time.Duration(k) * p.Step
	if d > p.MaxStep {
		return p.MaxStep
	}
	return d
}
