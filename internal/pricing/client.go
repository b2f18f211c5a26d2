// Package pricing fetches historical fair-market values from CoinGecko.
package pricing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptofmv/config"
	"cryptofmv/internal/ratelimit"
	"cryptofmv/logger"
	"cryptofmv/models"
)

const maxBodyBytes = 1 << 20

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Client issues /coins/{id}/history requests through a shared rate gate and
// applies the retry policy to each lookup.
type Client struct {
	baseURL    string
	apiKey     string
	keyHeader  string
	httpClient *http.Client
	gate       *ratelimit.Gate
	policy     Policy
	sleep      Sleeper
	log        *logger.Log
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, e.g. with a recording transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithSleeper replaces the backoff sleep.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// NewClient builds a client. Every attempt, retries included, first passes
// through gate.
func NewClient(cfg config.CoinGeckoConfig, policy Policy, gate *ratelimit.Gate, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		keyHeader:  cfg.APIKeyHeader,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		gate:       gate,
		policy:     policy,
		sleep:      ratelimit.Sleep,
		log:        logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// History returns the price of coinID in currency on date. Expected
// absences are reported in the Result; an error means the run must stop
// (ErrUnauthorized or a context error).
func (c *Client) History(ctx context.Context, coinID string, date models.Date, currency string) (Result, error) {
	log := c.log.WithComponent("coingecko").WithFields(logger.Fields{
		"coin_id":  coinID,
		"date":     date.String(),
		"currency": currency,
	})

	var (
		retries      int
		rateLimited  int
		authFailures int
	)

	for {
		if _, err := c.gate.Wait(ctx); err != nil {
			return Result{}, err
		}

		out, price, status, err := c.attempt(ctx, coinID, date, currency)
		if err != nil && ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if out != outcomeAuth {
			authFailures = 0
		}

		var wait time.Duration
		switch out {
		case outcomeSuccess:
			log.WithFields(logger.Fields{"price": price.String()}).Debug("price fetched")
			return Found(price), nil
		case outcomeNoData:
			log.Info("no market data for date")
			return Absent(ReasonNoData), nil
		case outcomeBadRequest:
			log.Warn("request rejected as invalid")
			return Absent(ReasonBadRequest), nil
		case outcomeQuota:
			log.Warn("plan limit reached for request")
			return Absent(ReasonQuotaExhausted), nil
		case outcomeAuth:
			authFailures++
			if authFailures >= c.policy.MaxAuthFailures {
				log.WithFields(logger.Fields{"status": status}).Error("authentication failed repeatedly")
				return Result{}, fmt.Errorf("%w: status %d for %s on %s", ErrUnauthorized, status, coinID, date)
			}
			wait = time.Duration(authFailures) * c.policy.AuthUnit
		case outcomeRateLimited:
			rateLimited++
			wait = c.policy.RateLimitBackoff(rateLimited)
		case outcomeServerError:
			wait = c.policy.ServerErrorDelay
		case outcomeEdgeBlocked:
			wait = c.policy.EdgeBlockDelay
		default:
			retries++
			if retries > c.policy.MaxRetries {
				withErr(log, err).WithFields(logger.Fields{
					"status":  status,
					"retries": c.policy.MaxRetries,
				}).Error("giving up after retries")
				return Absent(ReasonRetriesExhausted), nil
			}
			wait = c.policy.RetryDelay(retries)
		}

		withErr(log, err).WithFields(logger.Fields{
			"outcome": out.String(),
			"status":  status,
			"wait_s":  wait.Seconds(),
		}).Warn("retrying price request")

		if err := c.sleep(ctx, wait); err != nil {
			return Result{}, err
		}
	}
}

func (c *Client) attempt(ctx context.Context, coinID string, date models.Date, currency string) (outcome, decimal.Decimal, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.historyURL(coinID, date), nil)
	if err != nil {
		return outcomeUnrecognized, decimal.Zero, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" && c.keyHeader != "" {
		req.Header.Set(c.keyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return outcomeTransport, decimal.Zero, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return outcomeTransport, decimal.Zero, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}

	out, price := classify(resp.StatusCode, body, currency)
	if out == outcomeUnrecognized {
		return out, price, resp.StatusCode, fmt.Errorf("unexpected response %d: %s", resp.StatusCode, snippet(body))
	}
	return out, price, resp.StatusCode, nil
}

func (c *Client) historyURL(coinID string, date models.Date) string {
	q := url.Values{}
	q.Set("date", date.CoinGecko())
	q.Set("localization", "false")
	return fmt.Sprintf("%s/coins/%s/history?%s", c.baseURL, url.PathEscape(coinID), q.Encode())
}

func withErr(e *logger.Entry, err error) *logger.Entry {
	if err == nil {
		return e
	}
	return e.WithError(err)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
