package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptofmv/config"
	"cryptofmv/internal/ratelimit"
	"cryptofmv/models"
)

type reply struct {
	status int
	body   string
}

const okBody = `{"id":"the-open-network","market_data":{"current_price":{"cad":7.123456789,"usd":5.2}}}`

// scripted serves replies in order and repeats the last one.
func scripted(t *testing.T, replies ...reply) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(replies) {
			n = len(replies) - 1
		}
		w.WriteHeader(replies[n].status)
		_, _ = w.Write([]byte(replies[n].body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestClient(baseURL string, sleeps *recordedSleeps) *Client {
	cfg := config.Default().CoinGecko
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-key"
	return NewClient(cfg, PolicyFromConfig(config.Default().Retry), ratelimit.NewGate(0), WithSleeper(sleeps.sleep))
}

var day = models.MustParseDate("2024-03-09")

func TestHistoryFound(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("x-cg-demo-api-key")
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	res, err := newTestClient(srv.URL, sleeps).History(context.Background(), "the-open-network", day, "cad")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.True(t, decimal.RequireFromString("7.123456789").Equal(res.Price))
	assert.Equal(t, "/coins/the-open-network/history", gotPath)
	assert.Equal(t, "date=09-03-2024&localization=false", gotQuery)
	assert.Equal(t, "test-key", gotKey)
	assert.Empty(t, sleeps.delays)
}

func TestHistoryNoDataIsNotRetried(t *testing.T) {
	srv, calls := scripted(t, reply{200, `{"id":"the-open-network"}`})
	sleeps := &recordedSleeps{}

	res, err := newTestClient(srv.URL, sleeps).History(context.Background(), "the-open-network", day, "cad")
	require.NoError(t, err)
	assert.Equal(t, Absent(ReasonNoData), res)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	assert.Empty(t, sleeps.delays)
}

func TestHistoryMissingCurrencyIsNoData(t *testing.T) {
	srv, _ := scripted(t, reply{200, okBody})
	res, err := newTestClient(srv.URL, &recordedSleeps{}).History(context.Background(), "the-open-network", day, "eur")
	require.NoError(t, err)
	assert.Equal(t, ReasonNoData, res.Reason)
}

func TestHistoryBadRequest(t *testing.T) {
	srv, calls := scripted(t, reply{400, `{"error":"invalid date"}`})
	res, err := newTestClient(srv.URL, &recordedSleeps{}).History(context.Background(), "x", day, "cad")
	require.NoError(t, err)
	assert.Equal(t, Absent(ReasonBadRequest), res)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestHistoryRateLimitBackoffSequence(t *testing.T) {
	replies := make([]reply, 0, 8)
	for i := 0; i < 7; i++ {
		replies = append(replies, reply{429, `{"status":{"error_code":429,"error_message":"Throttled"}}`})
	}
	replies = append(replies, reply{200, okBody})
	srv, calls := scripted(t, replies...)
	sleeps := &recordedSleeps{}

	res, err := newTestClient(srv.URL, sleeps).History(context.Background(), "the-open-network", day, "cad")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.EqualValues(t, 8, atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{
		10 * time.Second, 20 * time.Second, 40 * time.Second, 80 * time.Second,
		160 * time.Second, 300 * time.Second, 300 * time.Second,
	}, sleeps.delays)
}

func TestHistoryRateLimitBackoffKeepsDoublingAcrossOtherErrors(t *testing.T) {
	throttled := reply{429, `{"status":{"error_code":429,"error_message":"Throttled"}}`}
	srv, calls := scripted(t, throttled, reply{503, "unavailable"}, throttled, reply{200, okBody})
	sleeps := &recordedSleeps{}

	res, err := newTestClient(srv.URL, sleeps).History(context.Background(), "x", day, "cad")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.EqualValues(t, 4, atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{10 * time.Second, 30 * time.Second, 20 * time.Second}, sleeps.delays)
}

func TestHistoryAuthFailureIsFatalOnSecondAttempt(t *testing.T) {
	srv, calls := scripted(t, reply{401, `{"status":{"error_code":10002,"error_message":"API Key Missing"}}`})
	sleeps := &recordedSleeps{}

	_, err := newTestClient(srv.URL, sleeps).History(context.Background(), "x", day, "cad")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second}, sleeps.delays)
}

func TestHistoryAuthFailureRecovers(t *testing.T) {
	srv, _ := scripted(t, reply{403, `forbidden`}, reply{200, okBody})
	sleeps := &recordedSleeps{}

	res, err := newTestClient(srv.URL, sleeps).History(context.Background(), "x", day, "cad")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, []time.Duration{time.Second}, sleeps.delays)
}

func TestHistoryQuotaCode(t *testing.T) {
	srv, calls := scripted(t, reply{401, `{"status":{"error_code":10005,"error_message":"plan limit"}}`})
	res, err := newTestClient(srv.URL, &recordedSleeps{}).History(context.Background(), "x", day, "cad")
	require.NoError(t, err)
	assert.Equal(t, Absent(ReasonQuotaExhausted), res)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestHistoryServerErrorAndEdgeBlockDoNotConsumeRetries(t *testing.T) {
	srv, calls := scripted(t,
		reply{503, "unavailable"},
		reply{403, "error code: 1020"},
		reply{500, "oops"},
		reply{200, okBody},
	)
	sleeps := &recordedSleeps{}

	res, err := newTestClient(srv.URL, sleeps).History(context.Background(), "x", day, "cad")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.EqualValues(t, 4, atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second, 30 * time.Second}, sleeps.delays)
}

func TestHistoryUnrecognizedExhaustsRetries(t *testing.T) {
	srv, calls := scripted(t, reply{418, "teapot"})
	sleeps := &recordedSleeps{}

	res, err := newTestClient(srv.URL, sleeps).History(context.Background(), "x", day, "cad")
	require.NoError(t, err)
	assert.Equal(t, Absent(ReasonRetriesExhausted), res)
	assert.EqualValues(t, 4, atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}, sleeps.delays)
}

func TestHistoryTransportErrorsExhaustRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	sleeps := &recordedSleeps{}

	res, err := newTestClient(url, sleeps).History(context.Background(), "x", day, "cad")
	require.NoError(t, err)
	assert.Equal(t, Absent(ReasonRetriesExhausted), res)
	assert.Len(t, sleeps.delays, 3)
}

func TestHistoryCancelledDuringBackoff(t *testing.T) {
	srv, _ := scripted(t, reply{429, ""})
	ctx, cancel := context.WithCancel(context.Background())

	client := newTestClient(srv.URL, &recordedSleeps{})
	client.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := client.History(ctx, "x", day, "cad")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicyDelays(t *testing.T) {
	p := PolicyFromConfig(config.Default().Retry)

	backoff := []time.Duration{10, 20, 40, 80, 160, 300, 300, 300}
	for i, want := range backoff {
		assert.Equal(t, want*time.Second, p.RateLimitBackoff(i+1), "occurrence %d", i+1)
	}
	assert.Equal(t, 10*time.Second, p.RateLimitBackoff(0))

	retry := []time.Duration{10, 20, 30, 40, 50, 60, 60}
	for i, want := range retry {
		assert.Equal(t, want*time.Second, p.RetryDelay(i+1), "retry %d", i+1)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   outcome
	}{
		{"success", 200, okBody, outcomeSuccess},
		{"no market data", 200, `{"id":"x"}`, outcomeNoData},
		{"garbled 200", 200, `<html>`, outcomeUnrecognized},
		{"bad request", 400, ``, outcomeBadRequest},
		{"invalid key code", 400, `{"status":{"error_code":10010}}`, outcomeAuth},
		{"demo key code", 200, `{"status":{"error_code":10011}}`, outcomeAuth},
		{"unauthorized", 401, ``, outcomeAuth},
		{"plan limit", 403, `{"status":{"error_code":10006}}`, outcomeQuota},
		{"throttled", 429, ``, outcomeRateLimited},
		{"bad gateway", 502, ``, outcomeServerError},
		{"gateway timeout", 504, ``, outcomeServerError},
		{"edge body", 403, `error code: 1020`, outcomeEdgeBlocked},
		{"edge status", 1020, ``, outcomeEdgeBlocked},
		{"not found", 404, ``, outcomeUnrecognized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := classify(tt.status, []byte(tt.body), "cad")
			assert.Equal(t, tt.want, got)
		})
	}
}
