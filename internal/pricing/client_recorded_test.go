package pricing

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptofmv/config"
	"cryptofmv/internal/ratelimit"
	"cryptofmv/models"
)

// Replays a recorded /coins/{id}/history call. Skips unless the cassette
// exists or RECORD_CASSETTES=1 (which needs COINGECKO_API_KEY).
func TestClientHistoryRecorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "coingecko_history")
	if _, err := os.Stat(cassette + ".yaml"); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s.yaml", cassette)
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(cassette), 0o755))
	}

	r, err := recorder.New(cassette)
	require.NoError(t, err)
	defer func() { _ = r.Stop() }()

	cfg := config.Default()
	cfg.CoinGecko.APIKey = os.Getenv("COINGECKO_API_KEY")

	client := NewClient(cfg.CoinGecko, PolicyFromConfig(cfg.Retry), ratelimit.NewGate(0),
		WithHTTPClient(&http.Client{Transport: r}))

	res, err := client.History(context.Background(), "the-open-network", models.MustParseDate("2024-01-15"), "cad")
	require.NoError(t, err)
	assert.True(t, res.Found, "expected a price, got %s", res)
	assert.True(t, res.Price.IsPositive())
}
