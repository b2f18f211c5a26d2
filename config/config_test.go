package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("COINGECKO_API_KEY", "")
	path := writeTempConfig(t, "app:\n  name: \"TestApp\"\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "TestApp", cfg.App.Name)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 365, cfg.Pipeline.HistoryDays)
	assert.Equal(t, 11*time.Second, cfg.CoinGecko.MinInterval)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Len(t, cfg.Chains, 12)
	assert.Equal(t, []string{"Date (UTC)", "DateTime (UTC)", "Block Time", "Human Time"}, cfg.Input.DateColumns)
}

func TestLoadConfigOverridesAndEnv(t *testing.T) {
	t.Setenv("COINGECKO_API_KEY", " secret ")
	path := writeTempConfig(t, `app:
  name: fmv
coingecko:
  min_interval: 2s
pipeline:
  workers: 2
  today: "2024-03-01"
chains:
  - name: ton
    patterns: ["ton"]
    id: the-open-network
    currency: usd
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.CoinGecko.APIKey)
	assert.Equal(t, 2*time.Second, cfg.CoinGecko.MinInterval)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	require.Len(t, cfg.Chains, 1)

	profile, ok := cfg.Chain("TON")
	require.True(t, ok)
	assert.Equal(t, "historical_fmv_ton_usd", profile.FilePrefix)
	assert.Equal(t, "2024-03-01", cfg.Today(time.Now()).String())
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"workers":       "pipeline:\n  workers: 0\n",
		"today":         "pipeline:\n  today: yesterday\n",
		"bad pattern":   "chains:\n  - {name: x, patterns: [\"(\"], id: x, currency: cad}\n",
		"backlog chain": "backlog:\n  chain: dogecoin\n",
		"s3 bucket":     "storage:\n  s3:\n    enabled: true\n    bucket: Invalid\n    region: us-east-1\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeTempConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv("APP_ENV", "Prod")
	assert.Equal(t, environmentProduction, AppEnvironment())
	t.Setenv("APP_ENV", "")
	assert.Equal(t, environmentDevelopment, AppEnvironment())
}

func TestResolvePathKeepsExplicitPath(t *testing.T) {
	assert.Equal(t, "custom.yml", ResolvePath("custom.yml"))
}
