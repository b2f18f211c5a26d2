package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cryptofmv/models"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Paths     PathsConfig     `yaml:"paths"`
	CoinGecko CoinGeckoConfig `yaml:"coingecko"`
	Retry     RetryConfig     `yaml:"retry"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Input     InputConfig     `yaml:"input"`
	Backlog   BacklogConfig   `yaml:"backlog"`
	Reports   ReportsConfig   `yaml:"reports"`
	Chains    []ChainRule     `yaml:"chains"`
	Export    ExportConfig    `yaml:"export"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// PathsConfig locates the on-disk data lake.
type PathsConfig struct {
	CSVDir     string `yaml:"csv_dir"`
	CacheDir   string `yaml:"cache_dir"`
	LogDir     string `yaml:"log_dir"`
	ReportsDir string `yaml:"reports_dir"`
}

type CoinGeckoConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	APIKeyHeader   string        `yaml:"api_key_header"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MinInterval    time.Duration `yaml:"min_interval"`
}

// RetryConfig holds the fetcher's backoff policy.
type RetryConfig struct {
	MaxRetries       int           `yaml:"max_retries"`
	Step             time.Duration `yaml:"step"`
	MaxStep          time.Duration `yaml:"max_step"`
	RateLimitBase    time.Duration `yaml:"rate_limit_base"`
	RateLimitMax     time.Duration `yaml:"rate_limit_max"`
	ServerErrorDelay time.Duration `yaml:"server_error_delay"`
	EdgeBlockDelay   time.Duration `yaml:"edge_block_delay"`
	AuthUnit         time.Duration `yaml:"auth_unit"`
	MaxAuthFailures  int           `yaml:"max_auth_failures"`
}

type PipelineConfig struct {
	Workers     int    `yaml:"workers"`
	HistoryDays int    `yaml:"history_days"`
	Today       string `yaml:"today"`
}

type InputConfig struct {
	DateColumns []string `yaml:"date_columns"`
}

type BacklogConfig struct {
	File         string `yaml:"file"`
	Chain        string `yaml:"chain"`
	DateColumn   string `yaml:"date_column"`
	ValueColumn  string `yaml:"value_column"`
	Sentinel     string `yaml:"sentinel"`
	ReportPrefix string `yaml:"report_prefix"`
}

type ReportsConfig struct {
	TransactionPrefix string  `yaml:"transaction_prefix"`
	AmountColumn      string  `yaml:"amount_column"`
	FeeColumn         string  `yaml:"fee_column"`
	TypeColumn        string  `yaml:"type_column"`
	LargeThreshold    float64 `yaml:"large_threshold"`
	Decimals          int32   `yaml:"decimals"`
}

// ChainRule maps filename patterns to a CoinGecko feed.
type ChainRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
	ID       string   `yaml:"id"`
	Currency string   `yaml:"currency"`
}

type ExportConfig struct {
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"`
	Upload      bool   `yaml:"upload"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		App: AppConfig{Name: "cryptofmv", Version: "1.0.0"},
		Paths: PathsConfig{
			CSVDir:     "CSV_Files",
			CacheDir:   "cache",
			LogDir:     "logs",
			ReportsDir: "CRA_Reports",
		},
		CoinGecko: CoinGeckoConfig{
			BaseURL:        "https://api.coingecko.com/api/v3",
			APIKeyHeader:   "x-cg-demo-api-key",
			RequestTimeout: 15 * time.Second,
			MinInterval:    11 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:       3,
			Step:             10 * time.Second,
			MaxStep:          60 * time.Second,
			RateLimitBase:    10 * time.Second,
			RateLimitMax:     300 * time.Second,
			ServerErrorDelay: 30 * time.Second,
			EdgeBlockDelay:   60 * time.Second,
			AuthUnit:         time.Second,
			MaxAuthFailures:  2,
		},
		Pipeline: PipelineConfig{Workers: 4, HistoryDays: 365},
		Input: InputConfig{
			DateColumns: []string{"Date (UTC)", "DateTime (UTC)", "Block Time", "Human Time"},
		},
		Backlog: BacklogConfig{
			File:         "missing_historical_fmv_dates.yaml",
			Chain:        "ton",
			DateColumn:   "Date (UTC)",
			ValueColumn:  "CAD Value",
			Sentinel:     "N/A",
			ReportPrefix: "cra_fmv",
		},
		Reports: ReportsConfig{
			TransactionPrefix: "ton_transactions",
			AmountColumn:      "Amount (TON)",
			FeeColumn:         "Fee (TON)",
			TypeColumn:        "Type",
			LargeThreshold:    1.0,
			Decimals:          9,
		},
		Chains: DefaultChains(),
		Export: ExportConfig{Dir: "export", Compression: "snappy"},
		Metrics: MetricsConfig{
			CloudWatch: CloudWatchConfig{Namespace: "CryptoFMV", Dashboard: "CryptoFMV"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// applyEnv overrides secrets and deployment specific values from the
// environment so they never need to live in the config file.
func applyEnv(config *Config) {
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		config.CoinGecko.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("COINGECKO_BASE_URL"); v != "" {
		config.CoinGecko.BaseURL = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if cfg.CoinGecko.BaseURL == "" {
		return fmt.Errorf("coingecko.base_url is required")
	}
	if cfg.CoinGecko.MinInterval < 0 {
		return fmt.Errorf("coingecko.min_interval must not be negative")
	}
	if cfg.CoinGecko.RequestTimeout <= 0 {
		return fmt.Errorf("coingecko.request_timeout must be greater than 0")
	}
	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if cfg.Retry.MaxAuthFailures <= 0 {
		return fmt.Errorf("retry.max_auth_failures must be greater than 0")
	}
	if cfg.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be greater than 0")
	}
	if cfg.Pipeline.HistoryDays <= 0 {
		return fmt.Errorf("pipeline.history_days must be greater than 0")
	}
	if cfg.Pipeline.Today != "" {
		if _, err := models.ParseDate(cfg.Pipeline.Today); err != nil {
			return fmt.Errorf("pipeline.today must be YYYY-MM-DD: %w", err)
		}
	}
	if len(cfg.Input.DateColumns) == 0 {
		return fmt.Errorf("input.date_columns must not be empty")
	}
	if cfg.Backlog.File == "" {
		return fmt.Errorf("backlog.file is required")
	}
	if err := validateChains(cfg.Chains); err != nil {
		return err
	}
	if _, ok := cfg.Chain(cfg.Backlog.Chain); !ok {
		return fmt.Errorf("backlog.chain %q is not a configured chain", cfg.Backlog.Chain)
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

// Today resolves the run's reference date: the override when set, otherwise
// the current UTC day.
func (c *Config) Today(now time.Time) models.Date {
	if c.Pipeline.Today != "" {
		if d, err := models.ParseDate(c.Pipeline.Today); err == nil {
			return d
		}
	}
	return models.DateOf(now)
}

// Chain looks up a chain rule by name and returns its profile.
func (c *Config) Chain(name string) (models.ChainProfile, bool) {
	for _, rule := range c.Chains {
		if strings.EqualFold(rule.Name, name) {
			return rule.Profile(), true
		}
	}
	return models.ChainProfile{}, false
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
