package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cryptofmv/config"
	"cryptofmv/internal/pricing"
	"cryptofmv/internal/ratecache"
	"cryptofmv/internal/ratelimit"
	"cryptofmv/logger"
	"cryptofmv/models"
	"cryptofmv/writer"
)

// app is the wiring shared by every command.
type app struct {
	cfg    *config.Config
	log    *logger.Log
	cache  *ratecache.Cache
	mirror *writer.S3Mirror
	today  models.Date
}

func setup(ctx context.Context) (*app, error) {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	path := config.ResolvePath(configPath)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if todayFlag != "" {
		if _, err := models.ParseDate(todayFlag); err != nil {
			return nil, fmt.Errorf("--today must be YYYY-MM-DD: %w", err)
		}
		cfg.Pipeline.Today = todayFlag
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Paths.LogDir, cfg.Logging.MaxAge); err != nil {
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}

	for _, dir := range []string{cfg.Paths.CacheDir, cfg.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	a := &app{cfg: cfg, log: log, today: cfg.Today(time.Now())}

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": config.AppEnvironment(),
		"config":      path,
		"today":       a.today.String(),
		"api_key":     maskKey(cfg.CoinGecko.APIKey),
	}).Info("starting cryptofmv")
	if cfg.CoinGecko.APIKey == "" {
		log.Warn("no CoinGecko API key configured; requests will be anonymous")
	}

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
	}

	var opts []ratecache.Option
	if cfg.Storage.S3.Enabled {
		mirror, err := writer.NewS3Mirror(ctx, cfg.Storage.S3, cfg.Paths.CacheDir, cfg.App.Version)
		if err != nil {
			return nil, err
		}
		a.mirror = mirror
		opts = append(opts, ratecache.WithMirror(mirror))
	}
	a.cache = ratecache.New(cfg.Paths.CacheDir, opts...)
	return a, nil
}

// fetcher builds the CoinGecko client and its gate. One per run.
func (a *app) fetcher() *pricing.Client {
	gate := ratelimit.NewGate(a.cfg.CoinGecko.MinInterval)
	return pricing.NewClient(a.cfg.CoinGecko, pricing.PolicyFromConfig(a.cfg.Retry), gate)
}

func (a *app) backlogChain() (models.ChainProfile, error) {
	p, ok := a.cfg.Chain(a.cfg.Backlog.Chain)
	if !ok {
		return models.ChainProfile{}, fmt.Errorf("backlog chain %q is not configured", a.cfg.Backlog.Chain)
	}
	return p, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:5] + "..." + key[len(key)-4:]
}

func errUnknownChain(name string) error {
	return fmt.Errorf("chain %q is not configured", name)
}
