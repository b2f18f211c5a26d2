package backlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptofmv/config"
	"cryptofmv/internal/ratecache"
	"cryptofmv/models"
)

func d(s string) models.Date { return models.MustParseDate(s) }

func TestFileRoundTrip(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "missing.yaml"))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, f.Save([]models.Date{d("2024-02-01"), d("2024-01-01"), d("2024-02-01")}))
	got, err = f.Load()
	require.NoError(t, err)
	assert.Equal(t, []models.Date{d("2024-01-01"), d("2024-02-01")}, got)

	require.NoError(t, f.Save(nil))
	_, err = os.Stat(f.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestFileLoadsLegacyQuotedList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("---\n- '2024-03-02'\n- '2024-03-01'\n- nonsense\n"), 0o644))

	got, err := NewFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, []models.Date{d("2024-03-01"), d("2024-03-02")}, got)
}

func TestFileLoadRejectsNonList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: b\n"), 0o644))
	_, err := NewFile(path).Load()
	assert.Error(t, err)
}

func TestReconcilerAddsAndResolves(t *testing.T) {
	root := t.TempDir()
	reports := filepath.Join(root, "CRA_Reports")
	require.NoError(t, os.MkdirAll(reports, 0o755))

	cfg := config.Default()
	profile, _ := cfg.Chain(cfg.Backlog.Chain)
	cache := ratecache.New(filepath.Join(root, "cache"))
	store := ratecache.NewStore()
	store.Rates[d("2024-01-10")] = decimal.RequireFromString("3.1")
	store.Rates[d("2023-12-01")] = decimal.RequireFromString("2.9")
	require.NoError(t, cache.Persist(context.Background(), profile, store))

	file := NewFile(filepath.Join(root, cfg.Backlog.File))
	require.NoError(t, file.Save([]models.Date{d("2023-12-01"), d("2023-11-30")}))

	require.NoError(t, os.WriteFile(filepath.Join(reports, "cra_fmv_w1_20240101_000000.csv"),
		[]byte("Date (UTC),CAD Value\n2024-01-09,N/A\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(reports, "cra_fmv_w1_20240201_000000.csv"), []byte(
		"Date (UTC),CAD Value\n"+
			"2024-01-10 08:00:00,N/A\n"+
			"2024-01-11 08:00:00, n/a\n"+
			"2024-01-11 09:00:00,N/A\n"+
			"2020-05-05,N/A\n"+
			"2024-01-12,4.2\n"+
			"bad,N/A\n"), 0o644))

	sum, err := NewReconciler(reports, cfg.Backlog, cache, profile, file).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileSummary{FilesScanned: 1, NAFound: 5, Added: 2, Resolved: 1, Remaining: 3}, sum)

	got, err := file.Load()
	require.NoError(t, err)
	assert.Equal(t, []models.Date{d("2020-05-05"), d("2023-11-30"), d("2024-01-11")}, got)
}

func TestReconcilerEmptyBacklogRemovesFile(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	profile, _ := cfg.Chain(cfg.Backlog.Chain)
	cache := ratecache.New(filepath.Join(root, "cache"))
	store := ratecache.NewStore()
	store.Rates[d("2024-01-10")] = decimal.RequireFromString("3.1")
	require.NoError(t, cache.Persist(context.Background(), profile, store))

	file := NewFile(filepath.Join(root, "missing.yaml"))
	require.NoError(t, file.Save([]models.Date{d("2024-01-10")}))

	sum, err := NewReconciler(root, cfg.Backlog, cache, profile, file).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Remaining)
	assert.Equal(t, 1, sum.Resolved)
	_, err = os.Stat(file.Path())
	assert.True(t, os.IsNotExist(err))
}
