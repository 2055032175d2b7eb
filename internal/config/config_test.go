package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PIYASA_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "TRY", cfg.ReportingCurrency)
	assert.Equal(t, 8, cfg.FetchWorkers)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 0.35, cfg.FuzzyThreshold)
	assert.Equal(t, 90, cfg.HistoryChunkDays)
	assert.Equal(t, 500*time.Millisecond, cfg.ChunkDelay)
	assert.Equal(t, 0.30, cfg.RiskFreeFallback)
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PIYASA_DATA_DIR", dir)
	t.Setenv("PIYASA_PORT", "9000")
	t.Setenv("PIYASA_DEV_MODE", "true")
	t.Setenv("PIYASA_CURRENCY", "USD")
	t.Setenv("PIYASA_FETCH_WORKERS", "4")
	t.Setenv("PIYASA_FUZZY_THRESHOLD", "0.5")
	t.Setenv("PIYASA_CHUNK_DELAY", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "USD", cfg.ReportingCurrency)
	assert.Equal(t, 4, cfg.FetchWorkers)
	assert.Equal(t, 0.5, cfg.FuzzyThreshold)
	assert.Equal(t, 2*time.Second, cfg.ChunkDelay)
}

func TestLoadRejectsInvalidWorkerCount(t *testing.T) {
	t.Setenv("PIYASA_DATA_DIR", t.TempDir())
	t.Setenv("PIYASA_FETCH_WORKERS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("PIYASA_DATA_DIR", t.TempDir())
	t.Setenv("PIYASA_PORT", "not-a-number")
	t.Setenv("PIYASA_DEV_MODE", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Port)
	assert.False(t, cfg.DevMode)
}

func TestDerivedPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PIYASA_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "portfolio.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(dir, "cache.snapshot"), cfg.CacheSnapshotPath())
}
