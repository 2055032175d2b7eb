package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/clients/doviz"
)

// CachePurgeJob drops expired cache entries so the map does not grow
// without bound between restarts.
type CachePurgeJob struct {
	cache *cache.Cache
	log   zerolog.Logger
}

func NewCachePurgeJob(c *cache.Cache, log zerolog.Logger) *CachePurgeJob {
	return &CachePurgeJob{cache: c, log: log.With().Str("job", "cache_purge").Logger()}
}

func (j *CachePurgeJob) Name() string { return "cache-purge" }

func (j *CachePurgeJob) Run() error {
	removed := j.cache.Purge()
	if removed > 0 {
		j.log.Info().Int("removed", removed).Msg("Purged expired cache entries")
	}
	return nil
}

// CacheSnapshotJob persists the cache to disk so the next start is warm.
type CacheSnapshotJob struct {
	cache *cache.Cache
	path  string
	log   zerolog.Logger
}

func NewCacheSnapshotJob(c *cache.Cache, path string, log zerolog.Logger) *CacheSnapshotJob {
	return &CacheSnapshotJob{cache: c, path: path, log: log.With().Str("job", "cache_snapshot").Logger()}
}

func (j *CacheSnapshotJob) Name() string { return "cache-snapshot" }

func (j *CacheSnapshotJob) Run() error {
	if err := j.cache.Snapshot(j.path); err != nil {
		return fmt.Errorf("snapshot cache: %w", err)
	}
	return nil
}

// FXWarmupJob refreshes the most common currency pairs ahead of demand so
// portfolio valuations hit warm cache instead of paying upstream latency.
type FXWarmupJob struct {
	client *doviz.Client
	pairs  []string
	log    zerolog.Logger
}

func NewFXWarmupJob(client *doviz.Client, pairs []string, log zerolog.Logger) *FXWarmupJob {
	if len(pairs) == 0 {
		pairs = []string{"USD", "EUR", "GBP", "GOLD"}
	}
	return &FXWarmupJob{client: client, pairs: pairs, log: log.With().Str("job", "fx_warmup").Logger()}
}

func (j *FXWarmupJob) Name() string { return "fx-warmup" }

func (j *FXWarmupJob) Run() error {
	var failed int
	for _, pair := range j.pairs {
		if _, err := j.client.Current(pair); err != nil {
			failed++
			j.log.Warn().Err(err).Str("pair", pair).Msg("FX warm-up fetch failed")
		}
	}
	if failed == len(j.pairs) {
		return fmt.Errorf("fx warm-up: all %d pairs failed", failed)
	}
	return nil
}
