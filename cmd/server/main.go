// Package main is the entry point for the Piyasa market data and portfolio
// valuation service. It aggregates quotes and price history from Turkish
// market sources (BIST equities, TEFAS funds, FX, crypto, bond yields,
// inflation) and serves portfolio valuations and performance metrics over
// HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/assets"
	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/clients/bigpara"
	"github.com/ukaya/piyasa/internal/clients/bonds"
	"github.com/ukaya/piyasa/internal/clients/btcturk"
	"github.com/ukaya/piyasa/internal/clients/calendar"
	"github.com/ukaya/piyasa/internal/clients/doviz"
	"github.com/ukaya/piyasa/internal/clients/inflation"
	"github.com/ukaya/piyasa/internal/clients/tefas"
	"github.com/ukaya/piyasa/internal/config"
	"github.com/ukaya/piyasa/internal/database"
	"github.com/ukaya/piyasa/internal/fetch"
	"github.com/ukaya/piyasa/internal/modules/portfolio"
	portfoliohandlers "github.com/ukaya/piyasa/internal/modules/portfolio/handlers"
	"github.com/ukaya/piyasa/internal/scheduler"
	"github.com/ukaya/piyasa/internal/server"
	"github.com/ukaya/piyasa/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Piyasa")

	// Portfolio database
	db, err := database.New(database.Config{
		Path: cfg.DatabasePath(),
		Name: "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer db.Close()

	// Shared cache, warm-started from the last snapshot when one exists
	dataCache := cache.New()
	if err := dataCache.Restore(cfg.CacheSnapshotPath()); err != nil {
		log.Warn().Err(err).Msg("Cache snapshot restore failed, starting cold")
	} else if n := dataCache.Len(); n > 0 {
		log.Info().Int("entries", n).Msg("Cache restored from snapshot")
	}

	// Upstream clients
	equities := bigpara.NewClient(dataCache, cfg.FetchTimeout, log)
	funds := tefas.NewClient(dataCache, tefas.Config{
		ChunkDays:      cfg.HistoryChunkDays,
		ChunkDelay:     cfg.ChunkDelay,
		FuzzyThreshold: cfg.FuzzyThreshold,
		Timeout:        cfg.FetchTimeout,
	}, log)
	fx := doviz.NewClient(dataCache, cfg.FetchTimeout, log)
	crypto := btcturk.NewClient(dataCache, cfg.FetchTimeout, log)
	bondsClient := bonds.NewClient(dataCache, cfg.FetchTimeout, log)
	inflationClient := inflation.NewClient(dataCache, cfg.FetchTimeout, log)
	calendarClient := calendar.NewClient(cfg.CalendarAPIKey, dataCache, cfg.FetchTimeout, log)

	// Asset facade and parallel fetch aggregator
	assetService := assets.NewService(assets.Providers{
		Equity: equities,
		Fund:   funds,
		FX:     fx,
		Crypto: crypto,
		Bond:   assets.NewBondQuoter(bondsClient),
		Index:  equities, // BIST indices (XU100 etc.) come from the same feed
	}, log)
	aggregator := fetch.New(assetService, cfg.FetchWorkers, log)

	// Portfolio module
	repo, err := portfolio.NewRepository(db.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize portfolio repository")
	}
	portfolioService := portfolio.NewService(
		repo,
		aggregator,
		assetService,
		fx,
		bondsClient,
		inflationClient,
		cfg.RiskFreeFallback,
		log,
	)

	srv := server.New(server.Config{
		Log:        log,
		Config:     cfg,
		DB:         db,
		Cache:      dataCache,
		Assets:     assetService,
		Aggregator: aggregator,
		Portfolio:  portfoliohandlers.New(portfolioService, log),
		Funds:      funds,
		Bonds:      bondsClient,
		Inflation:  inflationClient,
		Calendar:   calendarClient,
	})

	// Background maintenance
	sched := scheduler.New(log)
	registerJobs(sched, cfg, dataCache, fx, log)
	sched.Start()
	defer sched.Stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Persist the cache so the next start is warm.
	if err := dataCache.Snapshot(cfg.CacheSnapshotPath()); err != nil {
		log.Warn().Err(err).Msg("Final cache snapshot failed")
	}

	log.Info().Msg("Piyasa stopped")
}

// registerJobs wires the cron maintenance jobs. Failures here are fatal:
// a bad schedule expression is a programming error.
func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, dataCache *cache.Cache, fx *doviz.Client, log zerolog.Logger) {
	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{"*/15 * * * *", scheduler.NewCachePurgeJob(dataCache, log)},
		{"@hourly", scheduler.NewCacheSnapshotJob(dataCache, cfg.CacheSnapshotPath(), log)},
		{"@every 30m", scheduler.NewFXWarmupJob(fx, nil, log)},
	}
	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			log.Fatal().Err(err).Str("job", j.job.Name()).Msg("Failed to register job")
		}
	}
}
