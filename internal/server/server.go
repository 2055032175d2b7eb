// Package server provides the HTTP server and routing for Piyasa.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/assets"
	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/clients/bonds"
	"github.com/ukaya/piyasa/internal/clients/calendar"
	"github.com/ukaya/piyasa/internal/clients/inflation"
	"github.com/ukaya/piyasa/internal/clients/tefas"
	"github.com/ukaya/piyasa/internal/config"
	"github.com/ukaya/piyasa/internal/database"
	"github.com/ukaya/piyasa/internal/fetch"
	portfoliohandlers "github.com/ukaya/piyasa/internal/modules/portfolio/handlers"
)

// Config holds everything the server needs to route requests.
type Config struct {
	Log        zerolog.Logger
	Config     *config.Config
	DB         *database.DB
	Cache      *cache.Cache
	Assets     *assets.Service
	Aggregator *fetch.Aggregator
	Portfolio  *portfoliohandlers.Handlers
	Funds      *tefas.Client
	Bonds      *bonds.Client
	Inflation  *inflation.Client
	Calendar   *calendar.Client
}

// Server is the HTTP front of the service.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	db             *database.DB
	cache          *cache.Cache
	assets         *assets.Service
	aggregator     *fetch.Aggregator
	portfolio      *portfoliohandlers.Handlers
	funds          *tefas.Client
	bonds          *bonds.Client
	inflation      *inflation.Client
	calendar       *calendar.Client
	systemHandlers *SystemHandlers
	startedAt      time.Time
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		cfg:        cfg.Config,
		db:         cfg.DB,
		cache:      cfg.Cache,
		assets:     cfg.Assets,
		aggregator: cfg.Aggregator,
		portfolio:  cfg.Portfolio,
		funds:      cfg.Funds,
		bonds:      cfg.Bonds,
		inflation:  cfg.Inflation,
		calendar:   cfg.Calendar,
		startedAt:  time.Now(),
	}
	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config, cfg.DB, cfg.Cache, s.startedAt)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware.
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Market data
		r.Get("/quotes", s.handleQuotes)
		r.Route("/assets/{type}/{symbol}", func(r chi.Router) {
			r.Get("/", s.handleAssetCurrent)
			r.Get("/history", s.handleAssetHistory)
		})

		// Reference data
		r.Get("/funds/resolve", s.handleFundResolve)
		r.Get("/funds/{code}", s.handleFundDetail)
		r.Get("/bonds/yields", s.handleBondYields)
		r.Get("/inflation", s.handleInflation)
		r.Get("/calendar", s.handleCalendar)

		// Portfolios
		s.portfolio.Routes(r)

		// System monitoring and operations
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleStatus)
			r.Get("/cache", s.systemHandlers.HandleCacheStats)
			r.Post("/cache/purge", s.systemHandlers.HandleCachePurge)
			r.Post("/cache/snapshot", s.systemHandlers.HandleCacheSnapshot)
		})
	})
}

// handleHealth responds to liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Conn().PingContext(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// loggingMiddleware logs each request at debug with timing.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}

// Start begins serving and blocks until the listener fails or closes.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
