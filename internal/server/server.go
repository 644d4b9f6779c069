// Package server provides the HTTP server and routing for the allocator.
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

	"github.com/skourlis/allocator/internal/backup"
	"github.com/skourlis/allocator/internal/config"
	"github.com/skourlis/allocator/internal/database"
	"github.com/skourlis/allocator/internal/events"
	optimizationhandlers "github.com/skourlis/allocator/internal/modules/optimization/handlers"
	"github.com/skourlis/allocator/internal/modules/portfolio"
	portfoliohandlers "github.com/skourlis/allocator/internal/modules/portfolio/handlers"
	"github.com/skourlis/allocator/internal/modules/prices"
	priceshandlers "github.com/skourlis/allocator/internal/modules/prices/handlers"
	"github.com/skourlis/allocator/internal/modules/reports"
	reportshandlers "github.com/skourlis/allocator/internal/modules/reports/handlers"
	"github.com/skourlis/allocator/internal/modules/results"
	resultshandlers "github.com/skourlis/allocator/internal/modules/results/handlers"
	"github.com/skourlis/allocator/internal/queue"
	"github.com/skourlis/allocator/internal/services"
)

// Config holds everything the server needs to build its routes.
type Config struct {
	Log          zerolog.Logger
	Config       *config.Config
	ConfigDB     *database.DB
	ResultsDB    *database.DB
	HistoryDB    *prices.HistoryDB
	EventBus     *events.Bus
	EventManager *events.Manager
	Queue        *queue.Manager
	Portfolios   *portfolio.Repository
	Results      *results.Repository
	PriceService *prices.Service
	Allocation   *services.AllocationService
	Reports      *reports.Service
	Backup       *backup.Service // nil when backups are not configured
}

// Server represents the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            Config
	systemHandlers *SystemHandlers
	statusMonitor  *StatusMonitor
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	systemHandlers := NewSystemHandlers(
		cfg.Log,
		cfg.Config.DataDir,
		cfg.ConfigDB,
		cfg.ResultsDB,
		cfg.HistoryDB,
		cfg.Queue,
		cfg.Backup,
	)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg,
		systemHandlers: systemHandlers,
	}

	s.statusMonitor = NewStatusMonitor(cfg.EventManager, systemHandlers, cfg.Log)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// Event streams (SSE and WebSocket) - registered before the module
		// routes for proper handling
		streamHandler := NewEventsStreamHandler(s.cfg.EventBus, s.log)
		r.Get("/events/stream", streamHandler.ServeHTTP)

		wsHandler := NewEventsWSHandler(s.cfg.EventBus, s.log)
		r.Get("/events/ws", wsHandler.ServeHTTP)

		// System monitoring and maintenance triggers
		s.systemHandlers.RegisterRoutes(r)

		// Portfolio module
		portfolioHandler := portfoliohandlers.NewHandler(s.cfg.Portfolios, s.cfg.EventManager, s.log)
		portfolioHandler.RegisterRoutes(r)

		// Prices module
		pricesHandler := priceshandlers.NewHandler(s.cfg.PriceService, s.cfg.HistoryDB, s.log)
		pricesHandler.RegisterRoutes(r)

		// Optimization module
		optimizationHandler := optimizationhandlers.NewHandler(s.cfg.Allocation, s.cfg.Queue, s.log)
		optimizationHandler.RegisterRoutes(r)

		// Results module
		resultsHandler := resultshandlers.NewHandler(s.cfg.Results, s.log)
		resultsHandler.RegisterRoutes(r)

		// Reports module
		reportsHandler := reportshandlers.NewHandler(s.cfg.Reports, s.log)
		reportsHandler.RegisterRoutes(r)
	})
}

// Start starts the HTTP server and background monitors
func (s *Server) Start() error {
	if s.statusMonitor != nil {
		s.statusMonitor.Start(60 * time.Second)
		s.log.Info().Msg("Status monitor started")
	}

	s.log.Info().Int("port", s.cfg.Config.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	if s.statusMonitor != nil {
		s.statusMonitor.Stop()
	}
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
