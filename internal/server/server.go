// Package server provides the HTTP server and routing for Pocketfolio.
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

	"github.com/pocketfolio/pocketfolio/internal/database"
	"github.com/pocketfolio/pocketfolio/internal/marketclock"
	"github.com/pocketfolio/pocketfolio/internal/refresh"
	"github.com/pocketfolio/pocketfolio/internal/store"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	DB          *database.DB
	Coordinator *refresh.Coordinator
	Clock       *marketclock.Clock
	Quotes      *store.QuoteStore
	Summary     *store.SummaryStore
	Movers      *store.MoverStore
	Port        int
	DevMode     bool
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	refreshHandlers *RefreshHandlers
	marketHandlers  *MarketHandlers
	dataHandlers    *DataHandlers
	systemHandlers  *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:          chi.NewRouter(),
		log:             cfg.Log.With().Str("component", "server").Logger(),
		refreshHandlers: NewRefreshHandlers(cfg.Coordinator, cfg.Log),
		marketHandlers:  NewMarketHandlers(cfg.Clock, cfg.Log),
		dataHandlers:    NewDataHandlers(cfg.Quotes, cfg.Summary, cfg.Movers, cfg.Coordinator, cfg.Log),
		systemHandlers:  NewSystemHandlers(cfg.Log, cfg.DB, cfg.Coordinator, cfg.Clock),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
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
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
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

	s.router.Route("/api/v1", func(r chi.Router) {
		// Refresh coordinator control
		r.Route("/refresh", func(r chi.Router) {
			r.Get("/streams", s.refreshHandlers.HandleStreams)
			r.Post("/streams/{key}", s.refreshHandlers.HandleRefreshStream)
			r.Post("/all", s.refreshHandlers.HandleRefreshAll)
			r.Post("/pause", s.refreshHandlers.HandlePause)
			r.Post("/resume", s.refreshHandlers.HandleResume)
		})

		// Market clock
		r.Get("/market/status", s.marketHandlers.HandleStatus)

		// Data reads
		r.Get("/quotes", s.dataHandlers.HandleQuotes)
		r.Get("/quotes/{symbol}", s.dataHandlers.HandleQuote)
		r.Get("/portfolio/summary", s.dataHandlers.HandleSummary)
		r.Get("/movers", s.dataHandlers.HandleMovers)

		// System monitoring
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
		})
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "pocketfolio",
	}

	writeJSON(w, s.log, http.StatusOK, response)
}

// Start starts the HTTP server (blocking)
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the router for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs requests using zerolog
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
