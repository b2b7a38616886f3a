// Package main is the entry point for the Pocketfolio refresh service.
// It keeps quotes, the portfolio summary and the top-movers board fresh
// behind a local REST API, polling the Folio API on market-aware
// intervals so the app shell never fetches upstream data itself.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketfolio/pocketfolio/internal/clients/folioapi"
	"github.com/pocketfolio/pocketfolio/internal/config"
	"github.com/pocketfolio/pocketfolio/internal/database"
	"github.com/pocketfolio/pocketfolio/internal/feeds"
	"github.com/pocketfolio/pocketfolio/internal/marketclock"
	"github.com/pocketfolio/pocketfolio/internal/refresh"
	"github.com/pocketfolio/pocketfolio/internal/scheduler"
	"github.com/pocketfolio/pocketfolio/internal/server"
	"github.com/pocketfolio/pocketfolio/internal/store"
	"github.com/pocketfolio/pocketfolio/internal/store/snapshot"
	"github.com/pocketfolio/pocketfolio/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger with config level
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().Msg("Starting Pocketfolio refresh service")

	// Snapshot database (cache profile: ephemeral, speed over durability)
	db, err := database.New(database.Config{
		Path:    cfg.SnapshotDBPath(),
		Profile: database.ProfileCache,
		Name:    "snapshots",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot database")
	}
	defer db.Close()

	if err := snapshot.InitSchema(db.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot schema")
	}
	snapshots := snapshot.NewRepository(db.Conn())

	// In-memory stores the HTTP surface serves from
	quotes := store.NewQuoteStore(log)
	summary := store.NewSummaryStore(log)
	movers := store.NewMoverStore(log)

	// Upstream API client
	client := folioapi.NewClient(cfg.FolioAPIBaseURL, cfg.FolioAPIKey, log)

	// Market clock gates refresh intervals on the trading session
	clock := marketclock.New(marketclock.Config{
		Timezone: cfg.MarketTimezone,
		Log:      log,
	})
	clock.Start()

	// Refresh coordinator
	coordinator := refresh.New(refresh.Config{
		Gate: clock,
		Log:  log,
	})

	// Feeds: warm the stores from persisted snapshots, then register
	// the fetch streams (registration triggers the first fetches)
	registrar := feeds.NewRegistrar(feeds.Config{
		Client:          client,
		Quotes:          quotes,
		Summary:         summary,
		Movers:          movers,
		Snapshots:       snapshots,
		Symbols:         cfg.TrackedSymbols,
		PortfolioID:     cfg.PortfolioID,
		PricesInterval:  cfg.PricesInterval,
		SummaryInterval: cfg.SummaryInterval,
		MoversInterval:  cfg.MoversInterval,
		Log:             log,
	})
	registrar.WarmFromSnapshots()

	unsubscribe, err := registrar.Register(coordinator)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register refresh streams")
	}

	// Background maintenance jobs
	sched := scheduler.New(log)
	cleanupJob := snapshot.NewCleanupJob(snapshots, db, log)
	if err := sched.AddJob(cfg.CacheCleanupSchedule, cleanupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cleanup job")
	}
	sched.Start()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Log:         log,
		DB:          db,
		Coordinator: coordinator,
		Clock:       clock,
		Quotes:      quotes,
		Summary:     summary,
		Movers:      movers,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().
		Int("port", cfg.Port).
		Strs("symbols", cfg.TrackedSymbols).
		Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Graceful shutdown: stop accepting requests, then stop background
	// work, then tear down the coordinator and clock
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	sched.Stop()
	unsubscribe()
	coordinator.Stop()
	clock.Stop()

	log.Info().Msg("Server stopped")
}
