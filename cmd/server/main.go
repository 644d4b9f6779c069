// Package main is the entry point for the allocator, an evolutionary
// portfolio optimization service. It keeps a local price history warm,
// searches allocations with genetic algorithms (single-objective and
// NSGA-II), archives every run, and serves the results over a REST API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/skourlis/allocator/internal/backup"
	"github.com/skourlis/allocator/internal/config"
	"github.com/skourlis/allocator/internal/database"
	"github.com/skourlis/allocator/internal/events"
	"github.com/skourlis/allocator/internal/modules/portfolio"
	"github.com/skourlis/allocator/internal/modules/prices"
	"github.com/skourlis/allocator/internal/modules/reports"
	"github.com/skourlis/allocator/internal/modules/results"
	"github.com/skourlis/allocator/internal/queue"
	"github.com/skourlis/allocator/internal/scheduler"
	"github.com/skourlis/allocator/internal/server"
	"github.com/skourlis/allocator/internal/services"
	"github.com/skourlis/allocator/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().Msg("Starting allocator")

	// Core databases: mutable application data (portfolios, settings) and
	// the append-only run archive.
	configDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "config.db"),
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open config database")
	}
	defer configDB.Close()

	resultsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "results.db"),
		Profile: database.ProfileArchive,
		Name:    "results",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open results database")
	}
	defer resultsDB.Close()

	// Price history keeps its own connection on the cgo sqlite3 driver.
	historyDB, err := prices.OpenHistoryDB(filepath.Join(cfg.HistoryDir(), "history.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	// Event bus and manager carry job progress and data-change events to
	// listeners and connected stream clients.
	bus := events.NewBus(log)
	defer bus.Close()
	eventManager := events.NewManager(bus, log)

	// Repositories
	portfolios, err := portfolio.NewRepository(configDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize portfolio repository")
	}
	archive, err := results.NewRepository(resultsDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize results repository")
	}

	// Services
	provider := prices.NewEODClient(cfg.PriceAPIBaseURL, cfg.PriceAPIKey, log)
	priceService := prices.NewService(historyDB, provider, cfg.PriceLookback, eventManager, log)
	allocation := services.NewAllocationService(priceService, archive, eventManager, log)
	reportService := reports.NewService(archive, historyDB, log)

	// Backups are optional: without bucket credentials the service stays
	// nil and the backup endpoints report it as unconfigured.
	var backupService *backup.Service
	if cfg.Backup.Enabled() {
		s3Client, err := backup.NewS3Client(cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage client")
		}
		backupService = backup.NewService(
			s3Client,
			[]backup.Source{
				{Name: "config", DB: configDB},
				{Name: "results", DB: resultsDB},
				{Name: "history", DB: historyDB},
			},
			cfg.DataDir,
			cfg.Backup.Prefix,
			cfg.Backup.Retention,
			eventManager,
			log,
		)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Cloud backups enabled")
	} else {
		log.Info().Msg("Cloud backups disabled (no bucket configured)")
	}

	// Job queue: a single worker serializes optimizations and maintenance.
	queueManager := queue.NewManager(eventManager, log)
	services.RegisterJobHandlers(queueManager, allocation, priceService, portfolios)
	services.RegisterMaintenanceHandlers(queueManager, []services.CheckpointTarget{
		{Name: "config", DB: configDB},
		{Name: "results", DB: resultsDB},
		{Name: "history", DB: historyDB},
	}, backupService, log)
	queue.RegisterListeners(bus, queueManager, log)
	queueManager.Start()

	// Cron schedules feed the queue.
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.RefreshSchedule, scheduler.NewPriceRefreshJob(queueManager)); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule price refresh")
	}
	if err := sched.AddJob(cfg.CheckpointSchedule, scheduler.NewWALCheckpointJob(queueManager)); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule WAL checkpoint")
	}
	if backupService != nil {
		if err := sched.AddJob(cfg.Backup.Schedule, scheduler.NewBackupJob(queueManager)); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule backup")
		}
	}
	sched.Start()

	if cfg.RefreshOnStartup {
		if err := sched.RunNow(scheduler.NewPriceRefreshJob(queueManager)); err != nil {
			log.Warn().Err(err).Msg("Startup price refresh failed to enqueue")
		}
	}

	// HTTP server
	srv := server.New(server.Config{
		Log:          log,
		Config:       cfg,
		ConfigDB:     configDB,
		ResultsDB:    resultsDB,
		HistoryDB:    historyDB,
		EventBus:     bus,
		EventManager: eventManager,
		Queue:        queueManager,
		Portfolios:   portfolios,
		Results:      archive,
		PriceService: priceService,
		Allocation:   allocation,
		Reports:      reportService,
		Backup:       backupService,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop the scheduler first so no new work is enqueued, then drain the
	// queue worker, then close the HTTP server.
	sched.Stop()
	queueManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
