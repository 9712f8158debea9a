// Package main is the entry point for the goal planner service. It sizes
// monthly contributions and corpus splits for household financial goals
// and projects their outcomes over deterministic and simulated paths.
//
// Startup sequence:
// 1. Load configuration from environment variables
// 2. Initialize structured logging
// 3. Open the planner database and seed asset statistics
// 4. Wire the planning engines
// 5. Start the maintenance scheduler and HTTP server
// 6. Wait for shutdown signal and stop gracefully
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

	"github.com/aristath/goalplanner/internal/config"
	"github.com/aristath/goalplanner/internal/database"
	"github.com/aristath/goalplanner/internal/modules/allocation"
	"github.com/aristath/goalplanner/internal/modules/assets"
	"github.com/aristath/goalplanner/internal/modules/envelope"
	"github.com/aristath/goalplanner/internal/modules/planning/planner"
	"github.com/aristath/goalplanner/internal/modules/rebalancing"
	"github.com/aristath/goalplanner/internal/scheduler"
	"github.com/aristath/goalplanner/internal/server"
	"github.com/aristath/goalplanner/pkg/logger"
)

func main() {
	// Load configuration first to get log level
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

	log.Info().Msg("Starting goal planner")

	db, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "planner.db"),
		Name: "planner",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open planner database")
	}
	defer db.Close()

	assetsRepo := assets.NewRepository(db.Conn(), log)
	if err := assetsRepo.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database schema")
	}
	if err := assetsRepo.SeedDefaults(); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed asset statistics")
	}

	// Planning engines
	allocationSvc := allocation.NewService(log)
	envelopeEngine := envelope.NewEngine(log)
	rebalancingSvc := rebalancing.NewService(log)
	goalPlanner := planner.New(allocationSvc, envelopeEngine, rebalancingSvc, log)

	// Maintenance scheduler
	sched := scheduler.New(log)
	statsJob := scheduler.NewStatsRefreshJob(assetsRepo, db, log)
	if err := sched.Register(cfg.StatsRefreshSchedule, statsJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register stats refresh job")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:      log,
		DB:       db,
		Config:   cfg,
		Planner:  goalPlanner,
		Envelope: envelopeEngine,
		Assets:   assetsRepo,
		Port:     cfg.Port,
		DevMode:  cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()
	log.Info().Msg("Scheduler stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
