package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/api"
	"github.com/wonny/aegis-strategy/internal/app"
	cronrunner "github.com/wonny/aegis-strategy/internal/cron"
	"github.com/wonny/aegis-strategy/internal/pkg/config"
	"github.com/wonny/aegis-strategy/internal/pkg/logger"
	"github.com/wonny/aegis-strategy/internal/pkg/market"
	"github.com/wonny/aegis-strategy/internal/pkg/pidfile"
	"github.com/wonny/aegis-strategy/internal/service/scheduler"
	"github.com/wonny/aegis-strategy/internal/service/signalfeed"
	"github.com/wonny/aegis-strategy/internal/service/snapshot"
	"github.com/wonny/aegis-strategy/internal/strategy/registry"
)

const (
	serviceName    = "aegis-strategy-api"
	serviceVersion = "1.0.0"
)

func main() {
	// Set timezone to Asia/Seoul (KST)
	time.Local = market.KST()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	if err := logger.Init(logger.Config{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		FileEnabled:    cfg.Logging.FileEnabled,
		FilePath:       cfg.Logging.FilePath,
		RotationSize:   cfg.Logging.RotationSize,
		RetentionDays:  cfg.Logging.RetentionDays,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("version", serviceVersion).
		Bool("dry_run", cfg.Scheduler.DryRun).
		Msg("🚀 Starting Aegis Strategy API Server...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := app.NewClock(cfg)

	// Ledger
	ledger, err := app.OpenLedger(ctx, cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer ledger.Close()

	// Broker (KIS, or Naver quotes in dry-run)
	broker, err := app.OpenBroker(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize broker")
	}

	// Signal feed
	feed := signalfeed.NewBroker(signalfeed.BrokerConfig{})
	defer feed.Close()

	// Scheduler
	sched := scheduler.NewService(scheduler.Config{
		Ledger:       ledger,
		Gateway:      broker.Gateway,
		Quotes:       broker.Quotes,
		Clock:        clock,
		History:      scheduler.NewHistory(cfg.Scheduler.HistoryPath(), scheduler.DefaultHistorySize),
		StatePath:    cfg.Scheduler.StatePath(),
		DryRun:       cfg.Scheduler.DryRun,
		LoopInterval: cfg.Scheduler.LoopInterval,
		ClosedSleep:  cfg.Scheduler.ClosedSleep,
		OnSignal:     feed.Publish,
	})

	strategies, err := registry.LoadFile(cfg.Scheduler.StrategiesFile, registry.Deps{Quotes: broker.Quotes})
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("path", cfg.Scheduler.StrategiesFile).Msg("⚠️ Strategies file not found, no strategies registered")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to load strategies")
	}
	for _, s := range strategies {
		if err := sched.Register(s); err != nil {
			log.Fatal().Err(err).Str("strategy", s.Strategy.Name()).Msg("Failed to register strategy")
		}
	}
	log.Info().Int("count", len(strategies)).Msg("✅ Strategies registered")

	if sched.RestoreState(ctx) {
		log.Info().Msg("✅ Scheduler restored from saved state")
	}

	// Cron jobs (daily snapshot, close-price backfill)
	var cronRunner *cronrunner.Runner
	if cfg.Cron.Enabled {
		cronRunner = cronrunner.New(logger.Component("cron"), ctx, market.KST())
		snapshots := snapshot.NewService(ledger, broker.Quotes, clock)
		if err := snapshots.Schedule(cronRunner, cfg.Cron.SnapshotSpec, cfg.Cron.BackfillSpec); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule snapshot jobs")
		}
		cronRunner.Start()
		log.Info().Int("jobs", cronRunner.Len()).Msg("✅ Cron jobs scheduled")
	}

	// HTTP
	deps := api.Deps{
		Scheduler:        sched,
		Ledger:           ledger,
		Quotes:           broker.Quotes,
		Broker:           feed,
		SchedulerChecker: sched,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AccessLog:        logger.NewAccessLogWriter(accessLogPath(cfg), cfg.Logging.RotationSize, cfg.Logging.RetentionDays),
		Version:          serviceVersion,
	}
	if ledger.Pool != nil {
		deps.DB = ledger.Pool
	}

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", addr).
			Msg("🎯 API Server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start API server")
		}
	}()

	// quant backend stop 이 이 파일로 프로세스를 찾음
	pidPath := cfg.Scheduler.PIDPath()
	if err := pidfile.Write(pidPath); err != nil {
		log.Warn().Err(err).Str("path", pidPath).Msg("Failed to write pid file")
	}
	defer func() {
		if err := pidfile.Remove(pidPath); err != nil {
			log.Warn().Err(err).Str("path", pidPath).Msg("Failed to remove pid file")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("🛑 Shutdown signal received, stopping server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// 재시작 시 복구되도록 상태 저장 (청산 없음)
	if err := sched.Stop(shutdownCtx, true); err != nil {
		log.Error().Err(err).Msg("Scheduler stop failed")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	if cronRunner != nil {
		cronRunner.Stop()
	}

	log.Info().Msg("👋 Aegis Strategy API Server stopped")
}

// accessLogPath returns "" (stdout) unless file logging is enabled
func accessLogPath(cfg *config.Config) string {
	if !cfg.Logging.FileEnabled {
		return ""
	}
	return cfg.Logging.FilePath
}
