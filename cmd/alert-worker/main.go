package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"lana/internal/cli"
	"lana/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting alert-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	// Initialize SQLite repository
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Initialize AMQP client for publishing payment alerts
	amqpClient := cli.InitAMQP(logger, cfg)
	defer amqpClient.Close()

	processor := services.NewAlertProcessor(repo, amqpClient, cfg.AlertLeadDays)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Fixed payment alert processor configured",
		"interval", cfg.AlertInterval,
		"lead_days", cfg.AlertLeadDays,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.AlertInterval)
	defer ticker.Stop()

	// Run initial processing on startup
	if count, err := processor.ProcessDueAlerts(ctx, time.Now()); err != nil {
		logger.Error("Initial alert processing failed", "error", err)
	} else {
		logger.Info("Initial alert processing complete", "alerts_sent", count)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("alert-worker shutdown complete")
			return
		case now := <-ticker.C:
			count, err := processor.ProcessDueAlerts(ctx, now)
			if err != nil {
				logger.Error("Alert processing failed", "error", err)
				continue
			}
			logger.Info("Alert processing complete",
				"alerts_sent", count,
				"next_check", now.Add(cfg.AlertInterval).Format("15:04:05"))
		}
	}
}
