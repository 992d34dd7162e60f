package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"lana/internal/cli"
	"lana/internal/notify"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting lana-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	// Initialize SQLite repository to record notifications
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Gmail mailer for email delivery (optional)
	var mailer notify.Mailer
	if cfg.NotifyFrom != "" {
		gmailMailer, err := notify.NewGmailMailerFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Gmail mailer", "error", err)
			os.Exit(1)
		}
		mailer = gmailMailer
		logger.Info("Gmail mailer initialized", "from", cfg.NotifyFrom)
	} else {
		logger.Info("Gmail disabled - notifications will only be recorded, not emailed")
	}

	// Initialize AMQP client for consuming notification messages
	amqpClient := cli.InitAMQP(logger, cfg)
	defer amqpClient.Close()

	dispatcher := notify.NewDispatcher(repo, mailer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeNotifications(gctx, dispatcher.Handle)
	})

	logger.Info("Consuming notifications", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Notification consumption failed", "error", err)
		os.Exit(1)
	}

	logger.Info("lana-worker shutdown complete")
}
