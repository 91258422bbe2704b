// Package main is the entrypoint for the maintenance Lambda function.
//
// EventBridge triggers it on a fixed schedule. Each invocation runs the
// retention sweeps: expired sessions, spent verification codes, old
// notifications, and usage counters from closed billing periods. The sweep
// report is returned as the Lambda payload for operational visibility.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"advisy/internal/config"
	"advisy/internal/db"
	"advisy/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var provider config.SecretProvider
	if env := os.Getenv("APP_ENV"); env != "" && env != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "maintenance-worker")
	logger.Info("maintenance worker starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	pool, err := db.NewPool(context.Background(), cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}

	cleanup := scheduler.NewCleanupService(
		db.NewSessionRepository(pool),
		db.NewVerificationRepository(pool),
		db.NewNotificationRepository(pool),
		db.NewUsageRepository(pool),
		logger,
	)

	lambda.Start(func(ctx context.Context) (scheduler.CleanupReport, error) {
		return cleanup.Run(ctx)
	})
	return nil
}
