package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fixdesk/hub/internal/config"
	"github.com/fixdesk/hub/internal/observability"
	"github.com/fixdesk/hub/pkg/database"
)

const (
	dbMaxConnLifetime = 30 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)

		return 1
	}

	slog.SetDefault(observability.NewLogger(os.Stdout, cfg.LogLevel))

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL,
		database.WithMaxConns(int32(cfg.DatabaseMaxConns)), //nolint:gosec // validated positive in config
		database.WithMaxConnLifetime(dbMaxConnLifetime),
	)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return 1
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		slog.Error("Failed to apply migrations", "error", err)

		return 1
	}

	app, err := NewApp(cfg, db)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)

		return 1
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := 0

	if err := app.Run(sigCtx); err != nil {
		slog.Error("Server error", "error", err)

		exitCode = 1
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)

		exitCode = 1
	}

	slog.Info("Server exited")

	return exitCode
}
