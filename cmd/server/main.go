package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sheetsync/internal/admin"
	"github.com/JonMunkholm/sheetsync/internal/application"
	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, logging.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.FileMaxSizeMB,
		MaxBackups: cfg.Logging.FileMaxBackups,
	})

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"source_adapter", cfg.Sheets.Adapter,
		"max_manual_syncs", cfg.Sync.MaxManualSyncs,
	)

	ctx := context.Background()
	app, err := application.New(ctx, cfg, application.Options{WithHub: true})
	if err != nil {
		slog.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.Sync.Bootstrap {
		if _, err := app.Service.Bootstrap(ctx); err != nil {
			slog.Error("failed to bootstrap scheduler", "error", err)
		}
	}

	// Background jobs stop when the shutdown signal arrives.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	if cfg.CSV.Watch {
		go func() {
			if err := app.WatchCSV(jobCtx); err != nil {
				slog.Error("csv watcher stopped", "error", err)
			}
		}()
	}

	server := web.NewServer(app.Service, app.Hub, web.Options{
		Security:       cfg.Security,
		RequestTimeout: cfg.Server.RequestTimeout,
		SyncTimeout:    cfg.Sync.RunTimeout,
		Resetter:       &admin.Resetter{Records: app.Store, Configs: app.Store},
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if status, ok := app.Service.LimiterStatus(); ok && status.Active > 0 {
			slog.Info("waiting for syncs to complete", "active", status.Active)
		}
		if err := app.Close(shutdownCtx); err != nil {
			slog.Warn("engine did not stop cleanly", "error", err)
		}
	}()

	if err := server.Start(cfg.Server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		_ = app.Close(context.Background())
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
