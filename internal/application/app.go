// Package application wires the engine's components from configuration.
// Both the HTTP server and the CLI build on it.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/credentials"
	"github.com/JonMunkholm/sheetsync/internal/database"
	"github.com/JonMunkholm/sheetsync/internal/source"
	"github.com/JonMunkholm/sheetsync/internal/web"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	Store   database.Store
	Configs *core.ConfigRepository
	Service *core.Service
	Hub     *web.EventHub

	// CSV is set when the csv adapter is selected.
	CSV *source.CSVDirAdapter

	logger *slog.Logger
}

// Options tweaks what New builds.
type Options struct {
	// WithHub creates the websocket hub and registers it as the notifier.
	WithHub bool
	Logger  *slog.Logger
}

// New opens the store and builds the service stack.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := database.Open(ctx, database.Options{
		Driver:          cfg.Database.Driver,
		URL:             cfg.Database.URL,
		SQLitePath:      cfg.Database.SQLitePath,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("store opened", "driver", cfg.Database.Driver)

	app := &App{Config: cfg, Store: store, logger: logger}

	adapter, err := app.buildAdapter()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	app.Configs = core.NewConfigRepository(store, logger)
	orch := core.NewOrchestrator(app.Configs, store, adapter, app.buildCredentials(), core.OrchestratorOptions{
		Concurrency: cfg.Sync.SourceConcurrency,
		MaxRows:     cfg.Sheets.MaxRows,
	})

	svcOpts := core.ServiceOptions{
		DefaultIntervalMinutes: cfg.Sync.DefaultIntervalMinutes,
		Limiter:                core.NewSyncLimiter(cfg.Sync.MaxManualSyncs, cfg.Sync.ManualSyncWait),
		Scheduler: core.SchedulerOptions{
			MaxBackoff: cfg.Sync.MaxBackoff,
			RunTimeout: cfg.Sync.RunTimeout,
		},
		Logger: logger,
	}
	if opts.WithHub {
		app.Hub = web.NewEventHub(web.HubOptions{
			AllowedOrigins: cfg.Security.AllowedOrigins,
			Logger:         logger,
		})
		svcOpts.Notifier = app.Hub
	}
	app.Service = core.NewService(app.Configs, orch, svcOpts)

	return app, nil
}

func (a *App) buildAdapter() (core.SourceAdapter, error) {
	switch strings.ToLower(a.Config.Sheets.Adapter) {
	case "sheets":
		var opts []source.SheetsOption
		if a.Config.Sheets.Endpoint != "" {
			opts = append(opts, source.WithEndpoint(a.Config.Sheets.Endpoint))
		}
		a.logger.Info("source adapter", "adapter", "sheets", "endpoint", a.Config.Sheets.Endpoint)
		return source.NewSheetsAdapter(opts...), nil
	case "csv":
		csv, err := source.NewCSVDirAdapter(a.Config.CSV.Root)
		if err != nil {
			return nil, err
		}
		a.CSV = csv
		a.logger.Info("source adapter", "adapter", "csv", "root", csv.Root())
		return csv, nil
	default:
		return nil, fmt.Errorf("unknown source adapter %q", a.Config.Sheets.Adapter)
	}
}

// buildCredentials picks a fixed token when one is configured or the
// adapter needs none, and the stored OAuth connections otherwise.
func (a *App) buildCredentials() core.CredentialProvider {
	if a.Config.Sheets.StaticToken != "" || a.CSV != nil {
		return credentials.StaticProvider{Token: a.Config.Sheets.StaticToken}
	}
	return credentials.NewOAuthProvider(a.Store, credentials.OAuthOptions{
		ClientID:      a.Config.Sheets.ClientID,
		ClientSecret:  a.Config.Sheets.ClientSecret,
		TokenURL:      a.Config.Sheets.TokenURL,
		RefreshWindow: a.Config.Sheets.RefreshWindow,
		Logger:        a.logger,
	})
}

// WatchCSV re-syncs projects whose CSV sources change until ctx ends.
// It returns immediately when the csv adapter is not in use.
func (a *App) WatchCSV(ctx context.Context) error {
	if a.CSV == nil {
		return nil
	}
	w, err := source.NewWatcher(a.CSV, a.Config.CSV.Debounce, a.syncChanged, a.logger)
	if err != nil {
		return err
	}
	a.logger.Info("watching csv sources", "root", a.CSV.Root())
	return w.Run(ctx)
}

func (a *App) syncChanged(ctx context.Context, sourceIDs []string) {
	ctx = core.ContextWithTrigger(ctx, core.TriggerWatch)
	seen := make(map[string]bool)

	for _, id := range sourceIDs {
		projects, err := a.Service.ProjectsForSource(ctx, id)
		if err != nil {
			a.logger.Warn("look up projects for source", "source_id", id, "error", err)
			continue
		}
		for _, pid := range projects {
			if seen[pid] {
				continue
			}
			seen[pid] = true

			if _, err := a.Service.SyncNow(ctx, pid); err != nil {
				if errors.Is(err, core.ErrTooManySyncs) {
					a.logger.Warn("skipped watch sync, no free slot", "project_id", pid)
					continue
				}
				a.logger.Error("watch sync failed", "project_id", pid, "error", err)
			}
		}
	}
}

// Close stops the service, disconnects websocket clients and closes the store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Service.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop service: %w", err))
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
