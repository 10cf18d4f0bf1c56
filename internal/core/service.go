package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// SheetLister is implemented by adapters that can enumerate the sheets of a source.
type SheetLister interface {
	ListSheets(ctx context.Context, token, sourceID string) ([]string, error)
}

// ServiceOptions configures a Service. Zero values take defaults.
type ServiceOptions struct {
	// DefaultIntervalMinutes applies to configs saved without an interval (default 60).
	DefaultIntervalMinutes int

	// Notifier receives every completed run, manual or scheduled.
	Notifier Notifier

	// Limiter bounds concurrent manual syncs. Nil means unbounded.
	Limiter *SyncLimiter

	Scheduler SchedulerOptions
	Logger    *slog.Logger
}

// Service exposes the engine's public operations: config management,
// on-demand syncs and the recurring job table.
type Service struct {
	configs   *ConfigRepository
	orch      *Orchestrator
	scheduler *Scheduler
	notifier  Notifier
	limiter   *SyncLimiter
	logger    *slog.Logger

	defaultInterval int
}

// NewService wires a Service. The scheduler it owns runs jobs through orch.
func NewService(configs *ConfigRepository, orch *Orchestrator, opts ServiceOptions) *Service {
	if opts.DefaultIntervalMinutes <= 0 {
		opts.DefaultIntervalMinutes = 60
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Scheduler.Logger == nil {
		opts.Scheduler.Logger = opts.Logger
	}

	s := &Service{
		configs:         configs,
		orch:            orch,
		notifier:        opts.Notifier,
		limiter:         opts.Limiter,
		logger:          opts.Logger,
		defaultInterval: opts.DefaultIntervalMinutes,
	}
	s.scheduler = NewScheduler(s.runScheduled, opts.Scheduler)
	return s
}

// GetConfig returns the config of a project, migrating a legacy document on first read.
func (s *Service) GetConfig(ctx context.Context, projectID string) (ProjectSyncConfig, error) {
	return s.configs.Load(ctx, projectID)
}

// SaveConfig validates and stores cfg, then brings the project's job in line
// with it: auto-sync with at least one active source schedules the job,
// anything else removes it.
func (s *Service) SaveConfig(ctx context.Context, cfg ProjectSyncConfig) (ProjectSyncConfig, error) {
	if cfg.IntervalMinutes == 0 {
		cfg.IntervalMinutes = s.defaultInterval
	}

	saved, err := s.configs.Save(ctx, cfg)
	if err != nil {
		return ProjectSyncConfig{}, err
	}

	if err := s.applySchedule(saved); err != nil {
		return saved, err
	}

	s.logger.Info("sync config saved",
		"project_id", saved.ProjectID,
		"sources", len(saved.Sources),
		"auto_sync", saved.AutoSyncEnabled,
		"interval_minutes", saved.IntervalMinutes,
	)
	return saved, nil
}

// DeleteConfig removes a project's config and its job.
func (s *Service) DeleteConfig(ctx context.Context, projectID string) error {
	if err := s.configs.Delete(ctx, projectID); err != nil {
		return err
	}
	if err := s.scheduler.RemoveJob(projectID, DefaultJobMode); err != nil && !errors.Is(err, ErrJobNotFound) {
		return err
	}
	s.logger.Info("sync config deleted", "project_id", projectID)
	return nil
}

// SyncNow runs a project sync inline. The error is non-nil only when no run
// happened (no free manual slot); sync failures are reported in the result.
func (s *Service) SyncNow(ctx context.Context, projectID string) (SyncResult, error) {
	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return SyncResult{}, err
		}
		defer s.limiter.Release()
	}

	if _, ok := ctx.Value(ctxKeyTrigger).(Trigger); !ok {
		ctx = ContextWithTrigger(ctx, TriggerManual)
	}
	result := s.orch.Run(ctx, projectID)
	s.notify(result)
	return result, nil
}

// AddOrUpdateJob schedules a recurring sync for a project.
func (s *Service) AddOrUpdateJob(projectID, mode string, intervalMinutes int) (SyncJob, error) {
	return s.scheduler.AddOrUpdateJob(projectID, mode, intervalMinutes)
}

// RemoveJob cancels a project's recurring sync.
func (s *Service) RemoveJob(projectID, mode string) error {
	return s.scheduler.RemoveJob(projectID, mode)
}

// GetJobStatus returns a snapshot of one job.
func (s *Service) GetJobStatus(projectID, mode string) (SyncJob, error) {
	return s.scheduler.JobStatus(projectID, mode)
}

// ListJobs returns every scheduled job.
func (s *Service) ListJobs() []SyncJob {
	return s.scheduler.Jobs()
}

// Bootstrap schedules every saved config that has auto-sync enabled and an
// active source. It returns the number of jobs scheduled.
func (s *Service) Bootstrap(ctx context.Context) (int, error) {
	cfgs, err := s.configs.List(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, cfg := range cfgs {
		if !wantsSchedule(cfg) {
			continue
		}
		interval := cfg.IntervalMinutes
		if interval <= 0 {
			interval = s.defaultInterval
		}
		if _, err := s.scheduler.AddOrUpdateJob(cfg.ProjectID, DefaultJobMode, interval); err != nil {
			s.logger.Warn("bootstrap job failed", "project_id", cfg.ProjectID, "error", err)
			continue
		}
		n++
	}

	s.logger.Info("scheduler bootstrapped", "configs", len(cfgs), "jobs", n)
	return n, nil
}

// ProjectsForSource returns the projects with an active source reading sourceID.
func (s *Service) ProjectsForSource(ctx context.Context, sourceID string) ([]string, error) {
	cfgs, err := s.configs.List(ctx)
	if err != nil {
		return nil, err
	}

	var projects []string
	for _, cfg := range cfgs {
		for _, src := range cfg.ActiveSources() {
			if src.SpreadsheetID == sourceID {
				projects = append(projects, cfg.ProjectID)
				break
			}
		}
	}
	return projects, nil
}

// ListSheets returns the sheet names of one of a project's sources.
func (s *Service) ListSheets(ctx context.Context, projectID, sourceID string) ([]string, error) {
	cfg, err := s.configs.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	src, ok := cfg.FindSource(sourceID)
	if !ok {
		return nil, &ConfigError{SourceID: sourceID, Reason: "source not found in project"}
	}

	lister, ok := s.orch.adapter.(SheetLister)
	if !ok {
		return nil, fmt.Errorf("invalid request: source adapter cannot list sheets")
	}

	token, err := s.orch.creds.GetValidAccessToken(ctx, projectID)
	if err != nil {
		var ae *AuthError
		if !errors.As(err, &ae) {
			err = &AuthError{ProjectID: projectID, Err: err}
		}
		return nil, err
	}

	sheets, err := lister.ListSheets(ctx, token, src.SpreadsheetID)
	if err != nil {
		return nil, &FetchError{SourceID: src.ID, Err: err}
	}
	return sheets, nil
}

// LimiterStatus reports manual sync slots; ok is false when unbounded.
func (s *Service) LimiterStatus() (status SyncLimiterStatus, ok bool) {
	if s.limiter == nil {
		return SyncLimiterStatus{}, false
	}
	return s.limiter.Status(), true
}

// Stop halts the scheduler and waits for in-flight manual runs.
func (s *Service) Stop(ctx context.Context) error {
	if err := s.scheduler.Stop(ctx); err != nil {
		return err
	}
	if s.limiter != nil {
		return s.limiter.WaitForDrain(ctx)
	}
	return nil
}

func (s *Service) runScheduled(ctx context.Context, projectID string) SyncResult {
	result := s.orch.Run(ContextWithTrigger(ctx, TriggerScheduled), projectID)
	s.notify(result)
	return result
}

func (s *Service) notify(result SyncResult) {
	if s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync notifier panicked", "project_id", result.ProjectID, "panic", r)
		}
	}()
	s.notifier.SyncCompleted(result)
}

func (s *Service) applySchedule(cfg ProjectSyncConfig) error {
	if wantsSchedule(cfg) {
		_, err := s.scheduler.AddOrUpdateJob(cfg.ProjectID, DefaultJobMode, cfg.IntervalMinutes)
		return err
	}
	if err := s.scheduler.RemoveJob(cfg.ProjectID, DefaultJobMode); err != nil && !errors.Is(err, ErrJobNotFound) {
		return err
	}
	return nil
}

func wantsSchedule(cfg ProjectSyncConfig) bool {
	return cfg.AutoSyncEnabled && len(cfg.ActiveSources()) > 0
}
