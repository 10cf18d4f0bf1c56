// Package admin provides administrative operations on stored sync data.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// ResetTimeout is the maximum duration for reset operations.
const ResetTimeout = 30 * time.Second

// RecordDeleter removes synced rows of a project.
type RecordDeleter interface {
	DeleteRecords(ctx context.Context, projectID, sourceName string) (int64, error)
}

// ConfigDeleter removes a project's sync config.
type ConfigDeleter interface {
	DeleteConfig(ctx context.Context, projectID string) error
}

// ResetResult reports what a reset removed.
type ResetResult struct {
	Records       int64
	ConfigDeleted bool
}

// Resetter clears synced data so the next run re-inserts everything.
// It is destructive: use with caution.
type Resetter struct {
	Records RecordDeleter
	Configs ConfigDeleter // optional; required only for full resets
	Logger  *slog.Logger
}

type resetFn func(ctx context.Context, res *ResetResult) error

// ResetRecords deletes a project's records. An empty sourceName deletes
// every source of the project.
func (r *Resetter) ResetRecords(ctx context.Context, projectID, sourceName string) (ResetResult, error) {
	return r.run(ctx, projectID, r.deleteRecords(projectID, sourceName))
}

// ResetProject deletes a project's records and then its config.
func (r *Resetter) ResetProject(ctx context.Context, projectID string) (ResetResult, error) {
	if r.Configs == nil {
		return ResetResult{}, errors.New("reset project: no config store")
	}
	return r.run(ctx, projectID,
		r.deleteRecords(projectID, ""),
		func(ctx context.Context, res *ResetResult) error {
			err := r.Configs.DeleteConfig(ctx, projectID)
			if errors.Is(err, core.ErrConfigNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("delete sync config: %w", err)
			}
			res.ConfigDeleted = true
			return nil
		},
	)
}

func (r *Resetter) deleteRecords(projectID, sourceName string) resetFn {
	return func(ctx context.Context, res *ResetResult) error {
		n, err := r.Records.DeleteRecords(ctx, projectID, sourceName)
		if err != nil {
			return fmt.Errorf("delete records: %w", err)
		}
		res.Records += n
		return nil
	}
}

func (r *Resetter) run(ctx context.Context, projectID string, resets ...resetFn) (ResetResult, error) {
	if projectID == "" {
		return ResetResult{}, errors.New("invalid request: project id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	var res ResetResult
	for _, reset := range resets {
		if err := reset(ctx, &res); err != nil {
			return res, err
		}
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("project reset",
		"project_id", projectID,
		"records", res.Records,
		"config_deleted", res.ConfigDeleted,
	)
	return res, nil
}
