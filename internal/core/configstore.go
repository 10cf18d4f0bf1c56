package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ConfigRepository decodes, migrates and persists project configs on top of a ConfigStore.
type ConfigRepository struct {
	store  ConfigStore
	logger *slog.Logger
}

// NewConfigRepository creates a repository over store.
func NewConfigRepository(store ConfigStore, logger *slog.Logger) *ConfigRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigRepository{store: store, logger: logger}
}

// Load returns the config of a project. A legacy document is migrated and
// the migrated form is persisted, so later loads read version 2 only.
func (r *ConfigRepository) Load(ctx context.Context, projectID string) (ProjectSyncConfig, error) {
	stored, err := r.store.LoadConfig(ctx, projectID)
	if err != nil {
		return ProjectSyncConfig{}, err
	}
	return r.decodeAndMigrate(ctx, stored)
}

// List returns every saved config. Documents that fail to decode are logged and skipped.
func (r *ConfigRepository) List(ctx context.Context) ([]ProjectSyncConfig, error) {
	rows, err := r.store.ListConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sync configs: %w", err)
	}

	out := make([]ProjectSyncConfig, 0, len(rows))
	for _, stored := range rows {
		cfg, err := r.decodeAndMigrate(ctx, stored)
		if err != nil {
			r.logger.Warn("skipping unreadable sync config", "project_id", stored.ProjectID, "error", err)
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Save validates and persists cfg as a version 2 document.
// Sources without an id get a new one. Status fields are not written.
func (r *ConfigRepository) Save(ctx context.Context, cfg ProjectSyncConfig) (ProjectSyncConfig, error) {
	cfg.SchemaVersion = CurrentSchemaVersion
	for i := range cfg.Sources {
		if cfg.Sources[i].ID == "" {
			cfg.Sources[i].ID = uuid.NewString()
		}
	}

	if err := cfg.Validate(); err != nil {
		return ProjectSyncConfig{}, err
	}

	stored, err := encodeConfig(cfg)
	if err != nil {
		return ProjectSyncConfig{}, err
	}
	if err := r.store.SaveConfig(ctx, stored); err != nil {
		return ProjectSyncConfig{}, fmt.Errorf("save sync config: %w", err)
	}

	// Re-read so the caller sees the preserved status fields.
	return r.Load(ctx, cfg.ProjectID)
}

// UpdateStatus writes the run status fields of a project.
func (r *ConfigRepository) UpdateStatus(ctx context.Context, projectID string, update SyncStatusUpdate) error {
	return r.store.UpdateSyncStatus(ctx, projectID, update)
}

// Delete removes a project config.
func (r *ConfigRepository) Delete(ctx context.Context, projectID string) error {
	return r.store.DeleteConfig(ctx, projectID)
}

func (r *ConfigRepository) decodeAndMigrate(ctx context.Context, stored StoredConfig) (ProjectSyncConfig, error) {
	cfg, migrated, err := DecodeConfig(stored)
	if err != nil {
		return ProjectSyncConfig{}, err
	}
	if !migrated {
		return cfg, nil
	}

	enc, err := encodeConfig(cfg)
	if err != nil {
		return ProjectSyncConfig{}, err
	}
	if err := r.store.SaveConfig(ctx, enc); err != nil {
		return ProjectSyncConfig{}, fmt.Errorf("persist migrated sync config: %w", err)
	}
	r.logger.Info("migrated legacy sync config",
		"project_id", cfg.ProjectID,
		"from_version", stored.SchemaVersion,
		"to_version", CurrentSchemaVersion,
	)
	return cfg, nil
}

// DecodeConfig turns a stored row into a config. migrated is true when the
// row held a legacy document.
func DecodeConfig(stored StoredConfig) (cfg ProjectSyncConfig, migrated bool, err error) {
	cfg = ProjectSyncConfig{
		ProjectID:       stored.ProjectID,
		SchemaVersion:   CurrentSchemaVersion,
		AutoSyncEnabled: stored.AutoSyncEnabled,
		IntervalMinutes: stored.IntervalMinutes,
		LastSyncAt:      stored.LastSyncAt,
		LastSyncStatus:  stored.LastSyncStatus,
		LastSyncError:   stored.LastSyncError,
	}

	switch stored.SchemaVersion {
	case 0, 1:
		var v1 ConfigV1
		if err := json.Unmarshal(stored.Document, &v1); err != nil {
			return ProjectSyncConfig{}, false, fmt.Errorf("decode v1 sync config for %s: %w", stored.ProjectID, err)
		}
		cfg.Sources = MigrateV1ToV2(v1).Sources
		return cfg, true, nil
	case CurrentSchemaVersion:
		var v2 ConfigV2
		if err := json.Unmarshal(stored.Document, &v2); err != nil {
			return ProjectSyncConfig{}, false, fmt.Errorf("decode sync config for %s: %w", stored.ProjectID, err)
		}
		cfg.Sources = v2.Sources
		return cfg, false, nil
	default:
		return ProjectSyncConfig{}, false, fmt.Errorf("sync config for %s has unsupported schema version %d", stored.ProjectID, stored.SchemaVersion)
	}
}

func encodeConfig(cfg ProjectSyncConfig) (StoredConfig, error) {
	doc, err := json.Marshal(ConfigV2{SchemaVersion: CurrentSchemaVersion, Sources: cfg.Sources})
	if err != nil {
		return StoredConfig{}, fmt.Errorf("encode sync config: %w", err)
	}
	return StoredConfig{
		ProjectID:       cfg.ProjectID,
		SchemaVersion:   CurrentSchemaVersion,
		Document:        doc,
		AutoSyncEnabled: cfg.AutoSyncEnabled,
		IntervalMinutes: cfg.IntervalMinutes,
	}, nil
}

// isNotFound reports whether err is ErrConfigNotFound.
func isNotFound(err error) bool {
	return errors.Is(err, ErrConfigNotFound)
}
