// Package core provides the synchronization engine.
// This package has no transport dependencies and can be driven by the HTTP API,
// the CLI, or tests.
package core

import (
	"context"
	"time"
)

// SyncMode selects how sheet rows become records.
type SyncMode string

const (
	ModeAggregate  SyncMode = "aggregate"
	ModeIndividual SyncMode = "individual"
)

// SyncStatus is the outcome of the latest run recorded on a project config.
type SyncStatus string

const (
	StatusSuccess SyncStatus = "success"
	StatusError   SyncStatus = "error"
	StatusSyncing SyncStatus = "syncing"
)

// CurrentSchemaVersion is the config document version written by this engine.
const CurrentSchemaVersion = 2

// ColumnMapping describes what a single sheet column holds.
type ColumnMapping struct {
	SemanticKey    string `json:"semanticKey" yaml:"semanticKey" validate:"required"`
	DisplayName    string `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	IsCustomMetric bool   `json:"isCustomMetric,omitempty" yaml:"isCustomMetric,omitempty"`
}

// SourceConfig is one spreadsheet-like source of a project.
type SourceConfig struct {
	ID             string                   `json:"id" yaml:"id"`
	Name           string                   `json:"name,omitempty" yaml:"name,omitempty"`
	SpreadsheetID  string                   `json:"spreadsheetId" yaml:"spreadsheetId" validate:"required"`
	Sheets         []string                 `json:"sheets" yaml:"sheets" validate:"required,min=1,dive,required"`
	ColumnMappings map[string]ColumnMapping `json:"columnMappings" yaml:"columnMappings" validate:"dive,keys,column_letter,endkeys"`
	SyncMode       SyncMode                 `json:"syncMode" yaml:"syncMode" validate:"required,oneof=aggregate individual"`
	UniqueIDColumn string                   `json:"uniqueIdColumn,omitempty" yaml:"uniqueIdColumn,omitempty" validate:"omitempty,column_letter"`
	RecordType     string                   `json:"recordType,omitempty" yaml:"recordType,omitempty"`
	AmountColumn   string                   `json:"amountColumn,omitempty" yaml:"amountColumn,omitempty" validate:"omitempty,column_letter"`
	StatusColumn   string                   `json:"statusColumn,omitempty" yaml:"statusColumn,omitempty" validate:"omitempty,column_letter"`
	IsActive       bool                     `json:"isActive" yaml:"isActive"`
}

// SourceName returns the label stored on records from this source.
func (s SourceConfig) SourceName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// ProjectSyncConfig owns all sources of a project plus scheduling and status fields.
type ProjectSyncConfig struct {
	ProjectID       string         `json:"projectId" yaml:"projectId" validate:"required"`
	SchemaVersion   int            `json:"schemaVersion" yaml:"schemaVersion"`
	Sources         []SourceConfig `json:"sources" yaml:"sources" validate:"dive"`
	AutoSyncEnabled bool           `json:"autoSyncEnabled" yaml:"autoSyncEnabled"`
	IntervalMinutes int            `json:"intervalMinutes" yaml:"intervalMinutes" validate:"gte=0,lte=10080"`
	LastSyncAt      *time.Time     `json:"lastSyncAt,omitempty" yaml:"-"`
	LastSyncStatus  SyncStatus     `json:"lastSyncStatus,omitempty" yaml:"-"`
	LastSyncError   string         `json:"lastSyncError,omitempty" yaml:"-"`
}

// ActiveSources returns sources with IsActive set, in configured order.
func (c ProjectSyncConfig) ActiveSources() []SourceConfig {
	var active []SourceConfig
	for _, s := range c.Sources {
		if s.IsActive {
			active = append(active, s)
		}
	}
	return active
}

// FindSource returns the source with the given id or spreadsheet id.
func (c ProjectSyncConfig) FindSource(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id || s.SpreadsheetID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// AggregateRecord holds one day of metrics for a (project, source) pair.
// Natural key: (ProjectID, Date, SourceName).
type AggregateRecord struct {
	ProjectID   string         `json:"projectId"`
	Date        string         `json:"date"`
	SourceName  string         `json:"sourceName"`
	Impressions *float64       `json:"impressions,omitempty"`
	Clicks      *float64       `json:"clicks,omitempty"`
	AmountSpent *float64       `json:"amountSpent,omitempty"`
	Conversions *float64       `json:"conversions,omitempty"`
	Revenue     *float64       `json:"revenue,omitempty"`
	Leads       *float64       `json:"leads,omitempty"`
	Reach       *float64       `json:"reach,omitempty"`
	CustomData  map[string]any `json:"customData,omitempty"`
}

// Key returns the natural key within a (project, source) batch.
func (r AggregateRecord) Key() string { return r.Date }

// IndividualRecord is one business entity (sale, lead, call, ...).
// Natural key: (ProjectID, SourceName, RecordID).
type IndividualRecord struct {
	ProjectID  string         `json:"projectId"`
	SourceName string         `json:"sourceName"`
	RecordID   string         `json:"recordId"`
	Date       string         `json:"date"`
	RecordType string         `json:"recordType"`
	Amount     *float64       `json:"amount,omitempty"`
	Status     *string        `json:"status,omitempty"`
	RecordData map[string]any `json:"recordData,omitempty"`
}

// Key returns the natural key within a (project, source) batch.
func (r IndividualRecord) Key() string { return r.RecordID }

// MergeResult counts the outcome of one merged batch.
type MergeResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
}

// UnitResult is the outcome of one (source, sheet) unit.
type UnitResult struct {
	SourceID  string `json:"sourceId"`
	SheetName string `json:"sheetName"`
	Success   bool   `json:"success"`
	Inserted  int    `json:"inserted"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	Errors    int    `json:"errors"`
	Error     string `json:"error,omitempty"`
}

// SyncResult is the structured outcome of a project run.
// It is returned instead of an error so callers can always render it.
type SyncResult struct {
	ProjectID string        `json:"projectId"`
	RunID     string        `json:"runId"`
	Success   bool          `json:"success"`
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	Units     []UnitResult  `json:"units"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// StoredConfig is the persisted row of a project config.
// Document holds the versioned sources document.
type StoredConfig struct {
	ProjectID       string
	SchemaVersion   int
	Document        []byte
	AutoSyncEnabled bool
	IntervalMinutes int
	LastSyncAt      *time.Time
	LastSyncStatus  SyncStatus
	LastSyncError   string
}

// SyncStatusUpdate is the write-back applied after (and at the start of) a run.
type SyncStatusUpdate struct {
	LastSyncAt     *time.Time
	LastSyncStatus SyncStatus
	LastSyncError  string
}

// ConfigStore persists project configs.
// Implementations return ErrConfigNotFound for unknown projects.
type ConfigStore interface {
	LoadConfig(ctx context.Context, projectID string) (StoredConfig, error)
	SaveConfig(ctx context.Context, cfg StoredConfig) error
	UpdateSyncStatus(ctx context.Context, projectID string, update SyncStatusUpdate) error
	ListConfigs(ctx context.Context) ([]StoredConfig, error)
	DeleteConfig(ctx context.Context, projectID string) error
}

// RecordStore is the keyed store of synced records.
// Find* return the subset of keys already present; Upsert* are insert-or-replace by natural key.
type RecordStore interface {
	FindExistingAggregates(ctx context.Context, projectID, sourceName string, dates []string) (map[string]bool, error)
	UpsertAggregate(ctx context.Context, rec AggregateRecord) error
	FindExistingIndividuals(ctx context.Context, projectID, sourceName string, recordIDs []string) (map[string]bool, error)
	UpsertIndividual(ctx context.Context, rec IndividualRecord) error
}

// SourceAdapter fetches a raw grid of cells for a source and A1 range.
type SourceAdapter interface {
	FetchRows(ctx context.Context, token, sourceID, rangeSpec string) ([][]string, error)
}

// CredentialProvider returns a currently valid access token for a project.
type CredentialProvider interface {
	GetValidAccessToken(ctx context.Context, projectID string) (string, error)
}

// Notifier receives completed run results (websocket hub, tests).
type Notifier interface {
	SyncCompleted(result SyncResult)
}
