package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/sheetsync/internal/logging"
)

// OrchestratorOptions tunes a project run.
type OrchestratorOptions struct {
	// Concurrency is the number of sources processed in parallel (default 1).
	// Sheets of one source always run in order.
	Concurrency int

	// MaxRows is the last row requested from each sheet (default 1000).
	MaxRows int

	// Now is the clock used for timestamps; defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs a project's sources through fetch, mapping and merge.
type Orchestrator struct {
	configs *ConfigRepository
	merger  *Merger
	adapter SourceAdapter
	creds   CredentialProvider
	mapper  Mapper
	opts    OrchestratorOptions
}

// NewOrchestrator wires the run pipeline.
func NewOrchestrator(configs *ConfigRepository, records RecordStore, adapter SourceAdapter, creds CredentialProvider, opts OrchestratorOptions) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		configs: configs,
		merger:  NewMerger(records, nil),
		adapter: adapter,
		creds:   creds,
		mapper:  Mapper{Now: opts.Now},
		opts:    opts,
	}
}

// Run syncs every active (source, sheet) unit of a project.
//
// A unit failure is recorded and the remaining units still run. Success is
// true only when every unit succeeded; counts are summed regardless. The
// project status is written back after the run. Run never panics or returns
// an error: all failures are reported in the result.
func (o *Orchestrator) Run(ctx context.Context, projectID string) SyncResult {
	result := SyncResult{
		ProjectID: projectID,
		RunID:     uuid.NewString(),
		StartedAt: o.opts.Now(),
		Units:     []UnitResult{},
	}
	logger := logging.WithFields(ctx,
		"project_id", projectID,
		"run_id", result.RunID,
		"trigger", string(TriggerFromContext(ctx)),
	)
	logger.Info("sync started")

	defer func() {
		result.Duration = o.opts.Now().Sub(result.StartedAt)
		logger.Info("sync completed",
			"success", result.Success,
			"inserted", result.Inserted,
			"updated", result.Updated,
			"skipped", result.Skipped,
			"errors", result.Errors,
			"units", len(result.Units),
			"duration_ms", result.Duration.Milliseconds(),
		)
	}()

	cfg, err := o.configs.Load(ctx, projectID)
	if err != nil {
		if isNotFound(err) {
			err = &ConfigError{Reason: ErrConfigNotFound.Error()}
		}
		result.Error = err.Error()
		logger.Error("load sync config failed", "error", err)
		return result
	}

	o.writeStatus(ctx, logger, projectID, SyncStatusUpdate{
		LastSyncAt:     cfg.LastSyncAt,
		LastSyncStatus: StatusSyncing,
	})

	active := cfg.ActiveSources()
	if len(active) == 0 {
		result.Success = true
		o.finish(ctx, logger, &result)
		return result
	}

	token, err := o.creds.GetValidAccessToken(ctx, projectID)
	if err != nil {
		var ae *AuthError
		if !errors.As(err, &ae) {
			err = &AuthError{ProjectID: projectID, Err: err}
		}
		result.Error = err.Error()
		logger.Error("credential lookup failed", "error", err)
		o.finish(ctx, logger, &result)
		return result
	}

	perSource := make([][]UnitResult, len(active))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for i, src := range active {
		g.Go(func() error {
			perSource[i] = o.syncSource(gctx, logger, token, projectID, src)
			return nil
		})
	}
	_ = g.Wait()

	result.Success = true
	for _, units := range perSource {
		for _, u := range units {
			result.Units = append(result.Units, u)
			result.Inserted += u.Inserted
			result.Updated += u.Updated
			result.Skipped += u.Skipped
			result.Errors += u.Errors
			if !u.Success {
				result.Success = false
				if result.Error == "" {
					result.Error = u.Error
				}
			}
		}
	}

	o.finish(ctx, logger, &result)
	return result
}

// finish writes the final status of a run that loaded its config.
func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, result *SyncResult) {
	now := o.opts.Now()
	update := SyncStatusUpdate{LastSyncAt: &now, LastSyncStatus: StatusSuccess}
	if !result.Success {
		update.LastSyncStatus = StatusError
		update.LastSyncError = result.Error
	}
	// A cancelled request must not leave the project stuck in "syncing".
	o.writeStatus(context.WithoutCancel(ctx), logger, result.ProjectID, update)
}

func (o *Orchestrator) writeStatus(ctx context.Context, logger *slog.Logger, projectID string, update SyncStatusUpdate) {
	if err := o.configs.UpdateStatus(ctx, projectID, update); err != nil {
		logger.Warn("sync status write-back failed", "status", update.LastSyncStatus, "error", err)
	}
}

// syncSource runs the sheets of one source in order.
//
// Records are keyed by the source, not the sheet: every sheet is fetched and
// mapped first, then aggregate rows sharing a date are summed across sheets
// and individual rows sharing an id keep the later sheet's row. Each combined
// record is merged by the unit that owns it, so counts stay per sheet.
func (o *Orchestrator) syncSource(ctx context.Context, logger *slog.Logger, token, projectID string, src SourceConfig) []UnitResult {
	sheets := src.Sheets
	if len(sheets) == 0 {
		sheets = []string{""}
	}

	if err := src.ValidateForSync(); err != nil {
		logger.Warn("source skipped", "source_id", src.ID, "error", err)
		units := make([]UnitResult, 0, len(sheets))
		for _, sheet := range sheets {
			units = append(units, UnitResult{SourceID: src.ID, SheetName: sheet, Error: err.Error()})
		}
		return units
	}

	units := make([]UnitResult, len(sheets))
	mapped := make([]sheetRecords, len(sheets))
	for i, sheet := range sheets {
		units[i] = UnitResult{SourceID: src.ID, SheetName: sheet}
		unitLogger := logger.With("source_id", src.ID, "sheet", sheet)
		guard(unitLogger, &units[i], func() {
			mapped[i] = o.loadSheet(ctx, unitLogger, token, projectID, src, &units[i])
		})
	}

	sourceName := src.SourceName()
	switch src.SyncMode {
	case ModeIndividual:
		recs, owners := combineIndividuals(mapped)
		for i := range units {
			if !mapped[i].ok {
				continue
			}
			batch := ownedBy(recs, owners, i)
			o.mergeUnit(ctx, logger, src, &units[i], len(batch), func() (MergeResult, error) {
				return o.merger.MergeIndividuals(ctx, projectID, sourceName, batch)
			})
		}
	default:
		recs, owners := combineAggregates(mapped)
		for i := range units {
			if !mapped[i].ok {
				continue
			}
			batch := ownedBy(recs, owners, i)
			o.mergeUnit(ctx, logger, src, &units[i], len(batch), func() (MergeResult, error) {
				return o.merger.MergeAggregates(ctx, projectID, sourceName, batch)
			})
		}
	}
	return units
}

// sheetRecords holds the mapped rows of one sheet.
type sheetRecords struct {
	ok          bool
	aggregates  []AggregateRecord
	individuals []IndividualRecord
}

// guard records a panic in fn as a unit failure.
func guard(logger *slog.Logger, unit *UnitResult, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			unit.Success = false
			unit.Error = fmt.Sprintf("unit panicked: %v", r)
			logger.Error("sync unit panicked", "panic", r)
		}
	}()
	fn()
}

// loadSheet fetches and maps one sheet. Failures are recorded on unit.
func (o *Orchestrator) loadSheet(ctx context.Context, logger *slog.Logger, token, projectID string, src SourceConfig, unit *UnitResult) sheetRecords {
	if unit.SheetName == "" {
		unit.Error = (&ConfigError{SourceID: src.ID, Reason: "no sheets selected"}).Error()
		return sheetRecords{}
	}

	rangeSpec := BuildRange(unit.SheetName, LastMappedColumn(src), o.opts.MaxRows)
	rows, err := o.adapter.FetchRows(ctx, token, src.SpreadsheetID, rangeSpec)
	if err != nil {
		fe := &FetchError{SourceID: src.ID, Range: rangeSpec, Err: err}
		unit.Error = fe.Error()
		logger.Warn("fetch failed", "range", rangeSpec, "error", err)
		return sheetRecords{}
	}

	var (
		out     = sheetRecords{ok: true}
		dropped []*ParseError
	)
	switch src.SyncMode {
	case ModeIndividual:
		batch, err := o.mapper.Individual(rows, src, projectID, src.SourceName())
		if err != nil {
			unit.Error = err.Error()
			return sheetRecords{}
		}
		out.individuals, dropped = batch.Records, batch.Dropped
	default:
		batch, err := o.mapper.Aggregate(rows, src, projectID, src.SourceName())
		if err != nil {
			unit.Error = err.Error()
			return sheetRecords{}
		}
		out.aggregates, dropped = batch.Records, batch.Dropped
	}

	for _, pe := range dropped {
		logger.Debug("row dropped", "error", pe)
	}
	unit.Skipped = len(dropped)
	logger.Debug("sheet mapped", "rows", len(rows), "records", len(out.aggregates)+len(out.individuals), "skipped", unit.Skipped)
	return out
}

// mergeUnit writes the records owned by one unit and fills in its counts.
func (o *Orchestrator) mergeUnit(ctx context.Context, logger *slog.Logger, src SourceConfig, unit *UnitResult, total int, merge func() (MergeResult, error)) {
	logger = logger.With("source_id", src.ID, "sheet", unit.SheetName)
	guard(logger, unit, func() {
		merged, err := merge()
		if err != nil {
			unit.Error = err.Error()
			return
		}

		unit.Inserted = merged.Inserted
		unit.Updated = merged.Updated
		unit.Errors = merged.Errors
		unit.Success = merged.Errors == 0
		if merged.Errors > 0 {
			unit.Error = fmt.Sprintf("merge: %d of %d records failed to write", merged.Errors, total)
		}

		logger.Debug("sync unit completed",
			"inserted", unit.Inserted,
			"updated", unit.Updated,
			"skipped", unit.Skipped,
			"errors", unit.Errors,
		)
	})
}

// combineAggregates sums rows sharing a date across sheets. A combined record
// is owned by the first sheet that produced its date.
func combineAggregates(sheets []sheetRecords) ([]AggregateRecord, []int) {
	var (
		recs   []AggregateRecord
		owners []int
		byDate = make(map[string]int)
	)
	for i, sh := range sheets {
		for _, rec := range sh.aggregates {
			if pos, ok := byDate[rec.Date]; ok {
				sumAggregate(&recs[pos], rec)
				continue
			}
			byDate[rec.Date] = len(recs)
			recs = append(recs, rec)
			owners = append(owners, i)
		}
	}
	return recs, owners
}

// combineIndividuals keeps the later sheet's row for ids present in several
// sheets. Ownership moves with the row.
func combineIndividuals(sheets []sheetRecords) ([]IndividualRecord, []int) {
	var (
		recs   []IndividualRecord
		owners []int
		byID   = make(map[string]int)
	)
	for i, sh := range sheets {
		for _, rec := range sh.individuals {
			if pos, ok := byID[rec.RecordID]; ok {
				recs[pos] = rec
				owners[pos] = i
				continue
			}
			byID[rec.RecordID] = len(recs)
			recs = append(recs, rec)
			owners = append(owners, i)
		}
	}
	return recs, owners
}

func ownedBy[T any](recs []T, owners []int, unit int) []T {
	var out []T
	for i, rec := range recs {
		if owners[i] == unit {
			out = append(out, rec)
		}
	}
	return out
}
