package core

import (
	"context"
	"log/slog"
)

// Merger reconciles mapped records with the record store.
//
// Each batch costs one existence query; every record is then written with a
// single insert-or-replace keyed on its natural key, so replaying an unchanged
// batch reports updates and leaves the stored state identical.
type Merger struct {
	store  RecordStore
	logger *slog.Logger
}

// NewMerger creates a Merger writing to store.
func NewMerger(store RecordStore, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{store: store, logger: logger}
}

// MergeAggregates upserts one (project, source) batch of aggregate records.
// A failed lookup fails the batch with a MergeError; a failed upsert is counted in Errors.
func (m *Merger) MergeAggregates(ctx context.Context, projectID, sourceName string, records []AggregateRecord) (MergeResult, error) {
	if len(records) == 0 {
		return MergeResult{}, nil
	}

	existing, err := m.store.FindExistingAggregates(ctx, projectID, sourceName, naturalKeys(records))
	if err != nil {
		return MergeResult{}, &MergeError{Err: err}
	}

	return mergeBatch(ctx, m.logger, records, existing, m.store.UpsertAggregate), nil
}

// MergeIndividuals upserts one (project, source) batch of individual records.
func (m *Merger) MergeIndividuals(ctx context.Context, projectID, sourceName string, records []IndividualRecord) (MergeResult, error) {
	if len(records) == 0 {
		return MergeResult{}, nil
	}

	existing, err := m.store.FindExistingIndividuals(ctx, projectID, sourceName, naturalKeys(records))
	if err != nil {
		return MergeResult{}, &MergeError{Err: err}
	}

	return mergeBatch(ctx, m.logger, records, existing, m.store.UpsertIndividual), nil
}

type keyed interface {
	Key() string
}

func naturalKeys[T keyed](records []T) []string {
	keys := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if !seen[r.Key()] {
			seen[r.Key()] = true
			keys = append(keys, r.Key())
		}
	}
	return keys
}

// mergeBatch classifies each record against existing and upserts it.
// Keys written earlier in the batch count as existing for later records.
func mergeBatch[T keyed](ctx context.Context, logger *slog.Logger, records []T, existing map[string]bool, upsert func(context.Context, T) error) MergeResult {
	var result MergeResult
	present := make(map[string]bool, len(existing))
	for k, v := range existing {
		present[k] = v
	}

	for _, rec := range records {
		key := rec.Key()
		if err := upsert(ctx, rec); err != nil {
			result.Errors++
			logger.Warn("record upsert failed", "key", key, "error", &MergeError{Key: key, Err: err})
			continue
		}
		if present[key] {
			result.Updated++
		} else {
			result.Inserted++
			present[key] = true
		}
	}
	return result
}
