package core

import (
	"context"
	"errors"
	"testing"
)

func spend(v float64) *float64 { return &v }

func TestMergeAggregates_InsertThenUpdate(t *testing.T) {
	store := newFakeRecordStore()
	m := NewMerger(store, nil)
	ctx := context.Background()

	batch := []AggregateRecord{
		{ProjectID: "proj", SourceName: "src", Date: "2024-01-01", AmountSpent: spend(100)},
		{ProjectID: "proj", SourceName: "src", Date: "2024-01-02", AmountSpent: spend(200)},
	}

	first, err := m.MergeAggregates(ctx, "proj", "src", batch)
	if err != nil {
		t.Fatalf("MergeAggregates() error = %v", err)
	}
	if first != (MergeResult{Inserted: 2}) {
		t.Errorf("first merge = %+v, want 2 inserted", first)
	}
	before := store.aggregateKeys()

	second, err := m.MergeAggregates(ctx, "proj", "src", batch)
	if err != nil {
		t.Fatalf("MergeAggregates() error = %v", err)
	}
	if second != (MergeResult{Updated: 2}) {
		t.Errorf("replayed merge = %+v, want 2 updated", second)
	}

	after := store.aggregateKeys()
	if len(after) != len(before) {
		t.Fatalf("replay changed key set: %v -> %v", before, after)
	}
	if store.lookups != 2 {
		t.Errorf("lookups = %d, want one per batch", store.lookups)
	}
}

func TestMergeAggregates_OverwritesRatherThanAccumulates(t *testing.T) {
	store := newFakeRecordStore()
	m := NewMerger(store, nil)
	ctx := context.Background()

	_, _ = m.MergeAggregates(ctx, "proj", "src", []AggregateRecord{{ProjectID: "proj", SourceName: "src", Date: "2024-01-01", AmountSpent: spend(100)}})
	_, _ = m.MergeAggregates(ctx, "proj", "src", []AggregateRecord{{ProjectID: "proj", SourceName: "src", Date: "2024-01-01", AmountSpent: spend(40)}})

	got := store.aggregates[aggKey("proj", "src", "2024-01-01")]
	if got.AmountSpent == nil || *got.AmountSpent != 40 {
		t.Errorf("AmountSpent = %v, want 40", got.AmountSpent)
	}
}

func TestMergeAggregates_PerRecordFailureDoesNotAbort(t *testing.T) {
	store := newFakeRecordStore()
	store.failKeys["2024-01-02"] = true
	m := NewMerger(store, nil)

	result, err := m.MergeAggregates(context.Background(), "proj", "src", []AggregateRecord{
		{ProjectID: "proj", SourceName: "src", Date: "2024-01-01"},
		{ProjectID: "proj", SourceName: "src", Date: "2024-01-02"},
		{ProjectID: "proj", SourceName: "src", Date: "2024-01-03"},
	})
	if err != nil {
		t.Fatalf("MergeAggregates() error = %v", err)
	}
	if result != (MergeResult{Inserted: 2, Errors: 1}) {
		t.Errorf("result = %+v, want 2 inserted 1 error", result)
	}
}

func TestMergeAggregates_LookupFailure(t *testing.T) {
	store := newFakeRecordStore()
	store.lookupErr = errors.New("connection refused")
	m := NewMerger(store, nil)

	_, err := m.MergeAggregates(context.Background(), "proj", "src", []AggregateRecord{{ProjectID: "proj", SourceName: "src", Date: "2024-01-01"}})
	var me *MergeError
	if !errors.As(err, &me) {
		t.Fatalf("error = %v, want *MergeError", err)
	}
	if len(store.aggregates) != 0 {
		t.Error("no record should be written after a failed lookup")
	}
}

func TestMergeIndividuals_InBatchDuplicateCountsAsUpdate(t *testing.T) {
	store := newFakeRecordStore()
	m := NewMerger(store, nil)

	result, err := m.MergeIndividuals(context.Background(), "proj", "src", []IndividualRecord{
		{ProjectID: "proj", SourceName: "src", RecordID: "A"},
		{ProjectID: "proj", SourceName: "src", RecordID: "A"},
		{ProjectID: "proj", SourceName: "src", RecordID: "B"},
	})
	if err != nil {
		t.Fatalf("MergeIndividuals() error = %v", err)
	}
	if result != (MergeResult{Inserted: 2, Updated: 1}) {
		t.Errorf("result = %+v, want 2 inserted 1 updated", result)
	}
	if len(store.individuals) != 2 {
		t.Errorf("stored %d individuals, want 2", len(store.individuals))
	}
}

func TestMerge_EmptyBatchSkipsLookup(t *testing.T) {
	store := newFakeRecordStore()
	m := NewMerger(store, nil)

	result, err := m.MergeIndividuals(context.Background(), "proj", "src", nil)
	if err != nil || result != (MergeResult{}) {
		t.Fatalf("MergeIndividuals(nil) = %+v, %v", result, err)
	}
	if store.lookups != 0 {
		t.Errorf("lookups = %d, want 0", store.lookups)
	}
}
