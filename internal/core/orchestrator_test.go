package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type orchestratorFixture struct {
	configs *fakeConfigStore
	records *fakeRecordStore
	adapter *fakeAdapter
	creds   *fakeCredentials
	orch    *Orchestrator
	now     time.Time
}

func newOrchestratorFixture(t *testing.T, concurrency int, sources ...SourceConfig) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		configs: newFakeConfigStore(),
		records: newFakeRecordStore(),
		adapter: newFakeAdapter(),
		creds:   &fakeCredentials{token: "tok"},
	}
	repo := NewConfigRepository(f.configs, nil)
	if sources != nil {
		if _, err := repo.Save(context.Background(), ProjectSyncConfig{ProjectID: "proj", Sources: sources}); err != nil {
			t.Fatalf("seed config: %v", err)
		}
	}
	f.now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	f.orch = NewOrchestrator(repo, f.records, f.adapter, f.creds, OrchestratorOptions{
		Concurrency: concurrency,
		Now:         func() time.Time { return f.now },
	})
	return f
}

var spendGrid = [][]string{
	{"Date", "Spend"},
	{"2024-01-01", "100"},
	{"2024-01-02", "200"},
}

func TestRun_EndToEnd(t *testing.T) {
	src := aggregateSource()
	src.Name = "src"
	f := newOrchestratorFixture(t, 1, src)
	f.adapter.grids["sheet-abc|Sheet1"] = spendGrid

	result := f.orch.Run(context.Background(), "proj")
	if !result.Success {
		t.Fatalf("Run() failed: %+v", result)
	}
	if result.Inserted != 2 || result.Updated != 0 {
		t.Errorf("inserted/updated = %d/%d, want 2/0", result.Inserted, result.Updated)
	}
	if got := f.adapter.fetchedRanges(); got != "sheet-abc|Sheet1!A1:Z1000" {
		t.Errorf("fetched %q", got)
	}
	if f.adapter.tokens[0] != "tok" {
		t.Errorf("adapter token = %q, want tok", f.adapter.tokens[0])
	}

	rec, ok := f.records.aggregates[aggKey("proj", "src", "2024-01-02")]
	if !ok || rec.AmountSpent == nil || *rec.AmountSpent != 200 {
		t.Errorf("stored record = %+v, want amount_spent 200", rec)
	}

	stored := f.configs.configs["proj"]
	if stored.LastSyncStatus != StatusSuccess || stored.LastSyncAt == nil || stored.LastSyncError != "" {
		t.Errorf("status write-back = %s %v %q", stored.LastSyncStatus, stored.LastSyncAt, stored.LastSyncError)
	}
}

func TestRun_Idempotent(t *testing.T) {
	f := newOrchestratorFixture(t, 1, aggregateSource())
	f.adapter.grids["sheet-abc|Sheet1"] = spendGrid

	first := f.orch.Run(context.Background(), "proj")
	keys := f.records.aggregateKeys()
	second := f.orch.Run(context.Background(), "proj")

	if first.Inserted != 2 || second.Inserted != 0 || second.Updated != 2 {
		t.Errorf("first=%+v second=%+v", first, second)
	}
	if got := f.records.aggregateKeys(); strings.Join(got, ",") != strings.Join(keys, ",") {
		t.Errorf("key set changed: %v -> %v", keys, got)
	}
}

func TestRun_RelativeDateCellsDoNotDrift(t *testing.T) {
	f := newOrchestratorFixture(t, 1, aggregateSource())
	f.adapter.grids["sheet-abc|Sheet1"] = [][]string{
		{"Date", "Spend"},
		{"2024-01-01", "100"},
		{"yesterday", "200"},
		{"Monday", "300"},
	}

	first := f.orch.Run(context.Background(), "proj")
	keys := f.records.aggregateKeys()

	f.now = f.now.AddDate(0, 0, 1)
	second := f.orch.Run(context.Background(), "proj")

	if first.Inserted != 1 || first.Skipped != 2 {
		t.Errorf("first run inserted=%d skipped=%d, want 1 and 2", first.Inserted, first.Skipped)
	}
	if second.Inserted != 0 || second.Updated != 1 || second.Skipped != 2 {
		t.Errorf("second run = %+v, want only an update", second)
	}
	if got := f.records.aggregateKeys(); strings.Join(got, ",") != strings.Join(keys, ",") {
		t.Errorf("key set changed: %v -> %v", keys, got)
	}
}

func TestRun_SheetsShareSourceKey(t *testing.T) {
	src := aggregateSource()
	src.Name = "src"
	src.Sheets = []string{"Jan", "Feb"}
	f := newOrchestratorFixture(t, 1, src)
	f.adapter.grids["sheet-abc|Jan"] = spendGrid
	f.adapter.grids["sheet-abc|Feb"] = [][]string{
		{"Date", "Spend"},
		{"2024-01-01", "50"},
		{"2024-01-03", "25"},
	}

	result := f.orch.Run(context.Background(), "proj")
	if !result.Success {
		t.Fatalf("Run() failed: %+v", result)
	}
	if len(result.Units) != 2 {
		t.Fatalf("got %d units, want one per sheet", len(result.Units))
	}
	if result.Units[0].Inserted != 2 || result.Units[1].Inserted != 1 {
		t.Errorf("unit inserts = %d/%d, want 2/1", result.Units[0].Inserted, result.Units[1].Inserted)
	}
	if got := strings.Join(f.records.aggregateKeys(), ","); strings.Contains(got, "Jan") || strings.Contains(got, "Feb") {
		t.Errorf("keys %s should not carry sheet names", got)
	}
	if len(f.records.aggregates) != 3 {
		t.Fatalf("stored %d records, want 3", len(f.records.aggregates))
	}

	rec := f.records.aggregates[aggKey("proj", "src", "2024-01-01")]
	if rec.AmountSpent == nil || *rec.AmountSpent != 150 {
		t.Errorf("2024-01-01 amount_spent = %v, want the sum 150", rec.AmountSpent)
	}

	second := f.orch.Run(context.Background(), "proj")
	if second.Inserted != 0 || second.Updated != 3 {
		t.Errorf("second run inserted/updated = %d/%d, want 0/3", second.Inserted, second.Updated)
	}
	rec = f.records.aggregates[aggKey("proj", "src", "2024-01-01")]
	if *rec.AmountSpent != 150 {
		t.Errorf("second run amount_spent = %v, want 150", *rec.AmountSpent)
	}
}

func TestRun_IndividualSheetsLaterRowWins(t *testing.T) {
	src := individualSource()
	src.Sheets = []string{"Q1", "Q2"}
	f := newOrchestratorFixture(t, 1, src)
	f.adapter.grids["sheet-def|Q1"] = [][]string{
		{"Deal", "Closed", "Amount", "Stage", "Rep"},
		{"D-1", "2024-02-01", "10", "open", "Ana"},
	}
	f.adapter.grids["sheet-def|Q2"] = [][]string{
		{"Deal", "Closed", "Amount", "Stage", "Rep"},
		{"D-1", "2024-04-01", "12", "won", "Ana"},
	}

	result := f.orch.Run(context.Background(), "proj")
	if !result.Success || result.Inserted != 1 {
		t.Fatalf("Run() = %+v, want one insert", result)
	}
	if result.Units[0].Inserted != 0 || result.Units[1].Inserted != 1 {
		t.Errorf("unit inserts = %d/%d, want the later sheet to own the row", result.Units[0].Inserted, result.Units[1].Inserted)
	}
	rec := f.records.individuals[aggKey("proj", "Sales", "D-1")]
	if rec.Status == nil || *rec.Status != "won" {
		t.Errorf("stored status = %v, want won", rec.Status)
	}
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		a := aggregateSource()
		a.ID, a.SpreadsheetID = "A", "sheet-a"
		b := aggregateSource()
		b.ID, b.SpreadsheetID, b.Name = "B", "sheet-b", "B"

		f := newOrchestratorFixture(t, concurrency, a, b)
		f.adapter.errs["sheet-a"] = errors.New("googleapi: Error 500: backend error")
		f.adapter.grids["sheet-b|Sheet1"] = spendGrid

		result := f.orch.Run(context.Background(), "proj")
		if result.Success {
			t.Fatalf("concurrency %d: Run() should fail overall", concurrency)
		}
		if len(result.Units) != 2 {
			t.Fatalf("concurrency %d: got %d units, want 2", concurrency, len(result.Units))
		}
		if result.Units[0].SourceID != "A" || result.Units[0].Success {
			t.Errorf("unit A = %+v, want failed", result.Units[0])
		}
		if !strings.Contains(result.Units[0].Error, "fetch") {
			t.Errorf("unit A error = %q, want a fetch error", result.Units[0].Error)
		}
		if result.Units[1].SourceID != "B" || !result.Units[1].Success || result.Units[1].Inserted != 2 {
			t.Errorf("unit B = %+v, want success with 2 inserted", result.Units[1])
		}
		if result.Inserted != 2 {
			t.Errorf("Inserted = %d, want 2", result.Inserted)
		}
		if _, ok := f.records.aggregates[aggKey("proj", "B", "2024-01-01")]; !ok {
			t.Error("source B rows should be stored")
		}

		stored := f.configs.configs["proj"]
		if stored.LastSyncStatus != StatusError || stored.LastSyncError != result.Units[0].Error {
			t.Errorf("status = %s %q, want error with first unit error", stored.LastSyncStatus, stored.LastSyncError)
		}
	}
}

func TestRun_InvalidSourceFailsBeforeFetch(t *testing.T) {
	bad := individualSource()
	bad.RecordType = ""
	f := newOrchestratorFixture(t, 1, bad)

	result := f.orch.Run(context.Background(), "proj")
	if result.Success {
		t.Fatal("Run() should fail for an invalid source")
	}
	if f.adapter.callCount() != 0 {
		t.Errorf("adapter called %d times, want 0", f.adapter.callCount())
	}
	if !strings.Contains(result.Error, "record type") {
		t.Errorf("Error = %q, want record type reason", result.Error)
	}
	if len(f.records.individuals) != 0 {
		t.Error("storage should not be touched")
	}
}

func TestRun_AuthErrorFailsWholeRun(t *testing.T) {
	f := newOrchestratorFixture(t, 1, aggregateSource())
	f.creds.err = errors.New("refresh token revoked")

	result := f.orch.Run(context.Background(), "proj")
	if result.Success || len(result.Units) != 0 {
		t.Fatalf("Run() = %+v, want failure with no units", result)
	}
	if f.adapter.callCount() != 0 {
		t.Error("no fetch should happen after an auth failure")
	}
	if !strings.Contains(result.Error, "auth failed") {
		t.Errorf("Error = %q", result.Error)
	}
	if got := f.configs.configs["proj"].LastSyncError; got != result.Error {
		t.Errorf("LastSyncError = %q, want %q", got, result.Error)
	}
}

func TestRun_NoActiveSources(t *testing.T) {
	src := aggregateSource()
	src.IsActive = false
	f := newOrchestratorFixture(t, 1, src)

	result := f.orch.Run(context.Background(), "proj")
	if !result.Success || len(result.Units) != 0 {
		t.Errorf("Run() = %+v, want success with no units", result)
	}
	if f.creds.calls != 0 {
		t.Error("credentials should not be requested without active sources")
	}
}

func TestRun_MissingConfig(t *testing.T) {
	f := newOrchestratorFixture(t, 1)

	result := f.orch.Run(context.Background(), "proj")
	if result.Success {
		t.Fatal("Run() should fail without a config")
	}
	if MapError(errors.New(result.Error)).Code != "CFG001" {
		t.Errorf("Error = %q, want a config-not-found message", result.Error)
	}
}

func TestRun_IndividualMode(t *testing.T) {
	f := newOrchestratorFixture(t, 1, individualSource())
	f.adapter.grids["sheet-def|Deals"] = [][]string{
		{"Deal", "Closed", "Amount", "Stage", "Rep"},
		{"D-1", "2024-02-01", "10", "won", "Ana"},
		{"", "2024-02-01", "10", "won", "Ana"},
		{"D-2", "2024-02-02", "20", "open", "Bo"},
	}

	result := f.orch.Run(context.Background(), "proj")
	if !result.Success {
		t.Fatalf("Run() failed: %+v", result)
	}
	if result.Inserted != 2 || result.Skipped != 1 {
		t.Errorf("inserted=%d skipped=%d, want 2 and 1", result.Inserted, result.Skipped)
	}
	if _, ok := f.records.individuals[aggKey("proj", "Sales", "D-2")]; !ok {
		t.Error("D-2 should be stored under the source name Sales")
	}
}

func TestRun_MergeErrorsFailUnit(t *testing.T) {
	f := newOrchestratorFixture(t, 1, aggregateSource())
	f.adapter.grids["sheet-abc|Sheet1"] = spendGrid
	f.records.failKeys["2024-01-02"] = true

	result := f.orch.Run(context.Background(), "proj")
	if result.Success {
		t.Fatal("Run() should report failed writes")
	}
	if result.Inserted != 1 || result.Errors != 1 {
		t.Errorf("inserted=%d errors=%d, want 1 and 1", result.Inserted, result.Errors)
	}
}

func TestRun_WidensRangeForLateColumns(t *testing.T) {
	src := aggregateSource()
	src.ColumnMappings["AC"] = ColumnMapping{SemanticKey: KeyReach}
	f := newOrchestratorFixture(t, 1, src)
	f.adapter.grids["sheet-abc|Sheet1"] = spendGrid

	f.orch.Run(context.Background(), "proj")
	if got := f.adapter.fetchedRanges(); got != "sheet-abc|Sheet1!A1:AC1000" {
		t.Errorf("fetched %q, want range up to AC", got)
	}
}
