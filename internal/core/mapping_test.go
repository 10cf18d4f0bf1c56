package core

import (
	"testing"
	"time"
)

func fixedMapper() Mapper {
	return Mapper{Now: func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }}
}

func f64(t *testing.T, p *float64) float64 {
	t.Helper()
	if p == nil {
		t.Fatal("expected a value, got nil")
	}
	return *p
}

// =============================================================================
// Aggregate mode
// =============================================================================

func TestAggregate_EndToEndScenario(t *testing.T) {
	rows := [][]string{
		{"Date", "Spend"},
		{"2024-01-01", "100"},
		{"2024-01-02", "200"},
	}

	batch, err := fixedMapper().Aggregate(rows, aggregateSource(), "proj", "src")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if batch.HeaderRow != 0 {
		t.Errorf("HeaderRow = %d, want 0", batch.HeaderRow)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(batch.Records))
	}

	want := []struct {
		date  string
		spent float64
	}{{"2024-01-01", 100}, {"2024-01-02", 200}}
	for i, w := range want {
		rec := batch.Records[i]
		if rec.ProjectID != "proj" || rec.SourceName != "src" || rec.Date != w.date {
			t.Errorf("record %d key = (%s, %s, %s), want (proj, %s, src)", i, rec.ProjectID, rec.Date, rec.SourceName, w.date)
		}
		if got := f64(t, rec.AmountSpent); got != w.spent {
			t.Errorf("record %d AmountSpent = %v, want %v", i, got, w.spent)
		}
	}
}

func TestAggregate_BannerAndCustomMetrics(t *testing.T) {
	cfg := aggregateSource()
	cfg.ColumnMappings = map[string]ColumnMapping{
		"A": {SemanticKey: KeyDate},
		"B": {SemanticKey: KeyClicks},
		"C": {SemanticKey: KeySpend},
		"D": {SemanticKey: "cpl", DisplayName: "Cost per Lead", IsCustomMetric: true},
		"E": {SemanticKey: "campaign"},
	}
	rows := [][]string{
		{"Q1 Report"},
		{"Day", "Clicks", "Cost", "CPL", "Campaign"},
		{"1/15/2024", "1,200", "$45.10", "3.5", "Spring"},
		{"", "", "", "", ""},
		{"Jan 16, 2024", "n/a", "(5)", "oops", ""},
	}

	batch, err := fixedMapper().Aggregate(rows, cfg, "proj", "src")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if batch.HeaderRow != 1 {
		t.Fatalf("HeaderRow = %d, want 1", batch.HeaderRow)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(batch.Records))
	}

	first := batch.Records[0]
	if first.Date != "2024-01-15" {
		t.Errorf("Date = %q, want 2024-01-15", first.Date)
	}
	if got := f64(t, first.Clicks); got != 1200 {
		t.Errorf("Clicks = %v, want 1200", got)
	}
	if got := f64(t, first.AmountSpent); got != 45.10 {
		t.Errorf("AmountSpent = %v, want 45.10", got)
	}
	if got := first.CustomData["Cost per Lead"]; got != 3.5 {
		t.Errorf("CustomData[Cost per Lead] = %v, want 3.5", got)
	}
	if got := first.CustomData["Campaign"]; got != "Spring" {
		t.Errorf("CustomData[Campaign] = %v, want Spring (header text)", got)
	}

	second := batch.Records[1]
	if second.Clicks != nil {
		t.Errorf("invalid clicks should be dropped, got %v", *second.Clicks)
	}
	if got := f64(t, second.AmountSpent); got != -5 {
		t.Errorf("AmountSpent = %v, want -5", got)
	}
	if _, ok := second.CustomData["Cost per Lead"]; ok {
		t.Error("invalid custom metric should be dropped")
	}
}

func TestAggregate_BlankRowUnderHeader(t *testing.T) {
	rows := [][]string{
		{"Date", "Spend", "Clicks"},
		{},
		{"2024-01-01", "10", "1"},
		{"2024-01-02", "20", "2"},
	}

	batch, err := fixedMapper().Aggregate(rows, aggregateSource(), "proj", "src")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if batch.HeaderRow != 0 {
		t.Errorf("HeaderRow = %d, want 0", batch.HeaderRow)
	}
	if len(batch.Records) != 2 || len(batch.Dropped) != 0 {
		t.Fatalf("got %d records and %d dropped, want 2 and 0", len(batch.Records), len(batch.Dropped))
	}
	if batch.Records[0].Date != "2024-01-01" {
		t.Errorf("first record date = %s, want 2024-01-01", batch.Records[0].Date)
	}
}

func TestAggregate_SkipsRowsWithoutDate(t *testing.T) {
	rows := [][]string{
		{"Date", "Spend"},
		{"", "10"},
		{"not a date", "20"},
		{"TOTAL", "30"},
		{"2024-03-01", "40"},
	}

	batch, err := fixedMapper().Aggregate(rows, aggregateSource(), "proj", "src")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(batch.Records) != 1 || batch.Records[0].Date != "2024-03-01" {
		t.Fatalf("Records = %+v, want only 2024-03-01", batch.Records)
	}
	if len(batch.Dropped) != 3 {
		t.Errorf("Dropped = %d, want 3", len(batch.Dropped))
	}
	if batch.Dropped[0].Row != 2 || batch.Dropped[0].Column != "A" {
		t.Errorf("first drop = %+v, want row 2 column A", batch.Dropped[0])
	}
}

func TestAggregate_SameDateRowsAreSummed(t *testing.T) {
	cfg := aggregateSource()
	cfg.ColumnMappings["C"] = ColumnMapping{SemanticKey: "orders", DisplayName: "Orders", IsCustomMetric: true}
	rows := [][]string{
		{"Date", "Spend", "Orders"},
		{"2024-01-01", "10", "1"},
		{"2024-01-01", "15", "2"},
		{"2024-01-02", "5", ""},
	}

	batch, err := fixedMapper().Aggregate(rows, cfg, "proj", "src")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(batch.Records))
	}
	if got := f64(t, batch.Records[0].AmountSpent); got != 25 {
		t.Errorf("summed AmountSpent = %v, want 25", got)
	}
	if got := batch.Records[0].CustomData["Orders"]; got != 3.0 {
		t.Errorf("summed Orders = %v, want 3", got)
	}
}

func TestAggregate_ConfigError(t *testing.T) {
	cfg := aggregateSource()
	delete(cfg.ColumnMappings, "A")

	_, err := fixedMapper().Aggregate([][]string{{"x"}}, cfg, "proj", "src")
	if !IsConfigError(err) {
		t.Fatalf("Aggregate() error = %v, want ConfigError", err)
	}
}

func TestAggregate_EmptySheet(t *testing.T) {
	batch, err := fixedMapper().Aggregate(nil, aggregateSource(), "proj", "src")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(batch.Records) != 0 {
		t.Errorf("got %d records, want 0", len(batch.Records))
	}
}

// =============================================================================
// Individual mode
// =============================================================================

func TestIndividual(t *testing.T) {
	rows := [][]string{
		{"Deal", "Closed", "Amount", "Stage", "Rep"},
		{"D-1", "2024-02-01", "$1,000", "won", "Ana"},
		{"", "2024-02-02", "50", "lost", "Bo"},
		{"D-2", "", "75", "open", "Cy"},
		{"D-3", "2/3/2024", "abc", "", "Di"},
		{"D-1", "2024-02-05", "1200", "won", "Ana"},
	}

	batch, err := fixedMapper().Individual(rows, individualSource(), "proj", "Sales/Deals")
	if err != nil {
		t.Fatalf("Individual() error = %v", err)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(batch.Records), batch.Records)
	}
	if len(batch.Dropped) != 2 {
		t.Errorf("Dropped = %d, want 2", len(batch.Dropped))
	}

	d1 := batch.Records[0]
	if d1.RecordID != "D-1" || d1.RecordType != "sale" || d1.SourceName != "Sales/Deals" {
		t.Errorf("unexpected record identity: %+v", d1)
	}
	if d1.Date != "2024-02-05" {
		t.Errorf("later row should win, Date = %q", d1.Date)
	}
	if got := f64(t, d1.Amount); got != 1200 {
		t.Errorf("Amount = %v, want 1200", got)
	}
	if d1.Status == nil || *d1.Status != "won" {
		t.Errorf("Status = %v, want won", d1.Status)
	}
	if got := d1.RecordData["Sales Rep"]; got != "Ana" {
		t.Errorf("RecordData[Sales Rep] = %v, want Ana", got)
	}
	if _, ok := d1.RecordData[KeyDate]; ok {
		t.Error("date column should not be copied into RecordData")
	}

	d3 := batch.Records[1]
	if d3.RecordID != "D-3" || d3.Date != "2024-02-03" {
		t.Errorf("unexpected record: %+v", d3)
	}
	if d3.Amount != nil {
		t.Errorf("invalid amount should be nil, got %v", *d3.Amount)
	}
	if d3.Status != nil {
		t.Errorf("empty status should be nil, got %q", *d3.Status)
	}
}

func TestIndividual_PredefinedKeysGoToRecordData(t *testing.T) {
	cfg := individualSource()
	cfg.ColumnMappings["F"] = ColumnMapping{SemanticKey: KeyRevenue}
	rows := [][]string{
		{"Deal", "Closed", "Amount", "Stage", "Rep", "Revenue"},
		{"D-9", "2024-02-01", "10", "won", "Ana", "$99"},
	}

	batch, err := fixedMapper().Individual(rows, cfg, "proj", "src")
	if err != nil {
		t.Fatalf("Individual() error = %v", err)
	}
	if got := batch.Records[0].RecordData[KeyRevenue]; got != 99.0 {
		t.Errorf("RecordData[revenue] = %v, want 99", got)
	}
}

func TestIndividual_ConfigError(t *testing.T) {
	cfg := individualSource()
	cfg.RecordType = ""

	_, err := fixedMapper().Individual([][]string{{"x"}}, cfg, "proj", "src")
	if !IsConfigError(err) {
		t.Fatalf("Individual() error = %v, want ConfigError", err)
	}
}
