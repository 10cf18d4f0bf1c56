package core

import "testing"

func TestBuildRange(t *testing.T) {
	tests := []struct {
		sheet   string
		last    string
		maxRows int
		want    string
	}{
		{"Sheet1", "", 0, "Sheet1!A1:Z1000"},
		{"Sheet1", "ab", 500, "Sheet1!A1:AB500"},
		{"Q1 Data", "Z", 1000, "'Q1 Data'!A1:Z1000"},
		{"Bob's", "Z", 10, "'Bob''s'!A1:Z10"},
	}

	for _, tt := range tests {
		if got := BuildRange(tt.sheet, tt.last, tt.maxRows); got != tt.want {
			t.Errorf("BuildRange(%q, %q, %d) = %q, want %q", tt.sheet, tt.last, tt.maxRows, got, tt.want)
		}
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		spec      string
		wantSheet string
		want      CellRange
		wantErr   bool
	}{
		{"Sheet1!A1:Z1000", "Sheet1", CellRange{0, 25, 0, 999}, false},
		{"'Q1 Data'!B2:C3", "Q1 Data", CellRange{1, 2, 1, 2}, false},
		{"'Bob''s'!A1:Z10", "Bob's", CellRange{0, 25, 0, 9}, false},
		{"Data!A:C", "Data", CellRange{0, 2, 0, -1}, false},
		{"Data!B5", "Data", CellRange{1, 1, 4, 4}, false},
		{"A1:Z10", "", CellRange{}, true},
		{"Data!1:2", "", CellRange{}, true},
		{"'Unclosed!A1", "", CellRange{}, true},
		{"Data!A0:B2", "", CellRange{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			sheet, got, err := ParseRange(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRange(%q) expected error", tt.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRange(%q) error = %v", tt.spec, err)
			}
			if sheet != tt.wantSheet || got != tt.want {
				t.Errorf("ParseRange(%q) = %q %+v, want %q %+v", tt.spec, sheet, got, tt.wantSheet, tt.want)
			}
		})
	}
}

func TestBuildParseRange_RoundTrip(t *testing.T) {
	for _, sheet := range []string{"Sheet1", "Ads & Spend", "it's", "日本"} {
		got, _, err := ParseRange(BuildRange(sheet, "AC", 200))
		if err != nil {
			t.Fatalf("ParseRange(BuildRange(%q)) error = %v", sheet, err)
		}
		if got != sheet {
			t.Errorf("round trip sheet = %q, want %q", got, sheet)
		}
	}
}

func TestLastMappedColumn(t *testing.T) {
	s := aggregateSource()
	if got := LastMappedColumn(s); got != "Z" {
		t.Errorf("LastMappedColumn() = %q, want Z", got)
	}

	s.ColumnMappings["AD"] = ColumnMapping{SemanticKey: KeyLeads}
	if got := LastMappedColumn(s); got != "AD" {
		t.Errorf("LastMappedColumn() = %q, want AD", got)
	}

	ind := individualSource()
	ind.StatusColumn = "BA"
	if got := LastMappedColumn(ind); got != "BA" {
		t.Errorf("LastMappedColumn() = %q, want BA", got)
	}
}
