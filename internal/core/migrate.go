package core

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ConfigV1 is the legacy single-source document.
type ConfigV1 struct {
	SpreadsheetID  string            `json:"spreadsheetId" yaml:"spreadsheetId"`
	SheetName      string            `json:"sheetName,omitempty" yaml:"sheetName,omitempty"`
	SheetNames     []string          `json:"sheetNames,omitempty" yaml:"sheetNames,omitempty"`
	DateColumn     string            `json:"dateColumn" yaml:"dateColumn"`
	ColumnMappings map[string]string `json:"columnMappings,omitempty" yaml:"columnMappings,omitempty"` // letter -> semantic key
	CustomColumns  map[string]string `json:"customColumns,omitempty" yaml:"customColumns,omitempty"`   // letter -> display name
}

// ConfigV2 is the multi-source document.
type ConfigV2 struct {
	SchemaVersion int            `json:"schemaVersion" yaml:"schemaVersion"`
	Sources       []SourceConfig `json:"sources" yaml:"sources"`
}

// legacyNamespace seeds the deterministic ids of migrated sources.
var legacyNamespace = uuid.MustParse("6f1c2b8e-3d4a-4e7b-9a51-2c0d8e7f6a13")

// LegacySourceName labels records of a migrated source.
const LegacySourceName = "Primary sheet"

// MigrateV1ToV2 converts a legacy document into an equivalent multi-source one.
// The legacy engine only synced daily metrics, so the result is one active
// aggregate-mode source. The function is pure: the same input always yields
// the same source id.
func MigrateV1ToV2(v1 ConfigV1) ConfigV2 {
	mappings := make(map[string]ColumnMapping)

	letters := make([]string, 0, len(v1.ColumnMappings))
	for letter := range v1.ColumnMappings {
		letters = append(letters, letter)
	}
	sort.Strings(letters)
	for _, letter := range letters {
		key := strings.TrimSpace(v1.ColumnMappings[letter])
		if key == "" || key == KeyDate {
			continue
		}
		mappings[strings.ToUpper(letter)] = ColumnMapping{SemanticKey: key}
	}

	for letter, display := range v1.CustomColumns {
		letter = strings.ToUpper(letter)
		mappings[letter] = ColumnMapping{
			SemanticKey:    "custom_" + strings.ToLower(letter),
			DisplayName:    display,
			IsCustomMetric: true,
		}
	}

	// The explicit date column wins over any mapping on the same letter.
	if v1.DateColumn != "" {
		mappings[strings.ToUpper(v1.DateColumn)] = ColumnMapping{SemanticKey: KeyDate}
	} else {
		for _, letter := range letters {
			if strings.TrimSpace(v1.ColumnMappings[letter]) == KeyDate {
				mappings[strings.ToUpper(letter)] = ColumnMapping{SemanticKey: KeyDate}
				break
			}
		}
	}

	sheets := v1.SheetNames
	if len(sheets) == 0 && v1.SheetName != "" {
		sheets = []string{v1.SheetName}
	}
	if len(sheets) == 0 {
		sheets = []string{"Sheet1"}
	}

	return ConfigV2{
		SchemaVersion: CurrentSchemaVersion,
		Sources: []SourceConfig{{
			ID:             uuid.NewSHA1(legacyNamespace, []byte(v1.SpreadsheetID)).String(),
			Name:           LegacySourceName,
			SpreadsheetID:  v1.SpreadsheetID,
			Sheets:         append([]string(nil), sheets...),
			ColumnMappings: mappings,
			SyncMode:       ModeAggregate,
			IsActive:       true,
		}},
	}
}
