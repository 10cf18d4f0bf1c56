package core

// mapping.go turns a raw sheet grid into aggregate or individual records.
//
// The header row is detected first; everything below it is data. Column
// mappings are resolved from letters to indexes once per batch. Cells that
// fail coercion drop the value; rows whose required date or unique id fails
// are dropped and reported as ParseErrors.

import (
	"sort"
	"time"
)

// Predefined semantic keys. Any other key is stored in the open map.
const (
	KeyDate        = "date"
	KeyImpressions = "impressions"
	KeyClicks      = "clicks"
	KeyAmountSpent = "amount_spent"
	KeySpend       = "spend"
	KeyConversions = "conversions"
	KeyRevenue     = "revenue"
	KeyLeads       = "leads"
	KeyReach       = "reach"
)

// metricSlot returns the pointer to the named metric slot of rec, or nil for custom keys.
func metricSlot(rec *AggregateRecord, key string) **float64 {
	switch key {
	case KeyImpressions:
		return &rec.Impressions
	case KeyClicks:
		return &rec.Clicks
	case KeyAmountSpent, KeySpend:
		return &rec.AmountSpent
	case KeyConversions:
		return &rec.Conversions
	case KeyRevenue:
		return &rec.Revenue
	case KeyLeads:
		return &rec.Leads
	case KeyReach:
		return &rec.Reach
	}
	return nil
}

// IsPredefinedKey reports whether key names a fixed record field.
func IsPredefinedKey(key string) bool {
	if key == KeyDate {
		return true
	}
	var probe AggregateRecord
	return metricSlot(&probe, key) != nil
}

// AggregateBatch is the mapped output of one sheet in aggregate mode.
type AggregateBatch struct {
	HeaderRow int
	Records   []AggregateRecord
	Dropped   []*ParseError
}

// IndividualBatch is the mapped output of one sheet in individual mode.
type IndividualBatch struct {
	HeaderRow int
	Records   []IndividualRecord
	Dropped   []*ParseError
}

// Mapper converts sheet grids to records.
// The zero value is ready to use.
type Mapper struct {
	// Now anchors two-digit years; defaults to time.Now.
	Now func() time.Time
}

func (m Mapper) parseDate(s string) *string {
	if m.Now == nil {
		return ParseDate(s)
	}
	return parseDateAt(s, m.Now())
}

// column is one resolved mapping.
type column struct {
	letter  string
	index   int
	mapping ColumnMapping
	label   string
}

// resolveColumns resolves mapping letters against the header row, ordered by index.
// Custom columns without a display name take the header text.
func resolveColumns(cfg SourceConfig, header []string) ([]column, error) {
	cols := make([]column, 0, len(cfg.ColumnMappings))
	for letter, m := range cfg.ColumnMappings {
		idx, err := ColumnIndex(letter)
		if err != nil {
			return nil, &ConfigError{SourceID: cfg.ID, Reason: err.Error()}
		}

		label := m.SemanticKey
		if m.IsCustomMetric || !IsPredefinedKey(m.SemanticKey) {
			switch {
			case m.DisplayName != "":
				label = m.DisplayName
			case cellAt(header, idx) != "":
				label = ParseString(cellAt(header, idx))
			}
		}
		cols = append(cols, column{letter: letter, index: idx, mapping: m, label: label})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].index < cols[j].index })
	return cols, nil
}

func dateColumn(cols []column) (column, bool) {
	for _, c := range cols {
		if c.mapping.SemanticKey == KeyDate && !c.mapping.IsCustomMetric {
			return c, true
		}
	}
	return column{}, false
}

// cellValue returns the number when the cell parses as one, else the cleaned string.
func cellValue(raw string) (any, bool) {
	if n := ParseNumber(raw); n != nil {
		return *n, true
	}
	if s := ParseString(raw); s != "" {
		return s, true
	}
	return nil, false
}

// Aggregate maps rows into one record per date.
// Rows sharing a date are summed into a single record.
func (m Mapper) Aggregate(rows [][]string, cfg SourceConfig, projectID, sourceName string) (AggregateBatch, error) {
	if err := cfg.ValidateForSync(); err != nil {
		return AggregateBatch{}, err
	}

	batch := AggregateBatch{HeaderRow: DetectHeaderRow(rows)}
	if len(rows) == 0 {
		return batch, nil
	}

	cols, err := resolveColumns(cfg, rows[batch.HeaderRow])
	if err != nil {
		return AggregateBatch{}, err
	}
	dateCol, _ := dateColumn(cols)

	byDate := make(map[string]int)
	for i, row := range rows[batch.HeaderRow+1:] {
		if isEmptyRow(row) {
			continue
		}
		sheetRow := batch.HeaderRow + i + 2

		raw := cellAt(row, dateCol.index)
		date := m.parseDate(raw)
		if date == nil {
			batch.Dropped = append(batch.Dropped, &ParseError{Row: sheetRow, Column: dateCol.letter, Value: raw, Kind: "date"})
			continue
		}

		rec := AggregateRecord{ProjectID: projectID, Date: *date, SourceName: sourceName}
		for _, c := range cols {
			if c.index == dateCol.index {
				continue
			}
			cell := cellAt(row, c.index)
			if cell == "" {
				continue
			}

			if !c.mapping.IsCustomMetric {
				if slot := metricSlot(&rec, c.mapping.SemanticKey); slot != nil {
					*slot = ParseNumber(cell)
					continue
				}
			}

			var v any
			if c.mapping.IsCustomMetric {
				n := ParseNumber(cell)
				if n == nil {
					continue
				}
				v = *n
			} else if val, ok := cellValue(cell); ok {
				v = val
			} else {
				continue
			}
			if rec.CustomData == nil {
				rec.CustomData = make(map[string]any)
			}
			rec.CustomData[c.label] = v
		}

		if pos, ok := byDate[rec.Date]; ok {
			sumAggregate(&batch.Records[pos], rec)
			continue
		}
		byDate[rec.Date] = len(batch.Records)
		batch.Records = append(batch.Records, rec)
	}

	return batch, nil
}

// sumAggregate adds src's metrics into dst. Non-numeric custom values take src's.
func sumAggregate(dst *AggregateRecord, src AggregateRecord) {
	for _, key := range []string{KeyImpressions, KeyClicks, KeyAmountSpent, KeyConversions, KeyRevenue, KeyLeads, KeyReach} {
		d, s := metricSlot(dst, key), metricSlot(&src, key)
		switch {
		case *s == nil:
		case *d == nil:
			v := **s
			*d = &v
		default:
			v := **d + **s
			*d = &v
		}
	}

	for k, sv := range src.CustomData {
		if dst.CustomData == nil {
			dst.CustomData = make(map[string]any)
		}
		dn, dok := dst.CustomData[k].(float64)
		sn, sok := sv.(float64)
		if dok && sok {
			dst.CustomData[k] = dn + sn
			continue
		}
		dst.CustomData[k] = sv
	}
}

// Individual maps rows into one record per unique id.
// A later row with the same id replaces the earlier one.
func (m Mapper) Individual(rows [][]string, cfg SourceConfig, projectID, sourceName string) (IndividualBatch, error) {
	if err := cfg.ValidateForSync(); err != nil {
		return IndividualBatch{}, err
	}

	batch := IndividualBatch{HeaderRow: DetectHeaderRow(rows)}
	if len(rows) == 0 {
		return batch, nil
	}

	cols, err := resolveColumns(cfg, rows[batch.HeaderRow])
	if err != nil {
		return IndividualBatch{}, err
	}
	dateCol, _ := dateColumn(cols)

	// ValidateForSync already checked these letters.
	idIdx, _ := ColumnIndex(cfg.UniqueIDColumn)
	amountIdx, statusIdx := -1, -1
	if cfg.AmountColumn != "" {
		amountIdx, _ = ColumnIndex(cfg.AmountColumn)
	}
	if cfg.StatusColumn != "" {
		statusIdx, _ = ColumnIndex(cfg.StatusColumn)
	}

	byID := make(map[string]int)
	for i, row := range rows[batch.HeaderRow+1:] {
		if isEmptyRow(row) {
			continue
		}
		sheetRow := batch.HeaderRow + i + 2

		id := ParseString(cellAt(row, idIdx))
		if id == "" {
			batch.Dropped = append(batch.Dropped, &ParseError{Row: sheetRow, Column: cfg.UniqueIDColumn, Value: "", Kind: "unique id"})
			continue
		}
		raw := cellAt(row, dateCol.index)
		date := m.parseDate(raw)
		if date == nil {
			batch.Dropped = append(batch.Dropped, &ParseError{Row: sheetRow, Column: dateCol.letter, Value: raw, Kind: "date"})
			continue
		}

		rec := IndividualRecord{
			ProjectID:  projectID,
			SourceName: sourceName,
			RecordID:   id,
			Date:       *date,
			RecordType: cfg.RecordType,
		}
		if amountIdx >= 0 {
			rec.Amount = ParseNumber(cellAt(row, amountIdx))
		}
		if statusIdx >= 0 {
			if s := ParseString(cellAt(row, statusIdx)); s != "" {
				rec.Status = &s
			}
		}

		for _, c := range cols {
			switch c.index {
			case dateCol.index, idIdx, amountIdx, statusIdx:
				continue
			}
			cell := cellAt(row, c.index)
			if cell == "" {
				continue
			}

			var v any
			if c.mapping.IsCustomMetric || (IsPredefinedKey(c.mapping.SemanticKey) && c.mapping.SemanticKey != KeyDate) {
				n := ParseNumber(cell)
				if n == nil {
					continue
				}
				v = *n
			} else if val, ok := cellValue(cell); ok {
				v = val
			} else {
				continue
			}
			if rec.RecordData == nil {
				rec.RecordData = make(map[string]any)
			}
			rec.RecordData[c.label] = v
		}

		if pos, ok := byID[rec.RecordID]; ok {
			batch.Records[pos] = rec
			continue
		}
		byID[rec.RecordID] = len(batch.Records)
		batch.Records = append(batch.Records, rec)
	}

	return batch, nil
}
