package core

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultLastColumn and DefaultMaxRows bound the range fetched per sheet.
const (
	DefaultLastColumn = "Z"
	DefaultMaxRows    = 1000
)

// CellRange is the rectangle of a parsed A1 range, zero-based and inclusive.
type CellRange struct {
	FirstCol, LastCol int
	FirstRow, LastRow int
}

// BuildRange renders an A1 range such as Sheet1!A1:Z1000.
// Sheet names containing anything but letters, digits and underscores are quoted.
func BuildRange(sheet, lastColumn string, maxRows int) string {
	if lastColumn == "" {
		lastColumn = DefaultLastColumn
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return fmt.Sprintf("%s!A1:%s%d", quoteSheet(sheet), strings.ToUpper(lastColumn), maxRows)
}

func quoteSheet(sheet string) string {
	plain := sheet != ""
	for _, r := range sheet {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			plain = false
			break
		}
	}
	if plain {
		return sheet
	}
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

// ParseRange splits an A1 range into its sheet name and cell rectangle.
// It accepts what BuildRange produces plus open ranges such as A:C.
func ParseRange(spec string) (string, CellRange, error) {
	sheet, cells, err := splitSheet(spec)
	if err != nil {
		return "", CellRange{}, err
	}

	from, to, ok := strings.Cut(cells, ":")
	if !ok {
		to = from
	}
	fc, fr, err := parseCell(from)
	if err != nil {
		return "", CellRange{}, fmt.Errorf("invalid range %q: %w", spec, err)
	}
	lc, lr, err := parseCell(to)
	if err != nil {
		return "", CellRange{}, fmt.Errorf("invalid range %q: %w", spec, err)
	}
	if fr < 0 {
		fr = 0
	}
	if lr < 0 {
		lr = -1
	}
	return sheet, CellRange{FirstCol: fc, LastCol: lc, FirstRow: fr, LastRow: lr}, nil
}

func splitSheet(spec string) (string, string, error) {
	if strings.HasPrefix(spec, "'") {
		var b strings.Builder
		for i := 1; i < len(spec); i++ {
			if spec[i] != '\'' {
				b.WriteByte(spec[i])
				continue
			}
			if i+1 < len(spec) && spec[i+1] == '\'' {
				b.WriteByte('\'')
				i++
				continue
			}
			if i+1 >= len(spec) || spec[i+1] != '!' {
				return "", "", fmt.Errorf("invalid range %q: missing '!'", spec)
			}
			return b.String(), spec[i+2:], nil
		}
		return "", "", fmt.Errorf("invalid range %q: unterminated sheet name", spec)
	}

	i := strings.LastIndex(spec, "!")
	if i <= 0 {
		return "", "", fmt.Errorf("invalid range %q: missing sheet name", spec)
	}
	return spec[:i], spec[i+1:], nil
}

// parseCell parses "B12" into (1, 11). A missing row returns -1.
func parseCell(ref string) (int, int, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	split := strings.IndexFunc(ref, func(r rune) bool { return r >= '0' && r <= '9' })
	letters, digits := ref, ""
	if split >= 0 {
		letters, digits = ref[:split], ref[split:]
	}

	col, err := ColumnIndex(letters)
	if err != nil {
		return 0, 0, err
	}
	if digits == "" {
		return col, -1, nil
	}
	row, err := strconv.Atoi(digits)
	if err != nil || row < 1 {
		return 0, 0, fmt.Errorf("invalid row %q", digits)
	}
	return col, row - 1, nil
}

// LastMappedColumn returns the right-most column a source reads, never left of Z.
func LastMappedColumn(s SourceConfig) string {
	last, _ := ColumnIndex(DefaultLastColumn)
	consider := func(letter string) {
		if idx, err := ColumnIndex(letter); err == nil && idx > last {
			last = idx
		}
	}
	for letter := range s.ColumnMappings {
		consider(letter)
	}
	consider(s.UniqueIDColumn)
	consider(s.AmountColumn)
	consider(s.StatusColumn)
	return ColumnLetter(last)
}
