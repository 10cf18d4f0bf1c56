package core

// convert.go coerces raw spreadsheet cells into typed values.
//
// These functions handle the messy reality of user-maintained sheets:
//   - Multiple date formats (US, EU, ISO, timestamps, written-out dates)
//   - Currency symbols, percent signs and thousand separators in numbers
//   - Accounting negatives "(123.45)"
//   - Excel formula prefixes (="value")
//
// Invalid input never errors: the Parse* functions return nil (or "") so the
// caller can drop the value, and the row when the value was required.

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"golang.org/x/text/unicode/norm"
)

// DateLayout is the canonical record date format.
const DateLayout = "2006-01-02"

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// isoDateRegex matches values that are already canonical.
var isoDateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
		"2-Jan-06", "02-Jan-06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-1-2", "2006/01/02", "2006.01.02", "2006/1/2",
		"Jan 2, 2006", "Jan 2 2006", "January 2, 2006", "January 2 2006",
		"2 Jan 2006", "2 January 2006", "2-Jan-2006", "02-Jan-2006",
		"Mon, Jan 2, 2006", "Monday, January 2, 2006",
		"20060102",
	}
	timestampLayouts = []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04",
		"1/2/2006 15:04:05", "1/2/2006 15:04", "1/2/2006 3:04:05 PM", "1/2/2006 3:04 PM",
	}
)

var (
	naturalOnce   sync.Once
	naturalParser *when.Parser
)

// natural returns the shared natural-language date parser.
func natural() *when.Parser {
	naturalOnce.Do(func() {
		naturalParser = when.New(nil)
		naturalParser.Add(en.All...)
		naturalParser.Add(common.All...)
	})
	return naturalParser
}

// ParseNumber converts a cell to a float.
// Strips currency symbols, percent signs, thousands separators and whitespace,
// and handles accounting format (parentheses for negative). Invalid input returns nil.
func ParseNumber(s string) *float64 {
	s = CleanCell(s)
	if s == "" {
		return nil
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = s[1 : len(s)-1]
	}

	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return -1
		case r == '$', r == ',', r == '%', r == '€', r == '£':
			return -1
		}
		return r
	}, s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// ParseDate converts a cell to a YYYY-MM-DD date.
// Unparseable input returns nil.
func ParseDate(s string) *string {
	return parseDateAt(s, time.Now())
}

// parseDateAt resolves two-digit years and relative phrases against ref.
func parseDateAt(s string, ref time.Time) *string {
	s = CleanCell(s)
	if s == "" {
		return nil
	}

	if isoDateRegex.MatchString(s) {
		if _, err := time.Parse(DateLayout, s); err != nil {
			return nil
		}
		return &s
	}

	format := func(t time.Time) *string {
		out := t.Format(DateLayout)
		return &out
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return format(t)
		}
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return format(t)
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := ref.Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return format(t)
		}
	}

	// Natural language only when the phrase covers the whole cell, so that
	// a stray "5pm" inside a note never becomes a date. Relative phrases
	// ("yesterday", "Monday", "May") are rejected: the same cell must map to
	// the same date on every run.
	t, ok := naturalDate(s, ref)
	if !ok {
		return nil
	}
	if other, ok := naturalDate(s, ref.AddDate(3, 5, 11)); !ok || !sameDay(t, other) {
		return nil
	}
	return format(t)
}

func naturalDate(s string, ref time.Time) (time.Time, bool) {
	r, err := natural().Parse(s, ref)
	if err != nil || r == nil {
		return time.Time{}, false
	}
	if r.Index != 0 || len(strings.TrimSpace(r.Text)) != len(s) {
		return time.Time{}, false
	}
	return r.Time, true
}

func sameDay(a, b time.Time) bool {
	return a.Format(DateLayout) == b.Format(DateLayout)
}

// ParseString cleans, NFC-normalises and trims a cell.
func ParseString(s string) string {
	return strings.TrimSpace(norm.NFC.String(CleanCell(s)))
}

// CleanCell removes common spreadsheet export artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}
