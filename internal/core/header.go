package core

import "strings"

// MaxHeaderSearchRows is the maximum number of rows scanned for a header.
const MaxHeaderSearchRows = 20

// MinHeaderCells is the number of non-empty cells a header row needs.
// Sheets narrower than this lower the requirement to their widest row.
const MinHeaderCells = 3

// DetectHeaderRow returns the index of the header row in rows.
//
// The header is the first row within the first MaxHeaderSearchRows rows that
// has enough non-empty cells and whose next non-blank row holds a date-like
// or numeric-like value. Blank spacer rows between the header and the data
// are skipped, as are banner rows above the header. When no row qualifies,
// row 0 is the header.
func DetectHeaderRow(rows [][]string) int {
	window := len(rows)
	if window > MaxHeaderSearchRows {
		window = MaxHeaderSearchRows
	}

	threshold := MinHeaderCells
	if widest := widestRow(rows[:window]); widest < threshold {
		threshold = widest
	}
	if threshold == 0 {
		return 0
	}

	for i := 0; i < window; i++ {
		if nonEmptyCells(rows[i]) < threshold {
			continue
		}
		if next := nextNonEmptyRow(rows, i+1); next >= 0 && hasValueLikeCell(rows[next]) {
			return i
		}
	}
	return 0
}

func nextNonEmptyRow(rows [][]string, from int) int {
	for j := from; j < len(rows); j++ {
		if !isEmptyRow(rows[j]) {
			return j
		}
	}
	return -1
}

func widestRow(rows [][]string) int {
	widest := 0
	for _, row := range rows {
		if n := nonEmptyCells(row); n > widest {
			widest = n
		}
	}
	return widest
}

func nonEmptyCells(row []string) int {
	n := 0
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

func hasValueLikeCell(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if ParseNumber(v) != nil || ParseDate(v) != nil {
			return true
		}
	}
	return false
}

func isEmptyRow(row []string) bool {
	return nonEmptyCells(row) == 0
}
