package core

import (
	"fmt"
	"strings"
)

// ColumnIndex converts a spreadsheet column letter to a zero-based index.
// Letters use bijective base-26: A=0, Z=25, AA=26, AB=27.
// Lowercase input is accepted.
func ColumnIndex(letter string) (int, error) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter == "" {
		return 0, fmt.Errorf("invalid column %q: empty", letter)
	}
	// 13 letters already overflow int64.
	if len(letter) > 12 {
		return 0, fmt.Errorf("invalid column %q: too long", letter)
	}

	n := 0
	for _, r := range letter {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column %q: not a letter", letter)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

// ColumnLetter converts a zero-based index to its spreadsheet column letter.
// It is the inverse of ColumnIndex; negative indexes return "".
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}

	var b []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		b = append(b, byte('A'+(n-1)%26))
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// IsColumnLetter reports whether s is a valid column letter.
func IsColumnLetter(s string) bool {
	_, err := ColumnIndex(s)
	return err == nil
}

// cellAt returns the trimmed cell at col, or "" when the row is shorter.
func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
