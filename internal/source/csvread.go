package source

import (
	"bytes"
	"encoding/csv"
	"unicode/utf8"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeCSV parses a CSV export into rows. The UTF-8 BOM added by Windows
// tools is dropped and invalid bytes become U+FFFD.
func decodeCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	return parseCSV(sanitizeUTF8(data))
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func parseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// clip returns the part of rows inside cr, the way a spreadsheet API returns
// a range: trailing empty cells and rows are dropped.
func clip(rows [][]string, cr core.CellRange) [][]string {
	last := len(rows) - 1
	if cr.LastRow >= 0 && cr.LastRow < last {
		last = cr.LastRow
	}

	var out [][]string
	for i := cr.FirstRow; i <= last; i++ {
		row := rows[i]
		var cells []string
		if cr.FirstCol < len(row) {
			end := len(row)
			if cr.LastCol+1 < end {
				end = cr.LastCol + 1
			}
			cells = append(cells, row[cr.FirstCol:end]...)
		}
		for len(cells) > 0 && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		out = append(out, cells)
	}

	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}
