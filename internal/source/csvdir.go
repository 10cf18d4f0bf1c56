package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// CSVDirAdapter reads sheets from CSV files on disk. A source id names a
// directory under the root and each sheet is <sheet>.csv inside it.
type CSVDirAdapter struct {
	root string
}

// NewCSVDirAdapter creates an adapter rooted at root.
func NewCSVDirAdapter(root string) (*CSVDirAdapter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve csv root: %w", err)
	}
	return &CSVDirAdapter{root: abs}, nil
}

// Root returns the absolute root directory.
func (a *CSVDirAdapter) Root() string { return a.root }

// FetchRows implements core.SourceAdapter. The token is ignored.
func (a *CSVDirAdapter) FetchRows(ctx context.Context, _, sourceID, rangeSpec string) ([][]string, error) {
	sheet, cr, err := core.ParseRange(rangeSpec)
	if err != nil {
		return nil, fmt.Errorf("unable to parse range: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := a.resolve(sourceID, sheet+".csv")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unable to parse range: sheet %q not found in source %q", sheet, sourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	rows, err := decodeCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return clip(rows, cr), nil
}

// ListSheets returns the names of the CSV files of a source, sorted.
func (a *CSVDirAdapter) ListSheets(_ context.Context, _, sourceID string) ([]string, error) {
	dir, err := a.resolve(sourceID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list source %q: %w", sourceID, err)
	}

	var sheets []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		sheets = append(sheets, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(sheets)
	return sheets, nil
}

// SourceIDFor maps a file path under the root to its source id.
func (a *CSVDirAdapter) SourceIDFor(path string) (string, bool) {
	rel, err := filepath.Rel(a.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return first, first != ""
}

// resolve joins parts under the root, rejecting paths that escape it.
func (a *CSVDirAdapter) resolve(parts ...string) (string, error) {
	if len(parts) == 0 || parts[0] == "" {
		return "", fmt.Errorf("invalid request: empty source id")
	}
	p := filepath.Join(append([]string{a.root}, parts...)...)
	rel, err := filepath.Rel(a.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid request: source path %q escapes the csv root", filepath.Join(parts...))
	}
	return p, nil
}
