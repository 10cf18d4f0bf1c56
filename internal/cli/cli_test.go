package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/core"
)

func run(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	if opts == nil {
		opts = &RootOptions{LoadConfig: config.Load}
	}
	cmd := newRootCommand(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// sqliteOptions points the CLI at a fresh SQLite file and CSV root.
func sqliteOptions(t *testing.T) (*RootOptions, string) {
	t.Helper()
	dir := t.TempDir()
	csvRoot := filepath.Join(dir, "sources")
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "sync.db")},
		Sheets:   config.SheetsConfig{Adapter: "csv", MaxRows: 1000},
		CSV:      config.CSVConfig{Root: csvRoot},
		Sync: config.SyncConfig{
			DefaultIntervalMinutes: 60,
			MaxBackoff:             24 * time.Hour,
			SourceConcurrency:      1,
			MaxManualSyncs:         1,
			ManualSyncWait:         time.Second,
		},
	}
	return &RootOptions{LoadConfig: func() (*config.Config, error) { return cfg, nil }}, csvRoot
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "sheetsync", cmd.Use)

	for _, name := range []string{"sync", "import-config", "export-config", "columns", "records", "init-db", "reset"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, nil, "columns", "A", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestColumnsCommand(t *testing.T) {
	out, err := run(t, nil, "columns", "AA", "27", "a")
	require.NoError(t, err)
	assert.Equal(t, "AA\t26\nAB\t27\nA\t0\n", out)

	out, err = run(t, nil, "columns", "--format", "json", "B")
	require.NoError(t, err)
	var refs []columnRef
	require.NoError(t, json.Unmarshal([]byte(out), &refs))
	assert.Equal(t, []columnRef{{Ref: "B", Letter: "B", Index: 1}}, refs)

	_, err = run(t, nil, "columns", "A1")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestResetRequiresConfirmation(t *testing.T) {
	opts, _ := sqliteOptions(t)
	_, err := run(t, opts, "reset", "proj")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

const projectYAML = `projectId: acme
autoSyncEnabled: false
sources:
  - id: src-ads
    name: Ads
    spreadsheetId: ads
    sheets: [Sheet1]
    syncMode: aggregate
    isActive: true
    columnMappings:
      A: {semanticKey: date}
      B: {semanticKey: amount_spent}
      C: {semanticKey: notes}
`

func TestEndToEnd(t *testing.T) {
	opts, csvRoot := sqliteOptions(t)
	require.NoError(t, os.MkdirAll(filepath.Join(csvRoot, "ads"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(csvRoot, "ads", "Sheet1.csv"),
		[]byte("Date,Spend,Notes\n2024-01-01,$10.00,launch\n2024-01-02,12,\nnot a date,5,x\n"), 0o644))

	cfgPath := filepath.Join(t.TempDir(), "acme.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(projectYAML), 0o644))

	out, err := run(t, opts, "init-db")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite schema ready")

	out, err = run(t, opts, "import-config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "saved config for project acme (1 sources")

	out, err = run(t, opts, "sync", "acme", "--format", "json")
	require.NoError(t, err)
	var result core.SyncResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Skipped)

	out, err = run(t, opts, "records", "acme", "--format", "json")
	require.NoError(t, err)
	var recs []core.AggregateRecord
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "Ads", recs[0].SourceName)
	assert.Equal(t, 10.0, *recs[0].AmountSpent)
	assert.Equal(t, "launch", recs[0].CustomData["Notes"])

	out, err = run(t, opts, "export-config", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "spreadsheetId: ads")
	assert.Contains(t, out, "schemaVersion: 2")

	out, err = run(t, opts, "reset", "acme", "--yes")
	require.NoError(t, err)
	assert.Equal(t, "deleted 2 records\n", out)

	out, err = run(t, opts, "records", "acme", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestSyncCommand_FailureExitCode(t *testing.T) {
	opts, _ := sqliteOptions(t)

	out, err := run(t, opts, "sync", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "CFG001")
	assert.Contains(t, out, "project missing run")
}

func TestImportConfig_RejectsUnknownKeys(t *testing.T) {
	opts, _ := sqliteOptions(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("projectId: x\nsourcez: []\n"), 0o644))

	_, err := run(t, opts, "import-config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
