package application

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/credentials"
)

func testConfig(root string) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "memory"},
		Sheets:   config.SheetsConfig{Adapter: "csv", MaxRows: 1000},
		CSV:      config.CSVConfig{Root: root, Debounce: 20 * time.Millisecond},
		Sync: config.SyncConfig{
			DefaultIntervalMinutes: 60,
			MaxBackoff:             24 * time.Hour,
			SourceConcurrency:      1,
			MaxManualSyncs:         2,
			ManualSyncWait:         time.Second,
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := New(context.Background(), cfg, Options{WithHub: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func writeSheet(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, "ads")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Sheet1.csv"), []byte(content), 0o644))
}

func adsProject() core.ProjectSyncConfig {
	return core.ProjectSyncConfig{
		ProjectID: "proj",
		Sources: []core.SourceConfig{{
			ID:            "src-ads",
			Name:          "Ads",
			SpreadsheetID: "ads",
			Sheets:        []string{"Sheet1"},
			SyncMode:      core.ModeAggregate,
			IsActive:      true,
			ColumnMappings: map[string]core.ColumnMapping{
				"A": {SemanticKey: core.KeyDate},
				"B": {SemanticKey: core.KeyClicks},
			},
		}},
	}
}

func TestNew_CSVStack(t *testing.T) {
	root := t.TempDir()
	writeSheet(t, root, "Date,Clicks\n2024-03-01,10\n")
	app := newTestApp(t, testConfig(root))

	require.NotNil(t, app.CSV)
	require.NotNil(t, app.Hub)
	assert.IsType(t, credentials.StaticProvider{}, app.buildCredentials())

	ctx := context.Background()
	_, err := app.Service.SaveConfig(ctx, adsProject())
	require.NoError(t, err)

	result, err := app.Service.SyncNow(ctx, "proj")
	require.NoError(t, err)
	assert.True(t, result.Success, result.Error)
	assert.Equal(t, 1, result.Inserted)
}

func TestNew_SheetsUsesOAuth(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Sheets.Adapter = "sheets"
	app := newTestApp(t, cfg)

	assert.Nil(t, app.CSV)
	assert.IsType(t, &credentials.OAuthProvider{}, app.buildCredentials())
	assert.NoError(t, app.WatchCSV(context.Background()), "no-op without the csv adapter")

	cfg.Sheets.StaticToken = "tok"
	assert.IsType(t, credentials.StaticProvider{}, app.buildCredentials())
}

func TestNew_UnknownAdapter(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Sheets.Adapter = "excel"
	_, err := New(context.Background(), cfg, Options{})
	assert.ErrorContains(t, err, "unknown source adapter")
}

func TestSyncChanged_ResyncsAffectedProjects(t *testing.T) {
	root := t.TempDir()
	writeSheet(t, root, "Date,Clicks\n2024-03-01,10\n")
	app := newTestApp(t, testConfig(root))
	ctx := context.Background()

	_, err := app.Service.SaveConfig(ctx, adsProject())
	require.NoError(t, err)

	writeSheet(t, root, "Date,Clicks\n2024-03-01,12\n2024-03-02,3\n")
	app.syncChanged(ctx, []string{"ads", "unrelated"})

	rows, err := app.Store.ListAggregates(ctx, "proj", "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 12.0, *rows[0].Clicks)

	cfg, err := app.Service.GetConfig(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, cfg.LastSyncStatus)
}
