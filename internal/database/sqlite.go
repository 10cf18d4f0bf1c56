package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"golang.org/x/oauth2"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// SQLite stores configs, records and tokens in an embedded SQLite file.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	connStr := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		connStr = fmt.Sprintf("file:%s", path)
	}

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		conn.SetMaxOpenConns(1)
	}

	s := &SQLite{db: conn, path: path}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(SQLiteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

// DB returns the underlying sql.DB.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close checkpoints the WAL and closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	s.db = nil
	return err
}

// =============================================================================
// Configs
// =============================================================================

const sqliteConfigColumns = `
SELECT project_id, schema_version, document, auto_sync_enabled, interval_minutes,
       last_sync_at, last_sync_status, last_sync_error
FROM project_sync_configs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteConfig(row rowScanner) (core.StoredConfig, error) {
	var (
		c       core.StoredConfig
		doc     string
		lastAt  sql.NullString
		status  sql.NullString
		syncErr sql.NullString
	)
	if err := row.Scan(&c.ProjectID, &c.SchemaVersion, &doc, &c.AutoSyncEnabled, &c.IntervalMinutes, &lastAt, &status, &syncErr); err != nil {
		return core.StoredConfig{}, err
	}
	c.Document = []byte(doc)
	c.LastSyncAt = parseSQLiteTime(lastAt)
	c.LastSyncStatus = core.SyncStatus(status.String)
	c.LastSyncError = syncErr.String
	return c, nil
}

func (s *SQLite) LoadConfig(ctx context.Context, projectID string) (core.StoredConfig, error) {
	c, err := scanSQLiteConfig(s.db.QueryRowContext(ctx, sqliteConfigColumns+` WHERE project_id = ?`, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.StoredConfig{}, core.ErrConfigNotFound
	}
	if err != nil {
		return core.StoredConfig{}, fmt.Errorf("load sync config: %w", err)
	}
	return c, nil
}

func (s *SQLite) SaveConfig(ctx context.Context, cfg core.StoredConfig) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO project_sync_configs
    (project_id, schema_version, document, auto_sync_enabled, interval_minutes,
     last_sync_at, last_sync_status, last_sync_error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (project_id) DO UPDATE SET
    schema_version    = excluded.schema_version,
    document          = excluded.document,
    auto_sync_enabled = excluded.auto_sync_enabled,
    interval_minutes  = excluded.interval_minutes,
    updated_at        = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		cfg.ProjectID,
		cfg.SchemaVersion,
		string(cfg.Document),
		cfg.AutoSyncEnabled,
		cfg.IntervalMinutes,
		formatSQLiteTime(cfg.LastSyncAt),
		nullString(string(cfg.LastSyncStatus)),
		nullString(cfg.LastSyncError),
	)
	if err != nil {
		return fmt.Errorf("save sync config: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateSyncStatus(ctx context.Context, projectID string, u core.SyncStatusUpdate) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE project_sync_configs
SET last_sync_at = ?, last_sync_status = ?, last_sync_error = ?,
    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
WHERE project_id = ?`,
		formatSQLiteTime(u.LastSyncAt), nullString(string(u.LastSyncStatus)), nullString(u.LastSyncError), projectID)
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	return requireRow(res)
}

func (s *SQLite) ListConfigs(ctx context.Context) ([]core.StoredConfig, error) {
	rows, err := s.db.QueryContext(ctx, sqliteConfigColumns+` ORDER BY project_id`)
	if err != nil {
		return nil, fmt.Errorf("list sync configs: %w", err)
	}
	defer rows.Close()

	var out []core.StoredConfig
	for rows.Next() {
		c, err := scanSQLiteConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteConfig(ctx context.Context, projectID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM project_sync_configs WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("delete sync config: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrConfigNotFound
	}
	return nil
}

// =============================================================================
// Records
// =============================================================================

func (s *SQLite) DeleteRecords(ctx context.Context, projectID, sourceName string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete records: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, table := range []string{"aggregate_metrics", "individual_records"} {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE project_id = ? AND (? = '' OR source_name = ?)`,
			projectID, sourceName, sourceName)
		if err != nil {
			return 0, fmt.Errorf("delete %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete records: %w", err)
	}
	return total, nil
}

func (s *SQLite) FindExistingAggregates(ctx context.Context, projectID, sourceName string, dates []string) (map[string]bool, error) {
	return s.findExisting(ctx, "aggregate_metrics", "date", projectID, sourceName, dates)
}

func (s *SQLite) FindExistingIndividuals(ctx context.Context, projectID, sourceName string, ids []string) (map[string]bool, error) {
	return s.findExisting(ctx, "individual_records", "record_id", projectID, sourceName, ids)
}

// findExisting runs one IN query for the whole batch.
func (s *SQLite) findExisting(ctx context.Context, table, keyColumn, projectID, sourceName string, keys []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(keys)+2)
	args = append(args, projectID, sourceName)
	for _, k := range keys {
		args = append(args, k)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE project_id = ? AND source_name = ? AND %s IN (%s)`,
		keyColumn, table, keyColumn, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out[k] = true
	}
	return out, rows.Err()
}

func (s *SQLite) UpsertAggregate(ctx context.Context, rec core.AggregateRecord) error {
	custom, err := marshalJSON(rec.CustomData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO aggregate_metrics
    (project_id, date, source_name, impressions, clicks, amount_spent,
     conversions, revenue, leads, reach, custom_data)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (project_id, date, source_name) DO UPDATE SET
    impressions  = excluded.impressions,
    clicks       = excluded.clicks,
    amount_spent = excluded.amount_spent,
    conversions  = excluded.conversions,
    revenue      = excluded.revenue,
    leads        = excluded.leads,
    reach        = excluded.reach,
    custom_data  = excluded.custom_data,
    updated_at   = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		rec.ProjectID, rec.Date, rec.SourceName,
		rec.Impressions, rec.Clicks, rec.AmountSpent, rec.Conversions, rec.Revenue, rec.Leads, rec.Reach,
		custom,
	)
	return err
}

func (s *SQLite) UpsertIndividual(ctx context.Context, rec core.IndividualRecord) error {
	data, err := marshalJSON(rec.RecordData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO individual_records
    (project_id, source_name, record_id, date, record_type, amount, status, record_data)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (project_id, source_name, record_id) DO UPDATE SET
    date        = excluded.date,
    record_type = excluded.record_type,
    amount      = excluded.amount,
    status      = excluded.status,
    record_data = excluded.record_data,
    updated_at  = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		rec.ProjectID, rec.SourceName, rec.RecordID, rec.Date, rec.RecordType, rec.Amount, rec.Status, data,
	)
	return err
}

func (s *SQLite) ListAggregates(ctx context.Context, projectID, sourceName string) ([]core.AggregateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT project_id, date, source_name, impressions, clicks, amount_spent,
       conversions, revenue, leads, reach, custom_data
FROM aggregate_metrics
WHERE project_id = ? AND (? = '' OR source_name = ?)
ORDER BY source_name, date`, projectID, sourceName, sourceName)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	defer rows.Close()

	var out []core.AggregateRecord
	for rows.Next() {
		var (
			rec     core.AggregateRecord
			metrics [7]sql.NullFloat64
			custom  sql.NullString
		)
		if err := rows.Scan(&rec.ProjectID, &rec.Date, &rec.SourceName,
			&metrics[0], &metrics[1], &metrics[2], &metrics[3], &metrics[4], &metrics[5], &metrics[6],
			&custom); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		ptrs := []**float64{&rec.Impressions, &rec.Clicks, &rec.AmountSpent, &rec.Conversions, &rec.Revenue, &rec.Leads, &rec.Reach}
		for i, m := range metrics {
			if m.Valid {
				v := m.Float64
				*ptrs[i] = &v
			}
		}
		if rec.CustomData, err = unmarshalJSON(custom); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) ListIndividuals(ctx context.Context, projectID, sourceName string) ([]core.IndividualRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT project_id, source_name, record_id, date, record_type, amount, status, record_data
FROM individual_records
WHERE project_id = ? AND (? = '' OR source_name = ?)
ORDER BY source_name, record_id`, projectID, sourceName, sourceName)
	if err != nil {
		return nil, fmt.Errorf("list individual records: %w", err)
	}
	defer rows.Close()

	var out []core.IndividualRecord
	for rows.Next() {
		var (
			rec    core.IndividualRecord
			amount sql.NullFloat64
			status sql.NullString
			data   sql.NullString
		)
		if err := rows.Scan(&rec.ProjectID, &rec.SourceName, &rec.RecordID, &rec.Date, &rec.RecordType,
			&amount, &status, &data); err != nil {
			return nil, fmt.Errorf("scan individual record: %w", err)
		}
		if amount.Valid {
			v := amount.Float64
			rec.Amount = &v
		}
		if status.Valid {
			v := status.String
			rec.Status = &v
		}
		if rec.RecordData, err = unmarshalJSON(data); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// OAuth connections
// =============================================================================

func (s *SQLite) LoadToken(ctx context.Context, projectID string) (*oauth2.Token, error) {
	var (
		tok     oauth2.Token
		refresh sql.NullString
		typ     sql.NullString
		expiry  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT access_token, refresh_token, token_type, expiry
FROM oauth_connections WHERE project_id = ?`, projectID).Scan(&tok.AccessToken, &refresh, &typ, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load oauth token: %w", err)
	}
	tok.RefreshToken = refresh.String
	tok.TokenType = typ.String
	if t := parseSQLiteTime(expiry); t != nil {
		tok.Expiry = *t
	}
	return &tok, nil
}

func (s *SQLite) SaveToken(ctx context.Context, projectID string, tok *oauth2.Token) error {
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		expiry = &tok.Expiry
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO oauth_connections (project_id, access_token, refresh_token, token_type, expiry)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (project_id) DO UPDATE SET
    access_token  = excluded.access_token,
    refresh_token = COALESCE(excluded.refresh_token, oauth_connections.refresh_token),
    token_type    = excluded.token_type,
    expiry        = excluded.expiry,
    updated_at    = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		projectID, tok.AccessToken, nullString(tok.RefreshToken), nullString(tok.TokenType), formatSQLiteTime(expiry))
	if err != nil {
		return fmt.Errorf("save oauth token: %w", err)
	}
	return nil
}

// =============================================================================
// Conversion helpers
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatSQLiteTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseSQLiteTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func marshalJSON(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode json column: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalJSON(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("decode json column: %w", err)
	}
	return m, nil
}
