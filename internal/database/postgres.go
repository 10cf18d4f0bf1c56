package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// Postgres stores configs, records and tokens in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ConnectPostgres opens and pings a pool configured from opts.
func ConnectPostgres(ctx context.Context, opts Options) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", pgError(err))
	}
	return &Postgres{pool: pool}, nil
}

// InitSchema creates the engine tables if they do not exist.
func (p *Postgres) InitSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("init schema: %w", pgError(err))
	}
	return nil
}

// Pool returns the underlying pool.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

// Close releases every pooled connection.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// =============================================================================
// Configs
// =============================================================================

const selectConfigColumns = `
SELECT project_id, schema_version, document, auto_sync_enabled, interval_minutes,
       last_sync_at, last_sync_status, last_sync_error
FROM project_sync_configs`

func scanConfig(row pgx.Row) (core.StoredConfig, error) {
	var (
		c        core.StoredConfig
		doc      []byte
		lastAt   pgtype.Timestamptz
		status   pgtype.Text
		syncErr  pgtype.Text
		version  int32
		interval int32
	)
	if err := row.Scan(&c.ProjectID, &version, &doc, &c.AutoSyncEnabled, &interval, &lastAt, &status, &syncErr); err != nil {
		return core.StoredConfig{}, err
	}
	c.SchemaVersion = int(version)
	c.IntervalMinutes = int(interval)
	c.Document = doc
	c.LastSyncAt = fromPgTimestamptz(lastAt)
	c.LastSyncStatus = core.SyncStatus(fromPgText(status))
	c.LastSyncError = fromPgText(syncErr)
	return c, nil
}

func (p *Postgres) LoadConfig(ctx context.Context, projectID string) (core.StoredConfig, error) {
	c, err := scanConfig(p.pool.QueryRow(ctx, selectConfigColumns+` WHERE project_id = $1`, projectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.StoredConfig{}, core.ErrConfigNotFound
	}
	if err != nil {
		return core.StoredConfig{}, fmt.Errorf("load sync config: %w", pgError(err))
	}
	return c, nil
}

// SaveConfig upserts the document and schedule. Status columns are only
// written on insert.
func (p *Postgres) SaveConfig(ctx context.Context, cfg core.StoredConfig) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO project_sync_configs
    (project_id, schema_version, document, auto_sync_enabled, interval_minutes,
     last_sync_at, last_sync_status, last_sync_error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (project_id) DO UPDATE SET
    schema_version    = EXCLUDED.schema_version,
    document          = EXCLUDED.document,
    auto_sync_enabled = EXCLUDED.auto_sync_enabled,
    interval_minutes  = EXCLUDED.interval_minutes,
    updated_at        = now()`,
		cfg.ProjectID,
		cfg.SchemaVersion,
		string(cfg.Document),
		cfg.AutoSyncEnabled,
		cfg.IntervalMinutes,
		toPgTimestamptz(cfg.LastSyncAt),
		toPgText(string(cfg.LastSyncStatus)),
		toPgText(cfg.LastSyncError),
	)
	if err != nil {
		return fmt.Errorf("save sync config: %w", pgError(err))
	}
	return nil
}

func (p *Postgres) UpdateSyncStatus(ctx context.Context, projectID string, u core.SyncStatusUpdate) error {
	tag, err := p.pool.Exec(ctx, `
UPDATE project_sync_configs
SET last_sync_at = $2, last_sync_status = $3, last_sync_error = $4, updated_at = now()
WHERE project_id = $1`,
		projectID,
		toPgTimestamptz(u.LastSyncAt),
		toPgText(string(u.LastSyncStatus)),
		toPgText(u.LastSyncError),
	)
	if err != nil {
		return fmt.Errorf("update sync status: %w", pgError(err))
	}
	if tag.RowsAffected() == 0 {
		return core.ErrConfigNotFound
	}
	return nil
}

func (p *Postgres) ListConfigs(ctx context.Context) ([]core.StoredConfig, error) {
	rows, err := p.pool.Query(ctx, selectConfigColumns+` ORDER BY project_id`)
	if err != nil {
		return nil, fmt.Errorf("list sync configs: %w", pgError(err))
	}
	defer rows.Close()

	var out []core.StoredConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteConfig(ctx context.Context, projectID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM project_sync_configs WHERE project_id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("delete sync config: %w", pgError(err))
	}
	if tag.RowsAffected() == 0 {
		return core.ErrConfigNotFound
	}
	return nil
}

// =============================================================================
// Records
// =============================================================================

func (p *Postgres) DeleteRecords(ctx context.Context, projectID, sourceName string) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin delete records: %w", pgError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var total int64
	for _, table := range []string{"aggregate_metrics", "individual_records"} {
		tag, err := tx.Exec(ctx,
			`DELETE FROM `+table+` WHERE project_id = $1 AND ($2 = '' OR source_name = $2)`,
			projectID, sourceName)
		if err != nil {
			return 0, fmt.Errorf("delete %s: %w", table, pgError(err))
		}
		total += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit delete records: %w", pgError(err))
	}
	return total, nil
}

func (p *Postgres) FindExistingAggregates(ctx context.Context, projectID, sourceName string, dates []string) (map[string]bool, error) {
	pgDates, err := toPgDates(dates)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, `
SELECT to_char(date, 'YYYY-MM-DD')
FROM aggregate_metrics
WHERE project_id = $1 AND source_name = $2 AND date = ANY($3)`,
		projectID, sourceName, pgDates)
	if err != nil {
		return nil, pgError(err)
	}
	return collectKeys(rows)
}

func (p *Postgres) UpsertAggregate(ctx context.Context, rec core.AggregateRecord) error {
	date, err := toPgDate(rec.Date)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO aggregate_metrics
    (project_id, date, source_name, impressions, clicks, amount_spent,
     conversions, revenue, leads, reach, custom_data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (project_id, date, source_name) DO UPDATE SET
    impressions  = EXCLUDED.impressions,
    clicks       = EXCLUDED.clicks,
    amount_spent = EXCLUDED.amount_spent,
    conversions  = EXCLUDED.conversions,
    revenue      = EXCLUDED.revenue,
    leads        = EXCLUDED.leads,
    reach        = EXCLUDED.reach,
    custom_data  = EXCLUDED.custom_data,
    updated_at   = now()`,
		rec.ProjectID, date, rec.SourceName,
		toPgFloat8(rec.Impressions),
		toPgFloat8(rec.Clicks),
		toPgFloat8(rec.AmountSpent),
		toPgFloat8(rec.Conversions),
		toPgFloat8(rec.Revenue),
		toPgFloat8(rec.Leads),
		toPgFloat8(rec.Reach),
		rec.CustomData,
	)
	return pgError(err)
}

func (p *Postgres) FindExistingIndividuals(ctx context.Context, projectID, sourceName string, ids []string) (map[string]bool, error) {
	rows, err := p.pool.Query(ctx, `
SELECT record_id
FROM individual_records
WHERE project_id = $1 AND source_name = $2 AND record_id = ANY($3)`,
		projectID, sourceName, ids)
	if err != nil {
		return nil, pgError(err)
	}
	return collectKeys(rows)
}

func (p *Postgres) UpsertIndividual(ctx context.Context, rec core.IndividualRecord) error {
	date, err := toPgDate(rec.Date)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO individual_records
    (project_id, source_name, record_id, date, record_type, amount, status, record_data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (project_id, source_name, record_id) DO UPDATE SET
    date        = EXCLUDED.date,
    record_type = EXCLUDED.record_type,
    amount      = EXCLUDED.amount,
    status      = EXCLUDED.status,
    record_data = EXCLUDED.record_data,
    updated_at  = now()`,
		rec.ProjectID, rec.SourceName, rec.RecordID, date, rec.RecordType,
		toPgFloat8(rec.Amount),
		toPgTextPtr(rec.Status),
		rec.RecordData,
	)
	return pgError(err)
}

// ListAggregates returns a project's aggregate rows ordered by source and date.
// An empty sourceName matches every source.
func (p *Postgres) ListAggregates(ctx context.Context, projectID, sourceName string) ([]core.AggregateRecord, error) {
	rows, err := p.pool.Query(ctx, `
SELECT project_id, to_char(date, 'YYYY-MM-DD'), source_name, impressions, clicks, amount_spent,
       conversions, revenue, leads, reach, custom_data
FROM aggregate_metrics
WHERE project_id = $1 AND ($2 = '' OR source_name = $2)
ORDER BY source_name, date`, projectID, sourceName)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", pgError(err))
	}
	defer rows.Close()

	var out []core.AggregateRecord
	for rows.Next() {
		var (
			rec     core.AggregateRecord
			metrics [7]pgtype.Float8
		)
		if err := rows.Scan(&rec.ProjectID, &rec.Date, &rec.SourceName,
			&metrics[0], &metrics[1], &metrics[2], &metrics[3], &metrics[4], &metrics[5], &metrics[6],
			&rec.CustomData); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		ptrs := []**float64{&rec.Impressions, &rec.Clicks, &rec.AmountSpent, &rec.Conversions, &rec.Revenue, &rec.Leads, &rec.Reach}
		for i, m := range metrics {
			if m.Valid {
				v := m.Float64
				*ptrs[i] = &v
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListIndividuals returns a project's individual records ordered by source and id.
func (p *Postgres) ListIndividuals(ctx context.Context, projectID, sourceName string) ([]core.IndividualRecord, error) {
	rows, err := p.pool.Query(ctx, `
SELECT project_id, source_name, record_id, to_char(date, 'YYYY-MM-DD'), record_type, amount, status, record_data
FROM individual_records
WHERE project_id = $1 AND ($2 = '' OR source_name = $2)
ORDER BY source_name, record_id`, projectID, sourceName)
	if err != nil {
		return nil, fmt.Errorf("list individual records: %w", pgError(err))
	}
	defer rows.Close()

	var out []core.IndividualRecord
	for rows.Next() {
		var (
			rec    core.IndividualRecord
			amount pgtype.Float8
			status pgtype.Text
		)
		if err := rows.Scan(&rec.ProjectID, &rec.SourceName, &rec.RecordID, &rec.Date, &rec.RecordType,
			&amount, &status, &rec.RecordData); err != nil {
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
		out = append(out, rec)
	}
	return out, rows.Err()
}

func collectKeys(rows pgx.Rows) (map[string]bool, error) {
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, pgError(err)
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}

// =============================================================================
// OAuth connections
// =============================================================================

func (p *Postgres) LoadToken(ctx context.Context, projectID string) (*oauth2.Token, error) {
	var (
		access  string
		refresh pgtype.Text
		typ     pgtype.Text
		expiry  pgtype.Timestamptz
	)
	err := p.pool.QueryRow(ctx, `
SELECT access_token, refresh_token, token_type, expiry
FROM oauth_connections WHERE project_id = $1`, projectID).Scan(&access, &refresh, &typ, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load oauth token: %w", pgError(err))
	}

	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: fromPgText(refresh),
		TokenType:    fromPgText(typ),
	}
	if expiry.Valid {
		tok.Expiry = expiry.Time
	}
	return tok, nil
}

func (p *Postgres) SaveToken(ctx context.Context, projectID string, tok *oauth2.Token) error {
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		expiry = &tok.Expiry
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO oauth_connections (project_id, access_token, refresh_token, token_type, expiry)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (project_id) DO UPDATE SET
    access_token  = EXCLUDED.access_token,
    refresh_token = COALESCE(EXCLUDED.refresh_token, oauth_connections.refresh_token),
    token_type    = EXCLUDED.token_type,
    expiry        = EXCLUDED.expiry,
    updated_at    = now()`,
		projectID, tok.AccessToken, toPgText(tok.RefreshToken), toPgText(tok.TokenType), toPgTimestamptz(expiry))
	if err != nil {
		return fmt.Errorf("save oauth token: %w", pgError(err))
	}
	return nil
}

// pgError adds the SQLSTATE and detail of a server error to its message.
func pgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Detail != "" {
			return fmt.Errorf("%s (SQLSTATE %s): %s: %w", pgErr.Message, pgErr.Code, pgErr.Detail, err)
		}
		return fmt.Errorf("%s (SQLSTATE %s): %w", pgErr.Message, pgErr.Code, err)
	}
	return err
}
