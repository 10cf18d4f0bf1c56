package database

// PostgresSchema creates the engine tables. Every statement is idempotent.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS project_sync_configs (
    project_id        TEXT PRIMARY KEY,
    schema_version    INTEGER NOT NULL DEFAULT 2,
    document          JSONB NOT NULL,
    auto_sync_enabled BOOLEAN NOT NULL DEFAULT FALSE,
    interval_minutes  INTEGER NOT NULL DEFAULT 60,
    last_sync_at      TIMESTAMPTZ,
    last_sync_status  TEXT,
    last_sync_error   TEXT,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS aggregate_metrics (
    project_id   TEXT NOT NULL,
    date         DATE NOT NULL,
    source_name  TEXT NOT NULL,
    impressions  DOUBLE PRECISION,
    clicks       DOUBLE PRECISION,
    amount_spent DOUBLE PRECISION,
    conversions  DOUBLE PRECISION,
    revenue      DOUBLE PRECISION,
    leads        DOUBLE PRECISION,
    reach        DOUBLE PRECISION,
    custom_data  JSONB,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (project_id, date, source_name)
);

CREATE TABLE IF NOT EXISTS individual_records (
    project_id  TEXT NOT NULL,
    source_name TEXT NOT NULL,
    record_id   TEXT NOT NULL,
    date        DATE NOT NULL,
    record_type TEXT NOT NULL,
    amount      DOUBLE PRECISION,
    status      TEXT,
    record_data JSONB,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (project_id, source_name, record_id)
);

CREATE INDEX IF NOT EXISTS idx_individual_records_date
    ON individual_records (project_id, date);

CREATE TABLE IF NOT EXISTS oauth_connections (
    project_id    TEXT PRIMARY KEY,
    access_token  TEXT NOT NULL,
    refresh_token TEXT,
    token_type    TEXT,
    expiry        TIMESTAMPTZ,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// SQLiteSchema is the SQLite form of PostgresSchema. Dates are ISO text and
// JSON documents are stored as text.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS project_sync_configs (
    project_id        TEXT PRIMARY KEY,
    schema_version    INTEGER NOT NULL DEFAULT 2,
    document          TEXT NOT NULL,
    auto_sync_enabled INTEGER NOT NULL DEFAULT 0,
    interval_minutes  INTEGER NOT NULL DEFAULT 60,
    last_sync_at      TEXT,
    last_sync_status  TEXT,
    last_sync_error   TEXT,
    created_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    updated_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS aggregate_metrics (
    project_id   TEXT NOT NULL,
    date         TEXT NOT NULL,
    source_name  TEXT NOT NULL,
    impressions  REAL,
    clicks       REAL,
    amount_spent REAL,
    conversions  REAL,
    revenue      REAL,
    leads        REAL,
    reach        REAL,
    custom_data  TEXT,
    updated_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    PRIMARY KEY (project_id, date, source_name)
);

CREATE TABLE IF NOT EXISTS individual_records (
    project_id  TEXT NOT NULL,
    source_name TEXT NOT NULL,
    record_id   TEXT NOT NULL,
    date        TEXT NOT NULL,
    record_type TEXT NOT NULL,
    amount      REAL,
    status      TEXT,
    record_data TEXT,
    updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    PRIMARY KEY (project_id, source_name, record_id)
);

CREATE INDEX IF NOT EXISTS idx_individual_records_date
    ON individual_records (project_id, date);

CREATE TABLE IF NOT EXISTS oauth_connections (
    project_id    TEXT PRIMARY KEY,
    access_token  TEXT NOT NULL,
    refresh_token TEXT,
    token_type    TEXT,
    expiry        TEXT,
    updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`
