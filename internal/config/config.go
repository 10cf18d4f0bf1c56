// Package config provides centralized configuration management for the sync engine.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Sheets   SheetsConfig
	CSV      CSVConfig
	Sync     SyncConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for websockets)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 5m, manual syncs run inline)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	// Driver selects the store: postgres, sqlite or memory (default: postgres)
	Driver string `env:"DATABASE_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLitePath is the database file for the sqlite driver (default: data/sheetsync.db)
	SQLitePath string `env:"SQLITE_PATH" default:"data/sheetsync.db"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// SheetsConfig holds Google Sheets adapter and OAuth settings.
type SheetsConfig struct {
	// Adapter selects the source adapter: sheets or csv (default: sheets)
	Adapter string `env:"SOURCE_ADAPTER" default:"sheets"`

	// ClientID is the OAuth client id used to refresh project tokens
	ClientID string `env:"GOOGLE_CLIENT_ID"`

	// ClientSecret is the OAuth client secret used to refresh project tokens
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	// TokenURL overrides the OAuth token endpoint (default: Google's)
	TokenURL string `env:"GOOGLE_TOKEN_URL" default:"https://oauth2.googleapis.com/token"`

	// Endpoint overrides the Sheets API base URL (tests, proxies)
	Endpoint string `env:"SHEETS_ENDPOINT"`

	// StaticToken bypasses OAuth and uses one access token for every project
	StaticToken string `env:"SHEETS_ACCESS_TOKEN"`

	// RefreshWindow refreshes tokens that expire within this window (default: 5m)
	RefreshWindow time.Duration `env:"TOKEN_REFRESH_WINDOW" default:"5m"`

	// MaxRows is the last row requested from each sheet (default: 1000)
	MaxRows int `env:"SHEETS_MAX_ROWS" default:"1000"`
}

// CSVConfig holds local CSV directory adapter settings.
type CSVConfig struct {
	// Root is the directory holding one sub-directory per source
	Root string `env:"CSV_ROOT" default:"data/sources"`

	// Watch triggers a sync when a CSV file under Root changes (default: false)
	Watch bool `env:"CSV_WATCH" default:"false"`

	// Debounce batches rapid file events before syncing (default: 2s)
	Debounce time.Duration `env:"CSV_WATCH_DEBOUNCE" default:"2s"`
}

// SyncConfig holds scheduler and orchestrator settings.
type SyncConfig struct {
	// DefaultIntervalMinutes is used when a config enables auto-sync without an interval (default: 60)
	DefaultIntervalMinutes int `env:"SYNC_DEFAULT_INTERVAL_MINUTES" default:"60"`

	// MaxBackoff caps the reschedule delay after failures (default: 24h)
	MaxBackoff time.Duration `env:"SYNC_MAX_BACKOFF" default:"24h"`

	// SourceConcurrency is the number of sources processed in parallel per run (default: 1)
	SourceConcurrency int `env:"SYNC_SOURCE_CONCURRENCY" default:"1"`

	// RunTimeout bounds a single scheduled run (default: 10m)
	RunTimeout time.Duration `env:"SYNC_RUN_TIMEOUT" default:"10m"`

	// MaxManualSyncs is the number of "sync now" runs allowed at once (default: 4)
	MaxManualSyncs int `env:"SYNC_MAX_MANUAL" default:"4"`

	// ManualSyncWait is how long a manual sync waits for a free slot (default: 30s)
	ManualSyncWait time.Duration `env:"SYNC_MANUAL_WAIT" default:"30s"`

	// Bootstrap schedules every saved auto-sync config on startup (default: true)
	Bootstrap bool `env:"SYNC_BOOTSTRAP" default:"true"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey rejects API requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// AllowedOrigins is a comma-separated list of websocket origin patterns
	AllowedOrigins []string `env:"WS_ALLOWED_ORIGINS"`

	// TrustedProxies lists proxy CIDRs whose X-Real-IP / X-Forwarded-For headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RateLimitPerMinute caps API requests per client IP (default: 100)
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" default:"100"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File additionally writes logs to a rotated file when set
	File string `env:"LOG_FILE"`

	// FileMaxSizeMB is the size at which the log file rotates (default: 100)
	FileMaxSizeMB int `env:"LOG_FILE_MAX_SIZE_MB" default:"100"`

	// FileMaxBackups is the number of rotated files kept (default: 5)
	FileMaxBackups int `env:"LOG_FILE_MAX_BACKUPS" default:"5"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
