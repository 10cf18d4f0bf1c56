// Package database provides the storage backends of the sync engine:
// PostgreSQL (pgx), embedded SQLite and an in-memory store. Each backend
// stores project configs, synced records and OAuth connections.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// Store is the full persistence surface used by the engine.
type Store interface {
	core.ConfigStore
	core.RecordStore

	// ListAggregates returns stored aggregate rows; an empty sourceName matches all.
	ListAggregates(ctx context.Context, projectID, sourceName string) ([]core.AggregateRecord, error)
	// ListIndividuals returns stored individual records; an empty sourceName matches all.
	ListIndividuals(ctx context.Context, projectID, sourceName string) ([]core.IndividualRecord, error)
	// DeleteRecords removes a project's aggregate and individual rows and
	// returns how many were removed; an empty sourceName matches all.
	DeleteRecords(ctx context.Context, projectID, sourceName string) (int64, error)

	// LoadToken returns the OAuth token of a project or core.ErrTokenNotFound.
	LoadToken(ctx context.Context, projectID string) (*oauth2.Token, error)
	// SaveToken inserts or replaces the OAuth token of a project.
	SaveToken(ctx context.Context, projectID string, tok *oauth2.Token) error

	Close() error
}

// Options selects and tunes a store.
type Options struct {
	Driver string // postgres, sqlite or memory

	URL        string
	SQLitePath string

	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open connects to the configured store and makes sure its schema exists.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "postgres":
		pg, err := ConnectPostgres(ctx, opts)
		if err != nil {
			return nil, err
		}
		if err := pg.InitSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case "sqlite":
		return OpenSQLite(opts.SQLitePath)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

// cloneMap returns a shallow copy of m.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
