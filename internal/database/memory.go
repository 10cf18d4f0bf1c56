package database

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/oauth2"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

type recordKey struct {
	projectID, sourceName, key string
}

// MemoryStore keeps everything in process memory. Data is lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	configs     map[string]core.StoredConfig
	aggregates  map[recordKey]core.AggregateRecord
	individuals map[recordKey]core.IndividualRecord
	tokens      map[string]oauth2.Token
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs:     make(map[string]core.StoredConfig),
		aggregates:  make(map[recordKey]core.AggregateRecord),
		individuals: make(map[recordKey]core.IndividualRecord),
		tokens:      make(map[string]oauth2.Token),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) LoadConfig(_ context.Context, projectID string) (core.StoredConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.configs[projectID]
	if !ok {
		return core.StoredConfig{}, core.ErrConfigNotFound
	}
	c.Document = append([]byte(nil), c.Document...)
	return c, nil
}

func (m *MemoryStore) SaveConfig(_ context.Context, cfg core.StoredConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.configs[cfg.ProjectID]; ok {
		cfg.LastSyncAt, cfg.LastSyncStatus, cfg.LastSyncError = prev.LastSyncAt, prev.LastSyncStatus, prev.LastSyncError
	}
	cfg.Document = append([]byte(nil), cfg.Document...)
	m.configs[cfg.ProjectID] = cfg
	return nil
}

func (m *MemoryStore) UpdateSyncStatus(_ context.Context, projectID string, u core.SyncStatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[projectID]
	if !ok {
		return core.ErrConfigNotFound
	}
	c.LastSyncAt, c.LastSyncStatus, c.LastSyncError = u.LastSyncAt, u.LastSyncStatus, u.LastSyncError
	m.configs[projectID] = c
	return nil
}

func (m *MemoryStore) ListConfigs(context.Context) ([]core.StoredConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.StoredConfig, 0, len(m.configs))
	for _, c := range m.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, nil
}

func (m *MemoryStore) DeleteConfig(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[projectID]; !ok {
		return core.ErrConfigNotFound
	}
	delete(m.configs, projectID)
	return nil
}

func (m *MemoryStore) DeleteRecords(_ context.Context, projectID, sourceName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := func(k recordKey) bool {
		return k.projectID == projectID && (sourceName == "" || k.sourceName == sourceName)
	}

	var n int64
	for k := range m.aggregates {
		if match(k) {
			delete(m.aggregates, k)
			n++
		}
	}
	for k := range m.individuals {
		if match(k) {
			delete(m.individuals, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) FindExistingAggregates(_ context.Context, projectID, sourceName string, dates []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool)
	for _, d := range dates {
		if _, ok := m.aggregates[recordKey{projectID, sourceName, d}]; ok {
			out[d] = true
		}
	}
	return out, nil
}

func (m *MemoryStore) UpsertAggregate(_ context.Context, rec core.AggregateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.CustomData = cloneMap(rec.CustomData)
	m.aggregates[recordKey{rec.ProjectID, rec.SourceName, rec.Date}] = rec
	return nil
}

func (m *MemoryStore) FindExistingIndividuals(_ context.Context, projectID, sourceName string, ids []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool)
	for _, id := range ids {
		if _, ok := m.individuals[recordKey{projectID, sourceName, id}]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (m *MemoryStore) UpsertIndividual(_ context.Context, rec core.IndividualRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.RecordData = cloneMap(rec.RecordData)
	m.individuals[recordKey{rec.ProjectID, rec.SourceName, rec.RecordID}] = rec
	return nil
}

func (m *MemoryStore) ListAggregates(_ context.Context, projectID, sourceName string) ([]core.AggregateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.AggregateRecord
	for k, rec := range m.aggregates {
		if k.projectID == projectID && (sourceName == "" || k.sourceName == sourceName) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceName != out[j].SourceName {
			return out[i].SourceName < out[j].SourceName
		}
		return out[i].Date < out[j].Date
	})
	return out, nil
}

func (m *MemoryStore) ListIndividuals(_ context.Context, projectID, sourceName string) ([]core.IndividualRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.IndividualRecord
	for k, rec := range m.individuals {
		if k.projectID == projectID && (sourceName == "" || k.sourceName == sourceName) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceName != out[j].SourceName {
			return out[i].SourceName < out[j].SourceName
		}
		return out[i].RecordID < out[j].RecordID
	})
	return out, nil
}

func (m *MemoryStore) LoadToken(_ context.Context, projectID string) (*oauth2.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[projectID]
	if !ok {
		return nil, core.ErrTokenNotFound
	}
	return &tok, nil
}

func (m *MemoryStore) SaveToken(_ context.Context, projectID string, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := *tok
	if next.RefreshToken == "" {
		next.RefreshToken = m.tokens[projectID].RefreshToken
	}
	m.tokens[projectID] = next
	return nil
}
