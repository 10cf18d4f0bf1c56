package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Record store
// =============================================================================

type fakeRecordStore struct {
	mu          sync.Mutex
	aggregates  map[string]AggregateRecord
	individuals map[string]IndividualRecord
	lookups     int
	lookupErr   error
	failKeys    map[string]bool
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		aggregates:  make(map[string]AggregateRecord),
		individuals: make(map[string]IndividualRecord),
		failKeys:    make(map[string]bool),
	}
}

func aggKey(projectID, sourceName, date string) string {
	return projectID + "|" + sourceName + "|" + date
}

func (f *fakeRecordStore) FindExistingAggregates(_ context.Context, projectID, sourceName string, dates []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	out := make(map[string]bool)
	for _, d := range dates {
		if _, ok := f.aggregates[aggKey(projectID, sourceName, d)]; ok {
			out[d] = true
		}
	}
	return out, nil
}

func (f *fakeRecordStore) UpsertAggregate(_ context.Context, rec AggregateRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKeys[rec.Date] {
		return errors.New("constraint violation")
	}
	f.aggregates[aggKey(rec.ProjectID, rec.SourceName, rec.Date)] = rec
	return nil
}

func (f *fakeRecordStore) FindExistingIndividuals(_ context.Context, projectID, sourceName string, ids []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	out := make(map[string]bool)
	for _, id := range ids {
		if _, ok := f.individuals[aggKey(projectID, sourceName, id)]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeRecordStore) UpsertIndividual(_ context.Context, rec IndividualRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKeys[rec.RecordID] {
		return errors.New("constraint violation")
	}
	f.individuals[aggKey(rec.ProjectID, rec.SourceName, rec.RecordID)] = rec
	return nil
}

func (f *fakeRecordStore) aggregateKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.aggregates))
	for k := range f.aggregates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// Config store
// =============================================================================

type fakeConfigStore struct {
	mu      sync.Mutex
	configs map[string]StoredConfig
	saves   int
	loadErr error
}

func newFakeConfigStore() *fakeConfigStore {
	return &fakeConfigStore{configs: make(map[string]StoredConfig)}
}

func (f *fakeConfigStore) LoadConfig(_ context.Context, projectID string) (StoredConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return StoredConfig{}, f.loadErr
	}
	c, ok := f.configs[projectID]
	if !ok {
		return StoredConfig{}, ErrConfigNotFound
	}
	return c, nil
}

func (f *fakeConfigStore) SaveConfig(_ context.Context, cfg StoredConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if prev, ok := f.configs[cfg.ProjectID]; ok {
		cfg.LastSyncAt, cfg.LastSyncStatus, cfg.LastSyncError = prev.LastSyncAt, prev.LastSyncStatus, prev.LastSyncError
	}
	f.configs[cfg.ProjectID] = cfg
	return nil
}

func (f *fakeConfigStore) UpdateSyncStatus(_ context.Context, projectID string, u SyncStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.configs[projectID]
	if !ok {
		return ErrConfigNotFound
	}
	c.LastSyncAt, c.LastSyncStatus, c.LastSyncError = u.LastSyncAt, u.LastSyncStatus, u.LastSyncError
	f.configs[projectID] = c
	return nil
}

func (f *fakeConfigStore) ListConfigs(context.Context) ([]StoredConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]StoredConfig, 0, len(f.configs))
	for _, c := range f.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, nil
}

func (f *fakeConfigStore) DeleteConfig(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[projectID]; !ok {
		return ErrConfigNotFound
	}
	delete(f.configs, projectID)
	return nil
}

// =============================================================================
// Adapter, credentials, notifier
// =============================================================================

type fakeAdapter struct {
	mu     sync.Mutex
	grids  map[string][][]string // "sourceID|sheet" -> rows
	errs   map[string]error      // sourceID -> error
	calls  []string
	tokens []string
	sheets map[string][]string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		grids:  make(map[string][][]string),
		errs:   make(map[string]error),
		sheets: make(map[string][]string),
	}
}

func (f *fakeAdapter) FetchRows(_ context.Context, token, sourceID, rangeSpec string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sourceID+"|"+rangeSpec)
	f.tokens = append(f.tokens, token)
	if err := f.errs[sourceID]; err != nil {
		return nil, err
	}
	sheet, _, err := ParseRange(rangeSpec)
	if err != nil {
		return nil, err
	}
	rows, ok := f.grids[sourceID+"|"+sheet]
	if !ok {
		return nil, fmt.Errorf("unable to parse range: %s", rangeSpec)
	}
	return rows, nil
}

func (f *fakeAdapter) ListSheets(_ context.Context, _, sourceID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[sourceID]; err != nil {
		return nil, err
	}
	return f.sheets[sourceID], nil
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAdapter) fetchedRanges() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.calls, ",")
}

type fakeCredentials struct {
	token string
	err   error
	calls int
}

func (f *fakeCredentials) GetValidAccessToken(context.Context, string) (string, error) {
	f.calls++
	return f.token, f.err
}

type fakeNotifier struct {
	mu      sync.Mutex
	results []SyncResult
}

func (f *fakeNotifier) SyncCompleted(r SyncResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

// =============================================================================
// Clock
// =============================================================================

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock fires due timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward, firing timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

// pending returns the number of armed timers.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
