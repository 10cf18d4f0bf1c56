package core

// sync_limiter.go bounds the number of manual syncs running at once.
//
// Manual syncs run inline in the request that triggered them. A burst of
// "sync now" clicks would otherwise fan out into as many concurrent fetches.
// Requests wait up to maxWait for a slot before failing with ErrTooManySyncs.
// Scheduled runs do not take a slot.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManySyncs is returned when every manual sync slot stays busy for the whole wait.
var ErrTooManySyncs = errors.New("too many syncs in progress, please try again later")

// DefaultMaxConcurrentSyncs is the default limit for parallel manual syncs.
const DefaultMaxConcurrentSyncs = 4

// DefaultSyncWait is how long to wait for a slot before rejecting.
const DefaultSyncWait = 30 * time.Second

// SyncLimiter is a semaphore over manual sync runs.
type SyncLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewSyncLimiter creates a limiter allowing maxConcurrent simultaneous runs.
func NewSyncLimiter(maxConcurrent int, maxWait time.Duration) *SyncLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSyncs
	}
	if maxWait <= 0 {
		maxWait = DefaultSyncWait
	}

	return &SyncLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a slot. The caller must Release it when the run ends.
func (l *SyncLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManySyncs
	}
}

// Release frees a slot taken by Acquire.
func (l *SyncLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of runs holding a slot.
func (l *SyncLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no run holds a slot or ctx ends.
func (l *SyncLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SyncLimiterStatus is a snapshot of the limiter.
type SyncLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current limiter state for the health endpoint.
func (l *SyncLimiter) Status() SyncLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return SyncLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
