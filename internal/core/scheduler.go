package core

// scheduler.go runs recurring project syncs.
//
// The Scheduler owns a mutex-guarded job table with one timer per job. Firing a
// timer runs the sync in the timer's goroutine; when it completes the job is
// rescheduled, with exponential backoff after failures. State is in-memory and
// single-process: jobs are re-created from saved configs on start (see
// Service.Bootstrap).

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultJobMode is the source group of spreadsheet syncs.
const DefaultJobMode = "sheets"

// JobState is the lifecycle state of a SyncJob.
type JobState string

const (
	JobIdle             JobState = "idle"
	JobScheduled        JobState = "scheduled"
	JobRunning          JobState = "running"
	JobBackoffScheduled JobState = "backoff_scheduled"
)

// SyncJob is the scheduler's view of one (project, mode) schedule. Not persisted.
type SyncJob struct {
	ID                  string    `json:"id"`
	ProjectID           string    `json:"projectId"`
	Mode                string    `json:"mode"`
	IntervalMinutes     int       `json:"intervalMinutes"`
	LastRun             time.Time `json:"lastRun"`
	NextRun             time.Time `json:"nextRun"`
	IsActive            bool      `json:"isActive"`
	State               JobState  `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
}

// JobID returns the id of the job for a project and mode.
func JobID(projectID, mode string) string {
	return mode + "-" + projectID
}

// Timer is a cancellable pending call.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the scheduler.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RunFunc performs one project sync.
type RunFunc func(ctx context.Context, projectID string) SyncResult

// SchedulerOptions configures a Scheduler. Zero values take defaults.
type SchedulerOptions struct {
	Clock      Clock         // default: wall clock
	MaxBackoff time.Duration // default: 24h
	RunTimeout time.Duration // default: none
	Logger     *slog.Logger
}

type jobEntry struct {
	job     SyncJob
	timer   Timer
	gen     uint64
	running bool
	removed bool
}

// Scheduler fires project syncs on per-job timers.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*jobEntry
	stopped bool
	wg      sync.WaitGroup

	run        RunFunc
	clock      Clock
	maxBackoff time.Duration
	runTimeout time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a Scheduler that calls run for due jobs.
func NewScheduler(run RunFunc, opts SchedulerOptions) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:       make(map[string]*jobEntry),
		run:        run,
		clock:      opts.Clock,
		maxBackoff: opts.MaxBackoff,
		runTimeout: opts.RunTimeout,
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// AddOrUpdateJob creates the job for (projectID, mode) or changes its interval.
// There is never more than one timer per job. Updating a running job only
// changes the interval used when the run completes.
func (s *Scheduler) AddOrUpdateJob(projectID, mode string, intervalMinutes int) (SyncJob, error) {
	if intervalMinutes <= 0 {
		return SyncJob{}, fmt.Errorf("invalid request: interval must be positive, got %d", intervalMinutes)
	}
	if mode == "" {
		mode = DefaultJobMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return SyncJob{}, fmt.Errorf("scheduler stopped")
	}

	id := JobID(projectID, mode)
	e, ok := s.jobs[id]
	if !ok {
		e = &jobEntry{job: SyncJob{ID: id, ProjectID: projectID, Mode: mode, State: JobIdle}}
		s.jobs[id] = e
	}
	e.job.IntervalMinutes = intervalMinutes
	e.job.IsActive = true

	if e.running {
		return e.job, nil
	}

	s.stopTimerLocked(e)
	s.scheduleLocked(e, s.nextRunLocked(e.job), JobScheduled)

	s.logger.Info("sync job scheduled",
		"job_id", id,
		"interval_minutes", intervalMinutes,
		"next_run", e.job.NextRun,
	)
	return e.job, nil
}

// RemoveJob cancels the pending timer of a job. A run in flight finishes but
// is not rescheduled.
func (s *Scheduler) RemoveJob(projectID, mode string) error {
	if mode == "" {
		mode = DefaultJobMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := JobID(projectID, mode)
	e, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	s.stopTimerLocked(e)
	e.removed = true
	e.job.IsActive = false
	delete(s.jobs, id)

	s.logger.Info("sync job removed", "job_id", id, "running", e.running)
	return nil
}

// JobStatus returns a snapshot of one job.
func (s *Scheduler) JobStatus(projectID, mode string) (SyncJob, error) {
	if mode == "" {
		mode = DefaultJobMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[JobID(projectID, mode)]
	if !ok {
		return SyncJob{}, ErrJobNotFound
	}
	return e.job, nil
}

// Jobs returns a snapshot of every job, ordered by id.
func (s *Scheduler) Jobs() []SyncJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SyncJob, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stop cancels every pending timer and waits for in-flight runs. When ctx
// ends first, the runs' contexts are cancelled and ctx's error is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for _, e := range s.jobs {
		s.stopTimerLocked(e)
		if !e.running {
			e.job.State = JobIdle
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// Backoff returns the reschedule delay after the given number of consecutive failures:
// interval doubled per failure, capped at max.
func Backoff(interval time.Duration, failures int, max time.Duration) time.Duration {
	d := interval
	for i := 0; i < failures && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

// nextRunLocked is lastRun + interval, or now + interval when that is past
// or the job never ran. Overdue jobs never catch up.
func (s *Scheduler) nextRunLocked(job SyncJob) time.Time {
	now := s.clock.Now()
	interval := time.Duration(job.IntervalMinutes) * time.Minute
	if job.LastRun.IsZero() {
		return now.Add(interval)
	}
	next := job.LastRun.Add(interval)
	if next.Before(now) {
		return now.Add(interval)
	}
	return next
}

func (s *Scheduler) scheduleLocked(e *jobEntry, at time.Time, state JobState) {
	e.gen++
	gen, id := e.gen, e.job.ID
	e.job.NextRun = at
	e.job.State = state

	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	e.timer = s.clock.AfterFunc(delay, func() { s.fire(id, gen) })
}

func (s *Scheduler) stopTimerLocked(e *jobEntry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

// fire runs a due job. Stale timers (rescheduled, removed or stopped) do nothing.
func (s *Scheduler) fire(id string, gen uint64) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if !ok || e.gen != gen || e.running || s.stopped {
		s.mu.Unlock()
		return
	}
	e.running = true
	e.timer = nil
	e.job.State = JobRunning
	projectID := e.job.ProjectID
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	result := s.execute(projectID, id)
	s.complete(e, result)
}

// execute runs the sync, converting a panic into a failed result.
func (s *Scheduler) execute(projectID, id string) (result SyncResult) {
	ctx := s.ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled sync panicked", "job_id", id, "panic", r)
			result = SyncResult{ProjectID: projectID, Error: fmt.Sprintf("sync panicked: %v", r)}
		}
	}()
	return s.run(ctx, projectID)
}

// complete records the outcome and arms the next timer.
func (s *Scheduler) complete(e *jobEntry, result SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.running = false
	if e.removed || s.stopped {
		e.job.State = JobIdle
		return
	}

	now := s.clock.Now()
	interval := time.Duration(e.job.IntervalMinutes) * time.Minute

	if result.Success {
		e.job.LastRun = now
		e.job.ConsecutiveFailures = 0
		e.job.LastError = ""
		s.scheduleLocked(e, now.Add(interval), JobScheduled)
		s.logger.Info("scheduled sync succeeded", "job_id", e.job.ID, "next_run", e.job.NextRun)
		return
	}

	e.job.ConsecutiveFailures++
	e.job.LastError = result.Error
	delay := Backoff(interval, e.job.ConsecutiveFailures, s.maxBackoff)
	s.scheduleLocked(e, now.Add(delay), JobBackoffScheduled)
	s.logger.Warn("scheduled sync failed, backing off",
		"job_id", e.job.ID,
		"consecutive_failures", e.job.ConsecutiveFailures,
		"retry_in_minutes", int(delay/time.Minute),
		"error", result.Error,
	)
}
