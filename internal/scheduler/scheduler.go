// Package scheduler runs cron-based maintenance jobs for the gateway.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is one maintenance job. It reports how many rows it affected.
type JobFunc func(ctx context.Context) (int64, error)

// JobStatus describes a registered job for status reporting.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler manages the cron maintenance jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu        sync.RWMutex
	entries   map[string]cron.EntryID
	schedules map[string]string
	running   map[string]bool
	lastRun   map[string]time.Time
	lastErr   map[string]error

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New creates a scheduler using standard five-field cron expressions.
func New(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		logger:    logger,
		entries:   make(map[string]cron.EntryID),
		schedules: make(map[string]string),
		running:   make(map[string]bool),
		lastRun:   make(map[string]time.Time),
		lastErr:   make(map[string]error),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// AddJob registers a named job on the given cron expression. Re-adding a
// name replaces its schedule.
func (s *Scheduler) AddJob(name, cronExpr string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
	}

	id, err := s.cron.AddFunc(cronExpr, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", cronExpr, name, err)
	}
	s.entries[name] = id
	s.schedules[name] = cronExpr
	s.logger.Info("job scheduled", "job", name, "schedule", cronExpr)
	return nil
}

// run executes one job, skipping if the previous run is still going.
func (s *Scheduler) run(name string, fn JobFunc) {
	s.mu.Lock()
	if s.stopped || s.running[name] {
		s.mu.Unlock()
		return
	}
	s.running[name] = true
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	start := time.Now()
	n, err := fn(s.ctx)

	s.mu.Lock()
	s.lastRun[name] = start
	s.lastErr[name] = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", name, "error", err)
		return
	}
	s.logger.Info("job finished", "job", name, "affected", n, "duration", time.Since(start))
}

// RunNow triggers a job outside its schedule.
func (s *Scheduler) RunNow(name string, fn JobFunc) {
	s.run(name, fn)
}

// Start begins executing jobs on schedule.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.entries))
}

// Stop halts the cron loop, cancels running jobs, and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cron.Stop()
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Status reports every registered job.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.entries))
	for name, id := range s.entries {
		st := JobStatus{
			Name:     name,
			Schedule: s.schedules[name],
			Running:  s.running[name],
			LastRun:  s.lastRun[name],
			NextRun:  s.cron.Entry(id).Next,
		}
		if err := s.lastErr[name]; err != nil {
			st.LastError = err.Error()
		}
		out = append(out, st)
	}
	return out
}
