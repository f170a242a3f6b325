package storage

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner removes records older than a cutoff in epoch milliseconds.
type Pruner interface {
	Prune(ctx context.Context, cutoff int64) (int, error)
}

// Scheduler prunes expired records on a cron schedule (e.g. "0 3 * * *",
// daily at 3 AM).
type Scheduler struct {
	pruner    Pruner
	schedule  string
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a scheduler. A retention of zero or an empty schedule
// disables pruning.
func NewScheduler(pruner Pruner, schedule string, retention time.Duration) *Scheduler {
	return &Scheduler{
		pruner:    pruner,
		schedule:  schedule,
		retention: retention,
		now:       time.Now,
		cron:      cron.New(),
	}
}

// Start registers the pruning job and stops it when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" || s.retention <= 0 {
		log.Printf("[STORE] retention pruning disabled")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	log.Printf("[STORE] retention scheduler started (schedule %q, keep %s)", s.schedule, s.retention)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce prunes everything older than the retention window.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention).UnixMilli()
	deleted, err := s.pruner.Prune(ctx, cutoff)
	if err != nil {
		storeFailures.WithLabelValues("prune").Inc()
		log.Printf("[STORE] pruning failed after %d records: %v", deleted, err)
		return deleted, err
	}
	if deleted > 0 {
		prunedRecords.Add(float64(deleted))
		log.Printf("[STORE] pruned %d records older than %s", deleted, time.UnixMilli(cutoff).UTC().Format(time.RFC3339))
	}
	return deleted, nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		log.Printf("[STORE] retention scheduler stopped")
	}
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pruning time, or nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
