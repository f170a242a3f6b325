package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ngoyal88/auditrelay/pkg/cache"
)

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		retention   time.Duration
		wantRunning bool
		wantError   bool
	}{
		{name: "valid daily schedule", schedule: "0 3 * * *", retention: time.Hour, wantRunning: true},
		{name: "empty schedule", schedule: "", retention: time.Hour},
		{name: "zero retention", schedule: "0 3 * * *"},
		{name: "invalid schedule", schedule: "invalid cron", retention: time.Hour, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(newTestStore(t), tt.schedule, tt.retention)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := s.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if s.isRunning() != tt.wantRunning {
				t.Errorf("isRunning() = %v, want %v", s.isRunning(), tt.wantRunning)
			}
			if tt.wantRunning && s.NextRun() == nil {
				t.Error("NextRun() = nil for a running scheduler")
			}
			s.Stop()
			if s.isRunning() {
				t.Error("still running after Stop()")
			}
		})
	}
}

func TestScheduler_RunOnceUsesRetentionWindow(t *testing.T) {
	store := NewLogStore(cache.NewMemoryKV(), 0)
	now := time.UnixMilli(10 * 24 * 3600 * 1000)
	putRecord(t, store, now.Add(-48*time.Hour).UnixMilli(), "stale")
	putRecord(t, store, now.Add(-time.Hour).UnixMilli(), "fresh")

	s := NewScheduler(store, "0 3 * * *", 24*time.Hour)
	s.now = func() time.Time { return now }

	deleted, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("RunOnce() deleted %d, want 1", deleted)
	}
	if _, err := store.Get(context.Background(), "fresh"); err != nil {
		t.Errorf("fresh record was pruned: %v", err)
	}
}

type stubPruner struct{ err error }

func (p stubPruner) Prune(context.Context, int64) (int, error) { return 0, p.err }

func TestScheduler_RunOnceReportsFailure(t *testing.T) {
	boom := errors.New("boom")
	s := NewScheduler(stubPruner{err: boom}, "0 3 * * *", time.Hour)
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Errorf("RunOnce() error = %v, want boom", err)
	}
}
