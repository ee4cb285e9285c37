package backfill

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/muster/internal/model"
)

func TestSchedulerRunOnceNotifies(t *testing.T) {
	f := setupSweepTestDB(t)
	north := f.chapter(t, "North")
	f.member(t, north, "A")
	f.event(t, model.EventMeeting, now.Add(-time.Hour), north)

	s := NewScheduler(f.sweeper, "", slog.Default())
	if s.schedule != DefaultSchedule {
		t.Errorf("schedule = %q, want %q", s.schedule, DefaultSchedule)
	}

	var calls []Result
	s.OnSweep(func(r Result) { calls = append(calls, r) })

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("callbacks = %d, want 1 (second sweep inserted nothing)", len(calls))
	}
	if calls[0].Inserted != 1 {
		t.Errorf("inserted = %d, want 1", calls[0].Inserted)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	f := setupSweepTestDB(t)
	s := NewScheduler(f.sweeper, "@every 1h", slog.Default())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error starting twice")
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}

	// Stopping again is a no-op.
	s.Stop()
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	f := setupSweepTestDB(t)
	s := NewScheduler(f.sweeper, "not a schedule", slog.Default())
	if err := s.Start(context.Background()); err == nil {
		s.Stop()
		t.Fatal("expected error for invalid schedule")
	}
}
