package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/muster/internal/model"
)

func TestEventCreateAndGet(t *testing.T) {
	db := openTestDB(t)
	es := NewEventStore(db)
	cs := NewChapterStore(db)
	ctx := context.Background()

	north, _ := cs.Create(ctx, "North")
	south, _ := cs.Create(ctx, "South")
	cutoff := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)

	ev, err := es.Create(ctx, model.EventMeeting, "Weekly", cutoff, []int64{south.ID, north.ID})
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	if ev.Type != model.EventMeeting {
		t.Errorf("type = %q, want meeting", ev.Type)
	}
	if !ev.CutoffTime.Equal(cutoff) {
		t.Errorf("cutoff = %v, want %v", ev.CutoffTime, cutoff)
	}
	if len(ev.EligibleChapterIDs) != 2 || ev.EligibleChapterIDs[0] != north.ID {
		t.Errorf("chapters = %v, want [%d %d]", ev.EligibleChapterIDs, north.ID, south.ID)
	}

	// Meetings and trainings have independent ID spaces.
	tr, err := es.Create(ctx, model.EventTraining, "Onboarding", cutoff, []int64{north.ID})
	if err != nil {
		t.Fatalf("create training: %v", err)
	}
	if tr.ID != ev.ID {
		t.Errorf("training id = %d, want %d", tr.ID, ev.ID)
	}
	got, err := es.Get(ctx, model.EventTraining, tr.ID)
	if err != nil {
		t.Fatalf("get training: %v", err)
	}
	if got.Title != "Onboarding" || len(got.EligibleChapterIDs) != 1 {
		t.Errorf("got %+v, want Onboarding with one chapter", got)
	}

	missing, err := es.Get(ctx, model.EventMeeting, 9999)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for nonexistent meeting")
	}

	if _, err := es.Get(ctx, model.EventType("party"), 1); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestEventListPastCutoff(t *testing.T) {
	db := openTestDB(t)
	es := NewEventStore(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	past, _ := es.Create(ctx, model.EventMeeting, "Past", now.Add(-time.Hour), nil)
	es.Create(ctx, model.EventMeeting, "Future", now.Add(time.Hour), nil)
	es.Create(ctx, model.EventMeeting, "Exactly now", now, nil)
	old, _ := es.Create(ctx, model.EventMeeting, "Old", now.Add(-30*24*time.Hour), nil)
	deleted, _ := es.Create(ctx, model.EventMeeting, "Deleted", now.Add(-2*time.Hour), nil)
	inactive, _ := es.Create(ctx, model.EventMeeting, "Inactive", now.Add(-3*time.Hour), nil)
	es.Create(ctx, model.EventTraining, "Training", now.Add(-time.Hour), nil)

	es.SoftDelete(ctx, model.EventMeeting, deleted.ID)
	es.SetActive(ctx, model.EventMeeting, inactive.ID, false)

	events, err := es.ListPastCutoff(ctx, model.EventMeeting, now, time.Time{})
	if err != nil {
		t.Fatalf("list past cutoff: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 meetings, got %d", len(events))
	}
	if events[0].ID != old.ID || events[1].ID != past.ID {
		t.Errorf("got ids [%d %d], want [%d %d]", events[0].ID, events[1].ID, old.ID, past.ID)
	}

	recent, err := es.ListPastCutoff(ctx, model.EventMeeting, now, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("list with lookback: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != past.ID {
		t.Errorf("lookback result = %+v, want only %d", recent, past.ID)
	}

	trainings, err := es.ListPastCutoff(ctx, model.EventTraining, now, time.Time{})
	if err != nil {
		t.Fatalf("list trainings: %v", err)
	}
	if len(trainings) != 1 {
		t.Errorf("expected 1 training, got %d", len(trainings))
	}
}
