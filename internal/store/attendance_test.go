package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/muster/internal/model"
)

type attendanceFixture struct {
	attendance *AttendanceStore
	members    *MemberStore
	events     *EventStore
	chapter    *model.Chapter
	meeting    *model.Event
}

func setupAttendanceTestDB(t *testing.T) *attendanceFixture {
	t.Helper()
	db := openTestDB(t)
	ctx := context.Background()

	cs := NewChapterStore(db)
	ch, err := cs.Create(ctx, "North")
	if err != nil {
		t.Fatalf("create chapter: %v", err)
	}
	es := NewEventStore(db)
	mtg, err := es.Create(ctx, model.EventMeeting, "Weekly", time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC), []int64{ch.ID})
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}

	return &attendanceFixture{
		attendance: NewAttendanceStore(db),
		members:    NewMemberStore(db),
		events:     es,
		chapter:    ch,
		meeting:    mtg,
	}
}

func (f *attendanceFixture) member(t *testing.T, name string) *model.Member {
	t.Helper()
	m, err := f.members.Create(context.Background(), f.chapter.ID, name)
	if err != nil {
		t.Fatalf("create member %s: %v", name, err)
	}
	return m
}

func TestAttendanceUpsertCreatesThenUpdates(t *testing.T) {
	f := setupAttendanceTestDB(t)
	ctx := context.Background()
	alice := f.member(t, "Alice")

	loc := &model.Location{Latitude: 1.5, Longitude: 103.8}
	rec, created, err := f.attendance.Upsert(ctx, alice.ID, f.meeting.ID, model.EventMeeting, model.StatusPresent, loc, "member:1")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !created {
		t.Error("first upsert should create")
	}
	if rec.Status != model.StatusPresent {
		t.Errorf("status = %q, want present", rec.Status)
	}
	if rec.CreatedBy != "member:1" || rec.UpdatedBy != "member:1" {
		t.Errorf("created_by/updated_by = %q/%q", rec.CreatedBy, rec.UpdatedBy)
	}
	if rec.Location == nil || rec.Location.Latitude != 1.5 {
		t.Errorf("location = %+v, want lat 1.5", rec.Location)
	}
	if !rec.Active || rec.Deleted {
		t.Errorf("active/deleted = %v/%v, want true/false", rec.Active, rec.Deleted)
	}

	updated, created, err := f.attendance.Upsert(ctx, alice.ID, f.meeting.ID, model.EventMeeting, model.StatusMedical, nil, "admin:1")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Error("second upsert should update")
	}
	if updated.ID != rec.ID {
		t.Errorf("id = %d, want %d", updated.ID, rec.ID)
	}
	if updated.Status != model.StatusMedical {
		t.Errorf("status = %q, want medical", updated.Status)
	}
	if updated.CreatedBy != "member:1" || updated.UpdatedBy != "admin:1" {
		t.Errorf("created_by/updated_by = %q/%q, want member:1/admin:1", updated.CreatedBy, updated.UpdatedBy)
	}
	if updated.Location == nil {
		t.Error("update without location should keep stored location")
	}

	records, err := f.attendance.FindBySource(ctx, f.meeting.ID, model.EventMeeting)
	if err != nil {
		t.Fatalf("find by source: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}
}

func TestAttendanceUpsertKeyIncludesEventType(t *testing.T) {
	f := setupAttendanceTestDB(t)
	ctx := context.Background()
	alice := f.member(t, "Alice")

	_, created, err := f.attendance.Upsert(ctx, alice.ID, f.meeting.ID, model.EventMeeting, model.StatusPresent, nil, "admin:1")
	if err != nil || !created {
		t.Fatalf("meeting upsert: created=%v err=%v", created, err)
	}
	_, created, err = f.attendance.Upsert(ctx, alice.ID, f.meeting.ID, model.EventTraining, model.StatusPresent, nil, "admin:1")
	if err != nil {
		t.Fatalf("training upsert: %v", err)
	}
	if !created {
		t.Error("same id under another event type should be a separate record")
	}

	records, _ := f.attendance.FindByMember(ctx, alice.ID)
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestAttendanceInsertConflict(t *testing.T) {
	f := setupAttendanceTestDB(t)
	ctx := context.Background()
	alice := f.member(t, "Alice")

	if _, err := f.attendance.insert(ctx, alice.ID, f.meeting.ID, model.EventMeeting, model.StatusPresent, nil, "a"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := f.attendance.insert(ctx, alice.ID, f.meeting.ID, model.EventMeeting, model.StatusLate, nil, "b")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestAttendanceConcurrentUpsertConverges(t *testing.T) {
	f := setupAttendanceTestDB(t)
	ctx := context.Background()
	alice := f.member(t, "Alice")

	statuses := []model.AttendanceStatus{model.StatusPresent, model.StatusLate, model.StatusPresent, model.StatusLate}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var creates int
	errs := make(chan error, len(statuses))
	for _, st := range statuses {
		wg.Add(1)
		go func(st model.AttendanceStatus) {
			defer wg.Done()
			_, created, err := f.attendance.Upsert(ctx, alice.ID, f.meeting.ID, model.EventMeeting, st, nil, "member:1")
			if err != nil {
				errs <- err
				return
			}
			if created {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}(st)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent upsert: %v", err)
	}
	if creates != 1 {
		t.Errorf("creates = %d, want exactly 1", creates)
	}

	records, err := f.attendance.FindBySource(ctx, f.meeting.ID, model.EventMeeting)
	if err != nil {
		t.Fatalf("find by source: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if s := records[0].Status; s != model.StatusPresent && s != model.StatusLate {
		t.Errorf("status = %q, want one of the submitted values", s)
	}
}

func TestAttendanceBulkUpsertAbsentIfMissing(t *testing.T) {
	f := setupAttendanceTestDB(t)
	ctx := context.Background()
	a := f.member(t, "A")
	b := f.member(t, "B")
	c := f.member(t, "C")

	if _, _, err := f.attendance.Upsert(ctx, a.ID, f.meeting.ID, model.EventMeeting, model.StatusPresent, nil, "member:a"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := f.attendance.BulkUpsertAbsentIfMissing(ctx, f.meeting.ID, model.EventMeeting, []int64{a.ID, b.ID, c.ID, c.ID, 9999})
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	records, _ := f.attendance.FindBySource(ctx, f.meeting.ID, model.EventMeeting)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for _, r := range records {
		want := model.StatusAbsent
		if r.MemberID == a.ID {
			want = model.StatusPresent
		}
		if r.Status != want {
			t.Errorf("member %d status = %q, want %q", r.MemberID, r.Status, want)
		}
		if r.MemberID != a.ID && r.CreatedBy != ActorBackfill {
			t.Errorf("member %d created_by = %q, want %q", r.MemberID, r.CreatedBy, ActorBackfill)
		}
	}

	again, err := f.attendance.BulkUpsertAbsentIfMissing(ctx, f.meeting.ID, model.EventMeeting, []int64{a.ID, b.ID, c.ID})
	if err != nil {
		t.Fatalf("second backfill: %v", err)
	}
	if again != 0 {
		t.Errorf("second backfill inserted %d, want 0", again)
	}
}

func TestAttendanceBulkUpsertAbsentChunks(t *testing.T) {
	f := setupAttendanceTestDB(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < bulkChunk+25; i++ {
		ids = append(ids, f.member(t, "M").ID)
	}

	n, err := f.attendance.BulkUpsertAbsentIfMissing(ctx, f.meeting.ID, model.EventMeeting, ids)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if n != int64(len(ids)) {
		t.Errorf("inserted = %d, want %d", n, len(ids))
	}
}

func TestAttendanceBulkUpsert(t *testing.T) {
	f := setupAttendanceTestDB(t)
	ctx := context.Background()
	a := f.member(t, "A")
	b := f.member(t, "B")

	first, _, err := f.attendance.Upsert(ctx, a.ID, f.meeting.ID, model.EventMeeting, model.StatusAbsent, nil, ActorBackfill)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := f.attendance.BulkUpsert(ctx, f.meeting.ID, model.EventMeeting, []int64{a.ID, b.ID, b.ID}, model.StatusProxy, "admin:7")
	if err != nil {
		t.Fatalf("bulk upsert: %v", err)
	}
	if n != 2 {
		t.Errorf("written = %d, want 2", n)
	}

	records, _ := f.attendance.FindBySource(ctx, f.meeting.ID, model.EventMeeting)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, r := range records {
		if r.Status != model.StatusProxy {
			t.Errorf("member %d status = %q, want proxy", r.MemberID, r.Status)
		}
		if r.UpdatedBy != "admin:7" {
			t.Errorf("member %d updated_by = %q, want admin:7", r.MemberID, r.UpdatedBy)
		}
		if r.MemberID == a.ID && r.ID != first.ID {
			t.Errorf("existing record replaced: id %d, want %d", r.ID, first.ID)
		}
	}
}

func TestAttendanceFindByMemberOrder(t *testing.T) {
	f := setupAttendanceTestDB(t)
	ctx := context.Background()
	alice := f.member(t, "Alice")

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	as := f.attendance.WithClock(func() time.Time { return clock })

	second, err := f.events.Create(ctx, model.EventMeeting, "Second", clock.Add(24*time.Hour), []int64{f.chapter.ID})
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}

	older, _, _ := as.Upsert(ctx, alice.ID, f.meeting.ID, model.EventMeeting, model.StatusPresent, nil, "m")
	clock = clock.Add(time.Hour)
	newer, _, _ := as.Upsert(ctx, alice.ID, second.ID, model.EventMeeting, model.StatusLate, nil, "m")

	records, err := f.attendance.FindByMember(ctx, alice.ID)
	if err != nil {
		t.Fatalf("find by member: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != newer.ID || records[1].ID != older.ID {
		t.Errorf("order = [%d %d], want [%d %d]", records[0].ID, records[1].ID, newer.ID, older.ID)
	}
	if !records[0].CreatedAt.Equal(clock) {
		t.Errorf("created_at = %v, want %v", records[0].CreatedAt, clock)
	}
}
