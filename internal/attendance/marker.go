// Package attendance turns attendance actions into attendance records and
// point accruals.
package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/muster/internal/auth"
	"github.com/dukerupert/muster/internal/middleware"
	"github.com/dukerupert/muster/internal/model"
	"github.com/dukerupert/muster/internal/points"
	"github.com/dukerupert/muster/internal/store"
)

type MarkRequest struct {
	MemberID  int64
	EventID   int64
	EventType model.EventType
	Status    model.AttendanceStatus
	Location  *model.Location
}

type BulkRequest struct {
	EventID   int64
	EventType model.EventType
	MemberIDs []int64
	Status    model.AttendanceStatus
}

type Result struct {
	Record         *model.AttendanceRecord `json:"record"`
	Created        bool                    `json:"created"`
	PointsCredited bool                    `json:"points_credited"`
}

type Marker struct {
	events     *store.EventStore
	members    *store.MemberStore
	attendance *store.AttendanceStore
	ledger     *points.Ledger
	now        func() time.Time
	logger     *slog.Logger
}

func NewMarker(es *store.EventStore, ms *store.MemberStore, as *store.AttendanceStore, ledger *points.Ledger, logger *slog.Logger) *Marker {
	return &Marker{
		events:     es,
		members:    ms,
		attendance: as,
		ledger:     ledger,
		now:        time.Now,
		logger:     logger,
	}
}

// MarkSelf records a member's own punch. Meeting status is derived from the
// clock and the late-punch time; any requested status is ignored. Training
// status is taken as requested, defaulting to present.
func (m *Marker) MarkSelf(ctx context.Context, actor auth.Actor, req MarkRequest) (*Result, error) {
	ev, err := m.validate(ctx, req.EventType, req.EventID, []int64{req.MemberID})
	if err != nil {
		return nil, err
	}

	status := req.Status
	switch ev.Type {
	case model.EventMeeting:
		status = DeriveStatus(ev.CutoffTime, m.now())
	case model.EventTraining:
		if status == "" {
			status = model.StatusPresent
		}
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	return m.mark(ctx, actor, ev, req, status)
}

// MarkAsAdmin records attendance for a member with the given status verbatim.
func (m *Marker) MarkAsAdmin(ctx context.Context, actor auth.Actor, req MarkRequest) (*Result, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}
	ev, err := m.validate(ctx, req.EventType, req.EventID, []int64{req.MemberID})
	if err != nil {
		return nil, err
	}
	return m.mark(ctx, actor, ev, req, req.Status)
}

// mark upserts the record and credits points only when this call created the
// record and it resolved to present. Later edits of the same record never
// accrue again.
func (m *Marker) mark(ctx context.Context, actor auth.Actor, ev *model.Event, req MarkRequest, status model.AttendanceStatus) (*Result, error) {
	rec, created, err := m.attendance.Upsert(ctx, req.MemberID, ev.ID, ev.Type, status, req.Location, actor.Ref())
	if err != nil {
		return nil, fmt.Errorf("save attendance: %w", err)
	}

	logger := middleware.Logger(ctx, m.logger)
	res := &Result{Record: rec, Created: created}
	logger.Info("attendance marked",
		"member_id", rec.MemberID,
		"event_id", rec.EventID,
		"event_type", rec.EventType,
		"status", rec.Status,
		"created", created,
		"actor", actor.Ref(),
	)

	if !created || rec.Status != model.StatusPresent {
		return res, nil
	}

	remarks := fmt.Sprintf("%s attendance: %s", ev.Type, ev.Title)
	credited, err := m.ledger.Accrue(ctx, rec.MemberID, ev.Type.PointKey(), model.SourceAttendance, rec.ID, remarks)
	if err != nil {
		logger.Error("accrue attendance points", "attendance_id", rec.ID, "error", err)
		return res, fmt.Errorf("accrue points: %w", err)
	}
	res.PointsCredited = credited
	return res, nil
}

// MarkBulk sets status for many members of one event in a single batch.
// Bulk marking is an administrative correction and never accrues points.
func (m *Marker) MarkBulk(ctx context.Context, actor auth.Actor, req BulkRequest) (int, error) {
	if !req.Status.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}
	if len(req.MemberIDs) == 0 {
		return 0, fmt.Errorf("%w: member_ids is empty", ErrInvalidInput)
	}
	ev, err := m.validate(ctx, req.EventType, req.EventID, req.MemberIDs)
	if err != nil {
		return 0, err
	}

	n, err := m.attendance.BulkUpsert(ctx, ev.ID, ev.Type, req.MemberIDs, req.Status, actor.Ref())
	if err != nil {
		return 0, fmt.Errorf("save bulk attendance: %w", err)
	}

	middleware.Logger(ctx, m.logger).Info("bulk attendance marked",
		"event_id", ev.ID,
		"event_type", ev.Type,
		"status", req.Status,
		"count", n,
		"actor", actor.Ref(),
	)
	return n, nil
}

func (m *Marker) ListBySource(ctx context.Context, eventType model.EventType, eventID int64) ([]model.AttendanceRecord, error) {
	if _, err := m.validate(ctx, eventType, eventID, nil); err != nil {
		return nil, err
	}
	return m.attendance.FindBySource(ctx, eventID, eventType)
}

func (m *Marker) ListByMember(ctx context.Context, memberID int64) ([]model.AttendanceRecord, error) {
	member, err := m.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}
	if member == nil || member.Deleted {
		return nil, ErrMemberNotFound
	}
	return m.attendance.FindByMember(ctx, memberID)
}

// validate checks the event type, that the event exists and is not deleted,
// and that every member ID names a live member.
func (m *Marker) validate(ctx context.Context, eventType model.EventType, eventID int64, memberIDs []int64) (*model.Event, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventType, eventType)
	}
	if eventID <= 0 {
		return nil, fmt.Errorf("%w: event_id must be positive", ErrInvalidInput)
	}

	ev, err := m.events.Get(ctx, eventType, eventID)
	if err != nil {
		return nil, fmt.Errorf("lookup event: %w", err)
	}
	if ev == nil || ev.Deleted {
		return nil, ErrEventNotFound
	}

	if len(memberIDs) == 0 {
		return ev, nil
	}
	missing, err := m.members.MissingIDs(ctx, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("lookup members: %w", err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMemberNotFound, missing)
	}
	return ev, nil
}
