package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/muster/internal/auth"
	"github.com/dukerupert/muster/internal/model"
	"github.com/sethvargo/go-retry"
)

// ActorBackfill is recorded as creator of rows inserted by the absence sweep.
var ActorBackfill = auth.System("backfill").Ref()

// bulkChunk bounds the number of bound parameters per statement.
const bulkChunk = 500

const conflictBackoff = 5 * time.Millisecond

// AttendanceStore keeps at most one live attendance row per
// (member, event, event type). The partial unique index uq_attendance_live
// backs this up when two writers race.
type AttendanceStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewAttendanceStore(db *sql.DB) *AttendanceStore {
	return &AttendanceStore{db: db, now: time.Now}
}

// WithClock returns a copy of the store that stamps rows using now.
func (s *AttendanceStore) WithClock(now func() time.Time) *AttendanceStore {
	return &AttendanceStore{db: s.db, now: now}
}

func scanAttendance(scanner interface{ Scan(...any) error }) (*model.AttendanceRecord, error) {
	var a model.AttendanceRecord
	var eventType, status string
	var lat, lng sql.NullFloat64
	var active, deleted int

	err := scanner.Scan(
		&a.ID, &a.MemberID, &a.EventID, &eventType, &status,
		&lat, &lng, &a.CreatedBy, &a.UpdatedBy,
		&active, &deleted, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.EventType = model.EventType(eventType)
	a.Status = model.AttendanceStatus(status)
	if lat.Valid && lng.Valid {
		a.Location = &model.Location{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	a.Active = active != 0
	a.Deleted = deleted != 0
	return &a, nil
}

const attendanceCols = `id, member_id, event_id, event_type, status, latitude, longitude, created_by, updated_by, active, deleted, created_at, updated_at`

func locationArgs(loc *model.Location) (sql.NullFloat64, sql.NullFloat64) {
	if loc == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: loc.Latitude, Valid: true}, sql.NullFloat64{Float64: loc.Longitude, Valid: true}
}

// Upsert updates the live record for the key or creates it. created reports
// whether this call inserted the row. An insert that loses a race against
// another writer is retried once as an update.
func (s *AttendanceStore) Upsert(ctx context.Context, memberID, eventID int64, eventType model.EventType, status model.AttendanceStatus, loc *model.Location, actor string) (*model.AttendanceRecord, bool, error) {
	var rec *model.AttendanceRecord
	var created bool

	backoff := retry.WithMaxRetries(1, retry.NewConstant(conflictBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		existing, err := s.GetLive(ctx, memberID, eventID, eventType)
		if err != nil {
			return err
		}
		if existing != nil {
			rec, err = s.update(ctx, existing.ID, status, loc, actor)
			created = false
			return err
		}

		rec, err = s.insert(ctx, memberID, eventID, eventType, status, loc, actor)
		if errors.Is(err, ErrConflict) {
			return retry.RetryableError(err)
		}
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return rec, created, nil
}

func (s *AttendanceStore) insert(ctx context.Context, memberID, eventID int64, eventType model.EventType, status model.AttendanceStatus, loc *model.Location, actor string) (*model.AttendanceRecord, error) {
	now := formatTime(s.now())
	lat, lng := locationArgs(loc)

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance (member_id, event_id, event_type, status, latitude, longitude, created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		memberID, eventID, string(eventType), string(status), lat, lng, actor, actor, now, now,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("insert attendance: %w", ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("insert attendance: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// update keeps the stored location when loc is nil.
func (s *AttendanceStore) update(ctx context.Context, id int64, status model.AttendanceStatus, loc *model.Location, actor string) (*model.AttendanceRecord, error) {
	lat, lng := locationArgs(loc)

	_, err := s.db.ExecContext(ctx,
		`UPDATE attendance
		 SET status = ?, latitude = COALESCE(?, latitude), longitude = COALESCE(?, longitude), updated_by = ?, updated_at = ?
		 WHERE id = ?`,
		string(status), lat, lng, actor, formatTime(s.now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update attendance: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *AttendanceStore) GetByID(ctx context.Context, id int64) (*model.AttendanceRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attendanceCols+` FROM attendance WHERE id = ?`, id)
	a, err := scanAttendance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return a, nil
}

// GetLive returns the non-deleted record for the key, or nil.
func (s *AttendanceStore) GetLive(ctx context.Context, memberID, eventID int64, eventType model.EventType) (*model.AttendanceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attendanceCols+` FROM attendance
		 WHERE member_id = ? AND event_id = ? AND event_type = ? AND deleted = 0`,
		memberID, eventID, string(eventType),
	)
	a, err := scanAttendance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get live attendance: %w", err)
	}
	return a, nil
}

// BulkUpsertAbsentIfMissing inserts an absent record for every member in
// memberIDs that has no live record for the event. Existing records are
// never touched. Unknown member IDs are skipped. It returns the number of
// rows inserted.
func (s *AttendanceStore) BulkUpsertAbsentIfMissing(ctx context.Context, eventID int64, eventType model.EventType, memberIDs []int64) (int64, error) {
	memberIDs = dedupe(memberIDs)
	if len(memberIDs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(s.now())
	var inserted int64
	for start := 0; start < len(memberIDs); start += bulkChunk {
		end := min(start+bulkChunk, len(memberIDs))
		chunk := memberIDs[start:end]

		args := []any{eventID, string(eventType), string(model.StatusAbsent), ActorBackfill, ActorBackfill, now, now}
		args = append(args, int64Args(chunk)...)
		args = append(args, eventID, string(eventType))

		result, err := tx.ExecContext(ctx,
			`INSERT INTO attendance (member_id, event_id, event_type, status, created_by, updated_by, created_at, updated_at)
			 SELECT m.id, ?, ?, ?, ?, ?, ?, ?
			 FROM members m
			 WHERE m.id IN (`+placeholders(len(chunk))+`)
			   AND NOT EXISTS (
			     SELECT 1 FROM attendance a
			     WHERE a.member_id = m.id AND a.event_id = ? AND a.event_type = ? AND a.deleted = 0
			   )
			 ON CONFLICT DO NOTHING`,
			args...,
		)
		if err != nil {
			return 0, fmt.Errorf("backfill absent: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// BulkUpsert sets status for every member in memberIDs, updating live
// records and creating missing ones, in one transaction. It returns the
// number of members written.
func (s *AttendanceStore) BulkUpsert(ctx context.Context, eventID int64, eventType model.EventType, memberIDs []int64, status model.AttendanceStatus, actor string) (int, error) {
	memberIDs = dedupe(memberIDs)
	if len(memberIDs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	updateStmt, err := tx.PrepareContext(ctx,
		`UPDATE attendance SET status = ?, updated_by = ?, updated_at = ?
		 WHERE member_id = ? AND event_id = ? AND event_type = ? AND deleted = 0`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare update: %w", err)
	}
	defer updateStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attendance (member_id, event_id, event_type, status, created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer insertStmt.Close()

	now := formatTime(s.now())
	for _, memberID := range memberIDs {
		result, err := updateStmt.ExecContext(ctx, string(status), actor, now, memberID, eventID, string(eventType))
		if err != nil {
			return 0, fmt.Errorf("update attendance for member %d: %w", memberID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		if n > 0 {
			continue
		}
		if _, err := insertStmt.ExecContext(ctx, memberID, eventID, string(eventType), string(status), actor, actor, now, now); err != nil {
			return 0, fmt.Errorf("insert attendance for member %d: %w", memberID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(memberIDs), nil
}

// FindBySource lists live records for an event, oldest first.
func (s *AttendanceStore) FindBySource(ctx context.Context, eventID int64, eventType model.EventType) ([]model.AttendanceRecord, error) {
	return s.list(ctx, "list attendance by source",
		`SELECT `+attendanceCols+` FROM attendance
		 WHERE event_id = ? AND event_type = ? AND deleted = 0
		 ORDER BY created_at ASC, id ASC`,
		eventID, string(eventType),
	)
}

// FindByMember lists live records for a member, newest first.
func (s *AttendanceStore) FindByMember(ctx context.Context, memberID int64) ([]model.AttendanceRecord, error) {
	return s.list(ctx, "list attendance by member",
		`SELECT `+attendanceCols+` FROM attendance
		 WHERE member_id = ? AND deleted = 0
		 ORDER BY created_at DESC, id DESC`,
		memberID,
	)
}

func (s *AttendanceStore) list(ctx context.Context, op, query string, args ...any) ([]model.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var records []model.AttendanceRecord
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, *a)
	}
	return records, rows.Err()
}
