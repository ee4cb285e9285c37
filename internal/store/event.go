package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/muster/internal/model"
)

// EventStore reads meetings and trainings behind the common model.Event shape.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

type eventTable struct {
	name   string
	cutoff string
}

func tableFor(t model.EventType) (eventTable, error) {
	switch t {
	case model.EventMeeting:
		return eventTable{name: "meetings", cutoff: "late_punch_time"}, nil
	case model.EventTraining:
		return eventTable{name: "trainings", cutoff: "start_time"}, nil
	}
	return eventTable{}, fmt.Errorf("unknown event type %q", t)
}

func scanEvent(scanner interface{ Scan(...any) error }, t model.EventType) (*model.Event, error) {
	e := model.Event{Type: t}
	var active, deleted int

	err := scanner.Scan(&e.ID, &e.Title, &e.CutoffTime, &active, &deleted, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	e.Active = active != 0
	e.Deleted = deleted != 0
	return &e, nil
}

func (t eventTable) cols() string {
	return `id, title, ` + t.cutoff + `, active, deleted, created_at`
}

// Create inserts a meeting or training and its eligible chapters.
func (s *EventStore) Create(ctx context.Context, eventType model.EventType, title string, cutoff time.Time, chapterIDs []int64) (*model.Event, error) {
	tbl, err := tableFor(eventType)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO `+tbl.name+` (title, `+tbl.cutoff+`) VALUES (?, ?)`,
		title, formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", eventType, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, cid := range dedupe(chapterIDs) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_chapters (event_type, event_id, chapter_id) VALUES (?, ?, ?)`,
			string(eventType), id, cid,
		); err != nil {
			return nil, fmt.Errorf("insert event chapter %d: %w", cid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.Get(ctx, eventType, id)
}

// Get returns the event including deleted ones, or nil if it never existed.
func (s *EventStore) Get(ctx context.Context, eventType model.EventType, id int64) (*model.Event, error) {
	tbl, err := tableFor(eventType)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+tbl.cols()+` FROM `+tbl.name+` WHERE id = ?`, id)
	e, err := scanEvent(row, eventType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", eventType, err)
	}

	e.EligibleChapterIDs, err = s.chapterIDs(ctx, eventType, id)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListPastCutoff returns active, non-deleted events whose cutoff is strictly
// before the given time. A non-zero since excludes events with a cutoff
// earlier than it.
func (s *EventStore) ListPastCutoff(ctx context.Context, eventType model.EventType, before, since time.Time) ([]model.Event, error) {
	tbl, err := tableFor(eventType)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + tbl.cols() + ` FROM ` + tbl.name +
		` WHERE active = 1 AND deleted = 0 AND ` + tbl.cutoff + ` < ?`
	args := []any{formatTime(before)}
	if !since.IsZero() {
		query += ` AND ` + tbl.cutoff + ` >= ?`
		args = append(args, formatTime(since))
	}
	query += ` ORDER BY ` + tbl.cutoff + ` ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s past cutoff: %w", eventType, err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows, eventType)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", eventType, err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", eventType, err)
	}
	rows.Close()

	for i := range events {
		events[i].EligibleChapterIDs, err = s.chapterIDs(ctx, eventType, events[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (s *EventStore) chapterIDs(ctx context.Context, eventType model.EventType, id int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chapter_id FROM event_chapters WHERE event_type = ? AND event_id = ? ORDER BY chapter_id ASC`,
		string(eventType), id,
	)
	if err != nil {
		return nil, fmt.Errorf("list event chapters: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var cid int64
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("scan chapter id: %w", err)
		}
		ids = append(ids, cid)
	}
	return ids, rows.Err()
}

func (s *EventStore) SetActive(ctx context.Context, eventType model.EventType, id int64, active bool) error {
	tbl, err := tableFor(eventType)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE `+tbl.name+` SET active = ? WHERE id = ?`, boolInt(active), id); err != nil {
		return fmt.Errorf("set %s active: %w", eventType, err)
	}
	return nil
}

// SoftDelete flags the event deleted. Its attendance rows are not cascaded.
func (s *EventStore) SoftDelete(ctx context.Context, eventType model.EventType, id int64) error {
	tbl, err := tableFor(eventType)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE `+tbl.name+` SET deleted = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete %s: %w", eventType, err)
	}
	return nil
}
