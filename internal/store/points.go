package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/muster/internal/model"
)

type PointStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPointStore(db *sql.DB) *PointStore {
	return &PointStore{db: db, now: time.Now}
}

// --- Schedule methods ---

func scanScheduleEntry(scanner interface{ Scan(...any) error }) (*model.PointScheduleEntry, error) {
	var e model.PointScheduleEntry
	var active int

	err := scanner.Scan(&e.ID, &e.PointKey, &e.Value, &active, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Active = active != 0
	return &e, nil
}

const scheduleCols = `id, point_key, value, active, updated_at`

// SetScheduleEntry creates or replaces the schedule entry for key.
func (s *PointStore) SetScheduleEntry(ctx context.Context, key string, value int, active bool) (*model.PointScheduleEntry, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO point_schedule (point_key, value, active, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (point_key) DO UPDATE SET value = excluded.value, active = excluded.active, updated_at = excluded.updated_at`,
		key, value, boolInt(active), formatTime(s.now()),
	)
	if err != nil {
		return nil, fmt.Errorf("set schedule entry: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM point_schedule WHERE point_key = ?`, key)
	e, err := scanScheduleEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get schedule entry: %w", err)
	}
	return e, nil
}

// SeedScheduleEntry inserts an entry for key only when none exists. It
// reports whether a row was written.
func (s *PointStore) SeedScheduleEntry(ctx context.Context, key string, value int, active bool) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO point_schedule (point_key, value, active, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (point_key) DO NOTHING`,
		key, value, boolInt(active), formatTime(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("seed schedule entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// GetActiveEntry returns the active schedule entry for key, or nil.
func (s *PointStore) GetActiveEntry(ctx context.Context, key string) (*model.PointScheduleEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleCols+` FROM point_schedule WHERE point_key = ? AND active = 1`, key,
	)
	e, err := scanScheduleEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active schedule entry: %w", err)
	}
	return e, nil
}

func (s *PointStore) ListSchedule(ctx context.Context) ([]model.PointScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleCols+` FROM point_schedule ORDER BY point_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}
	defer rows.Close()

	var entries []model.PointScheduleEntry
	for rows.Next() {
		e, err := scanScheduleEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// --- Ledger methods ---

// Credit adds change to the member's balance for key and appends the
// matching history row in one transaction. The balance is incremented in
// SQL, never read-modify-written.
func (s *PointStore) Credit(ctx context.Context, memberID int64, key string, change int, sourceType string, sourceID int64, remarks string) (*model.UserPointHistoryEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(s.now())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_points (member_id, point_key, total, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (member_id, point_key) DO UPDATE SET total = total + excluded.total, updated_at = excluded.updated_at`,
		memberID, key, change, now,
	); err != nil {
		return nil, fmt.Errorf("increment balance: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO user_point_history (member_id, point_key, change, source_type, source_id, remarks, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		memberID, key, change, sourceType, sourceID, remarks, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert point history: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+historyCols+` FROM user_point_history WHERE id = ?`, id)
	h, err := scanHistory(row)
	if err != nil {
		return nil, fmt.Errorf("get point history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return h, nil
}

// Balances returns one balance per configured point key plus any key the
// member holds a balance for, with zero totals for keys never credited.
func (s *PointStore) Balances(ctx context.Context, memberID int64) ([]model.UserPointsBalance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ps.point_key, COALESCE(up.total, 0)
		 FROM point_schedule ps
		 LEFT JOIN user_points up ON up.point_key = ps.point_key AND up.member_id = ?
		 UNION
		 SELECT up.point_key, up.total
		 FROM user_points up
		 WHERE up.member_id = ? AND up.point_key NOT IN (SELECT point_key FROM point_schedule)
		 ORDER BY 1 ASC`,
		memberID, memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var balances []model.UserPointsBalance
	for rows.Next() {
		b := model.UserPointsBalance{MemberID: memberID}
		if err := rows.Scan(&b.PointKey, &b.Total); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// GetBalance returns the member's total for key, zero if never credited.
func (s *PointStore) GetBalance(ctx context.Context, memberID int64, key string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0) FROM user_points WHERE member_id = ? AND point_key = ?`,
		memberID, key,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return total, nil
}

func scanHistory(scanner interface{ Scan(...any) error }) (*model.UserPointHistoryEntry, error) {
	var h model.UserPointHistoryEntry
	err := scanner.Scan(&h.ID, &h.MemberID, &h.PointKey, &h.Change, &h.SourceType, &h.SourceID, &h.Remarks, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const historyCols = `id, member_id, point_key, change, source_type, source_id, remarks, created_at`

// History lists the member's ledger rows, newest first.
func (s *PointStore) History(ctx context.Context, memberID int64) ([]model.UserPointHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyCols+` FROM user_point_history WHERE member_id = ? ORDER BY created_at DESC, id DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list point history: %w", err)
	}
	defer rows.Close()

	var entries []model.UserPointHistoryEntry
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan point history: %w", err)
		}
		entries = append(entries, *h)
	}
	return entries, rows.Err()
}

// CountHistoryBySource returns how many ledger rows reference the source.
func (s *PointStore) CountHistoryBySource(ctx context.Context, sourceType string, sourceID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_point_history WHERE source_type = ? AND source_id = ?`,
		sourceType, sourceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count point history: %w", err)
	}
	return n, nil
}
