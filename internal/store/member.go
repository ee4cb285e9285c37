package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/muster/internal/model"
)

// MemberStore is the read side of the member directory. Create and the
// lifecycle setters exist for seeding and tests.
type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	var active, deleted int

	err := scanner.Scan(&m.ID, &m.ChapterID, &m.Name, &m.HasPIN, &active, &deleted, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	m.Active = active != 0
	m.Deleted = deleted != 0
	return &m, nil
}

const memberCols = `id, chapter_id, name, pin IS NOT NULL, active, deleted, created_at, updated_at`

func (s *MemberStore) Create(ctx context.Context, chapterID int64, name string) (*model.Member, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO members (chapter_id, name) VALUES (?, ?)`,
		chapterID, name,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *MemberStore) GetByID(ctx context.Context, id int64) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ListEligible returns the IDs of active, non-deleted members belonging to
// any of the given chapters.
func (s *MemberStore) ListEligible(ctx context.Context, chapterIDs []int64) ([]int64, error) {
	chapterIDs = dedupe(chapterIDs)
	if len(chapterIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM members
		 WHERE chapter_id IN (`+placeholders(len(chapterIDs))+`) AND active = 1 AND deleted = 0
		 ORDER BY id ASC`,
		int64Args(chapterIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list eligible members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MissingIDs returns the subset of ids that do not name a live member.
func (s *MemberStore) MissingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM members WHERE id IN (`+placeholders(len(ids))+`) AND deleted = 0`,
		int64Args(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("check member ids: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member ids: %w", err)
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *MemberStore) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE members SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolInt(active), id,
	)
	if err != nil {
		return fmt.Errorf("set member active: %w", err)
	}
	return nil
}

// SoftDelete flags the member deleted. Attendance rows are left untouched.
func (s *MemberStore) SoftDelete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE members SET deleted = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

func (s *MemberStore) SetPIN(ctx context.Context, id int64, hashedPIN string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE members SET pin = ? WHERE id = ?`, hashedPIN, id)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

// GetPINHash returns the bcrypt hash of the member's PIN, or "" when unset.
func (s *MemberStore) GetPINHash(ctx context.Context, id int64) (string, error) {
	var pin sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT pin FROM members WHERE id = ?`, id).Scan(&pin)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("member not found")
	}
	if err != nil {
		return "", fmt.Errorf("query pin: %w", err)
	}
	if !pin.Valid {
		return "", nil
	}
	return pin.String, nil
}
