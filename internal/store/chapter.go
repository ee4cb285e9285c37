package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/muster/internal/model"
)

type ChapterStore struct {
	db *sql.DB
}

func NewChapterStore(db *sql.DB) *ChapterStore {
	return &ChapterStore{db: db}
}

func (s *ChapterStore) Create(ctx context.Context, name string) (*model.Chapter, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO chapters (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert chapter: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ChapterStore) GetByID(ctx context.Context, id int64) (*model.Chapter, error) {
	var c model.Chapter
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM chapters WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chapter: %w", err)
	}
	return &c, nil
}
