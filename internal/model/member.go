package model

import "time"

type Chapter struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	ID        int64     `json:"id"`
	ChapterID int64     `json:"chapter_id"`
	Name      string    `json:"name"`
	HasPIN    bool      `json:"has_pin"`
	Active    bool      `json:"active"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
