package model

import "time"

const (
	PointKeyWeeklyMeetings = "weekly_meetings"
	PointKeyTrainings      = "trainings"
)

// SourceAttendance marks history rows credited by an attendance record.
const SourceAttendance = "attendance"

type PointScheduleEntry struct {
	ID        int64     `json:"id"`
	PointKey  string    `json:"point_key"`
	Value     int       `json:"value"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserPointsBalance struct {
	MemberID  int64     `json:"member_id"`
	PointKey  string    `json:"point_key"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserPointHistoryEntry struct {
	ID         int64     `json:"id"`
	MemberID   int64     `json:"member_id"`
	PointKey   string    `json:"point_key"`
	Change     int       `json:"change"`
	SourceType string    `json:"source_type"`
	SourceID   int64     `json:"source_id"`
	Remarks    string    `json:"remarks"`
	CreatedAt  time.Time `json:"created_at"`
}
