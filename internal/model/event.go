package model

import "time"

type EventType string

const (
	EventMeeting  EventType = "meeting"
	EventTraining EventType = "training"
)

// EventTypes lists every supported event type in sweep order.
var EventTypes = []EventType{EventMeeting, EventTraining}

func (t EventType) Valid() bool {
	return t == EventMeeting || t == EventTraining
}

// PointKey returns the point schedule key credited for attending an event of this type.
func (t EventType) PointKey() string {
	switch t {
	case EventMeeting:
		return PointKeyWeeklyMeetings
	case EventTraining:
		return PointKeyTrainings
	}
	return ""
}

// Event is a meeting or training. CutoffTime is the late-punch time for
// meetings and the start time for trainings.
type Event struct {
	ID                 int64     `json:"id"`
	Type               EventType `json:"event_type"`
	Title              string    `json:"title"`
	CutoffTime         time.Time `json:"cutoff_time"`
	EligibleChapterIDs []int64   `json:"eligible_chapter_ids"`
	Active             bool      `json:"active"`
	Deleted            bool      `json:"deleted"`
	CreatedAt          time.Time `json:"created_at"`
}
