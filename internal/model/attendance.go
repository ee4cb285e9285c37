package model

import "time"

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	StatusAbsent  AttendanceStatus = "absent"
	StatusMedical AttendanceStatus = "medical"
	StatusProxy   AttendanceStatus = "proxy"
)

func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent, StatusMedical, StatusProxy:
		return true
	}
	return false
}

// Location is the optional coordinate pair captured when a member marks attendance.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type AttendanceRecord struct {
	ID        int64            `json:"id"`
	MemberID  int64            `json:"member_id"`
	EventID   int64            `json:"event_id"`
	EventType EventType        `json:"event_type"`
	Status    AttendanceStatus `json:"status"`
	Location  *Location        `json:"location,omitempty"`
	CreatedBy string           `json:"created_by"`
	UpdatedBy string           `json:"updated_by"`
	Active    bool             `json:"active"`
	Deleted   bool             `json:"deleted"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
