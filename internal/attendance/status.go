package attendance

import (
	"time"

	"github.com/dukerupert/muster/internal/model"
)

// DeriveStatus resolves a self-marked meeting punch: late strictly after the
// cutoff, present otherwise.
func DeriveStatus(cutoff, now time.Time) model.AttendanceStatus {
	if now.After(cutoff) {
		return model.StatusLate
	}
	return model.StatusPresent
}
