// Package backfill records absences for members who never marked an event
// whose cutoff has passed.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dukerupert/muster/internal/model"
	"github.com/dukerupert/muster/internal/store"
)

// Result summarizes one sweep.
type Result struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Events   int       `json:"events"`
	Inserted int64     `json:"inserted"`
	Failed   int       `json:"failed"`

	// Skipped lists event types whose events could not be listed at all.
	Skipped []model.EventType `json:"skipped,omitempty"`
}

// Complete reports whether every event type was listed and every event swept.
func (r Result) Complete() bool {
	return r.Failed == 0 && len(r.Skipped) == 0
}

type Sweeper struct {
	events     *store.EventStore
	members    *store.MemberStore
	attendance *store.AttendanceStore
	lookback   time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewSweeper creates a sweeper. A zero lookback scans every past event.
func NewSweeper(es *store.EventStore, ms *store.MemberStore, as *store.AttendanceStore, lookback time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		events:     es,
		members:    ms,
		attendance: as,
		lookback:   lookback,
		now:        time.Now,
		logger:     logger,
	}
}

// Sweep inserts an absent record for every eligible member lacking a live
// record on any active event past its cutoff. Meetings and trainings are
// processed independently and a failing event does not stop the rest of
// the run; all failures are returned together.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	now := s.now().UTC()
	res := Result{RunID: uuid.NewString(), Started: now}
	logger := s.logger.With("run_id", res.RunID)

	var since time.Time
	if s.lookback > 0 {
		since = now.Add(-s.lookback)
	}

	var errs error
	for _, t := range model.EventTypes {
		if err := ctx.Err(); err != nil {
			return res, multierr.Append(errs, err)
		}

		events, err := s.events.ListPastCutoff(ctx, t, now, since)
		if err != nil {
			logger.Error("list events past cutoff", "event_type", t, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("list %s events: %w", t, err))
			res.Skipped = append(res.Skipped, t)
			continue
		}

		for _, ev := range events {
			n, err := s.sweepEvent(ctx, &ev)
			if err != nil {
				logger.Error("backfill event", "event_type", ev.Type, "event_id", ev.ID, "error", err)
				errs = multierr.Append(errs, fmt.Errorf("%s %d: %w", ev.Type, ev.ID, err))
				res.Failed++
				continue
			}
			res.Events++
			res.Inserted += n
			if n > 0 {
				logger.Debug("absences recorded", "event_type", ev.Type, "event_id", ev.ID, "inserted", n)
			}
		}
	}

	logger.Info("backfill sweep complete",
		"events", res.Events,
		"inserted", res.Inserted,
		"failed", res.Failed,
		"skipped", len(res.Skipped),
		"duration", time.Since(now),
	)
	return res, errs
}

func (s *Sweeper) sweepEvent(ctx context.Context, ev *model.Event) (int64, error) {
	memberIDs, err := s.members.ListEligible(ctx, ev.EligibleChapterIDs)
	if err != nil {
		return 0, err
	}
	if len(memberIDs) == 0 {
		return 0, nil
	}
	return s.attendance.BulkUpsertAbsentIfMissing(ctx, ev.ID, ev.Type, memberIDs)
}
