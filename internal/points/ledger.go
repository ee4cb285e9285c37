// Package points maintains per-member point balances and their audit trail.
package points

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/muster/internal/middleware"
	"github.com/dukerupert/muster/internal/model"
	"github.com/dukerupert/muster/internal/store"
)

type Ledger struct {
	store  *store.PointStore
	logger *slog.Logger
}

func NewLedger(ps *store.PointStore, logger *slog.Logger) *Ledger {
	return &Ledger{store: ps, logger: logger}
}

// Accrue credits the member with the active schedule value for pointKey and
// appends one history row. It returns false without error when pointKey has
// no active schedule entry.
func (l *Ledger) Accrue(ctx context.Context, memberID int64, pointKey, sourceType string, sourceID int64, remarks string) (bool, error) {
	logger := middleware.Logger(ctx, l.logger)
	entry, err := l.store.GetActiveEntry(ctx, pointKey)
	if err != nil {
		return false, fmt.Errorf("lookup point schedule: %w", err)
	}
	if entry == nil {
		logger.Debug("no active point schedule entry", "point_key", pointKey, "member_id", memberID)
		return false, nil
	}

	h, err := l.store.Credit(ctx, memberID, pointKey, entry.Value, sourceType, sourceID, remarks)
	if err != nil {
		return false, fmt.Errorf("credit points: %w", err)
	}

	logger.Info("points accrued",
		"member_id", memberID,
		"point_key", pointKey,
		"change", h.Change,
		"source_type", sourceType,
		"source_id", sourceID,
	)
	return true, nil
}

// Balances maps every configured point key to the member's total.
func (l *Ledger) Balances(ctx context.Context, memberID int64) (map[string]int, error) {
	rows, err := l.store.Balances(ctx, memberID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, b := range rows {
		out[b.PointKey] = b.Total
	}
	return out, nil
}

func (l *Ledger) History(ctx context.Context, memberID int64) ([]model.UserPointHistoryEntry, error) {
	return l.store.History(ctx, memberID)
}

// Seed adds schedule entries for configured keys that have none yet. Keys
// with a value of zero or less are added inactive. Existing entries are
// managed outside this service and are left untouched.
func (l *Ledger) Seed(ctx context.Context, values map[string]int) error {
	for key, value := range values {
		added, err := l.store.SeedScheduleEntry(ctx, key, value, value > 0)
		if err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
		if added {
			l.logger.Info("point schedule entry seeded", "point_key", key, "value", value)
		}
	}
	return nil
}
