package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/muster/internal/middleware"
	"github.com/dukerupert/muster/internal/model"
	"github.com/dukerupert/muster/internal/points"
	"github.com/dukerupert/muster/internal/store"
)

type PointsHandler struct {
	ledger  *points.Ledger
	members *store.MemberStore
	logger  *slog.Logger
}

func NewPointsHandler(l *points.Ledger, ms *store.MemberStore, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{ledger: l, members: ms, logger: logger}
}

// memberID parses the path ID and writes an error response when it does not
// name a live member.
func (h *PointsHandler) memberID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	m, err := h.members.GetByID(r.Context(), id)
	if err != nil {
		middleware.Logger(r.Context(), h.logger).Error("get member", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return 0, false
	}
	if m == nil || m.Deleted {
		writeError(w, http.StatusNotFound, "member not found")
		return 0, false
	}
	return id, true
}

type balancesResponse struct {
	MemberID int64          `json:"member_id"`
	Balances map[string]int `json:"balances"`
}

func (h *PointsHandler) Balances(w http.ResponseWriter, r *http.Request) {
	id, ok := h.memberID(w, r)
	if !ok {
		return
	}

	balances, err := h.ledger.Balances(r.Context(), id)
	if err != nil {
		middleware.Logger(r.Context(), h.logger).Error("get balances", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, balancesResponse{MemberID: id, Balances: balances})
}

func (h *PointsHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := h.memberID(w, r)
	if !ok {
		return
	}

	history, err := h.ledger.History(r.Context(), id)
	if err != nil {
		middleware.Logger(r.Context(), h.logger).Error("get point history", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if history == nil {
		history = []model.UserPointHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}
