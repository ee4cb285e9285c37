package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/muster/internal/attendance"
	"github.com/dukerupert/muster/internal/auth"
	"github.com/dukerupert/muster/internal/middleware"
	"github.com/dukerupert/muster/internal/model"
	"github.com/dukerupert/muster/internal/store"
	"github.com/dukerupert/muster/internal/websocket"
)

type AttendanceHandler struct {
	marker  *attendance.Marker
	members *store.MemberStore
	limiter *middleware.RateLimiter
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewAttendanceHandler(m *attendance.Marker, ms *store.MemberStore, limiter *middleware.RateLimiter, hub *websocket.Hub, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{marker: m, members: ms, limiter: limiter, hub: hub, logger: logger}
}

func (h *AttendanceHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type markRequest struct {
	MemberID  int64    `json:"member_id"`
	EventID   int64    `json:"event_id"`
	EventType string   `json:"event_type"`
	Status    string   `json:"status"`
	PIN       string   `json:"pin"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (req markRequest) toMark() (attendance.MarkRequest, error) {
	out := attendance.MarkRequest{
		MemberID:  req.MemberID,
		EventID:   req.EventID,
		EventType: model.EventType(req.EventType),
		Status:    model.AttendanceStatus(req.Status),
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return out, errors.New("latitude and longitude must be given together")
	}
	if req.Latitude != nil {
		if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
			return out, errors.New("location out of range")
		}
		out.Location = &model.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	return out, nil
}

// MarkSelf records a member's own attendance. Members with a PIN must
// present it.
func (h *AttendanceHandler) MarkSelf(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.MemberID <= 0 {
		writeError(w, http.StatusBadRequest, "member_id is required")
		return
	}
	mark, err := req.toMark()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.limiter != nil && !h.limiter.Allow("self:"+strconv.FormatInt(req.MemberID, 10)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	member, err := h.members.GetByID(r.Context(), req.MemberID)
	if err != nil {
		middleware.Logger(r.Context(), h.logger).Error("get member", "member_id", req.MemberID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if member == nil || member.Deleted {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if member.HasPIN {
		hash, err := h.members.GetPINHash(r.Context(), member.ID)
		if err != nil {
			middleware.Logger(r.Context(), h.logger).Error("get pin", "member_id", member.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !auth.CheckPIN(hash, req.PIN) {
			writeError(w, http.StatusUnauthorized, "incorrect PIN")
			return
		}
	}

	res, err := h.marker.MarkSelf(r.Context(), auth.Member(member.ID), mark)
	h.respondMark(w, r, "mark self", res, err)
}

// Mark records attendance on behalf of a member with an explicit status.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	mark, err := req.toMark()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.marker.MarkAsAdmin(r.Context(), actor, mark)
	h.respondMark(w, r, "mark attendance", res, err)
}

func (h *AttendanceHandler) respondMark(w http.ResponseWriter, r *http.Request, op string, res *attendance.Result, err error) {
	if err != nil && res == nil {
		writeMarkError(w, middleware.Logger(r.Context(), h.logger), op, err)
		return
	}

	// The record is saved even when the accrual that follows it fails.
	rec := res.Record
	h.broadcast(websocket.Message{
		Type:     websocket.TypeAttendanceMarked,
		Source:   websocket.SourceKey(string(rec.EventType), rec.EventID),
		MemberID: rec.MemberID,
		Data: map[string]any{
			"attendance_id":   rec.ID,
			"status":          rec.Status,
			"created":         res.Created,
			"points_credited": res.PointsCredited,
		},
	})
	if err != nil {
		writeMarkError(w, middleware.Logger(r.Context(), h.logger), op, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

type bulkRequest struct {
	EventID   int64   `json:"event_id"`
	EventType string  `json:"event_type"`
	MemberIDs []int64 `json:"member_ids"`
	Status    string  `json:"status"`
}

func (h *AttendanceHandler) MarkBulk(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	n, err := h.marker.MarkBulk(r.Context(), actor, attendance.BulkRequest{
		EventID:   req.EventID,
		EventType: model.EventType(req.EventType),
		MemberIDs: req.MemberIDs,
		Status:    model.AttendanceStatus(req.Status),
	})
	if err != nil {
		writeMarkError(w, middleware.Logger(r.Context(), h.logger), "mark bulk attendance", err)
		return
	}

	h.broadcast(websocket.Message{
		Type:   websocket.TypeAttendanceBulkMarked,
		Source: websocket.SourceKey(req.EventType, req.EventID),
		Data:   map[string]any{"status": req.Status, "count": n},
	})
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *AttendanceHandler) ListByEvent(w http.ResponseWriter, r *http.Request) {
	eventType, ok := parseEventType(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event_type")
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	records, err := h.marker.ListBySource(r.Context(), eventType, id)
	if err != nil {
		writeMarkError(w, middleware.Logger(r.Context(), h.logger), "list attendance by event", err)
		return
	}
	if records == nil {
		records = []model.AttendanceRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *AttendanceHandler) ListByMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	records, err := h.marker.ListByMember(r.Context(), id)
	if err != nil {
		writeMarkError(w, middleware.Logger(r.Context(), h.logger), "list attendance by member", err)
		return
	}
	if records == nil {
		records = []model.AttendanceRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
