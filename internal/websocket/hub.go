// Package websocket pushes attendance changes to connected dashboards.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

const (
	TypeAttendanceMarked     = "attendance_marked"
	TypeAttendanceBulkMarked = "attendance_bulk_marked"
	TypeBackfillCompleted    = "backfill_completed"
)

// Message is a change notification. Source is "<event_type>:<event_id>" for
// attendance changes and empty for service-wide notices.
type Message struct {
	Type     string         `json:"type"`
	Source   string         `json:"source,omitempty"`
	MemberID int64          `json:"member_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// SourceKey formats the event a message concerns.
func SourceKey(eventType string, eventID int64) string {
	return fmt.Sprintf("%s:%d", eventType, eventID)
}

// Hub tracks connected dashboards and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast delivers msg to every client watching its source. Clients with
// no source filter receive everything, and messages without a source reach
// every client.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		if !c.wants(msg.Source) {
			continue
		}
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("dropped broadcast for slow clients", "type", msg.Type, "clients", dropped)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
