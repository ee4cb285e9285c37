package websocket

import (
	"log/slog"
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/muster/internal/model"
)

// HandleWebSocket upgrades the request and streams hub messages to it.
// Optional query parameters event_type and event_id restrict the stream to
// one event.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source, ok := sourceFilter(r)
		if !ok {
			http.Error(w, "invalid event filter", http.StatusBadRequest)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		NewClient(hub, conn, source).Run(r.Context())
	}
}

func sourceFilter(r *http.Request) (string, bool) {
	q := r.URL.Query()
	typ, rawID := q.Get("event_type"), q.Get("event_id")
	if typ == "" && rawID == "" {
		return "", true
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 || !model.EventType(typ).Valid() {
		return "", false
	}
	return SourceKey(typ, id), true
}
