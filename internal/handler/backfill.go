package handler

import (
	"log/slog"
	"net/http"

	"go.uber.org/multierr"

	"github.com/dukerupert/muster/internal/backfill"
	"github.com/dukerupert/muster/internal/middleware"
)

type BackfillHandler struct {
	scheduler *backfill.Scheduler
	logger    *slog.Logger
}

func NewBackfillHandler(s *backfill.Scheduler, logger *slog.Logger) *BackfillHandler {
	return &BackfillHandler{scheduler: s, logger: logger}
}

type backfillResponse struct {
	backfill.Result
	Errors []string `json:"errors,omitempty"`
}

// Run sweeps immediately. Per-event failures are reported alongside the
// counts of what did succeed, with a 500 when any part of the run failed.
func (h *BackfillHandler) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.scheduler.RunOnce(r.Context())
	resp := backfillResponse{Result: res}
	for _, e := range multierr.Errors(err) {
		resp.Errors = append(resp.Errors, e.Error())
	}

	status := http.StatusOK
	if err != nil || !res.Complete() {
		middleware.Logger(r.Context(), h.logger).Warn("manual backfill finished with errors", "run_id", res.RunID, "errors", len(resp.Errors))
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}
