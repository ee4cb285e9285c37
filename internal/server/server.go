package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/muster/internal/attendance"
	"github.com/dukerupert/muster/internal/auth"
	"github.com/dukerupert/muster/internal/backfill"
	"github.com/dukerupert/muster/internal/handler"
	"github.com/dukerupert/muster/internal/middleware"
	"github.com/dukerupert/muster/internal/points"
	"github.com/dukerupert/muster/internal/store"
	ws "github.com/dukerupert/muster/internal/websocket"
)

// Options carries the tunables the server needs from configuration.
type Options struct {
	BackfillSchedule string
	BackfillLookback time.Duration
	SelfMarkLimit    int
	SelfMarkWindow   time.Duration
	OriginPatterns   []string

	// PublicReads drops the API key requirement on member reads and /ws.
	PublicReads bool
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	keyring     *auth.Keyring
	ledger      *points.Ledger
	scheduler   *backfill.Scheduler
	attendanceH *handler.AttendanceHandler
	pointsH     *handler.PointsHandler
	backfillH   *handler.BackfillHandler
	healthH     *handler.HealthHandler
	ipLimiter   *middleware.RateLimiter
	selfLimiter *middleware.RateLimiter
	opts        Options
	logger      *slog.Logger
}

func New(db *sql.DB, keyring *auth.Keyring, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	memberStore := store.NewMemberStore(db)
	eventStore := store.NewEventStore(db)
	attendanceStore := store.NewAttendanceStore(db)
	pointStore := store.NewPointStore(db)

	ledger := points.NewLedger(pointStore, logger.With("component", "points"))
	marker := attendance.NewMarker(eventStore, memberStore, attendanceStore, ledger, logger.With("component", "attendance"))

	backfillLogger := logger.With("component", "backfill")
	sweeper := backfill.NewSweeper(eventStore, memberStore, attendanceStore, opts.BackfillLookback, backfillLogger)
	scheduler := backfill.NewScheduler(sweeper, opts.BackfillSchedule, backfillLogger)
	scheduler.OnSweep(func(res backfill.Result) {
		hub.Broadcast(ws.Message{
			Type: ws.TypeBackfillCompleted,
			Data: map[string]any{
				"run_id":   res.RunID,
				"events":   res.Events,
				"inserted": res.Inserted,
			},
		})
	})

	selfLimiter := middleware.NewRateLimiter(opts.SelfMarkLimit, opts.SelfMarkWindow)

	return &Server{
		db:          db,
		hub:         hub,
		keyring:     keyring,
		ledger:      ledger,
		scheduler:   scheduler,
		attendanceH: handler.NewAttendanceHandler(marker, memberStore, selfLimiter, hub, logger.With("component", "attendance_handler")),
		pointsH:     handler.NewPointsHandler(ledger, memberStore, logger.With("component", "points_handler")),
		backfillH:   handler.NewBackfillHandler(scheduler, backfillLogger),
		healthH:     handler.NewHealthHandler(db, logger.With("component", "health")),
		ipLimiter:   middleware.NewRateLimiter(60, time.Minute),
		selfLimiter: selfLimiter,
		opts:        opts,
		logger:      logger,
	}
}

// Ledger returns the points ledger for seeding the schedule at startup.
func (s *Server) Ledger() *points.Ledger {
	return s.ledger
}

// Scheduler returns the backfill scheduler so main can start and stop it.
func (s *Server) Scheduler() *backfill.Scheduler {
	return s.scheduler
}

// RateLimiters returns the limiters that need periodic cleanup.
func (s *Server) RateLimiters() []*middleware.RateLimiter {
	return []*middleware.RateLimiter{s.ipLimiter, s.selfLimiter}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	admin := middleware.RequireAdmin(s.keyring)
	reads := admin
	if s.opts.PublicReads {
		reads = func(h http.Handler) http.Handler { return h }
	}

	mux.HandleFunc("GET /health", s.healthH.Health)
	mux.Handle("GET /ws", reads(ws.HandleWebSocket(s.hub, s.opts.OriginPatterns, s.logger.With("component", "websocket"))))

	// Member self-service
	mux.Handle("POST /api/attendance/self", s.rateLimited(s.attendanceH.MarkSelf))
	mux.Handle("GET /api/members/{id}/attendance", reads(http.HandlerFunc(s.attendanceH.ListByMember)))
	mux.Handle("GET /api/members/{id}/points", reads(http.HandlerFunc(s.pointsH.Balances)))
	mux.Handle("GET /api/members/{id}/points/history", reads(http.HandlerFunc(s.pointsH.History)))

	// Admin
	mux.Handle("POST /api/attendance", admin(http.HandlerFunc(s.attendanceH.Mark)))
	mux.Handle("POST /api/attendance/bulk", admin(http.HandlerFunc(s.attendanceH.MarkBulk)))
	mux.Handle("GET /api/events/{type}/{id}/attendance", admin(http.HandlerFunc(s.attendanceH.ListByEvent)))
	mux.Handle("POST /api/backfill/run", admin(http.HandlerFunc(s.backfillH.Run)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.ipLimiter, middleware.RealIP)(h)
}
