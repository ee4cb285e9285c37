package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep every five minutes.
const DefaultSchedule = "@every 5m"

// Scheduler runs the sweeper on a cron schedule.
type Scheduler struct {
	mu       sync.Mutex
	sweeper  *Sweeper
	schedule string
	timeout  time.Duration
	onSweep  func(Result)
	cron     *cron.Cron
	cancel   context.CancelFunc
	logger   *slog.Logger
}

// NewScheduler creates a scheduler for the given cron expression. An empty one
// uses DefaultSchedule.
func NewScheduler(sw *Sweeper, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		sweeper:  sw,
		schedule: schedule,
		timeout:  4 * time.Minute,
		logger:   logger,
	}
}

// OnSweep registers a callback invoked after every sweep that inserted rows.
func (s *Scheduler) OnSweep(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSweep = fn
}

// Start validates the schedule and begins running sweeps in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("backfill scheduler already started")
	}

	clog := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog)))

	ctx, cancel := context.WithCancel(ctx)
	if _, err := c.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("parse backfill schedule %q: %w", s.schedule, err)
	}

	s.cron = c
	s.cancel = cancel
	c.Start()
	s.logger.Info("backfill scheduler started", "schedule", s.schedule)
	return nil
}

// Stop cancels in-flight sweeps and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	s.logger.Info("backfill scheduler stopped")
}

// RunOnce performs a sweep immediately, independent of the schedule.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	res, err := s.sweeper.Sweep(ctx)
	s.notify(res)
	return res, err
}

func (s *Scheduler) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Failures are already logged per event by the sweeper.
	res, _ := s.sweeper.Sweep(ctx)
	s.notify(res)
}

func (s *Scheduler) notify(res Result) {
	s.mu.Lock()
	fn := s.onSweep
	s.mu.Unlock()

	if fn != nil && res.Inserted > 0 {
		fn(res)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
