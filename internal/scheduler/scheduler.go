package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/Guizzs26/go-meta-sync/internal/service"
	"github.com/robfig/cron/v3"
)

// Scheduler fires each domain's reconciliation on its own cron schedule
type Scheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(timezone string, logger *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid sync timezone %q: %w", timezone, err)
	}

	l := logger.With("component", "scheduler")
	adapter := cronLogger{l}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		loc:    loc,
		logger: l,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Register schedules s with a standard 5-field cron expression
func (s *Scheduler) Register(spec string, syncer service.Syncer) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(syncer) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", spec, syncer.Domain(), err)
	}
	s.logger.Info("Sync job registered", "domain", syncer.Domain(), "schedule", spec, "timezone", s.loc.String())
	return nil
}

func (s *Scheduler) run(syncer service.Syncer) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	date := s.Today()
	s.logger.Info("[Daily Task] Running", "domain", syncer.Domain(), "date", date)

	out := syncer.Sync(ctx, date)
	if !out.Status {
		// The next tick retries
		s.logger.Warn("[Daily Task] Finished with failures", "domain", syncer.Domain(), "message", out.Message)
		return
	}
	s.logger.Info("[Daily Task] Done", "domain", syncer.Domain(), "count", out.Count)
}

// Today is the current date in the scheduler timezone, formatted YYYY-MM-DD
func (s *Scheduler) Today() string {
	return s.now().In(s.loc).Format(time.DateOnly)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels running ones and waits for them until ctx expires
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// cronLogger routes cron's logr-style logging to slog
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
