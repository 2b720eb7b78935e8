package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"
)

// DefaultInterval is the period between background passes.
const DefaultInterval = 5 * time.Second

// Pass sources, used in logs.
const (
	passSourceStart   = "start"
	passSourceTick    = "tick"
	passSourceTrigger = "trigger"
)

// PassFunc runs one reconciliation pass. Engine.RunPass satisfies it;
// function injection lets tests drive the scheduler without a database.
type PassFunc func(ctx context.Context) (*PassReport, error)

// Scheduler runs reconciliation passes on a fixed period for the lifetime
// of the process, plus on-demand passes requested via Trigger. At most one
// scheduled pass runs at a time; Stop waits for it to finish.
type Scheduler struct {
	pass   PassFunc
	logger *slog.Logger

	interval time.Duration
	trigger  chan struct{}
	reset    chan time.Duration

	mu     stdsync.Mutex
	cancel context.CancelFunc
	wg     stdsync.WaitGroup

	// afterPass, when set, observes every completed pass. Test hook.
	afterPass func(source string, report *PassReport, err error)
}

// NewScheduler creates a stopped scheduler. interval <= 0 uses
// DefaultInterval.
func NewScheduler(pass PassFunc, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Scheduler{
		pass:     pass,
		logger:   logger,
		interval: interval,
		// One pending trigger is enough: triggers that arrive while one is
		// queued coalesce into it.
		trigger: make(chan struct{}, 1),
		reset:   make(chan time.Duration, 1),
	}
}

// Start launches the background loop. The first pass runs immediately.
// Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)

	go s.loop(ctx, s.interval)

	s.logger.Info("sync scheduler started", slog.Duration("interval", s.interval))
}

// Trigger requests a pass as soon as the loop is free. Never blocks.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// SetInterval changes the period. The next tick is one full new interval
// from now.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}

	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()

	// Drop a stale pending reset so the newest value wins.
	select {
	case <-s.reset:
	default:
	}

	select {
	case s.reset <- d:
	default:
	}
}

// Stop cancels the loop and waits for any in-flight pass to return.
// Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()

	s.logger.Info("sync scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runPass(ctx, passSourceStart)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPass(ctx, passSourceTick)
		case <-s.trigger:
			s.runPass(ctx, passSourceTrigger)
		case d := <-s.reset:
			ticker.Reset(d)
			s.logger.Info("sync interval changed", slog.Duration("interval", d))
		}
	}
}

// runPass runs one pass with panic recovery so a bug in a pass cannot take
// the daemon down.
func (s *Scheduler) runPass(ctx context.Context, source string) {
	report, err := func() (report *PassReport, err error) {
		defer func() {
			if p := recover(); p != nil {
				report = nil
				err = fmt.Errorf("panic in reconciliation pass: %v", p)
			}
		}()

		return s.pass(ctx)
	}()

	if err != nil {
		s.logger.Error("reconciliation pass failed",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
	}

	if s.afterPass != nil {
		s.afterPass(source, report, err)
	}
}
