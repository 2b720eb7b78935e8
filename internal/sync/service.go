package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the operator-facing snapshot returned by Service.Status.
type Status struct {
	Stats
	Online        bool              `json:"online"`
	LastPassAt    *time.Time        `json:"last_pass_at,omitempty"`
	LastSuccessAt *time.Time        `json:"last_success_at,omitempty"`
	Events        map[EventType]int `json:"events"`
}

// Service is the surface exposed to the CLI shell: record, connectivity
// control, forced sync, and status. It wires the Engine to an optional
// Scheduler; without one, passes only run on demand.
type Service struct {
	engine *Engine
	sched  *Scheduler // nil for one-shot commands
	logger *slog.Logger
}

// NewService creates a Service. sched may be nil.
func NewService(engine *Engine, sched *Scheduler, logger *slog.Logger) *Service {
	return &Service{engine: engine, sched: sched, logger: logger}
}

// Record persists a new pending transaction and returns its ID. Storage
// failures are returned unmodified. When online and a scheduler is
// running, a pass is requested right away.
func (s *Service) Record(ctx context.Context, amount decimal.Decimal, description string) (string, error) {
	id, err := s.engine.store.Insert(ctx, amount, description)
	if err != nil {
		return "", err
	}

	s.logger.Info("transaction recorded locally",
		slog.String("tx_id", id),
		slog.String("amount", amount.String()),
	)

	if s.engine.conn.Online() && s.sched != nil {
		s.sched.Trigger()
	}

	return id, nil
}

// ToggleConnectivity flips the gate. Going online runs a pass immediately
// and returns its report; going offline returns a nil report.
func (s *Service) ToggleConnectivity(ctx context.Context) (bool, *PassReport, error) {
	online := s.engine.conn.Toggle()
	if !online {
		return false, nil, nil
	}

	report, err := s.ForceSync(ctx)

	return true, report, err
}

// SetOnline sets the gate explicitly. A transition to online runs a pass
// immediately, as ToggleConnectivity does.
func (s *Service) SetOnline(ctx context.Context, online bool) (*PassReport, error) {
	if !s.engine.conn.Set(online) || !online {
		return nil, nil
	}

	return s.ForceSync(ctx)
}

// Online reports the current gate state.
func (s *Service) Online() bool {
	return s.engine.conn.Online()
}

// ForceSync runs a reconciliation pass synchronously on the caller's
// goroutine. It may overlap a scheduled pass.
func (s *Service) ForceSync(ctx context.Context) (*PassReport, error) {
	return s.engine.RunPass(ctx)
}

// Status returns the store snapshot plus gate state, pass timestamps, and
// event counts.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st, err := s.engine.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	lastPass, err := s.engine.store.GetMetaTime(ctx, MetaLastPassAt)
	if err != nil {
		return nil, err
	}

	lastSuccess, err := s.engine.store.GetMetaTime(ctx, MetaLastSuccessAt)
	if err != nil {
		return nil, err
	}

	counts, err := s.engine.events.CountByType(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		Stats:         st,
		Online:        s.engine.conn.Online(),
		LastPassAt:    lastPass,
		LastSuccessAt: lastSuccess,
		Events:        counts,
	}, nil
}

// RecentEvents returns the n most recent events, newest first.
func (s *Service) RecentEvents(ctx context.Context, n int) ([]Event, error) {
	return s.engine.events.Recent(ctx, n)
}

// History returns one transaction with its event history, oldest first.
func (s *Service) History(ctx context.Context, txID string) (*Transaction, []Event, error) {
	tx, err := s.engine.store.Get(ctx, txID)
	if err != nil {
		return nil, nil, err
	}

	events, err := s.engine.events.ForTransaction(ctx, txID)
	if err != nil {
		return nil, nil, err
	}

	return tx, events, nil
}

// List returns transactions matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	return s.engine.store.List(ctx, filter)
}
