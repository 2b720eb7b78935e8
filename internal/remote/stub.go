// Package remote provides the simulated upstream that reconciliation
// passes reconcile against. The stub accepts or rejects each attempt at
// random after a simulated network delay.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults used when a Config field is zero.
const (
	DefaultMinLatency  = 100 * time.Millisecond
	DefaultMaxLatency  = 500 * time.Millisecond
	DefaultFailureRate = 0.2
)

// Config controls the stub's simulated behavior.
type Config struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64 // probability in [0, 1] that an attempt is rejected
	RateLimit   float64 // attempts per second; 0 = unlimited
	Seed        int64   // 0 = nondeterministic
}

// Stub is a simulated remote. Attempt is safe for concurrent use.
type Stub struct {
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64
	limiter     *rate.Limiter // nil when unlimited
	logger      *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	// sleepFunc waits for the simulated latency. Tests override it to avoid
	// real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewStub validates cfg and returns a Stub.
func NewStub(cfg Config, logger *slog.Logger) (*Stub, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.FailureRate < 0 || cfg.FailureRate > 1 {
		return nil, fmt.Errorf("remote: failure rate %v out of range [0, 1]", cfg.FailureRate)
	}

	if cfg.MinLatency < 0 || cfg.MaxLatency < 0 {
		return nil, errors.New("remote: latency must not be negative")
	}

	if cfg.MaxLatency < cfg.MinLatency {
		return nil, fmt.Errorf("remote: max latency %s below min latency %s", cfg.MaxLatency, cfg.MinLatency)
	}

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("remote: rate limit %v must not be negative", cfg.RateLimit)
	}

	seed := uint64(cfg.Seed) //nolint:gosec // seed bits are reinterpreted, not range-checked
	if cfg.Seed == 0 {
		seed = rand.Uint64()
	}

	s := &Stub{
		minLatency:  cfg.MinLatency,
		maxLatency:  cfg.MaxLatency,
		failureRate: cfg.FailureRate,
		logger:      logger,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // simulation, not security
		sleepFunc:   timeSleep,
	}

	if cfg.RateLimit > 0 {
		burst := max(1, int(cfg.RateLimit))
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return s, nil
}

// Attempt simulates pushing one transaction upstream. It returns true when
// the remote accepts the record, false when it rejects it, and an error
// only when ctx ends before the remote answers.
func (s *Stub) Attempt(ctx context.Context, txID string) (bool, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("remote: waiting for rate limiter: %w", err)
		}
	}

	delay, accept := s.roll()

	if err := s.sleepFunc(ctx, delay); err != nil {
		return false, fmt.Errorf("remote: attempt for %s canceled: %w", txID, err)
	}

	s.logger.Debug("remote attempt",
		slog.String("tx_id", txID),
		slog.Duration("latency", delay),
		slog.Bool("accepted", accept),
	)

	return accept, nil
}

// roll draws the latency and the verdict under one lock so a seeded stub
// produces the same sequence regardless of goroutine interleaving.
func (s *Stub) roll() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		delay += time.Duration(s.rng.Int64N(int64(span) + 1))
	}

	accept := s.rng.Float64() >= s.failureRate

	return delay, accept
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
