package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/edgeledger/internal/config"
	"github.com/tonimelisma/edgeledger/internal/remote"
	"github.com/tonimelisma/edgeledger/internal/sync"
)

// dataDirPermissions: owner rwx, group/other rx.
const dataDirPermissions = 0o755

// LedgerSession bundles the store, engine, and service opened for one
// command invocation. Scheduler is nil unless the session was opened for
// the watch daemon.
type LedgerSession struct {
	Store     *sync.Store
	Engine    *sync.Engine
	Scheduler *sync.Scheduler
	Service   *sync.Service
}

// sessionOptions selects how NewLedgerSession wires the engine.
type sessionOptions struct {
	online    bool
	scheduled bool
}

// NewLedgerSession opens the database named in cfg and wires the sync
// components around it.
func NewLedgerSession(ctx context.Context, cfg *config.Resolved, opts sessionOptions, logger *slog.Logger) (*LedgerSession, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), dataDirPermissions); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	store, err := sync.OpenStore(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	stub, err := remote.NewStub(remoteConfig(cfg), logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	engine, err := sync.NewEngine(&sync.EngineConfig{
		Store:        store,
		Events:       sync.NewEventLog(store.DB(), logger),
		Remote:       stub,
		Connectivity: sync.NewConnectivity(opts.online, logger),
		BatchSize:    cfg.BatchSize,
		Logger:       logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	var sched *sync.Scheduler
	if opts.scheduled {
		sched = sync.NewScheduler(engine.RunPass, cfg.Interval, logger)
	}

	return &LedgerSession{
		Store:     store,
		Engine:    engine,
		Scheduler: sched,
		Service:   sync.NewService(engine, sched, logger),
	}, nil
}

// Close stops the scheduler, if any, and closes the database.
func (s *LedgerSession) Close() error {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}

	return s.Store.Close()
}

func remoteConfig(cfg *config.Resolved) remote.Config {
	return remote.Config{
		MinLatency:  cfg.Remote.MinLatency,
		MaxLatency:  cfg.Remote.MaxLatency,
		FailureRate: cfg.Remote.FailureRate,
		RateLimit:   cfg.Remote.RateLimit,
		Seed:        cfg.Remote.Seed,
	}
}

// openSession opens a one-shot session for a CLI command.
func openSession(ctx context.Context, cc *CLIContext, online bool) (*LedgerSession, error) {
	return NewLedgerSession(ctx, cc.Cfg, sessionOptions{online: online}, cc.Logger)
}
