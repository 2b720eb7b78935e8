package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	Store        *Store
	Events       *EventLog
	Remote       Remote
	Connectivity *Connectivity // nil creates an offline gate
	BatchSize    int           // <= 0 = unbounded
	Logger       *slog.Logger
}

// PassReport summarizes one reconciliation pass.
type PassReport struct {
	Skipped     bool // connectivity gate was closed; nothing was read or written
	Interrupted bool // connectivity dropped or ctx was canceled mid-batch
	Fetched     int  // size of the pending batch
	Synced      int
	Failed      int // remote rejections (retry_count incremented)
	Errored     int // engine faults (retry budget untouched)
	Exhausted   int // rejections that reached RetryLimit
	Contended   int // records skipped because another pass held or settled them
	Duration    time.Duration
}

// Attempted returns the number of records whose outcome was recorded.
func (r *PassReport) Attempted() int {
	return r.Synced + r.Failed + r.Errored
}

// Engine runs reconciliation passes: read the pending batch, attempt each
// record against the Remote, and record the outcome in the Store and the
// EventLog. RunPass is safe to call from several goroutines at once.
type Engine struct {
	store     *Store
	events    *EventLog
	remote    Remote
	conn      *Connectivity
	claims    *claimSet
	batchSize int
	logger    *slog.Logger
	nowFunc   func() time.Time // injectable for deterministic tests
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg.Store == nil || cfg.Events == nil || cfg.Remote == nil || cfg.Logger == nil {
		return nil, errors.New("sync: engine requires a store, event log, remote, and logger")
	}

	conn := cfg.Connectivity
	if conn == nil {
		conn = NewConnectivity(false, cfg.Logger)
	}

	return &Engine{
		store:     cfg.Store,
		events:    cfg.Events,
		remote:    cfg.Remote,
		conn:      conn,
		claims:    newClaimSet(),
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
		nowFunc:   time.Now,
	}, nil
}

// RunPass executes one reconciliation pass. While offline it returns
// immediately with Skipped set and has no side effects. Each record's
// outcome is applied on its own; a failure on one record never stops or
// rolls back the others. The returned error is non-nil only when the
// pending batch could not be read.
func (e *Engine) RunPass(ctx context.Context) (*PassReport, error) {
	start := e.nowFunc()
	report := &PassReport{}

	if !e.conn.Online() {
		report.Skipped = true
		passesTotal.WithLabelValues("offline").Inc()
		e.logger.Debug("reconciliation pass skipped: offline")

		return report, nil
	}

	batch, err := e.store.FetchPending(ctx, e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("sync: reading pending batch: %w", err)
	}

	report.Fetched = len(batch)

	if len(batch) == 0 {
		passesTotal.WithLabelValues("empty").Inc()
		e.logger.Debug("reconciliation pass: nothing pending")

		return report, nil
	}

	e.logger.Info("reconciliation pass starting", slog.Int("pending", len(batch)))

	for i := range batch {
		// Offline mid-pass defers the rest of the batch to a later pass.
		if ctx.Err() != nil || !e.conn.Online() {
			report.Interrupted = true
			break
		}

		if !e.reconcileOne(ctx, &batch[i], report) {
			report.Interrupted = true
			break
		}
	}

	e.finishPass(ctx, report, start)

	return report, nil
}

// reconcileOne attempts a single record and applies the outcome. It returns
// false when the attempt was abandoned because ctx was canceled.
func (e *Engine) reconcileOne(ctx context.Context, tx *Transaction, r *PassReport) bool {
	if !e.claims.claim(tx.ID) {
		r.Contended++
		return true
	}
	defer e.claims.release(tx.ID)

	// The batch may be stale: a concurrent pass can settle a record between
	// our fetch and our claim.
	cur, err := e.store.Get(ctx, tx.ID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}

		e.fault(ctx, tx.ID, "reloading transaction", err, r)

		return true
	}

	if !cur.Eligible() {
		r.Contended++
		return true
	}

	ok, err := e.safeAttempt(ctx, cur.ID)
	if err != nil && ctx.Err() != nil {
		e.logger.Debug("remote attempt abandoned",
			slog.String("tx_id", cur.ID),
			slog.String("error", err.Error()),
		)

		return false
	}

	// Once the remote has answered, the outcome is recorded even if ctx is
	// canceled in the meantime.
	applyCtx := context.WithoutCancel(ctx)

	switch {
	case err != nil:
		e.fault(applyCtx, cur.ID, "remote attempt", err, r)
	case ok:
		e.applySuccess(applyCtx, cur, r)
	default:
		e.applyFailure(applyCtx, cur, r)
	}

	return true
}

// safeAttempt calls the remote with panic recovery; a panicking remote is
// an engine fault like any other error.
func (e *Engine) safeAttempt(ctx context.Context, id string) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok = false
			err = fmt.Errorf("panic in remote attempt: %v", p)
		}
	}()

	return e.remote.Attempt(ctx, id)
}

func (e *Engine) applySuccess(ctx context.Context, tx *Transaction, r *PassReport) {
	won, err := e.store.SettleSynced(ctx, tx.ID, e.nowFunc())
	if err != nil {
		e.fault(ctx, tx.ID, "marking synced", err, r)
		return
	}

	// Another engine on the same database settled it first.
	if !won {
		r.Contended++
		e.logger.Debug("transaction already synced elsewhere", slog.String("tx_id", tx.ID))

		return
	}

	r.Synced++
	attemptsTotal.WithLabelValues("success").Inc()

	e.logger.Info("transaction synced",
		slog.String("tx_id", tx.ID),
		slog.Int("retry_count", tx.RetryCount),
	)

	e.appendEvent(ctx, EventSyncSuccess, tx.ID,
		fmt.Sprintf("transaction %s synced", tx.ID))
}

func (e *Engine) applyFailure(ctx context.Context, tx *Transaction, r *PassReport) {
	count, err := e.store.IncrementRetry(ctx, tx.ID)
	if errors.Is(err, ErrNotEligible) {
		r.Contended++
		e.logger.Debug("transaction settled elsewhere before rejection", slog.String("tx_id", tx.ID))

		return
	}

	if err != nil {
		e.fault(ctx, tx.ID, "incrementing retry count", err, r)
		return
	}

	r.Failed++
	attemptsTotal.WithLabelValues("failure").Inc()

	e.logger.Info("transaction rejected by remote",
		slog.String("tx_id", tx.ID),
		slog.Int("retry_count", count),
	)

	if count >= RetryLimit {
		r.Exhausted++
		exhaustedTotal.Inc()

		e.logger.Warn("transaction permanently failed",
			slog.String("tx_id", tx.ID),
			slog.Int("retry_count", count),
		)
	}

	e.appendEvent(ctx, EventSyncFailure, tx.ID,
		fmt.Sprintf("transaction %s rejected by remote (attempt %d of %d)", tx.ID, count, RetryLimit))
}

// fault records an engine-level failure for one record. The retry budget
// is not touched and the batch continues.
func (e *Engine) fault(ctx context.Context, txID, stage string, err error, r *PassReport) {
	r.Errored++
	attemptsTotal.WithLabelValues("error").Inc()

	e.logger.Error("reconciliation fault",
		slog.String("tx_id", txID),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)

	e.appendEvent(ctx, EventSyncError, txID,
		fmt.Sprintf("error syncing transaction %s: %s: %v", txID, stage, err))
}

// appendEvent writes to the event log. The log is observability, not a
// source of truth, so a failed append is logged and the store mutation
// stands.
func (e *Engine) appendEvent(ctx context.Context, typ EventType, txID, detail string) {
	if err := e.events.Append(ctx, typ, txID, detail); err != nil {
		e.logger.Warn("event log append failed",
			slog.String("event", string(typ)),
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}
}

// finishPass records metrics and pass timestamps and logs the summary.
func (e *Engine) finishPass(ctx context.Context, r *PassReport, start time.Time) {
	now := e.nowFunc()
	r.Duration = now.Sub(start)

	result := "completed"
	if r.Interrupted {
		result = "interrupted"
	}

	passesTotal.WithLabelValues(result).Inc()
	passDuration.Observe(r.Duration.Seconds())

	metaCtx := context.WithoutCancel(ctx)

	if r.Attempted() > 0 {
		e.setMetaTime(metaCtx, MetaLastPassAt, now)
	}

	if r.Synced > 0 {
		e.setMetaTime(metaCtx, MetaLastSuccessAt, now)
	}

	if st, err := e.store.Stats(metaCtx); err == nil {
		pendingGauge.Set(float64(st.Pending))
	}

	e.logger.Info("reconciliation pass complete",
		slog.Int("fetched", r.Fetched),
		slog.Int("synced", r.Synced),
		slog.Int("failed", r.Failed),
		slog.Int("errored", r.Errored),
		slog.Int("exhausted", r.Exhausted),
		slog.Int("contended", r.Contended),
		slog.Bool("interrupted", r.Interrupted),
		slog.Duration("duration", r.Duration),
	)
}

func (e *Engine) setMetaTime(ctx context.Context, key string, t time.Time) {
	if err := e.store.SetMetaTime(ctx, key, t); err != nil {
		e.logger.Warn("failed to persist pass metadata",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
