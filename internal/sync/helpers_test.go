package sync

import (
	"context"
	"log/slog"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// fakeRemote answers attempts with fn and counts calls per transaction.
type fakeRemote struct {
	mu    stdsync.Mutex
	fn    func(ctx context.Context, txID string) (bool, error)
	calls map[string]int
}

func newFakeRemote(fn func(ctx context.Context, txID string) (bool, error)) *fakeRemote {
	return &fakeRemote{fn: fn, calls: make(map[string]int)}
}

func acceptAll(context.Context, string) (bool, error) { return true, nil }

func rejectAll(context.Context, string) (bool, error) { return false, nil }

func (f *fakeRemote) Attempt(ctx context.Context, txID string) (bool, error) {
	f.mu.Lock()
	f.calls[txID]++
	fn := f.fn
	f.mu.Unlock()

	return fn(ctx, txID)
}

func (f *fakeRemote) setFn(fn func(ctx context.Context, txID string) (bool, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fn = fn
}

func (f *fakeRemote) callsFor(txID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[txID]
}

func (f *fakeRemote) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		n += c
	}

	return n
}

// steppingClock returns a clock that advances by one millisecond per call,
// so records inserted back to back get strictly increasing timestamps.
func steppingClock(start time.Time) func() time.Time {
	var (
		mu  stdsync.Mutex
		now = start
	)

	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		now = now.Add(time.Millisecond)

		return now
	}
}

// newTestStore opens a fresh store in a temp directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := testLogger(t)

	s, err := OpenStore(t.Context(), dbPath, logger)
	require.NoError(t, err)

	s.nowFunc = steppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	t.Cleanup(func() { s.Close() })

	return s
}

type testEnv struct {
	store  *Store
	events *EventLog
	remote *fakeRemote
	conn   *Connectivity
	engine *Engine
}

func newTestEnv(t *testing.T, online bool, fn func(ctx context.Context, txID string) (bool, error)) *testEnv {
	t.Helper()

	logger := testLogger(t)
	store := newTestStore(t)
	events := NewEventLog(store.DB(), logger)
	remote := newFakeRemote(fn)
	conn := NewConnectivity(online, logger)

	engine, err := NewEngine(&EngineConfig{
		Store:        store,
		Events:       events,
		Remote:       remote,
		Connectivity: conn,
		Logger:       logger,
	})
	require.NoError(t, err)

	return &testEnv{store: store, events: events, remote: remote, conn: conn, engine: engine}
}

// insertN records n transactions and returns their IDs in insertion order.
func (e *testEnv) insertN(t *testing.T, n int) []string {
	t.Helper()

	ids := make([]string, 0, n)

	for i := range n {
		id, err := e.store.Insert(t.Context(), decimal.NewFromInt(int64(10*(i+1))), "purchase")
		require.NoError(t, err)

		ids = append(ids, id)
	}

	return ids
}

func (e *testEnv) get(t *testing.T, id string) *Transaction {
	t.Helper()

	tx, err := e.store.Get(t.Context(), id)
	require.NoError(t, err)

	return tx
}

func (e *testEnv) allEvents(t *testing.T) []Event {
	t.Helper()

	events, err := e.events.Recent(t.Context(), 1000)
	require.NoError(t, err)

	return events
}

func countEvents(events []Event, typ EventType) int {
	n := 0

	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}

	return n
}
