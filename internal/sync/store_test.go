package sync

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore_CreatesSchema(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	v, err := s.SchemaVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	st, err := s.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
}

func TestOpenStore_ReopenKeepsRecords(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	logger := testLogger(t)

	s1, err := OpenStore(t.Context(), dbPath, logger)
	require.NoError(t, err)

	id, err := s1.Insert(t.Context(), decimal.RequireFromString("12.34"), "coffee")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := OpenStore(t.Context(), dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s2.Close() })

	tx, err := s2.Get(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.34").Equal(tx.Amount))
	assert.Equal(t, "coffee", tx.Description)
}

func TestInsert_NewRecordIsPending(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	id, err := s.Insert(t.Context(), decimal.RequireFromString("-5.10"), "refund")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	tx, err := s.Get(t.Context(), id)
	require.NoError(t, err)

	assert.False(t, tx.Synced)
	assert.Nil(t, tx.SyncedAt)
	assert.Equal(t, 0, tx.RetryCount)
	assert.NotZero(t, tx.CreatedAt)
	assert.Equal(t, TxPending, tx.State())
	assert.Equal(t, "-5.1", tx.Amount.String())
}

func TestInsert_UniqueIDs(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seen := make(map[string]bool)

	for range 20 {
		id, err := s.Insert(t.Context(), decimal.NewFromInt(1), "")
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestInsert_StorageErrorOnClosedDB(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.DB().Close())

	_, err := s.Insert(t.Context(), decimal.NewFromInt(1), "x")
	require.Error(t, err)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "insert transaction", se.Op)
}

func TestFetchPending_OldestFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	var ids []string

	for range 5 {
		id, err := s.Insert(t.Context(), decimal.NewFromInt(1), "")
		require.NoError(t, err)

		ids = append(ids, id)
	}

	pending, err := s.FetchPending(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 5)

	for i, tx := range pending {
		assert.Equal(t, ids[i], tx.ID)

		if i > 0 {
			assert.Greater(t, tx.CreatedAt, pending[i-1].CreatedAt)
		}
	}
}

func TestFetchPending_RespectsLimit(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	for range 4 {
		_, err := s.Insert(t.Context(), decimal.NewFromInt(1), "")
		require.NoError(t, err)
	}

	pending, err := s.FetchPending(t.Context(), 3)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestFetchPending_ExcludesSyncedAndExhausted(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	synced, err := s.Insert(ctx, decimal.NewFromInt(1), "synced")
	require.NoError(t, err)
	exhausted, err := s.Insert(ctx, decimal.NewFromInt(2), "exhausted")
	require.NoError(t, err)
	pending, err := s.Insert(ctx, decimal.NewFromInt(3), "pending")
	require.NoError(t, err)

	require.NoError(t, s.MarkSynced(ctx, synced, time.Now()))

	for range RetryLimit {
		_, err := s.IncrementRetry(ctx, exhausted)
		require.NoError(t, err)
	}

	got, err := s.FetchPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending, got[0].ID)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Synced: 1, Pending: 1, PermanentlyFailed: 1}, st)
	assert.Equal(t, st.Total, st.Synced+st.Pending+st.PermanentlyFailed)
}

func TestMarkSynced_SetsTimestampAndIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	id, err := s.Insert(ctx, decimal.NewFromInt(7), "")
	require.NoError(t, err)

	first := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkSynced(ctx, id, first))

	tx, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, tx.Synced)
	require.NotNil(t, tx.SyncedAt)
	assert.Equal(t, first.UnixNano(), *tx.SyncedAt)

	second := first.Add(time.Hour)
	require.NoError(t, s.MarkSynced(ctx, id, second))

	tx, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, tx.Synced)
	assert.Equal(t, second.UnixNano(), *tx.SyncedAt)
	assert.Equal(t, TxSynced, tx.State())
}

func TestSettleSynced_OnlyFirstCallWins(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	id, err := s.Insert(ctx, decimal.NewFromInt(7), "")
	require.NoError(t, err)

	first := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	won, err := s.SettleSynced(ctx, id, first)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.SettleSynced(ctx, id, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, won)

	tx, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, tx.SyncedAt)
	assert.Equal(t, first.UnixNano(), *tx.SyncedAt)

	_, err = s.SettleSynced(ctx, "missing", first)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestMarkSynced_UnknownID(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	err := s.MarkSynced(t.Context(), "missing", time.Now())
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestIncrementRetry_NeverExceedsCeiling(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	id, err := s.Insert(ctx, decimal.NewFromInt(1), "")
	require.NoError(t, err)

	for want := 1; want <= RetryLimit; want++ {
		got, err := s.IncrementRetry(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = s.IncrementRetry(ctx, id)
	require.ErrorIs(t, err, ErrNotEligible)

	tx, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, RetryLimit, tx.RetryCount)
	assert.Equal(t, TxPermanentlyFailed, tx.State())
}

func TestIncrementRetry_SyncedAndMissing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	id, err := s.Insert(ctx, decimal.NewFromInt(1), "")
	require.NoError(t, err)
	require.NoError(t, s.MarkSynced(ctx, id, time.Now()))

	_, err = s.IncrementRetry(ctx, id)
	require.ErrorIs(t, err, ErrNotEligible)

	_, err = s.IncrementRetry(ctx, "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	_, err := s.Get(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestList_FiltersByState(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	var ids []string

	for range 4 {
		id, err := s.Insert(ctx, decimal.NewFromInt(1), "")
		require.NoError(t, err)

		ids = append(ids, id)
	}

	require.NoError(t, s.MarkSynced(ctx, ids[0], time.Now()))

	for range RetryLimit {
		_, err := s.IncrementRetry(ctx, ids[1])
		require.NoError(t, err)
	}

	tests := []struct {
		state TxState
		want  []string
	}{
		{"", ids},
		{TxSynced, ids[:1]},
		{TxPermanentlyFailed, ids[1:2]},
		{TxPending, ids[2:]},
	}

	for _, tt := range tests {
		got, err := s.List(ctx, ListFilter{State: tt.state})
		require.NoError(t, err)

		gotIDs := make([]string, 0, len(got))
		for _, tx := range got {
			gotIDs = append(gotIDs, tx.ID)
		}

		assert.Equal(t, tt.want, gotIDs, "state %q", tt.state)
	}

	limited, err := s.List(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = s.List(ctx, ListFilter{State: "bogus"})
	assert.Error(t, err)
}

func TestMeta_RoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	got, err := s.GetMetaTime(ctx, MetaLastPassAt)
	require.NoError(t, err)
	assert.Nil(t, got)

	at := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)
	require.NoError(t, s.SetMetaTime(ctx, MetaLastPassAt, at))

	got, err = s.GetMetaTime(ctx, MetaLastPassAt)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, at.Equal(*got))

	require.NoError(t, s.SetMeta(ctx, "custom", "one"))
	require.NoError(t, s.SetMeta(ctx, "custom", "two"))

	v, err := s.GetMeta(ctx, "custom")
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}

func TestTransaction_StateAndEligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		tx       Transaction
		state    TxState
		eligible bool
	}{
		{"fresh", Transaction{}, TxPending, true},
		{"retried", Transaction{RetryCount: RetryLimit - 1}, TxPending, true},
		{"exhausted", Transaction{RetryCount: RetryLimit}, TxPermanentlyFailed, false},
		{"synced", Transaction{Synced: true}, TxSynced, false},
		{"synced after retries", Transaction{Synced: true, RetryCount: 2}, TxSynced, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.state, tt.tx.State())
			assert.Equal(t, tt.eligible, tt.tx.Eligible())
		})
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("disk full")
	err := &StorageError{Op: "insert transaction", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "sync: storage insert transaction: disk full", err.Error())
}

func TestUnixNanoHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(0), ToUnixNano(time.Time{}))

	at := time.Date(2026, 5, 6, 7, 8, 9, 10, time.UTC)
	assert.True(t, at.Equal(FromUnixNano(ToUnixNano(at))))
}
