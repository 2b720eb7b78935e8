package sync

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEventLog(t *testing.T) *EventLog {
	t.Helper()

	s := newTestStore(t)

	return NewEventLog(s.DB(), testLogger(t))
}

func TestEventLog_RecentNewestFirst(t *testing.T) {
	t.Parallel()

	l := newTestEventLog(t)
	ctx := t.Context()

	for i := range 15 {
		require.NoError(t, l.Append(ctx, EventSyncFailure, fmt.Sprintf("tx-%02d", i), "rejected"))
	}

	events, err := l.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, defaultRecentEvents)

	assert.Equal(t, "tx-14", events[0].TransactionID)
	assert.Equal(t, "tx-05", events[len(events)-1].TransactionID)

	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i-1].Seq, events[i].Seq)
	}

	three, err := l.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, three, 3)
}

func TestEventLog_ForTransactionOldestFirst(t *testing.T) {
	t.Parallel()

	l := newTestEventLog(t)
	ctx := t.Context()

	require.NoError(t, l.Append(ctx, EventSyncFailure, "a", "first"))
	require.NoError(t, l.Append(ctx, EventSyncFailure, "b", "other"))
	require.NoError(t, l.Append(ctx, EventSyncSuccess, "a", "second"))

	events, err := l.ForTransaction(ctx, "a")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].Detail)
	assert.Equal(t, EventSyncSuccess, events[1].Type)
}

func TestEventLog_EmptyTransactionIDIsNull(t *testing.T) {
	t.Parallel()

	l := newTestEventLog(t)
	ctx := t.Context()

	require.NoError(t, l.Append(ctx, EventSyncError, "", "pass failed"))

	var nulls int
	require.NoError(t, l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_log WHERE tx_id IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)

	events, err := l.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].TransactionID)
}

func TestEventLog_CountByType(t *testing.T) {
	t.Parallel()

	l := newTestEventLog(t)
	ctx := t.Context()

	require.NoError(t, l.Append(ctx, EventSyncSuccess, "a", ""))
	require.NoError(t, l.Append(ctx, EventSyncFailure, "b", ""))
	require.NoError(t, l.Append(ctx, EventSyncFailure, "c", ""))

	counts, err := l.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[EventType]int{EventSyncSuccess: 1, EventSyncFailure: 2}, counts)
}

func TestEventLog_RejectsUnknownType(t *testing.T) {
	t.Parallel()

	l := newTestEventLog(t)

	err := l.Append(t.Context(), EventType("sync_maybe"), "a", "")
	require.Error(t, err)

	var se *StorageError
	assert.ErrorAs(t, err, &se)
}

func TestParseEventType(t *testing.T) {
	t.Parallel()

	for _, typ := range []EventType{EventSyncSuccess, EventSyncFailure, EventSyncError} {
		got, err := ParseEventType(string(typ))
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}

	_, err := ParseEventType("sync_unknown")
	assert.Error(t, err)
}
