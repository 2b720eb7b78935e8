package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// defaultRecentEvents is how many events Recent returns for n <= 0.
const defaultRecentEvents = 10

const (
	sqlAppendEvent = `INSERT INTO sync_log (at, event_type, tx_id, detail) VALUES (?, ?, ?, ?)`

	sqlEventCols = `SELECT seq, at, event_type, tx_id, detail FROM sync_log`

	sqlRecentEvents = sqlEventCols + ` ORDER BY seq DESC LIMIT ?`

	sqlEventsForTx = sqlEventCols + ` WHERE tx_id = ? ORDER BY seq`

	sqlCountByType = `SELECT event_type, COUNT(*) FROM sync_log GROUP BY event_type`
)

// EventLog is the append-only audit trail of reconciliation outcomes. It
// shares the *sql.DB owned by Store. Entries are never updated or deleted.
type EventLog struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewEventLog creates an EventLog that shares the given database connection.
func NewEventLog(db *sql.DB, logger *slog.Logger) *EventLog {
	return &EventLog{db: db, logger: logger, nowFunc: time.Now}
}

// Append writes one event. txID may be empty for events that are not tied
// to a single transaction.
func (l *EventLog) Append(ctx context.Context, typ EventType, txID, detail string) error {
	_, err := l.db.ExecContext(ctx, sqlAppendEvent,
		ToUnixNano(l.nowFunc()), string(typ), nullString(txID), detail)
	if err != nil {
		return &StorageError{Op: "append " + string(typ) + " event", Err: err}
	}

	return nil
}

// Recent returns the n most recent events, newest first.
func (l *EventLog) Recent(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		n = defaultRecentEvents
	}

	return l.queryEvents(ctx, "recent events", sqlRecentEvents, n)
}

// ForTransaction returns the full history of one transaction, oldest first.
func (l *EventLog) ForTransaction(ctx context.Context, txID string) ([]Event, error) {
	return l.queryEvents(ctx, "events for "+txID, sqlEventsForTx, txID)
}

// CountByType returns the number of events logged per event type.
func (l *EventLog) CountByType(ctx context.Context) (map[EventType]int, error) {
	rows, err := l.db.QueryContext(ctx, sqlCountByType)
	if err != nil {
		return nil, &StorageError{Op: "count events", Err: err}
	}
	defer rows.Close()

	counts := make(map[EventType]int)

	for rows.Next() {
		var (
			typ   string
			count int
		)

		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("sync: scanning event count: %w", err)
		}

		counts[EventType(typ)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "count events iterate", Err: err}
	}

	return counts, nil
}

func (l *EventLog) queryEvents(ctx context.Context, desc, query string, args ...any) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: desc, Err: err}
	}
	defer rows.Close()

	var events []Event

	for rows.Next() {
		var (
			ev   Event
			typ  string
			txID sql.NullString
		)

		if err := rows.Scan(&ev.Seq, &ev.At, &typ, &txID, &ev.Detail); err != nil {
			return nil, fmt.Errorf("sync: scanning event row: %w", err)
		}

		parsed, err := ParseEventType(typ)
		if err != nil {
			return nil, err
		}

		ev.Type = parsed
		ev.TransactionID = txID.String
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: desc + " iterate", Err: err}
	}

	return events, nil
}

// nullString converts an empty string to a NULL column value.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
