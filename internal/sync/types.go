// Package sync implements the offline-first record buffer and its
// reconciliation with a remote authority: the durable record store, the
// sync event log, the connectivity gate, the reconciliation engine, and the
// background scheduler that drives it.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RetryLimit is the maximum number of failed remote attempts before a
// transaction is permanently excluded from reconciliation.
const RetryLimit = 3

// TxState is the derived lifecycle state of a transaction. It is never
// stored; the schema only holds synced and retry_count.
type TxState string

// Transaction states as shown to operators.
const (
	TxPending           TxState = "pending"
	TxSynced            TxState = "synced"
	TxPermanentlyFailed TxState = "permanently_failed"
)

// Transaction is a locally recorded monetary event awaiting (or done with)
// reconciliation.
type Transaction struct {
	ID          string
	CreatedAt   int64 // assigned by the store at insert (Unix nanoseconds)
	Amount      decimal.Decimal
	Description string
	Synced      bool
	SyncedAt    *int64 // nil until synced (Unix nanoseconds)
	RetryCount  int
}

// Eligible reports whether the transaction may be attempted by a
// reconciliation pass.
func (t *Transaction) Eligible() bool {
	return !t.Synced && t.RetryCount < RetryLimit
}

// State derives the lifecycle state from synced and retry_count.
func (t *Transaction) State() TxState {
	switch {
	case t.Synced:
		return TxSynced
	case t.RetryCount >= RetryLimit:
		return TxPermanentlyFailed
	default:
		return TxPending
	}
}

// EventType tags an entry in the sync event log.
type EventType string

// Event types as stored in the sync_log.event_type column.
const (
	EventSyncSuccess EventType = "sync_success"
	EventSyncFailure EventType = "sync_failure"
	EventSyncError   EventType = "sync_error"
)

// ParseEventType converts a database TEXT value to EventType.
func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventSyncSuccess, EventSyncFailure, EventSyncError:
		return EventType(s), nil
	default:
		return "", fmt.Errorf("sync: unknown event type %q", s)
	}
}

// Event is one immutable entry in the sync event log.
type Event struct {
	Seq           int64
	At            int64 // Unix nanoseconds
	Type          EventType
	TransactionID string // empty when the event is not tied to one record
	Detail        string
}

// Stats is a consistent aggregate snapshot of the record store.
// Total == Synced + Pending + PermanentlyFailed.
type Stats struct {
	Total             int `json:"total"`
	Synced            int `json:"synced"`
	Pending           int `json:"pending"`
	PermanentlyFailed int `json:"permanently_failed"`
}

// Remote is the seam to the remote authority. Attempt returns true when
// the remote acknowledged the transaction and false when it rejected it.
// A non-nil error means the attempt itself malfunctioned; the engine does
// not count that against the retry budget. Attempt may block.
type Remote interface {
	Attempt(ctx context.Context, txID string) (bool, error)
}

// Sentinel errors returned by the store.
var (
	ErrTransactionNotFound = errors.New("sync: transaction not found")
	ErrNotEligible         = errors.New("sync: transaction not eligible for retry")
)

// StorageError reports a persistence-layer failure. It is never retried by
// this package and is surfaced to callers of mutating operations.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("sync: storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// --- Timestamp helpers ---
// Stored timestamps are int64 Unix nanoseconds. Conversion happens at
// system boundaries only.

// ToUnixNano converts a time.Time to Unix nanoseconds.
// Returns 0 for the zero time.
func ToUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

// FromUnixNano converts Unix nanoseconds to a time.Time in local time.
func FromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns)
}
