package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// SQL statements for transaction operations. The pending predicate is the
// only place the retry ceiling is enforced for reads.
const (
	sqlInsertTransaction = `INSERT INTO transactions (id, created_at, amount, description)
		VALUES (?, ?, ?, ?)`

	sqlTransactionCols = `SELECT id, created_at, amount, description, synced, synced_at, retry_count
		FROM transactions`

	sqlFetchPending = sqlTransactionCols + `
		WHERE synced = 0 AND retry_count < ?
		ORDER BY created_at, rowid
		LIMIT ?`

	sqlGetTransaction = sqlTransactionCols + ` WHERE id = ?`

	sqlMarkSynced = `UPDATE transactions SET synced = 1, synced_at = ? WHERE id = ?`

	sqlSettleSynced = `UPDATE transactions SET synced = 1, synced_at = ?
		WHERE id = ? AND synced = 0`

	sqlIncrementRetry = `UPDATE transactions SET retry_count = retry_count + 1
		WHERE id = ? AND synced = 0 AND retry_count < ?
		RETURNING retry_count`

	sqlExists = `SELECT 1 FROM transactions WHERE id = ?`

	sqlStats = `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN synced = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN synced = 0 AND retry_count < ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN synced = 0 AND retry_count >= ? THEN 1 ELSE 0 END), 0)
		FROM transactions`

	sqlGetMeta    = `SELECT value FROM sync_meta WHERE key = ?`
	sqlUpsertMeta = `INSERT INTO sync_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
)

// noLimit is SQLite's "no LIMIT" sentinel.
const noLimit = -1

// Meta keys persisted in sync_meta.
const (
	MetaLastPassAt    = "last_pass_at"
	MetaLastSuccessAt = "last_success_at"
	// MetaDaemonOnline is published by the watch daemon for status readers.
	// It is never read back into a connectivity gate.
	MetaDaemonOnline = "daemon_online"
)

// ListFilter selects which transactions List returns.
type ListFilter struct {
	State TxState // empty = all states
	Limit int     // <= 0 = unbounded
}

// Store is the durable record store and the only source of truth for what
// is pending, synced, or permanently failed. It owns the *sql.DB; EventLog
// shares it. Every mutation holds mu, so concurrent reconciliation passes
// see a single writer.
type Store struct {
	db      *sql.DB
	mu      stdsync.Mutex
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
	newID   func() string
}

// OpenStore opens the SQLite database at dbPath, runs migrations, and
// returns a ready-to-use store. The database uses WAL mode with
// synchronous=FULL for crash-safe durability.
func OpenStore(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)&_pragma=journal_size_limit(67108864)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Op: "open " + dbPath, Err: err}
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("record store opened", slog.String("db_path", dbPath))

	return &Store{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
		newID:   func() string { return uuid.New().String() },
	}, nil
}

// DB returns the underlying connection so the event log can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sync: closing record store: %w", err)
	}

	return nil
}

// Insert persists a new pending transaction with retry_count 0 and returns
// its freshly generated identifier. Write failures come back as
// *StorageError without any retry.
func (s *Store) Insert(ctx context.Context, amount decimal.Decimal, description string) (string, error) {
	id := s.newID()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, sqlInsertTransaction,
		id, ToUnixNano(s.nowFunc()), amount.String(), description)
	if err != nil {
		return "", &StorageError{Op: "insert transaction", Err: err}
	}

	s.logger.Debug("transaction recorded",
		slog.String("tx_id", id),
		slog.String("amount", amount.String()),
	)

	return id, nil
}

// FetchPending returns every transaction with synced = false and
// retry_count below RetryLimit, oldest first. limit <= 0 means unbounded.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = noLimit
	}

	return s.queryTransactions(ctx, "fetch pending", sqlFetchPending, RetryLimit, limit)
}

// Get returns a single transaction by ID.
func (s *Store) Get(ctx context.Context, id string) (*Transaction, error) {
	rows, err := s.queryTransactions(ctx, "get transaction", sqlGetTransaction, id)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}

	return &rows[0], nil
}

// List returns transactions matching filter, oldest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	var (
		where string
		args  []any
	)

	switch filter.State {
	case "":
	case TxPending:
		where = ` WHERE synced = 0 AND retry_count < ?`
		args = append(args, RetryLimit)
	case TxSynced:
		where = ` WHERE synced = 1`
	case TxPermanentlyFailed:
		where = ` WHERE synced = 0 AND retry_count >= ?`
		args = append(args, RetryLimit)
	default:
		return nil, fmt.Errorf("sync: unknown transaction state %q", filter.State)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = noLimit
	}

	args = append(args, limit)

	query := sqlTransactionCols + where + ` ORDER BY created_at, rowid LIMIT ?` //nolint:gosec // where is always a compile-time constant

	return s.queryTransactions(ctx, "list transactions", query, args...)
}

// MarkSynced sets synced = true and records the completion time. Calling it
// again for the same ID only overwrites the timestamp.
func (s *Store) MarkSynced(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, sqlMarkSynced, ToUnixNano(at), id)
	if err != nil {
		return &StorageError{Op: "mark synced " + id, Err: err}
	}

	n, err := result.RowsAffected()
	if err != nil {
		return &StorageError{Op: "mark synced " + id + " rows affected", Err: err}
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}

	return nil
}

// SettleSynced marks a pending record synced. Unlike MarkSynced it only
// applies while the row is still unsynced, and reports whether this call
// made the transition. Two engines on the same database can both get an
// acceptance for one record; only the one that settles it wins.
func (s *Store) SettleSynced(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, sqlSettleSynced, ToUnixNano(at), id)
	if err != nil {
		return false, &StorageError{Op: "settle synced " + id, Err: err}
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "settle synced " + id + " rows affected", Err: err}
	}

	if n == 1 {
		return true, nil
	}

	var one int

	err = s.db.QueryRowContext(ctx, sqlExists, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}

	if err != nil {
		return false, &StorageError{Op: "settle synced " + id + " lookup", Err: err}
	}

	return false, nil
}

// IncrementRetry atomically adds one to retry_count and returns the new
// value. The update only applies to unsynced rows under RetryLimit, so the
// counter can never pass the ceiling; a synced or exhausted row returns
// ErrNotEligible. Reaching RetryLimit excludes the row from FetchPending.
func (s *Store) IncrementRetry(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int

	err := s.db.QueryRowContext(ctx, sqlIncrementRetry, id, RetryLimit).Scan(&count)
	if err == nil {
		return count, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return 0, &StorageError{Op: "increment retry " + id, Err: err}
	}

	var one int

	err = s.db.QueryRowContext(ctx, sqlExists, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}

	if err != nil {
		return 0, &StorageError{Op: "increment retry " + id + " lookup", Err: err}
	}

	return 0, fmt.Errorf("%w: %s", ErrNotEligible, id)
}

// Stats returns the aggregate counts in a single statement so the snapshot
// is consistent.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	err := s.db.QueryRowContext(ctx, sqlStats, RetryLimit, RetryLimit).Scan(
		&st.Total, &st.Synced, &st.Pending, &st.PermanentlyFailed,
	)
	if err != nil {
		return Stats{}, &StorageError{Op: "stats", Err: err}
	}

	return st, nil
}

// SetMeta stores a key/value pair in sync_meta.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, sqlUpsertMeta, key, value, ToUnixNano(s.nowFunc())); err != nil {
		return &StorageError{Op: "set meta " + key, Err: err}
	}

	return nil
}

// GetMeta returns the value stored for key, or "" if it was never set.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string

	err := s.db.QueryRowContext(ctx, sqlGetMeta, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", &StorageError{Op: "get meta " + key, Err: err}
	}

	return value, nil
}

// SetMetaTime stores a timestamp meta value as Unix nanoseconds.
func (s *Store) SetMetaTime(ctx context.Context, key string, t time.Time) error {
	return s.SetMeta(ctx, key, strconv.FormatInt(ToUnixNano(t), 10))
}

// GetMetaTime returns a timestamp meta value, or nil if it was never set.
func (s *Store) GetMetaTime(ctx context.Context, key string) (*time.Time, error) {
	value, err := s.GetMeta(ctx, key)
	if err != nil || value == "" {
		return nil, err
	}

	ns, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("sync: parsing meta %s: %w", key, err)
	}

	t := FromUnixNano(ns)

	return &t, nil
}

// queryTransactions runs a transaction SELECT and scans every row. The
// desc is used in error messages.
func (s *Store) queryTransactions(ctx context.Context, desc, query string, args ...any) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: desc, Err: err}
	}
	defer rows.Close()

	var result []Transaction

	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		result = append(result, *tx)
	}

	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: desc + " iterate", Err: err}
	}

	return result, nil
}

// scanTransaction scans a single row, handling the nullable synced_at
// column and parsing the decimal amount.
func scanTransaction(rows *sql.Rows) (*Transaction, error) {
	var (
		t        Transaction
		amount   string
		synced   int
		syncedAt sql.NullInt64
	)

	err := rows.Scan(&t.ID, &t.CreatedAt, &amount, &t.Description, &synced, &syncedAt, &t.RetryCount)
	if err != nil {
		return nil, fmt.Errorf("sync: scanning transaction row: %w", err)
	}

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("sync: parsing amount %q for %s: %w", amount, t.ID, err)
	}

	t.Synced = synced == 1

	if syncedAt.Valid {
		v := syncedAt.Int64
		t.SyncedAt = &v
	}

	return &t, nil
}
