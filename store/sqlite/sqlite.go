/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists the drawer's operation log and session. The same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the operations table
  - No DELETE statements on the operations table
  - Corrections via adjustment operations only
  The single-row drawer_session table is the one mutable piece of state:
  it records a state-machine position, not history.

BALANCES ARE NOT PERSISTED:
  There is deliberately no balances table. Balances are recomputed from
  the operations log, so a stored balance can never disagree with the
  stored log.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time, better crash
  recovery.

USAGE:
  store, err := sqlite.New("./data/drawer.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  drawer, err := ledger.NewDrawer(ctx, store)

SEE ALSO:
  - ledger/store.go: Interface definition
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/cash-drawer/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Operations (append-only ledger)
	CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount TEXT NOT NULL,
		direction TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL,
		actor TEXT NOT NULL,
		notes TEXT,
		reference TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_operations_currency
		ON operations(currency);
	CREATE INDEX IF NOT EXISTS idx_operations_kind
		ON operations(kind);
	CREATE INDEX IF NOT EXISTS idx_operations_timestamp
		ON operations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_operations_reference
		ON operations(reference) WHERE reference IS NOT NULL;

	-- Session (single row, state-machine position not history)
	CREATE TABLE IF NOT EXISTS drawer_session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		is_open INTEGER NOT NULL,
		opened_at TEXT,
		opened_by TEXT,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// OPERATION LOG (append-only)
// =============================================================================

// Append adds an operation to the log.
func (s *Store) Append(ctx context.Context, op ledger.CashOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendOp(ctx, s.db, op)
}

// AppendBatch adds multiple operations atomically.
func (s *Store) AppendBatch(ctx context.Context, ops []ledger.CashOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, op := range ops {
		if err := s.appendOp(ctx, sqlTx, op); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func (s *Store) appendOp(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, op ledger.CashOperation) error {
	query := `
		INSERT INTO operations
		(id, kind, currency, amount, direction, timestamp, actor, notes, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		op.ID,
		op.Kind,
		op.Currency,
		op.Amount.String(),
		op.Direction,
		op.Timestamp.UTC().Format(time.RFC3339Nano),
		op.Actor,
		op.Notes,
		nullString(op.Reference),
		time.Now().UTC().Format(time.RFC3339Nano),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateOperationID
		}
		return fmt.Errorf("failed to append operation: %w", err)
	}

	return nil
}

// Load returns the full operation log in append order. Ids are
// zero-padded monotonic, so id order is append order.
func (s *Store) Load(ctx context.Context) ([]ledger.CashOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, kind, currency, amount, direction, timestamp, actor, notes, reference
		FROM operations
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var ops []ledger.CashOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	return ops, rows.Err()
}

func scanOperation(rows *sql.Rows) (ledger.CashOperation, error) {
	var (
		op        ledger.CashOperation
		amount    string
		timestamp string
		notes     sql.NullString
		reference sql.NullString
	)

	if err := rows.Scan(
		&op.ID, &op.Kind, &op.Currency, &amount, &op.Direction,
		&timestamp, &op.Actor, &notes, &reference,
	); err != nil {
		return op, fmt.Errorf("failed to scan operation: %w", err)
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return op, fmt.Errorf("failed to parse amount %q: %w", amount, err)
	}
	op.Amount = parsed

	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return op, fmt.Errorf("failed to parse timestamp %q: %w", timestamp, err)
	}
	op.Timestamp = ts

	op.Notes = notes.String
	op.Reference = reference.String
	return op, nil
}

// =============================================================================
// SESSION
// =============================================================================

// SaveSession upserts the single session row.
func (s *Store) SaveSession(ctx context.Context, session ledger.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO drawer_session (id, is_open, opened_at, opened_by, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_open = excluded.is_open,
			opened_at = excluded.opened_at,
			opened_by = excluded.opened_by,
			updated_at = excluded.updated_at
	`

	var openedAt sql.NullString
	if !session.OpenedAt.IsZero() {
		openedAt = sql.NullString{String: session.OpenedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		boolToInt(session.IsOpen),
		openedAt,
		session.OpenedBy,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession returns the persisted session, or the zero Session when the
// drawer has never been opened.
func (s *Store) LoadSession(ctx context.Context) (ledger.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		session  ledger.Session
		isOpen   int
		openedAt sql.NullString
		openedBy sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		"SELECT is_open, opened_at, opened_by FROM drawer_session WHERE id = 1",
	).Scan(&isOpen, &openedAt, &openedBy)
	if err == sql.ErrNoRows {
		return ledger.Session{}, nil
	}
	if err != nil {
		return ledger.Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	session.IsOpen = isOpen != 0
	session.OpenedBy = openedBy.String
	if openedAt.Valid {
		ts, err := time.Parse(time.RFC3339Nano, openedAt.String)
		if err != nil {
			return ledger.Session{}, fmt.Errorf("failed to parse opened_at %q: %w", openedAt.String, err)
		}
		session.OpenedAt = ts
	}
	return session, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
