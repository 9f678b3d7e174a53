package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pulseflow/pulseflow/flow"
	_ "modernc.org/sqlite"
)

// SQLiteHistory is a SQLite-backed flow.ExecutionHistory.
//
// It stores execution step records in a single-file database. Designed
// for:
//   - Development and testing with zero setup
//   - Single-process deployments that need runs to survive restarts
//   - Prototyping before migrating to MySQL
//
// The store enables WAL mode so history reads never block the engine's
// writes, and auto-migrates its schema on first use.
type SQLiteHistory struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteHistory opens (creating if necessary) a SQLite-backed history
// at path. Use ":memory:" for an in-memory database that vanishes on
// Close.
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	h := &SQLiteHistory{db: db, path: path}
	if err := h.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return h, nil
}

func (h *SQLiteHistory) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS execution_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			status TEXT NOT NULL,
			context TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(execution_id, step)
		)
	`
	if _, err := h.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create execution_steps table: %w", err)
	}
	if _, err := h.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_steps_execution ON execution_steps(execution_id)"); err != nil {
		return fmt.Errorf("failed to create idx_steps_execution: %w", err)
	}
	return nil
}

// SaveStep persists one node transition. A record with an already-saved
// (execution, step) pair replaces the previous one.
func (h *SQLiteHistory) SaveStep(ctx context.Context, record flow.StepRecord) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	h.mu.RUnlock()

	contextJSON, err := json.Marshal(record.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	query := `
		INSERT INTO execution_steps (execution_id, step, node_id, status, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id, step) DO UPDATE SET
			node_id = excluded.node_id,
			status = excluded.status,
			context = excluded.context,
			created_at = excluded.created_at
	`
	_, err = h.db.ExecContext(ctx, query,
		string(record.ExecutionID),
		record.Step,
		string(record.NodeID),
		string(record.Status),
		string(contextJSON),
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest returns the record with the highest step number for the run.
// Returns flow.ErrNotFound when the run has no recorded steps.
func (h *SQLiteHistory) LoadLatest(ctx context.Context, id flow.ExecutionID) (*flow.StepRecord, error) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return nil, ErrClosed
	}
	h.mu.RUnlock()

	query := `
		SELECT execution_id, step, node_id, status, context, created_at
		FROM execution_steps
		WHERE execution_id = ?
		ORDER BY step DESC
		LIMIT 1
	`
	record, err := scanStep(h.db.QueryRowContext(ctx, query, string(id)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: execution %s", flow.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest step: %w", err)
	}
	return record, nil
}

// Steps returns every recorded transition of the run in step order.
func (h *SQLiteHistory) Steps(ctx context.Context, id flow.ExecutionID) ([]flow.StepRecord, error) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return nil, ErrClosed
	}
	h.mu.RUnlock()

	query := `
		SELECT execution_id, step, node_id, status, context, created_at
		FROM execution_steps
		WHERE execution_id = ?
		ORDER BY step ASC
	`
	rows, err := h.db.QueryContext(ctx, query, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []flow.StepRecord
	for rows.Next() {
		record, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step rows: %w", err)
	}
	return records, nil
}

// DeleteRun removes every record of the run. Deleting an unknown run is a
// no-op.
func (h *SQLiteHistory) DeleteRun(ctx context.Context, id flow.ExecutionID) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	h.mu.RUnlock()

	if _, err := h.db.ExecContext(ctx, "DELETE FROM execution_steps WHERE execution_id = ?", string(id)); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Close closes the database connection. Double-close is a no-op.
func (h *SQLiteHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.db.Close()
}

// Ping verifies the database connection is alive.
func (h *SQLiteHistory) Ping(ctx context.Context) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	h.mu.RUnlock()
	return h.db.PingContext(ctx)
}

// Path returns the database file path.
func (h *SQLiteHistory) Path() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.path
}

// rowScanner abstracts sql.Row and sql.Rows for scanStep.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStep(row rowScanner) (*flow.StepRecord, error) {
	var (
		executionID string
		nodeID      string
		status      string
		contextJSON string
		createdAt   string
		record      flow.StepRecord
	)
	if err := row.Scan(&executionID, &record.Step, &nodeID, &status, &contextJSON, &createdAt); err != nil {
		return nil, err
	}

	record.ExecutionID = flow.ExecutionID(executionID)
	record.NodeID = flow.NodeID(nodeID)
	record.Status = flow.ExecutionStatus(status)

	if err := json.Unmarshal([]byte(contextJSON), &record.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	record.CreatedAt = ts
	return &record, nil
}
