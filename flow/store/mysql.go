package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pulseflow/pulseflow/flow"
)

// MySQLHistory is a MySQL-backed flow.ExecutionHistory for multi-process
// deployments where several engine instances share one history.
//
// The DSN must include parseTime=true so DATETIME columns scan into
// time.Time, for example:
//
//	user:pass@tcp(localhost:3306)/pulseflow?parseTime=true
//
// The schema auto-migrates on first use.
type MySQLHistory struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLHistory opens a MySQL-backed history over the given DSN.
func NewMySQLHistory(dsn string) (*MySQLHistory, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	h := &MySQLHistory{db: db}
	if err := h.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return h, nil
}

func (h *MySQLHistory) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS execution_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			execution_id VARCHAR(64) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			status VARCHAR(16) NOT NULL,
			context JSON NOT NULL,
			created_at DATETIME(6) NOT NULL,
			UNIQUE KEY uniq_execution_step (execution_id, step),
			KEY idx_steps_execution (execution_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`
	if _, err := h.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create execution_steps table: %w", err)
	}
	return nil
}

// SaveStep persists one node transition. A record with an already-saved
// (execution, step) pair replaces the previous one.
func (h *MySQLHistory) SaveStep(ctx context.Context, record flow.StepRecord) error {
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
		ON DUPLICATE KEY UPDATE
			node_id = VALUES(node_id),
			status = VALUES(status),
			context = VALUES(context),
			created_at = VALUES(created_at)
	`
	_, err = h.db.ExecContext(ctx, query,
		string(record.ExecutionID),
		record.Step,
		string(record.NodeID),
		string(record.Status),
		string(contextJSON),
		record.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest returns the record with the highest step number for the run.
// Returns flow.ErrNotFound when the run has no recorded steps.
func (h *MySQLHistory) LoadLatest(ctx context.Context, id flow.ExecutionID) (*flow.StepRecord, error) {
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
	record, err := scanMySQLStep(h.db.QueryRowContext(ctx, query, string(id)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: execution %s", flow.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest step: %w", err)
	}
	return record, nil
}

// Steps returns every recorded transition of the run in step order.
func (h *MySQLHistory) Steps(ctx context.Context, id flow.ExecutionID) ([]flow.StepRecord, error) {
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
		record, err := scanMySQLStep(rows)
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
func (h *MySQLHistory) DeleteRun(ctx context.Context, id flow.ExecutionID) error {
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

// Close closes the database connection pool. Double-close is a no-op.
func (h *MySQLHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.db.Close()
}

// Ping verifies the database connection is alive.
func (h *MySQLHistory) Ping(ctx context.Context) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	h.mu.RUnlock()
	return h.db.PingContext(ctx)
}

func scanMySQLStep(row rowScanner) (*flow.StepRecord, error) {
	var (
		executionID string
		nodeID      string
		status      string
		contextJSON []byte
		createdAt   time.Time
		record      flow.StepRecord
	)
	if err := row.Scan(&executionID, &record.Step, &nodeID, &status, &contextJSON, &createdAt); err != nil {
		return nil, err
	}

	record.ExecutionID = flow.ExecutionID(executionID)
	record.NodeID = flow.NodeID(nodeID)
	record.Status = flow.ExecutionStatus(status)
	record.CreatedAt = createdAt

	if err := json.Unmarshal(contextJSON, &record.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}
	return &record, nil
}
