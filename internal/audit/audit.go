// Package audit records the outcome of every /query request in Postgres.
// Only routing and outcome metadata is stored; question text and result rows
// never leave the request.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"query-orchestrator/internal/common/logger"

	"github.com/google/uuid"
)

var (
	ErrInvalidTable = errors.New("INVALID_AUDIT_TABLE")
	ErrInsertFailed = errors.New("AUDIT_INSERT_FAILED")
)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// Entry is one finished request.
type Entry struct {
	RequestID  string
	Intent     string
	Execution  string
	Outcome    string // "ok" or the error code
	Stage      string
	AgentsUsed []string
	Warnings   int
	Duration   time.Duration
	CreatedAt  time.Time
}

type Recorder struct {
	db      *sql.DB
	table   string
	timeout time.Duration
	logger  logger.Logger
}

func NewRecorder(db *sql.DB, table string, timeout time.Duration, log logger.Logger) (*Recorder, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &Recorder{
		db:      db,
		table:   table,
		timeout: timeout,
		logger:  log.With(map[string]interface{}{"component": "audit"}),
	}, nil
}

// EnsureTable creates the audit table when it does not exist.
func (r *Recorder) EnsureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			request_id TEXT NOT NULL,
			intent TEXT,
			execution TEXT,
			outcome TEXT NOT NULL,
			stage TEXT,
			agents_used JSONB,
			warnings INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, r.table))
	if err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

// Record inserts e. It runs under its own timeout and ignores cancellation of
// ctx, so a disconnected client still leaves an audit row.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	ctx = context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	agents := e.AgentsUsed
	if agents == nil {
		agents = []string{}
	}
	agentsJSON, err := json.Marshal(agents)
	if err != nil {
		agentsJSON = []byte("[]")
	}

	_, err = r.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, request_id, intent, execution, outcome,
			stage, agents_used, warnings, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, r.table),
		uuid.New().String(),
		e.RequestID,
		e.Intent,
		e.Execution,
		e.Outcome,
		e.Stage,
		agentsJSON,
		e.Warnings,
		e.Duration.Milliseconds(),
		e.CreatedAt,
	)
	if err != nil {
		r.logger.Warn("audit insert failed", map[string]interface{}{
			"requestId": e.RequestID,
			"error":     err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}
	return nil
}
