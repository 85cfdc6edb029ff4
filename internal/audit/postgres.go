package audit

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS query_audit (
    id BIGSERIAL PRIMARY KEY,
    query_text TEXT NOT NULL,
    user_input TEXT NOT NULL,
    execution_ms BIGINT NOT NULL DEFAULT 0,
    row_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    error_message TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Record(ctx context.Context, record Record) error {
	var errorMessage any
	if record.ErrorMessage != "" {
		errorMessage = record.ErrorMessage
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO query_audit (query_text, user_input, execution_ms, row_count, status, error_message)
VALUES ($1, $2, $3, $4, $5, $6)`,
		record.QueryText,
		record.UserInput,
		record.ExecutionTime.Milliseconds(),
		record.RowCount,
		string(record.Status),
		errorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
