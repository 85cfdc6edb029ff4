// Package audit persists one record per chat request describing what was
// asked, what ran, and how it ended.
package audit

import (
	"context"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusAsync   Status = "async"
)

type Record struct {
	QueryText     string
	UserInput     string
	ExecutionTime time.Duration
	RowCount      int
	Status        Status
	ErrorMessage  string
}

// Recorder appends audit records. Callers treat failures as best-effort:
// they are logged and counted, never surfaced to the user.
type Recorder interface {
	Record(ctx context.Context, record Record) error
}
