package chat

import (
	"errors"

	"github.com/querypilot/querypilot/internal/executor"
)

type Category string

const (
	CategoryValidation          Category = "validation_error"
	CategorySchemaDiscovery     Category = "schema_discovery_failure"
	CategoryGeneration          Category = "generation_failure"
	CategoryExecutorUnreachable Category = "executor_unreachable"
	CategoryExecutorTimeout     Category = "executor_timeout"
	CategoryExecutorProtocol    Category = "executor_protocol_error"
	CategoryInternal            Category = "internal_error"
)

// Error is the pipeline's terminal failure. Message is safe to return to
// the caller; Err carries the diagnostic detail and is logged server-side.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is a dependency outage rather
// than something the caller can correct.
func (e *Error) Retryable() bool {
	switch e.Category {
	case CategorySchemaDiscovery, CategoryExecutorUnreachable, CategoryExecutorTimeout:
		return true
	default:
		return false
	}
}

func executorError(err error) *Error {
	switch {
	case errors.Is(err, executor.ErrTimeout):
		return &Error{
			Category: CategoryExecutorTimeout,
			Message:  "The query timed out. Try a narrower question.",
			Err:      err,
		}
	case errors.Is(err, executor.ErrUnreachable):
		return &Error{
			Category: CategoryExecutorUnreachable,
			Message:  "The query service is currently unavailable. Please try again later.",
			Err:      err,
		}
	case errors.Is(err, executor.ErrProtocol):
		return &Error{
			Category: CategoryExecutorProtocol,
			Message:  "The query service returned an unexpected response.",
			Err:      err,
		}
	default:
		return &Error{
			Category: CategoryInternal,
			Message:  "An unexpected error occurred while running the query.",
			Err:      err,
		}
	}
}
