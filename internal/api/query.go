package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/querypilot/querypilot/internal/executor"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/sqlguard"
)

type queryRequest struct {
	Query string `json:"query"`
}

type queryMetadata struct {
	RowCount        int   `json:"rowCount"`
	ExecutionTimeMs int64 `json:"executionTime"`
}

type queryResponse struct {
	Results  []map[string]any `json:"results"`
	Metadata queryMetadata    `json:"metadata"`
}

// handleQuery runs a caller-supplied statement through the same validator
// and row-limit guard as generated SQL before dispatching it.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_ERROR", "request body must be JSON with a textual query field", false, nil)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_ERROR", "query must be a non-empty string", false, nil)
		return
	}

	if err := sqlguard.Validate(req.Query); err != nil {
		var validationErr *sqlguard.ValidationError
		if errors.As(err, &validationErr) {
			observability.IncrementSQLRejected(string(validationErr.Reason))
		}
		writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), false, nil)
		return
	}
	sqlText := sqlguard.EnsureLimit(req.Query, sqlguard.DefaultRowLimit)

	result, err := deps.Executor.Execute(r.Context(), sqlText)
	if err != nil {
		writeExecutorError(r, w, err)
		return
	}

	if result.Asynchronous {
		observability.IncrementExecutorAsync()
		writeJSON(w, http.StatusAccepted, map[string]any{
			"message": "query accepted for asynchronous processing",
		})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Results: result.Rows,
		Metadata: queryMetadata{
			RowCount:        result.RowCount,
			ExecutionTimeMs: result.ExecutionTime.Milliseconds(),
		},
	})
}

func writeExecutorError(r *http.Request, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, executor.ErrTimeout):
		writeError(r.Context(), w, http.StatusGatewayTimeout, "EXECUTOR_TIMEOUT", "the query timed out", true, nil)
	case errors.Is(err, executor.ErrUnreachable):
		writeError(r.Context(), w, http.StatusServiceUnavailable, "EXECUTOR_UNREACHABLE", "the query service is currently unavailable", true, nil)
	case errors.Is(err, executor.ErrProtocol):
		writeError(r.Context(), w, http.StatusBadGateway, "EXECUTOR_PROTOCOL_ERROR", "the query service returned an unexpected response", false, nil)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred", false, nil)
	}
}
