// Package api exposes the pipeline over HTTP: the chat endpoint, a raw
// query endpoint, schema inspection, and the operational surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querypilot/querypilot/internal/chat"
	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/executor"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/schema"
)

type ReadinessCheck func(ctx context.Context) error

type ChatService interface {
	Handle(ctx context.Context, message any, conversationID string) (chat.Exchange, error)
}

type SchemaSource interface {
	Get(ctx context.Context, forceRefresh bool) (*schema.Snapshot, error)
}

type QueryExecutor interface {
	Execute(ctx context.Context, sqlText string) (executor.Result, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Chat              ChatService
	Schemas           SchemaSource
	Executor          QueryExecutor
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET "+observability.MetricsPath, promhttp.Handler())

	mux.HandleFunc("POST /v1/chat", func(w http.ResponseWriter, r *http.Request) {
		handleChat(deps, w, r)
	})
	mux.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckOracleConfig verifies the oracle client can be reached at all
// before the service reports ready; it does not spend a completion call.
func CheckOracleConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Oracle.BaseURL == "" {
			return errors.New("oracle base url is not configured")
		}
		if cfg.Oracle.APIKey == "" {
			return errors.New("oracle api key is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

func writePipelineError(ctx context.Context, w http.ResponseWriter, err error) {
	var pipelineErr *chat.Error
	if !errors.As(err, &pipelineErr) {
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred", false, nil)
		return
	}
	writeError(ctx, w, statusForCategory(pipelineErr.Category), codeForCategory(pipelineErr.Category), pipelineErr.Message, pipelineErr.Retryable(), nil)
}

func statusForCategory(category chat.Category) int {
	switch category {
	case chat.CategoryValidation:
		return http.StatusBadRequest
	case chat.CategorySchemaDiscovery, chat.CategoryExecutorUnreachable:
		return http.StatusServiceUnavailable
	case chat.CategoryExecutorTimeout:
		return http.StatusGatewayTimeout
	case chat.CategoryGeneration, chat.CategoryExecutorProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func codeForCategory(category chat.Category) string {
	switch category {
	case chat.CategoryValidation:
		return "VALIDATION_ERROR"
	case chat.CategorySchemaDiscovery:
		return "SCHEMA_DISCOVERY_FAILURE"
	case chat.CategoryGeneration:
		return "GENERATION_FAILURE"
	case chat.CategoryExecutorUnreachable:
		return "EXECUTOR_UNREACHABLE"
	case chat.CategoryExecutorTimeout:
		return "EXECUTOR_TIMEOUT"
	case chat.CategoryExecutorProtocol:
		return "EXECUTOR_PROTOCOL_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
