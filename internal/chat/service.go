// Package chat runs the full question-to-answer pipeline: validate the
// inbound message, fetch the schema, generate SQL, validate it, execute
// it, and summarize the rows. Exactly one audit record is written per
// request no matter where the pipeline stops.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/querypilot/querypilot/internal/artifacts"
	"github.com/querypilot/querypilot/internal/audit"
	"github.com/querypilot/querypilot/internal/executor"
	"github.com/querypilot/querypilot/internal/nl2sql"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/sqlguard"
)

const MaxMessageLength = 1000

const asyncAcknowledgement = "Your query was accepted and is still being processed. Results will be available shortly."

type SchemaSource interface {
	Get(ctx context.Context, forceRefresh bool) (*schema.Snapshot, error)
}

type SQLGenerator interface {
	Generate(ctx context.Context, question, schemaDescription string) (nl2sql.Generation, error)
}

type AnswerSummarizer interface {
	Summarize(ctx context.Context, question, sqlText string, rows []map[string]any) (string, error)
}

type QueryExecutor interface {
	Execute(ctx context.Context, sqlText string) (executor.Result, error)
}

// Exchange is the terminal state of one successful pipeline run.
type Exchange struct {
	Message        string
	SQL            string
	Data           []map[string]any
	ConversationID string
	Filename       string
	Asynchronous   bool
}

type Config struct {
	Schemas    SchemaSource
	Generator  SQLGenerator
	Summarizer AnswerSummarizer
	Executor   QueryExecutor
	Recorder   audit.Recorder
	Artifacts  artifacts.Store
	Logger     *slog.Logger
}

type Service struct {
	schemas    SchemaSource
	generator  SQLGenerator
	summarizer AnswerSummarizer
	executor   QueryExecutor
	recorder   audit.Recorder
	artifacts  artifacts.Store
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Schemas == nil {
		return nil, fmt.Errorf("schema source is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Summarizer == nil {
		return nil, fmt.Errorf("summarizer is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		schemas:    cfg.Schemas,
		generator:  cfg.Generator,
		summarizer: cfg.Summarizer,
		executor:   cfg.Executor,
		recorder:   cfg.Recorder,
		artifacts:  cfg.Artifacts,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Handle runs one message through the pipeline. The message arrives as
// the raw decoded value so that non-textual payloads fail inside the
// pipeline and still produce their audit record. The returned error, when
// not nil, is always a *Error carrying the failure category.
func (s *Service) Handle(ctx context.Context, message any, conversationID string) (Exchange, error) {
	start := s.now()

	text, ok := message.(string)
	if !ok {
		return s.fail(ctx, s.logger, start, audit.Record{UserInput: fmt.Sprintf("%v", message)}, &Error{
			Category: CategoryValidation,
			Message:  "Message must be a non-empty string.",
		})
	}
	question := strings.TrimSpace(text)
	if question == "" {
		return s.fail(ctx, s.logger, start, audit.Record{UserInput: text}, &Error{
			Category: CategoryValidation,
			Message:  "Message must be a non-empty string.",
		})
	}
	if utf8.RuneCountInString(question) > MaxMessageLength {
		runes := []rune(question)
		return s.fail(ctx, s.logger, start, audit.Record{UserInput: string(runes[:MaxMessageLength])}, &Error{
			Category: CategoryValidation,
			Message:  fmt.Sprintf("Message exceeds the maximum length of %d characters.", MaxMessageLength),
		})
	}

	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	logger := s.logger.With(slog.String("conversation_id", conversationID))
	logger.InfoContext(ctx, "chat request received", slog.Int("message_length", len(question)))

	snapshot, err := s.schemas.Get(ctx, false)
	if err != nil {
		return s.fail(ctx, logger, start, audit.Record{UserInput: question}, &Error{
			Category: CategorySchemaDiscovery,
			Message:  "The database schema is currently unavailable. Please try again later.",
			Err:      err,
		})
	}

	generation, err := s.generator.Generate(ctx, question, schema.Describe(snapshot))
	if err != nil {
		return s.fail(ctx, logger, start, audit.Record{UserInput: question}, &Error{
			Category: CategoryGeneration,
			Message:  "No SQL statement could be generated for this question. Try rephrasing it.",
			Err:      err,
		})
	}
	logger.InfoContext(ctx, "sql generated", slog.String("sql", generation.SQL))

	if err := sqlguard.Validate(generation.SQL); err != nil {
		var validationErr *sqlguard.ValidationError
		if errors.As(err, &validationErr) {
			observability.IncrementSQLRejected(string(validationErr.Reason))
		}
		return s.fail(ctx, logger, start, audit.Record{QueryText: generation.SQL, UserInput: question}, &Error{
			Category: CategoryValidation,
			Message:  fmt.Sprintf("%s (statement: %s)", err.Error(), generation.SQL),
			Err:      err,
		})
	}
	sqlText := sqlguard.EnsureLimit(generation.SQL, sqlguard.DefaultRowLimit)

	result, err := s.executor.Execute(ctx, sqlText)
	if err != nil {
		return s.fail(ctx, logger, start, audit.Record{QueryText: sqlText, UserInput: question}, executorError(err))
	}

	if result.Asynchronous {
		observability.IncrementExecutorAsync()
		s.recordAudit(ctx, logger, audit.Record{
			QueryText:     sqlText,
			UserInput:     question,
			ExecutionTime: result.ExecutionTime,
			Status:        audit.StatusAsync,
		})
		observability.ObserveChatRequest("async", s.now().Sub(start))
		logger.InfoContext(ctx, "query accepted asynchronously")
		return Exchange{
			Message:        asyncAcknowledgement,
			SQL:            sqlText,
			ConversationID: conversationID,
			Asynchronous:   true,
		}, nil
	}

	rows := NormalizeTimestamps(result.Rows)

	answer, err := s.summarizer.Summarize(ctx, question, sqlText, rows)
	if err != nil {
		return s.fail(ctx, logger, start, audit.Record{
			QueryText:     sqlText,
			UserInput:     question,
			ExecutionTime: result.ExecutionTime,
			RowCount:      result.RowCount,
		}, &Error{
			Category: CategoryGeneration,
			Message:  "The results could not be summarized. Please try again.",
			Err:      err,
		})
	}

	exchange := Exchange{
		Message:        answer,
		SQL:            sqlText,
		Data:           rows,
		ConversationID: conversationID,
	}
	if s.artifacts != nil {
		artifact := artifacts.Artifact{
			Timestamp: s.now().UTC(),
			Query:     sqlText,
			Results:   rows,
			Question:  question,
			Answer:    answer,
		}
		if name, err := s.artifacts.Save(ctx, artifact, conversationID); err != nil {
			logger.WarnContext(ctx, "artifact write failed", slog.Any("error", err))
		} else {
			exchange.Filename = name
		}
	}

	s.recordAudit(ctx, logger, audit.Record{
		QueryText:     sqlText,
		UserInput:     question,
		ExecutionTime: result.ExecutionTime,
		RowCount:      result.RowCount,
		Status:        audit.StatusSuccess,
	})
	observability.ObserveChatRequest("success", s.now().Sub(start))
	logger.InfoContext(ctx, "chat request completed",
		slog.Int("rows", result.RowCount),
		slog.String("execution_time", result.ExecutionTime.String()),
	)
	return exchange, nil
}

func (s *Service) fail(ctx context.Context, logger *slog.Logger, start time.Time, record audit.Record, failure *Error) (Exchange, error) {
	logger.ErrorContext(ctx, "chat request failed",
		slog.String("category", string(failure.Category)),
		slog.Any("error", failure.Unwrap()),
	)
	record.Status = audit.StatusError
	record.ErrorMessage = diagnostic(failure)
	s.recordAudit(ctx, logger, record)
	observability.ObserveChatRequest(string(failure.Category), s.now().Sub(start))
	return Exchange{}, failure
}

func (s *Service) recordAudit(ctx context.Context, logger *slog.Logger, record audit.Record) {
	if err := s.recorder.Record(ctx, record); err != nil {
		observability.IncrementAuditWriteFailure()
		logger.ErrorContext(ctx, "audit write failed", slog.Any("error", err))
	}
}

func diagnostic(failure *Error) string {
	if failure.Err != nil {
		return failure.Err.Error()
	}
	return failure.Message
}
