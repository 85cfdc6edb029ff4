package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/querypilot/querypilot/internal/artifacts"
	"github.com/querypilot/querypilot/internal/audit"
	"github.com/querypilot/querypilot/internal/executor"
	"github.com/querypilot/querypilot/internal/nl2sql"
	"github.com/querypilot/querypilot/internal/schema"
)

type fakeSchemas struct {
	snapshot schema.Snapshot
	err      error
}

func (f *fakeSchemas) Get(context.Context, bool) (*schema.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.snapshot, nil
}

type fakeGenerator struct {
	sql string
	err error
}

func (f *fakeGenerator) Generate(context.Context, string, string) (nl2sql.Generation, error) {
	if f.err != nil {
		return nl2sql.Generation{}, f.err
	}
	return nl2sql.Generation{SQL: f.sql}, nil
}

type fakeSummarizer struct {
	answer string
	err    error
	rows   []map[string]any
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string, _ string, rows []map[string]any) (string, error) {
	f.rows = rows
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeExecutor struct {
	result executor.Result
	err    error
	sql    string
}

func (f *fakeExecutor) Execute(_ context.Context, sqlText string) (executor.Result, error) {
	f.sql = sqlText
	if f.err != nil {
		return executor.Result{}, f.err
	}
	return f.result, nil
}

type captureRecorder struct {
	records []audit.Record
	err     error
}

func (c *captureRecorder) Record(_ context.Context, record audit.Record) error {
	c.records = append(c.records, record)
	return c.err
}

type fakeArtifactStore struct {
	saved *artifacts.Artifact
	err   error
}

func (f *fakeArtifactStore) Save(_ context.Context, artifact artifacts.Artifact, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = &artifact
	return "query_result_20231015T143022_c1.json", nil
}

type deps struct {
	schemas    *fakeSchemas
	generator  *fakeGenerator
	summarizer *fakeSummarizer
	executor   *fakeExecutor
	recorder   *captureRecorder
	store      *fakeArtifactStore
}

func newTestService(t *testing.T, d deps) *Service {
	t.Helper()
	if d.schemas == nil {
		d.schemas = &fakeSchemas{snapshot: schema.Snapshot{Tables: []schema.Table{{Name: "users"}}}}
	}
	if d.generator == nil {
		d.generator = &fakeGenerator{sql: "SELECT name FROM users"}
	}
	if d.summarizer == nil {
		d.summarizer = &fakeSummarizer{answer: "There is one user."}
	}
	if d.executor == nil {
		d.executor = &fakeExecutor{result: executor.Result{
			Rows:          []map[string]any{{"name": "alice"}},
			RowCount:      1,
			ExecutionTime: 40 * time.Millisecond,
		}}
	}
	if d.recorder == nil {
		d.recorder = &captureRecorder{}
	}
	cfg := Config{
		Schemas:    d.schemas,
		Generator:  d.generator,
		Summarizer: d.summarizer,
		Executor:   d.executor,
		Recorder:   d.recorder,
		Logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	if d.store != nil {
		cfg.Artifacts = d.store
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return service
}

func categoryOf(t *testing.T, err error) Category {
	t.Helper()
	var pipelineErr *Error
	if !errors.As(err, &pipelineErr) {
		t.Fatalf("error %v is not a *chat.Error", err)
	}
	return pipelineErr.Category
}

func TestHandleSuccessAppendsLimitAndAudits(t *testing.T) {
	d := deps{recorder: &captureRecorder{}, executor: &fakeExecutor{result: executor.Result{
		Rows:          []map[string]any{{"name": "alice"}},
		RowCount:      1,
		ExecutionTime: 40 * time.Millisecond,
	}}}
	service := newTestService(t, d)

	exchange, err := service.Handle(context.Background(), "who are our users?", "conv-1")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if exchange.SQL != "SELECT name FROM users LIMIT 100" {
		t.Fatalf("SQL = %q", exchange.SQL)
	}
	if d.executor.sql != exchange.SQL {
		t.Fatalf("executor received %q", d.executor.sql)
	}
	if exchange.Message != "There is one user." {
		t.Fatalf("Message = %q", exchange.Message)
	}
	if exchange.ConversationID != "conv-1" {
		t.Fatalf("ConversationID = %q", exchange.ConversationID)
	}

	if len(d.recorder.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(d.recorder.records))
	}
	record := d.recorder.records[0]
	if record.Status != audit.StatusSuccess || record.RowCount != 1 || record.QueryText != exchange.SQL {
		t.Fatalf("record = %+v", record)
	}
}

func TestHandleMintsConversationID(t *testing.T) {
	service := newTestService(t, deps{})

	exchange, err := service.Handle(context.Background(), "who are our users?", "")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if exchange.ConversationID == "" {
		t.Fatal("conversation identifier was not assigned")
	}
}

func TestHandleRejectsEmptyMessage(t *testing.T) {
	recorder := &captureRecorder{}
	service := newTestService(t, deps{recorder: recorder})

	_, err := service.Handle(context.Background(), "   ", "")
	if got := categoryOf(t, err); got != CategoryValidation {
		t.Fatalf("category = %q", got)
	}
	if len(recorder.records) != 1 || recorder.records[0].Status != audit.StatusError {
		t.Fatalf("records = %+v", recorder.records)
	}
}

func TestHandleRejectsNonTextualMessageAndAudits(t *testing.T) {
	recorder := &captureRecorder{}
	service := newTestService(t, deps{recorder: recorder})

	_, err := service.Handle(context.Background(), float64(42), "")
	if got := categoryOf(t, err); got != CategoryValidation {
		t.Fatalf("category = %q", got)
	}
	if len(recorder.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(recorder.records))
	}
	record := recorder.records[0]
	if record.Status != audit.StatusError || record.QueryText != "" {
		t.Fatalf("record = %+v", record)
	}
}

func TestHandleRejectsOversizedMessage(t *testing.T) {
	service := newTestService(t, deps{})

	_, err := service.Handle(context.Background(), strings.Repeat("a", MaxMessageLength+1), "")
	if got := categoryOf(t, err); got != CategoryValidation {
		t.Fatalf("category = %q", got)
	}
}

func TestHandleCountsMessageLengthInRunes(t *testing.T) {
	service := newTestService(t, deps{})

	// MaxMessageLength runes of two bytes each: over the cap in bytes,
	// exactly at it in runes.
	if _, err := service.Handle(context.Background(), strings.Repeat("é", MaxMessageLength), ""); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
}

func TestHandleOversizedMessageTruncatesAuditOnRuneBoundary(t *testing.T) {
	recorder := &captureRecorder{}
	service := newTestService(t, deps{recorder: recorder})

	_, err := service.Handle(context.Background(), strings.Repeat("é", MaxMessageLength+1), "")
	if got := categoryOf(t, err); got != CategoryValidation {
		t.Fatalf("category = %q", got)
	}
	record := recorder.records[0]
	if !utf8.ValidString(record.UserInput) {
		t.Fatalf("audit user input is not valid UTF-8: %q", record.UserInput)
	}
	if utf8.RuneCountInString(record.UserInput) != MaxMessageLength {
		t.Fatalf("audit user input has %d runes", utf8.RuneCountInString(record.UserInput))
	}
}

func TestHandleSchemaFailureAuditsEmptyQueryText(t *testing.T) {
	recorder := &captureRecorder{}
	service := newTestService(t, deps{
		schemas:  &fakeSchemas{err: &schema.DiscoveryError{Err: errors.New("connection refused")}},
		recorder: recorder,
	})

	_, err := service.Handle(context.Background(), "who are our users?", "")
	if got := categoryOf(t, err); got != CategorySchemaDiscovery {
		t.Fatalf("category = %q", got)
	}
	if len(recorder.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(recorder.records))
	}
	record := recorder.records[0]
	if record.Status != audit.StatusError || record.QueryText != "" {
		t.Fatalf("record = %+v", record)
	}
}

func TestHandleGenerationFailure(t *testing.T) {
	service := newTestService(t, deps{
		generator: &fakeGenerator{err: &nl2sql.GenerationError{Err: errors.New("no usable statement")}},
	})

	_, err := service.Handle(context.Background(), "who are our users?", "")
	if got := categoryOf(t, err); got != CategoryGeneration {
		t.Fatalf("category = %q", got)
	}
}

func TestHandleRejectedSQLSurfacesStatementInMessage(t *testing.T) {
	recorder := &captureRecorder{}
	service := newTestService(t, deps{
		generator: &fakeGenerator{sql: "DROP TABLE users"},
		recorder:  recorder,
	})

	_, err := service.Handle(context.Background(), "drop the users table", "")
	if got := categoryOf(t, err); got != CategoryValidation {
		t.Fatalf("category = %q", got)
	}
	if !strings.Contains(err.Error(), "DROP TABLE users") {
		t.Fatalf("error message %q does not include the rejected statement", err.Error())
	}
	record := recorder.records[0]
	if record.Status != audit.StatusError || record.QueryText != "DROP TABLE users" {
		t.Fatalf("record = %+v", record)
	}
}

func TestHandleExecutorFailureCategories(t *testing.T) {
	cases := []struct {
		err  error
		want Category
	}{
		{fmt.Errorf("%w: connection refused", executor.ErrUnreachable), CategoryExecutorUnreachable},
		{fmt.Errorf("%w: deadline exceeded", executor.ErrTimeout), CategoryExecutorTimeout},
		{fmt.Errorf("%w: results field is not a list", executor.ErrProtocol), CategoryExecutorProtocol},
		{errors.New("panic in transit"), CategoryInternal},
	}
	for _, tc := range cases {
		service := newTestService(t, deps{executor: &fakeExecutor{err: tc.err}})
		_, err := service.Handle(context.Background(), "who are our users?", "")
		if got := categoryOf(t, err); got != tc.want {
			t.Fatalf("executor error %v: category = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestHandleAsynchronousAcceptance(t *testing.T) {
	recorder := &captureRecorder{}
	summarizer := &fakeSummarizer{answer: "should not be called"}
	service := newTestService(t, deps{
		executor:   &fakeExecutor{result: executor.Result{Asynchronous: true, Rows: []map[string]any{}}},
		recorder:   recorder,
		summarizer: summarizer,
	})

	exchange, err := service.Handle(context.Background(), "run the big report", "conv-9")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !exchange.Asynchronous {
		t.Fatal("Asynchronous flag not set")
	}
	if len(exchange.Data) != 0 {
		t.Fatalf("Data = %v, want empty", exchange.Data)
	}
	if summarizer.rows != nil {
		t.Fatal("summarizer was invoked for an asynchronous acceptance")
	}
	if len(recorder.records) != 1 || recorder.records[0].Status != audit.StatusAsync {
		t.Fatalf("records = %+v", recorder.records)
	}
}

func TestHandleZeroRowsIsSuccess(t *testing.T) {
	recorder := &captureRecorder{}
	service := newTestService(t, deps{
		executor: &fakeExecutor{result: executor.Result{Rows: []map[string]any{}, RowCount: 0}},
		recorder: recorder,
	})

	if _, err := service.Handle(context.Background(), "any users named zebra?", ""); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	record := recorder.records[0]
	if record.Status != audit.StatusSuccess || record.RowCount != 0 {
		t.Fatalf("record = %+v", record)
	}
}

func TestHandleSummarizerSeesNormalizedRows(t *testing.T) {
	summarizer := &fakeSummarizer{answer: "ok"}
	service := newTestService(t, deps{
		executor: &fakeExecutor{result: executor.Result{
			Rows:     []map[string]any{{"created_at": "2023-10-15T14:30:22.000Z"}},
			RowCount: 1,
		}},
		summarizer: summarizer,
	})

	if _, err := service.Handle(context.Background(), "when was the user created?", ""); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if summarizer.rows[0]["created_at"] != "2023-10-15 14:30:22" {
		t.Fatalf("summarizer rows = %v", summarizer.rows)
	}
}

func TestHandleSummarizerFailureAuditsError(t *testing.T) {
	recorder := &captureRecorder{}
	service := newTestService(t, deps{
		summarizer: &fakeSummarizer{err: errors.New("oracle produced an empty summary")},
		recorder:   recorder,
	})

	_, err := service.Handle(context.Background(), "who are our users?", "")
	if got := categoryOf(t, err); got != CategoryGeneration {
		t.Fatalf("category = %q", got)
	}
	record := recorder.records[0]
	if record.Status != audit.StatusError || record.RowCount != 1 {
		t.Fatalf("record = %+v", record)
	}
}

func TestHandleAuditFailureIsSwallowed(t *testing.T) {
	service := newTestService(t, deps{recorder: &captureRecorder{err: errors.New("audit table missing")}})

	if _, err := service.Handle(context.Background(), "who are our users?", ""); err != nil {
		t.Fatalf("Handle() error = %v, audit failures must not fail the request", err)
	}
}

func TestHandleSavesArtifactAndReturnsFilename(t *testing.T) {
	store := &fakeArtifactStore{}
	service := newTestService(t, deps{store: store})

	exchange, err := service.Handle(context.Background(), "who are our users?", "c1")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if exchange.Filename != "query_result_20231015T143022_c1.json" {
		t.Fatalf("Filename = %q", exchange.Filename)
	}
	if store.saved == nil || store.saved.Question != "who are our users?" {
		t.Fatalf("saved artifact = %+v", store.saved)
	}
}

func TestHandleArtifactFailureDoesNotFailRequest(t *testing.T) {
	service := newTestService(t, deps{store: &fakeArtifactStore{err: errors.New("bucket missing")}})

	exchange, err := service.Handle(context.Background(), "who are our users?", "c1")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if exchange.Filename != "" {
		t.Fatalf("Filename = %q, want empty after a failed save", exchange.Filename)
	}
}
