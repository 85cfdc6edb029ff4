package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/observability"
)

type Generation struct {
	SQL         string
	Explanation string
}

// GenerationError covers both oracle failures and output from which no
// statement could be extracted.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "sql generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

type Generator struct {
	oracle Completer
}

func NewGenerator(oracle Completer) *Generator {
	return &Generator{oracle: oracle}
}

// Generate makes one oracle call with the generation prompt and extracts
// a single statement from whatever came back.
func (g *Generator) Generate(ctx context.Context, question, schemaDescription string) (Generation, error) {
	raw, err := g.oracle.Complete(ctx, GenerationPrompt(question, schemaDescription))
	if err != nil {
		observability.IncrementGenerationFailure()
		return Generation{}, &GenerationError{Err: err}
	}

	sqlText := ExtractSQL(raw)
	if sqlText == "" {
		observability.IncrementGenerationFailure()
		return Generation{}, &GenerationError{Err: fmt.Errorf("oracle produced no usable statement")}
	}
	return Generation{SQL: sqlText, Explanation: explanationFrom(raw, sqlText)}, nil
}

// explanationFrom keeps the prose surrounding a fenced statement, when any.
func explanationFrom(raw, sqlText string) string {
	remainder := anyFenceRe.ReplaceAllString(raw, "")
	remainder = strings.TrimSpace(remainder)
	if remainder == "" || remainder == sqlText {
		return ""
	}
	return remainder
}
