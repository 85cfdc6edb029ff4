package nl2sql

import (
	"context"
	"fmt"
	"strings"
)

type Summarizer struct {
	oracle Completer
}

func NewSummarizer(oracle Completer) *Summarizer {
	return &Summarizer{oracle: oracle}
}

func (s *Summarizer) Summarize(ctx context.Context, question, sqlText string, rows []map[string]any) (string, error) {
	answer, err := s.oracle.Complete(ctx, SummarizationPrompt(question, sqlText, rows))
	if err != nil {
		return "", fmt.Errorf("summarize results: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("oracle produced an empty summary")
	}
	return answer, nil
}
