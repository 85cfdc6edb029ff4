package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	fullListingMaxRows = 10
	sampleRows         = 5
)

const generationSystemPrompt = "You convert natural language questions into a single read-only PostgreSQL SELECT statement. " +
	"Rules:\n" +
	"- Generate SELECT statements only. Never produce INSERT, UPDATE, DELETE, DROP, ALTER, CREATE, TRUNCATE, GRANT or any other mutating statement.\n" +
	"- Add LIMIT 100 unless the user explicitly asks for a specific number of rows.\n" +
	"- Format timestamp and date columns as 'YYYY-MM-DD HH:MM:SS' text.\n" +
	"- Prefer explicit WHERE filters and correct JOINs over cartesian products.\n" +
	"- Keep the statement as small as the question allows.\n" +
	"- Return ONLY SQL. No markdown, no explanation."

const summarizationSystemPrompt = "You explain SQL query results to a non-technical user. " +
	"Answer conversationally in plain language. " +
	"If no rows matched, say so explicitly. " +
	"Surface the most salient figures from the data. " +
	"Do not include the SQL statement unless the user asked for it."

// GenerationPrompt builds the deterministic instruction pair for SQL
// generation from the question and the rendered schema description.
func GenerationPrompt(question, schemaDescription string) Prompt {
	return Prompt{
		System: generationSystemPrompt,
		User: fmt.Sprintf("Database schema:\n%s\n\nQuestion:\n%s",
			strings.TrimSpace(schemaDescription), strings.TrimSpace(question)),
	}
}

// SummarizationPrompt builds the instruction pair for turning result rows
// into the final natural-language answer.
func SummarizationPrompt(question, sqlText string, rows []map[string]any) Prompt {
	return Prompt{
		System: summarizationSystemPrompt,
		User: fmt.Sprintf("Question:\n%s\n\nSQL that was executed:\n%s\n\nResults:\n%s",
			strings.TrimSpace(question), strings.TrimSpace(sqlText), FormatResults(rows)),
	}
}

// FormatResults renders rows for the summarization prompt: a full listing
// for small result sets, otherwise a count plus a short sample.
func FormatResults(rows []map[string]any) string {
	if len(rows) == 0 {
		return "No rows matched the query."
	}
	if len(rows) <= fullListingMaxRows {
		return marshalRows(rows)
	}
	return fmt.Sprintf("%d rows returned. Sample of the first %d rows:\n%s",
		len(rows), sampleRows, marshalRows(rows[:sampleRows]))
}

func marshalRows(rows []map[string]any) string {
	encoded, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", rows)
	}
	return string(encoded)
}
