// Package sqlguard rejects unsafe or malformed statements before they
// reach the remote executor. It is deliberately blunt: denylist and
// structural checks, no SQL parsing.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

const MaxStatementLength = 2000

type Reason string

const (
	ReasonDangerousOperation Reason = "dangerous_operation"
	ReasonNotReadOnly        Reason = "not_read_only"
	ReasonUnbalancedParens   Reason = "unbalanced_parens"
	ReasonMultipleStatements Reason = "multiple_statements"
	ReasonCommentInjection   Reason = "comment_injection"
	ReasonTooLong            Reason = "too_long"
)

type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sql rejected (%s): %s", e.Reason, e.Detail)
}

// Mutating and administrative keywords, matched on word boundaries
// anywhere in the statement.
var denylistKeywordRe = regexp.MustCompile(`(?i)\b(drop|delete|truncate|insert|update|alter|create|grant|revoke|rename|shutdown)\b`)

// Substring patterns for bulk-load, file-output, schema-table access and
// timing primitives that word boundaries alone would miss.
var denylistPatterns = []string{
	"load data",
	"load_file",
	"into outfile",
	"into dumpfile",
	"information_schema",
	"sleep(",
	"benchmark(",
}

// Validate applies every safety check in a fixed order; the first failure
// wins. Multiple-statement detection runs before the keyword denylist so
// that piggybacked statements are reported as injection attempts rather
// than by whichever keyword they smuggle.
func Validate(sqlText string) error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return &ValidationError{Reason: ReasonNotReadOnly, Detail: "statement is empty"}
	}
	if len(sqlText) > MaxStatementLength {
		return &ValidationError{
			Reason: ReasonTooLong,
			Detail: fmt.Sprintf("statement is %d characters, maximum is %d", len(sqlText), MaxStatementLength),
		}
	}
	if body := strings.TrimSuffix(trimmed, ";"); strings.Contains(body, ";") {
		return &ValidationError{Reason: ReasonMultipleStatements, Detail: "semicolon permitted only as a single trailing terminator"}
	}
	if strings.Contains(sqlText, "--") || strings.Contains(sqlText, "/*") {
		return &ValidationError{Reason: ReasonCommentInjection, Detail: "comments are not permitted"}
	}
	// The denylist deliberately outranks the read-only check: a bare
	// UPDATE or DELETE reports as dangerous_operation, never as merely
	// not_read_only. Reordering these changes the reason callers see.
	if keyword := matchDenylist(sqlText); keyword != "" {
		return &ValidationError{Reason: ReasonDangerousOperation, Detail: "statement contains forbidden keyword " + strings.ToUpper(keyword)}
	}
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return &ValidationError{Reason: ReasonNotReadOnly, Detail: "only SELECT statements are permitted"}
	}
	if strings.Count(sqlText, "(") != strings.Count(sqlText, ")") {
		return &ValidationError{Reason: ReasonUnbalancedParens, Detail: "unbalanced parentheses"}
	}
	return nil
}

func matchDenylist(sqlText string) string {
	if match := denylistKeywordRe.FindString(sqlText); match != "" {
		return match
	}
	lowered := strings.ToLower(sqlText)
	for _, pattern := range denylistPatterns {
		if strings.Contains(lowered, pattern) {
			return strings.TrimSuffix(pattern, "(")
		}
	}
	return ""
}
