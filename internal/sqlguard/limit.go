package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

const DefaultRowLimit = 100

var limitClauseRe = regexp.MustCompile(`(?i)\blimit\s+\d+`)

// EnsureLimit appends a LIMIT clause unless one is already present. An
// existing limit is never rewritten, even when it exceeds n.
func EnsureLimit(sqlText string, n int) string {
	if n <= 0 {
		n = DefaultRowLimit
	}
	if limitClauseRe.MatchString(sqlText) {
		return sqlText
	}
	trimmed := strings.TrimSpace(sqlText)
	if strings.HasSuffix(trimmed, ";") {
		return fmt.Sprintf("%s LIMIT %d;", strings.TrimSpace(strings.TrimSuffix(trimmed, ";")), n)
	}
	return fmt.Sprintf("%s LIMIT %d", trimmed, n)
}
