package nl2sql

import (
	"regexp"
	"strings"
)

var (
	sqlFenceRe = regexp.MustCompile("(?is)```sql\\s*\\n?(.*?)```")
	anyFenceRe = regexp.MustCompile("(?s)```\\w*\\s*\\n?(.*?)```")
)

// Oracles rarely answer with bare SQL even when told to. Lead-in words
// that mark a line as prose rather than part of the statement.
var proseLeadIns = []string{"here", "this", "the", "i", "note"}

// ExtractSQL pulls a single statement out of free-form oracle output:
// a fenced sql block wins, then any fenced block, then the raw text with
// prose lead-in lines stripped.
func ExtractSQL(raw string) string {
	if match := sqlFenceRe.FindStringSubmatch(raw); match != nil {
		return strings.TrimSpace(match[1])
	}
	if match := anyFenceRe.FindStringSubmatch(raw); match != nil {
		return strings.TrimSpace(match[1])
	}

	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if isProseLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isProseLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	first := strings.ToLower(trimmed)
	if idx := strings.IndexAny(first, " \t'.,:;!?"); idx >= 0 {
		first = first[:idx]
	}
	for _, leadIn := range proseLeadIns {
		if first == leadIn {
			return true
		}
	}
	return false
}
