// Package artifacts archives the JSON record of each successful
// synchronous query. Archiving is opportunistic everywhere: a write
// failure is logged by the caller and never fails the request.
package artifacts

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Artifact is the persisted record of one answered question.
type Artifact struct {
	Timestamp time.Time        `json:"timestamp"`
	Query     string           `json:"query"`
	Results   []map[string]any `json:"results"`
	Question  string           `json:"question"`
	Answer    string           `json:"answer"`
}

type Store interface {
	// Save persists the artifact and returns the name it was stored under.
	Save(ctx context.Context, artifact Artifact, requestID string) (string, error)
}

// FileName derives the artifact name from the timestamp and the optional
// request identifier.
func FileName(at time.Time, requestID string) string {
	stamp := at.UTC().Format("20060102T150405")
	requestID = sanitizeID(requestID)
	if requestID == "" {
		return fmt.Sprintf("query_result_%s.json", stamp)
	}
	return fmt.Sprintf("query_result_%s_%s.json", stamp, requestID)
}

func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
