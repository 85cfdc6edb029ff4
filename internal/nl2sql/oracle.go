// Package nl2sql turns user questions into SQL through an external
// text-completion oracle, and turns result rows back into prose.
package nl2sql

import "context"

type Prompt struct {
	System string
	User   string
}

// Completer is the capability interface over the oracle. Implementations
// make exactly one completion call per invocation; the pipeline never
// retries on their behalf.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}
