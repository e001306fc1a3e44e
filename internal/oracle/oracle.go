// Package oracle provides access to the reasoning provider: the external
// text-generation service that makes planning, coding, validation, and
// summarization judgments.
//
// The package has two halves. Client implements the Oracle interface over
// a langchaingo model with rate limiting, retries, and a per-call timeout.
// Decode extracts a JSON-shaped answer out of free-form model output and
// unmarshals it into a typed record, so callers never touch raw prose.
package oracle

import (
	"context"
	"fmt"
)

// Oracle is a stateless request/response function against the reasoning
// provider. Implementations may return malformed output; callers are
// responsible for parsing and for their own fallback policy.
type Oracle interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// ParseError indicates the provider's answer does not parse as the
// expected structure. It is a protocol-level defect, distinct from a
// substantively wrong answer.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed oracle answer: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
