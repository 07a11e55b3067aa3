package extractor

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyResponse is returned when the service answers without content.
	ErrEmptyResponse = errors.New("empty response received from extraction service")
	// ErrMalformedResponse wraps responses that are not a single JSON object.
	ErrMalformedResponse = errors.New("malformed extraction response")
)

// Completion is one answer of the extraction service.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider sends the instructions and returns the raw model output. Providers
// wrap quota errors in *RateLimitError so callers never inspect messages.
type Provider interface {
	Complete(ctx context.Context, system, user string) (Completion, error)
}

// RateLimitError marks a transient quota rejection that is worth retrying.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err, or any error it wraps, is a rate limit.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
