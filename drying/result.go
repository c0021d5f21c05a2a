package drying

import (
	"fmt"
	"image"
	"time"

	llmimage "github.com/BaSui01/dryingassistant/llm/image"
	"github.com/BaSui01/dryingassistant/types"
)

// Status is the terminal state of a drying call.
type Status string

const (
	StatusSucceeded       Status = "succeeded"
	StatusExhausted       Status = "exhausted"
	StatusFallbackApplied Status = "fallback_applied"
	StatusFallbackFailed  Status = "fallback_failed"
	// StatusAborted marks a call stopped by cancellation or a non-retryable
	// error. The error is returned alongside the result.
	StatusAborted Status = "aborted"
)

// AttemptRecord describes one remote attempt. Delay is the backoff applied
// after it (zero after the final attempt or a success).
type AttemptRecord struct {
	Index       int                  `json:"index"`
	Variant     string               `json:"variant"`
	PromptIndex int                  `json:"prompt_index"`
	Outcome     llmimage.OutcomeKind `json:"outcome"`
	StatusCode  int                  `json:"status_code,omitempty"`
	Message     string               `json:"message,omitempty"`
	Latency     time.Duration        `json:"latency"`
	Delay       time.Duration        `json:"delay"`
}

// DryResult is the outcome of Dry or DryWithFallback.
type DryResult struct {
	Status Status `json:"status"`
	// Image is the remote result for StatusSucceeded and the local effect
	// for StatusFallbackApplied; nil otherwise.
	Image image.Image `json:"-"`
	// Variant is the engine that produced Image on success.
	Variant  string          `json:"variant,omitempty"`
	Attempts []AttemptRecord `json:"attempts"`
	Duration time.Duration   `json:"duration"`
	// FallbackErr is set for StatusFallbackFailed.
	FallbackErr error `json:"-"`
}

// Succeeded reports whether the result carries an image.
func (r *DryResult) Succeeded() bool {
	return r != nil && r.Image != nil &&
		(r.Status == StatusSucceeded || r.Status == StatusFallbackApplied)
}

// Err converts a failed result into a *types.Error. It returns nil when the
// result carries an image.
func (r *DryResult) Err() error {
	if r == nil {
		return types.NewError(types.ErrInternalError, "nil drying result")
	}
	switch r.Status {
	case StatusSucceeded, StatusFallbackApplied:
		return nil
	case StatusFallbackFailed:
		return types.NewError(types.ErrExhausted, "remote drying exhausted and fallback failed").WithCause(r.FallbackErr)
	case StatusExhausted:
		msg := fmt.Sprintf("remote drying failed after %d attempts", len(r.Attempts))
		if n := len(r.Attempts); n > 0 {
			last := r.Attempts[n-1]
			msg = fmt.Sprintf("%s (last: %s on %s)", msg, last.Outcome, last.Variant)
		}
		return types.NewError(types.ErrExhausted, msg).WithRetryable(true)
	default:
		return types.NewError(types.ErrInternalError, fmt.Sprintf("drying aborted with status %q", r.Status))
	}
}

// TotalBackoff sums the delays applied between attempts.
func (r *DryResult) TotalBackoff() time.Duration {
	var total time.Duration
	for _, a := range r.Attempts {
		total += a.Delay
	}
	return total
}
