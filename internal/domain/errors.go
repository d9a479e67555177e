package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrIndexNotReady signals that no valid index artifact is loaded.
	ErrIndexNotReady = errors.New("index not ready")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrOrdinalOutOfRange signals a catalog lookup outside the indexed range.
	ErrOrdinalOutOfRange = errors.New("ordinal out of range")
	// ErrRateLimited signals an exhausted rate-limit retry budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals a non-rate-limit embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrNoExtractableJSON signals that no JSON candidate parsed from model output.
	ErrNoExtractableJSON = errors.New("no extractable JSON in response")
	// ErrEmptyInput signals an empty embedding input string.
	ErrEmptyInput = errors.New("empty embedding input")
	// ErrBuildInProgress signals a rejected concurrent index build.
	ErrBuildInProgress = errors.New("index build already in progress")
)

// RateLimitError wraps ErrRateLimited with the provider-supplied wait
// hint. RetryAfter is zero when the provider gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// NewRateLimit creates a rate-limit error with an optional wait hint.
func NewRateLimit(retryAfter time.Duration) error {
	return &RateLimitError{RetryAfter: retryAfter}
}
