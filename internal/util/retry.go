package util

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff retries an operation with exponential delays: Base, 2*Base, 4*Base, ... capped at Max.
type Backoff struct {
	Retries int
	Base    time.Duration
	Max     time.Duration
}

// DefaultBackoff mirrors the scraper's original policy: 3 retries starting at one second.
var DefaultBackoff = Backoff{Retries: 3, Base: time.Second, Max: 30 * time.Second}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns it unwrapped immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Delay returns the wait before the retry following attempt (0-indexed).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base << attempt
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}
	return d
}

// Do calls fn up to Retries+1 times. fn receives the current attempt number (0-indexed)
// and should return nil on success. If the context is cancelled, Do returns the context error.
func (b Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= b.Retries; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt == b.Retries {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Delay(attempt)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", b.Retries, lastErr)
}

// RetryWithBackoff calls fn with DefaultBackoff's schedule and maxRetries retries.
func RetryWithBackoff(ctx context.Context, maxRetries int, fn func(attempt int) error) error {
	b := DefaultBackoff
	b.Retries = maxRetries
	return b.Do(ctx, fn)
}
