package ai

import (
	"context"
	"errors"
	"time"
)

// RetryableError marks an error as transient.
type RetryableError struct{ Err error }

// Retryable wraps err as a RetryableError. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Error returns the error message of the wrapped error.
func (e *RetryableError) Error() string { return e.Err.Error() }

// Unwrap returns the wrapped error.
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is wrapped with RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// RetryPolicy is an exponential backoff schedule.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration // first delay, doubled after each attempt
}

// DefaultRetryPolicy retries three times starting at one second.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: time.Second}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := max(p.Attempts, 1)
	delay := p.Delay
	var lastErr error

	for i := 0; i < attempts; i++ {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !IsRetryable(err) {
			return err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}

// RetryWithBackoff runs fn under DefaultRetryPolicy.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return DefaultRetryPolicy.Do(ctx, fn)
}

type retrying struct {
	next   Generator
	policy RetryPolicy
}

// WithRetry retries g's retryable failures under policy.
func WithRetry(g Generator, policy RetryPolicy) Generator {
	return &retrying{next: g, policy: policy}
}

func (r *retrying) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (*Response, error) {
	var resp *Response
	err := r.policy.Do(ctx, func() error {
		var err error
		resp, err = r.next.Generate(ctx, prompt, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
