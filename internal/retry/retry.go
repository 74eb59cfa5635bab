// Package retry implements the exponential-backoff retry policy shared by
// the market data source and the batch orchestrator: transient failures
// are retried with a doubling delay, permanent failures are not retried.
package retry

import (
	"context"
	"errors"
	"time"
)

// Classification distinguishes retryable from terminal errors.
type Classification int

const (
	// Permanent errors are never retried: validation, missing schema,
	// programming errors, auth/4xx responses.
	Permanent Classification = iota
	// Transient errors are retried with backoff: timeouts, 5xx,
	// deadlocks, rate limits.
	Transient
)

// Classifier decides whether an error is retryable. Callers that don't
// have a domain-specific classifier can use ClassifyDefault.
type Classifier func(error) Classification

// transientError lets call sites mark an error transient without a
// bespoke Classifier.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so ClassifyDefault treats it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// ClassifyDefault treats errors wrapped with Transient as retryable and
// everything else as permanent.
func ClassifyDefault(err error) Classification {
	var t *transientError
	if errors.As(err, &t) {
		return Transient
	}
	return Permanent
}

// Policy configures exponential backoff.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Classify   Classifier
}

// Result carries the outcome metadata of a Do call: the retry count (which
// the orchestrator persists on a BatchJob row) and the total backoff spent.
type Result struct {
	RetryCount  int
	BackoffTime time.Duration
	Err         error
}

// Do runs fn, retrying on Transient-classified errors with delays of
// BaseDelay * 2^(attempt-1), up to MaxRetries additional attempts. It
// returns as soon as fn succeeds or a Permanent error (or attempts are
// exhausted) is encountered.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) Result {
	classify := p.Classify
	if classify == nil {
		classify = ClassifyDefault
	}

	var res Result
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return res
		}

		res.Err = err
		if classify(err) != Transient || attempt >= p.MaxRetries {
			return res
		}

		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(delay):
		}

		res.RetryCount++
		res.BackoffTime += delay
		delay *= 2
	}
}
