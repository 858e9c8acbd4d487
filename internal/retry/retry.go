// Package retry provides bounded retries with exponential backoff.
//
// The retry behavior is an explicit Policy value passed to Do, so every
// caller states its limits instead of relying on hidden defaults.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds a retried operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `koanf:"max_attempts"`

	// BackoffBase is the wait before the second attempt. It doubles on
	// each subsequent attempt.
	BackoffBase time.Duration `koanf:"backoff_base"`

	// BackoffCap is the maximum wait between attempts.
	BackoffCap time.Duration `koanf:"backoff_cap"`
}

// DefaultPolicy returns the policy used when none is configured:
// 3 attempts, 1s initial backoff, 30s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffCap:  30 * time.Second,
	}
}

// ApplyDefaults sets default values for unset fields.
func (p *Policy) ApplyDefaults() {
	def := DefaultPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BackoffBase == 0 {
		p.BackoffBase = def.BackoffBase
	}
	if p.BackoffCap == 0 {
		p.BackoffCap = def.BackoffCap
	}
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }

func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do stops immediately instead of retrying.
// Use it for caller errors (invalid input, auth failures) where another
// attempt cannot succeed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs op up to policy.MaxAttempts times, waiting between attempts
// with exponential backoff capped at policy.BackoffCap. It returns nil
// on the first success, the unwrapped cause when op returns a Permanent
// error, and the last error once attempts are exhausted. Context
// cancellation aborts the wait and returns the context error joined
// with the last attempt's error.
func Do(ctx context.Context, policy Policy, op func() error) error {
	policy.ApplyDefaults()

	backoff := policy.BackoffBase
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled after attempt %d: %w", attempt, errors.Join(ctx.Err(), lastErr))
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > policy.BackoffCap {
			backoff = policy.BackoffCap
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", policy.MaxAttempts, lastErr)
}
