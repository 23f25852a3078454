// Package retry wraps one fallible call with bounded retries and exponential
// backoff. It absorbs short blips within a single operation; sustained
// unavailability across operations is the circuit breaker's job.
package retry

import (
	"context"
	"time"

	"bastion/internal/logger"
	"bastion/internal/pkg/circuit"
)

// Policy describes one retry schedule.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64

	// Retryable reports whether err is worth another attempt. A nil
	// predicate retries everything.
	Retryable func(error) bool
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = 2
	}
	return p
}

// Do runs fn up to MaxAttempts times. A non-retryable error or the final
// attempt's failure propagates immediately; context cancellation interrupts
// the backoff sleep.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	pol := p.withDefaults()
	delay := pol.InitialDelay

	var err error
	for attempt := 1; attempt <= pol.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if pol.Retryable != nil && !pol.Retryable(err) {
			return err
		}
		if attempt == pol.MaxAttempts {
			return err
		}
		logger.Debugf("retry %s: attempt %d/%d failed, next in %s: %v", op, attempt, pol.MaxAttempts, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * pol.BackoffMultiplier)
	}
	return err
}

// Protected composes a breaker with a retry schedule: availability is
// checked first, fn runs under retry, and the aggregate outcome is recorded
// on the breaker exactly once.
func Protected(ctx context.Context, cb *circuit.CircuitBreaker, pol Policy, op string, fn func() error) error {
	if !cb.Allow() {
		return circuit.ErrOpen
	}
	err := pol.Do(ctx, op, fn)
	if err != nil {
		cb.RecordFailure(err)
		return err
	}
	cb.RecordSuccess()
	return nil
}
