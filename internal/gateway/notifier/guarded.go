package notifier

import (
	"context"
	"time"

	"bastion/internal/logger"
	"bastion/internal/pkg/circuit"
	"bastion/internal/pkg/retry"
)

// Guarded wraps a TextNotifier with the notifier circuit breaker so a dead
// notification channel can never block or slow trading. Failures are logged
// and dropped; the breaker silences a sustained outage.
type Guarded struct {
	inner  TextNotifier
	cb     *circuit.CircuitBreaker
	policy retry.Policy
}

func NewGuarded(inner TextNotifier, breakers *circuit.Registry) *Guarded {
	return &Guarded{
		inner: inner,
		cb:    breakers.Get(circuit.ResourceNotifier),
		policy: retry.Policy{
			MaxAttempts:       3,
			InitialDelay:      time.Second,
			BackoffMultiplier: 2,
		},
	}
}

func (g *Guarded) SendText(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := retry.Protected(ctx, g.cb, g.policy, "notify", func() error {
		return g.inner.SendText(text)
	})
	if err != nil && err != circuit.ErrOpen {
		logger.Warnf("notifier: send failed: %v", err)
	}
	return err
}

// SendAsync fires the message from a goroutine; callers never wait on the
// notification path.
func (g *Guarded) SendAsync(text string) {
	go func() { _ = g.SendText(text) }()
}
