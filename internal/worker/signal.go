package worker

import (
	"context"

	"bastion/internal/gateway/broker"
	"bastion/internal/profile"
)

// Signal is one entry suggestion from a provider.
type Signal struct {
	Direction  broker.Direction
	Confidence float64 // 0..1 before spread penalties
	Reason     string
}

// SignalProvider produces entry signals for one instrument. Providers see
// every sampled quote via Observe and answer Evaluate once per cycle.
type SignalProvider interface {
	Name() string
	Observe(instrument string, price float64)
	Evaluate(ctx context.Context, instrument string, strat profile.Strategy) (Signal, bool, error)
}
