package broker

import (
	"context"
	"time"

	"bastion/internal/pkg/circuit"
	"bastion/internal/pkg/retry"
)

// Guarded decorates a Connector so every call passes through the shared
// circuit breakers and a retry schedule. Read traffic rides the connection
// breaker; order placement, modification and closing ride the tighter trade
// breaker and get at most one retry, since blind retries on trading are
// riskier than on reads.
type Guarded struct {
	inner Connector
	conn  *circuit.CircuitBreaker
	trade *circuit.CircuitBreaker

	readPolicy  retry.Policy
	tradePolicy retry.Policy
}

func NewGuarded(inner Connector, breakers *circuit.Registry) *Guarded {
	return &Guarded{
		inner: inner,
		conn:  breakers.Get(circuit.ResourceConnection),
		trade: breakers.Get(circuit.ResourceTrade),
		readPolicy: retry.Policy{
			MaxAttempts:       3,
			InitialDelay:      500 * time.Millisecond,
			BackoffMultiplier: 2,
			Retryable:         IsTransient,
		},
		tradePolicy: retry.Policy{
			MaxAttempts:       2,
			InitialDelay:      time.Second,
			BackoffMultiplier: 2,
			Retryable:         IsTransient,
		},
	}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) Connect(ctx context.Context) error {
	return retry.Protected(ctx, g.conn, g.readPolicy, "connect", func() error {
		return g.inner.Connect(ctx)
	})
}

func (g *Guarded) AccountSnapshot(ctx context.Context) (AccountSnapshot, error) {
	var snap AccountSnapshot
	err := retry.Protected(ctx, g.conn, g.readPolicy, "account_snapshot", func() error {
		var err error
		snap, err = g.inner.AccountSnapshot(ctx)
		return err
	})
	return snap, err
}

func (g *Guarded) OpenPositions(ctx context.Context, instrument string) ([]Position, error) {
	var positions []Position
	err := retry.Protected(ctx, g.conn, g.readPolicy, "open_positions", func() error {
		var err error
		positions, err = g.inner.OpenPositions(ctx, instrument)
		return err
	})
	return positions, err
}

func (g *Guarded) SymbolSnapshot(ctx context.Context, instrument string) (SymbolSnapshot, error) {
	var snap SymbolSnapshot
	err := retry.Protected(ctx, g.conn, g.readPolicy, "symbol_snapshot", func() error {
		var err error
		snap, err = g.inner.SymbolSnapshot(ctx, instrument)
		return err
	})
	return snap, err
}

func (g *Guarded) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	var res OrderResult
	err := retry.Protected(ctx, g.trade, g.tradePolicy, "place_order", func() error {
		var err error
		res, err = g.inner.PlaceOrder(ctx, req)
		return err
	})
	return res, err
}

func (g *Guarded) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	return retry.Protected(ctx, g.trade, g.tradePolicy, "modify_position", func() error {
		return g.inner.ModifyPosition(ctx, ticket, stopLoss, takeProfit)
	})
}

func (g *Guarded) ClosePosition(ctx context.Context, ticket int64, volume float64) error {
	return retry.Protected(ctx, g.trade, g.tradePolicy, "close_position", func() error {
		return g.inner.ClosePosition(ctx, ticket, volume)
	})
}

func (g *Guarded) HistoricalDeals(ctx context.Context, from, to time.Time, position int64) ([]Deal, error) {
	var deals []Deal
	err := retry.Protected(ctx, g.conn, g.readPolicy, "historical_deals", func() error {
		var err error
		deals, err = g.inner.HistoricalDeals(ctx, from, to, position)
		return err
	})
	return deals, err
}
