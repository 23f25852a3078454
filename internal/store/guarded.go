package store

import (
	"context"
	"time"

	"bastion/internal/pkg/circuit"
)

// Guarded routes every store call through the storage breaker so a locked
// or corrupted database degrades persistence instead of halting the trading
// loops.
type Guarded struct {
	inner Store
	cb    *circuit.CircuitBreaker
}

func NewGuarded(inner Store, breakers *circuit.Registry) *Guarded {
	return &Guarded{inner: inner, cb: breakers.Get(circuit.ResourceStorage)}
}

func (g *Guarded) SaveTrade(ctx context.Context, rec TradeRecord) error {
	return g.cb.Execute(func() error { return g.inner.SaveTrade(ctx, rec) })
}

func (g *Guarded) MarkTradeClosed(ctx context.Context, ticket int64, profit float64, closedAt time.Time) error {
	return g.cb.Execute(func() error { return g.inner.MarkTradeClosed(ctx, ticket, profit, closedAt) })
}

func (g *Guarded) RecordAdjustment(ctx context.Context, evt AdjustmentEvent) error {
	return g.cb.Execute(func() error { return g.inner.RecordAdjustment(ctx, evt) })
}

func (g *Guarded) DailyPnL(ctx context.Context, day time.Time) (float64, error) {
	var pnl float64
	err := g.cb.Execute(func() error {
		var err error
		pnl, err = g.inner.DailyPnL(ctx, day)
		return err
	})
	return pnl, err
}

func (g *Guarded) StrategyStats(ctx context.Context, strategy string, windowDays int) (StrategyStats, error) {
	var stats StrategyStats
	err := g.cb.Execute(func() error {
		var err error
		stats, err = g.inner.StrategyStats(ctx, strategy, windowDays)
		return err
	})
	return stats, err
}

func (g *Guarded) Close() error { return g.inner.Close() }
