// Package store defines the persistence contract for trade records,
// adjustment events and realized statistics.
package store

import (
	"context"
	"time"
)

// TradeRecord is one order confirmed by the terminal.
type TradeRecord struct {
	ID         string // uuid assigned at save
	Ticket     int64
	Instrument string
	Strategy   string
	Direction  string
	Volume     float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	OpenedAt   time.Time
	ClosedAt   *time.Time
	Profit     float64
	Status     string // "open" | "closed"
	Details    map[string]any
}

// AdjustmentEvent is one applied (or attempted) position adjustment.
type AdjustmentEvent struct {
	Ticket      int64
	Instrument  string
	Strategy    string
	Policy      string
	Action      string
	OldStop     float64
	NewStop     float64
	CloseVolume float64
	Reason      string
	At          time.Time
}

// StrategyStats aggregates realized results for one strategy.
type StrategyStats struct {
	Strategy   string  `json:"strategy"`
	WindowDays int     `json:"window_days"`
	Trades     int     `json:"trades"`
	Wins       int     `json:"wins"`
	NetProfit  float64 `json:"net_profit"`
}

// Store is implemented by the gorm-backed SQLite store.
type Store interface {
	SaveTrade(ctx context.Context, rec TradeRecord) error
	MarkTradeClosed(ctx context.Context, ticket int64, profit float64, closedAt time.Time) error
	RecordAdjustment(ctx context.Context, evt AdjustmentEvent) error
	DailyPnL(ctx context.Context, day time.Time) (float64, error)
	StrategyStats(ctx context.Context, strategy string, windowDays int) (StrategyStats, error)
	Close() error
}
