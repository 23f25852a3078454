// Package broker defines the abstraction over the external trading terminal.
// The rest of the system only sees this interface; concrete backends (the
// HTTP terminal bridge, Binance futures) live in subpackages.
package broker

import (
	"context"
	"time"
)

// Direction of a position or order.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Position is an open position as reported by the terminal. The terminal is
// the sole source of truth for position state; in-process caches are
// reconciled against this every cycle.
type Position struct {
	Ticket     int64     // Terminal-assigned unique id
	Instrument string    // e.g. "XAUUSD"
	Direction  Direction // long or short
	Volume     float64   // Current lots
	EntryPrice float64   // Average fill price
	StopLoss   float64   // 0 if not set
	TakeProfit float64   // 0 if not set
	OpenedAt   time.Time

	CurrentPrice float64 // Quote at listing time
	Profit       float64 // Unrealized profit in account currency

	Magic   int    // Broker order tag used for strategy attribution
	Comment string // Terminal comment, informational
}

// AccountSnapshot is a point-in-time view of the trading account.
type AccountSnapshot struct {
	Balance    float64   `json:"balance"`
	Equity     float64   `json:"equity"`
	Margin     float64   `json:"margin"`
	MarginFree float64   `json:"margin_free"`
	Currency   string    `json:"currency"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SymbolSnapshot carries the quote and contract constraints for one
// instrument.
type SymbolSnapshot struct {
	Instrument string  `json:"instrument"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	Point      float64 `json:"point"`  // Price increment of one point
	Digits     int     `json:"digits"` // Quote decimal places
	VolumeMin  float64 `json:"volume_min"`
	VolumeMax  float64 `json:"volume_max"`
	VolumeStep float64 `json:"volume_step"`
	TickValue  float64 `json:"tick_value"` // Account-currency value of one point per lot
}

// SpreadPoints returns the current spread expressed in points.
func (s SymbolSnapshot) SpreadPoints() float64 {
	if s.Point <= 0 {
		return 0
	}
	return (s.Ask - s.Bid) / s.Point
}

// OrderRequest asks the terminal to open a position.
type OrderRequest struct {
	Instrument string
	Direction  Direction
	Volume     float64
	StopLoss   float64
	TakeProfit float64
	Magic      int
	Comment    string
}

// OrderResult reports a confirmed fill.
type OrderResult struct {
	Ticket int64
	Price  float64
	Volume float64
}

// Deal is a historical account deal (fills, closes, swaps).
type Deal struct {
	Ticket     int64
	Position   int64 // Owning position ticket
	Instrument string
	Direction  Direction
	Volume     float64
	Price      float64
	Profit     float64
	Commission float64
	Swap       float64
	Magic      int
	Time       time.Time
}

// Connector is one logical session to the external terminal. Implementations
// must serialize calls internally; callers run concurrently.
type Connector interface {
	Name() string

	Connect(ctx context.Context) error

	AccountSnapshot(ctx context.Context) (AccountSnapshot, error)

	// OpenPositions lists open positions, optionally filtered by instrument
	// (empty string means all).
	OpenPositions(ctx context.Context, instrument string) ([]Position, error)

	SymbolSnapshot(ctx context.Context, instrument string) (SymbolSnapshot, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	// ModifyPosition updates protective levels. A zero value leaves the
	// corresponding level unchanged.
	ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error

	// ClosePosition closes volume lots of the position; volume <= 0 closes
	// the full position.
	ClosePosition(ctx context.Context, ticket int64, volume float64) error

	// HistoricalDeals lists closed deals in [from, to]; position > 0 filters
	// by owning position ticket.
	HistoricalDeals(ctx context.Context, from, to time.Time, position int64) ([]Deal, error)
}
