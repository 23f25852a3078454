// Package adjust evaluates open positions against an ordered set of
// independent adjustment policies and produces at most one decision per
// position per cycle.
package adjust

import (
	"time"

	"bastion/internal/gateway/broker"
	"bastion/internal/profile"
)

// Action is what the monitor should do with a position this cycle.
type Action string

const (
	ActionHold         Action = "HOLD"
	ActionMoveStop     Action = "MOVE_STOP"
	ActionPartialClose Action = "PARTIAL_CLOSE"
	ActionCloseFull    Action = "CLOSE_FULL"
)

// Decision is the ephemeral outcome of one evaluation.
type Decision struct {
	Action      Action
	NewStop     float64
	NewTarget   float64
	CloseVolume float64
	Policy      string
	Reason      string
}

func hold() Decision { return Decision{Action: ActionHold} }

// Record shadows one broker position plus the derived bookkeeping the
// policies need across cycles. Records are exclusively owned by the
// position monitor; every access happens under its lock.
type Record struct {
	Position broker.Position
	Strategy profile.Strategy

	// InitialStopDistance is the entry-to-initial-stop distance in price
	// units, fixed at record creation. It defines 1R.
	InitialStopDistance float64

	BreakevenApplied bool
	PartialClosed    bool
	PeakProfit       float64 // peak favorable excursion in price units
	PeakR            float64
	LastAdjustedAt   time.Time
}

// profitDistance returns the current favorable excursion in price units
// (negative while losing).
func (r *Record) profitDistance(price float64) float64 {
	if price <= 0 {
		return 0
	}
	if r.Position.Direction == broker.DirectionShort {
		return r.Position.EntryPrice - price
	}
	return price - r.Position.EntryPrice
}

// RiskMultiple expresses unrealized profit as a multiple of the initial
// stop distance.
func (r *Record) RiskMultiple(price float64) float64 {
	if r.InitialStopDistance <= 0 {
		return 0
	}
	return r.profitDistance(price) / r.InitialStopDistance
}

// Context carries the per-cycle market inputs for one evaluation.
type Context struct {
	Symbol broker.SymbolSnapshot
	Price  float64 // evaluation price: bid for longs, ask for shorts
	Band   SpreadBand
	Now    time.Time
}

// Policy is one independent adjustment rule.
type Policy interface {
	Name() string
	Evaluate(rec *Record, ctx Context) Decision
}
