package adjust

import (
	"fmt"

	"bastion/internal/risk"
)

// trailingPolicy follows favorable price movement with the strategy's
// trailing distance. The monotonic computation lives in the risk package so
// the worker and the monitor share one definition.
type trailingPolicy struct{}

func (p *trailingPolicy) Name() string { return "trailing_stop" }

func (p *trailingPolicy) Evaluate(rec *Record, ctx Context) Decision {
	distance := rec.Strategy.TrailingStopPoints
	if distance <= 0 {
		return hold()
	}
	// Trailing engages once the position is in profit; before that the
	// initial stop stands.
	if rec.profitDistance(ctx.Price) <= 0 {
		return hold()
	}
	newStop := risk.TrailingStopFor(rec.Position, ctx.Price, distance, ctx.Symbol.Point, ctx.Symbol.Digits)
	if newStop == rec.Position.StopLoss || newStop <= 0 {
		return hold()
	}
	return Decision{
		Action:  ActionMoveStop,
		NewStop: newStop,
		Policy:  p.Name(),
		Reason:  fmt.Sprintf("trail %.0f points behind price", distance),
	}
}
