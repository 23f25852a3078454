package adjust

import (
	"fmt"

	"bastion/internal/gateway/broker"
	"bastion/internal/risk"
)

// breakevenPolicy moves the stop to entry once profit reaches the trigger
// risk-multiple. It fires at most once per position.
type breakevenPolicy struct {
	triggerR     float64
	offsetPoints float64
}

func (p *breakevenPolicy) Name() string { return "breakeven" }

func (p *breakevenPolicy) Evaluate(rec *Record, ctx Context) Decision {
	if rec.BreakevenApplied {
		return hold()
	}
	if rec.RiskMultiple(ctx.Price) < p.triggerR {
		return hold()
	}

	target := rec.Position.EntryPrice
	if p.offsetPoints > 0 && ctx.Symbol.Point > 0 {
		offset := p.offsetPoints * ctx.Symbol.Point
		if rec.Position.Direction == broker.DirectionShort {
			target -= offset
		} else {
			target += offset
		}
	}

	newStop := risk.TightenOnly(rec.Position.Direction, rec.Position.StopLoss, target, ctx.Symbol.Digits)
	if newStop == rec.Position.StopLoss {
		// Already at or beyond entry; nothing to move but the trigger is
		// spent.
		rec.BreakevenApplied = true
		return hold()
	}
	return Decision{
		Action:  ActionMoveStop,
		NewStop: newStop,
		Policy:  p.Name(),
		Reason:  fmt.Sprintf("profit reached %.2fR, stop to entry", p.triggerR),
	}
}
