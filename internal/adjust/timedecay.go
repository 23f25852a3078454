package adjust

import (
	"fmt"

	"bastion/internal/gateway/broker"
	"bastion/internal/risk"
)

// Holding-time bands relative to the strategy's expected hold.
const (
	holdRatioLate     = 1.0
	holdRatioVeryLate = 2.0
)

// timeDecayPolicy compares elapsed open time against the strategy's
// expected holding time. Short-hold strategies accrue spread and swap cost
// the longer they overstay, so overdue positions get squeezed: LATE and
// profitable tightens proportionally, VERY_LATE and losing closes in full,
// overtime while profitable locks most of the peak.
type timeDecayPolicy struct {
	overtimeLockRatio float64
}

func (p *timeDecayPolicy) Name() string { return "time_decay" }

func (p *timeDecayPolicy) Evaluate(rec *Record, ctx Context) Decision {
	expected := rec.Strategy.ExpectedHold()
	if expected <= 0 || rec.Position.OpenedAt.IsZero() {
		return hold()
	}
	ratio := float64(ctx.Now.Sub(rec.Position.OpenedAt)) / float64(expected)
	if ratio <= holdRatioLate {
		return hold()
	}
	r := rec.RiskMultiple(ctx.Price)

	if ratio > holdRatioVeryLate {
		if r <= 0 {
			return Decision{
				Action: ActionCloseFull,
				Policy: p.Name(),
				Reason: fmt.Sprintf("%.1fx expected hold and losing", ratio),
			}
		}
		// Still profitable well past its welcome: protect the bulk of the
		// peak excursion.
		return p.tightenTo(rec, ctx, rec.PeakProfit*p.overtimeLockRatio,
			fmt.Sprintf("%.1fx expected hold, locking %.0f%% of peak", ratio, p.overtimeLockRatio*100))
	}

	// LATE band: tighten proportionally to how overdue the position is.
	if r > 0 {
		lockFraction := ratio - holdRatioLate // 0..1 across the LATE band
		return p.tightenTo(rec, ctx, rec.profitDistance(ctx.Price)*lockFraction,
			fmt.Sprintf("%.1fx expected hold, locking %.0f%% of open profit", ratio, lockFraction*100))
	}
	return hold()
}

// tightenTo proposes a stop locking lockDistance price units of profit from
// entry, subject to monotonic tightening.
func (p *timeDecayPolicy) tightenTo(rec *Record, ctx Context, lockDistance float64, reason string) Decision {
	if lockDistance <= 0 {
		return hold()
	}
	proposed := rec.Position.EntryPrice + lockDistance
	if rec.Position.Direction == broker.DirectionShort {
		proposed = rec.Position.EntryPrice - lockDistance
	}
	newStop := risk.TightenOnly(rec.Position.Direction, rec.Position.StopLoss, proposed, ctx.Symbol.Digits)
	if newStop == rec.Position.StopLoss {
		return hold()
	}
	return Decision{Action: ActionMoveStop, NewStop: newStop, Policy: p.Name(), Reason: reason}
}
