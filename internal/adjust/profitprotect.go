package adjust

import (
	"fmt"

	"bastion/internal/gateway/broker"
	"bastion/internal/risk"
)

// profitProtectPolicy watches each position's peak unrealized profit. Once
// a retracement gives back more than the trigger fraction of that peak, the
// stop is tightened to lock a protected share of it, with the protected
// share escalating as the peak risk-multiple grows.
type profitProtectPolicy struct {
	retraceTrigger float64 // fraction of peak given back before acting
	baseLockRatio  float64 // protected fraction at 1R peak
}

func (p *profitProtectPolicy) Name() string { return "profit_protect" }

func (p *profitProtectPolicy) Evaluate(rec *Record, ctx Context) Decision {
	// Only meaningful once the position has at least seen 1R.
	if rec.PeakR < 1 || rec.PeakProfit <= 0 {
		return hold()
	}
	current := rec.profitDistance(ctx.Price)
	retrace := (rec.PeakProfit - current) / rec.PeakProfit
	if retrace < p.retraceTrigger {
		return hold()
	}

	lock := p.lockRatio(rec.PeakR)
	proposed := rec.Position.EntryPrice + rec.PeakProfit*lock
	if rec.Position.Direction == broker.DirectionShort {
		proposed = rec.Position.EntryPrice - rec.PeakProfit*lock
	}
	newStop := risk.TightenOnly(rec.Position.Direction, rec.Position.StopLoss, proposed, ctx.Symbol.Digits)
	if newStop == rec.Position.StopLoss {
		return hold()
	}
	return Decision{
		Action:  ActionMoveStop,
		NewStop: newStop,
		Policy:  p.Name(),
		Reason: fmt.Sprintf("retraced %.0f%% from peak %.2fR, locking %.0f%% of peak",
			retrace*100, rec.PeakR, lock*100),
	}
}

// lockRatio escalates protection with the peak risk-multiple, capped at 90%.
func (p *profitProtectPolicy) lockRatio(peakR float64) float64 {
	lock := p.baseLockRatio
	if peakR > 1 {
		lock += 0.1 * (peakR - 1)
	}
	if lock > 0.9 {
		lock = 0.9
	}
	return lock
}
