package adjust

import (
	"fmt"

	"bastion/internal/pkg/trading"
)

// partialClosePolicy banks a configured fraction once profit reaches the
// trigger risk-multiple, leaving the runner under its existing stop.
type partialClosePolicy struct {
	triggerR   float64
	closeRatio float64
}

func (p *partialClosePolicy) Name() string { return "partial_close" }

func (p *partialClosePolicy) Evaluate(rec *Record, ctx Context) Decision {
	if rec.PartialClosed {
		return hold()
	}
	if rec.RiskMultiple(ctx.Price) < p.triggerR {
		return hold()
	}

	closeVol := trading.CalcCloseAmount(rec.Position.Volume, p.closeRatio)
	closeVol = trading.SnapVolume(closeVol, ctx.Symbol.VolumeMin, ctx.Symbol.VolumeMax, ctx.Symbol.VolumeStep)
	if closeVol <= 0 || closeVol >= rec.Position.Volume {
		// Position too small to split; spend the trigger so we do not ask
		// again every cycle.
		rec.PartialClosed = true
		return hold()
	}
	return Decision{
		Action:      ActionPartialClose,
		CloseVolume: closeVol,
		Policy:      p.Name(),
		Reason:      fmt.Sprintf("profit reached %.2fR, banking %.0f%%", p.triggerR, p.closeRatio*100),
	}
}
