package adjust

import (
	"bastion/internal/config"
	"bastion/internal/logger"
)

// Engine runs the ordered policy chain. Policies are independent and never
// combined: the first non-HOLD decision wins, which rules out conflicting
// simultaneous stop moves. The fixed precedence is breakeven, trailing,
// partial close, time decay, profit protection, with the spread band acting
// as a deferral gate in front of non-closing actions.
type Engine struct {
	spread   *SpreadClassifier
	policies []Policy
}

func NewEngine(adjustCfg config.AdjustConfig, spread *SpreadClassifier) *Engine {
	return &Engine{
		spread: spread,
		policies: []Policy{
			&breakevenPolicy{triggerR: adjustCfg.BreakevenTriggerR, offsetPoints: adjustCfg.BreakevenOffsetPoints},
			&trailingPolicy{},
			&partialClosePolicy{triggerR: adjustCfg.PartialCloseTriggerR, closeRatio: adjustCfg.PartialCloseRatio},
			&timeDecayPolicy{overtimeLockRatio: adjustCfg.OvertimeLockRatio},
			&profitProtectPolicy{retraceTrigger: adjustCfg.ProfitRetraceTrigger, baseLockRatio: adjustCfg.ProfitLockRatio},
		},
	}
}

// Evaluate updates the record's peak bookkeeping, then walks the policy
// chain. Under a prohibitive spread, only CLOSE_FULL decisions pass; other
// actions are deferred to a later cycle.
func (e *Engine) Evaluate(rec *Record, ctx Context) Decision {
	e.updatePeaks(rec, ctx)

	modifiable := e.spread == nil || e.spread.ShouldModify(ctx.Band)
	for _, pol := range e.policies {
		d := pol.Evaluate(rec, ctx)
		if d.Action == ActionHold {
			continue
		}
		if !modifiable && d.Action != ActionCloseFull {
			logger.Debugf("adjust: ticket=%d policy=%s action=%s deferred, spread %s",
				rec.Position.Ticket, d.Policy, d.Action, ctx.Band)
			continue
		}
		return d
	}
	return hold()
}

func (e *Engine) updatePeaks(rec *Record, ctx Context) {
	profit := rec.profitDistance(ctx.Price)
	if profit > rec.PeakProfit {
		rec.PeakProfit = profit
	}
	if r := rec.RiskMultiple(ctx.Price); r > rec.PeakR {
		rec.PeakR = r
	}
}
