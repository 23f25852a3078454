// Package risk decides whether a new order may open and sizes it. It also
// owns the monotonic trailing-stop computation used by the position monitor.
package risk

import (
	"context"
	"strings"
	"sync"
	"time"

	"bastion/internal/config"
	"bastion/internal/gateway/broker"
	"bastion/internal/logger"
	"bastion/internal/pkg/trading"
	"bastion/internal/profile"
)

// Rejection reasons, stable for counting and operator reporting.
const (
	ReasonMaxPositionsInstrument = "max_positions_instrument"
	ReasonMaxPositionsTotal      = "max_positions_total"
	ReasonDailyLossLimit         = "daily_loss_limit"
	ReasonMaxDrawdown            = "max_drawdown"
	ReasonMarginLevel            = "margin_level"
	ReasonCorrelatedExposure     = "correlated_exposure"
	ReasonVolumeBelowMin         = "volume_below_min"
	ReasonBadSymbolData          = "bad_symbol_data"
)

// Decision is the ephemeral result of one gate evaluation.
type Decision struct {
	Approved   bool
	Reason     string
	Volume     float64
	StopLoss   float64
	TakeProfit float64
}

func reject(reason string) Decision { return Decision{Approved: false, Reason: reason} }

// OpenRequest carries everything one evaluation needs; the gate itself does
// no terminal I/O.
type OpenRequest struct {
	Instrument    string
	Direction     broker.Direction
	Strategy      profile.Strategy
	Symbol        broker.SymbolSnapshot
	Account       broker.AccountSnapshot
	OpenPositions []broker.Position // account-wide listing

	// StopDistancePoints overrides the profile distance when the spread
	// policy has rescaled it; zero means use the profile value.
	StopDistancePoints float64
}

// StatsSource supplies realized results from persistence.
type StatsSource interface {
	DailyPnL(ctx context.Context, day time.Time) (float64, error)
}

// Gate validates open requests against configured ceilings.
type Gate struct {
	cfg   config.RiskConfig
	stats StatsSource

	mu         sync.Mutex
	rejections map[string]int
}

func NewGate(cfg config.RiskConfig, stats StatsSource) *Gate {
	return &Gate{cfg: cfg, stats: stats, rejections: make(map[string]int)}
}

// CanOpen runs every check in order and returns the first rejection, or an
// approved decision with computed volume and protective levels.
func (g *Gate) CanOpen(ctx context.Context, req OpenRequest) Decision {
	instrument := strings.ToUpper(strings.TrimSpace(req.Instrument))

	perInstrument, total := 0, 0
	for _, p := range req.OpenPositions {
		total++
		if p.Instrument == instrument {
			perInstrument++
		}
	}
	if perInstrument >= g.cfg.MaxPositionsPerInstrument {
		return g.count(reject(ReasonMaxPositionsInstrument))
	}
	if total >= g.cfg.MaxPositionsTotal {
		return g.count(reject(ReasonMaxPositionsTotal))
	}

	equity := req.Account.Equity
	if pnl, err := g.dailyPnL(ctx); err != nil {
		// Storage trouble must not halt trading; the storage breaker owns
		// escalation.
		logger.Warnf("risk: daily pnl unavailable, skipping daily loss check: %v", err)
	} else if pnl < 0 && -pnl >= equity*g.cfg.DailyLossLimitPct {
		return g.count(reject(ReasonDailyLossLimit))
	}
	if req.Account.Balance > 0 && equity < req.Account.Balance*(1-g.cfg.MaxDrawdownPct) {
		return g.count(reject(ReasonMaxDrawdown))
	}
	if req.Account.Margin > 0 && equity/req.Account.Margin < 2 {
		return g.count(reject(ReasonMarginLevel))
	}

	if group := g.correlationGroup(instrument); len(group) > 0 {
		exposure := 0.0
		for _, p := range req.OpenPositions {
			if group[p.Instrument] && p.Instrument != instrument {
				exposure += p.Volume
			}
		}
		if exposure >= g.cfg.MaxCorrelatedExposure {
			return g.count(reject(ReasonCorrelatedExposure))
		}
	}

	return g.size(req, instrument)
}

func (g *Gate) size(req OpenRequest, instrument string) Decision {
	sym := req.Symbol
	if sym.Point <= 0 || sym.TickValue <= 0 {
		return g.count(reject(ReasonBadSymbolData))
	}
	stopPoints := req.StopDistancePoints
	if stopPoints <= 0 {
		stopPoints = req.Strategy.StopDistancePoints
	}
	if stopPoints <= 0 {
		return g.count(reject(ReasonBadSymbolData))
	}

	riskFraction := g.cfg.RiskPerTrade
	if req.Strategy.RiskPerTrade > 0 {
		riskFraction = req.Strategy.RiskPerTrade
	}
	riskAmount := req.Account.Equity * riskFraction
	rawVolume := riskAmount / (stopPoints * sym.TickValue)
	volume := trading.SnapVolume(rawVolume, sym.VolumeMin, sym.VolumeMax, sym.VolumeStep)
	if volume <= 0 {
		return g.count(reject(ReasonVolumeBelowMin))
	}

	entry := sym.Ask
	if req.Direction == broker.DirectionShort {
		entry = sym.Bid
	}
	stopDistance := stopPoints * sym.Point
	targetPoints := req.Strategy.TargetDistancePoints
	var stop, target float64
	if req.Direction == broker.DirectionLong {
		stop = entry - stopDistance
		if targetPoints > 0 {
			target = entry + targetPoints*sym.Point
		}
	} else {
		stop = entry + stopDistance
		if targetPoints > 0 {
			target = entry - targetPoints*sym.Point
		}
	}
	return Decision{
		Approved:   true,
		Volume:     volume,
		StopLoss:   trading.RoundPrice(stop, sym.Digits),
		TakeProfit: trading.RoundPrice(target, sym.Digits),
	}
}

func (g *Gate) dailyPnL(ctx context.Context) (float64, error) {
	if g.stats == nil {
		return 0, nil
	}
	return g.stats.DailyPnL(ctx, time.Now().UTC())
}

func (g *Gate) correlationGroup(instrument string) map[string]bool {
	for _, members := range g.cfg.CorrelationGroups {
		set := make(map[string]bool, len(members))
		found := false
		for _, m := range members {
			m = strings.ToUpper(strings.TrimSpace(m))
			set[m] = true
			if m == instrument {
				found = true
			}
		}
		if found {
			return set
		}
	}
	return nil
}

func (g *Gate) count(d Decision) Decision {
	if !d.Approved {
		g.mu.Lock()
		g.rejections[d.Reason]++
		g.mu.Unlock()
	}
	return d
}

// RejectionCounts returns a copy of per-reason rejection counters.
func (g *Gate) RejectionCounts() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int, len(g.rejections))
	for k, v := range g.rejections {
		out[k] = v
	}
	return out
}
