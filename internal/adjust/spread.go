package adjust

import (
	"bastion/internal/config"
	"bastion/internal/gateway/broker"
)

// SpreadBand classifies current liquidity cost.
type SpreadBand int

const (
	SpreadNormal SpreadBand = iota
	SpreadElevated
	SpreadExtreme
	SpreadProhibitive
)

func (b SpreadBand) String() string {
	switch b {
	case SpreadNormal:
		return "normal"
	case SpreadElevated:
		return "elevated"
	case SpreadExtreme:
		return "extreme"
	case SpreadProhibitive:
		return "prohibitive"
	default:
		return "unknown"
	}
}

// SpreadClassifier maps a symbol snapshot into a band and derives the
// band's effects: confidence penalty for new entries, distance rescaling
// for protective levels, and whether modifications should run at all.
type SpreadClassifier struct {
	cfg config.SpreadConfig
}

func NewSpreadClassifier(cfg config.SpreadConfig) *SpreadClassifier {
	return &SpreadClassifier{cfg: cfg}
}

// Classify buckets the live spread, measured in pips.
func (c *SpreadClassifier) Classify(sym broker.SymbolSnapshot) SpreadBand {
	pips := SpreadPips(sym)
	switch {
	case pips > c.cfg.ProhibitivePips:
		return SpreadProhibitive
	case pips > c.cfg.ExtremePips:
		return SpreadExtreme
	case pips > c.cfg.ElevatedPips:
		return SpreadElevated
	default:
		return SpreadNormal
	}
}

// ConfidencePenalty is added to a strategy's required signal confidence
// while the band is in effect.
func (c *SpreadClassifier) ConfidencePenalty(band SpreadBand) float64 {
	switch band {
	case SpreadElevated:
		return c.cfg.ElevatedPenalty
	case SpreadExtreme:
		return c.cfg.ExtremePenalty
	case SpreadProhibitive:
		return c.cfg.ProhibitivePenalty
	default:
		return 0
	}
}

// DistanceScale widens effective stop/target distances so protective levels
// are not placed inside the spread. This is the one sanctioned widening; it
// applies to distances at order time, never to an existing stop.
func (c *SpreadClassifier) DistanceScale(band SpreadBand) float64 {
	switch band {
	case SpreadElevated:
		return 1.2
	case SpreadExtreme:
		return 1.5
	case SpreadProhibitive:
		return 2.0
	default:
		return 1.0
	}
}

// ShouldModify reports whether non-closing modifications may run under the
// band. Above prohibitive everything except full closes is deferred.
func (c *SpreadClassifier) ShouldModify(band SpreadBand) bool {
	return band < SpreadProhibitive
}

// SpreadPips converts the live spread into pips. On 5- and 3-digit symbols
// a pip is ten points; elsewhere pip and point coincide.
func SpreadPips(sym broker.SymbolSnapshot) float64 {
	points := sym.SpreadPoints()
	if sym.Digits == 5 || sym.Digits == 3 {
		return points / 10
	}
	return points
}
