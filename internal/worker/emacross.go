package worker

import (
	"context"
	"fmt"
	"sync"

	talib "github.com/markcheno/go-talib"

	"bastion/internal/gateway/broker"
	"bastion/internal/profile"
)

const seriesCapacity = 512

// EMACrossProvider signals on fast/slow EMA crossovers over quote samples
// collected by the worker loop. It is the reference provider; anything
// richer plugs in behind the same interface.
type EMACrossProvider struct {
	mu     sync.Mutex
	series map[string][]float64
}

func NewEMACrossProvider() *EMACrossProvider {
	return &EMACrossProvider{series: make(map[string][]float64)}
}

func (p *EMACrossProvider) Name() string { return "ema_cross" }

// Observe appends one mid-price sample for instrument, keeping a bounded
// window.
func (p *EMACrossProvider) Observe(instrument string, price float64) {
	if price <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s := append(p.series[instrument], price)
	if len(s) > seriesCapacity {
		s = s[len(s)-seriesCapacity:]
	}
	p.series[instrument] = s
}

// Evaluate reports a signal when the fast EMA crossed the slow EMA between
// the last two samples. The second return is false while the series is too
// short to decide.
func (p *EMACrossProvider) Evaluate(_ context.Context, instrument string, strat profile.Strategy) (Signal, bool, error) {
	fast := strat.Signal.FastPeriod
	slow := strat.Signal.SlowPeriod
	if fast <= 0 {
		fast = 12
	}
	if slow <= fast {
		slow = fast * 2
	}

	p.mu.Lock()
	closes := append([]float64(nil), p.series[instrument]...)
	p.mu.Unlock()

	if len(closes) < slow+2 {
		return Signal{}, false, nil
	}

	fastArr := talib.Ema(closes, fast)
	slowArr := talib.Ema(closes, slow)
	n := len(closes)
	if len(fastArr) != n || len(slowArr) != n {
		return Signal{}, false, fmt.Errorf("ema_cross: indicator output mismatch for %s", instrument)
	}

	prevDiff := fastArr[n-2] - slowArr[n-2]
	currDiff := fastArr[n-1] - slowArr[n-1]

	var dir broker.Direction
	switch {
	case prevDiff <= 0 && currDiff > 0:
		dir = broker.DirectionLong
	case prevDiff >= 0 && currDiff < 0:
		dir = broker.DirectionShort
	default:
		return Signal{}, false, nil
	}

	// Confidence grows with the separation of the averages relative to
	// price, capped well below certainty.
	sep := currDiff
	if sep < 0 {
		sep = -sep
	}
	confidence := 0.55 + 100*sep/closes[n-1]
	if confidence > 0.9 {
		confidence = 0.9
	}
	return Signal{
		Direction:  dir,
		Confidence: confidence,
		Reason:     fmt.Sprintf("ema %d/%d cross %s", fast, slow, dir),
	}, true, nil
}
