package adjust

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion/internal/config"
	"bastion/internal/gateway/broker"
	"bastion/internal/profile"
)

func testAdjustConfig() config.AdjustConfig {
	return config.AdjustConfig{
		BreakevenTriggerR:    1.0,
		PartialCloseTriggerR: 2.0,
		PartialCloseRatio:    0.5,
		ProfitRetraceTrigger: 0.3,
		ProfitLockRatio:      0.5,
		OvertimeLockRatio:    0.9,
	}
}

func testSpreadConfig() config.SpreadConfig {
	return config.SpreadConfig{
		ElevatedPips:       3,
		ExtremePips:        8,
		ProhibitivePips:    15,
		ElevatedPenalty:    0.05,
		ExtremePenalty:     0.15,
		ProhibitivePenalty: 0.30,
	}
}

func goldSymbol() broker.SymbolSnapshot {
	return broker.SymbolSnapshot{
		Instrument: "XAUUSD",
		Bid:        2000.00,
		Ask:        2000.30,
		Point:      0.01,
		Digits:     2,
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
		TickValue:  0.01,
	}
}

func goldLongRecord() *Record {
	return &Record{
		Position: broker.Position{
			Ticket:     1001,
			Instrument: "XAUUSD",
			Direction:  broker.DirectionLong,
			Volume:     1.0,
			EntryPrice: 2000.00,
			StopLoss:   1980.00,
			OpenedAt:   time.Now(),
		},
		Strategy: profile.Strategy{
			Name:                "gold_swing",
			ExpectedHoldMinutes: 240,
			TrailingStopPoints:  2000, // 20.00 in price units
		},
		InitialStopDistance: 20.00,
	}
}

func evalAt(e *Engine, rec *Record, price float64, now time.Time) Decision {
	return e.Evaluate(rec, Context{Symbol: goldSymbol(), Price: price, Band: SpreadNormal, Now: now})
}

// A long from 2000.00 with a 20.00 initial stop distance: breakeven fires at
// 1R, trailing then follows price up, and a retreat never loosens the stop.
func TestEngineStopOnlyTightens(t *testing.T) {
	cfg := testAdjustConfig()
	cfg.PartialCloseTriggerR = 10 // out of the way for this walk
	e := NewEngine(cfg, NewSpreadClassifier(testSpreadConfig()))
	rec := goldLongRecord()
	now := time.Now()

	// 0.75R: breakeven must not fire yet; only trailing may tighten, and it
	// stays below entry.
	d := evalAt(e, rec, 2015.00, now)
	require.Equal(t, ActionMoveStop, d.Action)
	assert.Equal(t, "trailing_stop", d.Policy)
	assert.InDelta(t, 1995.00, d.NewStop, 1e-9)
	assert.False(t, rec.BreakevenApplied)
	rec.Position.StopLoss = d.NewStop

	// 1R reached: breakeven moves the stop to entry.
	d = evalAt(e, rec, 2020.00, now)
	require.Equal(t, ActionMoveStop, d.Action)
	assert.Equal(t, "breakeven", d.Policy)
	assert.InDelta(t, 2000.00, d.NewStop, 1e-9)
	rec.Position.StopLoss = d.NewStop

	// Price advances further: the trigger is spent, trailing takes over.
	d = evalAt(e, rec, 2040.00, now)
	require.Equal(t, ActionMoveStop, d.Action)
	assert.Equal(t, "trailing_stop", d.Policy)
	assert.InDelta(t, 2020.00, d.NewStop, 1e-9)
	rec.Position.StopLoss = d.NewStop
	assert.True(t, rec.BreakevenApplied)

	// Price retreats: no policy may loosen the stop.
	d = evalAt(e, rec, 2030.00, now)
	assert.Equal(t, ActionHold, d.Action)
	assert.InDelta(t, 2020.00, rec.Position.StopLoss, 1e-9)
}

func TestEngineBreakevenFiresOnce(t *testing.T) {
	e := NewEngine(testAdjustConfig(), nil)
	rec := goldLongRecord()
	rec.Strategy.TrailingStopPoints = 0
	now := time.Now()

	// Below the 1R trigger nothing fires.
	d := evalAt(e, rec, 2015.00, now)
	assert.Equal(t, ActionHold, d.Action)
	assert.False(t, rec.BreakevenApplied)

	d = evalAt(e, rec, 2020.00, now)
	require.Equal(t, ActionMoveStop, d.Action)
	rec.Position.StopLoss = d.NewStop

	// Same price next cycle: nothing left to do.
	d = evalAt(e, rec, 2020.00, now)
	assert.Equal(t, ActionHold, d.Action)
	assert.True(t, rec.BreakevenApplied)
}

func TestEnginePartialCloseBanksHalf(t *testing.T) {
	e := NewEngine(testAdjustConfig(), nil)
	rec := goldLongRecord()
	rec.Strategy.TrailingStopPoints = 0
	rec.BreakevenApplied = true
	rec.Position.StopLoss = 2000.00
	now := time.Now()

	d := evalAt(e, rec, 2040.00, now) // 2R
	require.Equal(t, ActionPartialClose, d.Action)
	assert.Equal(t, "partial_close", d.Policy)
	assert.InDelta(t, 0.5, d.CloseVolume, 1e-9)
}

func TestEnginePartialCloseSkipsUnsplittableVolume(t *testing.T) {
	e := NewEngine(testAdjustConfig(), nil)
	rec := goldLongRecord()
	rec.Strategy.TrailingStopPoints = 0
	rec.BreakevenApplied = true
	rec.Position.Volume = 0.01
	now := time.Now()

	d := evalAt(e, rec, 2040.00, now)
	assert.Equal(t, ActionHold, d.Action)
	assert.True(t, rec.PartialClosed, "trigger spent so it is not re-asked every cycle")
}

// A scalper 2.4x past its expected hold while profitable gets squeezed; 3x
// past while losing gets closed outright.
func TestEngineTimeDecay(t *testing.T) {
	e := NewEngine(testAdjustConfig(), nil)
	now := time.Now()

	scalper := func() *Record {
		rec := &Record{
			Position: broker.Position{
				Ticket:     2002,
				Instrument: "XAUUSD",
				Direction:  broker.DirectionLong,
				Volume:     1.0,
				EntryPrice: 2000.00,
				StopLoss:   2000.00,
				OpenedAt:   now.Add(-12 * time.Minute),
			},
			Strategy: profile.Strategy{
				Name:                "scalper",
				ExpectedHoldMinutes: 5,
			},
			InitialStopDistance: 2.00,
			BreakevenApplied:    true,
			PartialClosed:       true,
		}
		return rec
	}

	// 2.4x expected hold, profitable: lock 90% of peak.
	rec := scalper()
	d := evalAt(e, rec, 2004.00, now) // peak becomes 4.00
	require.Equal(t, ActionMoveStop, d.Action)
	assert.Equal(t, "time_decay", d.Policy)
	assert.InDelta(t, 2003.60, d.NewStop, 1e-9)

	// 3x expected hold, losing: close in full.
	rec = scalper()
	rec.Position.OpenedAt = now.Add(-15 * time.Minute)
	rec.Position.StopLoss = 1998.00
	d = evalAt(e, rec, 1999.00, now)
	assert.Equal(t, ActionCloseFull, d.Action)
	assert.Equal(t, "time_decay", d.Policy)
}

func TestEngineProfitProtectLocksOnRetrace(t *testing.T) {
	e := NewEngine(testAdjustConfig(), nil)
	rec := goldLongRecord()
	rec.Strategy.TrailingStopPoints = 0
	rec.Strategy.ExpectedHoldMinutes = 0
	rec.BreakevenApplied = true
	rec.PartialClosed = true
	rec.Position.StopLoss = 2000.00
	rec.PeakProfit = 40.00
	rec.PeakR = 2.0
	now := time.Now()

	// Gave back 35% of a 2R peak: lock (0.5 + 0.1) of the peak.
	d := evalAt(e, rec, 2026.00, now)
	require.Equal(t, ActionMoveStop, d.Action)
	assert.Equal(t, "profit_protect", d.Policy)
	assert.InDelta(t, 2024.00, d.NewStop, 1e-9)

	// Shallow retrace stays quiet.
	rec.Position.StopLoss = 2000.00
	d = evalAt(e, rec, 2035.00, now)
	assert.Equal(t, ActionHold, d.Action)
}

// Under a prohibitive spread, stop moves are deferred but full closes still
// pass.
func TestEngineProhibitiveSpreadDefersModifications(t *testing.T) {
	e := NewEngine(testAdjustConfig(), NewSpreadClassifier(testSpreadConfig()))
	now := time.Now()

	rec := goldLongRecord()
	d := e.Evaluate(rec, Context{Symbol: goldSymbol(), Price: 2020.00, Band: SpreadProhibitive, Now: now})
	assert.Equal(t, ActionHold, d.Action, "breakeven deferred while spread is prohibitive")

	losing := &Record{
		Position: broker.Position{
			Ticket:     3003,
			Instrument: "XAUUSD",
			Direction:  broker.DirectionLong,
			Volume:     1.0,
			EntryPrice: 2000.00,
			StopLoss:   1998.00,
			OpenedAt:   now.Add(-15 * time.Minute),
		},
		Strategy:            profile.Strategy{Name: "scalper", ExpectedHoldMinutes: 5},
		InitialStopDistance: 2.00,
	}
	d = e.Evaluate(losing, Context{Symbol: goldSymbol(), Price: 1999.00, Band: SpreadProhibitive, Now: now})
	assert.Equal(t, ActionCloseFull, d.Action)
}

func TestEngineTracksPeaks(t *testing.T) {
	e := NewEngine(testAdjustConfig(), nil)
	rec := goldLongRecord()
	rec.Strategy.TrailingStopPoints = 0
	now := time.Now()

	evalAt(e, rec, 2010.00, now)
	assert.InDelta(t, 10.00, rec.PeakProfit, 1e-9)
	assert.InDelta(t, 0.5, rec.PeakR, 1e-9)

	evalAt(e, rec, 2005.00, now)
	assert.InDelta(t, 10.00, rec.PeakProfit, 1e-9, "peak never shrinks")
}
