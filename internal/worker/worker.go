// Package worker runs one entry loop per strategy: sample quotes, ask the
// signal provider, pass the risk gate, place the order, persist and notify.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"bastion/internal/adjust"
	"bastion/internal/config"
	"bastion/internal/gateway/broker"
	"bastion/internal/gateway/notifier"
	"bastion/internal/logger"
	"bastion/internal/profile"
	"bastion/internal/risk"
	"bastion/internal/store"
	"bastion/internal/watchdog"
)

// StrategyWorker drives entries for one strategy on one instrument. The
// profile is re-read from the registry every cycle so hot reloads take
// effect without a restart.
type StrategyWorker struct {
	strategy   string
	instrument string
	profiles   *profile.Registry
	provider   SignalProvider
	conn       broker.Connector
	gate       *risk.Gate
	spread     *adjust.SpreadClassifier
	db         store.Store
	notify     notifier.TextNotifier
	dog        *watchdog.Watchdog

	interval time.Duration
	cycles   atomic.Int64
}

func New(strategy, instrument string, cfg config.WorkerConfig, profiles *profile.Registry, provider SignalProvider, conn broker.Connector, gate *risk.Gate, spread *adjust.SpreadClassifier, db store.Store, notify notifier.TextNotifier, dog *watchdog.Watchdog) *StrategyWorker {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if notify == nil {
		notify = notifier.Nop{}
	}
	return &StrategyWorker{
		strategy:   strategy,
		instrument: instrument,
		profiles:   profiles,
		provider:   provider,
		conn:       conn,
		gate:       gate,
		spread:     spread,
		db:         db,
		notify:     notify,
		dog:        dog,
		interval:   interval,
	}
}

// HeartbeatName is the watchdog identity of this worker.
func (w *StrategyWorker) HeartbeatName() string { return "worker:" + w.strategy + ":" + w.instrument }

// Strategy returns the worker's strategy name.
func (w *StrategyWorker) Strategy() string { return w.strategy }

// Instrument returns the worker's instrument.
func (w *StrategyWorker) Instrument() string { return w.instrument }

// Cycles reports how many cycles completed since start.
func (w *StrategyWorker) Cycles() int64 { return w.cycles.Load() }

// Run blocks until ctx is cancelled.
func (w *StrategyWorker) Run(ctx context.Context) {
	logger.Infof("worker %s/%s: started, interval=%s provider=%s", w.strategy, w.instrument, w.interval, w.provider.Name())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.safeCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("worker %s: stopped", w.strategy)
			return
		case <-ticker.C:
			w.safeCycle(ctx)
		}
	}
}

func (w *StrategyWorker) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("worker %s: cycle panic: %v\n%s", w.strategy, r, debug.Stack())
		}
	}()
	if w.dog != nil {
		w.dog.Heartbeat(w.HeartbeatName())
	}
	if err := w.cycle(ctx); err != nil {
		logger.Warnf("worker %s: cycle failed: %v", w.strategy, err)
	}
	w.cycles.Add(1)
}

func (w *StrategyWorker) cycle(ctx context.Context) error {
	strat, ok := w.profiles.Strategy(w.strategy)
	if !ok {
		return fmt.Errorf("strategy %q missing from profiles", w.strategy)
	}
	if !strat.Enabled {
		return nil
	}
	return w.tryEnter(ctx, strat, w.instrument)
}

func (w *StrategyWorker) tryEnter(ctx context.Context, strat profile.Strategy, instrument string) error {
	sym, err := w.conn.SymbolSnapshot(ctx, instrument)
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}
	mid := (sym.Bid + sym.Ask) / 2
	w.provider.Observe(instrument, mid)

	sig, fired, err := w.provider.Evaluate(ctx, instrument, strat)
	if err != nil {
		return fmt.Errorf("signal: %w", err)
	}
	if !fired {
		return nil
	}

	band := adjust.SpreadNormal
	if w.spread != nil {
		band = w.spread.Classify(sym)
	}
	if band == adjust.SpreadProhibitive {
		logger.Infof("worker %s: %s signal suppressed, prohibitive spread (%.1f pips)",
			w.strategy, instrument, adjust.SpreadPips(sym))
		return nil
	}

	confidence := sig.Confidence
	if w.spread != nil {
		confidence -= w.spread.ConfidencePenalty(band)
	}
	if confidence < strat.MinConfidence {
		logger.Debugf("worker %s: %s %s confidence %.2f below threshold %.2f (band %s)",
			w.strategy, instrument, sig.Direction, confidence, strat.MinConfidence, band)
		return nil
	}

	account, err := w.conn.AccountSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	open, err := w.conn.OpenPositions(ctx, "")
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}

	stopPoints := strat.StopDistancePoints
	if w.spread != nil {
		stopPoints *= w.spread.DistanceScale(band)
	}

	decision := w.gate.CanOpen(ctx, risk.OpenRequest{
		Instrument:         instrument,
		Direction:          sig.Direction,
		Strategy:           strat,
		Symbol:             sym,
		Account:            account,
		OpenPositions:      open,
		StopDistancePoints: stopPoints,
	})
	if !decision.Approved {
		logger.Infof("worker %s: %s %s rejected by risk gate: %s",
			w.strategy, instrument, sig.Direction, decision.Reason)
		return nil
	}

	result, err := w.conn.PlaceOrder(ctx, broker.OrderRequest{
		Instrument: instrument,
		Direction:  sig.Direction,
		Volume:     decision.Volume,
		StopLoss:   decision.StopLoss,
		TakeProfit: decision.TakeProfit,
		Magic:      strat.Magic,
		Comment:    strat.Name,
	})
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	logger.Infof("worker %s: opened %s %s ticket=%d vol=%.2f @%.5f sl=%.5f tp=%.5f (%s)",
		w.strategy, instrument, sig.Direction, result.Ticket, result.Volume, result.Price,
		decision.StopLoss, decision.TakeProfit, sig.Reason)

	w.persistTrade(ctx, strat, instrument, sig, result, decision)
	w.notifyAsync(fmt.Sprintf("Opened %s %s %.2f lots @%.5f (%s, confidence %.2f)",
		instrument, sig.Direction, result.Volume, result.Price, w.strategy, confidence))
	return nil
}

func (w *StrategyWorker) persistTrade(ctx context.Context, strat profile.Strategy, instrument string, sig Signal, result broker.OrderResult, decision risk.Decision) {
	if w.db == nil {
		return
	}
	rec := store.TradeRecord{
		Ticket:     result.Ticket,
		Instrument: instrument,
		Strategy:   strat.Name,
		Direction:  string(sig.Direction),
		Volume:     result.Volume,
		EntryPrice: result.Price,
		StopLoss:   decision.StopLoss,
		TakeProfit: decision.TakeProfit,
		OpenedAt:   time.Now(),
		Status:     "open",
		Details: map[string]any{
			"signal":     sig.Reason,
			"confidence": sig.Confidence,
			"provider":   w.provider.Name(),
		},
	}
	if err := w.db.SaveTrade(ctx, rec); err != nil {
		logger.Warnf("worker %s: trade %d not persisted: %v", w.strategy, result.Ticket, err)
	}
}

func (w *StrategyWorker) notifyAsync(text string) {
	if g, ok := w.notify.(*notifier.Guarded); ok {
		g.SendAsync(text)
		return
	}
	if err := w.notify.SendText(text); err != nil {
		logger.Warnf("worker %s: notify failed: %v", w.strategy, err)
	}
}
