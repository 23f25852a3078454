// Package monitor owns the position lifecycle after entry: it reconciles
// the in-process record map against the terminal every cycle, evaluates
// each open position through the adjustment engine, and applies at most one
// decision per position per cycle.
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"bastion/internal/adjust"
	"bastion/internal/config"
	"bastion/internal/gateway/broker"
	"bastion/internal/gateway/notifier"
	"bastion/internal/logger"
	"bastion/internal/profile"
	"bastion/internal/store"
	"bastion/internal/watchdog"
)

// PositionView is a read-only copy of one tracked position for the status
// surface.
type PositionView struct {
	Ticket         int64     `json:"ticket"`
	Instrument     string    `json:"instrument"`
	Direction      string    `json:"direction"`
	Volume         float64   `json:"volume"`
	EntryPrice     float64   `json:"entry_price"`
	StopLoss       float64   `json:"stop_loss"`
	TakeProfit     float64   `json:"take_profit"`
	Profit         float64   `json:"profit"`
	Strategy       string    `json:"strategy"`
	PeakR          float64   `json:"peak_r"`
	Breakeven      bool      `json:"breakeven_applied"`
	PartialClosed  bool      `json:"partial_closed"`
	OpenedAt       time.Time `json:"opened_at"`
	LastAdjustedAt time.Time `json:"last_adjusted_at,omitempty"`
}

// Monitor runs the adjustment loop over the open positions of one
// instrument.
type Monitor struct {
	instrument string

	conn     broker.Connector
	engine   *adjust.Engine
	spread   *adjust.SpreadClassifier
	profiles *profile.Registry
	db       store.Store
	notify   notifier.TextNotifier
	dog      *watchdog.Watchdog

	interval time.Duration

	mu      sync.Mutex
	records map[int64]*adjust.Record

	nowFn func() time.Time
}

func New(instrument string, cfg config.MonitorConfig, conn broker.Connector, engine *adjust.Engine, spread *adjust.SpreadClassifier, profiles *profile.Registry, db store.Store, notify notifier.TextNotifier, dog *watchdog.Watchdog) *Monitor {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if notify == nil {
		notify = notifier.Nop{}
	}
	return &Monitor{
		instrument: instrument,
		conn:       conn,
		engine:     engine,
		spread:     spread,
		profiles:   profiles,
		db:         db,
		notify:     notify,
		dog:        dog,
		interval:   interval,
		records:    make(map[int64]*adjust.Record),
		nowFn:      time.Now,
	}
}

// HeartbeatName is the watchdog identity of this monitor loop.
func (m *Monitor) HeartbeatName() string { return "monitor:" + m.instrument }

// Instrument returns the monitored instrument.
func (m *Monitor) Instrument() string { return m.instrument }

// Run blocks until ctx is cancelled. Each cycle is isolated: a panic or
// error in one cycle never stops the loop.
func (m *Monitor) Run(ctx context.Context) {
	logger.Infof("monitor %s: started, interval=%s", m.instrument, m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.safeCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("monitor %s: stopped", m.instrument)
			return
		case <-ticker.C:
			m.safeCycle(ctx)
		}
	}
}

func (m *Monitor) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("monitor %s: cycle panic: %v\n%s", m.instrument, r, debug.Stack())
		}
	}()
	if m.dog != nil {
		m.dog.Heartbeat(m.HeartbeatName())
	}
	if err := m.cycle(ctx); err != nil {
		logger.Warnf("monitor %s: cycle failed: %v", m.instrument, err)
	}
}

func (m *Monitor) cycle(ctx context.Context) error {
	positions, err := m.conn.OpenPositions(ctx, m.instrument)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	now := m.nowFn()
	snapshots := m.symbolSnapshots(ctx, positions)
	live := m.reconcile(ctx, positions, snapshots, now)

	for _, rec := range live {
		sym, ok := snapshots[rec.Position.Instrument]
		if !ok {
			continue
		}
		if err := m.evaluateOne(ctx, rec, sym, now); err != nil {
			logger.Errorf("monitor: ticket=%d adjust failed: %v", rec.Position.Ticket, err)
		}
	}
	return nil
}

// symbolSnapshots fetches one quote per distinct instrument. A failed quote
// skips that instrument's positions this cycle rather than failing the
// whole pass.
func (m *Monitor) symbolSnapshots(ctx context.Context, positions []broker.Position) map[string]broker.SymbolSnapshot {
	out := make(map[string]broker.SymbolSnapshot)
	for _, p := range positions {
		if _, done := out[p.Instrument]; done {
			continue
		}
		sym, err := m.conn.SymbolSnapshot(ctx, p.Instrument)
		if err != nil {
			logger.Warnf("monitor: quote %s failed, skipping its positions this cycle: %v", p.Instrument, err)
			continue
		}
		out[p.Instrument] = sym
	}
	return out
}

// reconcile makes the record map mirror the terminal's position list. The
// terminal is the sole source of truth: new tickets gain records, vanished
// tickets lose them, and surviving records absorb the terminal's current
// volume and protective levels.
func (m *Monitor) reconcile(ctx context.Context, positions []broker.Position, snapshots map[string]broker.SymbolSnapshot, now time.Time) []*adjust.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[int64]bool, len(positions))
	live := make([]*adjust.Record, 0, len(positions))

	for _, pos := range positions {
		seen[pos.Ticket] = true
		if rec, ok := m.records[pos.Ticket]; ok {
			rec.Position = pos
			live = append(live, rec)
			continue
		}
		rec, err := m.adopt(pos, snapshots[pos.Instrument])
		if err != nil {
			logger.Errorf("monitor: ticket=%d on %s not adopted: %v", pos.Ticket, pos.Instrument, err)
			continue
		}
		m.records[pos.Ticket] = rec
		live = append(live, rec)
		logger.Infof("monitor: tracking ticket=%d %s %s vol=%.2f strategy=%s 1R=%.5f",
			pos.Ticket, pos.Instrument, pos.Direction, pos.Volume, rec.Strategy.Name, rec.InitialStopDistance)
	}

	for ticket, rec := range m.records {
		if seen[ticket] {
			continue
		}
		delete(m.records, ticket)
		logger.Infof("monitor: ticket=%d on %s no longer reported, closed externally", ticket, rec.Position.Instrument)
		m.settleClosed(ctx, rec, now)
	}
	return live
}

// adopt builds the record for a position seen for the first time. A magic
// tag with no profile mapping is an attribution failure: the position stays
// untouched and the error is surfaced every cycle until profiles catch up.
func (m *Monitor) adopt(pos broker.Position, sym broker.SymbolSnapshot) (*adjust.Record, error) {
	snap := m.profiles.Snapshot()
	name, ok := snap.StrategyByMagic(pos.Magic)
	if !ok {
		return nil, fmt.Errorf("no strategy profile for magic %d", pos.Magic)
	}
	strat := snap.Strategies[name]

	dist := initialStopDistance(pos)
	if dist <= 0 {
		// Position arrived without a protective stop. Fall back to the
		// profile's configured stop distance so R math stays defined.
		if sym.Point > 0 && strat.StopDistancePoints > 0 {
			dist = strat.StopDistancePoints * sym.Point
		}
	}
	if dist <= 0 {
		return nil, fmt.Errorf("cannot derive initial stop distance (stop=%v, profile stop=%v points)", pos.StopLoss, strat.StopDistancePoints)
	}
	return &adjust.Record{
		Position:            pos,
		Strategy:            strat,
		InitialStopDistance: dist,
	}, nil
}

func initialStopDistance(pos broker.Position) float64 {
	if pos.StopLoss <= 0 {
		return 0
	}
	if pos.Direction == broker.DirectionShort {
		return pos.StopLoss - pos.EntryPrice
	}
	return pos.EntryPrice - pos.StopLoss
}

// settleClosed records the realized outcome of an externally closed
// position. Persistence failures degrade to logs; the record is already
// gone either way.
func (m *Monitor) settleClosed(ctx context.Context, rec *adjust.Record, now time.Time) {
	if m.db == nil {
		return
	}
	profit := rec.Position.Profit
	deals, err := m.conn.HistoricalDeals(ctx, rec.Position.OpenedAt, now, rec.Position.Ticket)
	if err != nil {
		logger.Warnf("monitor: ticket=%d deal history unavailable, using last seen profit %.2f: %v",
			rec.Position.Ticket, profit, err)
	} else if len(deals) > 0 {
		profit = 0
		for _, d := range deals {
			profit += d.Profit + d.Commission + d.Swap
		}
	}
	if err := m.db.MarkTradeClosed(ctx, rec.Position.Ticket, profit, now); err != nil {
		logger.Warnf("monitor: ticket=%d close not persisted: %v", rec.Position.Ticket, err)
	}
	m.notifyAsync(fmt.Sprintf("Position closed: %s %s ticket %d, profit %.2f",
		rec.Position.Instrument, rec.Position.Direction, rec.Position.Ticket, profit))
}

func (m *Monitor) evaluateOne(ctx context.Context, rec *adjust.Record, sym broker.SymbolSnapshot, now time.Time) error {
	price := sym.Bid
	if rec.Position.Direction == broker.DirectionShort {
		price = sym.Ask
	}
	band := adjust.SpreadNormal
	if m.spread != nil {
		band = m.spread.Classify(sym)
	}

	m.mu.Lock()
	decision := m.engine.Evaluate(rec, adjust.Context{Symbol: sym, Price: price, Band: band, Now: now})
	m.mu.Unlock()

	if decision.Action == adjust.ActionHold {
		return nil
	}
	return m.apply(ctx, rec, sym, decision, now)
}

// apply executes one decision against the terminal and updates local state
// only after the terminal confirms.
func (m *Monitor) apply(ctx context.Context, rec *adjust.Record, sym broker.SymbolSnapshot, d adjust.Decision, now time.Time) error {
	pos := rec.Position
	oldStop := pos.StopLoss

	switch d.Action {
	case adjust.ActionMoveStop:
		target := d.NewTarget
		if target == 0 {
			target = pos.TakeProfit
		}
		if err := m.conn.ModifyPosition(ctx, pos.Ticket, d.NewStop, target); err != nil {
			return fmt.Errorf("move stop to %.5f: %w", d.NewStop, err)
		}
		m.mu.Lock()
		rec.Position.StopLoss = d.NewStop
		if target > 0 {
			rec.Position.TakeProfit = target
		}
		rec.LastAdjustedAt = now
		m.mu.Unlock()
		logger.Infof("monitor: ticket=%d %s stop %.5f -> %.5f (%s)", pos.Ticket, d.Policy, oldStop, d.NewStop, d.Reason)

	case adjust.ActionPartialClose:
		if err := m.conn.ClosePosition(ctx, pos.Ticket, d.CloseVolume); err != nil {
			return fmt.Errorf("partial close %.2f lots: %w", d.CloseVolume, err)
		}
		m.mu.Lock()
		rec.LastAdjustedAt = now
		m.mu.Unlock()
		logger.Infof("monitor: ticket=%d %s closed %.2f of %.2f lots (%s)", pos.Ticket, d.Policy, d.CloseVolume, pos.Volume, d.Reason)
		m.notifyAsync(fmt.Sprintf("Partial close: %s ticket %d, %.2f lots (%s)", pos.Instrument, pos.Ticket, d.CloseVolume, d.Reason))

	case adjust.ActionCloseFull:
		if err := m.conn.ClosePosition(ctx, pos.Ticket, 0); err != nil {
			return fmt.Errorf("close full: %w", err)
		}
		m.mu.Lock()
		rec.LastAdjustedAt = now
		m.mu.Unlock()
		logger.Infof("monitor: ticket=%d %s closed in full (%s)", pos.Ticket, d.Policy, d.Reason)
		m.notifyAsync(fmt.Sprintf("Closed: %s ticket %d (%s)", pos.Instrument, pos.Ticket, d.Reason))

	default:
		return fmt.Errorf("unknown action %q", d.Action)
	}

	if m.db != nil {
		evt := store.AdjustmentEvent{
			Ticket:      pos.Ticket,
			Instrument:  pos.Instrument,
			Strategy:    rec.Strategy.Name,
			Policy:      d.Policy,
			Action:      string(d.Action),
			OldStop:     oldStop,
			NewStop:     d.NewStop,
			CloseVolume: d.CloseVolume,
			Reason:      d.Reason,
			At:          now,
		}
		if err := m.db.RecordAdjustment(ctx, evt); err != nil {
			logger.Warnf("monitor: ticket=%d adjustment not persisted: %v", pos.Ticket, err)
		}
	}
	return nil
}

func (m *Monitor) notifyAsync(text string) {
	if g, ok := m.notify.(*notifier.Guarded); ok {
		g.SendAsync(text)
		return
	}
	if err := m.notify.SendText(text); err != nil {
		logger.Warnf("monitor: notify failed: %v", err)
	}
}

// Positions returns copies of all tracked positions, sorted by ticket.
func (m *Monitor) Positions() []PositionView {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PositionView, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, PositionView{
			Ticket:         rec.Position.Ticket,
			Instrument:     rec.Position.Instrument,
			Direction:      string(rec.Position.Direction),
			Volume:         rec.Position.Volume,
			EntryPrice:     rec.Position.EntryPrice,
			StopLoss:       rec.Position.StopLoss,
			TakeProfit:     rec.Position.TakeProfit,
			Profit:         rec.Position.Profit,
			Strategy:       rec.Strategy.Name,
			PeakR:          rec.PeakR,
			Breakeven:      rec.BreakevenApplied,
			PartialClosed:  rec.PartialClosed,
			OpenedAt:       rec.Position.OpenedAt,
			LastAdjustedAt: rec.LastAdjustedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}

// TrackedCount reports how many positions are currently tracked.
func (m *Monitor) TrackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
