// Package symbols is the composition root for the trading loops: one
// position monitor per traded instrument, one strategy worker per
// strategy and instrument pair, all sharing the guarded connector, risk
// gate, persistence and notifier.
package symbols

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"bastion/internal/adjust"
	"bastion/internal/config"
	"bastion/internal/gateway/broker"
	"bastion/internal/gateway/notifier"
	"bastion/internal/logger"
	"bastion/internal/monitor"
	"bastion/internal/pkg/circuit"
	"bastion/internal/profile"
	"bastion/internal/risk"
	"bastion/internal/store"
	"bastion/internal/watchdog"
	"bastion/internal/worker"
)

// SymbolContext groups the loops attached to one instrument.
type SymbolContext struct {
	Instrument string
	Monitor    *monitor.Monitor
	Workers    []*worker.StrategyWorker
}

// Manager owns every long-running loop and restarts a loop when the
// watchdog flags it frozen.
type Manager struct {
	cfg      *config.Config
	conn     broker.Connector
	gate     *risk.Gate
	engine   *adjust.Engine
	spread   *adjust.SpreadClassifier
	profiles *profile.Registry
	db       store.Store
	notify   notifier.TextNotifier
	dog      *watchdog.Watchdog
	breakers *circuit.Registry
	provider worker.SignalProvider

	contexts []*SymbolContext

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	group   *errgroup.Group
	rootCtx context.Context
}

func NewManager(cfg *config.Config, conn broker.Connector, gate *risk.Gate, engine *adjust.Engine, spread *adjust.SpreadClassifier, profiles *profile.Registry, db store.Store, notify notifier.TextNotifier, dog *watchdog.Watchdog, breakers *circuit.Registry, provider worker.SignalProvider) (*Manager, error) {
	if len(cfg.Instruments) == 0 {
		return nil, fmt.Errorf("symbols: no instruments configured")
	}
	m := &Manager{
		cfg:      cfg,
		conn:     conn,
		gate:     gate,
		engine:   engine,
		spread:   spread,
		profiles: profiles,
		db:       db,
		notify:   notify,
		dog:      dog,
		breakers: breakers,
		provider: provider,
		cancels:  make(map[string]context.CancelFunc),
	}
	m.build()
	return m, nil
}

// build assembles one SymbolContext per instrument from the active profile
// snapshot. Strategies added by a later hot reload need a restart to gain
// workers; tuning changes apply live.
func (m *Manager) build() {
	snap := m.profiles.Snapshot()
	for _, instrument := range m.cfg.Instruments {
		sc := &SymbolContext{
			Instrument: instrument,
			Monitor:    monitor.New(instrument, m.cfg.Monitor, m.conn, m.engine, m.spread, m.profiles, m.db, m.notify, m.dog),
		}
		for _, name := range snap.Names() {
			strat := snap.Strategies[name]
			if !strat.Enabled || !tradesInstrument(strat, instrument) {
				continue
			}
			sc.Workers = append(sc.Workers,
				worker.New(name, instrument, m.cfg.Worker, m.profiles, m.provider, m.conn, m.gate, m.spread, m.db, m.notify, m.dog))
		}
		m.contexts = append(m.contexts, sc)
	}

	m.profiles.OnChange(func(snap profile.Snapshot) {
		logger.Infof("symbols: profiles reloaded (version %d); new strategies require a restart to gain workers", snap.Version)
	})
}

func tradesInstrument(strat profile.Strategy, instrument string) bool {
	for _, s := range strat.Instruments {
		if s == instrument {
			return true
		}
	}
	return false
}

// Run starts every loop plus the watchdog poller and blocks until ctx is
// cancelled and all loops have exited.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	m.mu.Lock()
	m.group = g
	m.rootCtx = gctx
	m.mu.Unlock()

	g.Go(func() error {
		m.dog.Run(gctx)
		return nil
	})

	for _, sc := range m.contexts {
		mon := sc.Monitor
		m.launch(mon.HeartbeatName(), mon.Run)
		for _, w := range sc.Workers {
			wk := w
			m.launch(wk.HeartbeatName(), wk.Run)
		}
	}

	logger.Infof("symbols: %d instruments, %d loops running", len(m.contexts), m.loopCount())
	return g.Wait()
}

func (m *Manager) loopCount() int {
	n := 0
	for _, sc := range m.contexts {
		n += 1 + len(sc.Workers)
	}
	return n
}

// launch starts runFn under its own cancellable child context and registers
// it with the watchdog. The recovery callback cancels the stuck loop's
// context and starts a replacement; a truly deadlocked goroutine is
// abandoned, not unblocked.
func (m *Manager) launch(name string, runFn func(ctx context.Context)) {
	m.mu.Lock()
	g, root := m.group, m.rootCtx
	loopCtx, cancel := context.WithCancel(root)
	m.cancels[name] = cancel
	m.mu.Unlock()

	m.dog.Register(name, func(string) {
		m.restart(name, runFn)
	})

	g.Go(func() error {
		runFn(loopCtx)
		return nil
	})
}

func (m *Manager) restart(name string, runFn func(ctx context.Context)) {
	m.mu.Lock()
	if cancel, ok := m.cancels[name]; ok {
		cancel()
	}
	root := m.rootCtx
	m.mu.Unlock()

	if root == nil || root.Err() != nil {
		return
	}
	logger.Warnf("symbols: restarting frozen loop %s", name)
	m.launch(name, runFn)
}

// Status is the operator-facing snapshot of the whole system.
type Status struct {
	Instruments []InstrumentStatus        `json:"instruments"`
	Liveness    []watchdog.LivenessStatus `json:"liveness"`
	Breakers    []circuit.Status          `json:"breakers"`
	Rejections  map[string]int            `json:"risk_rejections"`
}

// InstrumentStatus summarizes one instrument's loops.
type InstrumentStatus struct {
	Instrument string         `json:"instrument"`
	Tracked    int            `json:"tracked_positions"`
	Workers    []WorkerStatus `json:"workers"`
}

// WorkerStatus summarizes one strategy worker.
type WorkerStatus struct {
	Strategy string `json:"strategy"`
	Cycles   int64  `json:"cycles"`
}

// Status assembles the full status snapshot.
func (m *Manager) Status() Status {
	st := Status{
		Liveness:   m.dog.Status(),
		Breakers:   m.breakers.StatusTable(),
		Rejections: m.gate.RejectionCounts(),
	}
	for _, sc := range m.contexts {
		is := InstrumentStatus{
			Instrument: sc.Instrument,
			Tracked:    sc.Monitor.TrackedCount(),
		}
		for _, w := range sc.Workers {
			is.Workers = append(is.Workers, WorkerStatus{Strategy: w.Strategy(), Cycles: w.Cycles()})
		}
		st.Instruments = append(st.Instruments, is)
	}
	return st
}

// StrategyStats returns realized results for one configured strategy. The
// second return is false when the name is not in the active profile set.
func (m *Manager) StrategyStats(ctx context.Context, name string, windowDays int) (store.StrategyStats, bool, error) {
	if _, ok := m.profiles.Strategy(name); !ok {
		return store.StrategyStats{}, false, nil
	}
	stats, err := m.db.StrategyStats(ctx, name, windowDays)
	return stats, true, err
}

// Positions lists tracked positions across every instrument.
func (m *Manager) Positions() []monitor.PositionView {
	var out []monitor.PositionView
	for _, sc := range m.contexts {
		out = append(out, sc.Monitor.Positions()...)
	}
	return out
}
