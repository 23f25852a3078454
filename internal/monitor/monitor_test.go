package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion/internal/adjust"
	"bastion/internal/config"
	"bastion/internal/gateway/broker"
	"bastion/internal/gateway/notifier"
	"bastion/internal/profile"
	"bastion/internal/store"
)

type modifyCall struct {
	ticket   int64
	stop, tp float64
}

type closeCall struct {
	ticket int64
	volume float64
}

type fakeConnector struct {
	mu        sync.Mutex
	positions []broker.Position
	symbol    broker.SymbolSnapshot
	deals     []broker.Deal

	modifyErr   error
	modifyCalls []modifyCall
	closeCalls  []closeCall
}

func (f *fakeConnector) Name() string                      { return "fake" }
func (f *fakeConnector) Connect(context.Context) error     { return nil }
func (f *fakeConnector) AccountSnapshot(context.Context) (broker.AccountSnapshot, error) {
	return broker.AccountSnapshot{Balance: 10000, Equity: 10000}, nil
}

func (f *fakeConnector) OpenPositions(_ context.Context, instrument string) ([]broker.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]broker.Position, 0, len(f.positions))
	for _, p := range f.positions {
		if instrument == "" || p.Instrument == instrument {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeConnector) SymbolSnapshot(context.Context, string) (broker.SymbolSnapshot, error) {
	return f.symbol, nil
}

func (f *fakeConnector) PlaceOrder(context.Context, broker.OrderRequest) (broker.OrderResult, error) {
	return broker.OrderResult{}, errors.New("not implemented")
}

func (f *fakeConnector) ModifyPosition(_ context.Context, ticket int64, sl, tp float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modifyErr != nil {
		return f.modifyErr
	}
	f.modifyCalls = append(f.modifyCalls, modifyCall{ticket: ticket, stop: sl, tp: tp})
	return nil
}

func (f *fakeConnector) ClosePosition(_ context.Context, ticket int64, volume float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls = append(f.closeCalls, closeCall{ticket: ticket, volume: volume})
	return nil
}

func (f *fakeConnector) HistoricalDeals(_ context.Context, _, _ time.Time, position int64) ([]broker.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broker.Deal
	for _, d := range f.deals {
		if position <= 0 || d.Position == position {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeStore struct {
	mu          sync.Mutex
	closed      map[int64]float64
	adjustments []store.AdjustmentEvent
}

func newFakeStore() *fakeStore { return &fakeStore{closed: make(map[int64]float64)} }

func (s *fakeStore) SaveTrade(context.Context, store.TradeRecord) error { return nil }

func (s *fakeStore) MarkTradeClosed(_ context.Context, ticket int64, profit float64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[ticket] = profit
	return nil
}

func (s *fakeStore) RecordAdjustment(_ context.Context, evt store.AdjustmentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustments = append(s.adjustments, evt)
	return nil
}

func (s *fakeStore) DailyPnL(context.Context, time.Time) (float64, error) { return 0, nil }

func (s *fakeStore) StrategyStats(_ context.Context, strategy string, windowDays int) (store.StrategyStats, error) {
	return store.StrategyStats{Strategy: strategy, WindowDays: windowDays}, nil
}

func (s *fakeStore) Close() error { return nil }

func testProfiles(t *testing.T) *profile.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `
strategies:
  gold_swing:
    magic: 90010
    instruments: [XAUUSD]
    expected_hold_minutes: 240
    trailing_stop_points: 2000
    stop_distance_points: 2000
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	r, err := profile.NewRegistry(path)
	require.NoError(t, err)
	return r
}

func goldQuote(bid float64) broker.SymbolSnapshot {
	return broker.SymbolSnapshot{
		Instrument: "XAUUSD",
		Bid:        bid,
		Ask:        bid + 0.30,
		Point:      0.01,
		Digits:     2,
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
		TickValue:  0.01,
	}
}

func goldPosition(ticket int64, magic int) broker.Position {
	return broker.Position{
		Ticket:     ticket,
		Instrument: "XAUUSD",
		Direction:  broker.DirectionLong,
		Volume:     1.0,
		EntryPrice: 2000.00,
		StopLoss:   1980.00,
		OpenedAt:   time.Now(),
		Magic:      magic,
	}
}

func newTestMonitor(t *testing.T, conn *fakeConnector, db store.Store) *Monitor {
	t.Helper()
	engine := adjust.NewEngine(config.AdjustConfig{
		BreakevenTriggerR:    1.0,
		PartialCloseTriggerR: 10,
		ProfitRetraceTrigger: 0.3,
		ProfitLockRatio:      0.5,
		OvertimeLockRatio:    0.9,
	}, nil)
	return New("XAUUSD", config.MonitorConfig{IntervalSeconds: 15},
		conn, engine, nil, testProfiles(t), db, notifier.Nop{}, nil)
}

func TestCycleAdoptsAndAppliesBreakeven(t *testing.T) {
	conn := &fakeConnector{
		positions: []broker.Position{goldPosition(1001, 90010)},
		symbol:    goldQuote(2020.00),
	}
	db := newFakeStore()
	m := newTestMonitor(t, conn, db)

	require.NoError(t, m.cycle(context.Background()))
	assert.Equal(t, 1, m.TrackedCount())

	require.Len(t, conn.modifyCalls, 1)
	assert.Equal(t, int64(1001), conn.modifyCalls[0].ticket)
	assert.InDelta(t, 2000.00, conn.modifyCalls[0].stop, 1e-9)

	views := m.Positions()
	require.Len(t, views, 1)
	assert.InDelta(t, 2000.00, views[0].StopLoss, 1e-9, "local record updated after broker confirms")
	assert.Equal(t, "gold_swing", views[0].Strategy)

	require.Len(t, db.adjustments, 1)
	assert.Equal(t, "breakeven", db.adjustments[0].Policy)
	assert.Equal(t, string(adjust.ActionMoveStop), db.adjustments[0].Action)
}

func TestCycleSkipsUnmappedMagic(t *testing.T) {
	conn := &fakeConnector{
		positions: []broker.Position{goldPosition(2002, 55555)},
		symbol:    goldQuote(2020.00),
	}
	m := newTestMonitor(t, conn, newFakeStore())

	require.NoError(t, m.cycle(context.Background()))
	assert.Zero(t, m.TrackedCount(), "unattributed position stays untouched")
	assert.Empty(t, conn.modifyCalls)
}

func TestCycleRemovesVanishedTicketWithoutAdjusting(t *testing.T) {
	conn := &fakeConnector{
		positions: []broker.Position{goldPosition(3003, 90010)},
		symbol:    goldQuote(1995.00), // underwater, nothing to adjust
	}
	db := newFakeStore()
	m := newTestMonitor(t, conn, db)

	require.NoError(t, m.cycle(context.Background()))
	require.Equal(t, 1, m.TrackedCount())

	conn.mu.Lock()
	conn.positions = nil
	conn.deals = []broker.Deal{{Position: 3003, Profit: 42.5, Commission: -0.5}}
	conn.mu.Unlock()

	require.NoError(t, m.cycle(context.Background()))
	assert.Zero(t, m.TrackedCount())
	assert.Empty(t, conn.modifyCalls, "vanished position gets no adjustment call")
	assert.Empty(t, conn.closeCalls)
	assert.InDelta(t, 42.0, db.closed[3003], 1e-9, "realized outcome settled from deal history")
}

func TestCycleFailedModifyKeepsRecordForNextCycle(t *testing.T) {
	conn := &fakeConnector{
		positions: []broker.Position{goldPosition(4004, 90010)},
		symbol:    goldQuote(2020.00),
		modifyErr: errors.New("requote"),
	}
	m := newTestMonitor(t, conn, newFakeStore())

	require.NoError(t, m.cycle(context.Background()))
	require.Equal(t, 1, m.TrackedCount())

	views := m.Positions()
	require.Len(t, views, 1)
	assert.InDelta(t, 1980.00, views[0].StopLoss, 1e-9, "stop unchanged after failed modify")

	// Broker recovers: the move is retried on the next cycle.
	conn.mu.Lock()
	conn.modifyErr = nil
	conn.mu.Unlock()

	require.NoError(t, m.cycle(context.Background()))
	require.Len(t, conn.modifyCalls, 1)
	assert.InDelta(t, 2000.00, conn.modifyCalls[0].stop, 1e-9)
}
