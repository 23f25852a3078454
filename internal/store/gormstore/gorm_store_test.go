package gormstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion/internal/store"
	"bastion/internal/store/model"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func trade(ticket int64, strategy string) store.TradeRecord {
	return store.TradeRecord{
		Ticket:     ticket,
		Instrument: "XAUUSD",
		Strategy:   strategy,
		Direction:  "long",
		Volume:     0.5,
		EntryPrice: 2000.00,
		StopLoss:   1980.00,
		OpenedAt:   time.Now().UTC(),
	}
}

func TestSaveTradeAssignsIDAndDefaultStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := trade(1001, "gold_swing")
	rec.Details = map[string]any{"signal": "ema cross up", "confidence": 0.8}
	require.NoError(t, s.SaveTrade(ctx, rec))

	var m model.TradeModel
	require.NoError(t, s.db.Where("ticket = ?", int64(1001)).First(&m).Error)
	assert.NotEmpty(t, m.ID, "uuid assigned at save")
	assert.Equal(t, "open", m.Status)

	var details map[string]any
	require.NoError(t, json.Unmarshal(m.Details, &details))
	assert.Equal(t, "ema cross up", details["signal"])
	assert.InDelta(t, 0.8, details["confidence"].(float64), 1e-9)
}

func TestSaveTradeRejectsDuplicateTicket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTrade(ctx, trade(1002, "gold_swing")))
	require.Error(t, s.SaveTrade(ctx, trade(1002, "gold_swing")))
}

func TestMarkTradeClosedUpdatesRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTrade(ctx, trade(2001, "gold_swing")))
	closedAt := time.Now().UTC()
	require.NoError(t, s.MarkTradeClosed(ctx, 2001, 42.50, closedAt))

	var m model.TradeModel
	require.NoError(t, s.db.Where("ticket = ?", int64(2001)).First(&m).Error)
	assert.Equal(t, "closed", m.Status)
	assert.InDelta(t, 42.50, m.Profit, 1e-9)
	require.NotNil(t, m.ClosedAt)
	assert.WithinDuration(t, closedAt, *m.ClosedAt, time.Second)
}

func TestMarkTradeClosedUnknownTicket(t *testing.T) {
	s := newTestStore(t)
	err := s.MarkTradeClosed(context.Background(), 99999, 10, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ticket 99999 not found")
}

func TestDailyPnLSumsOnlyTheUTCDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	close := func(ticket int64, profit float64, at time.Time) {
		require.NoError(t, s.SaveTrade(ctx, trade(ticket, "gold_swing")))
		require.NoError(t, s.MarkTradeClosed(ctx, ticket, profit, at))
	}
	close(3001, 100.00, day.Add(1*time.Hour))
	close(3002, -30.00, day.Add(23*time.Hour+59*time.Minute))
	close(3003, 500.00, day.Add(-1*time.Minute)) // previous day
	close(3004, 500.00, day.Add(24*time.Hour))   // next day
	require.NoError(t, s.SaveTrade(ctx, trade(3005, "gold_swing"))) // still open

	// Any instant inside the day selects the whole UTC day.
	pnl, err := s.DailyPnL(ctx, day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 70.00, pnl, 1e-9)
}

func TestDailyPnLEmptyDayIsZero(t *testing.T) {
	s := newTestStore(t)
	pnl, err := s.DailyPnL(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, pnl)
}

func TestStrategyStatsWindowAndAttribution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	close := func(ticket int64, strategy string, profit float64, at time.Time) {
		require.NoError(t, s.SaveTrade(ctx, trade(ticket, strategy)))
		require.NoError(t, s.MarkTradeClosed(ctx, ticket, profit, at))
	}
	close(4001, "gold_swing", 80.00, now.AddDate(0, 0, -1))
	close(4002, "gold_swing", -20.00, now.AddDate(0, 0, -5))
	close(4003, "gold_swing", 15.00, now.AddDate(0, 0, -45)) // outside window
	close(4004, "eur_scalper", 999.00, now.AddDate(0, 0, -1))

	stats, err := s.StrategyStats(ctx, "gold_swing", 30)
	require.NoError(t, err)
	assert.Equal(t, "gold_swing", stats.Strategy)
	assert.Equal(t, 30, stats.WindowDays)
	assert.Equal(t, 2, stats.Trades)
	assert.Equal(t, 1, stats.Wins)
	assert.InDelta(t, 60.00, stats.NetProfit, 1e-9)
}

func TestStrategyStatsDefaultWindow(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.StrategyStats(context.Background(), "gold_swing", 0)
	require.NoError(t, err)
	assert.Equal(t, 30, stats.WindowDays)
	assert.Zero(t, stats.Trades)
}

func TestRecordAdjustmentDefaultsTimestamp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordAdjustment(context.Background(), store.AdjustmentEvent{
		Ticket:     5001,
		Instrument: "XAUUSD",
		Strategy:   "gold_swing",
		Policy:     "breakeven",
		Action:     "MOVE_STOP",
		OldStop:    1980.00,
		NewStop:    2000.00,
	}))

	var m model.AdjustmentEventModel
	require.NoError(t, s.db.Where("ticket = ?", int64(5001)).First(&m).Error)
	assert.Equal(t, "breakeven", m.Policy)
	assert.WithinDuration(t, time.Now(), m.At, 5*time.Second)
}
