package status

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"bastion/internal/monitor"
	"bastion/internal/pkg/circuit"
	"bastion/internal/store"
	"bastion/internal/symbols"
)

type fakeSource struct {
	status    symbols.Status
	positions []monitor.PositionView
	stats     map[string]store.StrategyStats
	statsErr  error
}

func (f *fakeSource) Status() symbols.Status            { return f.status }
func (f *fakeSource) Positions() []monitor.PositionView { return f.positions }

func (f *fakeSource) StrategyStats(_ context.Context, name string, windowDays int) (store.StrategyStats, bool, error) {
	stats, ok := f.stats[name]
	if !ok {
		return store.StrategyStats{}, false, nil
	}
	stats.WindowDays = windowDays
	return stats, true, f.statsErr
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

func TestHealthz(t *testing.T) {
	srv := NewServer("", &fakeSource{})
	code, body := get(t, srv.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", gjson.Get(body, "status").String())
}

func TestStatusEndpoint(t *testing.T) {
	src := &fakeSource{status: symbols.Status{
		Instruments: []symbols.InstrumentStatus{{
			Instrument: "XAUUSD",
			Tracked:    2,
			Workers:    []symbols.WorkerStatus{{Strategy: "gold_swing", Cycles: 41}},
		}},
		Breakers:   []circuit.Status{{Name: "broker", State: "closed"}},
		Rejections: map[string]int{"daily_loss_limit": 3},
	}}
	srv := NewServer("", src)

	code, body := get(t, srv.Handler(), "/api/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "XAUUSD", gjson.Get(body, "instruments.0.instrument").String())
	assert.EqualValues(t, 2, gjson.Get(body, "instruments.0.tracked_positions").Int())
	assert.Equal(t, "gold_swing", gjson.Get(body, "instruments.0.workers.0.strategy").String())
	assert.EqualValues(t, 41, gjson.Get(body, "instruments.0.workers.0.cycles").Int())
	assert.EqualValues(t, 3, gjson.Get(body, "risk_rejections.daily_loss_limit").Int())
}

func TestPositionsEndpoint(t *testing.T) {
	src := &fakeSource{positions: []monitor.PositionView{{
		Ticket:     1001,
		Instrument: "EURUSD",
		Direction:  "long",
		Volume:     0.5,
		Strategy:   "eur_scalper",
	}}}
	srv := NewServer("", src)

	code, body := get(t, srv.Handler(), "/api/positions")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1001, gjson.Get(body, "positions.0.ticket").Int())
	assert.Equal(t, "eur_scalper", gjson.Get(body, "positions.0.strategy").String())
}

func TestPositionsEmptyIsArrayNotNull(t *testing.T) {
	srv := NewServer("", &fakeSource{})
	code, body := get(t, srv.Handler(), "/api/positions")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, gjson.Get(body, "positions").IsArray())
	assert.Equal(t, int64(0), int64(len(gjson.Get(body, "positions").Array())))
}

func TestBreakersEndpoint(t *testing.T) {
	src := &fakeSource{status: symbols.Status{
		Breakers: []circuit.Status{
			{Name: "broker", State: "open", Failures: 5},
			{Name: "storage", State: "closed"},
		},
	}}
	srv := NewServer("", src)

	code, body := get(t, srv.Handler(), "/api/breakers")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "open", gjson.Get(body, "breakers.0.state").String())
	assert.EqualValues(t, 5, gjson.Get(body, "breakers.0.failures").Int())
}

func TestStrategyStatsEndpoint(t *testing.T) {
	src := &fakeSource{stats: map[string]store.StrategyStats{
		"gold_swing": {Strategy: "gold_swing", Trades: 12, Wins: 7, NetProfit: 340.50},
	}}
	srv := NewServer("", src)

	code, body := get(t, srv.Handler(), "/api/strategies/gold_swing/stats?window_days=14")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "gold_swing", gjson.Get(body, "strategy").String())
	assert.EqualValues(t, 14, gjson.Get(body, "window_days").Int())
	assert.EqualValues(t, 12, gjson.Get(body, "trades").Int())
	assert.EqualValues(t, 7, gjson.Get(body, "wins").Int())
	assert.InDelta(t, 340.50, gjson.Get(body, "net_profit").Float(), 1e-9)
}

func TestStrategyStatsUnknownStrategy(t *testing.T) {
	srv := NewServer("", &fakeSource{})
	code, _ := get(t, srv.Handler(), "/api/strategies/nope/stats")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStrategyStatsStoreFailure(t *testing.T) {
	src := &fakeSource{
		stats:    map[string]store.StrategyStats{"gold_swing": {Strategy: "gold_swing"}},
		statsErr: errors.New("database locked"),
	}
	srv := NewServer("", src)
	code, body := get(t, srv.Handler(), "/api/strategies/gold_swing/stats")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, gjson.Get(body, "error").String(), "database locked")
}

func TestDefaultAddr(t *testing.T) {
	srv := NewServer("", &fakeSource{})
	assert.Equal(t, ":9985", srv.Addr())
}
