package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
instruments: [xauusd, eurusd]
broker:
  backend: bridge
  bridge:
    api_url: http://localhost:5005/api/v1
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"XAUUSD", "EURUSD"}, cfg.Instruments, "instruments are uppercased")
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9985", cfg.App.HTTPAddr)
	assert.InDelta(t, 0.01, cfg.Risk.RiskPerTrade, 1e-12)
	assert.Equal(t, 2, cfg.Risk.MaxPositionsPerInstrument)
	assert.InDelta(t, 1.0, cfg.Adjust.BreakevenTriggerR, 1e-12)
	assert.InDelta(t, 3.0, cfg.Spread.ElevatedPips, 1e-12)
	assert.Equal(t, 15, cfg.Monitor.IntervalSeconds)
	assert.Equal(t, 30, cfg.Worker.IntervalSeconds)
	assert.Equal(t, 600, cfg.Watchdog.TimeoutSeconds)
	assert.Equal(t, "configs/profiles.yaml", cfg.Profiles.Path)
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
instruments: [XAUUSD]
broker:
  backend: bridge
  bridge:
    api_url: http://localhost:5005/api/v1
risk:
  risk_per_trade: 0.02
  max_positions_total: 3
worker:
  interval_seconds: 10
`))
	require.NoError(t, err)
	assert.InDelta(t, 0.02, cfg.Risk.RiskPerTrade, 1e-12)
	assert.Equal(t, 3, cfg.Risk.MaxPositionsTotal)
	assert.Equal(t, 10, cfg.Worker.IntervalSeconds)
}

func TestLoadRejectsEmptyInstruments(t *testing.T) {
	_, err := Load(writeConfig(t, `
instruments: []
broker:
  backend: bridge
  bridge:
    api_url: http://localhost:5005/api/v1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instruments")
}

func TestLoadRejectsDuplicateInstruments(t *testing.T) {
	_, err := Load(writeConfig(t, `
instruments: [EURUSD, eurusd]
broker:
  backend: bridge
  bridge:
    api_url: http://localhost:5005/api/v1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate instrument EURUSD")
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	_, err := Load(writeConfig(t, `
instruments: [EURUSD]
broker:
  backend: kraken
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported broker backend")
}

func TestLoadRejectsBinanceWithoutKeys(t *testing.T) {
	_, err := Load(writeConfig(t, `
instruments: [BTCUSDT]
broker:
  backend: binance
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestLoadRejectsExcessiveRiskPerTrade(t *testing.T) {
	_, err := Load(writeConfig(t, `
instruments: [EURUSD]
broker:
  backend: bridge
  bridge:
    api_url: http://localhost:5005/api/v1
risk:
  risk_per_trade: 0.5
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sanity cap")
}

func TestLoadRejectsNonIncreasingSpreadBands(t *testing.T) {
	_, err := Load(writeConfig(t, `
instruments: [EURUSD]
broker:
  backend: bridge
  bridge:
    api_url: http://localhost:5005/api/v1
spread:
  elevated_pips: 10
  extreme_pips: 8
  prohibitive_pips: 15
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly increasing")
}

func TestLoadRejectsEnabledTelegramWithoutToken(t *testing.T) {
	_, err := Load(writeConfig(t, `
instruments: [EURUSD]
broker:
  backend: bridge
  bridge:
    api_url: http://localhost:5005/api/v1
notify:
  telegram:
    enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
