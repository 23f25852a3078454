package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validProfiles = `
strategies:
  gold_swing:
    magic: 90010
    instruments: [XAUUSD]
    expected_hold_minutes: 240
    trailing_stop_points: 2000
    stop_distance_points: 2000
    min_confidence: 0.6
    enabled: true
  eur_scalper:
    magic: 90020
    instruments: [eurusd]
    expected_hold_minutes: 5
    stop_distance_points: 100
    enabled: false
`

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistryLoadsAndNormalizes(t *testing.T) {
	r, err := NewRegistry(writeProfiles(t, validProfiles))
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, []string{"eur_scalper", "gold_swing"}, snap.Names())

	gold, ok := r.Strategy("gold_swing")
	require.True(t, ok)
	assert.Equal(t, 90010, gold.Magic)
	assert.True(t, gold.Enabled)

	scalper, ok := r.Strategy("eur_scalper")
	require.True(t, ok)
	assert.Equal(t, []string{"EURUSD"}, scalper.Instruments, "instruments are uppercased")
	assert.False(t, scalper.Enabled)
}

func TestRegistryMagicAttribution(t *testing.T) {
	r, err := NewRegistry(writeProfiles(t, validProfiles))
	require.NoError(t, err)

	snap := r.Snapshot()
	name, ok := snap.StrategyByMagic(90020)
	require.True(t, ok)
	assert.Equal(t, "eur_scalper", name)

	_, ok = snap.StrategyByMagic(12345)
	assert.False(t, ok, "unmapped magic must be reported, never defaulted")
}

func TestRegistryRejectsMissingStopDistance(t *testing.T) {
	_, err := NewRegistry(writeProfiles(t, `
strategies:
  broken:
    magic: 1
    instruments: [XAUUSD]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestRegistryRejectsDuplicateMagic(t *testing.T) {
	_, err := NewRegistry(writeProfiles(t, `
strategies:
  one:
    magic: 7
    instruments: [XAUUSD]
    stop_distance_points: 100
  two:
    magic: 7
    instruments: [EURUSD]
    stop_distance_points: 100
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic 7 already used")
}

func TestRegistryRejectsEmptyFile(t *testing.T) {
	_, err := NewRegistry(writeProfiles(t, "strategies: {}\n"))
	require.Error(t, err)
}

func TestRegistryDefaults(t *testing.T) {
	r, err := NewRegistry(writeProfiles(t, `
strategies:
  bare:
    magic: 9
    instruments: [XAUUSD]
    stop_distance_points: 100
`))
	require.NoError(t, err)

	s, ok := r.Strategy("bare")
	require.True(t, ok)
	assert.Equal(t, 60, s.ExpectedHoldMinutes)
	assert.InDelta(t, 0.5, s.MinConfidence, 1e-9)
}
