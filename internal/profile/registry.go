// Package profile manages strategy profiles: per-strategy tuning (expected
// hold time, trailing distance, risk overrides) plus the validated
// magic-number mapping that attributes a reported position to its
// originating strategy.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"bastion/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Strategy describes one trading strategy's tuning.
type Strategy struct {
	Name                 string         `mapstructure:"name" yaml:"name" json:"name"`
	Magic                int            `mapstructure:"magic" yaml:"magic" json:"magic"`
	Instruments          []string       `mapstructure:"instruments" yaml:"instruments" json:"instruments"`
	ExpectedHoldMinutes  int            `mapstructure:"expected_hold_minutes" yaml:"expected_hold_minutes" json:"expected_hold_minutes"`
	TrailingStopPoints   float64        `mapstructure:"trailing_stop_points" yaml:"trailing_stop_points" json:"trailing_stop_points"`
	StopDistancePoints   float64        `mapstructure:"stop_distance_points" yaml:"stop_distance_points" json:"stop_distance_points"`
	TargetDistancePoints float64        `mapstructure:"target_distance_points" yaml:"target_distance_points" json:"target_distance_points"`
	MinConfidence        float64        `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
	RiskPerTrade         float64        `mapstructure:"risk_per_trade" yaml:"risk_per_trade" json:"risk_per_trade,omitempty"`
	Signal               SignalSettings `mapstructure:"signal" yaml:"signal" json:"signal"`
	Enabled              bool           `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// SignalSettings parameterize the external signal provider.
type SignalSettings struct {
	FastPeriod int `mapstructure:"fast_period" yaml:"fast_period" json:"fast_period,omitempty"`
	SlowPeriod int `mapstructure:"slow_period" yaml:"slow_period" json:"slow_period,omitempty"`
}

// ExpectedHold returns the expected holding time as a duration.
func (s Strategy) ExpectedHold() time.Duration {
	return time.Duration(s.ExpectedHoldMinutes) * time.Minute
}

type fileConfig struct {
	Strategies map[string]Strategy `mapstructure:"strategies" yaml:"strategies"`
}

// readProfileFile decodes the YAML profile file directly; viper is only used
// for change watching so decode errors carry precise yaml positions.
func readProfileFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read profile config failed: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse profile config failed: %w", err)
	}
	return cfg, nil
}

// Snapshot is an immutable view of the loaded profiles.
type Snapshot struct {
	Version    int64
	LoadedAt   time.Time
	Strategies map[string]Strategy
	byMagic    map[int]string
}

// StrategyByMagic resolves a broker magic tag to its strategy name. A
// missing mapping is a reportable error state at the call site, never a
// silent default.
func (s Snapshot) StrategyByMagic(magic int) (string, bool) {
	name, ok := s.byMagic[magic]
	return name, ok
}

// Names lists strategy names, sorted.
func (s Snapshot) Names() []string {
	out := make([]string, 0, len(s.Strategies))
	for name := range s.Strategies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ChangeListener fires after a successful hot reload.
type ChangeListener func(Snapshot)

// Registry loads the profile file, validates every entry against the
// built-in schema, and watches the file for changes. A reload that fails
// validation is rejected and the previous snapshot stays active.
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profile config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("profile reload rejected, keeping previous snapshot: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot returns the active profile set.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Strategy returns the profile for name.
func (r *Registry) Strategy(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshot.Strategies[strings.TrimSpace(name)]
	return s, ok
}

// OnChange registers a listener invoked after each successful reload.
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readProfileFile(r.path)
	if err != nil {
		return err
	}
	strategies := make(map[string]Strategy, len(cfg.Strategies))
	byMagic := make(map[int]string, len(cfg.Strategies))
	for name, s := range cfg.Strategies {
		norm, err := normalizeStrategy(name, s)
		if err != nil {
			return err
		}
		if err := validateAgainstSchema(norm); err != nil {
			return fmt.Errorf("profile %s: %w", norm.Name, err)
		}
		if prev, dup := byMagic[norm.Magic]; dup {
			return fmt.Errorf("profile %s: magic %d already used by %s", norm.Name, norm.Magic, prev)
		}
		byMagic[norm.Magic] = norm.Name
		strategies[norm.Name] = norm
	}
	if len(strategies) == 0 {
		return fmt.Errorf("profile file %s defines no strategies", r.path)
	}

	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:    r.snapshot.Version + 1,
		LoadedAt:   time.Now(),
		Strategies: strategies,
		byMagic:    byMagic,
	}
	r.mu.Unlock()
	logger.Infof("profile registry loaded %d strategies from %s", len(strategies), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := r.snapshot
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("profile listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func normalizeStrategy(name string, s Strategy) (Strategy, error) {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		s.Name = strings.TrimSpace(name)
	}
	if s.Name == "" {
		return s, fmt.Errorf("profile entry with empty name")
	}
	for i, instr := range s.Instruments {
		s.Instruments[i] = strings.ToUpper(strings.TrimSpace(instr))
	}
	if s.ExpectedHoldMinutes <= 0 {
		s.ExpectedHoldMinutes = 60
	}
	if s.MinConfidence <= 0 {
		s.MinConfidence = 0.5
	}
	return s, nil
}
