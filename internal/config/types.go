package config

// Config is the main configuration carrier for bastion.
type Config struct {
	App      AppConfig      `toml:"app"`
	Broker   BrokerConfig   `toml:"broker"`
	Risk     RiskConfig     `toml:"risk"`
	Adjust   AdjustConfig   `toml:"adjust"`
	Spread   SpreadConfig   `toml:"spread"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Worker   WorkerConfig   `toml:"worker"`
	Watchdog WatchdogConfig `toml:"watchdog"`
	Notify   NotifyConfig   `toml:"notify"`
	Storage  StorageConfig  `toml:"storage"`
	Profiles ProfilesConfig `toml:"profiles"`

	Instruments []string `toml:"instruments"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// BrokerConfig selects and configures the terminal backend.
type BrokerConfig struct {
	Backend string        `toml:"backend"` // "bridge" | "binance"
	Bridge  BridgeConfig  `toml:"bridge"`
	Binance BinanceConfig `toml:"binance"`
}

// BridgeConfig describes the HTTP terminal bridge session.
type BridgeConfig struct {
	APIURL             string `toml:"api_url"`
	AuthToken          string `toml:"auth_token"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type BinanceConfig struct {
	APIKey         string `toml:"api_key"`
	APISecret      string `toml:"api_secret"`
	RESTBaseURL    string `toml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// RiskConfig bounds what the RiskGate lets through.
type RiskConfig struct {
	RiskPerTrade              float64             `toml:"risk_per_trade"` // equity fraction, 0~1
	MaxPositionsPerInstrument int                 `toml:"max_positions_per_instrument"`
	MaxPositionsTotal         int                 `toml:"max_positions_total"`
	DailyLossLimitPct         float64             `toml:"daily_loss_limit_pct"`
	MaxDrawdownPct            float64             `toml:"max_drawdown_pct"`
	MaxCorrelatedExposure     float64             `toml:"max_correlated_exposure"` // summed lots per group
	CorrelationGroups         map[string][]string `toml:"correlation_groups"`
}

// AdjustConfig tunes the position adjustment policies.
type AdjustConfig struct {
	BreakevenTriggerR     float64 `toml:"breakeven_trigger_r"`
	BreakevenOffsetPoints float64 `toml:"breakeven_offset_points"`
	PartialCloseTriggerR  float64 `toml:"partial_close_trigger_r"`
	PartialCloseRatio     float64 `toml:"partial_close_ratio"`
	ProfitRetraceTrigger  float64 `toml:"profit_retrace_trigger"` // fraction of peak given back
	ProfitLockRatio       float64 `toml:"profit_lock_ratio"`      // fraction of peak locked on retrace
	OvertimeLockRatio     float64 `toml:"overtime_lock_ratio"`    // fraction of peak locked when overtime
}

// SpreadConfig classifies spread into bands, in pips.
type SpreadConfig struct {
	ElevatedPips    float64 `toml:"elevated_pips"`
	ExtremePips     float64 `toml:"extreme_pips"`
	ProhibitivePips float64 `toml:"prohibitive_pips"`

	ElevatedPenalty    float64 `toml:"elevated_penalty"`
	ExtremePenalty     float64 `toml:"extreme_penalty"`
	ProhibitivePenalty float64 `toml:"prohibitive_penalty"`
}

type MonitorConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

type WorkerConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

type WatchdogConfig struct {
	PollSeconds    int `toml:"poll_seconds"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type StorageConfig struct {
	Path string `toml:"path"`
}

// ProfilesConfig points at the hot-reloadable strategy profile file.
type ProfilesConfig struct {
	Path string `toml:"path"`
}
