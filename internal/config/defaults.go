package config

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9985"
	defaultBrokerBackend   = "bridge"
	defaultBridgeAPI       = "http://terminal-bridge:5005/api/v1"
	defaultBridgeTimeout   = 10
	defaultBinanceREST     = "https://fapi.binance.com"
	defaultBinanceTimeout  = 15
	defaultRiskPerTrade    = 0.01
	defaultMaxPerInstr     = 2
	defaultMaxTotal        = 6
	defaultDailyLossPct    = 0.05
	defaultMaxDrawdownPct  = 0.15
	defaultMaxCorrExposure = 1.0
	defaultBreakevenR      = 1.0
	defaultPartialTriggerR = 1.5
	defaultPartialRatio    = 0.5
	defaultRetraceTrigger  = 0.30
	defaultProfitLock      = 0.60
	defaultOvertimeLock    = 0.90
	defaultSpreadElevated  = 3.0
	defaultSpreadExtreme   = 8.0
	defaultSpreadProhibit  = 15.0
	defaultElevatedPen     = 0.10
	defaultExtremePen      = 0.20
	defaultProhibitPen     = 0.30
	defaultMonitorInterval = 15
	defaultWorkerInterval  = 30
	defaultWatchdogPoll    = 30
	defaultWatchdogTimeout = 600
	defaultStoragePath     = "/data/db/bastion.db"
	defaultProfilesPath    = "configs/profiles.yaml"
)

// applyDefaults fills unset fields on all sub-configs.
func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if c.Broker.Backend == "" {
		c.Broker.Backend = defaultBrokerBackend
	}
	if c.Broker.Bridge.APIURL == "" {
		c.Broker.Bridge.APIURL = defaultBridgeAPI
	}
	if c.Broker.Bridge.TimeoutSeconds <= 0 {
		c.Broker.Bridge.TimeoutSeconds = defaultBridgeTimeout
	}
	if c.Broker.Binance.RESTBaseURL == "" {
		c.Broker.Binance.RESTBaseURL = defaultBinanceREST
	}
	if c.Broker.Binance.TimeoutSeconds <= 0 {
		c.Broker.Binance.TimeoutSeconds = defaultBinanceTimeout
	}
	if c.Risk.RiskPerTrade <= 0 {
		c.Risk.RiskPerTrade = defaultRiskPerTrade
	}
	if c.Risk.MaxPositionsPerInstrument <= 0 {
		c.Risk.MaxPositionsPerInstrument = defaultMaxPerInstr
	}
	if c.Risk.MaxPositionsTotal <= 0 {
		c.Risk.MaxPositionsTotal = defaultMaxTotal
	}
	if c.Risk.DailyLossLimitPct <= 0 {
		c.Risk.DailyLossLimitPct = defaultDailyLossPct
	}
	if c.Risk.MaxDrawdownPct <= 0 {
		c.Risk.MaxDrawdownPct = defaultMaxDrawdownPct
	}
	if c.Risk.MaxCorrelatedExposure <= 0 {
		c.Risk.MaxCorrelatedExposure = defaultMaxCorrExposure
	}
	if c.Adjust.BreakevenTriggerR <= 0 {
		c.Adjust.BreakevenTriggerR = defaultBreakevenR
	}
	if c.Adjust.PartialCloseTriggerR <= 0 {
		c.Adjust.PartialCloseTriggerR = defaultPartialTriggerR
	}
	if c.Adjust.PartialCloseRatio <= 0 {
		c.Adjust.PartialCloseRatio = defaultPartialRatio
	}
	if c.Adjust.ProfitRetraceTrigger <= 0 {
		c.Adjust.ProfitRetraceTrigger = defaultRetraceTrigger
	}
	if c.Adjust.ProfitLockRatio <= 0 {
		c.Adjust.ProfitLockRatio = defaultProfitLock
	}
	if c.Adjust.OvertimeLockRatio <= 0 {
		c.Adjust.OvertimeLockRatio = defaultOvertimeLock
	}
	if c.Spread.ElevatedPips <= 0 {
		c.Spread.ElevatedPips = defaultSpreadElevated
	}
	if c.Spread.ExtremePips <= 0 {
		c.Spread.ExtremePips = defaultSpreadExtreme
	}
	if c.Spread.ProhibitivePips <= 0 {
		c.Spread.ProhibitivePips = defaultSpreadProhibit
	}
	if c.Spread.ElevatedPenalty <= 0 {
		c.Spread.ElevatedPenalty = defaultElevatedPen
	}
	if c.Spread.ExtremePenalty <= 0 {
		c.Spread.ExtremePenalty = defaultExtremePen
	}
	if c.Spread.ProhibitivePenalty <= 0 {
		c.Spread.ProhibitivePenalty = defaultProhibitPen
	}
	if c.Monitor.IntervalSeconds <= 0 {
		c.Monitor.IntervalSeconds = defaultMonitorInterval
	}
	if c.Worker.IntervalSeconds <= 0 {
		c.Worker.IntervalSeconds = defaultWorkerInterval
	}
	if c.Watchdog.PollSeconds <= 0 {
		c.Watchdog.PollSeconds = defaultWatchdogPoll
	}
	if c.Watchdog.TimeoutSeconds <= 0 {
		c.Watchdog.TimeoutSeconds = defaultWatchdogTimeout
	}
	if c.Storage.Path == "" {
		c.Storage.Path = defaultStoragePath
	}
	if c.Profiles.Path == "" {
		c.Profiles.Path = defaultProfilesPath
	}
}
