package config

import (
	"fmt"
	"strings"
)

func validate(cfg *Config) error {
	if len(cfg.Instruments) == 0 {
		return fmt.Errorf("config: instruments cannot be empty")
	}
	seen := make(map[string]bool, len(cfg.Instruments))
	for i, instr := range cfg.Instruments {
		instr = strings.ToUpper(strings.TrimSpace(instr))
		if instr == "" {
			return fmt.Errorf("config: instruments[%d] is empty", i)
		}
		if seen[instr] {
			return fmt.Errorf("config: duplicate instrument %s", instr)
		}
		seen[instr] = true
		cfg.Instruments[i] = instr
	}

	switch strings.ToLower(cfg.Broker.Backend) {
	case "bridge":
		if strings.TrimSpace(cfg.Broker.Bridge.APIURL) == "" {
			return fmt.Errorf("config: broker.bridge.api_url cannot be empty")
		}
	case "binance":
		if cfg.Broker.Binance.APIKey == "" || cfg.Broker.Binance.APISecret == "" {
			return fmt.Errorf("config: broker.binance requires api_key and api_secret")
		}
	default:
		return fmt.Errorf("config: unsupported broker backend %q", cfg.Broker.Backend)
	}

	if cfg.Risk.RiskPerTrade >= 0.1 {
		return fmt.Errorf("config: risk.risk_per_trade %.3f is above the 10%% sanity cap", cfg.Risk.RiskPerTrade)
	}
	if cfg.Adjust.PartialCloseRatio >= 1 {
		return fmt.Errorf("config: adjust.partial_close_ratio must be below 1")
	}
	if !(cfg.Spread.ElevatedPips < cfg.Spread.ExtremePips && cfg.Spread.ExtremePips < cfg.Spread.ProhibitivePips) {
		return fmt.Errorf("config: spread bands must be strictly increasing (elevated < extreme < prohibitive)")
	}
	for group, members := range cfg.Risk.CorrelationGroups {
		if len(members) < 2 {
			return fmt.Errorf("config: correlation group %s needs at least two instruments", group)
		}
	}
	if cfg.Notify.Telegram.Enabled {
		if cfg.Notify.Telegram.BotToken == "" || cfg.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("config: notify.telegram enabled but bot_token/chat_id missing")
		}
	}
	return nil
}
