package gateway

import (
	"fmt"
	"strings"

	"bastion/internal/config"
	"bastion/internal/gateway/broker"
	"bastion/internal/gateway/broker/binance"
	"bastion/internal/gateway/broker/bridge"
)

// NewConnectorFromConfig builds the raw terminal backend selected by
// configuration. Callers wrap it with broker.NewGuarded before use.
func NewConnectorFromConfig(cfg *config.Config) (broker.Connector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	switch strings.ToLower(cfg.Broker.Backend) {
	case "", "bridge":
		return bridge.NewClient(cfg.Broker.Bridge)
	case "binance":
		return binance.New(cfg.Broker.Binance)
	default:
		return nil, fmt.Errorf("unsupported broker backend: %s", cfg.Broker.Backend)
	}
}
