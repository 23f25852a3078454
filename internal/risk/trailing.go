package risk

import (
	"github.com/shopspring/decimal"

	"bastion/internal/gateway/broker"
	"bastion/internal/pkg/trading"
)

// TrailingStopFor recomputes the protective stop for a position following
// favorable price movement. It is pure and direction-aware, and never
// returns a value looser than the current stop: if the candidate would
// loosen protection the current stop comes back unchanged.
func TrailingStopFor(pos broker.Position, currentPrice, trailingPoints, point float64, digits int) float64 {
	if currentPrice <= 0 || trailingPoints <= 0 || point <= 0 {
		return pos.StopLoss
	}
	distance := decimal.NewFromFloat(trailingPoints).Mul(decimal.NewFromFloat(point))
	price := decimal.NewFromFloat(currentPrice)
	current := decimal.NewFromFloat(pos.StopLoss)

	var candidate decimal.Decimal
	switch pos.Direction {
	case broker.DirectionLong:
		candidate = price.Sub(distance)
		if pos.StopLoss > 0 && candidate.LessThanOrEqual(current) {
			return pos.StopLoss
		}
	case broker.DirectionShort:
		candidate = price.Add(distance)
		if pos.StopLoss > 0 && candidate.GreaterThanOrEqual(current) {
			return pos.StopLoss
		}
	default:
		return pos.StopLoss
	}
	f, _ := candidate.Float64()
	return trading.RoundPrice(f, digits)
}

// TightenOnly clamps a proposed stop so it can only move in the protective
// direction relative to the current one.
func TightenOnly(direction broker.Direction, currentStop, proposed float64, digits int) float64 {
	if proposed <= 0 {
		return currentStop
	}
	if currentStop <= 0 {
		return trading.RoundPrice(proposed, digits)
	}
	switch direction {
	case broker.DirectionLong:
		if proposed <= currentStop {
			return currentStop
		}
	case broker.DirectionShort:
		if proposed >= currentStop {
			return currentStop
		}
	}
	return trading.RoundPrice(proposed, digits)
}
