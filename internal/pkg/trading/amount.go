// Package trading provides trading calculation utilities.
package trading

import "github.com/shopspring/decimal"

// CalcCloseAmount computes the volume to close from the close ratio. The
// result is capped at the current position volume.
func CalcCloseAmount(currentVolume, ratio float64) float64 {
	if currentVolume <= 0 || ratio <= 0 {
		return 0
	}
	amount := currentVolume * ratio
	if amount > currentVolume {
		amount = currentVolume
	}
	return amount
}

// SnapVolume clamps volume into [min, max] and rounds it down to the nearest
// multiple of step. Decimal arithmetic avoids float drift on sub-lot steps
// like 0.01.
func SnapVolume(volume, min, max, step float64) float64 {
	if volume <= 0 {
		return 0
	}
	vol := decimal.NewFromFloat(volume)
	if max > 0 {
		if capVol := decimal.NewFromFloat(max); vol.GreaterThan(capVol) {
			vol = capVol
		}
	}
	if step > 0 {
		stepDec := decimal.NewFromFloat(step)
		vol = vol.Div(stepDec).Floor().Mul(stepDec)
	}
	if min > 0 {
		if minVol := decimal.NewFromFloat(min); vol.LessThan(minVol) {
			return 0
		}
	}
	f, _ := vol.Float64()
	return f
}

// RoundPrice rounds price to the given number of quote digits.
func RoundPrice(price float64, digits int) float64 {
	if digits < 0 {
		return price
	}
	f, _ := decimal.NewFromFloat(price).Round(int32(digits)).Float64()
	return f
}
