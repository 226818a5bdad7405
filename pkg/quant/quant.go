// Package quant provides exact decimal quantization to exchange step sizes.
package quant

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Quantize rounds value down to the nearest multiple of step.
// The result is exact: no binary floating point is involved.
// A non-positive step returns value unchanged.
func Quantize(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return value
	}
	rem := value.Mod(step)
	if rem.IsNegative() {
		rem = rem.Add(step)
	}
	return value.Sub(rem)
}

// IsMultiple returns true if value is an exact multiple of step.
func IsMultiple(value, step decimal.Decimal) bool {
	if !step.IsPositive() {
		return true
	}
	return value.Mod(step).IsZero()
}

// Decimals returns the number of fractional digits implied by step,
// e.g. 0.0010 -> 3.
func Decimals(step decimal.Decimal) int32 {
	s := step.String()
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return int32(len(s) - i - 1)
}
