package execution

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tathienbao/futures-exec/internal/types"
	"github.com/tathienbao/futures-exec/pkg/quant"
)

// CheckBounds rejects value outside [min, max] and returns it quantized
// down to step. Bounds apply to the caller's value before rounding.
// A zero max means no upper bound.
func CheckBounds(field string, value, min, max, step decimal.Decimal) (decimal.Decimal, error) {
	if value.LessThan(min) {
		return decimal.Zero, &types.ValidationError{
			Field: field,
			Value: value.String(),
			Err:   types.ErrOutOfRange,
			Hint:  "minimum is " + min.String(),
		}
	}
	if max.IsPositive() && value.GreaterThan(max) {
		return decimal.Zero, &types.ValidationError{
			Field: field,
			Value: value.String(),
			Err:   types.ErrOutOfRange,
			Hint:  "maximum is " + max.String(),
		}
	}

	q := quant.Quantize(value, step)
	if !q.IsPositive() {
		return decimal.Zero, &types.ValidationError{
			Field: field,
			Value: value.String(),
			Err:   types.ErrOutOfRange,
			Hint:  "rounds to zero at step " + step.String(),
		}
	}
	return q, nil
}

// CheckQuantity applies LOT_SIZE bounds and step.
func CheckQuantity(rules types.InstrumentRules, qty decimal.Decimal) (decimal.Decimal, error) {
	return CheckBounds("quantity", qty, rules.QuantityMin, rules.QuantityMax, rules.QuantityStep)
}

// CheckPrice applies PRICE_FILTER bounds and tick.
func CheckPrice(rules types.InstrumentRules, field string, price decimal.Decimal) (decimal.Decimal, error) {
	return CheckBounds(field, price, rules.PriceMin, rules.PriceMax, rules.PriceTick)
}

// RequireQuantity rejects non-positive quantities.
func RequireQuantity(field string, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return &types.ValidationError{Field: field, Value: qty.String(), Err: types.ErrInvalidQuantity}
	}
	return nil
}

// RequirePrice rejects non-positive prices.
func RequirePrice(field string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return &types.ValidationError{Field: field, Value: price.String(), Err: types.ErrInvalidPrice}
	}
	return nil
}

// NormalizeSymbol trims and upper-cases a symbol, rejecting empty input.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", &types.ValidationError{Field: "symbol", Value: symbol, Err: types.ErrUnknownInstrument}
	}
	return s, nil
}
