package execution

import (
	"context"
	"errors"

	"github.com/tathienbao/futures-exec/internal/gateway"
	"github.com/tathienbao/futures-exec/internal/types"
)

// Resolver fetches instrument rules. Rules are read from the exchange on
// every call; nothing is cached.
type Resolver struct {
	gw gateway.Gateway
}

// NewResolver creates a resolver over gw.
func NewResolver(gw gateway.Gateway) *Resolver {
	return &Resolver{gw: gw}
}

// Resolve returns the rules for symbol. An exchange that does not list the
// symbol yields a ValidationError wrapping types.ErrUnknownInstrument;
// transport failures are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (types.InstrumentRules, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return types.InstrumentRules{}, err
	}

	rules, err := r.gw.GetInstrumentRules(ctx, sym)
	if err != nil {
		if errors.Is(err, types.ErrUnknownInstrument) {
			return types.InstrumentRules{}, &types.ValidationError{Field: "symbol", Value: symbol, Err: types.ErrUnknownInstrument}
		}
		return types.InstrumentRules{}, err
	}
	if rules.Symbol == "" {
		rules.Symbol = sym
	}
	return rules, nil
}
