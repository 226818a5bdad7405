package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for order execution.
var (
	// Validation errors
	ErrInvalidSide           = errors.New("invalid side: must be BUY or SELL")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrInvalidPrice          = errors.New("price must be positive")
	ErrInvalidTimeInForce    = errors.New("invalid time in force: must be GTC, IOC or FOK")
	ErrUnknownInstrument     = errors.New("unknown instrument")
	ErrOutOfRange            = errors.New("value out of range")
	ErrMissingLimitPrice     = errors.New("limit price required for limit orders")
	ErrChunkTooSmall         = errors.New("chunk size below minimum quantity")
	ErrInvalidStrategyParams = errors.New("invalid strategy parameters")

	// Gateway errors
	ErrOrderNotFound  = errors.New("order not found")
	ErrNotConnected   = errors.New("gateway not connected")
	ErrMissingAPIKeys = errors.New("api key and secret are required")

	// Config errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError reports a caller input that was rejected before any
// exchange write.
type ValidationError struct {
	Field string
	Value string
	Err   error
	Hint  string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// GatewayError reports an exchange rejection or connectivity failure.
type GatewayError struct {
	Op      string
	Code    int
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s: exchange error %d: %s", e.Op, e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsAuthFailure returns true for the exchange's invalid key/permission code.
func (e *GatewayError) IsAuthFailure() bool {
	return e.Code == -2015 || e.Code == -2014 || e.Code == -1022
}

// StrategyAbortError reports that a multi-order run could not continue.
// Placed lists the order ids that reached the exchange before the abort.
type StrategyAbortError struct {
	Strategy string
	Phase    string
	Placed   []string
	Err      error
}

func (e *StrategyAbortError) Error() string {
	return fmt.Sprintf("%s aborted during %s after %d orders: %v", e.Strategy, e.Phase, len(e.Placed), e.Err)
}

func (e *StrategyAbortError) Unwrap() error {
	return e.Err
}
