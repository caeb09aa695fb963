// Package units converts between human-readable decimal amounts and integer
// amounts in a token's smallest unit.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount    = errors.New("amount is empty")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrTooPrecise     = errors.New("amount has more fractional digits than the token supports")
)

// Parse converts "1.5" with 6 decimals into 1500000.
func Parse(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, ErrEmptyAmount
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %s (max %d)", ErrTooPrecise, amount, decimals)
	}
	return shifted.BigInt(), nil
}

// ParseString is Parse for amounts that arrive as decimal strings in the
// smallest unit already, e.g. API fields like "9500000".
func ParseString(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyAmount
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", raw)
	}
	return n, nil
}

// Format converts 9500000 with 6 decimals into "9.5".
func Format(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

// FormatString formats a smallest-unit decimal string, returning the input
// unchanged if it is not an integer.
func FormatString(raw string, decimals uint8) string {
	n, err := ParseString(raw)
	if err != nil {
		return raw
	}
	return Format(n, decimals)
}

// FormatFixed rounds to places fractional digits, the way balances are shown.
func FormatFixed(value *big.Int, decimals uint8, places int32) string {
	if value == nil {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).StringFixed(places)
}
