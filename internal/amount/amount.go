// Package amount converts user-facing major-unit amounts into provider minor units.
package amount

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitScale is the number of minor units (paise) per major unit (rupee).
const MinorUnitScale = 100

var ErrInvalidAmount = errors.New("invalid_amount")

var (
	scale    = decimal.NewFromInt(MinorUnitScale)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
)

// Parse reads a decimal major-unit amount such as "250" or "250.50".
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return value, nil
}

// FromFloat accepts JSON numbers. NaN and infinities are rejected.
func FromFloat(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return decimal.NewFromFloat(v), nil
}

// ToMinorUnits scales a positive major-unit amount by 100. Amounts with sub-paise
// precision are rejected rather than truncated.
func ToMinorUnits(major decimal.Decimal) (int64, error) {
	if !major.IsPositive() {
		return 0, ErrInvalidAmount
	}
	minor := major.Mul(scale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrInvalidAmount
	}
	if minor.GreaterThan(maxMinor) {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits, used when rendering provider amounts.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
