package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount signals input that cannot be interpreted as a monetary amount.
var ErrInvalidAmount = errors.New("invalid monetary amount")

var centsPerUnit = decimal.NewFromInt(100)

// ParseAmount converts raw user input into a decimal display amount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// ToMinorUnits converts a display amount into integer minor units (centavos),
// rounding half away from zero. All downstream arithmetic happens on the
// returned integer so no floating point drift can accumulate.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(centsPerUnit).Round(0).IntPart()
}

// FromMinorUnits converts integer minor units back into a display amount
// carrying exactly two decimal digits.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatMinorUnits renders minor units as a fixed two-decimal string.
func FormatMinorUnits(cents int64) string {
	return FromMinorUnits(cents).StringFixed(2)
}
