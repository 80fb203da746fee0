// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents and converted to and from
// decimal.Decimal only at the edges (tool arguments, JSON output).
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// maxAbsCents bounds every stored amount so sums over a household ledger
// cannot overflow int64.
const maxAbsCents = 1_000_000_000_000_000

type Money struct {
	Cents int64
}

// MoneyFromDecimal converts d to cents, rounding half away from zero on the
// third decimal place.
//
// Examples:
//
//	MoneyFromDecimal(decimal.RequireFromString("12.34"))  -> 1234
//	MoneyFromDecimal(decimal.RequireFromString("12.345")) -> 1235
//	MoneyFromDecimal(decimal.RequireFromString("-0.004")) -> 0
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Shift(2).Round(0)
	if cents.Abs().GreaterThan(decimal.NewFromInt(maxAbsCents)) {
		return Money{}, ErrAmountOutOfRange
	}
	return Money{Cents: cents.IntPart()}, nil
}

// ParseMoney parses a decimal string such as "75.50" or "75,50".
func ParseMoney(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, Errorf(KindValidation, "invalid amount %q", s)
	}
	return MoneyFromDecimal(d)
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// Validate requires a strictly positive amount.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return m.ValidateRange()
}

func (m Money) ValidateNonNegative() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return m.ValidateRange()
}

func (m Money) ValidateRange() error {
	if m.Cents > maxAbsCents || m.Cents < -maxAbsCents {
		return ErrAmountOutOfRange
	}
	return nil
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return Errorf(KindValidation, "invalid amount %s", string(data))
	}
	parsed, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
