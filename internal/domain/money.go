package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// microsPerUnit is the storage scale: balances are BIGINT micros (10^-6).
const microsPerUnit = 1_000_000

// maxScale is the finest fraction representable in micros.
const maxScale int32 = 6

var microsFactor = decimal.NewFromInt(microsPerUnit)

// Money is a monetary amount stored as integer micros to avoid floating point errors.
type Money int64

// MoneyFromDecimal converts a decimal into micros. It rejects values that carry
// more than scale fractional digits instead of silently rounding them.
func MoneyFromDecimal(d decimal.Decimal, scale int32) (Money, error) {
	if scale < 0 || scale > maxScale {
		scale = maxScale
	}
	if !d.Equal(d.Truncate(scale)) {
		return 0, fmt.Errorf("%w: at most %d decimal places allowed", ErrInvalidAmount, scale)
	}
	micros := d.Mul(microsFactor)
	if !micros.IsInteger() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, d.String())
	}
	// Guard against values that overflow int64 micros.
	if micros.Abs().GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, fmt.Errorf("%w: amount out of range", ErrInvalidAmount)
	}
	return Money(micros.IntPart()), nil
}

// ParseAmount parses caller-supplied amount text. Empty, NaN and non-numeric
// input fail with ErrInvalidAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	return d, nil
}

// ParseMoney parses a decimal string such as "250.00".
func ParseMoney(s string, scale int32) (Money, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return 0, err
	}
	return MoneyFromDecimal(d, scale)
}

// MustParseMoney is ParseMoney for constants and tests.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s, maxScale)
	if err != nil {
		panic(err)
	}
	return m
}

// Micros returns the raw stored value.
func (m Money) Micros() int64 {
	return int64(m)
}

// Decimal converts the micros to a shopspring/decimal.Decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m)).Div(microsFactor)
}

// String renders the amount with two decimals, e.g. "750.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
	}
	v, err := MoneyFromDecimal(d, maxScale)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
