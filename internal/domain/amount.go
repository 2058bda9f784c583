/**
 * @description
 * Money semantics for the economy. Balances and amounts are integer counts of
 * minor units (1/100 of the display unit) so arithmetic never drifts. Text input is
 * parsed through shopspring/decimal and anything finer than the supported scale is
 * rejected instead of rounded.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Exact decimal parsing and formatting.
 */
package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits an Amount carries.
const AmountScale = 2

// maxAmountDigits is the number of decimal digits in math.MaxInt64.
const maxAmountDigits = 19

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// Amount is a monetary value in minor units.
type Amount int64

// ParseAmount converts user input such as "12", "12.5" or "12.50" into an Amount.
// Values with more than AmountScale fractional digits, or that do not fit in an
// int64 count of minor units, are rejected with ErrInvalidAmount.
func ParseAmount(raw string) (Amount, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	if d.IsZero() {
		return 0, nil
	}
	// Rescaling costs time proportional to the exponent, so settle far-off exponents
	// before Truncate or Shift run. A non-zero coefficient of n digits cannot be a
	// multiple of 10^n, hence exp <= -(n+AmountScale) always has too many decimals.
	exp := int64(d.Exponent())
	if exp > maxAmountDigits {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, raw)
	}
	if exp <= -int64(d.NumDigits()+AmountScale) {
		return 0, fmt.Errorf("%w: at most %d decimal places are supported", ErrInvalidAmount, AmountScale)
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return 0, fmt.Errorf("%w: at most %d decimal places are supported", ErrInvalidAmount, AmountScale)
	}
	minor := d.Shift(AmountScale)
	if minor.Abs().GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, raw)
	}
	return Amount(minor.IntPart()), nil
}

// ParsePositiveAmount is ParseAmount restricted to values greater than zero.
func ParsePositiveAmount(raw string) (Amount, error) {
	amt, err := ParseAmount(raw)
	if err != nil {
		return 0, err
	}
	if err := amt.ValidatePositive(); err != nil {
		return 0, err
	}
	return amt, nil
}

// ValidatePositive returns ErrInvalidAmount unless a > 0.
func (a Amount) ValidatePositive() error {
	if a <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	return nil
}

// Decimal returns the amount in display units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -AmountScale)
}

// String renders the amount with exactly AmountScale fractional digits.
func (a Amount) String() string {
	return a.Decimal().StringFixed(AmountScale)
}

// MarshalJSON encodes the amount as a decimal string, e.g. "12.50".
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted decimal strings and bare JSON numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		return nil
	}
	text = strings.Trim(text, `"`)
	parsed, err := ParseAmount(text)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
