package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const MoneyPlaces = 2

// Money is the wire form of an amount: a JSON string with exactly MoneyPlaces digits.
type Money decimal.Decimal

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(decimal.Decimal(m).StringFixed(MoneyPlaces))), nil
}

// RoundMoney rounds half away from zero to two places, which is half-up for the
// non-negative amounts the ledger stores.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// HasAtMostTwoPlaces reports whether d is representable as a 2-place fixed-point amount.
func HasAtMostTwoPlaces(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}

// Commission applies a fractional rate to an already summed amount.
func Commission(total decimal.Decimal, rate float64) decimal.Decimal {
	return RoundMoney(total.Mul(decimal.NewFromFloat(rate)))
}

func SumMoney(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// ParseMoney reads a decimal amount and rejects negatives and more than two places.
func ParseMoney(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a decimal amount", ErrValidation, raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q is negative", ErrValidation, raw)
	}
	if !HasAtMostTwoPlaces(d) {
		return decimal.Zero, fmt.Errorf("%w: %q has more than %d decimal places", ErrValidation, raw, MoneyPlaces)
	}
	return d, nil
}
