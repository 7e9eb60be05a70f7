// Package money provides an exact integer amount type counting minor currency
// units (e.g. cents). Binary floating point is never used.
//
// All arithmetic that can leave the int64 range returns an
// *ArithmeticOverflowError instead of silently wrapping.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal digits between a major and a minor unit.
const Scale = 2

var (
	// ErrInvalidAmount is returned by ParseDecimal for malformed or sub-minor-unit input.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidSplit is returned by Split for a non-positive share count or a negative amount.
	ErrInvalidSplit = errors.New("invalid split")
)

// Money is a signed amount of minor currency units.
// It marshals to JSON as a plain integer.
type Money int64

// Zero is the zero amount.
const Zero Money = 0

// ArithmeticOverflowError reports an operation whose exact result does not fit in int64.
type ArithmeticOverflowError struct {
	Op string
	A  int64
	B  int64
}

func (e *ArithmeticOverflowError) Error() string {
	if e.Op == "neg" {
		return fmt.Sprintf("arithmetic overflow: -(%d)", e.A)
	}
	return fmt.Sprintf("arithmetic overflow: %d %s %d", e.A, e.Op, e.B)
}

// New returns an amount of minor units.
func New(minor int64) Money {
	return Money(minor)
}

// Int64 returns the amount in minor units.
func (m Money) Int64() int64 {
	return int64(m)
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	a, b := int64(m), int64(other)
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, &ArithmeticOverflowError{Op: "+", A: a, B: b}
	}
	return Money(a + b), nil
}

// Sub returns m - other.
func (m Money) Sub(other Money) (Money, error) {
	a, b := int64(m), int64(other)
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, &ArithmeticOverflowError{Op: "-", A: a, B: b}
	}
	return Money(a - b), nil
}

// Neg returns -m.
func (m Money) Neg() (Money, error) {
	if m == math.MinInt64 {
		return 0, &ArithmeticOverflowError{Op: "neg", A: int64(m)}
	}
	return -m, nil
}

// Abs returns |m|.
func (m Money) Abs() (Money, error) {
	if m < 0 {
		return m.Neg()
	}
	return m, nil
}

// Sign returns -1, 0 or +1.
func (m Money) Sign() int {
	switch {
	case m < 0:
		return -1
	case m > 0:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether m is zero.
func (m Money) IsZero() bool {
	return m == 0
}

// Cmp compares m and other and returns -1, 0 or +1.
func (m Money) Cmp(other Money) int {
	switch {
	case m < other:
		return -1
	case m > other:
		return 1
	default:
		return 0
	}
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a < b {
		return a
	}
	return b
}

// Sum adds all amounts, failing on the first overflow.
func Sum(amounts ...Money) (Money, error) {
	total := Zero
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Split divides m into k shares that sum to m exactly.
//
// Every share receives m / k; the first m % k shares receive one extra minor
// unit. Callers pass shares out in a stable order (ascending user id) so the
// remainder assignment is reproducible.
func (m Money) Split(k int) ([]Money, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d shares", ErrInvalidSplit, k)
	}
	if m < 0 {
		return nil, fmt.Errorf("%w: negative amount %d", ErrInvalidSplit, int64(m))
	}
	base := int64(m) / int64(k)
	remainder := int64(m) % int64(k)

	shares := make([]Money, k)
	for i := range shares {
		shares[i] = Money(base)
		if int64(i) < remainder {
			shares[i]++
		}
	}
	return shares, nil
}

// Decimal returns m in major units, e.g. 1234 -> 12.34.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -Scale)
}

// String renders m as a fixed-point decimal string such as "-12.34".
func (m Money) String() string {
	return m.Decimal().StringFixed(Scale)
}

var (
	maxDecimal = decimal.NewFromInt(math.MaxInt64)
	minDecimal = decimal.NewFromInt(math.MinInt64)
)

// ParseDecimal converts a decimal string in major units to Money.
//
// Input with more precision than one minor unit ("1.005") is rejected rather
// than rounded.
//
// Examples:
//
//	ParseDecimal("12.34") -> 1234
//	ParseDecimal("12")    -> 1200
//	ParseDecimal("-0.5")  -> -50
func ParseDecimal(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	minor := d.Shift(Scale)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, Scale)
	}
	if minor.GreaterThan(maxDecimal) || minor.LessThan(minDecimal) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return Money(minor.IntPart()), nil
}
