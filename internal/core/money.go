// Package core provides the domain types shared by the whole ledger:
// money in integer cents, calendar dates, periods and transactions.
package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in integer cents. Floating point values only appear at
// presentation boundaries through Major.
type Money struct {
	Cents int64
}

// Cents is shorthand for Money{Cents: c}.
func Cents(c int64) Money { return Money{Cents: c} }

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (half-up)
//	ParseDecimalToCents("12.344") -> 1234, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if strings.Contains(fracPart, ".") {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			frac += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				frac++
			}
		}
	}
	cents := iv*100 + frac
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseMoney is ParseDecimalToCents returning a Money.
func ParseMoney(s string) (Money, error) {
	c, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: c}, nil
}

// Major returns the amount in major units (reais) for display and summaries.
// Use cents for arithmetic.
func (m Money) Major() float64 {
	return float64(m.Cents) / 100.0
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) IsZero() bool { return m.Cents == 0 }

// Validate requires a strictly positive amount.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// String formats the amount as "1234.56".
func (m Money) String() string {
	sign := ""
	c := m.Cents
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// MarshalJSON encodes the amount as integer cents.
func (m Money) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, m.Cents, 10), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var c int64
	if err := json.Unmarshal(b, &c); err != nil {
		return fmt.Errorf("amount must be integer cents: %w", ErrInvalidAmount)
	}
	m.Cents = c
	return nil
}

// Split divides total into n installment values whose sum is exactly total.
//
// The regular value is total/n rounded half-up and the first installment
// absorbs the residual. When that residual would turn the first installment
// negative the regular value is floor(total/n) instead.
//
//	Split(Cents(10000), 3) -> [3334 3333 3333]
func (m Money) Split(n int) ([]Money, error) {
	if n < 1 {
		return nil, ErrInvalidInstallments
	}
	if m.Cents < 0 {
		return nil, ErrInvalidAmount
	}
	count := int64(n)
	regular := m.Cents / count
	if (m.Cents%count)*2 >= count {
		regular++
	}
	first := m.Cents - regular*(count-1)
	if first < 0 {
		regular = m.Cents / count
		first = m.Cents - regular*(count-1)
	}
	parts := make([]Money, n)
	parts[0] = Money{Cents: first}
	for i := 1; i < n; i++ {
		parts[i] = Money{Cents: regular}
	}
	return parts, nil
}

// Sum adds up a list of amounts.
func Sum(ms ...Money) Money {
	var total int64
	for _, m := range ms {
		total += m.Cents
	}
	return Money{Cents: total}
}
