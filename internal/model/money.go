// Package model defines the domain types of the claims engine.
package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is a currency amount in minor units (hundredths). All ledger
// arithmetic happens on this integer type.
type Money int64

// MinorUnitsPerUnit is the number of minor units in one currency unit.
const MinorUnitsPerUnit = 100

// ParseMoney parses a decimal string with at most two fractional digits,
// e.g. "100", "100.5", "-3.25".
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid money %q", s)
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, fmt.Errorf("invalid money %q", s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("invalid money %q: more than 2 decimal digits", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	var units uint64
	if whole != "" {
		w, err := strconv.ParseUint(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid money %q: %w", s, err)
		}
		units = w
	}
	cents, err := strconv.ParseUint(frac, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid money %q: %w", s, err)
	}

	if units > math.MaxInt64/MinorUnitsPerUnit {
		return 0, fmt.Errorf("invalid money %q: out of range", s)
	}
	scaled := int64(units) * MinorUnitsPerUnit
	if scaled > math.MaxInt64-int64(cents) {
		return 0, fmt.Errorf("invalid money %q: out of range", s)
	}

	m := Money(scaled + int64(cents))
	if neg {
		m = -m
	}
	return m, nil
}

// MustMoney is ParseMoney for constants; it panics on malformed input.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// String formats m with exactly two decimals.
func (m Money) String() string {
	sign := ""
	v := uint64(m)
	if m < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/MinorUnitsPerUnit, v%MinorUnitsPerUnit)
}

// Percent returns pct percent of m, truncated to the minor unit. pct must be
// within [0, 100].
func (m Money) Percent(pct int) Money {
	q, r := int64(m)/100, int64(m)%100
	return Money(q*int64(pct) + r*int64(pct)/100)
}

// Add returns m+o and false when the sum does not fit in a Money.
func (m Money) Add(o Money) (Money, bool) {
	sum := m + o
	if (o > 0 && sum < m) || (o < 0 && sum > m) {
		return 0, false
	}
	return sum, true
}
