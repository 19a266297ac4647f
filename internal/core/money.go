// Package core holds the domain types shared by the parser, the resolver and
// the balances cache.
//
// This file contains the money type and the Brazilian real (BRL) parsing and
// formatting rules used by the balances sheet.
package core

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in centavos. Balances may be negative.
type Money struct {
	Cents int64
}

var ErrInvalidAmount = errors.New("invalid amount")

// Reais returns the amount as a float64 for display and JSON output.
// Use Cents for arithmetic.
func (m Money) Reais() float64 {
	return float64(m.Cents) / 100.0
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// ParseBRL converts a balance cell into Money.
//
// Numeric values (as returned by the Sheets API with unformatted rendering)
// pass through unchanged. Strings follow the pt-BR convention: optional sign,
// optional "R$" prefix, "." as thousands separator and "," as decimal
// separator. The boolean is false when the value could not be converted, in
// which case the amount is zero.
//
// Examples:
//
//	ParseBRL("R$ 1.234,56") -> 123456 cents, true
//	ParseBRL(1234.56)       -> 123456 cents, true
//	ParseBRL("0")           -> 0, true
//	ParseBRL("abc")         -> 0, false
func ParseBRL(v any) (Money, bool) {
	switch n := v.(type) {
	case nil:
		return Money{}, false
	case Money:
		return n, true
	case float64:
		return fromFloat(n)
	case float32:
		return fromFloat(float64(n))
	case int:
		return Money{Cents: int64(n) * 100}, true
	case int32:
		return Money{Cents: int64(n) * 100}, true
	case int64:
		return Money{Cents: n * 100}, true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return Money{}, false
		}
		return fromFloat(f)
	case string:
		cents, err := parseBRLString(n)
		if err != nil {
			return Money{}, false
		}
		return Money{Cents: cents}, true
	default:
		return Money{}, false
	}
}

func fromFloat(f float64) (Money, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxReais {
		return Money{}, false
	}
	return Money{Cents: int64(math.Round(f * 100))}, true
}

const maxReais = float64((1<<63 - 1) / 100)

// parseBRLString does the string half of ParseBRL with half-up rounding on
// the third decimal digit.
func parseBRLString(s string) (int64, error) {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	if strings.HasPrefix(s, "-") {
		if neg {
			return 0, ErrInvalidAmount
		}
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}

	intPart, fracPart := s, ""
	if i := strings.LastIndex(s, ","); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	intPart = strings.ReplaceAll(intPart, ".", "")
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return 0, ErrInvalidAmount
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}

	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if neg {
		cents = -cents
	}
	return cents, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatBRL renders the amount as "R$ 1.234,56" (negative: "-R$ 1.234,56").
func (m Money) FormatBRL() string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	frac := strconv.FormatInt(cents%100, 10)
	if len(frac) < 2 {
		frac = "0" + frac
	}
	out := "R$ " + b.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}
