// Package core provides amount parsing and formatting utilities.
//
// Source files publish monetary values either with a dot decimal separator
// (1234.56) or in the Brazilian convention (1.234,56). ParseAmount accepts
// both and returns an exact decimal.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a textual monetary value into a decimal.
//
// When both separators are present the rightmost one is the decimal mark and
// the other groups thousands. A lone separator repeated more than once is a
// thousands separator and every group after the first must have 3 digits.
//
// Examples:
//
//	ParseAmount("1234.56")   -> 1234.56
//	ParseAmount("1.234,56")  -> 1234.56
//	ParseAmount("-12,5")     -> -12.5
//	ParseAmount("1.234.567") -> 1234567
//	ParseAmount("1.000")     -> 1
func ParseAmount(s string) (decimal.Decimal, error) {
	return ParseAmountIn(s, false)
}

// ParseAmountIn is ParseAmount for a source whose decimal mark is known.
// With decimalComma set, a lone dot that groups thousands is read as a
// thousands separator, so "1.000" is 1000 while "1234.56" keeps its
// fraction.
func ParseAmountIn(s string, decimalComma bool) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if !strings.ContainsAny(s, "0123456789") {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return decimal.Zero, ErrInvalidAmount
		}
	}

	var intPart, fracPart string
	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec, thousands := byte('.'), ","
		if lastComma > lastDot {
			dec, thousands = ',', "."
		}
		idx := strings.LastIndexByte(s, dec)
		intPart, fracPart = s[:idx], s[idx+1:]
		if strings.ContainsRune(fracPart, rune(thousands[0])) {
			return decimal.Zero, ErrInvalidAmount
		}
		var ok bool
		if intPart, ok = stripThousands(intPart, thousands); !ok {
			return decimal.Zero, ErrInvalidAmount
		}
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		if lastComma >= 0 {
			sep = ","
		}
		grouped, isGrouped := stripThousands(s, sep)
		switch {
		case decimalComma && sep == "." && isGrouped:
			intPart = grouped
		case strings.Count(s, sep) == 1:
			parts := strings.SplitN(s, sep, 2)
			intPart, fracPart = parts[0], parts[1]
		case isGrouped:
			intPart = grouped
		default:
			return decimal.Zero, ErrInvalidAmount
		}
	default:
		intPart = s
	}

	if intPart == "" {
		intPart = "0"
	}
	text := intPart
	if fracPart != "" {
		text += "." + fracPart
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

func stripThousands(s, sep string) (string, bool) {
	groups := strings.Split(s, sep)
	if groups[0] == "" || len(groups[0]) > 3 && len(groups) > 1 {
		return "", false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return "", false
		}
	}
	return strings.Join(groups, ""), true
}

// FormatBRL renders d as Brazilian currency, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	neg := d.IsNegative()
	if neg {
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "R$ " + b.String() + "," + fracPart
	if neg {
		return "-" + out
	}
	return out
}
