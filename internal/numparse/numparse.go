// Package numparse normalises the loosely formatted numbers found in shift
// report spreadsheets ("1 234,50", "1.234,50", "1,234.50 ₽", "-300") into
// fixed-point decimals.
package numparse

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the scale every currency amount is rounded to.
const AmountPlaces = 2

// Parse converts s to a decimal. The boolean is false when s carries no
// interpretable number.
func Parse(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	// plain values straight from the workbook ("1500", "1.5E+3")
	if d, err := decimal.NewFromString(s); err == nil {
		return d, true
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	digits := 0
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r >= '0' && r <= '9':
			digits++
			b.WriteRune(r)
		case r == ',' || r == '.':
			b.WriteRune(r)
		case r == '-' || r == '−' || r == '–':
			if b.Len() > 0 {
				return decimal.Zero, false
			}
			negative = !negative
		case unicode.IsSpace(r) || r == '\u202f' || r == '\'':
			// thousands grouping
		case unicode.Is(unicode.Sc, r):
			// ₽ $ €
		case unicode.IsLetter(r):
			j := i
			for j < len(runes) && unicode.IsLetter(runes[j]) {
				j++
			}
			if !currencyWords[strings.ToLower(string(runes[i:j]))] {
				return decimal.Zero, false
			}
			i = j - 1
		default:
			return decimal.Zero, false
		}
	}
	if digits == 0 {
		return decimal.Zero, false
	}

	normalized, ok := normalizeSeparators(strings.Trim(b.String(), ".,"))
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// ParseAmount is Parse rounded to currency precision.
func ParseAmount(s string) (decimal.Decimal, bool) {
	d, ok := Parse(s)
	if !ok {
		return decimal.Zero, false
	}
	return d.Round(AmountPlaces), true
}

// ParseInt parses a count ("12", "12.0", "1 200"). Fractions are rejected.
func ParseInt(s string) (int64, bool) {
	d, ok := Parse(s)
	if !ok || !d.Equal(d.Truncate(0)) {
		return 0, false
	}
	return d.IntPart(), true
}

// IsNumeric reports whether s parses as a number.
func IsNumeric(s string) bool {
	_, ok := Parse(s)
	return ok
}

// currencyWords may surround an amount without making it text.
var currencyWords = map[string]bool{
	"р": true, "руб": true, "рубль": true, "рубля": true, "рублей": true,
	"rub": true, "usd": true, "eur": true, "byn": true, "kzt": true, "тг": true,
}

// normalizeSeparators decides which of ',' and '.' is the decimal mark.
// When both appear the last one wins; a repeated single kind is grouping;
// a lone comma is a decimal comma.
func normalizeSeparators(s string) (string, bool) {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")

	switch {
	case commas == 0 && dots == 0:
		return s, true
	case commas > 0 && dots > 0:
		if lastComma > lastDot {
			if commas > 1 {
				return "", false
			}
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1), true
		}
		if dots > 1 {
			return "", false
		}
		return strings.ReplaceAll(s, ",", ""), true
	case commas > 1:
		return strings.ReplaceAll(s, ",", ""), groupedThousands(s, ',')
	case dots > 1:
		return strings.ReplaceAll(s, ".", ""), groupedThousands(s, '.')
	case commas == 1:
		return strings.Replace(s, ",", ".", 1), true
	default:
		return s, true
	}
}

func groupedThousands(s string, sep rune) bool {
	parts := strings.Split(s, string(sep))
	for i, p := range parts {
		if i == 0 {
			if len(p) == 0 || len(p) > 3 {
				return false
			}
			continue
		}
		if len(p) != 3 {
			return false
		}
	}
	return true
}
