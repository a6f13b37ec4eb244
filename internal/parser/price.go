package parser

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var ErrNoPrice = errors.New("no valid price")

var (
	// "1 299€95" writes the euro sign where the decimal separator goes.
	inlineEuro = regexp.MustCompile(`(\d)\s*€\s*(\d)`)
	nonNumeric = regexp.MustCompile(`[^0-9.,]`)
)

// NormalizePrice turns a displayed price such as "1 299,99 €" into a plain
// decimal string ("1299.99"). It returns "" when no digits are found.
// NormalizePrice(NormalizePrice(x)) == NormalizePrice(x).
func NormalizePrice(text string) string {
	text = strings.NewReplacer("\u00a0", " ", "\u202f", " ").Replace(text)
	text = inlineEuro.ReplaceAllString(text, "$1,$2")
	text = nonNumeric.ReplaceAllString(text, "")
	text = strings.Trim(text, ".,")
	if text == "" {
		return ""
	}

	lastDot := strings.LastIndex(text, ".")
	lastComma := strings.LastIndex(text, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimal := max(lastDot, lastComma)
		intPart, frac := stripSeparators(text[:decimal]), stripSeparators(text[decimal+1:])
		if isThousandsGroup(intPart, frac) {
			return intPart + frac
		}
		return joinDecimal(intPart, frac)

	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		if lastComma >= 0 {
			sep = ","
		}
		parts := strings.Split(text, sep)
		if len(parts) > 2 {
			return strings.Join(parts, "")
		}
		intPart, frac := parts[0], parts[1]
		if isThousandsGroup(intPart, frac) {
			return intPart + frac
		}
		return joinDecimal(intPart, frac)

	default:
		return text
	}
}

// ParsePrice normalizes text and parses it. It returns NaN when the text
// carries no usable price.
func ParsePrice(text string) float64 {
	normalized := NormalizePrice(text)
	if normalized == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// ValidPrice reports whether p can be shown to a user.
func ValidPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}

// JoinPriceParts rebuilds a price split across two elements, as with
// Amazon's whole/fraction spans ("1 299," and "99").
func JoinPriceParts(whole, fraction string) string {
	whole = strings.TrimRight(strings.TrimSpace(whole), ".,")
	fraction = strings.TrimSpace(fraction)
	if fraction == "" {
		return whole
	}
	return whole + "," + fraction
}

// isThousandsGroup reports whether a lone separator between intPart and frac
// groups thousands ("1.299") rather than marking decimals ("0,999", "12,5").
func isThousandsGroup(intPart, frac string) bool {
	return len(frac) == 3 && len(intPart) >= 1 && len(intPart) <= 3 && strings.TrimLeft(intPart, "0") != ""
}

func stripSeparators(s string) string {
	return strings.NewReplacer(".", "", ",", "").Replace(s)
}

func joinDecimal(intPart, frac string) string {
	if intPart == "" {
		intPart = "0"
	}
	if frac == "" {
		return intPart
	}
	return intPart + "." + frac
}
