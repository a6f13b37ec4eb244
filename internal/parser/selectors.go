package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FirstMatch tries each candidate selector under root in order and returns
// the first non-empty match together with the selector that produced it.
// When nothing matches it returns an empty selection and "".
func FirstMatch(root *goquery.Selection, candidates []string) (*goquery.Selection, string) {
	for _, selector := range candidates {
		if selector == "" {
			continue
		}
		if found := root.Find(selector); found.Length() > 0 {
			return found, selector
		}
	}
	return root.Find("__no_match__"), ""
}

// FirstText returns the trimmed text of the first candidate selector that
// yields non-blank text.
func FirstText(root *goquery.Selection, candidates []string) string {
	for _, selector := range candidates {
		if selector == "" {
			continue
		}
		if text := cleanText(root.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// AttrCandidate pairs a selector with the attribute to read from it.
type AttrCandidate struct {
	Selector string
	Attr     string
}

// FirstAttr returns the first non-blank attribute value among candidates.
// An empty Selector reads the attribute from root itself.
func FirstAttr(root *goquery.Selection, candidates []AttrCandidate) string {
	for _, c := range candidates {
		sel := root
		if c.Selector != "" {
			sel = root.Find(c.Selector).First()
		}
		if value, ok := sel.Attr(c.Attr); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}

var whitespace = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// ResolveURL makes href absolute against base. Unparseable input returns "".
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

var (
	firstNumber = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	digitsOnly  = regexp.MustCompile(`\D`)
)

// ParseRating reads the leading number of a label like "4,6 sur 5 étoiles".
func ParseRating(text string) (float64, bool) {
	match := firstNumber.FindString(text)
	if match == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
	if err != nil || f < 0 || f > 5 {
		return 0, false
	}
	return f, true
}

// ParseCount reads an integer that may be grouped with spaces, dots or
// commas, such as "(1 234)".
func ParseCount(text string) (int, bool) {
	digits := digitsOnly.ReplaceAllString(text, "")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
