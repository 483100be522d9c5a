package source

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Sentinels returned when no strategy finds a field.
const (
	UnknownTitle    = "Unknown Title"
	UnknownCompany  = "Unknown Company"
	UnknownLocation = "Unknown Location"
)

// Strategy extracts one field from a card. ok is false when it found nothing.
type Strategy func(*goquery.Selection) (string, bool)

// First returns the first strategy hit, or fallback when all miss.
func First(sel *goquery.Selection, fallback string, strategies ...Strategy) string {
	for _, s := range strategies {
		if v, ok := s(sel); ok {
			return v
		}
	}
	return fallback
}

// Text returns a strategy reading the collapsed text of the first match.
func Text(selector string) Strategy {
	return func(sel *goquery.Selection) (string, bool) {
		v := collapse(sel.Find(selector).First().Text())
		return v, v != ""
	}
}

// Attr returns a strategy reading attr of the first match carrying it.
func Attr(selector, attr string) Strategy {
	return func(sel *goquery.Selection) (string, bool) {
		var out string
		sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				out = strings.TrimSpace(v)
				return false
			}
			return true
		})
		return out, out != ""
	}
}

// JoinText joins the text of every match with sep.
func JoinText(selector, sep string) Strategy {
	return func(sel *goquery.Selection) (string, bool) {
		var parts []string
		sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if v := collapse(s.Text()); v != "" {
				parts = append(parts, v)
			}
		})
		v := strings.Join(parts, sep)
		return v, v != ""
	}
}

// Cards returns the matches of the first selector that yields any.
func Cards(doc *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, s := range selectors {
		if found := doc.Find(s); found.Length() > 0 {
			return found
		}
	}
	return doc.Find(selectors[len(selectors)-1])
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SpanMatching returns the text of the first span matching re.
func SpanMatching(re *regexp.Regexp) Strategy {
	return func(sel *goquery.Selection) (string, bool) {
		var out string
		sel.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if text := collapse(s.Text()); re.MatchString(text) {
				out = text
				return false
			}
			return true
		})
		return out, out != ""
	}
}
