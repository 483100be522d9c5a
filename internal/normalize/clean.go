// Package normalize turns raw posting bodies into bounded plain text.
package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMaxLength bounds cleaned descriptions when no limit is configured.
const DefaultMaxLength = 15000

// boilerplate lists elements removed before text extraction.
const boilerplate = "header, footer, nav, script, style, a, noscript, iframe"

// Clean strips markup and boilerplate from rawHTML and truncates the result to
// maxLength runes. Paragraph text is preferred; without <p> elements the whole
// document text is used with blank lines collapsed. Clean never panics: on a
// parse failure the raw input is returned truncated.
//
// The input is HTML and the output is plain text. Entities are decoded, so
// cleaning the output again reads "&lt;b&gt;" text as a real tag; repeat
// cleaning is only a no-op for text without angle brackets.
func Clean(rawHTML string, maxLength int) (out string) {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	defer func() {
		if r := recover(); r != nil {
			out = Truncate(rawHTML, maxLength)
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return Truncate(rawHTML, maxLength)
	}
	doc.Find(boilerplate).Remove()

	var text string
	if paragraphs := doc.Find("p"); paragraphs.Length() > 0 {
		blocks := make([]string, 0, paragraphs.Length())
		paragraphs.Each(func(_ int, p *goquery.Selection) {
			if block := collapseLines(p.Text()); block != "" {
				blocks = append(blocks, block)
			}
		})
		text = strings.Join(blocks, "\n\n")
	} else {
		text = collapseLines(doc.Text())
	}
	return strings.TrimRightFunc(Truncate(text, maxLength), isSpace)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n])
}

// collapseLines trims every line, squeezes inner whitespace, and keeps at most
// one blank line between blocks of text.
func collapseLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

// Normalizer carries a configured length bound so callers can inject cleaning.
type Normalizer struct {
	MaxLength int
}

// Clean applies Clean with the configured bound.
func (n Normalizer) Clean(rawHTML string) string {
	return Clean(rawHTML, n.MaxLength)
}
