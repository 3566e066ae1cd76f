package services

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	collapseNewlines = regexp.MustCompile(`\n{3,}`)
	inlineWhitespace = regexp.MustCompile(`[ \t]+`)
)

// SanitizeText normalizes free-form text input: line endings become LF, tabs
// and form feeds become spaces, runs of three or more newlines collapse to
// two, and the result is trimmed. Newlines themselves are preserved.
func SanitizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\t", " ")
	text = strings.ReplaceAll(text, "\f", " ")
	text = collapseNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// SanitizeHTML removes script, style and noscript subtrees from an HTML
// document and returns the remaining markup. Unparseable input falls back to
// plain text sanitization.
func SanitizeHTML(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return SanitizeText(html)
	}

	doc.Find("script, style, noscript").Remove()

	cleaned, err := doc.Html()
	if err != nil {
		return SanitizeText(html)
	}
	return strings.TrimSpace(cleaned)
}

// NormalizeLabel trims a field label and collapses internal whitespace runs
// to single spaces.
func NormalizeLabel(label string) string {
	label = strings.ReplaceAll(label, "\n", " ")
	label = inlineWhitespace.ReplaceAllString(label, " ")
	return strings.TrimSpace(label)
}
