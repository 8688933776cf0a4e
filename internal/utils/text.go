package utils

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockElements = "p, div, br, li, ul, ol, tr, td, th, h1, h2, h3, h4, h5, h6, section, article, header, footer, blockquote, pre"

// CleanText collapses all whitespace runs (including non-breaking spaces) into single spaces.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// StripHTML returns the visible text of an HTML fragment with whitespace collapsed.
// Input that does not parse is returned cleaned but otherwise untouched.
func StripHTML(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return CleanText(fragment)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return CleanText(fragment)
	}

	doc.Find("script, style, noscript").Remove()
	// Keep words from adjacent blocks apart once the tags are gone.
	doc.Find(blockElements).AppendHtml("\n")

	return CleanText(doc.Text())
}
