// Package textutil provides the text normalization primitives shared by the
// normalizer and the clusterer: HTML stripping, tokenization, and stopword
// filtering feeding into TF-IDF search-text construction.
package textutil

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// stopwords is the English function-word list excluded from tokenization.
// Short and deliberately small: over-filtering loses the rare terms that
// make TF-IDF distinguish clusters in the first place.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "if": {},
	"of": {}, "at": {}, "by": {}, "for": {}, "with": {}, "about": {},
	"against": {}, "between": {}, "into": {}, "through": {}, "during": {},
	"before": {}, "after": {}, "to": {}, "from": {}, "in": {}, "on": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "it": {}, "its": {}, "as": {}, "than": {},
	"then": {}, "so": {}, "not": {}, "no": {}, "can": {}, "what": {}, "which": {},
	"who": {}, "when": {}, "where": {}, "why": {}, "how": {}, "all": {}, "each": {},
	"said": {}, "says": {}, "also": {}, "new": {},
}

// StripHTML removes markup from an HTML fragment and returns the remaining
// visible text, collapsing whitespace. Returns the input unchanged if it
// does not parse as HTML.
func StripHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return CollapseWhitespace(doc.Text())
}

// CollapseWhitespace replaces runs of whitespace with a single space and
// trims the result.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize lowercases s, splits on non-letter/non-digit runes, and drops
// stopwords and tokens of length 2 or less.
func Tokenize(s string) []string {
	var tokens []string
	var b strings.Builder

	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if len([]rune(tok)) <= 2 {
			return
		}
		if _, stop := stopwords[tok]; stop {
			return
		}
		tokens = append(tokens, tok)
	}

	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// Slugify converts s into a lowercase, hyphenated slug suitable for
// Platform.Slug: letters and digits are kept, runs of everything else
// collapse to a single hyphen, and leading/trailing hyphens are trimmed.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := false

	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}

	return strings.TrimRight(b.String(), "-")
}

// Truncate returns s unchanged if it is at most limit runes, otherwise the
// first limit-1 runes with a trailing ellipsis marker.
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}
	return string(r[:limit-1]) + "…"
}
