package document

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LooksLikeMarkup reports whether s should be treated as an HTML fragment.
func LooksLikeMarkup(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "<") && strings.Contains(s, ">")
}

// StripMarkup returns the text content of an HTML fragment. Line breaks and
// block boundaries become newlines.
func StripMarkup(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way keep what was read.
			return strings.TrimRight(b.String(), "\n")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Br {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); blockTags[a] && b.Len() > 0 {
				b.WriteByte('\n')
			}
		}
	}
}

// NormalizeQuote converts a quoted span to plain text when it is markup.
func NormalizeQuote(s string) string {
	if LooksLikeMarkup(s) {
		return StripMarkup(s)
	}
	return s
}
