package document

import (
	"strings"
	"unicode"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// FromMarkdown builds a document from markdown source.
func FromMarkdown(src string) (*Document, error) {
	return ParseHTML(string(markdown.ToHTML([]byte(src), nil, nil)))
}

// RenderInlineMarkdown renders the inline markdown of src (emphasis, code
// spans, links) to inline content. Every line becomes inline text; lines are
// joined with breaks. Block syntax such as list bullets, headings or quotes
// stays literal text, as does whitespace around each line.
func RenderInlineMarkdown(src string) []Inline {
	if src == "" {
		return nil
	}
	var out []Inline
	for i, line := range strings.Split(src, "\n") {
		if i > 0 {
			out = append(out, Inline{Kind: KindBreak})
		}
		out = append(out, renderLine(line)...)
	}
	return out
}

func renderLine(line string) []Inline {
	body := strings.TrimSpace(line)
	if body == "" {
		if line == "" {
			return nil
		}
		return []Inline{TextInline(line)}
	}

	var out []Inline
	if lead := line[:len(line)-len(strings.TrimLeftFunc(line, unicode.IsSpace))]; lead != "" {
		out = append(out, TextInline(lead))
	}

	p := parser.NewWithExtensions(parser.NoIntraEmphasis | parser.Strikethrough)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.FlagsNone})
	doc, err := ParseHTML(string(markdown.ToHTML([]byte(escapeBlockMarker(body)), p, r)))
	if err != nil {
		out = append(out, TextInline(body))
	} else {
		doc.View(func(tx *Tx) {
			for i, id := range tx.st.textBlocks() {
				if i > 0 {
					out = append(out, Inline{Kind: KindBreak})
				}
				out = append(out, tx.Content(id)...)
			}
		})
	}

	if trail := line[len(strings.TrimRightFunc(line, unicode.IsSpace)):]; trail != "" {
		out = append(out, TextInline(trail))
	}
	return out
}

// escapeBlockMarker backslash-escapes a marker at the start of a trimmed line
// that markdown would read as block syntax.
func escapeBlockMarker(s string) string {
	switch s[0] {
	case '#', '>':
		return `\` + s
	case '`', '~':
		if strings.HasPrefix(s, strings.Repeat(s[:1], 3)) {
			return `\` + s
		}
	case '-', '*', '+', '_':
		if len(s) == 1 || s[1] == ' ' || s[1] == '\t' || thematicBreak(s) {
			return `\` + s
		}
	case '[':
		if strings.Contains(s, "]:") {
			return `\` + s
		}
	}

	digits := 0
	for digits < len(s) && digits < 10 && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < len(s) && (s[digits] == '.' || s[digits] == ')') {
		if digits+1 == len(s) || s[digits+1] == ' ' || s[digits+1] == '\t' {
			return s[:digits] + `\` + s[digits:]
		}
	}
	return s
}

// thematicBreak reports whether s is a line of three or more '-', '*' or '_'
// optionally separated by spaces.
func thematicBreak(s string) bool {
	n := 0
	for _, r := range s {
		switch {
		case r == rune(s[0]):
			n++
		case r == ' ' || r == '\t':
		default:
			return false
		}
	}
	return n >= 3
}
