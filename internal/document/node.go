// Package document implements the live rich-text tree edited by the agent and
// the user. Nodes live in an arena keyed by NodeID and carry an explicit Kind.
package document

import (
	"maps"
	"slices"
)

type NodeID int

type Kind uint8

const (
	KindRoot Kind = iota
	KindBlock
	KindText
	KindBreak
	// KindDiff is an atom holding a pending tracked change. Its children are
	// the original inline content it displaced.
	KindDiff
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindBlock:
		return "block"
	case KindText:
		return "text"
	case KindBreak:
		return "break"
	case KindDiff:
		return "diff"
	default:
		return "unknown"
	}
}

// Inline reports whether nodes of kind k sit inside text blocks.
func (k Kind) Inline() bool {
	return k == KindText || k == KindBreak || k == KindDiff
}

const (
	MarkStrong    = "strong"
	MarkEm        = "em"
	MarkCode      = "code"
	MarkUnderline = "u"
	MarkStrike    = "s"
	MarkLink      = "a"
)

// Mark is an inline formatting annotation on a text node.
type Mark struct {
	Type string `json:"type"`
	Href string `json:"href,omitempty"`
}

// Attribute keys used by diff units.
const (
	AttrChangeID      = "change-id"
	AttrOriginal      = "original"
	AttrSuggested     = "suggested"
	AttrSuggestedText = "suggested-text"
)

type Node struct {
	ID       NodeID
	Kind     Kind
	Tag      string
	Text     string
	Marks    []Mark
	Attrs    map[string]string
	Parent   NodeID
	Children []NodeID
}

func (n *Node) clone() *Node {
	c := *n
	c.Marks = slices.Clone(n.Marks)
	c.Children = slices.Clone(n.Children)
	if n.Attrs != nil {
		c.Attrs = maps.Clone(n.Attrs)
	}
	return &c
}

// Inline is a detached inline node used to build content for insertion and to
// hand removed content back to callers.
type Inline struct {
	Kind    Kind              `json:"kind"`
	Text    string            `json:"text,omitempty"`
	Marks   []Mark            `json:"marks,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Content []Inline          `json:"content,omitempty"`
}

// TextInline builds a text Inline.
func TextInline(text string, marks ...Mark) Inline {
	return Inline{Kind: KindText, Text: text, Marks: marks}
}

// PlainText returns the text an inline contributes to the plain-text view.
func (in Inline) PlainText() string {
	switch in.Kind {
	case KindText:
		return in.Text
	case KindBreak:
		return "\n"
	case KindDiff:
		return in.Attrs[AttrSuggestedText]
	default:
		return ""
	}
}

// InlinesText concatenates the plain text of a run of inlines.
func InlinesText(ins []Inline) string {
	var out []byte
	for _, in := range ins {
		out = append(out, in.PlainText()...)
	}
	return string(out)
}

// WithMarks returns a copy of ins where every text node also carries marks.
func WithMarks(ins []Inline, marks []Mark) []Inline {
	if len(marks) == 0 {
		return ins
	}
	out := make([]Inline, len(ins))
	for i, in := range ins {
		out[i] = in
		if in.Kind != KindText {
			continue
		}
		merged := slices.Clone(marks)
		for _, m := range in.Marks {
			if !slices.Contains(merged, m) {
				merged = append(merged, m)
			}
		}
		out[i].Marks = merged
	}
	return out
}

func sameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for _, m := range a {
		if !slices.Contains(b, m) {
			return false
		}
	}
	return true
}
