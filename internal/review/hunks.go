package review

import (
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type Segment struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

const (
	OpEqual  = "equal"
	OpInsert = "insert"
	OpDelete = "delete"
)

// maxTokens keeps token runes below the surrogate range.
const maxTokens = 0xD000

// WordDiff diffs before and after on word boundaries. Runs of whitespace are
// their own tokens so the segments concatenate back to the inputs.
func WordDiff(before, after string) []Segment {
	dmp := diffmatchpatch.New()

	index := map[string]rune{}
	var tokens []string
	encode := func(s string) ([]rune, bool) {
		var out []rune
		for _, tok := range splitWords(s) {
			r, ok := index[tok]
			if !ok {
				if len(tokens) >= maxTokens {
					return nil, false
				}
				r = rune(len(tokens))
				index[tok] = r
				tokens = append(tokens, tok)
			}
			out = append(out, r)
		}
		return out, true
	}

	a, okA := encode(before)
	b, okB := encode(after)
	var diffs []diffmatchpatch.Diff
	if okA && okB {
		diffs = dmp.DiffMainRunes(a, b, false)
		for i := range diffs {
			var text []byte
			for _, r := range diffs[i].Text {
				text = append(text, tokens[r]...)
			}
			diffs[i].Text = string(text)
		}
	} else {
		diffs = dmp.DiffMain(before, after, false)
		diffs = dmp.DiffCleanupSemantic(diffs)
	}

	var out []Segment
	for _, d := range diffs {
		op := OpEqual
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = OpInsert
		case diffmatchpatch.DiffDelete:
			op = OpDelete
		}
		if n := len(out); n > 0 && out[n-1].Op == op {
			out[n-1].Text += d.Text
			continue
		}
		out = append(out, Segment{Op: op, Text: d.Text})
	}
	return out
}

func splitWords(s string) []string {
	var out []string
	start := 0
	prevSpace := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if i > start && space != prevSpace {
			out = append(out, s[start:i])
			start = i
		}
		prevSpace = space
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
