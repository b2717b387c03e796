package document

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrOutOfRange  = errors.New("position out of range")
	ErrInsideAtom  = errors.New("position falls inside an atom node")
	ErrNotInline   = errors.New("node is not inline content")
	ErrNodeMissing = errors.New("node not found")
)

// Range is a half-open span in plain-text coordinates.
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (r Range) Len() int { return r.To - r.From }

type state struct {
	nodes map[NodeID]*Node
	root  NodeID
	next  NodeID
}

func newState() *state {
	s := &state{nodes: make(map[NodeID]*Node)}
	s.root = s.add(&Node{Kind: KindRoot})
	return s
}

func (s *state) clone() *state {
	c := &state{
		nodes: make(map[NodeID]*Node, len(s.nodes)),
		root:  s.root,
		next:  s.next,
	}
	for id, n := range s.nodes {
		c.nodes[id] = n.clone()
	}
	return c
}

func (s *state) add(n *Node) NodeID {
	s.next++
	n.ID = s.next
	s.nodes[n.ID] = n
	return n.ID
}

func (s *state) node(id NodeID) *Node {
	return s.nodes[id]
}

// build materializes a detached inline under parent and returns its id.
func (s *state) build(parent NodeID, in Inline) NodeID {
	n := &Node{
		Kind:   in.Kind,
		Text:   in.Text,
		Marks:  append([]Mark(nil), in.Marks...),
		Parent: parent,
	}
	if len(in.Attrs) > 0 {
		n.Attrs = make(map[string]string, len(in.Attrs))
		for k, v := range in.Attrs {
			n.Attrs[k] = v
		}
	}
	id := s.add(n)
	for _, child := range in.Content {
		n.Children = append(n.Children, s.build(id, child))
	}
	return id
}

// detach converts a subtree back into an Inline.
func (s *state) detach(id NodeID) Inline {
	n := s.nodes[id]
	in := Inline{Kind: n.Kind, Text: n.Text, Marks: append([]Mark(nil), n.Marks...)}
	if len(n.Attrs) > 0 {
		in.Attrs = make(map[string]string, len(n.Attrs))
		for k, v := range n.Attrs {
			in.Attrs[k] = v
		}
	}
	for _, child := range n.Children {
		in.Content = append(in.Content, s.detach(child))
	}
	return in
}

func (s *state) drop(id NodeID) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	for _, child := range n.Children {
		s.drop(child)
	}
	delete(s.nodes, id)
}

// removeBlock unlinks an emptied block and any container it leaves empty.
func (s *state) removeBlock(id NodeID) {
	n, ok := s.nodes[id]
	if !ok || id == s.root {
		return
	}
	parent := s.nodes[n.Parent]
	s.drop(id)
	if parent == nil {
		return
	}
	parent.Children = slices.DeleteFunc(parent.Children, func(c NodeID) bool { return c == id })
	if parent.ID != s.root && len(parent.Children) == 0 {
		s.removeBlock(parent.ID)
	}
}

// isTextBlock reports whether a block holds inline content (or nothing).
func (s *state) isTextBlock(n *Node) bool {
	if n.Kind != KindBlock {
		return false
	}
	for _, c := range n.Children {
		if !s.nodes[c].Kind.Inline() {
			return false
		}
	}
	return true
}

// textBlocks returns the text blocks in document order.
func (s *state) textBlocks() []NodeID {
	var out []NodeID
	var walk func(id NodeID)
	walk = func(id NodeID) {
		n := s.nodes[id]
		if s.isTextBlock(n) {
			out = append(out, id)
			return
		}
		for _, c := range n.Children {
			if s.nodes[c].Kind.Inline() {
				continue
			}
			walk(c)
		}
	}
	walk(s.root)
	return out
}

func (s *state) inlineLen(n *Node) int {
	switch n.Kind {
	case KindText:
		return len(n.Text)
	case KindBreak:
		return 1
	case KindDiff:
		return len(n.Attrs[AttrSuggestedText])
	default:
		return 0
	}
}

func (s *state) inlineText(n *Node) string {
	switch n.Kind {
	case KindText:
		return n.Text
	case KindBreak:
		return "\n"
	case KindDiff:
		return n.Attrs[AttrSuggestedText]
	default:
		return ""
	}
}

type blockSpan struct {
	id         NodeID
	start, end int
}

func (s *state) layout() []blockSpan {
	blocks := s.textBlocks()
	spans := make([]blockSpan, 0, len(blocks))
	pos := 0
	for i, id := range blocks {
		if i > 0 {
			pos++
		}
		start := pos
		for _, c := range s.nodes[id].Children {
			pos += s.inlineLen(s.nodes[c])
		}
		spans = append(spans, blockSpan{id: id, start: start, end: pos})
	}
	return spans
}

func (s *state) text() string {
	var b strings.Builder
	for i, id := range s.textBlocks() {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, c := range s.nodes[id].Children {
			b.WriteString(s.inlineText(s.nodes[c]))
		}
	}
	return b.String()
}

// blockAt finds the text block whose span contains pos.
func (s *state) blockAt(pos int) (blockSpan, error) {
	for _, span := range s.layout() {
		if pos >= span.start && pos <= span.end {
			return span, nil
		}
	}
	return blockSpan{}, fmt.Errorf("%w: %d", ErrOutOfRange, pos)
}

// split guarantees a child boundary at absolute pos inside span and returns
// the child index at that boundary.
func (s *state) split(span blockSpan, pos int) (int, error) {
	block := s.nodes[span.id]
	offset := span.start
	for i, cid := range block.Children {
		if pos == offset {
			return i, nil
		}
		child := s.nodes[cid]
		l := s.inlineLen(child)
		if pos < offset+l {
			if child.Kind != KindText {
				return 0, ErrInsideAtom
			}
			at := pos - offset
			right := &Node{
				Kind:   KindText,
				Text:   child.Text[at:],
				Marks:  append([]Mark(nil), child.Marks...),
				Parent: block.ID,
			}
			child.Text = child.Text[:at]
			rid := s.add(right)
			block.Children = insertIDs(block.Children, i+1, rid)
			return i + 1, nil
		}
		offset += l
	}
	if pos == offset {
		return len(block.Children), nil
	}
	return 0, fmt.Errorf("%w: %d", ErrOutOfRange, pos)
}

// normalize merges adjacent text siblings with equal marks and drops empty text.
func (s *state) normalize() {
	for _, bid := range s.textBlocks() {
		block := s.nodes[bid]
		kept := block.Children[:0]
		var prev *Node
		for _, cid := range block.Children {
			n := s.nodes[cid]
			if n.Kind == KindText && n.Text == "" {
				delete(s.nodes, cid)
				continue
			}
			if n.Kind == KindText && prev != nil && prev.Kind == KindText && sameMarks(prev.Marks, n.Marks) {
				prev.Text += n.Text
				delete(s.nodes, cid)
				continue
			}
			kept = append(kept, cid)
			prev = n
		}
		block.Children = kept
	}
}

func insertIDs(ids []NodeID, at int, add ...NodeID) []NodeID {
	out := make([]NodeID, 0, len(ids)+len(add))
	out = append(out, ids[:at]...)
	out = append(out, add...)
	return append(out, ids[at:]...)
}
