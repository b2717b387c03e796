package document

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.Blockquote: true, atom.Pre: true, atom.Div: true, atom.Section: true,
	atom.Article: true, atom.Hr: true, atom.Table: true, atom.Thead: true,
	atom.Tbody: true, atom.Tr: true, atom.Td: true, atom.Th: true,
}

var markTags = map[atom.Atom]string{
	atom.B: MarkStrong, atom.Strong: MarkStrong,
	atom.I: MarkEm, atom.Em: MarkEm,
	atom.Code: MarkCode,
	atom.U:    MarkUnderline,
	atom.S:    MarkStrike, atom.Del: MarkStrike, atom.Strike: MarkStrike,
	atom.A: MarkLink,
}

const (
	trackedChangeClass = "tracked-change"
	dataChangeID       = "data-change-id"
)

// ParseHTML builds a document from an HTML fragment. Inline content that is
// not inside a block is wrapped in an implicit paragraph. A rendered tracked
// change span parses back to its original content.
func ParseHTML(src string) (*Document, error) {
	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	st := newState()
	p := &htmlParser{st: st}
	p.blockChildren(st.root, nodes, false)
	if len(st.nodes[st.root].Children) == 0 {
		id := st.add(&Node{Kind: KindBlock, Tag: "p", Parent: st.root})
		st.nodes[st.root].Children = []NodeID{id}
	}
	st.normalize()
	return &Document{st: st, limit: defaultHistoryLimit}, nil
}

type htmlParser struct {
	st *state
}

func isBlock(n *html.Node) bool {
	return n.Type == html.ElementNode && blockTags[n.DataAtom]
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isBlock(c) {
			return true
		}
	}
	return false
}

// blockChildren appends the html siblings under parent. Runs of inline
// content become implicit paragraphs so a block never mixes kinds.
func (p *htmlParser) blockChildren(parent NodeID, nodes []*html.Node, pre bool) {
	var run []Inline
	flush := func() {
		if strings.TrimSpace(InlinesText(run)) == "" && !hasBreak(run) {
			run = nil
			return
		}
		p.appendBlock(parent, "p", run)
		run = nil
	}
	for _, n := range nodes {
		if isBlock(n) {
			flush()
			p.block(parent, n, pre)
			continue
		}
		run = append(run, p.inlines(n, nil, pre)...)
	}
	flush()
}

func hasBreak(ins []Inline) bool {
	for _, in := range ins {
		if in.Kind == KindBreak {
			return true
		}
	}
	return false
}

func (p *htmlParser) block(parent NodeID, n *html.Node, pre bool) {
	pre = pre || n.DataAtom == atom.Pre
	if !hasBlockChild(n) {
		var ins []Inline
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			ins = append(ins, p.inlines(c, nil, pre)...)
		}
		if !pre {
			ins = trimInlines(ins)
		}
		p.appendBlock(parent, n.Data, ins)
		return
	}
	id := p.st.add(&Node{Kind: KindBlock, Tag: n.Data, Parent: parent})
	p.st.nodes[parent].Children = append(p.st.nodes[parent].Children, id)
	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}
	p.blockChildren(id, children, pre)
}

func (p *htmlParser) appendBlock(parent NodeID, tag string, ins []Inline) {
	id := p.st.add(&Node{Kind: KindBlock, Tag: tag, Parent: parent})
	p.st.nodes[parent].Children = append(p.st.nodes[parent].Children, id)
	for _, in := range ins {
		p.st.nodes[id].Children = append(p.st.nodes[id].Children, p.st.build(id, in))
	}
}

func (p *htmlParser) inlines(n *html.Node, marks []Mark, pre bool) []Inline {
	switch n.Type {
	case html.TextNode:
		text := n.Data
		if !pre {
			text = collapseSpace(text)
		}
		if text == "" {
			return nil
		}
		return []Inline{TextInline(text, append([]Mark(nil), marks...)...)}
	case html.ElementNode:
	default:
		return nil
	}

	if n.DataAtom == atom.Br {
		return []Inline{{Kind: KindBreak}}
	}
	if attr(n, dataChangeID) != "" {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.DataAtom == atom.Del {
				return p.children(c, marks, pre)
			}
		}
		return nil
	}
	if mark, ok := markTags[n.DataAtom]; ok {
		m := Mark{Type: mark}
		if mark == MarkLink {
			m.Href = attr(n, "href")
		}
		if !containsMark(marks, m) {
			marks = append(append([]Mark(nil), marks...), m)
		}
	}
	return p.children(n, marks, pre)
}

func (p *htmlParser) children(n *html.Node, marks []Mark, pre bool) []Inline {
	var out []Inline
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, p.inlines(c, marks, pre)...)
	}
	return out
}

func containsMark(marks []Mark, m Mark) bool {
	for _, existing := range marks {
		if existing == m {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !space {
				b.WriteByte(' ')
			}
			space = true
		default:
			b.WriteRune(r)
			space = false
		}
	}
	return b.String()
}

func trimInlines(ins []Inline) []Inline {
	if len(ins) == 0 {
		return ins
	}
	if first := &ins[0]; first.Kind == KindText {
		first.Text = strings.TrimLeft(first.Text, " ")
	}
	if last := &ins[len(ins)-1]; last.Kind == KindText {
		last.Text = strings.TrimRight(last.Text, " ")
	}
	return ins
}

// HTML renders the document. Diff units render as a tracked-change span
// holding the original in <del> and the suggestion in <ins>.
func (d *Document) HTML() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var buf bytes.Buffer
	for _, id := range d.st.nodes[d.st.root].Children {
		if err := html.Render(&buf, d.st.htmlNode(id)); err != nil {
			return buf.String()
		}
	}
	return buf.String()
}

func element(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

func (s *state) htmlNode(id NodeID) *html.Node {
	n := s.nodes[id]
	switch n.Kind {
	case KindBlock:
		el := element(n.Tag)
		for _, c := range n.Children {
			el.AppendChild(s.htmlNode(c))
		}
		return el
	default:
		return renderInline(s.detach(id))
	}
}

func renderInline(in Inline) *html.Node {
	switch in.Kind {
	case KindBreak:
		return element("br")
	case KindDiff:
		span := element("span")
		span.Attr = []html.Attribute{
			{Key: "class", Val: trackedChangeClass},
			{Key: dataChangeID, Val: in.Attrs[AttrChangeID]},
		}
		del := element("del")
		for _, c := range in.Content {
			del.AppendChild(renderInline(c))
		}
		ins := element("ins")
		for _, c := range RenderInlineMarkdown(in.Attrs[AttrSuggested]) {
			ins.AppendChild(renderInline(c))
		}
		span.AppendChild(del)
		span.AppendChild(ins)
		return span
	}

	node := &html.Node{Type: html.TextNode, Data: in.Text}
	for i := len(in.Marks) - 1; i >= 0; i-- {
		m := in.Marks[i]
		wrap := element(m.Type)
		if m.Type == MarkLink && m.Href != "" {
			wrap.Attr = []html.Attribute{{Key: "href", Val: m.Href}}
		}
		wrap.AppendChild(node)
		node = wrap
	}
	return node
}
