package document

import (
	"fmt"
	"strings"
	"sync"
)

const defaultHistoryLimit = 100

// Document is a mutable tree guarded by a single lock. All mutations go
// through Update so readers never observe a half-applied edit.
type Document struct {
	mu      sync.RWMutex
	st      *state
	undo    []*state
	redo    []*state
	version uint64
	limit   int
}

// New returns a document holding a single empty paragraph.
func New() *Document {
	st := newState()
	p := st.add(&Node{Kind: KindBlock, Tag: "p", Parent: st.root})
	st.nodes[st.root].Children = []NodeID{p}
	return &Document{st: st, limit: defaultHistoryLimit}
}

// FromText builds a document with one paragraph per line of text.
func FromText(text string) *Document {
	st := newState()
	for _, line := range strings.Split(text, "\n") {
		p := st.add(&Node{Kind: KindBlock, Tag: "p", Parent: st.root})
		st.nodes[st.root].Children = append(st.nodes[st.root].Children, p)
		if line != "" {
			t := st.build(p, TextInline(line))
			st.nodes[p].Children = []NodeID{t}
		}
	}
	return &Document{st: st, limit: defaultHistoryLimit}
}

func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Text returns the plain-text view of the document.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.st.text()
}

// Update runs fn against a private copy of the tree and commits the result
// atomically when fn succeeds. On error the document is left untouched.
func (d *Document) Update(fn func(tx *Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx := &Tx{st: d.st.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}
	tx.st.normalize()

	d.undo = append(d.undo, d.st)
	if len(d.undo) > d.limit {
		d.undo = d.undo[len(d.undo)-d.limit:]
	}
	d.redo = nil
	d.st = tx.st
	d.version++
	return nil
}

// Amend is Update without a history entry: the result replaces the current
// state in place and the undo and redo stacks are kept.
func (d *Document) Amend(fn func(tx *Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx := &Tx{st: d.st.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}
	tx.st.normalize()
	d.st = tx.st
	d.version++
	return nil
}

// View runs fn against the current tree without allowing mutation.
func (d *Document) View(fn func(tx *Tx)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(&Tx{st: d.st, readOnly: true})
}

// Undo restores the state before the last committed Update.
func (d *Document) Undo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.undo) == 0 {
		return false
	}
	d.redo = append(d.redo, d.st)
	d.st = d.undo[len(d.undo)-1]
	d.undo = d.undo[:len(d.undo)-1]
	d.version++
	return true
}

// Redo reapplies the last undone Update.
func (d *Document) Redo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.redo) == 0 {
		return false
	}
	d.undo = append(d.undo, d.st)
	d.st = d.redo[len(d.redo)-1]
	d.redo = d.redo[:len(d.redo)-1]
	d.version++
	return true
}

// Search returns every occurrence of query in the plain-text view.
func (d *Document) Search(query string) []Range {
	if query == "" {
		return nil
	}
	text := d.Text()
	var out []Range
	for start := 0; ; {
		i := strings.Index(text[start:], query)
		if i < 0 {
			return out
		}
		from := start + i
		out = append(out, Range{From: from, To: from + len(query)})
		start = from + len(query)
	}
}

// Contains reports whether the plain-text view holds query as a contiguous run.
func (d *Document) Contains(query string) bool {
	return strings.Contains(d.Text(), query)
}

// DiffUnit describes a pending tracked change embedded in the tree.
type DiffUnit struct {
	NodeID    NodeID `json:"-"`
	ChangeID  string `json:"changeId"`
	Original  string `json:"original"`
	Suggested string `json:"suggested"`
	Range     Range  `json:"range"`
}

// DiffUnits lists the diff units in document order.
func (d *Document) DiffUnits() []DiffUnit {
	var out []DiffUnit
	d.View(func(tx *Tx) {
		for _, span := range tx.st.layout() {
			offset := span.start
			for _, cid := range tx.st.nodes[span.id].Children {
				n := tx.st.nodes[cid]
				l := tx.st.inlineLen(n)
				if n.Kind == KindDiff {
					out = append(out, DiffUnit{
						NodeID:    n.ID,
						ChangeID:  n.Attrs[AttrChangeID],
						Original:  n.Attrs[AttrOriginal],
						Suggested: n.Attrs[AttrSuggested],
						Range:     Range{From: offset, To: offset + l},
					})
				}
				offset += l
			}
		}
	})
	return out
}

// Tx is a view of the tree inside Update or View.
type Tx struct {
	st       *state
	dirty    bool
	readOnly bool
}

func (tx *Tx) mutate() error {
	if tx.readOnly {
		return fmt.Errorf("document: mutation in read-only view")
	}
	tx.dirty = true
	return nil
}

// Text returns the plain-text view as of this transaction.
func (tx *Tx) Text() string {
	return tx.st.text()
}

// Node returns a read-only copy of the node with id.
func (tx *Tx) Node(id NodeID) (Node, bool) {
	n, ok := tx.st.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n.clone(), true
}

// TextNode is a text node together with its absolute start offset.
type TextNode struct {
	ID    NodeID
	Text  string
	Start int
}

// TextNodes lists the text nodes of the tree in order.
func (tx *Tx) TextNodes() []TextNode {
	var out []TextNode
	for _, span := range tx.st.layout() {
		offset := span.start
		for _, cid := range tx.st.nodes[span.id].Children {
			n := tx.st.nodes[cid]
			if n.Kind == KindText {
				out = append(out, TextNode{ID: n.ID, Text: n.Text, Start: offset})
			}
			offset += tx.st.inlineLen(n)
		}
	}
	return out
}

// FindInTextNodes performs an in-order traversal of text nodes and returns the
// range of the occurrence-th match (1-based) of needle inside a single node.
func (tx *Tx) FindInTextNodes(needle string, occurrence int) (Range, bool) {
	if needle == "" {
		return Range{}, false
	}
	if occurrence < 1 {
		occurrence = 1
	}
	seen := 0
	for _, tn := range tx.TextNodes() {
		for start := 0; start <= len(tn.Text)-len(needle); {
			i := strings.Index(tn.Text[start:], needle)
			if i < 0 {
				break
			}
			seen++
			from := tn.Start + start + i
			if seen == occurrence {
				return Range{From: from, To: from + len(needle)}, true
			}
			start += i + len(needle)
		}
	}
	return Range{}, false
}

// MarksAt returns the marks of the text covering the character at pos.
func (tx *Tx) MarksAt(pos int) []Mark {
	span, err := tx.st.blockAt(pos)
	if err != nil {
		return nil
	}
	children := tx.st.nodes[span.id].Children
	offset := span.start
	for i, cid := range children {
		n := tx.st.nodes[cid]
		l := tx.st.inlineLen(n)
		last := i == len(children)-1
		if pos < offset+l || (last && pos == offset+l) {
			if n.Kind == KindText {
				return append([]Mark(nil), n.Marks...)
			}
			return nil
		}
		offset += l
	}
	return nil
}

// DeleteRange removes [from, to) and returns the removed inline content.
// When the range crosses block boundaries the tail of the last block is
// joined onto the first, the blocks in between are dropped, and every
// crossed boundary shows up in the removed content as a break.
func (tx *Tx) DeleteRange(from, to int) ([]Inline, error) {
	if err := tx.mutate(); err != nil {
		return nil, err
	}
	if from < 0 || to < from {
		return nil, fmt.Errorf("%w: [%d,%d)", ErrOutOfRange, from, to)
	}
	span, err := tx.st.blockAt(from)
	if err != nil {
		return nil, err
	}
	if to > span.end {
		return tx.deleteAcross(span, from, to)
	}
	i, err := tx.st.split(span, from)
	if err != nil {
		return nil, err
	}
	j, err := tx.st.split(span, to)
	if err != nil {
		return nil, err
	}
	block := tx.st.nodes[span.id]
	removed := make([]Inline, 0, j-i)
	for _, cid := range block.Children[i:j] {
		removed = append(removed, tx.st.detach(cid))
		tx.st.drop(cid)
	}
	block.Children = append(block.Children[:i:i], block.Children[j:]...)
	return removed, nil
}

func (tx *Tx) deleteAcross(first blockSpan, from, to int) ([]Inline, error) {
	var (
		inner []blockSpan
		last  blockSpan
		found bool
	)
	for _, sp := range tx.st.layout() {
		if sp.start <= first.start {
			continue
		}
		if to <= sp.end {
			last, found = sp, true
			break
		}
		inner = append(inner, sp)
	}
	if !found || to < last.start {
		return nil, fmt.Errorf("%w: [%d,%d)", ErrOutOfRange, from, to)
	}

	// Splitting the first block leaves later offsets unchanged.
	i, err := tx.st.split(first, from)
	if err != nil {
		return nil, err
	}
	j, err := tx.st.split(last, to)
	if err != nil {
		return nil, err
	}

	var removed []Inline
	take := func(ids []NodeID) {
		for _, cid := range ids {
			removed = append(removed, tx.st.detach(cid))
			tx.st.drop(cid)
		}
	}
	head := tx.st.nodes[first.id]
	tail := tx.st.nodes[last.id]

	take(head.Children[i:])
	for _, sp := range inner {
		removed = append(removed, Inline{Kind: KindBreak})
		take(tx.st.nodes[sp.id].Children)
		tx.st.nodes[sp.id].Children = nil
		tx.st.removeBlock(sp.id)
	}
	removed = append(removed, Inline{Kind: KindBreak})
	take(tail.Children[:j])

	kept := tail.Children[j:]
	for _, cid := range kept {
		tx.st.nodes[cid].Parent = head.ID
	}
	head.Children = append(head.Children[:i:i], kept...)
	tail.Children = nil
	tx.st.removeBlock(last.id)
	return removed, nil
}

// Insert places inline content at pos and returns the ids of the new nodes.
func (tx *Tx) Insert(pos int, ins ...Inline) ([]NodeID, error) {
	if err := tx.mutate(); err != nil {
		return nil, err
	}
	span, err := tx.st.blockAt(pos)
	if err != nil {
		return nil, err
	}
	i, err := tx.st.split(span, pos)
	if err != nil {
		return nil, err
	}
	block := tx.st.nodes[span.id]
	ids := make([]NodeID, 0, len(ins))
	for _, in := range ins {
		ids = append(ids, tx.st.build(block.ID, in))
	}
	block.Children = insertIDs(block.Children, i, ids...)
	return ids, nil
}

// Replace deletes [from, to) and inserts ins in its place as one step.
func (tx *Tx) Replace(from, to int, ins ...Inline) ([]Inline, []NodeID, error) {
	removed, err := tx.DeleteRange(from, to)
	if err != nil {
		return nil, nil, err
	}
	ids, err := tx.Insert(from, ins...)
	if err != nil {
		return nil, nil, err
	}
	return removed, ids, nil
}

// FindAttr returns the first node of kind whose attribute key equals value.
func (tx *Tx) FindAttr(kind Kind, key, value string) (NodeID, bool) {
	var found NodeID
	var walk func(id NodeID) bool
	walk = func(id NodeID) bool {
		n := tx.st.nodes[id]
		if n.Kind == kind && n.Attrs[key] == value {
			found = id
			return true
		}
		if n.Kind == KindDiff {
			return false
		}
		for _, c := range n.Children {
			if walk(c) {
				return true
			}
		}
		return false
	}
	return found, walk(tx.st.root)
}

// Content returns the detached children of node id.
func (tx *Tx) Content(id NodeID) []Inline {
	n, ok := tx.st.nodes[id]
	if !ok {
		return nil
	}
	out := make([]Inline, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, tx.st.detach(c))
	}
	return out
}

// ReplaceNode swaps an inline node for ins, keeping its position.
func (tx *Tx) ReplaceNode(id NodeID, ins ...Inline) error {
	if err := tx.mutate(); err != nil {
		return err
	}
	n, ok := tx.st.nodes[id]
	if !ok {
		return ErrNodeMissing
	}
	if !n.Kind.Inline() {
		return ErrNotInline
	}
	parent := tx.st.nodes[n.Parent]
	at := -1
	for i, c := range parent.Children {
		if c == id {
			at = i
			break
		}
	}
	if at < 0 {
		return ErrNodeMissing
	}
	ids := make([]NodeID, 0, len(ins))
	for _, in := range ins {
		ids = append(ids, tx.st.build(parent.ID, in))
	}
	rest := append([]NodeID(nil), parent.Children[at+1:]...)
	parent.Children = append(append(parent.Children[:at], ids...), rest...)
	tx.st.drop(id)
	return nil
}
