// Package review applies tracked changes to the live document. It is the only
// code that creates or collapses diff units.
package review

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"inkpilot/internal/changes"
	"inkpilot/internal/document"
)

var (
	ErrOriginalNotFound = errors.New("original text not found in document")
	ErrNotPending       = errors.New("change is not pending")
	ErrUnknownChange    = errors.New("unknown change")
)

// Proposal is a request to replace a span of the document.
type Proposal struct {
	Original   string
	Suggested  string
	Reason     string
	Occurrence int
}

// Resolution reports the outcome of accepting or rejecting one change.
type Resolution struct {
	Change changes.Change `json:"change"`
	// Applied is false when the diff unit was no longer in the document.
	Applied bool `json:"applied"`
}

type Engine struct {
	mu     sync.Mutex
	doc    *document.Document
	store  *changes.Store
	logger *slog.Logger
}

func NewEngine(doc *document.Document, store *changes.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{doc: doc, store: store, logger: logger}
}

func (e *Engine) Document() *document.Document { return e.doc }

func (e *Engine) Store() *changes.Store { return e.store }

// Propose locates the original text and swaps it for a diff unit. When the
// text is not present nothing is registered and the document is unchanged.
func (e *Engine) Propose(p Proposal) (changes.Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	original := document.NormalizeQuote(p.Original)
	if original == "" {
		return changes.Change{}, ErrOriginalNotFound
	}

	var id string
	err := e.doc.Update(func(tx *document.Tx) error {
		r, ok := tx.FindInTextNodes(original, p.Occurrence)
		if !ok {
			return ErrOriginalNotFound
		}
		marks := tx.MarksAt(r.From)
		suggested := document.WithMarks(document.RenderInlineMarkdown(p.Suggested), marks)

		id = e.store.Add(original, p.Suggested, p.Reason)
		removed, err := tx.DeleteRange(r.From, r.To)
		if err != nil {
			return fmt.Errorf("remove original: %w", err)
		}
		_, err = tx.Insert(r.From, document.Inline{
			Kind: document.KindDiff,
			Attrs: map[string]string{
				document.AttrChangeID:      id,
				document.AttrOriginal:      original,
				document.AttrSuggested:     p.Suggested,
				document.AttrSuggestedText: document.InlinesText(suggested),
			},
			Content: removed,
		})
		if err != nil {
			return fmt.Errorf("insert diff unit: %w", err)
		}
		return nil
	})
	if err != nil {
		if id != "" {
			e.store.Remove(id)
		}
		return changes.Change{}, err
	}

	c, _ := e.store.Get(id)
	e.logger.Debug("change proposed", "id", id, "original", original)
	return c, nil
}

// Accept collapses the diff unit to its suggested content.
func (e *Engine) Accept(id string) (Resolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolve(id, true)
}

// Reject collapses the diff unit back to its original content.
func (e *Engine) Reject(id string) (Resolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolve(id, false)
}

// AcceptAll accepts every pending change in store order. A failure on one
// change does not stop the rest; failures are joined into the returned error.
func (e *Engine) AcceptAll() ([]Resolution, error) {
	return e.resolveAll(true)
}

// RejectAll rejects every pending change in store order.
func (e *Engine) RejectAll() ([]Resolution, error) {
	return e.resolveAll(false)
}

func (e *Engine) resolveAll(accept bool) ([]Resolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		out  []Resolution
		errs []error
	)
	for _, c := range e.store.Pending() {
		res, err := e.resolve(c.ID, accept)
		if err != nil {
			errs = append(errs, fmt.Errorf("change %s: %w", c.ID, err))
			continue
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

func (e *Engine) resolve(id string, accept bool) (Resolution, error) {
	c, ok := e.store.Get(id)
	if !ok {
		return Resolution{}, ErrUnknownChange
	}
	if !c.Pending() {
		// Decided already. A unit left behind by history is collapsed the way
		// it was decided, whatever was asked this time.
		applied, err := e.collapse(e.doc.Update, c)
		if err != nil {
			return Resolution{}, err
		}
		e.logger.Debug("change already resolved", "id", id, "status", c.Status)
		return Resolution{Change: c, Applied: applied}, nil
	}

	if accept {
		c.Status = changes.StatusAccepted
	} else {
		c.Status = changes.StatusRejected
	}
	applied, err := e.collapse(e.doc.Update, c)
	if err != nil {
		return Resolution{}, err
	}
	if !applied {
		e.logger.Warn("diff unit missing, recording decision only", "id", id, "accept", accept)
	}

	if accept {
		c, ok = e.store.Accept(id)
	} else {
		c, ok = e.store.Reject(id)
	}
	if !ok {
		return Resolution{}, ErrNotPending
	}
	return Resolution{Change: c, Applied: applied}, nil
}

// collapse replaces the diff unit of c with its suggested content when c is
// accepted and with its original content otherwise. It reports whether the
// unit was in the document.
func (e *Engine) collapse(commit func(func(*document.Tx) error) error, c changes.Change) (bool, error) {
	applied := false
	err := commit(func(tx *document.Tx) error {
		nodeID, found := tx.FindAttr(document.KindDiff, document.AttrChangeID, c.ID)
		if !found {
			return nil
		}
		applied = true
		return tx.ReplaceNode(nodeID, unitContent(tx, nodeID, c)...)
	})
	if err != nil {
		return false, fmt.Errorf("collapse diff unit: %w", err)
	}
	return applied, nil
}

func unitContent(tx *document.Tx, nodeID document.NodeID, c changes.Change) []document.Inline {
	original := tx.Content(nodeID)
	if c.Status == changes.StatusAccepted {
		return suggestedContent(c.Suggested, original)
	}
	return original
}

// Undo steps the document back one edit. Diff units restored for changes that
// are already decided, or no longer known, are collapsed to match the store.
func (e *Engine) Undo() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.doc.Undo() {
		return false, nil
	}
	return true, e.reconcile()
}

// Redo reapplies the last undone edit and reconciles it like Undo.
func (e *Engine) Redo() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.doc.Redo() {
		return false, nil
	}
	return true, e.reconcile()
}

// reconcile collapses every diff unit whose change is not pending. The fix-up
// belongs to the history step that exposed it, so it is not undoable itself.
func (e *Engine) reconcile() error {
	var stale []changes.Change
	for _, u := range e.doc.DiffUnits() {
		c, ok := e.store.Get(u.ChangeID)
		switch {
		case !ok:
			stale = append(stale, changes.Change{ID: u.ChangeID, Status: changes.StatusRejected})
		case !c.Pending():
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		if _, err := e.collapse(e.doc.Amend, c); err != nil {
			return fmt.Errorf("change %s: %w", c.ID, err)
		}
		e.logger.Debug("reconciled diff unit after history step", "id", c.ID, "status", c.Status)
	}
	return nil
}

// suggestedContent renders the suggestion with the marks that applied at the
// start of the displaced original.
func suggestedContent(suggested string, original []document.Inline) []document.Inline {
	var marks []document.Mark
	if len(original) > 0 && original[0].Kind == document.KindText {
		marks = original[0].Marks
	}
	return document.WithMarks(document.RenderInlineMarkdown(suggested), marks)
}

// Hunks returns a word-level diff of a change's original and suggestion.
func (e *Engine) Hunks(id string) ([]Segment, error) {
	c, ok := e.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("change %s: %w", id, ErrUnknownChange)
	}
	return WordDiff(c.Original, c.Suggested), nil
}
