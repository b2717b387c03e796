// Package editor holds the live document session the document tools act on:
// the open file, the user's selection, comments and pending tracked changes.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"inkpilot/internal/changes"
	"inkpilot/internal/document"
	"inkpilot/internal/events"
	"inkpilot/internal/llm/tools"
	"inkpilot/internal/review"
)

var (
	ErrNoSelection   = errors.New("no text is selected")
	ErrQuoteNotFound = errors.New("quoted text not found in document")
)

const searchContext = 40

type Comment struct {
	ID        string         `json:"id"`
	Quote     string         `json:"quote"`
	Text      string         `json:"text"`
	Range     document.Range `json:"range"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Selection is the user's current selection. A collapsed selection is a cursor.
type Selection struct {
	Path string `json:"path,omitempty"`
	From int    `json:"from"`
	To   int    `json:"to"`
	Text string `json:"text"`
}

type SearchHit struct {
	From    int    `json:"from"`
	To      int    `json:"to"`
	Context string `json:"context"`
}

// Editor implements tools.DocumentTools. It is safe for concurrent use.
type Editor struct {
	mu        sync.Mutex
	engine    *review.Engine
	path      string
	selection document.Range
	comments  []Comment
	logger    *slog.Logger
}

var _ tools.DocumentTools = (*Editor)(nil)

func New(logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{
		engine: review.NewEngine(document.New(), changes.NewStore(), logger),
		logger: logger,
	}
}

// Engine returns the review engine of the open document. It changes when a
// new file is opened.
func (e *Editor) Engine() *review.Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.engine
}

func (e *Editor) Document() *document.Document {
	return e.Engine().Document()
}

func (e *Editor) Path() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path
}

// Load replaces the open document. Content that looks like markup is parsed as
// HTML, anything else as markdown. Pending changes and comments are dropped.
func (e *Editor) Load(path, content string) error {
	var (
		doc *document.Document
		err error
	)
	if document.LooksLikeMarkup(content) {
		doc, err = document.ParseHTML(content)
	} else {
		doc, err = document.FromMarkdown(content)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.engine = review.NewEngine(doc, changes.NewStore(), e.logger)
	e.path = path
	e.selection = document.Range{}
	e.comments = nil
	return nil
}

// Select sets the selection. from == to places the cursor.
func (e *Editor) Select(from, to int) error {
	if from > to {
		from, to = to, from
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if from < 0 || to > len(e.engine.Document().Text()) {
		return fmt.Errorf("%w: %d-%d", document.ErrOutOfRange, from, to)
	}
	e.selection = document.Range{From: from, To: to}
	return nil
}

func (e *Editor) Selection() Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectionLocked()
}

func (e *Editor) selectionLocked() Selection {
	text := e.engine.Document().Text()
	r := e.clampLocked(len(text))
	return Selection{Path: e.path, From: r.From, To: r.To, Text: text[r.From:r.To]}
}

// clampLocked keeps the selection inside the document after edits elsewhere
// shortened it.
func (e *Editor) clampLocked(n int) document.Range {
	r := e.selection
	r.From = min(max(r.From, 0), n)
	r.To = min(max(r.To, r.From), n)
	return r
}

func (e *Editor) Comments() []Comment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Comment(nil), e.comments...)
}

func (e *Editor) InsertText(ctx context.Context, text string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc := e.engine.Document()
	pos := e.clampLocked(len(doc.Text())).To
	var inserted int
	err := doc.Update(func(tx *document.Tx) error {
		ins := document.WithMarks(document.RenderInlineMarkdown(text), tx.MarksAt(pos))
		if _, err := tx.Insert(pos, ins...); err != nil {
			return err
		}
		inserted = len(document.InlinesText(ins))
		return nil
	})
	if err != nil {
		return "", err
	}
	e.selection = document.Range{From: pos + inserted, To: pos + inserted}
	return fmt.Sprintf("Inserted %d characters at position %d", inserted, pos), nil
}

func (e *Editor) ReplaceSelection(ctx context.Context, text string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc := e.engine.Document()
	r := e.clampLocked(len(doc.Text()))
	if r.Len() == 0 {
		return "", ErrNoSelection
	}
	var inserted int
	err := doc.Update(func(tx *document.Tx) error {
		ins := document.WithMarks(document.RenderInlineMarkdown(text), tx.MarksAt(r.From))
		if _, _, err := tx.Replace(r.From, r.To, ins...); err != nil {
			return err
		}
		inserted = len(document.InlinesText(ins))
		return nil
	})
	if err != nil {
		return "", err
	}
	e.selection = document.Range{From: r.From, To: r.From + inserted}
	return fmt.Sprintf("Replaced %d characters with %d characters", r.Len(), inserted), nil
}

func (e *Editor) SuggestEdit(ctx context.Context, original, suggested, reason string, occurrence int) (string, error) {
	engine := e.Engine()
	c, err := engine.Propose(review.Proposal{
		Original:   original,
		Suggested:  suggested,
		Reason:     reason,
		Occurrence: occurrence,
	})
	if err != nil {
		return "", err
	}
	events.Emit(ctx, events.ReviewEventChanges,
		events.NewInfo("suggested edit pending review").WithData(c).WithMeta("changeId", c.ID))
	return fmt.Sprintf("Suggested edit %s is pending review (%d pending)", c.ID, engine.Store().PendingCount()), nil
}

func (e *Editor) AddComment(ctx context.Context, quote, comment string) (string, error) {
	q := document.NormalizeQuote(quote)
	if strings.TrimSpace(comment) == "" {
		return "", errors.New("comment text is empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	hits := e.engine.Document().Search(q)
	if len(hits) == 0 {
		return "", ErrQuoteNotFound
	}
	c := Comment{
		ID:        uuid.NewString(),
		Quote:     q,
		Text:      comment,
		Range:     hits[0],
		CreatedAt: time.Now(),
	}
	e.comments = append(e.comments, c)
	return fmt.Sprintf("Comment %s added at %d-%d", c.ID, c.Range.From, c.Range.To), nil
}

func (e *Editor) GetSelection(ctx context.Context) (string, error) {
	return tools.JSONOutput(e.Selection())
}

func (e *Editor) SearchDocument(ctx context.Context, query string) (string, error) {
	doc := e.Document()
	text := doc.Text()
	hits := []SearchHit{}
	for _, r := range doc.Search(query) {
		from := max(r.From-searchContext, 0)
		for from > 0 && !utf8.RuneStart(text[from]) {
			from--
		}
		to := min(r.To+searchContext, len(text))
		for to < len(text) && !utf8.RuneStart(text[to]) {
			to++
		}
		hits = append(hits, SearchHit{From: r.From, To: r.To, Context: text[from:to]})
	}
	return tools.JSONOutput(hits)
}

func (e *Editor) OpenFile(ctx context.Context, path, content string) (string, error) {
	if err := e.Load(path, content); err != nil {
		return "", err
	}
	return fmt.Sprintf("Opened %s in the editor (%d characters)", path, len(e.Document().Text())), nil
}
