package review

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkpilot/internal/changes"
	"inkpilot/internal/document"
)

func newEngine(text string) *Engine {
	return NewEngine(document.FromText(text), changes.NewStore(), nil)
}

func TestPropose_CatToDog(t *testing.T) {
	e := newEngine("The cat sat.")

	c, err := e.Propose(Proposal{Original: "cat", Suggested: "dog", Reason: "prefer dogs"})
	require.NoError(t, err)
	assert.Equal(t, changes.StatusPending, c.Status)
	assert.Equal(t, 1, e.Store().PendingCount())

	doc := e.Document()
	assert.True(t, doc.Contains("dog"))
	assert.False(t, doc.Contains("The cat sat."))
	units := doc.DiffUnits()
	require.Len(t, units, 1)
	assert.Equal(t, c.ID, units[0].ChangeID)

	res, err := e.Accept(c.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, changes.StatusAccepted, res.Change.Status)
	assert.Equal(t, "The dog sat.", doc.Text())
	assert.Empty(t, doc.DiffUnits())
}

func TestReject_RestoresOriginal(t *testing.T) {
	e := newEngine("The cat sat.")
	before := e.Document().Text()

	c, err := e.Propose(Proposal{Original: "cat", Suggested: "dog"})
	require.NoError(t, err)
	assert.True(t, e.Document().Contains("dog"))

	res, err := e.Reject(c.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, before, e.Document().Text())
	assert.True(t, e.Document().Contains("cat"))
	assert.False(t, e.Document().Contains("dog"))
}

func TestPropose_NotFoundLeavesNoTrace(t *testing.T) {
	e := newEngine("The cat sat.")
	version := e.Document().Version()

	_, err := e.Propose(Proposal{Original: "bird", Suggested: "dog"})
	assert.ErrorIs(t, err, ErrOriginalNotFound)
	assert.Empty(t, e.Store().List())
	assert.Equal(t, version, e.Document().Version())
	assert.Equal(t, "The cat sat.", e.Document().Text())
}

func TestPropose_NormalizesMarkup(t *testing.T) {
	e := newEngine("The cat sat.")
	c, err := e.Propose(Proposal{Original: "<b>cat</b>", Suggested: "dog"})
	require.NoError(t, err)
	assert.Equal(t, "cat", c.Original)
}

func TestPropose_Occurrence(t *testing.T) {
	e := newEngine("cat and cat")
	_, err := e.Propose(Proposal{Original: "cat", Suggested: "dog", Occurrence: 2})
	require.NoError(t, err)
	assert.Equal(t, "cat and dog", e.Document().Text())

	units := e.Document().DiffUnits()
	require.Len(t, units, 1)
	assert.Equal(t, document.Range{From: 8, To: 11}, units[0].Range)
}

func TestAccept_InheritsMarks(t *testing.T) {
	doc, err := document.ParseHTML("<p>The <strong>cat</strong> sat.</p>")
	require.NoError(t, err)
	e := NewEngine(doc, changes.NewStore(), nil)

	c, err := e.Propose(Proposal{Original: "cat", Suggested: "dog"})
	require.NoError(t, err)
	_, err = e.Accept(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>The <strong>dog</strong> sat.</p>", doc.HTML())
}

func TestAccept_AlreadyResolvedIsNoop(t *testing.T) {
	e := newEngine("The cat sat.")
	c, err := e.Propose(Proposal{Original: "cat", Suggested: "dog"})
	require.NoError(t, err)
	_, err = e.Reject(c.ID)
	require.NoError(t, err)
	version := e.Document().Version()

	res, err := e.Accept(c.ID)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, changes.StatusRejected, res.Change.Status)
	assert.Equal(t, version, e.Document().Version())
	assert.Equal(t, "The cat sat.", e.Document().Text())

	res, err = e.Reject(c.ID)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	_, err = e.Accept("nope")
	assert.ErrorIs(t, err, ErrUnknownChange)
}

func TestAccept_MissingUnitStillResolvesStore(t *testing.T) {
	e := newEngine("The cat sat.")
	c, err := e.Propose(Proposal{Original: "cat", Suggested: "dog"})
	require.NoError(t, err)

	require.NoError(t, e.Document().Update(func(tx *document.Tx) error {
		_, err := tx.DeleteRange(0, len(tx.Text()))
		return err
	}))
	version := e.Document().Version()

	res, err := e.Accept(c.ID)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, changes.StatusAccepted, res.Change.Status)
	assert.Equal(t, version, e.Document().Version())
}

func TestUndo_AfterAcceptKeepsDecision(t *testing.T) {
	e := newEngine("The cat sat.")
	c, err := e.Propose(Proposal{Original: "cat", Suggested: "dog"})
	require.NoError(t, err)
	_, err = e.Accept(c.ID)
	require.NoError(t, err)
	doc := e.Document()

	ok, err := e.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "The dog sat.", doc.Text())
	assert.Empty(t, doc.DiffUnits())
	assert.Equal(t, "<p>The dog sat.</p>", doc.HTML())

	res, err := e.Accept(c.ID)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	res, err = e.Reject(c.ID)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, changes.StatusAccepted, res.Change.Status)

	ok, err = e.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "The cat sat.", doc.Text())

	ok, err = e.Redo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "The dog sat.", doc.Text())
	assert.Empty(t, doc.DiffUnits())
	assert.NotContains(t, doc.HTML(), "tracked-change")
}

func TestUndo_AfterRejectAndClear(t *testing.T) {
	e := newEngine("The cat sat.")
	c, err := e.Propose(Proposal{Original: "cat", Suggested: "dog"})
	require.NoError(t, err)
	_, err = e.Reject(c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, e.Store().ClearResolved())

	ok, err := e.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "The cat sat.", e.Document().Text())
	assert.Empty(t, e.Document().DiffUnits())

	_, err = e.Accept(c.ID)
	assert.ErrorIs(t, err, ErrUnknownChange)
}

func TestUndo_EmptyHistory(t *testing.T) {
	e := newEngine("The cat sat.")
	ok, err := e.Undo()
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = e.Redo()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccept_ListMarkerStaysLiteral(t *testing.T) {
	e := newEngine("Steps: cat")
	c, err := e.Propose(Proposal{Original: "cat", Suggested: "1. First"})
	require.NoError(t, err)
	_, err = e.Accept(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Steps: 1. First", e.Document().Text())
	assert.Equal(t, "<p>Steps: 1. First</p>", e.Document().HTML())
}

func TestAcceptAll_StoreOrderAndPartialFailure(t *testing.T) {
	e := newEngine("one two three")
	first, err := e.Propose(Proposal{Original: "three", Suggested: "3"})
	require.NoError(t, err)
	second, err := e.Propose(Proposal{Original: "one", Suggested: "1"})
	require.NoError(t, err)

	require.NoError(t, e.Document().Update(func(tx *document.Tx) error {
		id, ok := tx.FindAttr(document.KindDiff, document.AttrChangeID, first.ID)
		require.True(t, ok)
		return tx.ReplaceNode(id, document.TextInline("three"))
	}))

	res, err := e.AcceptAll()
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, first.ID, res[0].Change.ID)
	assert.False(t, res[0].Applied)
	assert.Equal(t, second.ID, res[1].Change.ID)
	assert.True(t, res[1].Applied)
	assert.Equal(t, "1 two three", e.Document().Text())
	assert.Equal(t, 0, e.Store().PendingCount())
}

func TestRejectAll_RoundTrip(t *testing.T) {
	text := "alpha beta\ngamma delta"
	e := newEngine(text)
	for _, p := range []Proposal{
		{Original: "beta", Suggested: "**B**"},
		{Original: "gamma", Suggested: "G"},
		{Original: "alpha", Suggested: ""},
	} {
		_, err := e.Propose(p)
		require.NoError(t, err)
	}
	assert.NotEqual(t, text, e.Document().Text())

	res, err := e.RejectAll()
	require.NoError(t, err)
	assert.Len(t, res, 3)
	assert.Equal(t, text, e.Document().Text())
}

func TestHunks(t *testing.T) {
	e := newEngine("the quick fox")
	c, err := e.Propose(Proposal{Original: "the quick fox", Suggested: "the slow fox"})
	require.NoError(t, err)

	segs, err := e.Hunks(c.ID)
	require.NoError(t, err)

	var before, after strings.Builder
	var deleted, inserted []string
	for _, s := range segs {
		switch s.Op {
		case OpEqual:
			before.WriteString(s.Text)
			after.WriteString(s.Text)
		case OpDelete:
			before.WriteString(s.Text)
			deleted = append(deleted, s.Text)
		case OpInsert:
			after.WriteString(s.Text)
			inserted = append(inserted, s.Text)
		}
	}
	assert.Equal(t, "the quick fox", before.String())
	assert.Equal(t, "the slow fox", after.String())
	assert.Equal(t, []string{"quick"}, deleted)
	assert.Equal(t, []string{"slow"}, inserted)

	_, err = e.Hunks("missing")
	assert.ErrorIs(t, err, ErrUnknownChange)
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"a", "  ", "bc", " "}, splitWords("a  bc "))
	assert.Nil(t, splitWords(""))
}
