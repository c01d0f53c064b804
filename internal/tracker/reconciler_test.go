package tracker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/wordflow/internal/editor"
	"github.com/verte-zerg/wordflow/internal/model"
)

func insertEntry(at int, text string) model.Entry {
	n := len([]rune(text))
	return model.Entry{Replacements: []model.Replacement{{SrcStart: at, SrcEnd: at, DstStart: at, DstEnd: at + n}}}
}

func history(entries ...model.Entry) []model.Entry {
	return append([]model.Entry{{}}, entries...)
}

func padded(n int) []model.Entry {
	out := make([]model.Entry, n)
	for i := range out {
		out[i] = insertEntry(0, "")
	}
	return out
}

func baseline(t *testing.T, done, undone []model.Entry) *Reconciler {
	t.Helper()
	r := &Reconciler{}
	pass := r.Reconcile(model.ChangeLog{Done: done, Undone: undone}, "", &Counters{})
	require.Equal(t, PassBaseline, pass.Kind)
	return r
}

func TestTypingOneWord(t *testing.T) {
	r := baseline(t, history(), nil)
	var c Counters

	pass := r.Reconcile(model.ChangeLog{Done: history(insertEntry(0, "hello "))}, "hello ", &c)
	assert.Equal(t, PassForward, pass.Kind)
	assert.Equal(t, 1, c.AddedWords)
	assert.Equal(t, 0, c.DeletedWords)
	assert.Equal(t, 1, c.EditedTimes)
	assert.Equal(t, 1, c.EditedWords())
	assert.Equal(t, 1, c.ChangedWords())
}

func TestTwoEntriesInOneWindow(t *testing.T) {
	r := baseline(t, history(), nil)
	var c Counters

	log := model.ChangeLog{Done: history(insertEntry(0, "hello"), insertEntry(5, " world"))}
	r.Reconcile(log, "hello world", &c)
	assert.Equal(t, 2, c.AddedWords)
	assert.Equal(t, 2, c.EditedTimes)
}

func TestReconcileIsIdempotent(t *testing.T) {
	r := baseline(t, history(), nil)
	var c Counters
	log := model.ChangeLog{Done: history(insertEntry(0, "hello "))}

	r.Reconcile(log, "hello ", &c)
	before := c
	pass := r.Reconcile(log, "hello ", &c)
	assert.Equal(t, PassIdle, pass.Kind)
	assert.Equal(t, before, c)
}

func TestReplacementCountsBothSides(t *testing.T) {
	r := baseline(t, history(), nil)
	var c Counters

	entry := model.Entry{Replacements: []model.Replacement{{SrcStart: 4, SrcEnd: 7, DstStart: 4, DstEnd: 9, Inserted: "two"}}}
	r.Reconcile(model.ChangeLog{Done: history(entry)}, "one three", &c)
	assert.Equal(t, 1, c.AddedWords)
	assert.Equal(t, 1, c.DeletedWords)
	assert.Equal(t, 2, c.EditedWords())
	assert.Equal(t, 0, c.ChangedWords())
}

func TestEditInsideWordIsNotAWord(t *testing.T) {
	r := baseline(t, history(), nil)
	var c Counters

	// "helo" -> "hello": one inserted letter in the middle of a word.
	r.Reconcile(model.ChangeLog{Done: history(insertEntry(3, "l"))}, "hello", &c)
	assert.Equal(t, 0, c.AddedWords)
	assert.Equal(t, 1, c.EditedTimes)
}

func TestLaterEntryContinuingWordExtendsNeighbour(t *testing.T) {
	r := baseline(t, history(), nil)
	var c Counters

	// "hel" then "lo" typed right after it in a separate entry.
	log := model.ChangeLog{Done: history(insertEntry(0, "hel"), insertEntry(3, "lo"))}
	r.Reconcile(log, "hello", &c)
	assert.Equal(t, 1, c.AddedWords)
	assert.Equal(t, 2, c.EditedTimes)
}

func TestChainLimitStopsExtension(t *testing.T) {
	r := baseline(t, history(), nil)
	r.ChainLimit = 1
	var c Counters

	log := model.ChangeLog{Done: history(insertEntry(0, "a"), insertEntry(1, "b"), insertEntry(2, "c"))}
	r.Reconcile(log, "abc", &c)
	// "a" only sees "b" ahead of it, so it looks like a word continuing into "c".
	assert.Equal(t, 0, c.AddedWords)
}

func TestUndoRoundTripNetsZero(t *testing.T) {
	r := baseline(t, history(), nil)
	var c Counters

	r.Reconcile(model.ChangeLog{Done: history(insertEntry(0, "hello "))}, "hello ", &c)
	require.Equal(t, 1, c.AddedWords)

	redo := model.Entry{Replacements: []model.Replacement{{SrcStart: 0, SrcEnd: 0, DstStart: 0, DstEnd: 0, Inserted: "hello "}}}
	pass := r.Reconcile(model.ChangeLog{Done: history(), Undone: []model.Entry{redo}}, "", &c)
	assert.Equal(t, PassUndo, pass.Kind)
	assert.Equal(t, 0, c.AddedWords)
	assert.Equal(t, 0, c.DeletedWords)
	assert.Equal(t, 2, c.EditedTimes)
}

func TestUndoAfterResetCountsAsNewEdit(t *testing.T) {
	r := baseline(t, history(model.Entry{Replacements: []model.Replacement{{SrcStart: 4, SrcEnd: 7, DstStart: 4, DstEnd: 9, Inserted: "two"}}}), nil)
	var c Counters

	// Undo of "two" -> "three" after the counters were reset.
	redo := model.Entry{Replacements: []model.Replacement{{SrcStart: 4, SrcEnd: 9, DstStart: 4, DstEnd: 7, Inserted: "three"}}}
	r.Reconcile(model.ChangeLog{Done: history(), Undone: []model.Entry{redo}}, "one two", &c)
	assert.Equal(t, 1, c.AddedWords)
	assert.Equal(t, 1, c.DeletedWords)
	assert.Equal(t, 1, c.EditedTimes)
}

func TestRedoCountsAsForwardEdit(t *testing.T) {
	r := baseline(t, history(), []model.Entry{{Replacements: []model.Replacement{{DstStart: 0, DstEnd: 0, Inserted: "hi"}}}})
	var c Counters

	r.Reconcile(model.ChangeLog{Done: history(insertEntry(0, "hi"))}, "hi", &c)
	assert.Equal(t, 1, c.AddedWords)
	assert.Equal(t, 1, c.EditedTimes)
}

func TestHistoryClearBeyondMarginIsDropped(t *testing.T) {
	r := baseline(t, padded(150), nil)
	var c Counters

	pass := r.Reconcile(model.ChangeLog{Done: padded(3)}, "abc", &c)
	assert.Equal(t, PassDropped, pass.Kind)
	assert.Equal(t, Counters{}, c)
	done, undone := r.LastLengths()
	assert.Equal(t, 3, done)
	assert.Equal(t, 0, undone)
}

func TestHistoryTruncationCountsNewEntry(t *testing.T) {
	r := baseline(t, padded(120), nil)
	var c Counters

	// The host cut its history to the margin and appended one new entry.
	done := append(padded(100), insertEntry(0, "word "))
	pass := r.Reconcile(model.ChangeLog{Done: done}, "word ", &c)
	assert.Equal(t, PassForward, pass.Kind)
	assert.Equal(t, 20, pass.Cleared)
	assert.Equal(t, 1, c.AddedWords)
	assert.Equal(t, 1, c.EditedTimes)
}

func TestClearMarginIsConfigurable(t *testing.T) {
	r := &Reconciler{ClearMargin: 10}
	r.Sync(model.ChangeLog{Done: padded(30)})
	var c Counters

	done := append(padded(10), insertEntry(0, "x"), insertEntry(1, " y"))
	pass := r.Reconcile(model.ChangeLog{Done: done}, "x y", &c)
	assert.Equal(t, PassForward, pass.Kind)
	assert.Equal(t, 2, c.AddedWords)
	assert.Equal(t, 2, c.EditedTimes)
}

func TestInconsistentUndoIsDropped(t *testing.T) {
	r := baseline(t, history(insertEntry(0, "a"), insertEntry(1, "b")), nil)
	var c Counters

	// Two entries left the done list but only one reached the undone list.
	pass := r.Reconcile(model.ChangeLog{Done: history(), Undone: []model.Entry{{}}}, "", &c)
	assert.Equal(t, PassDropped, pass.Kind)
	assert.Equal(t, Counters{}, c)
}

func TestCJKTyping(t *testing.T) {
	r := baseline(t, history(), nil)
	var c Counters

	text := "你好world"
	r.Reconcile(model.ChangeLog{Done: history(insertEntry(0, text))}, text, &c)
	assert.Equal(t, 3, c.AddedWords)
}

func TestDeletionCountsRemovedWords(t *testing.T) {
	r := baseline(t, history(), nil)
	var c Counters

	original := "keep these three words"
	removed := " three words"
	text := strings.TrimSuffix(original, removed)
	entry := model.Entry{Replacements: []model.Replacement{{
		SrcStart: len(text), SrcEnd: len(original), DstStart: len(text), DstEnd: len(text), Inserted: removed,
	}}}
	r.Reconcile(model.ChangeLog{Done: history(entry)}, text, &c)
	assert.Equal(t, 0, c.AddedWords)
	assert.Equal(t, 2, c.DeletedWords)
	assert.Equal(t, -2, c.ChangedWords())
}

// longSession types one word per history entry into a buffer and reconciles
// after each entry.
type longSession struct {
	t   *testing.T
	buf *editor.Buffer
	rec *Reconciler
	c   Counters
}

func newLongSession(t *testing.T) *longSession {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	buf := editor.New("long.md", "", editor.Options{Now: func() time.Time {
		now = now.Add(time.Second)
		return now
	}})
	s := &longSession{t: t, buf: buf, rec: &Reconciler{}}
	require.Equal(t, PassBaseline, s.reconcile().Kind)
	return s
}

func (s *longSession) reconcile() Pass {
	s.t.Helper()
	log, err := s.buf.ChangeLog()
	require.NoError(s.t, err)
	text, err := s.buf.Text()
	require.NoError(s.t, err)
	return s.rec.Reconcile(log, text, &s.c)
}

func (s *longSession) typeWord(word string) Pass {
	s.t.Helper()
	n, err := s.buf.Len()
	require.NoError(s.t, err)
	require.NoError(s.t, s.buf.Insert(n, word+" "))
	return s.reconcile()
}

func TestEditAfterUndosInLongHistory(t *testing.T) {
	s := newLongSession(t)
	for i := 0; i < 110; i++ {
		s.typeWord("word")
	}
	require.Equal(t, 110, s.c.AddedWords)

	for i := 0; i < 2; i++ {
		_, ok := s.buf.Undo()
		require.True(t, ok)
		require.Equal(t, PassUndo, s.reconcile().Kind)
	}
	require.Equal(t, 108, s.c.AddedWords)
	require.Equal(t, 112, s.c.EditedTimes)

	// Typing drops the redo stack; nothing was truncated.
	pass := s.typeWord("fresh")
	assert.Equal(t, PassForward, pass.Kind)
	assert.Zero(t, pass.Cleared)
	assert.Equal(t, 1, pass.AddedWords)
	assert.Equal(t, 1, pass.EditedTimes)
	assert.Equal(t, 109, s.c.AddedWords)
	assert.Equal(t, 113, s.c.EditedTimes)
}

func TestBufferTruncationCountsEachEntryOnce(t *testing.T) {
	s := newLongSession(t)
	cleared := 0
	for i := 0; i < 130; i++ {
		pass := s.typeWord("word")
		require.Equal(t, PassForward, pass.Kind, "entry %d", i)
		require.Equal(t, 1, pass.EditedTimes, "entry %d", i)
		if pass.Cleared > 0 {
			cleared++
		}
	}
	assert.Equal(t, 1, cleared)
	assert.Equal(t, 130, s.c.AddedWords)
	assert.Equal(t, 130, s.c.EditedTimes)
}
