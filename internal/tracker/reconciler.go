package tracker

import (
	"time"

	"github.com/verte-zerg/wordflow/internal/model"
	"github.com/verte-zerg/wordflow/internal/wordcount"
)

// DefaultClearMargin is the history depth a host keeps after truncating it.
const DefaultClearMargin = 100

// Counters are the cumulative word statistics of one tracking session.
// Edited and changed words are derived, so their invariants always hold.
type Counters struct {
	AddedWords   int
	DeletedWords int
	EditedTimes  int
}

// EditedWords is the number of words typed or removed.
func (c Counters) EditedWords() int { return c.AddedWords + c.DeletedWords }

// ChangedWords is the net word change.
func (c Counters) ChangedWords() int { return c.AddedWords - c.DeletedWords }

// PassKind classifies a reconciliation pass.
type PassKind int

const (
	// PassIdle means the history did not move.
	PassIdle PassKind = iota
	// PassBaseline is the first observation of a document.
	PassBaseline
	// PassForward counted new done entries.
	PassForward
	// PassUndo counted one undone entry.
	PassUndo
	// PassDropped resynchronised without counting.
	PassDropped
)

func (k PassKind) String() string {
	switch k {
	case PassBaseline:
		return "baseline"
	case PassForward:
		return "forward"
	case PassUndo:
		return "undo"
	case PassDropped:
		return "dropped"
	default:
		return "idle"
	}
}

// Pass describes what one reconciliation did.
type Pass struct {
	Kind         PassKind
	DoneDiff     int
	UndoneDiff   int
	Cleared      int
	AddedWords   int
	DeletedWords int
	EditedTimes  int
	LastChange   time.Time
}

// Reconciler turns successive observations of a change log into word
// counts. It remembers the history lengths seen on the previous pass.
type Reconciler struct {
	// ClearMargin is the depth a host truncates its history to.
	ClearMargin int
	// ChainLimit bounds how many later entries extend a replacement's end
	// when looking for the trailing neighbour. Zero means unlimited.
	ChainLimit int

	lastDone   int
	lastUndone int
	synced     bool
}

// Sync takes the history lengths of log as the baseline.
func (r *Reconciler) Sync(log model.ChangeLog) {
	r.lastDone = max(len(log.Done), 1)
	r.lastUndone = len(log.Undone)
	r.synced = true
}

// Synced reports whether a baseline was taken.
func (r *Reconciler) Synced() bool {
	return r.synced
}

// LastLengths returns the history lengths seen on the previous pass.
func (r *Reconciler) LastLengths() (done, undone int) {
	return r.lastDone, r.lastUndone
}

// Reconcile compares log with the previous observation, adds the words of
// the entries that appeared to c and returns what it did. text is the
// current document content.
func (r *Reconciler) Reconcile(log model.ChangeLog, text string, c *Counters) Pass {
	pass := Pass{LastChange: log.LastChange}
	if !r.synced {
		r.Sync(log)
		pass.Kind = PassBaseline
		return pass
	}

	doneLen, undoneLen := len(log.Done), len(log.Undone)
	pass.DoneDiff = doneLen - r.lastDone
	pass.UndoneDiff = undoneLen - r.lastUndone
	// The done stack shrank by more than the redo stack grew: the host cut
	// older entries down to its margin. An edit after undos empties the redo
	// stack but grows the done stack, so it never qualifies.
	if pass.DoneDiff < 0 && doneLen+pass.UndoneDiff < r.lastDone {
		pass.Cleared = r.lastDone - r.margin() - pass.UndoneDiff
	}
	n := pass.DoneDiff + pass.Cleared
	// A truncated history starts with the margin entries; only the ones
	// after them can be new.
	if pass.Cleared > 0 && n > doneLen-r.margin() {
		n = doneLen - r.margin()
	}
	doc := []rune(text)

	switch {
	case n > 0 && doneLen > 1:
		pass.Kind = PassForward
		pass.AddedWords, pass.DeletedWords = r.forward(log.Done, n, doc)
		c.AddedWords += pass.AddedWords
		c.DeletedWords += pass.DeletedWords
		pass.EditedTimes = n
		c.EditedTimes += n
	case n < 0 && pass.UndoneDiff+n == 0 && undoneLen > 0:
		pass.Kind = PassUndo
		pass.AddedWords, pass.DeletedWords = undo(log.Undone[undoneLen-1], doc, c)
		pass.EditedTimes = pass.UndoneDiff
		c.EditedTimes += pass.UndoneDiff
	case n != 0 || pass.UndoneDiff != 0:
		pass.Kind = PassDropped
	}

	r.lastDone, r.lastUndone = doneLen, undoneLen
	return pass
}

func (r *Reconciler) margin() int {
	if r.ClearMargin > 0 {
		return r.ClearMargin
	}
	return DefaultClearMargin
}

// forward counts the words of the newest n done entries.
func (r *Reconciler) forward(done []model.Entry, n int, doc []rune) (added, deleted int) {
	start := len(done) - n
	if start < 0 {
		start = 0
	}
	batch := done[start:]
	for i, entry := range batch {
		for _, rep := range entry.Replacements {
			dstStart, dstEnd := clamp(rep.DstStart, rep.DstEnd, len(doc))
			// Later entries in the batch may have typed on right after this
			// one; the character that really follows the word is past them.
			end := r.extendEnd(dstEnd, batch[i+1:])
			if end > len(doc) {
				end = len(doc)
			}
			before := runeAt(doc, dstStart-1)
			added += wordcount.Count(string(doc[dstStart:dstEnd]), before, runeAt(doc, end))
			deleted += wordcount.Count(rep.Inserted, before, runeAt(doc, dstEnd))
		}
	}
	return added, deleted
}

func (r *Reconciler) extendEnd(end int, later []model.Entry) int {
	for i, entry := range later {
		if r.ChainLimit > 0 && i >= r.ChainLimit {
			break
		}
		for _, rep := range entry.Replacements {
			if rep.SrcStart == end {
				end = rep.DstEnd
			}
		}
	}
	return end
}

// undo accounts for the most recently undone entry. Its Dst range holds the
// text the undo restored and Inserted the text it removed. When the session
// still holds the counts the undone edit produced they are taken back;
// otherwise the undo is counted as a new edit.
func undo(entry model.Entry, doc []rune, c *Counters) (added, deleted int) {
	restored, removed := 0, 0
	for _, rep := range entry.Replacements {
		dstStart, dstEnd := clamp(rep.DstStart, rep.DstEnd, len(doc))
		before, after := runeAt(doc, dstStart-1), runeAt(doc, dstEnd)
		restored += wordcount.Count(string(doc[dstStart:dstEnd]), before, after)
		removed += wordcount.Count(rep.Inserted, before, after)
	}
	if c.AddedWords >= removed && c.DeletedWords >= restored {
		c.AddedWords -= removed
		c.DeletedWords -= restored
		return -removed, -restored
	}
	c.AddedWords += restored
	c.DeletedWords += removed
	return restored, removed
}

func runeAt(doc []rune, i int) rune {
	if i < 0 || i >= len(doc) {
		return wordcount.Sentinel
	}
	return doc[i]
}

func clamp(start, end, length int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > length {
		end = length
	}
	if start > end {
		start = end
	}
	return start, end
}
