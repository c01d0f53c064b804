// Package editor implements an in-memory text document with a grouped,
// reversible undo history.
package editor

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/verte-zerg/wordflow/internal/fsutil"
	"github.com/verte-zerg/wordflow/internal/model"
)

const (
	// DefaultGroupDelay joins adjacent edits made within this interval.
	DefaultGroupDelay = 500 * time.Millisecond
	// DefaultMinDepth is the number of entries kept when history is truncated.
	DefaultMinDepth = 100
	// depthSlack is how far history may grow past MinDepth before truncation.
	depthSlack = 20
)

// ErrInvalidEdit reports an edit outside the document or overlapping another.
var ErrInvalidEdit = errors.New("invalid edit")

// Edit replaces the runes in [From, To) of the current text with Text.
type Edit struct {
	From int
	To   int
	Text string
}

// Options tunes history grouping and depth.
type Options struct {
	GroupDelay time.Duration
	MinDepth   int
	Now        func() time.Time
}

type editKind int

const (
	kindOther editKind = iota
	kindInsert
	kindDelete
)

// Buffer is a rune-indexed document. Its history keeps done and undone
// entries whose replacements describe how to revert each change.
type Buffer struct {
	mu   sync.Mutex
	opts Options
	path string
	text []rune

	done   []model.Entry
	undone []model.Entry

	lastKind   editKind
	lastEditAt time.Time
	lastChange time.Time
	dirty      bool
	closed     bool

	subs    map[int]func()
	nextSub int
}

// New creates a buffer holding text. The history starts with an empty
// placeholder entry.
func New(path, text string, opts Options) *Buffer {
	if opts.GroupDelay <= 0 {
		opts.GroupDelay = DefaultGroupDelay
	}
	if opts.MinDepth <= 0 {
		opts.MinDepth = DefaultMinDepth
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Buffer{
		opts: opts,
		path: path,
		text: []rune(text),
		done: []model.Entry{{}},
		subs: map[int]func(){},
	}
}

// Open loads path into a buffer. A missing file yields an empty document.
func Open(path string, opts Options) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return New(path, string(data), opts), nil
}

// Path returns the document identity.
func (b *Buffer) Path() string {
	return b.path
}

// Text returns the current content.
func (b *Buffer) Text() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", model.ErrStale
	}
	return string(b.text), nil
}

// Len returns the content length in runes.
func (b *Buffer) Len() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, model.ErrStale
	}
	return len(b.text), nil
}

// ChangeLog returns a copy of the history.
func (b *Buffer) ChangeLog() (model.ChangeLog, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return model.ChangeLog{}, model.ErrStale
	}
	return model.ChangeLog{
		Done:       copyEntries(b.done),
		Undone:     copyEntries(b.undone),
		LastChange: b.lastChange,
	}, nil
}

// Subscribe registers fn to run after every change. The returned function
// removes it.
func (b *Buffer) Subscribe(fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Insert inserts s at rune offset at.
func (b *Buffer) Insert(at int, s string) error {
	if s == "" {
		return nil
	}
	return b.Apply(Edit{From: at, To: at, Text: s})
}

// Delete removes the runes in [from, to).
func (b *Buffer) Delete(from, to int) error {
	if from == to {
		return nil
	}
	return b.Apply(Edit{From: from, To: to})
}

// Replace substitutes s for the runes in [from, to).
func (b *Buffer) Replace(from, to int, s string) error {
	return b.Apply(Edit{From: from, To: to, Text: s})
}

// Apply performs the edits as one history step. Offsets refer to the text
// before any of the edits.
func (b *Buffer) Apply(edits ...Edit) error {
	if noop(edits) {
		return nil
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return model.ErrStale
	}
	edits = append([]Edit(nil), edits...)
	sort.Slice(edits, func(i, j int) bool { return edits[i].From < edits[j].From })
	if err := validate(edits, len(b.text)); err != nil {
		b.mu.Unlock()
		return err
	}

	now := b.opts.Now()
	kind := classify(edits)
	if !b.joinLocked(edits[0], kind, now) {
		b.pushLocked(b.applyLocked(edits))
	}
	b.undone = nil
	b.lastKind = kind
	b.lastEditAt = now
	b.touchLocked(now)
	subs := b.subscribersLocked()
	b.mu.Unlock()
	notify(subs)
	return nil
}

// Undo reverts the latest done entry. It returns the cursor position after
// the reverted region and whether anything was undone.
func (b *Buffer) Undo() (int, bool) {
	return b.step(true)
}

// Redo reapplies the latest undone entry.
func (b *Buffer) Redo() (int, bool) {
	return b.step(false)
}

func (b *Buffer) step(undo bool) (int, bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, false
	}
	from, to := &b.done, &b.undone
	if !undo {
		from, to = &b.undone, &b.done
	}
	// The first done entry is a placeholder and never reverted.
	if (undo && len(*from) <= 1) || len(*from) == 0 {
		b.mu.Unlock()
		return 0, false
	}
	entry := (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]

	inverse := b.revertLocked(entry)
	*to = append(*to, inverse)
	cursor := 0
	if len(inverse.Replacements) > 0 {
		cursor = inverse.Replacements[len(inverse.Replacements)-1].DstEnd
	}
	b.lastKind = kindOther
	b.touchLocked(b.opts.Now())
	subs := b.subscribersLocked()
	b.mu.Unlock()
	notify(subs)
	return cursor, true
}

// Dirty reports whether the content changed since the last save.
func (b *Buffer) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

// Save writes the content to the buffer's path.
func (b *Buffer) Save() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return model.ErrStale
	}
	data := []byte(string(b.text))
	b.mu.Unlock()
	if err := fsutil.WriteFileAtomic(b.path, data); err != nil {
		return err
	}
	b.mu.Lock()
	b.dirty = false
	b.mu.Unlock()
	return nil
}

// Close invalidates the buffer. Later reads return model.ErrStale.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[int]func(){}
}

// joinLocked merges a single typed insertion or deletion into the latest
// entry when it continues that entry within the group delay.
func (b *Buffer) joinLocked(e Edit, kind editKind, now time.Time) bool {
	if kind == kindOther || kind != b.lastKind || now.Sub(b.lastEditAt) > b.opts.GroupDelay {
		return false
	}
	if len(b.done) <= 1 {
		return false
	}
	top := &b.done[len(b.done)-1]
	if len(top.Replacements) != 1 {
		return false
	}
	rep := &top.Replacements[0]
	switch kind {
	case kindInsert:
		if e.From != rep.DstEnd {
			return false
		}
		ins := []rune(e.Text)
		b.text = splice(b.text, e.From, e.To, ins)
		rep.DstEnd += len(ins)
		return true
	case kindDelete:
		if rep.DstStart != rep.DstEnd {
			return false
		}
		removed := string(b.text[e.From:e.To])
		switch {
		case e.To == rep.DstStart:
			rep.SrcStart = e.From
			rep.DstStart, rep.DstEnd = e.From, e.From
			rep.Inserted = removed + rep.Inserted
		case e.From == rep.DstStart:
			rep.SrcEnd += e.To - e.From
			rep.Inserted += removed
		default:
			return false
		}
		b.text = splice(b.text, e.From, e.To, nil)
		return true
	}
	return false
}

// applyLocked applies sorted edits and returns the entry that reverts them.
func (b *Buffer) applyLocked(edits []Edit) model.Entry {
	reps := make([]model.Replacement, 0, len(edits))
	out := make([]rune, 0, len(b.text))
	prev, shift := 0, 0
	for _, e := range edits {
		ins := []rune(e.Text)
		out = append(out, b.text[prev:e.From]...)
		out = append(out, ins...)
		dstStart := e.From + shift
		reps = append(reps, model.Replacement{
			SrcStart: e.From,
			SrcEnd:   e.To,
			DstStart: dstStart,
			DstEnd:   dstStart + len(ins),
			Inserted: string(b.text[e.From:e.To]),
		})
		shift += len(ins) - (e.To - e.From)
		prev = e.To
	}
	out = append(out, b.text[prev:]...)
	b.text = out
	return model.Entry{Replacements: reps}
}

// revertLocked restores the text an entry describes and returns the entry
// that reverts the restoration.
func (b *Buffer) revertLocked(entry model.Entry) model.Entry {
	inverse := model.Entry{Replacements: make([]model.Replacement, len(entry.Replacements))}
	for i := len(entry.Replacements) - 1; i >= 0; i-- {
		rep := entry.Replacements[i]
		start, end := clampRange(rep.DstStart, rep.DstEnd, len(b.text))
		removed := string(b.text[start:end])
		restored := []rune(rep.Inserted)
		b.text = splice(b.text, start, end, restored)
		inverse.Replacements[i] = model.Replacement{
			SrcStart: start,
			SrcEnd:   end,
			DstStart: rep.SrcStart,
			DstEnd:   rep.SrcStart + len(restored),
			Inserted: removed,
		}
	}
	return inverse
}

// pushLocked appends a done entry. Once history grows past MinDepth plus a
// slack it is cut back to MinDepth entries before the newest one.
func (b *Buffer) pushLocked(entry model.Entry) {
	b.done = append(b.done, entry)
	if len(b.done) > b.opts.MinDepth+depthSlack {
		keep := b.opts.MinDepth + 1
		b.done = append([]model.Entry(nil), b.done[len(b.done)-keep:]...)
	}
}

func (b *Buffer) touchLocked(now time.Time) {
	b.lastChange = now
	b.dirty = true
}

func (b *Buffer) subscribersLocked() []func() {
	subs := make([]func(), 0, len(b.subs))
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, b.subs[id])
	}
	return subs
}

func notify(subs []func()) {
	for _, fn := range subs {
		fn()
	}
}

func noop(edits []Edit) bool {
	for _, e := range edits {
		if e.From != e.To || e.Text != "" {
			return false
		}
	}
	return true
}

func classify(edits []Edit) editKind {
	if len(edits) != 1 {
		return kindOther
	}
	e := edits[0]
	switch {
	case e.From == e.To && e.Text != "":
		return kindInsert
	case e.From < e.To && e.Text == "":
		return kindDelete
	default:
		return kindOther
	}
}

func validate(edits []Edit, length int) error {
	prevEnd := 0
	for i, e := range edits {
		if e.From < 0 || e.To < e.From || e.To > length {
			return fmt.Errorf("%w: range [%d,%d) outside document of length %d", ErrInvalidEdit, e.From, e.To, length)
		}
		if i > 0 && e.From < prevEnd {
			return fmt.Errorf("%w: overlapping ranges at %d", ErrInvalidEdit, e.From)
		}
		prevEnd = e.To
	}
	return nil
}

func splice(text []rune, from, to int, ins []rune) []rune {
	out := make([]rune, 0, len(text)-(to-from)+len(ins))
	out = append(out, text[:from]...)
	out = append(out, ins...)
	return append(out, text[to:]...)
}

func clampRange(start, end, length int) (int, int) {
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

func copyEntries(entries []model.Entry) []model.Entry {
	out := make([]model.Entry, len(entries))
	for i, e := range entries {
		out[i].Replacements = append([]model.Replacement(nil), e.Replacements...)
	}
	return out
}
