// Package tui provides the Bubble Tea writing pad.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/wordflow/internal/editor"
	"github.com/verte-zerg/wordflow/internal/model"
	"github.com/verte-zerg/wordflow/internal/note"
	"github.com/verte-zerg/wordflow/internal/tracker"
)

const noticeTTL = 3 * time.Second

// Recorder records trackers without throttling.
type Recorder interface {
	RecordNow(ctx context.Context, trackers ...*tracker.Tracker) error
}

// Options configures the writing pad.
type Options struct {
	Manager  *tracker.Manager
	Recorder Recorder
	Notifier *Notifier
	// EditTemplate and ReadTemplate are the status lines of the two modes.
	EditTemplate string
	ReadTemplate string
	Render       note.RenderOptions
	Logger       *slog.Logger
}

type snapshotMsg model.Snapshot

type errMsg struct{ err error }

type recordedMsg struct{}

// focusOrder serialises the background Focus calls of mode toggles. A call
// older than the last applied one is skipped.
type focusOrder struct {
	mu      sync.Mutex
	applied int
}

// Model implements the Bubble Tea writing pad.
type Model struct {
	ctx  context.Context
	buf  *editor.Buffer
	opts Options
	log  *slog.Logger

	tracker     *tracker.Tracker
	snaps       chan model.Snapshot
	unsubscribe func()
	snap        model.Snapshot

	mode    model.ViewMode
	modeSeq int
	focus   *focusOrder
	text    []rune
	cursor  int
	top     int

	width  int
	height int

	notice    string
	noticeSeq int
	quitArmed bool

	keys keyMap
	help help.Model
}

var (
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	readStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	cursorStyle = lipgloss.NewStyle().Reverse(true)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	modeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// NewModel constructs the writing pad for buf and starts tracking it in
// edit mode.
func NewModel(ctx context.Context, buf *editor.Buffer, opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = NewNotifier()
	}
	m := &Model{
		ctx:   ctx,
		buf:   buf,
		opts:  opts,
		log:   logger,
		snaps: make(chan model.Snapshot, 1),
		mode:  model.ModeEdit,
		focus: &focusOrder{},
		keys:  newKeyMap(),
		help:  help.New(),
	}
	m.reloadText()
	m.cursor = len(m.text)
	m.tracker = opts.Manager.Focus(ctx, buf, model.ModeEdit)
	m.unsubscribe = m.tracker.Subscribe(m.pushSnapshot)
	m.snap = m.tracker.Snapshot()
	return m
}

// Notifier returns the footer notifier.
func (m *Model) Notifier() *Notifier {
	return m.opts.Notifier
}

// Close stops listening to the tracker.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// pushSnapshot keeps only the latest snapshot for the UI.
func (m *Model) pushSnapshot(s model.Snapshot) {
	for {
		select {
		case m.snaps <- s:
			return
		default:
		}
		select {
		case <-m.snaps:
		default:
		}
	}
}

func (m *Model) waitSnapshot() tea.Cmd {
	ch := m.snaps
	return func() tea.Msg {
		return snapshotMsg(<-ch)
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitSnapshot(), m.opts.Notifier.wait())
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case snapshotMsg:
		m.snap = model.Snapshot(msg)
		return m, m.waitSnapshot()
	case noticeMsg:
		return m, tea.Batch(m.showNotice(msg.text, msg.ttl), m.opts.Notifier.wait())
	case noticeExpiredMsg:
		if int(msg) == m.noticeSeq {
			m.notice = ""
			m.quitArmed = false
		}
		return m, nil
	case errMsg:
		m.log.Error("writing pad", "err", msg.err)
		return m, m.showNotice(msg.err.Error(), noticeTTL)
	case recordedMsg:
		return m, m.showNotice("statistics recorded", noticeTTL)
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// showNotice replaces the footer notice. A ttl <= 0 keeps it until the next
// notice or esc.
func (m *Model) showNotice(text string, ttl time.Duration) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	seq := m.noticeSeq
	if ttl <= 0 {
		return nil
	}
	return tea.Tick(ttl, func(time.Time) tea.Msg {
		return noticeExpiredMsg(seq)
	})
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.buf.Dirty() && !m.quitArmed {
			m.quitArmed = true
			return m, m.showNotice("unsaved changes, press ctrl+c again to quit", noticeTTL)
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Mode):
		return m, m.toggleMode()
	case key.Matches(msg, m.keys.Save):
		if err := m.buf.Save(); err != nil {
			return m, func() tea.Msg { return errMsg{fmt.Errorf("failed to save: %w", err)} }
		}
		return m, m.showNotice("saved "+m.buf.Path(), noticeTTL)
	case key.Matches(msg, m.keys.Record):
		return m, m.recordNow()
	case msg.Type == tea.KeyEsc:
		m.notice = ""
		m.quitArmed = false
		return m, nil
	}
	m.quitArmed = false

	if m.mode == model.ModeRead {
		// Scrolling counts as reading activity.
		switch msg.Type {
		case tea.KeyUp, tea.KeyPgUp:
			m.scroll(-1)
		case tea.KeyDown, tea.KeyPgDown:
			m.scroll(1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Undo):
		if pos, ok := m.buf.Undo(); ok {
			m.reloadText()
			m.cursor = pos
		}
	case key.Matches(msg, m.keys.Redo):
		if pos, ok := m.buf.Redo(); ok {
			m.reloadText()
			m.cursor = pos
		}
	default:
		return m, m.edit(msg)
	}
	m.clampCursor()
	return m, nil
}

func (m *Model) edit(msg tea.KeyMsg) tea.Cmd {
	var err error
	switch msg.Type {
	case tea.KeyRunes:
		err = m.insert(string(msg.Runes))
	case tea.KeySpace:
		err = m.insert(" ")
	case tea.KeyEnter:
		err = m.insert("\n")
	case tea.KeyTab:
		err = m.insert("\t")
	case tea.KeyBackspace:
		if m.cursor > 0 {
			if err = m.buf.Delete(m.cursor-1, m.cursor); err == nil {
				m.cursor--
			}
		}
	case tea.KeyDelete:
		if m.cursor < len(m.text) {
			err = m.buf.Delete(m.cursor, m.cursor+1)
		}
	case tea.KeyLeft:
		m.cursor--
	case tea.KeyRight:
		m.cursor++
	case tea.KeyUp:
		m.cursor = verticalMove(m.text, m.cursor, -1)
	case tea.KeyDown:
		m.cursor = verticalMove(m.text, m.cursor, 1)
	case tea.KeyHome:
		m.cursor = lineStart(m.text, m.cursor)
	case tea.KeyEnd:
		m.cursor = lineEnd(m.text, m.cursor)
	default:
		return nil
	}
	m.reloadText()
	m.clampCursor()
	if err != nil {
		return func() tea.Msg { return errMsg{err} }
	}
	return nil
}

func (m *Model) insert(s string) error {
	if err := m.buf.Insert(m.cursor, s); err != nil {
		return err
	}
	m.cursor += len([]rune(s))
	return nil
}

// toggleMode switches the view mode now and moves the tracker in the
// background, since leaving edit mode may record.
func (m *Model) toggleMode() tea.Cmd {
	if m.mode == model.ModeEdit {
		m.mode = model.ModeRead
	} else {
		m.mode = model.ModeEdit
	}
	m.modeSeq++
	ctx, mgr, buf, mode, seq, focus := m.ctx, m.opts.Manager, m.buf, m.mode, m.modeSeq, m.focus
	return func() tea.Msg {
		focus.mu.Lock()
		defer focus.mu.Unlock()
		if seq < focus.applied {
			return nil
		}
		focus.applied = seq
		mgr.Focus(ctx, buf, mode)
		return nil
	}
}

func (m *Model) recordNow() tea.Cmd {
	if m.opts.Recorder == nil {
		return m.showNotice("no recorder configured", noticeTTL)
	}
	ctx, rec, t := m.ctx, m.opts.Recorder, m.tracker
	return func() tea.Msg {
		if err := rec.RecordNow(ctx, t); err != nil {
			return errMsg{fmt.Errorf("failed to record: %w", err)}
		}
		return recordedMsg{}
	}
}

func (m *Model) scroll(delta int) {
	m.top += delta
	if m.top < 0 {
		m.top = 0
	}
	m.tracker.Touch()
}

func (m *Model) reloadText() {
	text, err := m.buf.Text()
	if err != nil {
		m.log.Error("failed to read buffer", "err", err)
		return
	}
	m.text = []rune(text)
}

func (m *Model) clampCursor() {
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor > len(m.text) {
		m.cursor = len(m.text)
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	footer := m.renderFooter()
	bodyHeight := m.height - lipgloss.Height(footer)
	if bodyHeight < 1 {
		bodyHeight = 1
	}

	contentWidth := int(float64(m.width) * 0.70)
	if contentWidth < 1 {
		contentWidth = 1
	}
	cursor, base := m.cursor, textStyle
	if m.mode == model.ModeRead {
		cursor, base = -1, readStyle
	}
	lines := wrapStyledRunes(buildStyledRunes(m.text, cursor, base), contentWidth)
	m.fitTop(lines, bodyHeight, cursor >= 0)
	visible := lines[m.top:]
	if len(visible) > bodyHeight {
		visible = visible[:bodyHeight]
	}
	content := lipgloss.NewStyle().Width(contentWidth).Render(renderLines(visible))
	body := lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Top, content)
	return body + "\n" + footer
}

// fitTop keeps the cursor line on screen in edit mode and the scroll offset
// inside the document in read mode.
func (m *Model) fitTop(lines [][]styledRune, height int, follow bool) {
	if follow {
		line := cursorLine(lines)
		if line < m.top {
			m.top = line
		}
		if line >= m.top+height {
			m.top = line - height + 1
		}
	}
	if maxTop := len(lines) - height; m.top > maxTop {
		m.top = maxTop
	}
	if m.top < 0 {
		m.top = 0
	}
}

func (m *Model) renderFooter() string {
	segments := []string{modeStyle.Render(m.mode.String()), footerStyle.Render(m.status())}
	if m.buf.Dirty() {
		segments = append(segments, footerStyle.Render("modified"))
	}
	if m.notice != "" {
		segments = append(segments, noticeStyle.Render(m.notice))
	}
	line := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, strings.Join(segments, "  "))
	helpView := m.help.View(m.keys)
	if helpView == "" {
		return line
	}
	return line + "\n" + lipgloss.Place(m.width, lipgloss.Height(helpView), lipgloss.Center, lipgloss.Top, helpView)
}

// status expands the status template of the current mode.
func (m *Model) status() string {
	tpl := m.opts.EditTemplate
	if m.mode == model.ModeRead {
		tpl = m.opts.ReadTemplate
	}
	return note.Expand(tpl, note.RowFromSnapshot(m.snap), m.opts.Render)
}

func lineStart(text []rune, pos int) int {
	for pos > 0 && text[pos-1] != '\n' {
		pos--
	}
	return pos
}

func lineEnd(text []rune, pos int) int {
	for pos < len(text) && text[pos] != '\n' {
		pos++
	}
	return pos
}

// verticalMove moves pos to the same column of the previous (dir < 0) or
// next logical line.
func verticalMove(text []rune, pos, dir int) int {
	start := lineStart(text, pos)
	col := pos - start
	var target int
	if dir < 0 {
		if start == 0 {
			return 0
		}
		target = lineStart(text, start-1)
	} else {
		end := lineEnd(text, pos)
		if end == len(text) {
			return len(text)
		}
		target = end + 1
	}
	if limit := lineEnd(text, target); target+col > limit {
		return limit
	}
	return target + col
}
