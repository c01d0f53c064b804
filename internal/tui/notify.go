package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type noticeMsg struct {
	text string
	ttl  time.Duration
}

type noticeExpiredMsg int

// Notifier queues transient footer messages. It is safe for concurrent use.
type Notifier struct {
	ch chan noticeMsg
}

// NewNotifier creates a notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan noticeMsg, 16)}
}

// Notify shows msg in the footer for ttl. Messages are dropped when the
// queue is full.
func (n *Notifier) Notify(msg string, ttl time.Duration) {
	select {
	case n.ch <- noticeMsg{text: msg, ttl: ttl}:
	default:
	}
}

func (n *Notifier) wait() tea.Cmd {
	return func() tea.Msg {
		return <-n.ch
	}
}
