package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/wordflow/internal/editor"
	"github.com/verte-zerg/wordflow/internal/model"
)

type fakeRecorder struct {
	mu      sync.Mutex
	single  []string
	all     int
	now     [][]string
	failErr error
}

func (r *fakeRecorder) Record(_ context.Context, t *Tracker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.single = append(r.single, t.Path())
	return r.failErr
}

func (r *fakeRecorder) RecordAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all++
	return r.failErr
}

func (r *fakeRecorder) RecordNow(_ context.Context, trackers ...*Tracker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, len(trackers))
	for i, t := range trackers {
		paths[i] = t.Path()
	}
	r.now = append(r.now, paths)
	return r.failErr
}

func (r *fakeRecorder) allCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.all
}

func newTestManager(recordOn RecordOn) (*Manager, *fakeRecorder) {
	m := NewManager(ManagerOptions{
		Tracker:  testOptions(newFakeClock()),
		RecordOn: recordOn,
	})
	rec := &fakeRecorder{}
	m.SetRecorder(rec)
	return m, rec
}

func TestFocusOwnsOneTrackerPerDocument(t *testing.T) {
	m, _ := newTestManager("")
	a := editor.New("a.md", "", editor.Options{})
	b := editor.New("b.md", "", editor.Options{})
	ctx := context.Background()

	ta := m.Focus(ctx, a, model.ModeEdit)
	assert.Same(t, ta, m.Focus(ctx, a, model.ModeEdit))

	tb := m.Focus(ctx, b, model.ModeRead)
	assert.False(t, ta.Snapshot().Active)
	assert.True(t, tb.Snapshot().Active)
	assert.Equal(t, model.ModeRead, tb.Snapshot().Mode)

	got, ok := m.Get("a.md")
	require.True(t, ok)
	assert.Same(t, ta, got)

	snaps := m.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "a.md", snaps[0].Path)
	assert.Equal(t, "b.md", snaps[1].Path)
	require.NoError(t, m.Shutdown(ctx))
}

func TestLeavingEditModeRecordsCurrent(t *testing.T) {
	m, rec := newTestManager(RecordOnCurrent)
	doc := editor.New("a.md", "", editor.Options{})
	ctx := context.Background()

	m.Focus(ctx, doc, model.ModeEdit)
	m.Focus(ctx, doc, model.ModeRead)
	m.Focus(ctx, doc, model.ModeRead)

	rec.mu.Lock()
	assert.Equal(t, []string{"a.md"}, rec.single)
	rec.mu.Unlock()
	require.NoError(t, m.Shutdown(ctx))
}

func TestLeavingEditModeRecordsAll(t *testing.T) {
	m, rec := newTestManager(RecordOnAll)
	a := editor.New("a.md", "", editor.Options{})
	b := editor.New("b.md", "", editor.Options{})
	ctx := context.Background()

	m.Focus(ctx, a, model.ModeEdit)
	m.Focus(ctx, b, model.ModeEdit)
	assert.Equal(t, 1, rec.allCalls())
	require.NoError(t, m.Shutdown(ctx))
}

func TestCloseRecordsAndDestroys(t *testing.T) {
	m, rec := newTestManager("")
	doc := editor.New("a.md", "", editor.Options{})
	ctx := context.Background()

	tr := m.Focus(ctx, doc, model.ModeEdit)
	require.NoError(t, m.Close(ctx, "a.md"))
	assert.True(t, tr.Destroyed())
	_, ok := m.Get("a.md")
	assert.False(t, ok)

	rec.mu.Lock()
	assert.Equal(t, [][]string{{"a.md"}}, rec.now)
	rec.mu.Unlock()

	assert.NoError(t, m.Close(ctx, "missing.md"))
}

func TestShutdownRecordsEveryTracker(t *testing.T) {
	m, rec := newTestManager("")
	ctx := context.Background()
	m.Focus(ctx, editor.New("b.md", "", editor.Options{}), model.ModeEdit)
	m.Focus(ctx, editor.New("a.md", "", editor.Options{}), model.ModeEdit)

	require.NoError(t, m.Shutdown(ctx))
	assert.Empty(t, m.Trackers())
	rec.mu.Lock()
	assert.Equal(t, [][]string{{"a.md", "b.md"}}, rec.now)
	rec.mu.Unlock()
}

func TestRunRecordsPeriodically(t *testing.T) {
	m := NewManager(ManagerOptions{Tracker: testOptions(newFakeClock()), AutoRecord: 10 * time.Millisecond})
	rec := &fakeRecorder{}
	m.SetRecorder(rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.allCalls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestParseRecordOn(t *testing.T) {
	got, err := ParseRecordOn("crt")
	require.NoError(t, err)
	assert.Equal(t, RecordOnCurrent, got)

	got, err = ParseRecordOn("")
	require.NoError(t, err)
	assert.Equal(t, RecordOnAll, got)

	_, err = ParseRecordOn("some")
	assert.Error(t, err)
}
