package download

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidal-downloader/tidal/internal/engine"
	"github.com/tidal-downloader/tidal/internal/engine/events"
	"github.com/tidal-downloader/tidal/internal/engine/types"
)

// fakeRunner blocks until it is stopped and lets the test drive callbacks.
type fakeRunner struct {
	task types.Task
	cb   engine.Callback

	paused    atomic.Bool
	cancelled atomic.Bool
	stop      chan struct{}
	once      sync.Once
}

func (r *fakeRunner) Run(ctx context.Context) {
	select {
	case <-r.stop:
	case <-ctx.Done():
	}
}

func (r *fakeRunner) Pause() {
	r.paused.Store(true)
	r.halt()
}

func (r *fakeRunner) Cancel() {
	r.cancelled.Store(true)
	r.halt()
}

func (r *fakeRunner) halt() { r.once.Do(func() { close(r.stop) }) }

func (r *fakeRunner) complete(total int64) {
	t := r.task
	t.ApplyProgress(total, total, 0)
	r.cb.OnCompleted(t)
	r.halt()
}

func (r *fakeRunner) fail(msg string) {
	r.cb.OnError(r.task, msg)
	r.halt()
}

// fakeFactory records every runner it builds, keyed by task id.
type fakeFactory struct {
	mu      sync.Mutex
	runners map[string][]*fakeRunner
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{runners: make(map[string][]*fakeRunner)}
}

func (f *fakeFactory) build(task types.Task, cb engine.Callback, _ *types.RuntimeConfig) Runner {
	r := &fakeRunner{task: task, cb: cb, stop: make(chan struct{})}
	f.mu.Lock()
	f.runners[task.ID] = append(f.runners[task.ID], r)
	f.mu.Unlock()
	return r
}

func (f *fakeFactory) last(t *testing.T, id string) *fakeRunner {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	rs := f.runners[id]
	require.NotEmpty(t, rs, "no runner built for %s", id)
	return rs[len(rs)-1]
}

func (f *fakeFactory) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runners[id])
}

// eventLog records events in delivery order.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) listener() events.Listener {
	return events.EventFunc(func(e events.Event) {
		l.mu.Lock()
		l.events = append(l.events, e)
		l.mu.Unlock()
	})
}

func (l *eventLog) all() []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Event(nil), l.events...)
}

func newTestManager(t *testing.T, maxConcurrent int) (*Manager, *fakeFactory) {
	t.Helper()
	f := newFakeFactory()
	m := New(Options{MaxConcurrent: maxConcurrent, NewRunner: f.build})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, f
}

func mustAdd(t *testing.T, m *Manager, dir, name string) string {
	t.Helper()
	id, err := m.AddDownload("http://example.com/"+name, name, dir)
	require.NoError(t, err)
	// Keep creation times strictly ordered
	time.Sleep(time.Millisecond)
	return id
}

func status(t *testing.T, m *Manager, id string) types.Status {
	t.Helper()
	task, ok := m.GetTask(id)
	require.True(t, ok, "task %s missing", id)
	return task.Status
}

func TestNew_Defaults(t *testing.T) {
	m := New(Options{})
	assert.Equal(t, DefaultMaxConcurrent, m.MaxConcurrentDownloads())
	assert.Equal(t, 0, m.ActiveCount())
	assert.Empty(t, m.GetAllTasks())

	assert.Equal(t, 1, New(Options{MaxConcurrent: -4}).MaxConcurrentDownloads())
}

func TestAddDownload_ReturnsMatchingTask(t *testing.T) {
	m, _ := newTestManager(t, 3)
	dir := t.TempDir()

	id, err := m.AddDownload("http://example.com/a.bin", "a.bin", dir)
	require.NoError(t, err)

	task, ok := m.GetTask(id)
	require.True(t, ok)
	assert.Equal(t, "http://example.com/a.bin", task.URL)
	assert.Equal(t, "a.bin", task.FileName)
	assert.Equal(t, dir, task.SavePath)
	assert.Equal(t, types.StatusDownloading, task.Status)
	assert.False(t, task.StartedAt.IsZero())
	assert.Equal(t, types.DefaultSegments, task.Segments)
}

func TestAddDownload_CreatesSaveDirectory(t *testing.T) {
	m, _ := newTestManager(t, 1)
	dir := filepath.Join(t.TempDir(), "a", "b", "c")

	_, err := m.AddDownload("http://example.com/x", "x", dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAddDownload_Validation(t *testing.T) {
	m, _ := newTestManager(t, 3)
	dir := t.TempDir()

	tests := []struct {
		name                string
		url, file, savePath string
		segments            int
	}{
		{"blank url", "  ", "a", dir, 4},
		{"blank file name", "http://x/a", "", dir, 4},
		{"blank save path", "http://x/a", "a", "\t", 4},
		{"zero segments", "http://x/a", "a", dir, 0},
		{"too many segments", "http://x/a", "a", dir, types.MaxSegments + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AddDownloadWithSegments(tt.url, tt.file, tt.savePath, tt.segments)
			require.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
	assert.Empty(t, m.GetAllTasks(), "rejected adds must not change state")
}

func TestAddDownloadWithSegments(t *testing.T) {
	m, f := newTestManager(t, 1)
	id, err := m.AddDownloadWithSegments("http://x/a", "a", t.TempDir(), 9)
	require.NoError(t, err)

	task, _ := m.GetTask(id)
	assert.Equal(t, 9, task.Segments)
	assert.Equal(t, 9, f.last(t, id).task.Segments, "runner sees the configured segment count")
}

func TestAddDownload_DisambiguatesNames(t *testing.T) {
	m, _ := newTestManager(t, 3)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	first := mustAdd(t, m, dir, "a.txt")
	second := mustAdd(t, m, dir, "a.txt")

	t1, _ := m.GetTask(first)
	t2, _ := m.GetTask(second)
	assert.Equal(t, "a(1).txt", t1.FileName)
	assert.Equal(t, "a(2).txt", t2.FileName, "a live task's target counts as taken")
}

func TestConcurrencyCap(t *testing.T) {
	m, f := newTestManager(t, 2)
	dir := t.TempDir()

	var ids []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, mustAdd(t, m, dir, name))
		assert.LessOrEqual(t, m.ActiveCount(), 2)
	}

	assert.Equal(t, 2, m.ActiveCount())
	assert.Equal(t, types.StatusDownloading, status(t, m, ids[0]))
	assert.Equal(t, types.StatusDownloading, status(t, m, ids[1]))
	for _, id := range ids[2:] {
		assert.Equal(t, types.StatusWaiting, status(t, m, id))
		assert.Equal(t, 0, f.count(id), "waiting tasks have no runner")
	}

	f.last(t, ids[0]).complete(10)
	assert.Equal(t, types.StatusCompleted, status(t, m, ids[0]))
	assert.Equal(t, types.StatusDownloading, status(t, m, ids[2]), "earliest waiting task is admitted")
	assert.Equal(t, types.StatusWaiting, status(t, m, ids[3]))
	assert.Equal(t, 2, m.ActiveCount())
}

func TestFIFOAdmission(t *testing.T) {
	m, f := newTestManager(t, 1)
	dir := t.TempDir()

	a := mustAdd(t, m, dir, "a")
	b := mustAdd(t, m, dir, "b")
	c := mustAdd(t, m, dir, "c")

	f.last(t, a).fail("boom")
	assert.Equal(t, types.StatusDownloading, status(t, m, b))
	assert.Equal(t, types.StatusWaiting, status(t, m, c))

	f.last(t, b).complete(1)
	assert.Equal(t, types.StatusDownloading, status(t, m, c))
}

func TestFIFOAdmission_AfterOutOfOrderRemovals(t *testing.T) {
	m, f := newTestManager(t, 1)
	dir := t.TempDir()

	a := mustAdd(t, m, dir, "a")
	b := mustAdd(t, m, dir, "b")
	c := mustAdd(t, m, dir, "c")
	d := mustAdd(t, m, dir, "d")

	require.NoError(t, m.RemoveTask(c))
	assert.Equal(t, types.StatusDownloading, status(t, m, a))
	assert.Equal(t, 0, f.count(b))
	assert.Equal(t, 0, f.count(d))

	require.NoError(t, m.RemoveTask(a))
	assert.Equal(t, types.StatusDownloading, status(t, m, b), "earliest remaining task goes first")
	assert.Equal(t, types.StatusWaiting, status(t, m, d))
	assert.Equal(t, 0, f.count(d))

	f.last(t, b).complete(1)
	assert.Equal(t, types.StatusDownloading, status(t, m, d))
	assert.Equal(t, 1, m.ActiveCount())
}

func TestSetMaxConcurrentDownloads(t *testing.T) {
	m, _ := newTestManager(t, 1)
	dir := t.TempDir()

	ids := []string{mustAdd(t, m, dir, "a"), mustAdd(t, m, dir, "b"), mustAdd(t, m, dir, "c")}
	assert.Equal(t, 1, m.ActiveCount())

	m.SetMaxConcurrentDownloads(3)
	assert.Equal(t, 3, m.ActiveCount(), "raising the cap admits waiting tasks")
	for _, id := range ids {
		assert.Equal(t, types.StatusDownloading, status(t, m, id))
	}

	m.SetMaxConcurrentDownloads(0)
	assert.Equal(t, 1, m.MaxConcurrentDownloads())
	m.SetMaxConcurrentDownloads(-5)
	assert.Equal(t, 1, m.MaxConcurrentDownloads())
	assert.Equal(t, 3, m.ActiveCount(), "lowering the cap does not interrupt running tasks")
}

func TestPauseDownload_FreesSlot(t *testing.T) {
	m, f := newTestManager(t, 1)
	dir := t.TempDir()

	a := mustAdd(t, m, dir, "a")
	b := mustAdd(t, m, dir, "b")
	runner := f.last(t, a)

	require.NoError(t, m.PauseDownload(a))
	assert.True(t, runner.paused.Load())
	assert.Equal(t, types.StatusPaused, status(t, m, a))
	assert.Equal(t, types.StatusDownloading, status(t, m, b))
	assert.Equal(t, 1, m.ActiveCount())

	// Pausing a task without a live transfer changes nothing
	require.NoError(t, m.PauseDownload(a))
	assert.Equal(t, types.StatusPaused, status(t, m, a))

	assert.ErrorIs(t, m.PauseDownload("missing"), ErrNotFound)
}

func TestStaleCallbacksIgnored(t *testing.T) {
	m, f := newTestManager(t, 1)
	dir := t.TempDir()

	a := mustAdd(t, m, dir, "a")
	b := mustAdd(t, m, dir, "b")
	old := f.last(t, a)
	require.NoError(t, m.PauseDownload(a))

	old.cb.OnProgress(old.task, 50, 100, 10)
	old.cb.OnCompleted(old.task)
	old.cb.OnError(old.task, "late")

	task, _ := m.GetTask(a)
	assert.Equal(t, types.StatusPaused, task.Status)
	assert.Equal(t, int64(0), task.Downloaded)
	assert.Empty(t, task.ErrorMessage)
	assert.Equal(t, 1, m.ActiveCount())
	assert.Equal(t, types.StatusDownloading, status(t, m, b))
}

func TestProgressAndError(t *testing.T) {
	m, f := newTestManager(t, 1)
	id := mustAdd(t, m, t.TempDir(), "a")
	r := f.last(t, id)

	r.cb.OnProgress(r.task, 40, 100, 20)
	task, _ := m.GetTask(id)
	assert.Equal(t, int64(40), task.Downloaded)
	assert.Equal(t, int64(100), task.TotalSize)
	assert.Equal(t, int64(20), task.Speed)

	r.fail("could not retrieve file information")
	task, _ = m.GetTask(id)
	assert.Equal(t, types.StatusError, task.Status)
	assert.Equal(t, "could not retrieve file information", task.ErrorMessage)
	assert.Equal(t, 0, m.ActiveCount())

	// Restart clears the error
	require.NoError(t, m.StartDownload(id))
	task, _ = m.GetTask(id)
	assert.Equal(t, types.StatusDownloading, task.Status)
	assert.Empty(t, task.ErrorMessage)
	assert.Equal(t, 2, f.count(id), "every start builds a fresh runner")
}

func TestCompletion(t *testing.T) {
	m, f := newTestManager(t, 1)
	id := mustAdd(t, m, t.TempDir(), "a")

	f.last(t, id).complete(123)
	task, _ := m.GetTask(id)
	assert.Equal(t, types.StatusCompleted, task.Status)
	assert.Equal(t, int64(123), task.Downloaded)
	assert.Equal(t, int64(123), task.TotalSize)
	assert.False(t, task.CompletedAt.IsZero())
	assert.Equal(t, 0, m.ActiveCount())
}

func TestStartDownload_NoOps(t *testing.T) {
	m, f := newTestManager(t, 2)
	id := mustAdd(t, m, t.TempDir(), "a")

	require.NoError(t, m.StartDownload(id))
	assert.Equal(t, 1, f.count(id), "starting a downloading task is a no-op")
	assert.Equal(t, 1, m.ActiveCount())

	assert.ErrorIs(t, m.StartDownload("missing"), ErrNotFound)
}

func TestStartDownload_QueuesWhenFull(t *testing.T) {
	m, _ := newTestManager(t, 1)
	dir := t.TempDir()
	a := mustAdd(t, m, dir, "a")
	b := mustAdd(t, m, dir, "b")

	require.NoError(t, m.PauseDownload(b))
	assert.Equal(t, types.StatusWaiting, status(t, m, b), "pausing a waiting task is a no-op")

	require.NoError(t, m.PauseDownload(a))
	assert.Equal(t, types.StatusDownloading, status(t, m, b))

	require.NoError(t, m.StartDownload(a))
	assert.Equal(t, types.StatusWaiting, status(t, m, a), "restart queues while the slot is busy")
}

func TestCancelDownload(t *testing.T) {
	m, f := newTestManager(t, 1)
	dir := t.TempDir()

	a := mustAdd(t, m, dir, "a")
	b := mustAdd(t, m, dir, "b")

	require.NoError(t, m.CancelDownload(a))
	assert.True(t, f.last(t, a).cancelled.Load())
	assert.Equal(t, types.StatusCancelled, status(t, m, a))
	assert.Equal(t, types.StatusDownloading, status(t, m, b))

	// Non-active tasks lose their temp file directly
	require.NoError(t, m.PauseDownload(b))
	task, _ := m.GetTask(b)
	require.NoError(t, os.WriteFile(task.TempPath(), []byte("partial"), 0o644))
	require.NoError(t, m.CancelDownload(b))
	assert.NoFileExists(t, task.TempPath())
	assert.Equal(t, types.StatusCancelled, status(t, m, b))
	assert.Equal(t, 0, m.ActiveCount())
}

func TestCancelDownload_CompletedUntouched(t *testing.T) {
	m, f := newTestManager(t, 1)
	id := mustAdd(t, m, t.TempDir(), "a")
	f.last(t, id).complete(5)

	require.NoError(t, m.CancelDownload(id))
	assert.Equal(t, types.StatusCompleted, status(t, m, id))
}

func TestRemoveTask(t *testing.T) {
	m, f := newTestManager(t, 1)
	dir := t.TempDir()

	a := mustAdd(t, m, dir, "a")
	b := mustAdd(t, m, dir, "b")
	task, _ := m.GetTask(a)
	require.NoError(t, os.WriteFile(task.TempPath(), []byte("partial"), 0o644))

	require.NoError(t, m.RemoveTask(a))
	_, ok := m.GetTask(a)
	assert.False(t, ok)
	assert.True(t, f.last(t, a).paused.Load(), "active task is paused before removal")
	assert.FileExists(t, task.TempPath(), "remove keeps the temp file")
	assert.Equal(t, types.StatusDownloading, status(t, m, b))

	// Any state can be removed
	f.last(t, b).fail("x")
	require.NoError(t, m.RemoveTask(b))
	assert.Empty(t, m.GetAllTasks())

	assert.ErrorIs(t, m.RemoveTask(a), ErrNotFound)
}

func TestRemoveThenReAdd_KeepsNameForResume(t *testing.T) {
	m, _ := newTestManager(t, 1)
	dir := t.TempDir()

	first := mustAdd(t, m, dir, "a.txt")
	task, _ := m.GetTask(first)
	require.NoError(t, os.WriteFile(task.TempPath(), []byte("partial"), 0o644))
	require.NoError(t, m.RemoveTask(first))

	second := mustAdd(t, m, dir, "a.txt")
	readded, _ := m.GetTask(second)
	assert.Equal(t, "a.txt", readded.FileName, "the kept temp file is not an occupied name")
	assert.Equal(t, task.TempPath(), readded.TempPath())
	assert.FileExists(t, readded.TempPath())
}

func TestDiscardTask(t *testing.T) {
	m, f := newTestManager(t, 1)
	dir := t.TempDir()

	a := mustAdd(t, m, dir, "a")
	b := mustAdd(t, m, dir, "b")
	waiting, _ := m.GetTask(b)
	require.NoError(t, os.WriteFile(waiting.TempPath(), []byte("partial"), 0o644))

	require.NoError(t, m.DiscardTask(a))
	assert.True(t, f.last(t, a).cancelled.Load())
	_, ok := m.GetTask(a)
	assert.False(t, ok)
	assert.Equal(t, types.StatusDownloading, status(t, m, b))

	require.NoError(t, m.PauseDownload(b))
	require.NoError(t, m.DiscardTask(b))
	assert.NoFileExists(t, waiting.TempPath())
	assert.Empty(t, m.GetAllTasks())
}

func TestGetAllTasks_Ordered(t *testing.T) {
	m, _ := newTestManager(t, 1)
	dir := t.TempDir()
	want := []string{mustAdd(t, m, dir, "a"), mustAdd(t, m, dir, "b"), mustAdd(t, m, dir, "c")}

	var got []string
	for _, task := range m.GetAllTasks() {
		got = append(got, task.ID)
	}
	assert.Equal(t, want, got)
}

func TestGetTask_ReturnsSnapshot(t *testing.T) {
	m, _ := newTestManager(t, 1)
	id := mustAdd(t, m, t.TempDir(), "a")

	snap, _ := m.GetTask(id)
	snap.Status = types.StatusCompleted
	snap.FileName = "changed"

	assert.Equal(t, types.StatusDownloading, status(t, m, id))
	task, _ := m.GetTask(id)
	assert.Equal(t, "a", task.FileName)
}

func TestListeners(t *testing.T) {
	m, f := newTestManager(t, 1)
	log := &eventLog{}
	sub := m.AddListener(log.listener())

	// Listeners observe state that is already visible through GetTask
	var mismatches atomic.Int32
	m.AddListener(events.ListenerFuncs{Updated: func(task types.Task) {
		if live, ok := m.GetTask(task.ID); !ok || live.Status != task.Status {
			mismatches.Add(1)
		}
	}})

	id := mustAdd(t, m, t.TempDir(), "a")
	f.last(t, id).complete(1)
	require.NoError(t, m.RemoveTask(id))

	got := log.all()
	require.Len(t, got, 4)
	assert.Equal(t, events.TaskAdded, got[0].Type)
	assert.Equal(t, types.StatusWaiting, got[0].Task.Status)
	assert.Equal(t, events.TaskUpdated, got[1].Type)
	assert.Equal(t, types.StatusDownloading, got[1].Task.Status)
	assert.Equal(t, events.TaskUpdated, got[2].Type)
	assert.Equal(t, types.StatusCompleted, got[2].Task.Status)
	assert.Equal(t, events.TaskRemoved, got[3].Type)
	assert.Equal(t, int32(0), mismatches.Load())

	m.RemoveListener(sub)
	mustAdd(t, m, t.TempDir(), "b")
	assert.Len(t, log.all(), 4, "removed listener gets nothing")
}

func TestFailureIsolation(t *testing.T) {
	m, f := newTestManager(t, 3)
	dir := t.TempDir()
	a := mustAdd(t, m, dir, "a")
	b := mustAdd(t, m, dir, "b")

	f.last(t, a).fail("network down")
	assert.Equal(t, types.StatusError, status(t, m, a))
	assert.Equal(t, types.StatusDownloading, status(t, m, b))
	assert.Equal(t, 1, m.ActiveCount())
}

func TestShutdown(t *testing.T) {
	f := newFakeFactory()
	m := New(Options{MaxConcurrent: 2, NewRunner: f.build})
	dir := t.TempDir()

	a := mustAdd(t, m, dir, "a")
	b := mustAdd(t, m, dir, "b")
	c := mustAdd(t, m, dir, "c")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	assert.Equal(t, types.StatusPaused, status(t, m, a))
	assert.Equal(t, types.StatusPaused, status(t, m, b))
	assert.Equal(t, types.StatusWaiting, status(t, m, c), "no admissions after shutdown")
	assert.Equal(t, 0, m.ActiveCount())
	assert.True(t, f.last(t, a).paused.Load())

	require.NoError(t, m.StartDownload(c))
	assert.Equal(t, types.StatusWaiting, status(t, m, c))
}

func TestConcurrentOperations(t *testing.T) {
	m, f := newTestManager(t, 2)
	dir := t.TempDir()

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := m.AddDownload("http://example.com/f", "f.bin", dir)
			if err == nil {
				ids <- id
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	names := make(map[string]bool)
	for id := range ids {
		task, _ := m.GetTask(id)
		assert.False(t, names[task.FileName], "duplicate target %s", task.FileName)
		names[task.FileName] = true
	}
	assert.Len(t, names, 20)
	assert.Equal(t, 2, m.ActiveCount())

	// Drain the queue by completing whatever is running
	for i := 0; i < 20; i++ {
		for _, task := range m.GetAllTasks() {
			if task.Status == types.StatusDownloading {
				f.last(t, task.ID).complete(1)
				break
			}
		}
		assert.LessOrEqual(t, m.ActiveCount(), 2)
	}
	for _, task := range m.GetAllTasks() {
		assert.Equal(t, types.StatusCompleted, task.Status)
	}
}
