package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidal-downloader/tidal/internal/config"
	"github.com/tidal-downloader/tidal/internal/engine/events"
	"github.com/tidal-downloader/tidal/internal/engine/types"
)

type call struct {
	op      string
	id      string
	discard bool
	args    []string
}

// fakeService records calls and hands out a controllable event stream.
type fakeService struct {
	mu      sync.Mutex
	calls   []call
	list    []types.DownloadStatus
	err     error
	ch      chan events.Event
	stopped bool
	applied *config.Settings
}

func newFakeService() *fakeService {
	return &fakeService{ch: make(chan events.Event, 16)}
}

func (f *fakeService) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeService) lastCall(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func (f *fakeService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeService) List() ([]types.DownloadStatus, error)  { return f.list, nil }
func (f *fakeService) History() ([]types.HistoryEntry, error) { return nil, nil }
func (f *fakeService) Add(url, path, filename string, segments int) (string, error) {
	return "new", f.record(call{op: "add", args: []string{url, path, filename}})
}
func (f *fakeService) Pause(id string) error  { return f.record(call{op: "pause", id: id}) }
func (f *fakeService) Resume(id string) error { return f.record(call{op: "resume", id: id}) }
func (f *fakeService) Delete(id string, discard bool) error {
	return f.record(call{op: "delete", id: id, discard: discard})
}
func (f *fakeService) GetStatus(id string) (*types.DownloadStatus, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeService) StreamEvents(ctx context.Context) (<-chan events.Event, func(), error) {
	return f.ch, func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
	}, nil
}
func (f *fakeService) Shutdown() error { return nil }

// ApplySettings makes the fake a SettingsApplier.
func (f *fakeService) ApplySettings(s *config.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = s
}

func task(id string, status types.Status, created time.Time) types.Task {
	return types.Task{
		ID:        id,
		URL:       "https://example.com/" + id + ".bin",
		FileName:  id + ".bin",
		SavePath:  "/tmp",
		TotalSize: 1000,
		Status:    status,
		CreatedAt: created,
		Segments:  4,
	}
}

func newTestModel(t *testing.T, opts Options) (RootModel, *fakeService) {
	t.Helper()
	svc := newFakeService()
	s := config.DefaultSettings()
	s.General.DefaultDownloadDir = "/downloads"
	s.General.ClipboardPrefill = false
	if opts.Settings == nil {
		opts.Settings = s
	}
	m := New(svc, opts)
	return m, svc
}

func send(t *testing.T, m RootModel, msg tea.Msg) (RootModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	rm, ok := next.(RootModel)
	require.True(t, ok)
	return rm, cmd
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDownloadModel_Percent(t *testing.T) {
	tests := []struct {
		name   string
		model  DownloadModel
		expect float64
	}{
		{"unknown size", DownloadModel{Total: -1, Downloaded: 10}, 0},
		{"zero size", DownloadModel{Total: 0}, 0},
		{"half", DownloadModel{Total: 200, Downloaded: 100}, 0.5},
		{"over", DownloadModel{Total: 100, Downloaded: 150}, 1},
		{"completed unknown", DownloadModel{Total: -1, Status: types.StatusCompleted}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expect, tt.model.Percent(), 1e-9)
		})
	}
}

func TestNew_CopiesSettings(t *testing.T) {
	s := config.DefaultSettings()
	m, _ := newTestModel(t, Options{Settings: s})
	m.Settings.Connections.MaxConcurrentDownloads = 9
	assert.Equal(t, 3, s.Connections.MaxConcurrentDownloads)
}

func TestEvents_AddUpdateRemove(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	base := time.Now()

	var cmd tea.Cmd
	m, cmd = send(t, m, EventMsg(events.NewEvent(events.TaskAdded, task("b", types.StatusWaiting, base.Add(time.Second)))))
	require.NotNil(t, cmd, "listening continues after an event")
	m, _ = send(t, m, EventMsg(events.NewEvent(events.TaskAdded, task("a", types.StatusDownloading, base))))

	require.Len(t, m.downloads, 2)
	assert.Equal(t, "a", m.downloads[0].ID, "rows are ordered by creation")

	upd := task("a", types.StatusDownloading, base)
	upd.Downloaded = 500
	upd.Speed = 2048
	m, _ = send(t, m, EventMsg(events.NewEvent(events.TaskUpdated, upd)))
	assert.Equal(t, int64(500), m.byID["a"].Downloaded)
	assert.Equal(t, "/tmp/a.bin", m.byID["a"].Dest)

	m.cursor = 1
	m, _ = send(t, m, EventMsg(events.NewEvent(events.TaskRemoved, task("b", types.StatusWaiting, base))))
	require.Len(t, m.downloads, 1)
	assert.Equal(t, 0, m.cursor, "cursor is clamped after removal")
}

func TestStreamClosed(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	m, cmd := send(t, m, streamClosedMsg{})
	assert.Nil(t, cmd)
	assert.Nil(t, m.events)
	assert.NotEmpty(t, m.notice)
}

func TestListing_DoesNotOverrideStream(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	now := time.Now()

	fresh := task("a", types.StatusDownloading, now)
	fresh.Downloaded = 900
	m, _ = send(t, m, EventMsg(events.NewEvent(events.TaskUpdated, fresh)))

	m, _ = send(t, m, downloadsLoadedMsg{statuses: []types.DownloadStatus{
		{ID: "a", Status: "downloading", Downloaded: 100, TotalSize: 1000, AddedAt: now.Unix()},
		{ID: "z", Filename: "z.bin", Status: "paused", Downloaded: 10, TotalSize: 100, AddedAt: now.Add(-time.Hour).Unix()},
	}})

	require.Len(t, m.downloads, 2)
	assert.Equal(t, int64(900), m.byID["a"].Downloaded)
	assert.Equal(t, types.StatusPaused, m.byID["z"].Status)
	assert.Equal(t, "z", m.downloads[0].ID)
}

func TestListing_Error(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	m, _ = send(t, m, downloadsLoadedMsg{err: errors.New("boom")})
	assert.EqualError(t, m.err, "boom")
}

func TestStatsAndTotals(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	now := time.Now()

	a := task("a", types.StatusDownloading, now)
	a.Downloaded = 250
	a.Speed = 100
	b := task("b", types.StatusWaiting, now.Add(time.Second))
	c := task("c", types.StatusCompleted, now.Add(2*time.Second))
	c.Downloaded = 1000
	d := task("d", types.StatusDownloading, now.Add(3*time.Second))
	d.TotalSize = types.UnknownSize
	d.Downloaded = 77
	d.Speed = 50

	for _, tk := range []types.Task{a, b, c, d} {
		m, _ = send(t, m, EventMsg(events.NewEvent(events.TaskAdded, tk)))
	}

	active, queued, done := m.CalculateStats()
	assert.Equal(t, 2, active)
	assert.Equal(t, 1, queued)
	assert.Equal(t, 1, done)

	downloaded, total, speed := m.TotalProgress()
	assert.Equal(t, int64(1250), downloaded, "unknown sizes are left out")
	assert.Equal(t, int64(3000), total)
	assert.Equal(t, int64(150), speed)
}

func TestTick_SamplesSpeed(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	a := task("a", types.StatusDownloading, time.Now())
	a.Speed = 4096
	m, _ = send(t, m, EventMsg(events.NewEvent(events.TaskAdded, a)))

	for i := 0; i < SpeedHistoryLen+5; i++ {
		var cmd tea.Cmd
		m, cmd = send(t, m, tickMsg(time.Now()))
		require.NotNil(t, cmd)
	}
	assert.Len(t, m.SpeedHistory, SpeedHistoryLen)
	assert.Equal(t, 4096.0, m.SpeedHistory[len(m.SpeedHistory)-1])
}

func TestTick_ExitWhenDone(t *testing.T) {
	m, svc := newTestModel(t, Options{ExitWhenDone: true})

	// Nothing added yet: keep running
	m, cmd := send(t, m, tickMsg(time.Now()))
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	assert.False(t, isQuit)

	m, _ = send(t, m, EventMsg(events.NewEvent(events.TaskAdded, task("a", types.StatusCompleted, time.Now()))))
	_, cmd = send(t, m, tickMsg(time.Now()))
	require.NotNil(t, cmd)
	_, isQuit = cmd().(tea.QuitMsg)
	assert.True(t, isQuit)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.True(t, svc.stopped)
}

func TestActionDone_Notice(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	m, _ = send(t, m, actionDoneMsg{action: "pause", id: "a", err: errors.New("not found")})
	assert.Contains(t, m.notice, "pause failed")

	m, _ = send(t, m, tickMsg(time.Now()))
	assert.NotEmpty(t, m.notice)
	m.noticeAt = time.Now().Add(-2 * NoticeTTL)
	m, _ = send(t, m, tickMsg(time.Now()))
	assert.Empty(t, m.notice)
}

func TestView_Renders(t *testing.T) {
	m, _ := newTestModel(t, Options{Version: "v1.2.3", Port: 1700})
	assert.Equal(t, "Loading...", m.View())

	m, _ = send(t, m, tea.WindowSizeMsg{Width: 140, Height: 40})
	assert.Contains(t, m.View(), "No downloads yet")

	a := task("a", types.StatusError, time.Now())
	a.ErrorMessage = "could not retrieve file information"
	m, _ = send(t, m, EventMsg(events.NewEvent(events.TaskAdded, a)))

	out := m.View()
	assert.Contains(t, out, "a.bin")
	assert.Contains(t, out, "v1.2.3")
	assert.Contains(t, out, "API :1700")
	assert.Contains(t, out, "could not retrieve")
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short.bin", 20, "short.bin"},
		{"a-very-long-file-name.bin", 10, "a-very-..."},
		{"abc", 2, ".."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateString(tt.in, tt.n))
	}
}
