// Package tui is the terminal dashboard. It talks to the engine only through
// core.DownloadService, so it drives a local manager and a remote daemon
// alike.
package tui

import (
	"context"
	"sort"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tidal-downloader/tidal/internal/config"
	"github.com/tidal-downloader/tidal/internal/core"
	"github.com/tidal-downloader/tidal/internal/engine/events"
	"github.com/tidal-downloader/tidal/internal/engine/types"
)

type UIState int

const (
	DashboardState UIState = iota
	InputState
	SettingsState
)

// Clipboard access, swapped out in tests.
var (
	readClipboard  = clipboard.ReadAll
	writeClipboard = clipboard.WriteAll
)

// DownloadModel is the dashboard's copy of one task.
type DownloadModel struct {
	ID         string
	URL        string
	Filename   string
	Dest       string
	Total      int64
	Downloaded int64
	Speed      int64
	Segments   int
	Status     types.Status
	Err        string
	CreatedAt  time.Time

	progress progress.Model
}

func newDownloadModel(id string) *DownloadModel {
	return &DownloadModel{
		ID:       id,
		Total:    types.UnknownSize,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// applyTask copies an event snapshot.
func (d *DownloadModel) applyTask(t types.Task) {
	d.URL = t.URL
	d.Filename = t.FileName
	d.Dest = t.FullPath()
	d.Total = t.TotalSize
	d.Downloaded = t.Downloaded
	d.Speed = t.Speed
	d.Segments = t.Segments
	d.Status = t.Status
	d.Err = t.ErrorMessage
	d.CreatedAt = t.CreatedAt
}

// applyStatus copies a List entry.
func (d *DownloadModel) applyStatus(s types.DownloadStatus) {
	d.URL = s.URL
	d.Filename = s.Filename
	d.Dest = s.DestPath
	d.Total = s.TotalSize
	d.Downloaded = s.Downloaded
	d.Speed = s.Speed
	d.Segments = s.Segments
	if st, err := types.ParseStatus(s.Status); err == nil {
		d.Status = st
	}
	d.Err = s.Error
	d.CreatedAt = time.Unix(s.AddedAt, 0)
}

// Percent is the completed fraction in [0, 1].
func (d *DownloadModel) Percent() float64 {
	if d.Status == types.StatusCompleted {
		return 1
	}
	if d.Total <= 0 {
		return 0
	}
	p := float64(d.Downloaded) / float64(d.Total)
	if p > 1 {
		p = 1
	}
	return p
}

// Options configures the dashboard.
type Options struct {
	Port         int
	Version      string
	Settings     *config.Settings
	ExitWhenDone bool
	// Remote hides actions that only make sense for an embedded engine.
	Remote bool
}

// RootModel is the bubbletea model of the whole TUI.
type RootModel struct {
	service core.DownloadService
	opts    Options

	events     <-chan events.Event
	stopEvents func()

	downloads []*DownloadModel
	byID      map[string]*DownloadModel
	cursor    int

	width  int
	height int
	state  UIState

	inputs       []textinput.Model
	focusedInput int

	help help.Model

	SpeedHistory []float64

	Settings            *config.Settings
	SettingsActiveTab   int
	SettingsSelectedRow int
	SettingsIsEditing   bool
	SettingsInput       textinput.Model

	notice   string
	noticeAt time.Time
	err      error
}

// Messages
type (
	// EventMsg carries one task event from the service stream.
	EventMsg events.Event

	streamClosedMsg struct{}

	downloadsLoadedMsg struct {
		statuses []types.DownloadStatus
		err      error
	}

	tickMsg time.Time

	actionDoneMsg struct {
		action string
		id     string
		err    error
	}
)

// New builds the dashboard. It subscribes to the service's event stream
// immediately so no event between the first List and Init is lost.
func New(service core.DownloadService, opts Options) RootModel {
	if opts.Settings == nil {
		opts.Settings = config.DefaultSettings()
	}
	// The settings page edits a private copy
	settings := *opts.Settings
	opts.Settings = &settings

	urlInput := textinput.New()
	urlInput.Placeholder = "https://example.com/file.zip"
	urlInput.Width = InputWidth
	urlInput.Prompt = ""

	pathInput := textinput.New()
	pathInput.Placeholder = opts.Settings.General.DefaultDownloadDir
	pathInput.Width = InputWidth
	pathInput.Prompt = ""

	filenameInput := textinput.New()
	filenameInput.Placeholder = "(auto-detect)"
	filenameInput.Width = InputWidth
	filenameInput.Prompt = ""

	settingsInput := textinput.New()
	settingsInput.Width = 30
	settingsInput.Prompt = ""

	m := RootModel{
		service:       service,
		opts:          opts,
		byID:          make(map[string]*DownloadModel),
		inputs:        []textinput.Model{urlInput, pathInput, filenameInput},
		help:          help.New(),
		Settings:      opts.Settings,
		SettingsInput: settingsInput,
		state:         DashboardState,
	}

	ch, stop, err := service.StreamEvents(context.Background())
	if err != nil {
		m.err = err
	} else {
		m.events = ch
		m.stopEvents = stop
	}
	return m
}

func (m RootModel) Init() tea.Cmd {
	return tea.Batch(
		loadDownloads(m.service),
		listenForEvents(m.events),
		tick(),
	)
}

// Close stops the event subscription.
func (m RootModel) Close() {
	if m.stopEvents != nil {
		m.stopEvents()
	}
}

func listenForEvents(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return EventMsg(e)
	}
}

func loadDownloads(service core.DownloadService) tea.Cmd {
	return func() tea.Msg {
		statuses, err := service.List()
		return downloadsLoadedMsg{statuses: statuses, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// serviceAction runs a service call off the UI goroutine.
func serviceAction(action, id string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: action, id: id, err: fn()}
	}
}

// upsert returns the row for id, creating it if needed.
func (m *RootModel) upsert(id string) *DownloadModel {
	if d, ok := m.byID[id]; ok {
		return d
	}
	d := newDownloadModel(id)
	m.byID[id] = d
	m.downloads = append(m.downloads, d)
	return d
}

func (m *RootModel) remove(id string) {
	if _, ok := m.byID[id]; !ok {
		return
	}
	delete(m.byID, id)
	for i, d := range m.downloads {
		if d.ID == id {
			m.downloads = append(m.downloads[:i], m.downloads[i+1:]...)
			break
		}
	}
	m.clampCursor()
}

// sortDownloads keeps the manager's order: oldest first, ties by id.
func (m *RootModel) sortDownloads() {
	sort.SliceStable(m.downloads, func(i, j int) bool {
		a, b := m.downloads[i], m.downloads[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (m *RootModel) clampCursor() {
	if m.cursor >= len(m.downloads) {
		m.cursor = len(m.downloads) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// selected returns the row under the cursor, or nil.
func (m RootModel) selected() *DownloadModel {
	if m.cursor < 0 || m.cursor >= len(m.downloads) {
		return nil
	}
	return m.downloads[m.cursor]
}

// CalculateStats counts active, waiting and completed rows.
func (m RootModel) CalculateStats() (active, queued, done int) {
	for _, d := range m.downloads {
		switch d.Status {
		case types.StatusDownloading:
			active++
		case types.StatusWaiting:
			queued++
		case types.StatusCompleted:
			done++
		}
	}
	return active, queued, done
}

// TotalProgress aggregates every row with a known size.
func (m RootModel) TotalProgress() (downloaded, total, speed int64) {
	for _, d := range m.downloads {
		if d.Status == types.StatusDownloading {
			speed += d.Speed
		}
		if d.Total <= 0 {
			continue
		}
		total += d.Total
		if d.Status == types.StatusCompleted {
			downloaded += d.Total
		} else {
			downloaded += min(d.Downloaded, d.Total)
		}
	}
	return downloaded, total, speed
}

// allSettled reports whether nothing is running or queued.
func (m RootModel) allSettled() bool {
	if len(m.downloads) == 0 {
		return false
	}
	active, queued, _ := m.CalculateStats()
	return active == 0 && queued == 0
}

func (m *RootModel) setNotice(s string) {
	m.notice = s
	m.noticeAt = time.Now()
}
