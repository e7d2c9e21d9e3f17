package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tidal-downloader/tidal/internal/engine/events"
	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

// Update handles messages and updates the model
func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case EventMsg:
		m.applyEvent(events.Event(msg))
		return m, listenForEvents(m.events)

	case streamClosedMsg:
		m.events = nil
		m.setNotice("event stream closed")
		return m, nil

	case downloadsLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		for _, s := range msg.statuses {
			// Rows already seen through the stream are newer than the listing
			if _, known := m.byID[s.ID]; known {
				continue
			}
			m.upsert(s.ID).applyStatus(s)
		}
		m.sortDownloads()
		return m, nil

	case tickMsg:
		_, _, speed := m.TotalProgress()
		m.SpeedHistory = append(m.SpeedHistory, float64(speed))
		if len(m.SpeedHistory) > SpeedHistoryLen {
			m.SpeedHistory = m.SpeedHistory[len(m.SpeedHistory)-SpeedHistoryLen:]
		}
		if m.notice != "" && time.Since(m.noticeAt) > NoticeTTL {
			m.notice = ""
		}
		if m.opts.ExitWhenDone && m.allSettled() {
			m.Close()
			return m, tea.Quit
		}
		return m, tick()

	case actionDoneMsg:
		if msg.err != nil {
			utils.Debug("TUI %s %s failed: %v", msg.action, msg.id, msg.err)
			m.setNotice(fmt.Sprintf("%s failed: %v", msg.action, msg.err))
		} else if msg.action == "add" {
			m.setNotice("download added")
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case DashboardState:
			return m.updateDashboard(msg)
		case InputState:
			return m.updateInput(msg)
		case SettingsState:
			return m.updateSettings(msg)
		}
	}

	return m, nil
}

func (m *RootModel) applyEvent(e events.Event) {
	if e.Type == events.TaskRemoved {
		m.remove(e.Task.ID)
		return
	}
	_, known := m.byID[e.Task.ID]
	m.upsert(e.Task.ID).applyTask(e.Task)
	if !known {
		m.sortDownloads()
	}
}

func (m RootModel) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Quit):
		m.Close()
		return m, tea.Quit

	case key.Matches(msg, Keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, Keys.Down):
		if m.cursor < len(m.downloads)-1 {
			m.cursor++
		}

	case key.Matches(msg, Keys.Add):
		m.openAddForm()
		return m, nil

	case key.Matches(msg, Keys.Pause):
		if d := m.selected(); d != nil && d.Status == types.StatusDownloading {
			id := d.ID
			return m, serviceAction("pause", id, func() error { return m.service.Pause(id) })
		}

	case key.Matches(msg, Keys.Resume):
		if d := m.selected(); d != nil && d.Status != types.StatusDownloading && d.Status != types.StatusWaiting {
			id := d.ID
			return m, serviceAction("resume", id, func() error { return m.service.Resume(id) })
		}

	case key.Matches(msg, Keys.Delete), key.Matches(msg, Keys.Discard):
		if d := m.selected(); d != nil {
			id := d.ID
			discard := key.Matches(msg, Keys.Discard)
			return m, serviceAction("remove", id, func() error { return m.service.Delete(id, discard) })
		}

	case key.Matches(msg, Keys.CopyURL):
		if d := m.selected(); d != nil {
			if err := writeClipboard(d.URL); err != nil {
				m.setNotice("clipboard unavailable: " + err.Error())
			} else {
				m.setNotice("copied " + d.URL)
			}
		}

	case key.Matches(msg, Keys.Settings):
		if m.opts.Remote {
			m.setNotice("settings belong to the remote daemon")
			return m, nil
		}
		m.state = SettingsState
		m.SettingsIsEditing = false

	case key.Matches(msg, Keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// openAddForm resets the form, prefilling the URL from the clipboard.
func (m *RootModel) openAddForm() {
	m.state = InputState
	m.focusedInput = 0
	for i := range m.inputs {
		m.inputs[i].SetValue("")
		m.inputs[i].Blur()
	}
	m.inputs[1].SetValue(m.Settings.General.DefaultDownloadDir)
	if m.Settings.General.ClipboardPrefill {
		if text, err := readClipboard(); err == nil && looksLikeURL(text) {
			m.inputs[0].SetValue(strings.TrimSpace(text))
		}
	}
	m.inputs[0].Focus()
}

func looksLikeURL(s string) bool {
	s = strings.TrimSpace(s)
	return !strings.ContainsAny(s, " \n\t") &&
		(strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://"))
}

func (m *RootModel) focusInput(i int) {
	m.inputs[m.focusedInput].Blur()
	m.focusedInput = (i + len(m.inputs)) % len(m.inputs)
	m.inputs[m.focusedInput].Focus()
}

func (m RootModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, InputKeys.Cancel):
		m.state = DashboardState
		return m, nil

	case key.Matches(msg, InputKeys.Next):
		m.focusInput(m.focusedInput + 1)
		return m, nil

	case key.Matches(msg, InputKeys.Prev):
		m.focusInput(m.focusedInput - 1)
		return m, nil

	case key.Matches(msg, InputKeys.Submit):
		// Navigate through inputs: URL -> Path -> Filename -> Start
		if m.focusedInput < len(m.inputs)-1 {
			m.focusInput(m.focusedInput + 1)
			return m, nil
		}
		url := strings.TrimSpace(m.inputs[0].Value())
		if url == "" {
			m.focusInput(0)
			return m, nil
		}
		path := strings.TrimSpace(m.inputs[1].Value())
		filename := strings.TrimSpace(m.inputs[2].Value())
		m.state = DashboardState

		service := m.service
		return m, func() tea.Msg {
			id, err := service.Add(url, path, filename, 0)
			return actionDoneMsg{action: "add", id: id, err: err}
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focusedInput], cmd = m.inputs[m.focusedInput].Update(msg)
	return m, cmd
}
