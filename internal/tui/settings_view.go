package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tidal-downloader/tidal/internal/config"
	"github.com/tidal-downloader/tidal/internal/utils"
)

// SettingsApplier is implemented by services that can take new settings
// without a restart.
type SettingsApplier interface {
	ApplySettings(s *config.Settings)
}

// saveSettings persists settings, used by the settings page on close.
var saveSettings = config.SaveSettings

// viewSettings renders the Btop-style settings page
func (m RootModel) viewSettings() string {
	width := 70
	height := 18
	if m.width > 0 && m.width < width+4 {
		width = m.width - 4
	}
	if m.height > 0 && m.height < height+4 {
		height = m.height - 4
	}

	categories := config.CategoryOrder()
	metadata := config.GetSettingsMetadata()

	// === TAB BAR ===
	var tabItems []string
	for i, cat := range categories {
		label := fmt.Sprintf("[%d] %s", i+1, cat)
		if i == m.SettingsActiveTab {
			tabItems = append(tabItems, ActiveTabStyle.Render(label))
		} else {
			tabItems = append(tabItems, TabStyle.Render(label))
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Left, tabItems...)

	settingsMeta := metadata[categories[m.SettingsActiveTab]]

	leftWidth := 26
	rightWidth := width - leftWidth - 5

	// === LEFT COLUMN: names ===
	var listLines []string
	for i, meta := range settingsMeta {
		if i == m.SettingsSelectedRow {
			listLines = append(listLines, SelectedItemStyle.Render("> "+meta.Label))
		} else {
			listLines = append(listLines, lipgloss.NewStyle().Foreground(ColorLightGray).Render("  "+meta.Label))
		}
	}
	listBox := lipgloss.NewStyle().Width(leftWidth).Render(lipgloss.JoinVertical(lipgloss.Left, listLines...))

	separator := lipgloss.NewStyle().
		Foreground(ColorGray).
		Render(strings.TrimSuffix(strings.Repeat("│\n", len(settingsMeta)), "\n"))

	// === RIGHT COLUMN: value + description ===
	var rightContent string
	if m.SettingsSelectedRow < len(settingsMeta) {
		meta := settingsMeta[m.SettingsSelectedRow]
		valueStr := formatSettingValue(m.settingValue(meta.Key), meta.Type)
		if m.SettingsIsEditing {
			valueStr = m.SettingsInput.View()
		}
		valueDisplay := lipgloss.NewStyle().
			Foreground(ColorNeonCyan).
			Bold(true).
			Render("Value: " + valueStr)
		descDisplay := lipgloss.NewStyle().
			Foreground(ColorGray).
			Width(rightWidth - 2).
			Render(meta.Description)
		rightContent = valueDisplay + "\n\n" + descDisplay
	}
	rightBox := lipgloss.NewStyle().Width(rightWidth).PaddingLeft(1).Render(rightContent)

	content := lipgloss.JoinHorizontal(lipgloss.Top, listBox, separator, rightBox)

	fullContent := lipgloss.JoinVertical(lipgloss.Left,
		tabBar,
		"",
		content,
		"",
		m.help.ShortHelpView(SettingsKeys.ShortHelp()),
	)

	box := renderBtopBox("Settings", fullContent, width, height, ColorNeonPink, false)
	if m.width == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m RootModel) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	categories := config.CategoryOrder()
	metas := config.GetSettingsMetadata()[categories[m.SettingsActiveTab]]

	if m.SettingsIsEditing {
		switch msg.String() {
		case "enter":
			meta := metas[m.SettingsSelectedRow]
			if err := m.setSettingValue(meta.Key, meta.Type, m.SettingsInput.Value()); err != nil {
				m.setNotice(fmt.Sprintf("%s: %v", meta.Label, err))
			}
			m.SettingsIsEditing = false
			m.SettingsInput.Blur()
			return m, nil
		case "esc":
			m.SettingsIsEditing = false
			m.SettingsInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.SettingsInput, cmd = m.SettingsInput.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, SettingsKeys.Close):
		m.state = DashboardState
		return m, m.commitSettings()

	case key.Matches(msg, SettingsKeys.Up):
		if m.SettingsSelectedRow > 0 {
			m.SettingsSelectedRow--
		}

	case key.Matches(msg, SettingsKeys.Down):
		if m.SettingsSelectedRow < len(metas)-1 {
			m.SettingsSelectedRow++
		}

	case key.Matches(msg, SettingsKeys.Tab):
		if n, err := strconv.Atoi(msg.String()); err == nil {
			m.SettingsActiveTab = n - 1
		} else {
			m.SettingsActiveTab = (m.SettingsActiveTab + 1) % len(categories)
		}
		m.SettingsSelectedRow = 0

	case key.Matches(msg, SettingsKeys.Edit):
		meta := metas[m.SettingsSelectedRow]
		if meta.Type == "bool" {
			_ = m.setSettingValue(meta.Key, meta.Type, "")
			return m, nil
		}
		m.SettingsIsEditing = true
		m.SettingsInput.SetValue(config.FormatRaw(m.settingValue(meta.Key)))
		m.SettingsInput.CursorEnd()
		return m, m.SettingsInput.Focus()

	case key.Matches(msg, SettingsKeys.Reset):
		m.resetSettingToDefault(metas[m.SettingsSelectedRow].Key)
	}
	return m, nil
}

// commitSettings clamps, applies and saves the edited settings.
func (m RootModel) commitSettings() tea.Cmd {
	s := m.Settings
	s.Validate()
	ApplyTheme(s.General.Theme)
	if a, ok := m.service.(SettingsApplier); ok {
		a.ApplySettings(s)
	}
	snapshot := *s
	return serviceAction("save settings", "", func() error {
		if err := saveSettings(&snapshot); err != nil {
			utils.Debug("Saving settings failed: %v", err)
			return err
		}
		return nil
	})
}

func (m RootModel) settingValue(k string) any {
	v, _ := m.Settings.Value(k)
	return v
}

// setSettingValue stores raw under k. Bools toggle instead of parsing.
func (m *RootModel) setSettingValue(k, typ, raw string) error {
	if typ == "bool" {
		if v, ok := m.Settings.Value(k); ok {
			b, _ := v.(bool)
			raw = strconv.FormatBool(!b)
		}
	}
	return m.Settings.Set(k, raw)
}

func (m *RootModel) resetSettingToDefault(k string) {
	_ = m.Settings.Reset(k)
}

// formatSettingValue formats a setting value for display
func formatSettingValue(value any, typ string) string {
	if value == nil {
		return "-"
	}
	switch v := value.(type) {
	case bool:
		if v {
			return "True"
		}
		return "False"
	case time.Duration:
		return v.String()
	case int64:
		if v == 0 {
			return "unlimited"
		}
		return utils.FormatSpeed(v)
	case string:
		if v == "" {
			return "(default)"
		}
		if len(v) > 30 {
			return v[:27] + "..."
		}
		return v
	}
	if typ == "int" {
		return fmt.Sprintf("%d", value)
	}
	return fmt.Sprint(value)
}
