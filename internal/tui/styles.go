package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/tidal-downloader/tidal/internal/config"
	"github.com/tidal-downloader/tidal/internal/engine/types"
)

var (
	// Colors
	ColorNeonPurple = lipgloss.AdaptiveColor{Light: "#7c3aed", Dark: "#bd93f9"}
	ColorNeonPink   = lipgloss.AdaptiveColor{Light: "#db2777", Dark: "#ff79c6"}
	ColorNeonCyan   = lipgloss.AdaptiveColor{Light: "#0e7490", Dark: "#8be9fd"}
	ColorSuccess    = lipgloss.AdaptiveColor{Light: "#15803d", Dark: "#50fa7b"}
	ColorError      = lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#ff5555"}
	ColorWarning    = lipgloss.AdaptiveColor{Light: "#c2410c", Dark: "#ffb86c"}
	ColorText       = lipgloss.AdaptiveColor{Light: "#1f2937", Dark: "#f8f8f2"}
	ColorLightGray  = lipgloss.AdaptiveColor{Light: "#4b5563", Dark: "#bfbfbf"}
	ColorGray       = lipgloss.AdaptiveColor{Light: "#9ca3af", Dark: "#6272a4"}

	AppStyle = lipgloss.NewStyle().
			Padding(DefaultPaddingY, DefaultPaddingX).
			Foreground(ColorText)

	LogoStyle = lipgloss.NewStyle().
			Foreground(ColorNeonPurple).
			Bold(true)

	StatsStyle = lipgloss.NewStyle().
			Foreground(ColorLightGray)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(ColorNeonPink).
				Bold(true)

	ItemStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(ColorNeonCyan).
			Italic(true)

	TabStyle = lipgloss.NewStyle().
			Foreground(ColorLightGray).
			Padding(0, 1)

	ActiveTabStyle = lipgloss.NewStyle().
			Foreground(ColorNeonPink).
			Bold(true).
			Underline(true).
			Padding(0, 1)
)

// statusStyle colors a task status label.
func statusStyle(s types.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch s {
	case types.StatusDownloading:
		return base.Foreground(ColorNeonCyan)
	case types.StatusCompleted:
		return base.Foreground(ColorSuccess)
	case types.StatusError:
		return base.Foreground(ColorError)
	case types.StatusPaused, types.StatusCancelled:
		return base.Foreground(ColorWarning)
	default:
		return base.Foreground(ColorGray)
	}
}

// ApplyTheme pins the adaptive palette to the configured theme. The adaptive
// setting asks the terminal for its background color.
func ApplyTheme(theme int) {
	switch theme {
	case config.ThemeLight:
		lipgloss.SetHasDarkBackground(false)
	case config.ThemeDark:
		lipgloss.SetHasDarkBackground(true)
	default:
		lipgloss.SetHasDarkBackground(termenv.HasDarkBackground())
	}
}

// renderBtopBox draws a rounded box with the title set into the top border.
func renderBtopBox(title, content string, width, height int, color lipgloss.TerminalColor, selected bool) string {
	border := lipgloss.RoundedBorder()
	if selected {
		border = lipgloss.ThickBorder()
	}

	box := lipgloss.NewStyle().
		Border(border).
		BorderForeground(color).
		Width(width - 2).
		Height(height - 2).
		Render(content)

	if title == "" {
		return box
	}

	// Splice the title into the first line of the border
	label := lipgloss.NewStyle().Foreground(color).Bold(true).Render(" " + title + " ")
	lines := strings.Split(box, "\n")
	top := lipgloss.NewStyle().Foreground(color).Render(
		border.TopLeft + border.Top + border.Top)
	rest := width - 4 - lipgloss.Width(label)
	if rest < 0 {
		return box
	}
	top += label + lipgloss.NewStyle().Foreground(color).Render(strings.Repeat(border.Top, rest)+border.TopRight)
	lines[0] = top
	return strings.Join(lines, "\n")
}
