package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

// Define the Layout Ratios
const (
	ListWidthRatio = 0.6 // List takes 60% width
)

const logoText = `
▀█▀ █ █▀▄ ▄▀█ █
 █  █ █▄▀ █▀█ █▄▄`

func (m RootModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.state {
	case InputState:
		return m.viewInput()
	case SettingsState:
		return m.viewSettings()
	}

	availableWidth := m.width - 4
	leftWidth := int(float64(availableWidth) * ListWidthRatio)
	rightWidth := availableWidth - leftWidth - 1

	header := m.viewHeader(leftWidth)
	graphBox := renderBtopBox("Speed", m.viewGraph(rightWidth-4, lipgloss.Height(header)-3),
		rightWidth, lipgloss.Height(header), ColorNeonPurple, false)
	top := lipgloss.JoinHorizontal(lipgloss.Top, header, " ", graphBox)

	listHeight := m.height - lipgloss.Height(top) - 4
	if listHeight < 6 {
		listHeight = 6
	}
	listBox := renderBtopBox(fmt.Sprintf("Downloads (%d)", len(m.downloads)),
		m.viewList(leftWidth-4, listHeight-2), leftWidth, listHeight, ColorNeonPink, true)
	detailBox := renderBtopBox("Details", m.viewDetail(rightWidth-4),
		rightWidth, listHeight, ColorNeonCyan, false)
	body := lipgloss.JoinHorizontal(lipgloss.Top, listBox, " ", detailBox)

	footer := m.help.View(Keys)
	if m.notice != "" {
		footer = NoticeStyle.Render(m.notice) + "\n" + footer
	}
	if m.err != nil {
		footer = ErrorStyle.Render("error: "+m.err.Error()) + "\n" + footer
	}

	return AppStyle.Render(lipgloss.JoinVertical(lipgloss.Left, top, body, footer))
}

func (m RootModel) viewHeader(width int) string {
	active, queued, done := m.CalculateStats()
	downloaded, total, speed := m.TotalProgress()

	endpoint := "embedded"
	if m.opts.Remote {
		endpoint = "remote"
	}
	if m.opts.Port > 0 {
		endpoint = fmt.Sprintf("%s · API :%d", endpoint, m.opts.Port)
	}

	stats := StatsStyle.Render(fmt.Sprintf("%d active · %d queued · %d done", active, queued, done))

	var pct float64
	if total > 0 {
		pct = float64(downloaded) / float64(total)
	}
	barWidth := max(width-ProgressBarWidthOffset-16, 10)
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth), progress.WithoutPercentage())
	totals := lipgloss.JoinHorizontal(lipgloss.Left,
		bar.ViewAs(pct),
		StatsStyle.Render(fmt.Sprintf(" %5.1f%%", pct*100)),
	)
	volume := StatsStyle.Render(fmt.Sprintf("%s of %s · %s",
		utils.ConvertBytesToHumanReadable(downloaded),
		utils.ConvertBytesToHumanReadable(total),
		utils.FormatSpeed(speed)))

	return lipgloss.NewStyle().Width(width).Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left,
		LogoStyle.Render(logoText),
		SubtleStyle.Render(fmt.Sprintf("%s · %s", m.opts.Version, endpoint)),
		"",
		stats,
		totals,
		volume,
	))
}

func (m RootModel) viewGraph(width, height int) string {
	if height < 1 {
		height = 1
	}
	return renderSpeedGraph(m.SpeedHistory, max(width, 1), height, ColorNeonPink)
}

func (m RootModel) viewList(width, height int) string {
	if len(m.downloads) == 0 {
		return SubtleStyle.Render("No downloads yet. Press a to add one.")
	}

	// Each row takes two lines
	visible := max(height/2, 1)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := min(start+visible, len(m.downloads))

	var rows []string
	for i := start; i < end; i++ {
		rows = append(rows, m.viewRow(m.downloads[i], width, i == m.cursor))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m RootModel) viewRow(d *DownloadModel, width int, selected bool) string {
	nameStyle := ItemStyle
	marker := "  "
	if selected {
		nameStyle = SelectedItemStyle
		marker = "> "
	}

	status := statusStyle(d.Status).Render(d.Status.DisplayName())
	name := truncateString(d.Filename, max(width-lipgloss.Width(status)-4, 8))
	line1 := marker + nameStyle.Render(name) + " " + status

	bar := d.progress
	bar.Width = max(width-28, 10)
	info := fmt.Sprintf(" %5.1f%% %s", d.Percent()*100, utils.FormatSpeed(d.Speed))
	if d.Status != types.StatusDownloading {
		info = fmt.Sprintf(" %5.1f%%", d.Percent()*100)
	}
	line2 := "  " + bar.ViewAs(d.Percent()) + StatsStyle.Render(info)

	return line1 + "\n" + line2
}

func (m RootModel) viewDetail(width int) string {
	d := m.selected()
	if d == nil {
		return SubtleStyle.Render("Nothing selected")
	}

	label := lipgloss.NewStyle().Width(10).Foreground(ColorLightGray)
	value := lipgloss.NewStyle().Width(max(width-10, 10)).Foreground(ColorText)
	row := func(k, v string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, label.Render(k), value.Render(v))
	}

	size := utils.ConvertBytesToHumanReadable(d.Total)
	eta := "-"
	if d.Status == types.StatusDownloading && d.Speed > 0 && d.Total > d.Downloaded {
		eta = utils.FormatETA((d.Total - d.Downloaded) / d.Speed)
	}

	lines := []string{
		row("File", d.Filename),
		row("Status", statusStyle(d.Status).Render(d.Status.DisplayName())),
		row("Size", fmt.Sprintf("%s / %s", utils.ConvertBytesToHumanReadable(d.Downloaded), size)),
		row("Speed", utils.FormatSpeed(d.Speed)),
		row("ETA", eta),
		row("Segments", fmt.Sprintf("%d", d.Segments)),
		row("Saved to", d.Dest),
		row("URL", d.URL),
		row("ID", d.ID),
	}
	if d.Err != "" {
		lines = append(lines, "", ErrorStyle.Width(max(width, 10)).Render(d.Err))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m RootModel) viewInput() string {
	labelStyle := lipgloss.NewStyle().Width(10).Foreground(ColorLightGray)
	content := lipgloss.JoinVertical(lipgloss.Left,
		"",
		lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render("URL:"), m.inputs[0].View()),
		"",
		lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render("Path:"), m.inputs[1].View()),
		"",
		lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render("Filename:"), m.inputs[2].View()),
		"",
		"",
		m.help.ShortHelpView(InputKeys.ShortHelp()),
	)
	padded := lipgloss.NewStyle().Padding(0, 2).Render(content)
	box := renderBtopBox("Add Download", padded, 80, 12, ColorNeonPink, false)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// truncateString shortens s to at most n cells, marking the cut with "...".
func truncateString(s string, n int) string {
	if lipgloss.Width(s) <= n {
		return s
	}
	if n <= 3 {
		return strings.Repeat(".", max(n, 0))
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+3 > n {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
