package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tidal-downloader/tidal/internal/utils"
)

var graphBlocks = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// graphScale rounds the peak of data up to a readable axis maximum. The
// result is never below 1 KB/s so an idle graph stays flat.
func graphScale(data []float64) float64 {
	peak := 1024.0
	for _, v := range data {
		if v > peak {
			peak = v
		}
	}
	// Round to the next power of two for stable axis labels
	scale := 1024.0
	for scale < peak*1.1 {
		scale *= 2
	}
	return scale
}

// renderSpeedGraph draws the speed history as a bar chart filling from the
// right, with a dashed grid showing through empty cells.
func renderSpeedGraph(data []float64, width, height int, color lipgloss.TerminalColor) string {
	if width < 1 || height < 1 {
		return ""
	}
	maxVal := graphScale(data)

	gridStyle := lipgloss.NewStyle().Foreground(ColorGray)
	barStyle := lipgloss.NewStyle().Foreground(color)

	rows := make([][]string, height)
	for i := range rows {
		rows[i] = make([]string, width)
		for j := range rows[i] {
			if i%2 == 0 {
				rows[i][j] = gridStyle.Render("╌")
			} else {
				rows[i][j] = " "
			}
		}
	}

	visible := data
	if len(visible) > width {
		visible = visible[len(visible)-width:]
	}
	offset := width - len(visible)

	for x, val := range visible {
		if val <= 0 {
			continue
		}
		pct := min(val/maxVal, 1.0)
		eighths := pct * float64(height) * 8

		for y := 0; y < height; y++ {
			cell := eighths - float64(y*8)
			if cell <= 0 {
				break
			}
			char := "█"
			if cell < 8 {
				char = graphBlocks[int(cell)]
			}
			rows[height-1-y][offset+x] = barStyle.Render(char)
		}
	}

	lines := make([]string, height)
	for i, row := range rows {
		lines[i] = strings.Join(row, "")
	}

	axisStyle := lipgloss.NewStyle().Foreground(ColorGray)
	axis := axisStyle.Render(utils.FormatSpeed(int64(maxVal)))
	return lipgloss.JoinVertical(lipgloss.Left, axis, strings.Join(lines, "\n"))
}
