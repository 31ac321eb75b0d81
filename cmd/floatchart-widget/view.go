package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/brendandebeasi/floatchart/pkg/colors"
	"github.com/brendandebeasi/floatchart/pkg/state"
)

const (
	minBoxCols = 24
	minBoxRows = 5
	buttons    = "[_] [x]"
)

func (m model) View() string {
	snap := m.surface.snapshot()
	g := m.widget.State()

	if !snap.Visible {
		hint := lipgloss.NewStyle().Faint(true).
			Render(fmt.Sprintf("floatchart · %s hidden · t to show · q to quit", g.Settings.Symbol))
		return m.zones.Scan(hint)
	}

	box := m.renderBox(snap, g.Settings)
	return m.zones.Scan(place(box, snap.Rect.X/cellWidth, snap.Rect.Y/cellHeight))
}

func (m model) renderBox(snap surfaceSnapshot, s state.Settings) string {
	pal := colors.ForTheme(s.Theme).WithOpacity(snap.Opacity, m.termBg)
	cols := max(snap.Rect.Width/cellWidth, minBoxCols)
	rows := max(snap.Rect.Height/cellHeight, minBoxRows)
	inner := cols - 2

	header := m.renderHeader(pal, s, inner)
	border := lipgloss.RoundedBorder()
	borderColor := pal.Border
	if snap.Dragging || snap.Resizing {
		border = lipgloss.ThickBorder()
		borderColor = pal.Accent
	}
	frame := lipgloss.NewStyle().
		Border(border).
		BorderForeground(lipgloss.Color(borderColor))

	if snap.Minimized {
		return frame.Render(header)
	}

	bodyRows := rows - 3 // borders and header
	body := lipgloss.NewStyle().
		Width(inner).
		Height(bodyRows-1).
		Padding(0, 1).
		Foreground(lipgloss.Color(pal.Fg)).
		Background(lipgloss.Color(pal.Bg)).
		Render(m.renderStatus(pal, snap, s, inner-2))
	grip := lipgloss.NewStyle().
		Width(inner).
		Align(lipgloss.Right).
		Foreground(lipgloss.Color(pal.Muted)).
		Background(lipgloss.Color(pal.Bg)).
		Render(m.zones.Mark(zoneResize, "◢"))

	return frame.Render(lipgloss.JoinVertical(lipgloss.Left, header, body, grip))
}

func (m model) renderHeader(pal colors.Palette, s state.Settings, inner int) string {
	titleWidth := max(inner-len(buttons)-1, 1)
	title := runewidth.Truncate(fmt.Sprintf("%s · %s", s.Symbol, s.Interval), titleWidth, "…")

	base := lipgloss.NewStyle().
		Foreground(lipgloss.Color(pal.HeaderFg)).
		Background(lipgloss.Color(pal.HeaderBg))
	titleCell := base.Bold(true).Width(titleWidth).Render(title)
	controls := m.zones.Mark(zoneMinimize, base.Render("[_]")) +
		base.Render(" ") +
		m.zones.Mark(zoneClose, base.Render("[x]"))

	return base.Width(inner).Render(m.zones.Mark(zoneHeader, titleCell) + base.Render(" ") + controls)
}

func (m model) renderStatus(pal colors.Palette, snap surfaceSnapshot, s state.Settings, width int) string {
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color(pal.Muted))
	switch snap.Phase {
	case chartLoading:
		return muted.Render(fmt.Sprintf("Loading chart… (attempt %d)", snap.Attempt))
	case chartLoaded:
		lines := []string{
			lipgloss.NewStyle().Bold(true).Render("● " + s.Symbol),
			muted.Render(fmt.Sprintf("interval %s · style %s · %s", s.Interval, s.Style, s.Theme)),
			muted.Render(fmt.Sprintf("frame #%d · %d bytes", snap.Attempt, snap.FrameSize)),
		}
		for i, l := range lines {
			lines[i] = runewidth.Truncate(l, width, "…")
		}
		return strings.Join(lines, "\n")
	case chartError:
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(pal.Error))
		retry := lipgloss.NewStyle().
			Foreground(lipgloss.Color(pal.Bg)).
			Background(lipgloss.Color(pal.Accent)).
			Padding(0, 1).
			Render("Retry")
		return lipgloss.JoinVertical(lipgloss.Left,
			errStyle.Width(width).Render(snap.ErrText),
			"",
			m.zones.Mark(zoneRetry, retry),
		)
	}
	return ""
}

// place offsets box to the given cell.
func place(box string, col, row int) string {
	pad := strings.Repeat(" ", max(col, 0))
	lines := strings.Split(box, "\n")
	for i, l := range lines {
		lines[i] = pad + l
	}
	return strings.Repeat("\n", max(row, 0)) + strings.Join(lines, "\n")
}
