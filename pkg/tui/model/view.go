package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/pricewatch/pkg/core"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusStopped = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusWaiting = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	logStderr     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	logSupervisor = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	if a.mode == ModeImport && a.prompt != nil {
		return paneStyle.Width(a.width - 4).Height(a.height - 2).Render(a.prompt.View(a.width - 4))
	}

	statusBarH := 2
	logPaneH := max(a.height/3, 5)
	mainH := a.height - logPaneH - statusBarH - 2
	listW := a.width*2/5 - 2
	detailW := a.width - listW - 4

	list := a.renderWorkers(listW, mainH)
	listPane := a.paneBox(PaneWorkers, " Workers ", list, listW, mainH)

	detail := a.renderDetail(detailW, mainH)
	detailPane := a.paneBox(PaneDetail, " Detail ", detail, detailW, mainH)

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)

	logs := a.renderLogs(a.width-4, logPaneH)
	logPane := a.paneBox(PaneLogs, a.logTitle(), logs, a.width-4, logPaneH)

	return lipgloss.JoinVertical(lipgloss.Left, topRow, logPane, a.renderStatusBar())
}

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) renderWorkers(w, h int) string {
	if len(a.workers) == 0 {
		if !a.connected {
			return dimStyle.Render("not connected")
		}
		return dimStyle.Render("no workers")
	}

	var b strings.Builder
	maxVisible := h - 2
	start := 0
	if a.selectedIdx >= maxVisible {
		start = a.selectedIdx - maxVisible + 1
	}

	for i := start; i < len(a.workers) && i-start < maxVisible; i++ {
		wk := a.workers[i]
		label := wk.ID
		if wk.Link != "" {
			label = wk.Link
		}
		line := fmt.Sprintf(" %s %-*s", statusIndicator(wk), w-6, truncate(label, w-6))
		if i == a.selectedIdx {
			line = selectedStyle.Width(w).Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (a App) renderDetail(_, _ int) string {
	wk := a.selectedWorker()
	if wk == nil {
		return dimStyle.Render("select a worker")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ID:       %s\n", wk.ID)
	fmt.Fprintf(&b, "Kind:     %s\n", wk.Kind)
	fmt.Fprintf(&b, "Status:   %s\n", colorStatus(*wk))
	if wk.Link != "" {
		fmt.Fprintf(&b, "Link:     %s\n", wk.Link)
	}
	if wk.PID > 0 {
		fmt.Fprintf(&b, "PID:      %d\n", wk.PID)
	}
	if len(wk.Args) > 0 {
		fmt.Fprintf(&b, "Args:     %s\n", dimStyle.Render(strings.Join(wk.Args, " ")))
	}
	if wk.UptimeSec > 0 {
		fmt.Fprintf(&b, "Uptime:   %s\n", formatDuration(wk.UptimeSec))
	}
	if wk.MemBytes > 0 {
		fmt.Fprintf(&b, "Memory:   %s\n", formatBytes(wk.MemBytes))
	}
	if wk.ExitCode != nil {
		fmt.Fprintf(&b, "Exit:     %d\n", *wk.ExitCode)
	}
	if wk.Kind == core.KindMain {
		fmt.Fprintf(&b, "Restarts: %d\n", wk.Restarts)
	}
	if wk.RestartAt != nil {
		fmt.Fprintf(&b, "Restart:  %s (in %s)\n", wk.RestartAt.Local().Format(core.TimeLayout),
			time.Until(*wk.RestartAt).Round(time.Second))
	}
	return b.String()
}

// renderLogs shows the most recent lines first.
func (a App) renderLogs(w, h int) string {
	lines := a.visibleLogs()
	if len(lines) == 0 {
		return dimStyle.Render("no log output")
	}

	var b strings.Builder
	for i := 0; i < len(lines) && i < h-1; i++ {
		b.WriteString(colorLine(lines[i], truncate(lines[i].Format(), w)) + "\n")
	}
	if a.mode == ModeFilter {
		b.WriteString(a.filter.View())
	}
	return b.String()
}

func (a App) logTitle() string {
	title := " Log "
	if a.logPaused {
		title += dimStyle.Render("[PAUSED]") + " "
	}
	if q := a.filter.Value(); q != "" {
		title += dimStyle.Render("[/"+q+"]") + " "
	}
	return title
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	right := "j/k:nav tab:pane i:import t:start s:stop x:cancel space:pause /:filter q:quit"
	if a.mode == ModeFilter {
		right = "enter:apply esc:clear"
	}

	gap := a.width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func colorLine(l core.LogLine, text string) string {
	switch l.Severity() {
	case core.SeverityError:
		return logStderr.Render(text)
	case core.SeverityNotice:
		return logSupervisor.Render(text)
	default:
		return text
	}
}

func statusStyle(wk core.Worker) lipgloss.Style {
	switch wk.Status {
	case core.StatusRunning:
		return statusRunning
	case core.StatusCoolingDown, core.StatusQueued:
		return statusWaiting
	case core.StatusDisabled:
		return statusFailed
	case core.StatusExited:
		if wk.ExitCode != nil && *wk.ExitCode != 0 {
			return statusFailed
		}
		return statusStopped
	default:
		return statusStopped
	}
}

func statusIndicator(wk core.Worker) string {
	glyph := "?"
	switch wk.Status {
	case core.StatusRunning:
		glyph = "●"
	case core.StatusStopped:
		glyph = "○"
	case core.StatusCoolingDown:
		glyph = "↻"
	case core.StatusQueued:
		glyph = "…"
	case core.StatusDisabled:
		glyph = "✖"
	case core.StatusExited:
		glyph = "✓"
		if wk.ExitCode != nil && *wk.ExitCode != 0 {
			glyph = "✖"
		}
	}
	return statusStyle(wk).Render(glyph)
}

func colorStatus(wk core.Worker) string {
	return statusStyle(wk).Render(string(wk.Status))
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func formatBytes(b uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func formatDuration(sec uint64) string {
	if sec < 60 {
		return fmt.Sprintf("%ds", sec)
	}
	if sec < 3600 {
		return fmt.Sprintf("%dm%ds", sec/60, sec%60)
	}
	return fmt.Sprintf("%dh%dm", sec/3600, (sec%3600)/60)
}
