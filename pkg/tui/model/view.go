package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jasonish/meerkat-desktop/pkg/core"
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
	statusRestart = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	slotStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	stderrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("80"))
)

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	statusBarH := 2
	outputH := a.outputPaneHeight()
	mainH := a.height - outputH - statusBarH - 2
	listW := a.width*2/5 - 2
	detailW := a.width - listW - 4

	list := a.renderList(listW, mainH)
	listPane := a.paneBox(PaneList, " Items ", list, listW, mainH)

	detail := a.renderDetail(detailW, mainH)
	detailPane := a.paneBox(PaneDetail, " Detail ", detail, detailW, mainH)

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)

	output := a.renderOutput()
	outputPane := a.paneBox(PaneOutput, a.outputTitle(), output, a.width-4, outputH)

	statusBar := a.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, topRow, outputPane, statusBar)
}

func (a App) outputPaneHeight() int {
	return max(a.height/3, 6)
}

// outputSize is the viewport size inside the output pane border and title.
func (a App) outputSize() (int, int) {
	return max(a.width-6, 1), max(a.outputPaneHeight()-1, 1)
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

func (a App) renderList(w, h int) string {
	items := a.filteredItems()
	if len(items) == 0 {
		if !a.connected {
			return dimStyle.Render("not connected")
		}
		return dimStyle.Render("no items")
	}

	var b strings.Builder
	maxVisible := h - 2
	start := 0
	if a.selectedIdx >= maxVisible {
		start = a.selectedIdx - maxVisible + 1
	}

	for i := start; i < len(items) && i-start < maxVisible; i++ {
		item := items[i]
		indicator := statusIndicator(string(item.Status))
		name := truncate(item.Name, w-6)
		line := fmt.Sprintf(" %s %-*s", indicator, w-6, name)

		if i == a.selectedIdx {
			line = selectedStyle.Width(w).Render(line)
		}
		b.WriteString(line + "\n")
	}

	if a.mode == ModeSearch {
		b.WriteString("\n" + a.search.View())
	}

	return b.String()
}

func (a App) renderDetail(w, h int) string {
	item := a.selectedItem()
	if item == nil {
		return dimStyle.Render("select an item")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Name:    %s\n", item.Name)
	fmt.Fprintf(&b, "ID:      %s\n", dimStyle.Render(truncate(item.ID, w-9)))
	fmt.Fprintf(&b, "Kind:    %s\n", item.Kind)
	fmt.Fprintf(&b, "Status:  %s\n", colorStatus(string(item.Status)))

	if item.Kind == core.KindSlot {
		tracked := "no"
		if item.Tracked {
			tracked = "yes"
		}
		fmt.Fprintf(&b, "Tracked: %s\n", tracked)
	}
	if len(item.PIDs) > 0 {
		fmt.Fprintf(&b, "PIDs:    %v\n", item.PIDs)
	}
	if item.UptimeSec > 0 {
		fmt.Fprintf(&b, "Uptime:  %s\n", formatDuration(item.UptimeSec))
	}
	if v := item.Source["binary"]; v != "" {
		fmt.Fprintf(&b, "Binary:  %s\n", v)
	}
	if v := item.Source["command"]; v != "" {
		fmt.Fprintf(&b, "Command: %s\n", dimStyle.Render(truncate(v, w-9)))
	}
	if item.Kind == core.KindTail {
		fmt.Fprintf(&b, "Offset:  %s\n", item.Source["offset"])
		fmt.Fprintf(&b, "Records: %s\n", item.Source["records"])
		fmt.Fprintf(&b, "Dropped: %s\n", item.Source["dropped"])
	}

	b.WriteString("\n")
	tail := "stopped"
	if a.tail.Running {
		tail = "running"
	}
	fmt.Fprintf(&b, "eve.json: %s, %d records, %d alerts seen\n", colorStatus(tail), a.tail.Records, a.alerts)

	return b.String()
}

func (a App) renderOutput() string {
	if len(a.output) == 0 {
		return dimStyle.Render("no output")
	}
	return a.outputView.View()
}

func renderOutputLine(l core.OutputLine, w int) string {
	prefix := slotStyle.Render(fmt.Sprintf("%-16s", l.Slot))
	text := l.Line
	if w > 17 {
		text = truncate(text, w-17)
	}
	switch l.Type {
	case core.ChannelStderr:
		text = stderrStyle.Render(text)
	case core.ChannelInfo:
		text = infoStyle.Render(text)
	}
	return prefix + " " + text
}

func (a App) outputTitle() string {
	title := " Output "
	if a.outputPaused {
		title += dimStyle.Render("[PAUSED]") + " "
	}
	return title
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	right := "j/k:nav tab:pane /:search t:start s:stop r:restart f:tail c:clear q:quit"
	switch a.mode {
	case ModeSearch:
		right = "enter:apply esc:cancel"
	case ModeConfirmQuit:
		right = "y:stop all and quit n:quit esc:cancel"
	}

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func statusIndicator(status string) string {
	switch status {
	case "running":
		return statusRunning.Render("●")
	case "stopped":
		return statusStopped.Render("○")
	case "failed":
		return statusFailed.Render("✖")
	case "restarting":
		return statusRestart.Render("↻")
	default:
		return dimStyle.Render("?")
	}
}

func colorStatus(status string) string {
	switch status {
	case "running":
		return statusRunning.Render(status)
	case "stopped":
		return statusStopped.Render(status)
	case "failed":
		return statusFailed.Render(status)
	case "restarting":
		return statusRestart.Render(status)
	default:
		return dimStyle.Render(status)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
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
