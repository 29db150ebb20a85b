package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/loop"
)

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	sidebarWidth, mainWidth, contentHeight := m.layout()

	sidebar := m.renderSidebar(sidebarWidth - 4)
	sidebarBox := statusBoxStyle.Width(sidebarWidth).Height(contentHeight).Render(sidebar)

	logHeader := "Log"
	if n := m.logViewport.TotalLineCount(); n > 0 {
		logHeader = fmt.Sprintf("Log (%d lines, %d%%)", n, int(m.logViewport.ScrollPercent()*100))
	}
	logs := labelStyle.Render(logHeader) + "\n" + m.logViewport.View()
	logsBox := logBoxStyle.Width(mainWidth).Height(contentHeight).Render(logs)

	return lipgloss.JoinHorizontal(lipgloss.Top, sidebarBox, logsBox) + "\n" + m.renderHelp()
}

func (m Model) renderSidebar(width int) string {
	var b strings.Builder
	b.WriteString(m.renderHeader(width))
	b.WriteString(m.renderEnvironment(width))
	b.WriteString(m.renderProgress(width))
	b.WriteString(m.renderTasks(width))
	b.WriteString(m.renderReview(width))
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader(width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("⚡ PRDLOOP"))
	b.WriteString("\n")
	if m.name != "" {
		b.WriteString(valueStyle.Render(wrapText(m.name, width, "", 2)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	indicator := m.stateIndicator()
	elapsed := formatDuration(time.Since(m.startTime))
	if m.result != nil {
		elapsed = formatDuration(m.result.Duration)
	}
	b.WriteString(indicator)
	b.WriteString(strings.Repeat(" ", max(2, width-lipgloss.Width(indicator)-len(elapsed))))
	b.WriteString(valueStyle.Render(elapsed))
	b.WriteString("\n")
	return b.String()
}

func (m Model) stateIndicator() string {
	switch m.runState {
	case stateRunning:
		return runningStyle.Render(m.spinner.View() + " Running")
	case statePaused:
		return pausedStyle.Render("⏸ PAUSED")
	case stateStopped:
		return stoppedStyle.Render("⏹ STOPPED")
	case stateComplete:
		return runningStyle.Render("✓ COMPLETE")
	}
	return ""
}

func (m Model) renderEnvironment(width int) string {
	if m.opts.WorkingDir == "" && m.opts.PRDPath == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(sectionHeader("Environment", width))
	b.WriteString("\n")
	if m.opts.WorkingDir != "" {
		b.WriteString(labelStyle.Render("Dir: "))
		b.WriteString(valueStyle.Render(abbreviatePath(m.opts.WorkingDir)))
		b.WriteString("\n")
	}
	if m.opts.PRDPath != "" {
		b.WriteString(labelStyle.Render("PRD: "))
		b.WriteString(valueStyle.Render(abbreviatePath(m.opts.PRDPath)))
		b.WriteString("\n")
	}
	if m.gitState != "" {
		b.WriteString(labelStyle.Render("Git: "))
		b.WriteString(valueStyle.Render(m.gitState))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderProgress(width int) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(sectionHeader("Progress", width))
	b.WriteString("\n")

	iter := fmt.Sprintf("%d", m.iteration)
	if m.opts.MaxIterations > 0 {
		iter = fmt.Sprintf("%d/%d", m.iteration, m.opts.MaxIterations)
	}
	b.WriteString(labelStyle.Render("Iteration: "))
	b.WriteString(valueStyle.Render(iter))
	b.WriteString("\n")

	p := m.progress
	b.WriteString(labelStyle.Render("Tasks: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d/%d (%d%%)", p.Completed, p.Total, p.Percentage)))
	b.WriteString("\n")
	if bar := progressBar(p.Completed, p.Total, max(10, width-2)); bar != "" {
		b.WriteString(bar)
		b.WriteString("\n")
	}
	if m.result != nil {
		if files := m.result.FilesChanged(); len(files) > 0 {
			b.WriteString(labelStyle.Render("Files: "))
			b.WriteString(valueStyle.Render(fmt.Sprintf("%d changed", len(files))))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderTasks(width int) string {
	if len(m.tasks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(sectionHeader("Tasks", width))
	b.WriteString("\n")

	taskWidth := width - 4
	for _, t := range m.tasks {
		label := wrapText(t.ID+" "+t.Title, taskWidth, "    ", 1)
		switch {
		case t.Done:
			b.WriteString(runningStyle.Render("  ✓ "))
			b.WriteString(labelStyle.Render(label))
		case t.ID == m.taskID && m.active():
			b.WriteString(currentStyle.Render("  → " + label))
		default:
			b.WriteString(labelStyle.Render("  ○ "))
			b.WriteString(labelStyle.Render(label))
		}
		if n := len(t.Findings); n > 0 && !t.Done {
			b.WriteString(findingStyle.Render(fmt.Sprintf(" !%d", n)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderReview(width int) string {
	if m.reviewing == "" && len(m.pending) == 0 && m.reviewed == 0 && !m.reviewPaused {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(sectionHeader("Review", width))
	b.WriteString("\n")
	if m.reviewPaused {
		b.WriteString(pausedStyle.Render("⏸ review paused"))
		b.WriteString("\n")
	}
	if m.reviewing != "" {
		b.WriteString(reviewStyle.Render(m.spinner.View() + " reviewing " + m.reviewing))
		b.WriteString("\n")
	} else if m.reviewed > 0 {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%d tasks reviewed", m.reviewed)))
		b.WriteString("\n")
	}
	if len(m.pending) > 0 {
		id := m.pending[0]
		b.WriteString(pausedStyle.Render(fmt.Sprintf("Awaiting acknowledgement: %s", id)))
		b.WriteString("\n")
		for _, f := range m.findings[id] {
			b.WriteString(findingStyle.Render(wrapText("• "+f, width, "  ", 3)))
			b.WriteString("\n")
		}
		if more := len(m.pending) - 1; more > 0 {
			b.WriteString(labelStyle.Render(fmt.Sprintf("+%d more", more)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderFooter() string {
	var b strings.Builder
	if m.result != nil {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Exit: "))
		b.WriteString(valueStyle.Render(m.result.Reason.String()))
		if m.result.Message != "" {
			b.WriteString("\n")
			b.WriteString(labelStyle.Render("Reason: "))
			b.WriteString(valueStyle.Render(m.result.Message))
		}
		b.WriteString("\n\n")
		b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press q to quit"))
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(stoppedStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	return b.String()
}

func (m Model) renderHelp() string {
	var parts []string
	if m.runState == stateRunning {
		parts = append(parts, "p: pause", "a: abort")
	}
	if m.runState == statePaused {
		parts = append(parts, "p: resume", "a: abort")
	}
	if m.active() {
		if m.reviewPaused {
			parts = append(parts, "v: resume review")
		} else {
			parts = append(parts, "v: pause review")
		}
	}
	if len(m.pending) > 0 {
		parts = append(parts, "r: acknowledge", "R: acknowledge all", "s: skip wait")
	}
	parts = append(parts, "↑/↓: scroll", "q: quit")
	return helpStyle.Render(strings.Join(parts, " • "))
}

// renderLog renders every kept event for the viewport.
func (m Model) renderLog() string {
	var b strings.Builder
	for _, ev := range m.events {
		if line, ok := m.renderEvent(ev); ok {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderEvent(ev event.Event) (string, bool) {
	switch ev.Kind {
	case event.KindProg:
		return progPrefixStyle.Render("▶ prdloop: ") + ev.Text, true
	case event.KindToolUse:
		return toolStyle.Render("> " + ev.Text), true
	case event.KindToolResult:
		return toolResStyle.Render("  " + ev.Text), true
	case event.KindMarkdown:
		return m.markdown(ev.Text), true
	case event.KindIterationStart:
		return "\n" + lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("── Iteration %d · %s ──", ev.Iteration, ev.TaskID)), true
	case event.KindIterationComplete:
		if ir, ok := ev.Payload.(loop.IterationResult); ok && !ir.Success {
			return stoppedStyle.Render(fmt.Sprintf("iteration %d failed", ir.Iteration)), true
		}
		return labelStyle.Render(fmt.Sprintf("iteration %d done", ev.Iteration)), true
	case event.KindTaskComplete:
		return runningStyle.Render("✓ "+ev.TaskID) + " " + ev.Text, true
	case event.KindDocumentComplete:
		return runningStyle.Render(fmt.Sprintf("PRD complete: %d/%d tasks", ev.Progress.Completed, ev.Progress.Total)), true
	case event.KindPaused:
		return pausedStyle.Render("⏸ paused"), true
	case event.KindResumed:
		return runningStyle.Render("▶ resumed"), true
	case event.KindStopped:
		text := "stopped: " + ev.Reason.String()
		if ev.Text != "" {
			text += " (" + ev.Text + ")"
		}
		return progPrefixStyle.Render("■ ") + text, true
	case event.KindError:
		return stoppedStyle.Render("error: ") + ev.Text, true
	case event.KindReviewStepStarted:
		return reviewStyle.Render(fmt.Sprintf("review %s: %s", ev.TaskID, ev.Text)), true
	case event.KindReviewStepCompleted:
		return reviewStyle.Render(fmt.Sprintf("review %s: %d findings", ev.TaskID, len(ev.Findings))), true
	case event.KindConsensusNeeded:
		var md strings.Builder
		fmt.Fprintf(&md, "**Findings for %s**\n\n", ev.TaskID)
		for _, f := range ev.Findings {
			fmt.Fprintf(&md, "- %s\n", f)
		}
		return m.markdown(md.String()), true
	case event.KindReviewerPaused:
		return reviewStyle.Render("reviewer paused: " + ev.Text), true
	case event.KindReviewerResumed:
		return reviewStyle.Render("reviewer resumed"), true
	}
	return "", false
}

func (m Model) markdown(text string) string {
	if m.renderer != nil {
		if rendered, err := m.renderer.Render(text); err == nil {
			return strings.TrimRight(rendered, "\n")
		}
	}
	return strings.TrimRight(text, "\n")
}
