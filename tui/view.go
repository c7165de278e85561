package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"videoforge/batch"
)

// Color palette - modern, readable
var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Violet
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan
	colorSuccess   = lipgloss.Color("#10B981") // Emerald
	colorError     = lipgloss.Color("#EF4444") // Red
	colorWarning   = lipgloss.Color("#F59E0B") // Amber
	colorMuted     = lipgloss.Color("#6B7280") // Gray
	colorText      = lipgloss.Color("#F9FAFB") // White
	colorTextDim   = lipgloss.Color("#9CA3AF") // Light gray
	colorBorder    = lipgloss.Color("#374151") // Dark gray
)

var (
	// Title bar
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText).
			Background(colorPrimary).
			Padding(0, 2).
			MarginBottom(1)

	// Section headers
	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				MarginTop(1)

	// Job list / summary box
	statsBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2).
			MarginTop(1)

	statLabelStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Width(11)

	statValueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	filePathStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	// Status styles
	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	runningStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	queuedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	// Help text
	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)

	// Log viewport
	logBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			MarginTop(1)
)

// stateGlyph maps a job state to its one-character list marker.
func stateGlyph(s batch.State) string {
	switch s {
	case batch.StateQueued:
		return queuedStyle.Render("·")
	case batch.StateRunning:
		return runningStyle.Render("▶")
	case batch.StateSucceeded:
		return successStyle.Render("✓")
	case batch.StateFailed:
		return errorStyle.Render("✗")
	case batch.StateCancelled:
		return warningStyle.Render("⊘")
	default:
		return "?"
	}
}

// View renders the TUI
func (m Model) View() string {
	var b strings.Builder

	title := titleStyle.Render(" ⚡ VideoForge ")
	b.WriteString(title + "\n")

	switch m.Phase {
	case PhaseRunning:
		b.WriteString(m.renderRunningView(""))
	case PhaseCancelling:
		b.WriteString(m.renderRunningView(warningStyle.Render("  Cancelling...") + "\n"))
	case PhaseDone:
		b.WriteString(m.renderDoneView())
	}

	help := helpStyle.Render("  [C] Cancel job  •  [L] Toggle logs  •  [Q] Quit")
	b.WriteString("\n" + help + "\n")

	return b.String()
}

func (m Model) renderRunningView(banner string) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(banner)

	// Overall progress
	pct := m.Overall
	if pct > 1 {
		pct = 1
	}
	if pct < 0 {
		pct = 0
	}
	b.WriteString("  " + m.OverallBar.ViewAs(pct) + "  " +
		statValueStyle.Render(fmt.Sprintf("%.0f%%", pct*100)) + "\n")

	elapsed := time.Since(m.StartTime).Round(time.Second)
	b.WriteString(helpStyle.Render(fmt.Sprintf("  %d job(s)  •  elapsed %s", len(m.Jobs), formatDuration(elapsed))) + "\n")

	// Job list
	b.WriteString(statsBoxStyle.Render(m.renderJobList()))

	if m.ShowLogs {
		b.WriteString("\n")
		b.WriteString(sectionHeaderStyle.Render("  FFmpeg Output") + "\n")
		b.WriteString(logBoxStyle.Render(m.LogViewport.View()))
	}

	return b.String()
}

func (m Model) renderJobList() string {
	if len(m.Jobs) == 0 {
		return queuedStyle.Render("queue empty")
	}

	maxName := m.Width - 50
	if maxName < 24 {
		maxName = 40
	}

	var lines []string
	for _, job := range m.Jobs {
		name := truncatePath(filepath.Base(job.Config.InputPath), maxName)
		line := stateGlyph(job.State) + " " + filePathStyle.Render(padRight(name, 28))
		switch job.State {
		case batch.StateRunning:
			line += " " + m.JobBar.ViewAs(job.Progress) +
				statValueStyle.Render(fmt.Sprintf(" %5.1f%%", job.Progress*100))
		case batch.StateSucceeded:
			if job.OutputSize > 0 {
				line += " " + successStyle.Render(formatBytes(job.OutputSize))
			} else {
				line += " " + successStyle.Render("done")
			}
		case batch.StateFailed:
			line += " " + errorStyle.Render(fmt.Sprintf("exit %d", job.ExitCode))
		case batch.StateCancelled:
			line += " " + warningStyle.Render("cancelled")
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderDoneView() string {
	var b strings.Builder

	b.WriteString("\n")
	switch {
	case m.Stats.Failed == 0 && m.Stats.Cancelled == 0:
		b.WriteString(successStyle.Render("  ✓ Batch Complete") + "\n")
	case m.Stats.Succeeded > 0:
		b.WriteString(warningStyle.Render("  ⚠ Batch Finished With Errors") + "\n")
	default:
		b.WriteString(errorStyle.Render("  ✗ Batch Failed") + "\n")
	}

	b.WriteString(statsBoxStyle.Render(m.renderJobList()))
	b.WriteString("\n")

	elapsed := time.Since(m.StartTime).Round(time.Second)
	var lines []string
	lines = append(lines,
		statLabelStyle.Render("Succeeded")+statValueStyle.Render(fmt.Sprintf("%d / %d", m.Stats.Succeeded, m.Stats.Total)))
	if m.Stats.Failed > 0 {
		lines = append(lines,
			statLabelStyle.Render("Failed")+errorStyle.Render(fmt.Sprintf("%d", m.Stats.Failed)))
	}
	if m.Stats.Cancelled > 0 {
		lines = append(lines,
			statLabelStyle.Render("Cancelled")+warningStyle.Render(fmt.Sprintf("%d", m.Stats.Cancelled)))
	}
	lines = append(lines,
		statLabelStyle.Render("Time")+statValueStyle.Render(formatDuration(elapsed)))
	if m.Stats.BytesIn > 0 && m.Stats.BytesOut > 0 {
		lines = append(lines,
			statLabelStyle.Render("Output")+statValueStyle.Render(formatBytes(m.Stats.BytesOut)))
		if saved := m.Stats.SavedBytes(); saved > 0 {
			pct := float64(saved) / float64(m.Stats.BytesIn) * 100
			lines = append(lines,
				statLabelStyle.Render("Saved")+successStyle.Render(fmt.Sprintf("%s (%.0f%%)", formatBytes(saved), pct)))
		}
	}

	b.WriteString(statsBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))

	if m.ShowLogs {
		b.WriteString("\n")
		b.WriteString(sectionHeaderStyle.Render("  FFmpeg Output") + "\n")
		b.WriteString(logBoxStyle.Render(m.LogViewport.View()))
	}

	return b.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen < 20 {
		return path[:maxLen-3] + "..."
	}
	half := (maxLen - 5) / 2
	return path[:half] + " ... " + path[len(path)-half:]
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "—"
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
