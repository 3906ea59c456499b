package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/missionctl/internal/models"
)

// StatusOptions tunes RenderStatus.
type StatusOptions struct {
	// TaskID limits the run table to one task.
	TaskID string
	// LogLines is how many trailing log entries to show.
	LogLines int
	// ShowAll includes completed runs.
	ShowAll bool
}

func formatStatus(status models.RunStatus) string {
	label := "● " + string(status)
	switch status {
	case models.RunStatusQueued:
		return statusQueued.Render(label)
	case models.RunStatusRunning:
		return statusRunning.Render(label)
	case models.RunStatusCompleted:
		return statusCompleted.Render(label)
	case models.RunStatusTimedOut:
		return statusTimedOut.Render(label)
	case models.RunStatusDropped:
		return statusDropped.Render(label)
	default:
		return label
	}
}

// formatDue renders how far away at is from now, e.g. "in 8s" or "3m ago".
func formatDue(at models.Millis, now time.Time) string {
	if at == 0 {
		return "-"
	}
	d := at.Time().Sub(now).Round(time.Second)
	if d >= 0 {
		return "in " + d.String()
	}
	return (-d).String() + " ago"
}

func cell(s string, width int) string {
	return lipgloss.NewStyle().Width(width).MaxWidth(width).Render(s)
}

// RenderStatus renders the snapshot as a static report.
func RenderStatus(state *models.RunnerState, now time.Time, opts StatusOptions) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("missionctl"))
	b.WriteString("\n")

	counts := state.Counts()
	summary := []string{
		fmt.Sprintf("runs %d", counts.Total),
		fmt.Sprintf("active %d", counts.Active),
		fmt.Sprintf("timed out/dropped %d", counts.TimedOutOrDrop),
		fmt.Sprintf("completed %d", counts.Completed),
	}
	tunables := fmt.Sprintf("interval %s · timeout %s · fallback %s",
		(time.Duration(state.PollIntervalMs) * time.Millisecond).String(),
		(time.Duration(state.TimeoutMs) * time.Millisecond).String(),
		(time.Duration(state.FallbackMs) * time.Millisecond).String(),
	)
	lastLoop := "never"
	if state.LastLoopAt > 0 {
		lastLoop = formatDue(state.LastLoopAt, now)
	}
	b.WriteString(panelStyle.Render(strings.Join(summary, " · ") + "\n" +
		mutedStyle.Render(tunables) + "\n" +
		mutedStyle.Render("last loop "+lastLoop)))
	b.WriteString("\n")

	if len(state.MissingBriefings) > 0 {
		b.WriteString(warningStyle.Render("user action required: missing briefing files for " + strings.Join(state.MissingBriefings, ", ")))
		b.WriteString("\n")
	}

	var runs []*models.RunRecord
	for _, run := range state.Runs.Sorted() {
		if opts.TaskID != "" && run.TaskID != strings.ToLower(opts.TaskID) {
			continue
		}
		if !opts.ShowAll && run.Status == models.RunStatusCompleted {
			continue
		}
		runs = append(runs, run)
	}

	b.WriteString("\n")
	if len(runs) == 0 {
		b.WriteString(mutedStyle.Render("No runs."))
		b.WriteString("\n")
	} else {
		b.WriteString(headerStyle.Render(
			cell("TASK", 14) + cell("ROLE", 10) + cell("STATUS", 14) + cell("PHASE", 13) + cell("ATTEMPTS", 10) + cell("NEXT POLL", 12) + "TITLE"))
		b.WriteString("\n")
		for _, run := range runs {
			b.WriteString(cell(run.TaskID, 14))
			b.WriteString(cell(string(run.Role), 10))
			b.WriteString(cell(formatStatus(run.Status), 14))
			b.WriteString(cell(string(run.Phase), 13))
			b.WriteString(cell(fmt.Sprintf("%d", run.Attempts), 10))
			b.WriteString(cell(formatDue(run.NextPollAt, now), 12))
			b.WriteString(run.TaskTitle)
			b.WriteString("\n")
		}
	}

	if opts.LogLines > 0 && len(state.Log) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Recent activity"))
		b.WriteString("\n")
		start := len(state.Log) - opts.LogLines
		if start < 0 {
			start = 0
		}
		for _, e := range state.Log[start:] {
			who := e.TaskID
			if e.Role != "" {
				who = e.Role + ":" + e.TaskID
			}
			b.WriteString(mutedStyle.Render(e.At.Time().Local().Format("15:04:05")))
			b.WriteString(fmt.Sprintf(" %-10s %-22s %s\n", e.Event, who, e.Reason))
		}
	}

	return b.String()
}
