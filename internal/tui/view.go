package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
	"github.com/alexisbeaulieu97/whisperhost/internal/tui/components"
)

// View renders the current state of the model.
func (m Model) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render(fmt.Sprintf("whisperhost • %s", m.displayTitle())))

	progress := components.NewProgress(m.total).View(m.done)
	sections = append(sections, sectionStyle.Render("Progress"), progress)

	entries := components.NewStepList(m.order, m.results, m.running).Entries()
	if len(entries) > 0 {
		sections = append(sections, sectionStyle.Render("Steps"), renderStepEntries(entries))
	}

	summary := components.NewSummary(components.SummaryData{
		Total:     m.total,
		Done:      m.done,
		Failed:    m.failed,
		Warnings:  m.warnings,
		Finished:  m.finished,
		Cancelled: m.cancelled,
		DryRun:    m.dryRun,
	}).View()
	if strings.TrimSpace(summary) != "" {
		sections = append(sections, sectionStyle.Render("Summary"), summaryStyle.Render(summary))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func renderStepEntries(entries []components.StepEntry) string {
	var lines []string
	for _, entry := range entries {
		line := fmt.Sprintf(" %s %s", EntryIcon(entry), entry.Name)
		if entry.Running {
			line += pendingStyle.Render(" checking…")
		}
		res := entry.Result
		if entry.Done && strings.TrimSpace(res.Detail) != "" {
			detail := firstLine(res.Detail)
			if res.Outcome == model.OutcomeFailed && !res.Warning {
				detail = failedDetail.Render(detail)
			}
			line = fmt.Sprintf("%s: %s", line, detail)
		}
		if res.Duration > 0 {
			line = fmt.Sprintf("%s (%s)", line, res.Duration.Truncate(10*time.Millisecond))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) displayTitle() string {
	title := strings.TrimSpace(m.title)
	if title == "" {
		title = "host provisioning"
	}
	if m.dryRun {
		title += " (dry run)"
	}
	return title
}

// EntryIcon returns the glyph for a step row.
func EntryIcon(entry components.StepEntry) string {
	if entry.Running {
		return runningGlyph.String()
	}
	if !entry.Done {
		return pendingGlyph.String()
	}
	return OutcomeIcon(entry.Result)
}

// OutcomeIcon returns the glyph for a finished step.
func OutcomeIcon(res model.StepResult) string {
	if res.Warning {
		return warningGlyph.String()
	}
	if g, ok := outcomeGlyphs[res.Outcome]; ok {
		return g.String()
	}
	return pendingGlyph.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
