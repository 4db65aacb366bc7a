// Package report renders a finished RunReport for operators: a step table,
// counts, the first failure with its remediation hint, warnings and the
// manual follow-up checklist. JSON output is available for automation.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
)

const maxDetailWidth = 60

// Options controls text rendering.
type Options struct {
	// Verbose appends a per-step replay with probe details and errors.
	Verbose bool
}

// Reporter renders run reports as text.
type Reporter struct {
	opts Options
}

// New creates a Reporter.
func New(opts Options) *Reporter {
	return &Reporter{opts: opts}
}

type styles struct {
	title   lipgloss.Style
	section lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
}

// newStyles binds styles to w so colour is only emitted on terminals.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true),
		section: r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("42")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("214")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

// Render writes the text report for rep.
func (r *Reporter) Render(w io.Writer, rep *model.RunReport) error {
	if rep == nil {
		return fmt.Errorf("report cannot be nil")
	}
	st := newStyles(w)
	var b strings.Builder

	title := "Provisioning results"
	if rep.DryRun {
		title += " (dry run, no changes made)"
	}
	fmt.Fprintf(&b, "%s\n", st.title.Render(title))

	results := rep.Results()
	if len(results) > 0 {
		b.WriteString(stepTable(results))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n%s\n", Counts(rep))

	if failure, ok := rep.FirstFailure(); ok {
		fmt.Fprintf(&b, "\n%s %s: %s\n", st.fail.Render("First failure:"), failure.Name, failure.Detail)
		if failure.Hint != "" {
			fmt.Fprintf(&b, "Hint: %s\n", failure.Hint)
		}
	}

	if warnings := rep.Warnings(); len(warnings) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.section.Render("Warnings"))
		for _, w := range warnings {
			fmt.Fprintf(&b, "  %s %s\n", st.warn.Render("!"), w)
		}
	}

	if followUps := rep.FollowUps(); len(followUps) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.section.Render("Manual follow-up"))
		for _, item := range followUps {
			fmt.Fprintf(&b, "  [ ] %s\n", item)
		}
	}

	if r.opts.Verbose {
		b.WriteString(replay(results, st))
	}

	fmt.Fprintf(&b, "\n%s\n", verdict(rep, st))

	_, err := io.WriteString(w, b.String())
	return err
}

func stepTable(results []model.StepResult) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Step", "Outcome", "Duration", "Detail"})
	for i, res := range results {
		name := res.Name
		if res.Optional {
			name += " (optional)"
		}
		tw.AppendRow(table.Row{i + 1, name, outcomeLabel(res), formatDuration(res.Duration), truncate(res.Detail, maxDetailWidth)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func outcomeLabel(res model.StepResult) string {
	switch {
	case res.Warning:
		return "⚠ warning"
	case res.Outcome == model.OutcomeApplied:
		return "✔ applied"
	case res.Outcome == model.OutcomeSkipped:
		return "✔ ok"
	case res.Outcome == model.OutcomeWouldApply:
		return "… would apply"
	case res.Outcome == model.OutcomeFailed:
		return "✖ failed"
	default:
		return string(res.Outcome)
	}
}

// Counts summarises outcomes on one line.
func Counts(rep *model.RunReport) string {
	parts := []string{
		fmt.Sprintf("%d applied", rep.Count(model.OutcomeApplied)),
		fmt.Sprintf("%d already satisfied", rep.Count(model.OutcomeSkipped)),
	}
	if rep.DryRun {
		parts = append(parts, fmt.Sprintf("%d would apply", rep.Count(model.OutcomeWouldApply)))
	}
	failed, warned := 0, 0
	for _, res := range rep.Results() {
		switch {
		case res.Warning:
			warned++
		case res.Outcome == model.OutcomeFailed:
			failed++
		}
	}
	parts = append(parts, fmt.Sprintf("%d failed", failed))
	if warned > 0 {
		parts = append(parts, fmt.Sprintf("%d optional failed", warned))
	}
	return "Summary: " + strings.Join(parts, ", ")
}

func replay(results []model.StepResult, st styles) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", st.section.Render("Step details"))
	for _, res := range results {
		fmt.Fprintf(&b, "\n--- %s [%s] %s ---\n", res.Name, res.Outcome, formatDuration(res.Duration))
		if res.ProbeDetail != "" {
			fmt.Fprintf(&b, "probe:  %s\n", res.ProbeDetail)
		}
		if res.Detail != "" {
			fmt.Fprintf(&b, "detail: %s\n", res.Detail)
		}
		if res.Error != nil {
			fmt.Fprintf(&b, "error:  %v\n", res.Error)
		}
		if res.Diff != "" {
			fmt.Fprintf(&b, "diff:\n%s\n", indent(res.Diff, "  "))
		}
		if res.Hint != "" && res.Outcome == model.OutcomeFailed {
			fmt.Fprintf(&b, "hint:   %s\n", res.Hint)
		}
	}
	return b.String()
}

func verdict(rep *model.RunReport, st styles) string {
	switch {
	case rep.Interrupted:
		return st.fail.Render("✖ Interrupted; rerun to continue where it stopped")
	case !rep.Success:
		return st.fail.Render("✖ Host is not ready; fix the failure above and rerun")
	case rep.DryRun && rep.Count(model.OutcomeWouldApply) > 0:
		return st.warn.Render("… Changes needed; run without --dry-run to apply them")
	case len(rep.Warnings()) > 0:
		return st.ok.Render("✔ Host is ready (with warnings)")
	default:
		return st.ok.Render("✔ Host is ready")
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
