package components

import (
	"fmt"
	"strings"
)

// SummaryData aggregates counts for the footer.
type SummaryData struct {
	Total     int
	Done      int
	Failed    int
	Warnings  int
	Finished  bool
	Cancelled bool
	DryRun    bool
}

// Summary renders the footer below the step list.
type Summary struct {
	data SummaryData
}

// NewSummary creates a Summary component.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary.
func (s Summary) View() string {
	var lines []string
	if s.data.Total > 0 {
		lines = append(lines, fmt.Sprintf("Steps: %d/%d done", s.data.Done, s.data.Total))
	}
	if s.data.Failed > 0 {
		lines = append(lines, fmt.Sprintf("Failed: %d", s.data.Failed))
	}
	if s.data.Warnings > 0 {
		lines = append(lines, fmt.Sprintf("Optional steps failed: %d", s.data.Warnings))
	}

	switch {
	case s.data.Cancelled:
		lines = append(lines, "Interrupted, waiting for the current step to stop")
	case s.data.Finished && s.data.Failed > 0:
		lines = append(lines, "Finished with failures")
	case s.data.Finished && s.data.DryRun:
		lines = append(lines, "Dry run finished, no changes made")
	case s.data.Finished && s.data.Total > 0:
		lines = append(lines, "Finished")
	}

	return strings.Join(lines, "\n")
}
