package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
)

const (
	colorTitle   = lipgloss.Color("205")
	colorSection = lipgloss.Color("39")
	colorOK      = lipgloss.Color("42")
	colorRunning = lipgloss.Color("33")
	colorFailed  = lipgloss.Color("196")
	colorWarning = lipgloss.Color("214")
	colorMuted   = lipgloss.Color("244")
	colorPending = lipgloss.Color("240")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorSection).MarginTop(1)
	runningStyle = lipgloss.NewStyle().Foreground(colorRunning)
	pendingStyle = lipgloss.NewStyle().Foreground(colorPending)
	failedDetail = lipgloss.NewStyle().Foreground(colorFailed)
	summaryStyle = lipgloss.NewStyle().MarginTop(1)
)

// glyph is the status mark drawn in front of a step row.
type glyph struct {
	symbol string
	style  lipgloss.Style
}

func (g glyph) String() string {
	return g.style.Render(g.symbol)
}

var (
	outcomeGlyphs = map[model.Outcome]glyph{
		model.OutcomeApplied:    {"✓", lipgloss.NewStyle().Foreground(colorOK)},
		model.OutcomeSkipped:    {"⊘", lipgloss.NewStyle().Foreground(colorMuted)},
		model.OutcomeWouldApply: {"✱", pendingStyle},
		model.OutcomeFailed:     {"✗", lipgloss.NewStyle().Foreground(colorFailed).Bold(true)},
	}
	warningGlyph = glyph{"⚠", lipgloss.NewStyle().Foreground(colorWarning)}
	runningGlyph = glyph{"⏳", runningStyle}
	pendingGlyph = glyph{"…", pendingStyle}
)
