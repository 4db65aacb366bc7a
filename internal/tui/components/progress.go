package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const barWidth = 30

var counterStyle = lipgloss.NewStyle().Bold(true)

// Progress is a bar of finished steps out of the planned total.
type Progress struct {
	bar   progress.Model
	total int
}

func NewProgress(total int) Progress {
	return Progress{
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
		total: total,
	}
}

// View shows "done/total" followed by the bar. The bar is clamped at full
// while the counter keeps the real numbers.
func (p Progress) View(done int) string {
	var frac float64
	if p.total > 0 {
		frac = min(float64(done)/float64(p.total), 1)
	}
	counter := counterStyle.Render(fmt.Sprintf("%d/%d", done, p.total))
	return counter + " " + p.bar.ViewAs(frac)
}
