package components

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummaryView(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     SummaryData
		contains []string
		empty    bool
	}{
		{name: "empty", data: SummaryData{}, empty: true},
		{name: "in progress", data: SummaryData{Total: 10, Done: 5}, contains: []string{"Steps: 5/10 done"}},
		{name: "finished", data: SummaryData{Total: 3, Done: 3, Finished: true}, contains: []string{"Finished"}},
		{name: "failures", data: SummaryData{Total: 3, Done: 3, Failed: 2, Finished: true}, contains: []string{"Failed: 2", "Finished with failures"}},
		{name: "optional failures", data: SummaryData{Total: 3, Done: 3, Warnings: 1, Finished: true}, contains: []string{"Optional steps failed: 1"}},
		{name: "dry run", data: SummaryData{Total: 2, Done: 2, Finished: true, DryRun: true}, contains: []string{"no changes made"}},
		{name: "cancelled", data: SummaryData{Total: 4, Done: 1, Cancelled: true}, contains: []string{"Interrupted"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			view := NewSummary(tt.data).View()
			if tt.empty {
				require.Empty(t, view)
				return
			}
			for _, want := range tt.contains {
				require.Contains(t, view, want)
			}
		})
	}
}
