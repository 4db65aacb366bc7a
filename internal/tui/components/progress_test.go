package components

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgressView(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		total int
		done  int
		label string
	}{
		{"no steps", 0, 0, "0/0"},
		{"halfway", 11, 5, "5/11"},
		{"complete", 11, 11, "11/11"},
		{"overflow keeps real count", 4, 6, "6/4"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			view := NewProgress(tt.total).View(tt.done)
			require.Contains(t, view, tt.label)
			require.Greater(t, len(strings.TrimSpace(view)), len(tt.label), "bar must render next to the label")
		})
	}
}
