package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

func TestExitCodeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"explicit", silentExit(exitInterrupted), exitInterrupted},
		{"config wrapper", configError(errors.New("bad")), exitConfigError},
		{"cycle", hosterrors.NewCycleDetected([]string{"a", "b", "a"}), exitCycle},
		{"wrapped cycle", fmt.Errorf("build graph: %w", hosterrors.NewCycleDetected([]string{"a", "a"})), exitCycle},
		{"parse", hosterrors.NewParseError("host.yaml", 3, errors.New("bad indent")), exitConfigError},
		{"validation", hosterrors.NewValidationError("DEVICE", "must be one of cuda cpu", nil), exitConfigError},
		{"interrupted", hosterrors.NewInterrupted("docker", errors.New("signal")), exitInterrupted},
		{"anything else", errors.New("boom"), exitStepFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}

func TestRenderError(t *testing.T) {
	t.Parallel()

	msg := renderError(hosterrors.NewCycleDetected([]string{"a", "b", "a"}))
	require.Contains(t, msg, "Error: ")
	require.Equal(t, 1, strings.Count(msg, "Hint: break the cycle"))

	require.Equal(t, "Error: boom", renderError(errors.New("boom")))
}
