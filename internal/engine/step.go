package engine

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
)

// ApplyFunc performs the side-effecting action of a step. It must be safe
// to call when the step is already satisfied.
type ApplyFunc func(ctx context.Context) error

// Step is one idempotent provisioning unit. Steps are built once at
// startup and never modified afterwards.
type Step struct {
	Name        string
	Description string
	DependsOn   []string
	Probe       probe.Probe
	Apply       ApplyFunc
	// Verify defaults to Probe when nil.
	Verify probe.Probe
	// Optional failures are reported as warnings and never block dependents.
	Optional bool
	// Timeout overrides the executor default for Apply.
	Timeout time.Duration
	// Hint is the fallback remediation when the failure carries none.
	Hint string
	// FollowUp is added to the manual checklist when the step is applied.
	FollowUp string
}

func (s Step) verifier() probe.Probe {
	if s.Verify != nil {
		return s.Verify
	}
	return s.Probe
}
