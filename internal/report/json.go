package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
)

type jsonStep struct {
	Name        string `json:"name"`
	Outcome     string `json:"outcome"`
	Detail      string `json:"detail,omitempty"`
	ProbeDetail string `json:"probe_detail,omitempty"`
	Diff        string `json:"diff,omitempty"`
	Hint        string `json:"hint,omitempty"`
	Error       string `json:"error,omitempty"`
	Optional    bool   `json:"optional"`
	Warning     bool   `json:"warning"`
	DurationMs  int64  `json:"duration_ms"`
	StartedAt   string `json:"started_at,omitempty"`
}

type jsonCounts struct {
	Applied    int `json:"applied"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	WouldApply int `json:"would_apply"`
}

type jsonReport struct {
	RunID       string     `json:"run_id"`
	StartedAt   string     `json:"started_at"`
	FinishedAt  string     `json:"finished_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
	DryRun      bool       `json:"dry_run"`
	Interrupted bool       `json:"interrupted"`
	Success     bool       `json:"success"`
	Counts      jsonCounts `json:"counts"`
	Steps       []jsonStep `json:"steps"`
	Warnings    []string   `json:"warnings"`
	FollowUps   []string   `json:"follow_ups"`
}

// RenderJSON writes rep as indented JSON.
func RenderJSON(w io.Writer, rep *model.RunReport) error {
	out := jsonReport{
		RunID:       rep.RunID,
		StartedAt:   formatTime(rep.StartedAt),
		FinishedAt:  formatTime(rep.FinishedAt),
		DurationMs:  rep.Duration().Milliseconds(),
		DryRun:      rep.DryRun,
		Interrupted: rep.Interrupted,
		Success:     rep.Success,
		Counts: jsonCounts{
			Applied:    rep.Count(model.OutcomeApplied),
			Skipped:    rep.Count(model.OutcomeSkipped),
			Failed:     rep.Count(model.OutcomeFailed),
			WouldApply: rep.Count(model.OutcomeWouldApply),
		},
		Steps:     []jsonStep{},
		Warnings:  nonNil(rep.Warnings()),
		FollowUps: nonNil(rep.FollowUps()),
	}

	for _, res := range rep.Results() {
		step := jsonStep{
			Name:        res.Name,
			Outcome:     string(res.Outcome),
			Detail:      res.Detail,
			ProbeDetail: res.ProbeDetail,
			Diff:        res.Diff,
			Hint:        res.Hint,
			Optional:    res.Optional,
			Warning:     res.Warning,
			DurationMs:  res.DurationMs(),
			StartedAt:   formatTime(res.StartedAt),
		}
		if res.Error != nil {
			step.Error = res.Error.Error()
		}
		out.Steps = append(out.Steps, step)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
