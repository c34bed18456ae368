// Package pipeline composes the analytics stages into one report run:
// events in, graph summary + HSI snapshot + alerts + risk + suggestions
// out. It holds no state of its own; all policy lives in the stages.
package pipeline

import (
	"time"

	"github.com/sentiq/healthiq/internal/analytics/alerts"
	"github.com/sentiq/healthiq/internal/analytics/graph"
	"github.com/sentiq/healthiq/internal/analytics/hsi"
	"github.com/sentiq/healthiq/pkg/models"
)

// Input is one report request. Events must be the identity's ordered
// timeline. Previous is the score snapshot before this run, if any. Graph
// is an optional pre-computed summary (the incremental store produces
// one); when nil the runner batch-builds it from Events.
type Input struct {
	Identity   string
	Events     []*models.HealthEvent
	Previous   *models.HSIScore
	Graph      *models.GraphSummary
	TopN       int
	WindowDays int
	Now        time.Time
}

// Report is the full analytics output for one identity at one moment.
type Report struct {
	Identity    string                        `json:"identity"`
	Graph       *models.GraphSummary          `json:"graph"`
	HSI         *models.HSIScore              `json:"hsi"`
	Alerts      []models.UserAlert            `json:"alerts"`
	Risk        models.RiskStatus             `json:"risk"`
	Suggestions []models.BehavioralSuggestion `json:"suggestions"`
	GeneratedAt time.Time                     `json:"generatedAt"`
}

// Runner wires the stages together.
type Runner struct {
	builder *graph.Builder
	scorer  *hsi.Scorer
	engine  *alerts.Engine
}

// NewRunner composes a runner from already-validated stages.
func NewRunner(builder *graph.Builder, scorer *hsi.Scorer, engine *alerts.Engine) *Runner {
	return &Runner{builder: builder, scorer: scorer, engine: engine}
}

// NewDefaultRunner builds a runner entirely from default configuration.
func NewDefaultRunner() (*Runner, error) {
	builder, err := graph.NewBuilder(nil, nil)
	if err != nil {
		return nil, err
	}
	scorer, err := hsi.NewScorer(nil)
	if err != nil {
		return nil, err
	}
	engine, err := alerts.NewEngine(nil)
	if err != nil {
		return nil, err
	}
	return NewRunner(builder, scorer, engine), nil
}

// Run produces the report for one input. Each stage sees the same Now, so
// a report is reproducible from its input alone. The only errors are
// malformed events surfaced by the stages; a missing graph never blocks
// the score, alert or risk stages.
func (r *Runner) Run(in Input) (*Report, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	summary := in.Graph
	if summary == nil {
		built, err := r.builder.Build(in.Events, in.TopN)
		if err != nil {
			return nil, err
		}
		summary = built
	}

	score, err := r.scorer.Compute(in.Events, in.WindowDays, now)
	if err != nil {
		return nil, err
	}

	fired, err := r.engine.Evaluate(alerts.AlertContext{
		Identity: in.Identity,
		Events:   in.Events,
		Current:  score,
		Previous: in.Previous,
		Graph:    summary,
		Now:      now,
	})
	if err != nil {
		return nil, err
	}

	return &Report{
		Identity:    in.Identity,
		Graph:       summary,
		HSI:         score,
		Alerts:      fired,
		Risk:        r.engine.ComputeRisk(score, fired),
		Suggestions: r.engine.Suggest(score, fired, summary),
		GeneratedAt: now,
	}, nil
}
