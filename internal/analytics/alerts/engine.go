// Package alerts evaluates the fixed alert rule templates against an
// identity's events, scores and graph summary, and derives the risk tier
// and behavioral suggestions from the result. Evaluation is pure; the 24h
// per-rule deduplication belongs to the alert store, not to this package.
package alerts

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sentiq/healthiq/internal/analytics/concepts"
	"github.com/sentiq/healthiq/pkg/models"
)

// ErrInvalidConfig is returned when alert configuration fails validation.
var ErrInvalidConfig = errors.New("invalid alert config")

// Config contains every alert, risk and suggestion threshold.
type Config struct {
	// ColdStartMinEvents is the minimum event count before any rule may
	// fire (default 10).
	ColdStartMinEvents int `json:"cold_start_min_events"`
	// ColdStartMinAgeDays is the minimum age of the earliest event before
	// any rule may fire (default 14).
	ColdStartMinAgeDays int `json:"cold_start_min_age_days"`
	// HSIDropPoints is the score decline that triggers hsi_drop (default 10).
	HSIDropPoints float64 `json:"hsi_drop_points"`
	// ClusterMinNewSymptoms is how many never-before-seen descriptions the
	// recent window needs for new_symptom_cluster (default 3).
	ClusterMinNewSymptoms int `json:"cluster_min_new_symptoms"`
	// ClusterRecentDays bounds the recent window (default 14).
	ClusterRecentDays int `json:"cluster_recent_days"`
	// ClusterBaselineDays bounds the comparison window that recent
	// descriptions are checked against (default 60).
	ClusterBaselineDays int `json:"cluster_baseline_days"`
	// AdherenceFloor is the taken-ratio below which adherence_decline
	// fires (default 0.70).
	AdherenceFloor float64 `json:"adherence_floor"`
	// AdherenceMinSample is the minimum recorded medication events before
	// the adherence rule applies (default 5).
	AdherenceMinSample int `json:"adherence_min_sample"`
	// AdherenceWindowDays bounds the adherence sample (default 14).
	AdherenceWindowDays int `json:"adherence_window_days"`
	// EngagementMinEvents gates logging_gap: below this the user never
	// engaged enough for a gap to mean anything (default 20).
	EngagementMinEvents int `json:"engagement_min_events"`
	// GapDays is the silence length that triggers logging_gap (default 7).
	GapDays int `json:"gap_days"`
	// EscalationRunLength is how many strictly increasing intensities end a
	// symptom group for symptom_escalation (default 3).
	EscalationRunLength int `json:"escalation_run_length"`
	// SpikeEdgeWeight is the edge weight at which co_occurrence_spike
	// fires (default 4.0).
	SpikeEdgeWeight float64 `json:"spike_edge_weight"`
	// DedupWindow is how long an un-acknowledged alert suppresses a repeat
	// of its rule. Enforced by the alert store (default 24h).
	DedupWindow time.Duration `json:"dedup_window"`
	// RiskOrangeScore / RiskYellowScore are the HSI thresholds of the risk
	// tiers (defaults 40 / 70).
	RiskOrangeScore float64 `json:"risk_orange_score"`
	RiskYellowScore float64 `json:"risk_yellow_score"`
	// RiskOrangeAlerts is the active-alert count that escalates to orange
	// regardless of score (default 3).
	RiskOrangeAlerts int `json:"risk_orange_alerts"`
	// SuggestionConsistencyFloor gates the medication suggestion
	// (default 70).
	SuggestionConsistencyFloor float64 `json:"suggestion_consistency_floor"`
}

// DefaultConfig returns the default alert configuration.
func DefaultConfig() *Config {
	return &Config{
		ColdStartMinEvents:         10,
		ColdStartMinAgeDays:        14,
		HSIDropPoints:              10,
		ClusterMinNewSymptoms:      3,
		ClusterRecentDays:          14,
		ClusterBaselineDays:        60,
		AdherenceFloor:             0.70,
		AdherenceMinSample:         5,
		AdherenceWindowDays:        14,
		EngagementMinEvents:        20,
		GapDays:                    7,
		EscalationRunLength:        3,
		SpikeEdgeWeight:            4.0,
		DedupWindow:                24 * time.Hour,
		RiskOrangeScore:            40,
		RiskYellowScore:            70,
		RiskOrangeAlerts:           3,
		SuggestionConsistencyFloor: 70,
	}
}

// Validate rejects unusable configuration before evaluation starts.
func (c *Config) Validate() error {
	if c.ColdStartMinEvents < 1 || c.ColdStartMinAgeDays < 0 {
		return fmt.Errorf("%w: cold start guard must be positive", ErrInvalidConfig)
	}
	if c.HSIDropPoints <= 0 {
		return fmt.Errorf("%w: hsi drop points must be positive, got %.1f", ErrInvalidConfig, c.HSIDropPoints)
	}
	if c.AdherenceFloor <= 0 || c.AdherenceFloor > 1 {
		return fmt.Errorf("%w: adherence floor must be within (0,1], got %.2f", ErrInvalidConfig, c.AdherenceFloor)
	}
	if c.ClusterRecentDays <= 0 || c.ClusterBaselineDays <= c.ClusterRecentDays {
		return fmt.Errorf("%w: cluster baseline window must exceed the recent window", ErrInvalidConfig)
	}
	if c.EscalationRunLength < 2 {
		return fmt.Errorf("%w: escalation run length must be at least 2", ErrInvalidConfig)
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("%w: dedup window must be positive", ErrInvalidConfig)
	}
	if c.RiskOrangeScore >= c.RiskYellowScore {
		return fmt.Errorf("%w: orange score threshold must sit below yellow", ErrInvalidConfig)
	}
	return nil
}

// AlertContext is the snapshot one evaluation runs over.
type AlertContext struct {
	Identity string
	// Events is the identity's ordered timeline. Insight events are
	// dropped before any rule sees them.
	Events []*models.HealthEvent
	// Current and Previous are the latest two HSI snapshots; either may be
	// nil when not enough history exists.
	Current  *models.HSIScore
	Previous *models.HSIScore
	// Graph is optional; without it only the co-occurrence spike rule is
	// skipped.
	Graph *models.GraphSummary
	Now   time.Time
}

// Engine evaluates alert rules.
type Engine struct {
	config *Config
}

// NewEngine creates an engine. A nil config uses the defaults.
func NewEngine(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{config: config}, nil
}

// timedEvent pairs an event with its parsed timestamp.
type timedEvent struct {
	event *models.HealthEvent
	at    time.Time
}

// Evaluate runs all six rules against the context and returns the fired
// alerts in rule order. Rules are independent, so several may co-fire.
// Before the cold-start guard is satisfied no rule runs at all. The only
// error is a malformed timestamp.
func (e *Engine) Evaluate(ctx AlertContext) ([]models.UserAlert, error) {
	var events []timedEvent
	for _, event := range ctx.Events {
		if event.EventType == models.EventInsight {
			continue
		}
		at, err := event.When()
		if err != nil {
			return nil, err
		}
		events = append(events, timedEvent{event: event, at: at})
	}

	if !e.pastColdStart(events, ctx.Now) {
		return nil, nil
	}

	var alerts []models.UserAlert
	rules := []func(AlertContext, []timedEvent) *models.UserAlert{
		e.evaluateHSIDrop,
		e.evaluateNewSymptomCluster,
		e.evaluateAdherenceDecline,
		e.evaluateLoggingGap,
		e.evaluateSymptomEscalation,
		e.evaluateCoOccurrenceSpike,
	}
	for _, rule := range rules {
		if alert := rule(ctx, events); alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	return alerts, nil
}

// pastColdStart reports whether the timeline has enough volume and age for
// rules to be meaningful.
func (e *Engine) pastColdStart(events []timedEvent, now time.Time) bool {
	if len(events) < e.config.ColdStartMinEvents {
		return false
	}
	earliest := events[0].at
	for _, te := range events[1:] {
		if te.at.Before(earliest) {
			earliest = te.at
		}
	}
	minAge := time.Duration(e.config.ColdStartMinAgeDays) * 24 * time.Hour
	return now.Sub(earliest) >= minAge
}

func (e *Engine) evaluateHSIDrop(ctx AlertContext, _ []timedEvent) *models.UserAlert {
	if ctx.Current == nil || ctx.Previous == nil {
		return nil
	}
	delta := ctx.Current.Score - ctx.Previous.Score
	if delta > -e.config.HSIDropPoints {
		return nil
	}
	return models.NewUserAlert(
		ctx.Identity,
		models.RuleHSIDrop,
		models.SeverityWarning,
		"Stability score dropped",
		fmt.Sprintf("Your stability score fell from %.0f to %.0f (%.0f points). A dip this size is worth a closer look at the last two weeks of entries.",
			ctx.Previous.Score, ctx.Current.Score, delta),
		ctx.Current.ContributingEventIDs,
		ctx.Now,
	)
}

func (e *Engine) evaluateNewSymptomCluster(ctx AlertContext, events []timedEvent) *models.UserAlert {
	recentStart := ctx.Now.Add(-time.Duration(e.config.ClusterRecentDays) * 24 * time.Hour)
	baselineStart := ctx.Now.Add(-time.Duration(e.config.ClusterBaselineDays) * 24 * time.Hour)

	baseline := map[string]struct{}{}
	type newSymptom struct {
		description string
		eventIDs    []string
	}
	var recentOrder []string
	recent := map[string]*newSymptom{}

	for _, te := range events {
		if te.event.EventType != models.EventSymptom || te.event.Symptom == nil {
			continue
		}
		description := concepts.Normalize(te.event.Symptom.Description)
		if description == "" {
			continue
		}
		switch {
		case te.at.After(recentStart):
			entry, ok := recent[description]
			if !ok {
				entry = &newSymptom{description: description}
				recent[description] = entry
				recentOrder = append(recentOrder, description)
			}
			entry.eventIDs = append(entry.eventIDs, te.event.ID)
		case te.at.After(baselineStart):
			baseline[description] = struct{}{}
		}
	}

	var fresh []*newSymptom
	for _, description := range recentOrder {
		if _, seen := baseline[description]; !seen {
			fresh = append(fresh, recent[description])
		}
	}
	if len(fresh) < e.config.ClusterMinNewSymptoms {
		return nil
	}

	var evidence []string
	for _, ns := range fresh {
		evidence = append(evidence, ns.eventIDs...)
	}
	return models.NewUserAlert(
		ctx.Identity,
		models.RuleNewSymptomCluster,
		models.SeverityAttention,
		"New symptom cluster",
		fmt.Sprintf("%d symptoms logged in the last %d days had not appeared before. Clusters of new symptoms are worth mentioning at your next visit.",
			len(fresh), e.config.ClusterRecentDays),
		evidence,
		ctx.Now,
	)
}

func (e *Engine) evaluateAdherenceDecline(ctx AlertContext, events []timedEvent) *models.UserAlert {
	windowStart := ctx.Now.Add(-time.Duration(e.config.AdherenceWindowDays) * 24 * time.Hour)

	taken, recorded := 0, 0
	var evidence []string
	for _, te := range events {
		if te.event.EventType != models.EventMedication || te.event.Medication == nil {
			continue
		}
		if !te.at.After(windowStart) || te.event.Medication.AdherenceOutcome == "" {
			continue
		}
		recorded++
		evidence = append(evidence, te.event.ID)
		if te.event.Medication.AdherenceOutcome == models.AdherenceTaken {
			taken++
		}
	}

	if recorded < e.config.AdherenceMinSample {
		return nil
	}
	ratio := float64(taken) / float64(recorded)
	if ratio >= e.config.AdherenceFloor {
		return nil
	}
	return models.NewUserAlert(
		ctx.Identity,
		models.RuleAdherenceDecline,
		models.SeverityWarning,
		"Medication adherence declining",
		fmt.Sprintf("Only %d of %d medication doses in the last %d days were taken (%.0f%%). Missed doses can blur the picture your other entries paint.",
			taken, recorded, e.config.AdherenceWindowDays, ratio*100),
		evidence,
		ctx.Now,
	)
}

func (e *Engine) evaluateLoggingGap(ctx AlertContext, events []timedEvent) *models.UserAlert {
	if len(events) < e.config.EngagementMinEvents {
		return nil
	}
	latest := events[0].at
	for _, te := range events[1:] {
		if te.at.After(latest) {
			latest = te.at
		}
	}
	gapDays := int(ctx.Now.Sub(latest).Hours() / 24)
	if gapDays < e.config.GapDays {
		return nil
	}
	return models.NewUserAlert(
		ctx.Identity,
		models.RuleLoggingGap,
		models.SeverityInfo,
		"Logging gap",
		fmt.Sprintf("No entries for %d days. Even a short note keeps your stability score meaningful.", gapDays),
		nil,
		ctx.Now,
	)
}

func (e *Engine) evaluateSymptomEscalation(ctx AlertContext, events []timedEvent) *models.UserAlert {
	// Groups keep first-appearance order so the same timeline always picks
	// the same qualifying group.
	type group struct {
		description string
		intensities []float64
		eventIDs    []string
	}
	var order []string
	groups := map[string]*group{}

	for _, te := range events {
		if te.event.EventType != models.EventSymptom || te.event.Symptom == nil {
			continue
		}
		description := te.event.Symptom.Description
		g, ok := groups[description]
		if !ok {
			g = &group{description: description}
			groups[description] = g
			order = append(order, description)
		}
		if v, parsed := concepts.ParseIntensity(string(te.event.Symptom.Intensity)); parsed {
			g.intensities = append(g.intensities, v)
			g.eventIDs = append(g.eventIDs, te.event.ID)
		}
	}

	run := e.config.EscalationRunLength
	for _, description := range order {
		g := groups[description]
		if len(g.intensities) < run {
			continue
		}
		tail := g.intensities[len(g.intensities)-run:]
		if !strictlyIncreasing(tail) {
			continue
		}
		return models.NewUserAlert(
			ctx.Identity,
			models.RuleSymptomEscalation,
			models.SeverityWarning,
			"Symptom escalating",
			fmt.Sprintf("%q intensity rose across its last %d entries (%s). A steady climb is a pattern worth watching.",
				g.description, run, formatRun(tail)),
			g.eventIDs[len(g.eventIDs)-run:],
			ctx.Now,
		)
	}
	return nil
}

func (e *Engine) evaluateCoOccurrenceSpike(ctx AlertContext, _ []timedEvent) *models.UserAlert {
	if ctx.Graph == nil {
		return nil
	}
	// strongestEdges arrives in descending weight order with deterministic
	// tie-breaks, so the first qualifying edge is the spike.
	for _, edge := range ctx.Graph.StrongestEdges {
		if edge.Weight < e.config.SpikeEdgeWeight {
			break
		}
		return models.NewUserAlert(
			ctx.Identity,
			models.RuleCoOccurrenceSpike,
			models.SeverityInfo,
			"Recurring pattern detected",
			fmt.Sprintf("%q and %q have been logged close together %0.f times. Recurring pairs like this can hint at a trigger.",
				edge.SourceConcept, edge.TargetConcept, reinforcementCount(edge.Weight)),
			nil,
			ctx.Now,
		)
	}
	return nil
}

// strictlyIncreasing reports whether every value exceeds its predecessor.
func strictlyIncreasing(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			return false
		}
	}
	return true
}

// reinforcementCount converts an edge weight back to its observation count
// (weight = 1.0 + 0.5 per reinforcement).
func reinforcementCount(weight float64) float64 {
	return math.Round((weight-1.0)/0.5) + 1
}

func formatRun(values []float64) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += " -> "
		}
		out += fmt.Sprintf("%.1f", v)
	}
	return out
}

// UpdateConfig swaps the engine configuration at runtime. Invalid configs
// are rejected and the old one stays active.
func (e *Engine) UpdateConfig(config *Config) error {
	if config == nil {
		return nil
	}
	if err := config.Validate(); err != nil {
		return err
	}
	e.config = config
	return nil
}

// GetConfig returns the current engine configuration.
func (e *Engine) GetConfig() *Config {
	return e.config
}
