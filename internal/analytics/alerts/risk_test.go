package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentiq/healthiq/pkg/models"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(nil)
	require.NoError(t, err)
	return engine
}

func activeAlert(rule models.AlertRule, severity models.AlertSeverity) models.UserAlert {
	a := models.NewUserAlert("self", rule, severity, "t", "e", nil, time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))
	return *a
}

// =============================================================================
// RISK TIERS
// =============================================================================

func TestComputeRisk_LowScoreIsOrange(t *testing.T) {
	engine := newTestEngine(t)

	status := engine.ComputeRisk(&models.HSIScore{Score: 35}, []models.UserAlert{
		activeAlert(models.RuleHSIDrop, models.SeverityWarning),
	})

	assert.Equal(t, models.RiskOrange, status.Level)
	assert.Equal(t, 35.0, status.HSIScore)
	assert.Equal(t, 1, status.ActiveAlerts)
	assert.Equal(t, 1, status.WarningCount)
	assert.NotEmpty(t, status.Description)
}

func TestComputeRisk_ThreeAlertsForceOrangeAtHighScore(t *testing.T) {
	engine := newTestEngine(t)

	status := engine.ComputeRisk(&models.HSIScore{Score: 90}, []models.UserAlert{
		activeAlert(models.RuleLoggingGap, models.SeverityInfo),
		activeAlert(models.RuleCoOccurrenceSpike, models.SeverityInfo),
		activeAlert(models.RuleNewSymptomCluster, models.SeverityAttention),
	})

	assert.Equal(t, models.RiskOrange, status.Level)
	assert.Equal(t, 3, status.ActiveAlerts)
	assert.Equal(t, 1, status.AttentionCount)
}

func TestComputeRisk_WarningIsYellowDespiteHighScore(t *testing.T) {
	engine := newTestEngine(t)

	status := engine.ComputeRisk(&models.HSIScore{Score: 85}, []models.UserAlert{
		activeAlert(models.RuleSymptomEscalation, models.SeverityWarning),
	})

	assert.Equal(t, models.RiskYellow, status.Level)
}

func TestComputeRisk_MidScoreIsYellowWithoutAlerts(t *testing.T) {
	engine := newTestEngine(t)

	status := engine.ComputeRisk(&models.HSIScore{Score: 65}, nil)

	assert.Equal(t, models.RiskYellow, status.Level)
	assert.Zero(t, status.ActiveAlerts)
}

func TestComputeRisk_InfoAlertsAloneStayGreen(t *testing.T) {
	engine := newTestEngine(t)

	status := engine.ComputeRisk(&models.HSIScore{Score: 82}, []models.UserAlert{
		activeAlert(models.RuleLoggingGap, models.SeverityInfo),
	})

	assert.Equal(t, models.RiskGreen, status.Level)
	assert.Equal(t, 1, status.ActiveAlerts)
}

func TestComputeRisk_NilScoreDefaultsToNeutral(t *testing.T) {
	engine := newTestEngine(t)

	status := engine.ComputeRisk(nil, nil)

	assert.Equal(t, models.RiskYellow, status.Level)
	assert.Equal(t, 50.0, status.HSIScore)
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

func suggestionCategories(suggestions []models.BehavioralSuggestion) []string {
	out := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, s.Category)
	}
	return out
}

func TestSuggest_NoSignalsNoSuggestions(t *testing.T) {
	engine := newTestEngine(t)

	suggestions := engine.Suggest(&models.HSIScore{Score: 80, BehavioralConsistency: 90}, nil, nil)

	assert.Empty(t, suggestions)
}

func TestSuggest_MedicationNeedsBothGates(t *testing.T) {
	engine := newTestEngine(t)
	lowConsistency := &models.HSIScore{Score: 55, BehavioralConsistency: 40}

	// Low consistency alone is not enough.
	suggestions := engine.Suggest(lowConsistency, nil, nil)
	assert.Empty(t, suggestions)

	// Neither is the adherence alert with healthy consistency.
	suggestions = engine.Suggest(
		&models.HSIScore{Score: 80, BehavioralConsistency: 90},
		[]models.UserAlert{activeAlert(models.RuleAdherenceDecline, models.SeverityWarning)},
		nil,
	)
	assert.Empty(t, suggestions)

	// Together they fire.
	suggestions = engine.Suggest(
		lowConsistency,
		[]models.UserAlert{activeAlert(models.RuleAdherenceDecline, models.SeverityWarning)},
		nil,
	)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "medication", suggestions[0].Category)
}

func TestSuggest_SleepWinsOverStressOnSameEdge(t *testing.T) {
	engine := newTestEngine(t)
	graph := &models.GraphSummary{
		StrongestEdges: []models.EdgeSummary{
			{
				SourceConcept:  "poor sleep",
				SourceCategory: models.CategoryLifestyle,
				TargetConcept:  "stress",
				TargetCategory: models.CategoryLifestyle,
				Relation:       models.RelationTemporalSequence,
				Weight:         3.0,
			},
		},
	}

	suggestions := engine.Suggest(nil, nil, graph)

	require.Len(t, suggestions, 1)
	assert.Equal(t, "sleep", suggestions[0].Category)
	assert.Contains(t, suggestions[0].BasedOn, "poor sleep")
}

func TestSuggest_StressEdgeFiresWithoutSleep(t *testing.T) {
	engine := newTestEngine(t)
	graph := &models.GraphSummary{
		StrongestEdges: []models.EdgeSummary{
			{
				SourceConcept:  "high stress",
				SourceCategory: models.CategoryLifestyle,
				TargetConcept:  "headache",
				TargetCategory: models.CategorySymptom,
				Relation:       models.RelationTemporalSequence,
				Weight:         2.5,
			},
		},
	}

	suggestions := engine.Suggest(nil, nil, graph)

	require.Len(t, suggestions, 1)
	assert.Equal(t, "stress", suggestions[0].Category)
}

func TestSuggest_CoOccurrenceEdgesAreIgnored(t *testing.T) {
	engine := newTestEngine(t)
	graph := &models.GraphSummary{
		StrongestEdges: []models.EdgeSummary{
			{
				SourceConcept:  "poor sleep",
				SourceCategory: models.CategoryLifestyle,
				TargetConcept:  "headache",
				TargetCategory: models.CategorySymptom,
				Relation:       models.RelationCoOccurrence,
				Weight:         5.0,
			},
		},
	}

	suggestions := engine.Suggest(nil, nil, graph)

	assert.Empty(t, suggestions)
}

func TestSuggest_FixedEvaluationOrder(t *testing.T) {
	engine := newTestEngine(t)
	graph := &models.GraphSummary{
		StrongestEdges: []models.EdgeSummary{
			{
				SourceConcept:  "poor sleep",
				SourceCategory: models.CategoryLifestyle,
				TargetConcept:  "fatigue",
				TargetCategory: models.CategorySymptom,
				Relation:       models.RelationTemporalSequence,
				Weight:         3.5,
			},
		},
	}
	active := []models.UserAlert{
		activeAlert(models.RuleSymptomEscalation, models.SeverityWarning),
		activeAlert(models.RuleLoggingGap, models.SeverityInfo),
		activeAlert(models.RuleAdherenceDecline, models.SeverityWarning),
	}

	suggestions := engine.Suggest(&models.HSIScore{Score: 45, BehavioralConsistency: 30}, active, graph)

	assert.Equal(t, []string{"medication", "sleep", "engagement", "monitoring"}, suggestionCategories(suggestions))
}
