package alerts

import (
	"fmt"
	"strings"

	"github.com/sentiq/healthiq/pkg/models"
)

// Suggest returns fixed-template behavioral suggestions gated by the
// current signals. Output order follows evaluation order, not any
// importance ranking, so the same inputs always yield the same list.
func (e *Engine) Suggest(hsi *models.HSIScore, active []models.UserAlert, graph *models.GraphSummary) []models.BehavioralSuggestion {
	activeRules := map[models.AlertRule]bool{}
	for _, alert := range active {
		activeRules[alert.RuleType] = true
	}

	var out []models.BehavioralSuggestion

	if hsi != nil && hsi.BehavioralConsistency < e.config.SuggestionConsistencyFloor && activeRules[models.RuleAdherenceDecline] {
		out = append(out, models.BehavioralSuggestion{
			Category:   "medication",
			Suggestion: "Set a fixed daily reminder for your medication and log the outcome right away.",
			BasedOn:    "low behavioral consistency with a recent adherence decline",
		})
	}

	if suggestion := e.sleepStressSuggestion(graph); suggestion != nil {
		out = append(out, *suggestion)
	}

	if activeRules[models.RuleLoggingGap] {
		out = append(out, models.BehavioralSuggestion{
			Category:   "engagement",
			Suggestion: "Log at least one short entry today, even just a one-line check-in.",
			BasedOn:    "a recent gap in your logging",
		})
	}

	if activeRules[models.RuleSymptomEscalation] {
		out = append(out, models.BehavioralSuggestion{
			Category:   "monitoring",
			Suggestion: "Record the escalating symptom daily with an intensity so the trend stays visible.",
			BasedOn:    "a symptom whose intensity has been rising",
		})
	}

	return out
}

// sleepStressSuggestion scans the strongest temporal_sequence edges for a
// sleep or stress concept; the first hit decides which template fires.
func (e *Engine) sleepStressSuggestion(graph *models.GraphSummary) *models.BehavioralSuggestion {
	if graph == nil {
		return nil
	}
	for _, edge := range graph.StrongestEdges {
		if edge.Relation != models.RelationTemporalSequence {
			continue
		}
		concept := ""
		switch {
		case strings.Contains(edge.SourceConcept, "sleep"):
			concept = edge.SourceConcept
		case strings.Contains(edge.TargetConcept, "sleep"):
			concept = edge.TargetConcept
		}
		if concept != "" {
			return &models.BehavioralSuggestion{
				Category:   "sleep",
				Suggestion: "Try a consistent bedtime this week; your entries link sleep quality to how you feel the next day.",
				BasedOn:    fmt.Sprintf("the repeated link between %q and your symptoms", concept),
			}
		}
		switch {
		case strings.Contains(edge.SourceConcept, "stress"):
			concept = edge.SourceConcept
		case strings.Contains(edge.TargetConcept, "stress"):
			concept = edge.TargetConcept
		}
		if concept != "" {
			return &models.BehavioralSuggestion{
				Category:   "stress",
				Suggestion: "Plan a short daily wind-down; your entries link stress to symptom days.",
				BasedOn:    fmt.Sprintf("the repeated link between %q and your symptoms", concept),
			}
		}
	}
	return nil
}
