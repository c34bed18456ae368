package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertSeverity ranks how urgently an alert should be surfaced.
type AlertSeverity string

const (
	SeverityInfo      AlertSeverity = "info"
	SeverityWarning   AlertSeverity = "warning"
	SeverityAttention AlertSeverity = "attention"
)

// AlertRule names one of the fixed alert rule templates.
type AlertRule string

const (
	RuleHSIDrop           AlertRule = "hsi_drop"
	RuleNewSymptomCluster AlertRule = "new_symptom_cluster"
	RuleAdherenceDecline  AlertRule = "adherence_decline"
	RuleLoggingGap        AlertRule = "logging_gap"
	RuleSymptomEscalation AlertRule = "symptom_escalation"
	RuleCoOccurrenceSpike AlertRule = "co_occurrence_spike"
)

// AllAlertRules lists every rule in evaluation order.
var AllAlertRules = []AlertRule{
	RuleHSIDrop,
	RuleNewSymptomCluster,
	RuleAdherenceDecline,
	RuleLoggingGap,
	RuleSymptomEscalation,
	RuleCoOccurrenceSpike,
}

// UserAlert is a rule firing. Created once; the only permitted mutation is
// the terminal acknowledgment flag.
type UserAlert struct {
	ID           string        `json:"id"`
	Identity     string        `json:"identity"`
	RuleType     AlertRule     `json:"ruleType"`
	Severity     AlertSeverity `json:"severity"`
	Title        string        `json:"title"`
	Explanation  string        `json:"explanation"`
	EvidenceIDs  []string      `json:"evidenceIds,omitempty"`
	TriggeredAt  time.Time     `json:"triggeredAt"`
	Acknowledged bool          `json:"acknowledged"`
}

// NewUserAlert creates an un-acknowledged alert with a fresh ID.
func NewUserAlert(identity string, rule AlertRule, severity AlertSeverity, title, explanation string, evidence []string, at time.Time) *UserAlert {
	return &UserAlert{
		ID:          uuid.NewString(),
		Identity:    identity,
		RuleType:    rule,
		Severity:    severity,
		Title:       title,
		Explanation: explanation,
		EvidenceIDs: evidence,
		TriggeredAt: at,
	}
}

// RiskLevel is the coarse traffic-light tier derived from the HSI score
// and active alerts.
type RiskLevel string

const (
	RiskGreen  RiskLevel = "green"
	RiskYellow RiskLevel = "yellow"
	RiskOrange RiskLevel = "orange"
)

// RiskStatus summarizes the identity's current standing.
type RiskStatus struct {
	Level          RiskLevel `json:"level"`
	HSIScore       float64   `json:"hsiScore"`
	ActiveAlerts   int       `json:"activeAlerts"`
	WarningCount   int       `json:"warningCount"`
	AttentionCount int       `json:"attentionCount"`
	Description    string    `json:"description"`
}

// BehavioralSuggestion is a fixed-template nudge tied to the signals that
// produced it. Suggestions carry no free-generated text.
type BehavioralSuggestion struct {
	Category   string `json:"category"`
	Suggestion string `json:"suggestion"`
	BasedOn    string `json:"basedOn"`
}
