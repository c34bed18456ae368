package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sentiq/healthiq/pkg/models"
)

// EventRecord is one row of the event timeline. The full event is kept as
// a JSON blob alongside the columns the analytics queries filter on, so
// payload shapes can evolve without schema churn.
type EventRecord struct {
	ID              string  `gorm:"primaryKey;type:text"`
	Identity        string  `gorm:"index:idx_events_identity;index:idx_events_identity_occurred,priority:1;not null"`
	EventType       string  `gorm:"type:text;check:event_type IN ('medication', 'symptom', 'lifestyle', 'clinical', 'insight');not null"`
	Source          string  `gorm:"type:text"`
	VisibilityScope string  `gorm:"type:text"`
	OccurredAt      string  `gorm:"not null"`
	Body            string  `gorm:"type:text;not null"`
	Confidence      float64 `gorm:"type:real;default:1.0"`
	OccurredAtEpoch int64   `gorm:"index:idx_events_identity_occurred,priority:2;not null"`
	CreatedAtEpoch  int64   `gorm:"not null"`
}

func (EventRecord) TableName() string { return "health_events" }

// BeforeCreate hook to ensure defaults are set.
func (e *EventRecord) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAtEpoch == 0 {
		e.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}

// GraphNodeRecord is one concept node of an identity's incremental graph.
type GraphNodeRecord struct {
	Identity        string `gorm:"uniqueIndex:idx_graph_nodes_key,priority:1;not null"`
	Concept         string `gorm:"type:text;uniqueIndex:idx_graph_nodes_key,priority:2;not null"`
	Category        string `gorm:"type:text;uniqueIndex:idx_graph_nodes_key,priority:3;check:category IN ('symptom', 'medication', 'lifestyle', 'clinical');not null"`
	FirstSeen       string `gorm:"not null"`
	LastSeen        string `gorm:"not null"`
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	OccurrenceCount int    `gorm:"default:1;not null"`
	FirstSeenEpoch  int64  `gorm:"not null"`
	LastSeenEpoch   int64  `gorm:"not null"`
}

func (GraphNodeRecord) TableName() string { return "graph_nodes" }

// GraphEdgeRecord is one directed relation between two concept nodes. The
// composite unique index is the upsert target of the incremental path.
type GraphEdgeRecord struct {
	Identity           string  `gorm:"uniqueIndex:idx_graph_edges_key,priority:1;not null"`
	SourceConcept      string  `gorm:"type:text;uniqueIndex:idx_graph_edges_key,priority:2;not null"`
	SourceCategory     string  `gorm:"type:text;uniqueIndex:idx_graph_edges_key,priority:3;not null"`
	TargetConcept      string  `gorm:"type:text;uniqueIndex:idx_graph_edges_key,priority:4;not null"`
	TargetCategory     string  `gorm:"type:text;uniqueIndex:idx_graph_edges_key,priority:5;not null"`
	Relation           string  `gorm:"type:text;uniqueIndex:idx_graph_edges_key,priority:6;check:relation IN ('co_occurrence', 'temporal_sequence', 'medication_response', 'reported_trigger');not null"`
	FirstObserved      string  `gorm:"not null"`
	LastObserved       string  `gorm:"not null"`
	ID                 int64   `gorm:"primaryKey;autoIncrement"`
	Weight             float64 `gorm:"type:real;default:1.0;index:idx_graph_edges_weight,sort:desc;not null"`
	ObservationCount   int     `gorm:"default:1;not null"`
	FirstObservedEpoch int64   `gorm:"not null"`
	LastObservedEpoch  int64   `gorm:"not null"`
}

func (GraphEdgeRecord) TableName() string { return "graph_edges" }

// HSIScoreRecord is one immutable score snapshot; rows are append-only.
type HSIScoreRecord struct {
	ID                    string                 `gorm:"primaryKey;type:text"`
	Identity              string                 `gorm:"index:idx_scores_identity_computed,priority:1;not null"`
	DataConfidence        string                 `gorm:"type:text;check:data_confidence IN ('low', 'medium', 'high');not null"`
	ComputedAt            string                 `gorm:"not null"`
	ContributingEventIDs  models.JSONStringArray `gorm:"type:text"`
	Score                 float64                `gorm:"type:real;not null"`
	SymptomRegularity     float64                `gorm:"type:real;not null"`
	BehavioralConsistency float64                `gorm:"type:real;not null"`
	TrajectoryDirection   float64                `gorm:"type:real;not null"`
	WindowDays            int                    `gorm:"not null"`
	ComputedAtEpoch       int64                  `gorm:"index:idx_scores_identity_computed,priority:2,sort:desc;not null"`
}

func (HSIScoreRecord) TableName() string { return "hsi_scores" }

// BeforeCreate hook to ensure an ID is set.
func (r *HSIScoreRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// AlertRecord is one triggered alert. Acknowledgement is terminal.
type AlertRecord struct {
	ID               string                 `gorm:"primaryKey;type:text"`
	Identity         string                 `gorm:"index:idx_alerts_identity;index:idx_alerts_dedup,priority:1;not null"`
	RuleType         string                 `gorm:"type:text;check:rule_type IN ('hsi_drop', 'new_symptom_cluster', 'adherence_decline', 'logging_gap', 'symptom_escalation', 'co_occurrence_spike');index:idx_alerts_dedup,priority:2;not null"`
	Severity         string                 `gorm:"type:text;check:severity IN ('info', 'attention', 'warning');not null"`
	Title            string                 `gorm:"type:text;not null"`
	Explanation      string                 `gorm:"type:text;not null"`
	EvidenceIDs      models.JSONStringArray `gorm:"type:text"`
	TriggeredAt      string                 `gorm:"not null"`
	TriggeredAtEpoch int64                  `gorm:"index:idx_alerts_triggered,sort:desc;not null"`
	Acknowledged     int                    `gorm:"default:0;index:idx_alerts_dedup,priority:3"`
}

func (AlertRecord) TableName() string { return "user_alerts" }

// BeforeCreate hook to ensure defaults are set.
func (a *AlertRecord) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.TriggeredAtEpoch == 0 && a.TriggeredAt != "" {
		if at, err := time.Parse(time.RFC3339Nano, a.TriggeredAt); err == nil {
			a.TriggeredAtEpoch = at.UnixMilli()
		}
	}
	return nil
}
