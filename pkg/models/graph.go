package models

import "time"

// ConceptCategory classifies an extracted concept by the event family it
// came from. Insight events produce no concepts.
type ConceptCategory string

const (
	CategorySymptom    ConceptCategory = "symptom"
	CategoryMedication ConceptCategory = "medication"
	CategoryLifestyle  ConceptCategory = "lifestyle"
	CategoryClinical   ConceptCategory = "clinical"
)

// ExtractedConcept is the ephemeral output of concept extraction. It is
// recomputed on demand and never stored.
type ExtractedConcept struct {
	Concept       string          `json:"concept"`
	Category      ConceptCategory `json:"category"`
	SourceEventID string          `json:"sourceEventId"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NodeKey identifies a graph node. Two concepts with the same label but
// different categories are distinct nodes.
type NodeKey struct {
	Concept  string          `json:"concept"`
	Category ConceptCategory `json:"category"`
}

// RelationType labels the semantics of a graph edge.
type RelationType string

const (
	// RelationCoOccurrence links concepts that appeared close in time with
	// no stronger interpretation available.
	RelationCoOccurrence RelationType = "co_occurrence"
	// RelationTemporalSequence links a lifestyle concept to a symptom that
	// followed within the co-occurrence window.
	RelationTemporalSequence RelationType = "temporal_sequence"
	// RelationReportedTrigger links a lifestyle concept the user named in a
	// symptom's own context field to that symptom.
	RelationReportedTrigger RelationType = "reported_trigger"
	// RelationMedicationResponse links a medication concept with a symptom
	// inside the co-occurrence window.
	RelationMedicationResponse RelationType = "medication_response"
)

// GraphNode is one concept in the identity's concept graph. Counts are
// cumulative and monotone; nodes are never deleted.
type GraphNode struct {
	Key             NodeKey   `json:"key"`
	OccurrenceCount int64     `json:"occurrenceCount"`
	FirstSeen       time.Time `json:"firstSeen"`
	LastSeen        time.Time `json:"lastSeen"`
}

// GraphEdge is a directed, weighted link between two nodes. Weight starts
// at 1.0 and gains 0.5 per reinforcement. An edge never connects a node to
// itself.
type GraphEdge struct {
	Source        NodeKey      `json:"source"`
	Target        NodeKey      `json:"target"`
	Relation      RelationType `json:"relation"`
	Weight        float64      `json:"weight"`
	FirstObserved time.Time    `json:"firstObserved"`
	LastObserved  time.Time    `json:"lastObserved"`
}

// ConceptSummary is the flattened node view exposed to consumers.
type ConceptSummary struct {
	Concept         string          `json:"concept"`
	Category        ConceptCategory `json:"category"`
	OccurrenceCount int64           `json:"occurrenceCount"`
	FirstSeen       time.Time       `json:"firstSeen"`
	LastSeen        time.Time       `json:"lastSeen"`
}

// EdgeSummary is the flattened edge view exposed to consumers.
type EdgeSummary struct {
	SourceConcept  string          `json:"sourceConcept"`
	SourceCategory ConceptCategory `json:"sourceCategory"`
	TargetConcept  string          `json:"targetConcept"`
	TargetCategory ConceptCategory `json:"targetCategory"`
	Relation       RelationType    `json:"relation"`
	Weight         float64         `json:"weight"`
	FirstObserved  time.Time       `json:"firstObserved"`
}

// GraphSummary is the serializable snapshot handed downstream: totals plus
// the top nodes by occurrence and top edges by weight, in deterministic
// order.
type GraphSummary struct {
	NodeCount      int              `json:"nodeCount"`
	EdgeCount      int              `json:"edgeCount"`
	TopConcepts    []ConceptSummary `json:"topConcepts"`
	StrongestEdges []EdgeSummary    `json:"strongestEdges"`
}
