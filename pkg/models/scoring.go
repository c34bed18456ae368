package models

import "time"

// DataConfidence grades how much windowed data backed an HSI computation.
// Consumers use it to distinguish "not enough data yet" from a real score.
type DataConfidence string

const (
	ConfidenceLow    DataConfidence = "low"
	ConfidenceMedium DataConfidence = "medium"
	ConfidenceHigh   DataConfidence = "high"
)

// HSIScore is one immutable Health Stability Index snapshot. History is an
// append-only sequence of these; a snapshot is never edited after it is
// computed.
type HSIScore struct {
	// Score is the rounded composite, always within [0,100].
	Score float64 `json:"score"`
	// SymptomRegularity measures how evenly symptoms are distributed over
	// the window (weight 0.4).
	SymptomRegularity float64 `json:"symptomRegularity"`
	// BehavioralConsistency blends medication adherence with lifestyle
	// logging coverage (weight 0.3).
	BehavioralConsistency float64 `json:"behavioralConsistency"`
	// TrajectoryDirection maps the symptom burden slope: improving scores
	// high, escalating scores low (weight 0.3).
	TrajectoryDirection float64 `json:"trajectoryDirection"`
	// WindowDays is the window the score was computed over.
	WindowDays int `json:"windowDays"`
	// DataConfidence grades the windowed sample size, type variety and span.
	DataConfidence DataConfidence `json:"dataConfidence"`
	// ContributingEventIDs lists the windowed events behind the score, in
	// input order.
	ContributingEventIDs []string `json:"contributingEventIds,omitempty"`
	// ComputedAt is the injected clock value at computation time.
	ComputedAt time.Time `json:"computedAt"`
}
