// Package models contains domain models for healthiq.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for malformed events. Callers match with errors.Is.
var (
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrUnknownEventType   = errors.New("unknown event type")
	ErrMissingPayload     = errors.New("missing event payload")
)

// EventType represents the kind of health event.
type EventType string

const (
	EventMedication EventType = "medication"
	EventSymptom    EventType = "symptom"
	EventLifestyle  EventType = "lifestyle"
	EventClinical   EventType = "clinical"
	EventInsight    EventType = "insight"
)

var AllEventTypes = []EventType{
	EventMedication,
	EventSymptom,
	EventLifestyle,
	EventClinical,
	EventInsight,
}

// Valid reports whether t is a member of the closed event type set.
func (t EventType) Valid() bool {
	switch t {
	case EventMedication, EventSymptom, EventLifestyle, EventClinical, EventInsight:
		return true
	}
	return false
}

// EventSource records how an event entered the system.
type EventSource string

const (
	SourceManual    EventSource = "manual"
	SourceImport    EventSource = "import"
	SourceAssistant EventSource = "assistant"
)

// VisibilityScope defines who may see an event.
type VisibilityScope string

const (
	// ScopePrivate means the event is visible only to its owner.
	ScopePrivate VisibilityScope = "private"
	// ScopeShared means the event may be surfaced to a care contact.
	ScopeShared VisibilityScope = "shared"
)

// AdherenceOutcome is the recorded result of a medication event.
// An empty value means no outcome was logged.
type AdherenceOutcome string

const (
	AdherenceTaken   AdherenceOutcome = "taken"
	AdherenceMissed  AdherenceOutcome = "missed"
	AdherenceSkipped AdherenceOutcome = "skipped"
)

// timestampLayouts are the accepted timestamp formats, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp wraps the absolute ISO-8601 time string an event was recorded at.
type Timestamp struct {
	Absolute string `json:"absolute"`
}

// Parse converts the absolute string to a time.Time. A timestamp that
// matches none of the accepted layouts is a contract violation and returns
// ErrMalformedTimestamp; it is never coerced to a zero time.
func (ts Timestamp) Parse() (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts.Absolute); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, ts.Absolute)
}

// NewTimestamp formats t as an RFC3339 absolute timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Absolute: t.UTC().Format(time.RFC3339)}
}

// Intensity is a free-form symptom intensity. Users log numbers ("7"),
// fractions ("7/10") or words ("severe"), and import sources may send raw
// JSON numbers, so decoding accepts both strings and numbers.
type Intensity string

// UnmarshalJSON implements json.Unmarshaler for Intensity.
func (i *Intensity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = Intensity(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*i = Intensity(strconv.FormatFloat(n, 'f', -1, 64))
		return nil
	}
	return fmt.Errorf("intensity: expected string or number, got %s", data)
}

// MedicationPayload carries the medication-specific event fields.
type MedicationPayload struct {
	Name             string           `json:"name"`
	Dosage           string           `json:"dosage,omitempty"`
	AdherenceOutcome AdherenceOutcome `json:"adherenceOutcome,omitempty"`
}

// SymptomPayload carries the symptom-specific event fields.
type SymptomPayload struct {
	Description string    `json:"description"`
	Intensity   Intensity `json:"intensity,omitempty"`
	Context     string    `json:"context,omitempty"`
}

// LifestylePayload carries free-text lifestyle observations.
type LifestylePayload struct {
	Sleep    string `json:"sleep,omitempty"`
	Stress   string `json:"stress,omitempty"`
	Activity string `json:"activity,omitempty"`
	Food     string `json:"food,omitempty"`
}

// ClinicalPayload carries clinical visit details.
type ClinicalPayload struct {
	VisitType string `json:"visitType,omitempty"`
	Diagnosis string `json:"diagnosis,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// InsightPayload carries generated insight text with its evidence trail.
// Insight events are never fed back into analytics.
type InsightPayload struct {
	Summary     string   `json:"summary"`
	EvidenceIDs []string `json:"evidenceIds,omitempty"`
}

// HealthEvent is one entry in an identity's health timeline. Exactly one
// payload field matching EventType is set; the union is closed and
// Validate rejects anything outside it.
type HealthEvent struct {
	ID              string             `json:"id"`
	Identity        string             `json:"identity"`
	EventType       EventType          `json:"eventType"`
	Timestamp       Timestamp          `json:"timestamp"`
	Source          EventSource        `json:"source,omitempty"`
	Confidence      float64            `json:"confidence,omitempty"`
	VisibilityScope VisibilityScope    `json:"visibilityScope,omitempty"`
	Medication      *MedicationPayload `json:"medication,omitempty"`
	Symptom         *SymptomPayload    `json:"symptom,omitempty"`
	Lifestyle       *LifestylePayload  `json:"lifestyle,omitempty"`
	Clinical        *ClinicalPayload   `json:"clinical,omitempty"`
	Insight         *InsightPayload    `json:"insight,omitempty"`
}

// NewHealthEvent creates an event with a fresh ID and default source/scope.
// The caller fills in the type-specific payload.
func NewHealthEvent(identity string, eventType EventType, at time.Time) *HealthEvent {
	return &HealthEvent{
		ID:              uuid.NewString(),
		Identity:        identity,
		EventType:       eventType,
		Timestamp:       NewTimestamp(at),
		Source:          SourceManual,
		Confidence:      1.0,
		VisibilityScope: ScopePrivate,
	}
}

// When parses the event timestamp, failing fast on malformed input.
func (e *HealthEvent) When() (time.Time, error) {
	t, err := e.Timestamp.Parse()
	if err != nil {
		return time.Time{}, fmt.Errorf("event %s: %w", e.ID, err)
	}
	return t, nil
}

// Validate checks the closed-union shape: a known event type, a parseable
// timestamp, and the payload matching the type. The switch is exhaustive
// so a new event kind cannot silently skip validation.
func (e *HealthEvent) Validate() error {
	if _, err := e.When(); err != nil {
		return err
	}
	switch e.EventType {
	case EventMedication:
		if e.Medication == nil {
			return fmt.Errorf("%w: medication", ErrMissingPayload)
		}
	case EventSymptom:
		if e.Symptom == nil {
			return fmt.Errorf("%w: symptom", ErrMissingPayload)
		}
	case EventLifestyle:
		if e.Lifestyle == nil {
			return fmt.Errorf("%w: lifestyle", ErrMissingPayload)
		}
	case EventClinical:
		if e.Clinical == nil {
			return fmt.Errorf("%w: clinical", ErrMissingPayload)
		}
	case EventInsight:
		if e.Insight == nil {
			return fmt.Errorf("%w: insight", ErrMissingPayload)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.EventType)
	}
	return nil
}

// JSONStringArray is a custom type for storing JSON string arrays in a
// single database column.
type JSONStringArray []string

// Scan implements sql.Scanner for JSONStringArray.
func (j *JSONStringArray) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("JSONStringArray: unsupported type %T", src)
	}

	if len(data) == 0 {
		*j = nil
		return nil
	}

	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer for JSONStringArray.
func (j JSONStringArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}
