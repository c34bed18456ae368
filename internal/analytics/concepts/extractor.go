// Package concepts turns raw health events into normalized concept labels.
// Extraction is pure and deterministic: the same event always yields the
// same concepts in the same order, with no I/O.
package concepts

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/sentiq/healthiq/pkg/models"
)

const (
	// FallbackSymptom is emitted when a symptom description is blank.
	FallbackSymptom = "unclassified_symptom"
	// FallbackMedication is emitted when a medication has no name.
	FallbackMedication = "unknown_medication"
	// FallbackLifestyle is emitted when lifestyle text matches no phrase.
	FallbackLifestyle = "lifestyle_logged"
	// ConceptDoctorVisit is emitted for every clinical event.
	ConceptDoctorVisit = "doctor_visit"

	// fallbackTokenLimit caps how many description tokens form a fallback
	// symptom concept.
	fallbackTokenLimit = 4
)

// Extractor matches event text against an ordered lexicon.
type Extractor struct {
	lexicon *Lexicon
}

// NewExtractor creates an extractor. A nil lexicon uses the built-in
// tables.
func NewExtractor(lexicon *Lexicon) *Extractor {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	return &Extractor{lexicon: lexicon}
}

// Extract maps one event to zero or more concepts. The only error is a
// malformed timestamp, which fails fast rather than corrupting downstream
// windowing. Insight events never produce concepts.
func (x *Extractor) Extract(event *models.HealthEvent) ([]models.ExtractedConcept, error) {
	when, err := event.When()
	if err != nil {
		return nil, err
	}

	switch event.EventType {
	case models.EventSymptom:
		return x.extractSymptom(event, when), nil
	case models.EventMedication:
		return x.extractMedication(event, when), nil
	case models.EventLifestyle:
		return x.extractLifestyle(event, when), nil
	case models.EventClinical:
		return x.extractClinical(event, when), nil
	case models.EventInsight:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownEventType, event.EventType)
	}
}

// ReportedTriggers extracts lifestyle concepts the user named in a symptom
// event's context field ("after two coffees"). These become
// reported_trigger edges toward the event's own symptom concepts.
func (x *Extractor) ReportedTriggers(event *models.HealthEvent) ([]models.ExtractedConcept, error) {
	if event.EventType != models.EventSymptom || event.Symptom == nil || event.Symptom.Context == "" {
		return nil, nil
	}
	when, err := event.When()
	if err != nil {
		return nil, err
	}

	var out []models.ExtractedConcept
	for _, concept := range matchPhrases(x.lexicon.Lifestyle, Normalize(event.Symptom.Context)) {
		out = append(out, models.ExtractedConcept{
			Concept:       concept,
			Category:      models.CategoryLifestyle,
			SourceEventID: event.ID,
			Timestamp:     when,
		})
	}
	return out, nil
}

func (x *Extractor) extractSymptom(event *models.HealthEvent, when time.Time) []models.ExtractedConcept {
	var description string
	if event.Symptom != nil {
		description = event.Symptom.Description
	}
	normalized := Normalize(description)

	labels := matchPhrases(x.lexicon.Symptoms, normalized)
	if len(labels) == 0 {
		labels = []string{fallbackSymptomLabel(normalized)}
	}
	return buildConcepts(labels, models.CategorySymptom, event.ID, when)
}

func (x *Extractor) extractMedication(event *models.HealthEvent, when time.Time) []models.ExtractedConcept {
	var name string
	if event.Medication != nil {
		name = event.Medication.Name
	}
	label := conceptLabel(Normalize(name))
	if label == "" {
		label = FallbackMedication
	}
	return buildConcepts([]string{label}, models.CategoryMedication, event.ID, when)
}

func (x *Extractor) extractLifestyle(event *models.HealthEvent, when time.Time) []models.ExtractedConcept {
	var parts []string
	if event.Lifestyle != nil {
		parts = []string{event.Lifestyle.Sleep, event.Lifestyle.Stress, event.Lifestyle.Activity, event.Lifestyle.Food}
	}
	normalized := Normalize(strings.Join(parts, " "))
	if normalized == "" {
		return nil
	}

	labels := matchPhrases(x.lexicon.Lifestyle, normalized)
	if len(labels) == 0 {
		labels = []string{FallbackLifestyle}
	}
	return buildConcepts(labels, models.CategoryLifestyle, event.ID, when)
}

func (x *Extractor) extractClinical(event *models.HealthEvent, when time.Time) []models.ExtractedConcept {
	labels := []string{ConceptDoctorVisit}
	if event.Clinical != nil {
		if diagnosis := conceptLabel(Normalize(event.Clinical.Diagnosis)); diagnosis != "" {
			labels = append(labels, diagnosis)
		}
	}
	return buildConcepts(labels, models.CategoryClinical, event.ID, when)
}

// matchPhrases returns the concept of every table row whose phrase occurs
// in text, in table order. All overlapping matches accumulate; nothing
// collapses them to a single winner.
func matchPhrases(table []PhraseMapping, text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for _, row := range table {
		if strings.Contains(text, row.Phrase) {
			out = append(out, row.Concept)
		}
	}
	return out
}

// fallbackSymptomLabel joins the first few normalized tokens so an
// unmatched description still lands on a stable node.
func fallbackSymptomLabel(normalized string) string {
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return FallbackSymptom
	}
	if len(tokens) > fallbackTokenLimit {
		tokens = tokens[:fallbackTokenLimit]
	}
	return strings.Join(tokens, "_")
}

// conceptLabel converts normalized free text into a label by joining its
// tokens with underscores.
func conceptLabel(normalized string) string {
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return ""
	}
	return strings.Join(tokens, "_")
}

func buildConcepts(labels []string, category models.ConceptCategory, eventID string, when time.Time) []models.ExtractedConcept {
	out := make([]models.ExtractedConcept, 0, len(labels))
	for _, label := range labels {
		out = append(out, models.ExtractedConcept{
			Concept:       label,
			Category:      category,
			SourceEventID: eventID,
			Timestamp:     when,
		})
	}
	return out
}

// Normalize lowercases text, strips punctuation except hyphens and
// apostrophes, and collapses whitespace runs. Unicode right quotes fold to
// plain apostrophes so "can’t" and "can't" normalize identically.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '\'':
			b.WriteRune(r)
		case r == '’':
			b.WriteRune('\'')
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
