package concepts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/sentiq/healthiq/pkg/models"
)

// ExtractorSuite is a test suite for the concept extractor.
type ExtractorSuite struct {
	suite.Suite
	extractor *Extractor
	now       time.Time
}

func (s *ExtractorSuite) SetupTest() {
	s.extractor = NewExtractor(nil)
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestExtractorSuite(t *testing.T) {
	suite.Run(t, new(ExtractorSuite))
}

func (s *ExtractorSuite) symptomEvent(description string) *models.HealthEvent {
	e := models.NewHealthEvent("self", models.EventSymptom, s.now)
	e.Symptom = &models.SymptomPayload{Description: description}
	return e
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *ExtractorSuite) TestExtract_GoodScenarios_SymptomMultiMatch() {
	// Two synonym phrases in one description must both emit.
	concepts, err := s.extractor.Extract(s.symptomEvent("severe headache and nausea"))

	s.Require().NoError(err)
	s.Require().Len(concepts, 2)
	s.Equal("headache", concepts[0].Concept)
	s.Equal("nausea", concepts[1].Concept)
	s.Equal(models.CategorySymptom, concepts[0].Category)
	s.Equal(s.now, concepts[0].Timestamp)
}

func (s *ExtractorSuite) TestExtract_GoodScenarios_OverlappingPhrasesAccumulate() {
	// "panic attack" matches both the specific and the general row, in
	// table declaration order.
	concepts, err := s.extractor.Extract(s.symptomEvent("had a panic attack at work"))

	s.Require().NoError(err)
	s.Require().Len(concepts, 2)
	s.Equal("panic_attack", concepts[0].Concept)
	s.Equal("anxiety", concepts[1].Concept)
}

func (s *ExtractorSuite) TestExtract_GoodScenarios_Medication() {
	e := models.NewHealthEvent("self", models.EventMedication, s.now)
	e.Medication = &models.MedicationPayload{Name: "Magnesium Citrate", Dosage: "200mg"}

	concepts, err := s.extractor.Extract(e)

	s.Require().NoError(err)
	s.Require().Len(concepts, 1)
	s.Equal("magnesium_citrate", concepts[0].Concept)
	s.Equal(models.CategoryMedication, concepts[0].Category)
	s.Equal(e.ID, concepts[0].SourceEventID)
}

func (s *ExtractorSuite) TestExtract_GoodScenarios_LifestyleCombinedFields() {
	e := models.NewHealthEvent("self", models.EventLifestyle, s.now)
	e.Lifestyle = &models.LifestylePayload{
		Sleep:    "slept badly, maybe 4 hours",
		Activity: "quick gym session",
	}

	concepts, err := s.extractor.Extract(e)

	s.Require().NoError(err)
	s.Require().Len(concepts, 2)
	s.Equal("poor_sleep", concepts[0].Concept)
	s.Equal("gym_workout", concepts[1].Concept)
	s.Equal(models.CategoryLifestyle, concepts[0].Category)
}

func (s *ExtractorSuite) TestExtract_GoodScenarios_ClinicalWithDiagnosis() {
	e := models.NewHealthEvent("self", models.EventClinical, s.now)
	e.Clinical = &models.ClinicalPayload{VisitType: "gp", Diagnosis: "Tension Headache"}

	concepts, err := s.extractor.Extract(e)

	s.Require().NoError(err)
	s.Require().Len(concepts, 2)
	s.Equal(ConceptDoctorVisit, concepts[0].Concept)
	s.Equal("tension_headache", concepts[1].Concept)
	s.Equal(models.CategoryClinical, concepts[1].Category)
}

func (s *ExtractorSuite) TestExtract_GoodScenarios_InsightEmitsNothing() {
	e := models.NewHealthEvent("self", models.EventInsight, s.now)
	e.Insight = &models.InsightPayload{Summary: "weekly recap"}

	concepts, err := s.extractor.Extract(e)

	s.Require().NoError(err)
	s.Empty(concepts)
}

func (s *ExtractorSuite) TestExtract_GoodScenarios_Deterministic() {
	e := s.symptomEvent("migraine with nausea and blurred vision")

	first, err := s.extractor.Extract(e)
	s.Require().NoError(err)
	second, err := s.extractor.Extract(e)
	s.Require().NoError(err)

	s.Equal(first, second)
}

// =============================================================================
// EDGE CASES - Fallbacks and failure modes
// =============================================================================

func (s *ExtractorSuite) TestExtract_EdgeCases_UnmatchedSymptomFallsBackToTokens() {
	concepts, err := s.extractor.Extract(s.symptomEvent("weird pressure behind left eye"))

	s.Require().NoError(err)
	s.Require().Len(concepts, 1)
	s.Equal("weird_pressure_behind_left", concepts[0].Concept)
}

func (s *ExtractorSuite) TestExtract_EdgeCases_EmptySymptomDescription() {
	concepts, err := s.extractor.Extract(s.symptomEvent("   "))

	s.Require().NoError(err)
	s.Require().Len(concepts, 1)
	s.Equal(FallbackSymptom, concepts[0].Concept)
}

func (s *ExtractorSuite) TestExtract_EdgeCases_EmptyMedicationName() {
	e := models.NewHealthEvent("self", models.EventMedication, s.now)
	e.Medication = &models.MedicationPayload{Name: ""}

	concepts, err := s.extractor.Extract(e)

	s.Require().NoError(err)
	s.Require().Len(concepts, 1)
	s.Equal(FallbackMedication, concepts[0].Concept)
}

func (s *ExtractorSuite) TestExtract_EdgeCases_LifestyleNoMatchFallsBack() {
	e := models.NewHealthEvent("self", models.EventLifestyle, s.now)
	e.Lifestyle = &models.LifestylePayload{Food: "plain rice and chicken"}

	concepts, err := s.extractor.Extract(e)

	s.Require().NoError(err)
	s.Require().Len(concepts, 1)
	s.Equal(FallbackLifestyle, concepts[0].Concept)
}

func (s *ExtractorSuite) TestExtract_EdgeCases_BlankLifestyleEmitsNothing() {
	e := models.NewHealthEvent("self", models.EventLifestyle, s.now)
	e.Lifestyle = &models.LifestylePayload{}

	concepts, err := s.extractor.Extract(e)

	s.Require().NoError(err)
	s.Empty(concepts)
}

func (s *ExtractorSuite) TestExtract_EdgeCases_MalformedTimestampFailsFast() {
	e := s.symptomEvent("headache")
	e.Timestamp = models.Timestamp{Absolute: "sometime last week"}

	_, err := s.extractor.Extract(e)

	s.Require().Error(err)
	s.ErrorIs(err, models.ErrMalformedTimestamp)
}

func (s *ExtractorSuite) TestExtract_EdgeCases_UnknownEventType() {
	e := s.symptomEvent("headache")
	e.EventType = models.EventType("vitals")

	_, err := s.extractor.Extract(e)

	s.Require().Error(err)
	s.ErrorIs(err, models.ErrUnknownEventType)
}

// =============================================================================
// REPORTED TRIGGERS
// =============================================================================

func (s *ExtractorSuite) TestReportedTriggers_ContextNamesLifestyle() {
	e := s.symptomEvent("pounding headache")
	e.Symptom.Context = "after two coffees and a stressful meeting"

	triggers, err := s.extractor.ReportedTriggers(e)

	s.Require().NoError(err)
	s.Require().Len(triggers, 2)
	s.Equal("high_stress", triggers[0].Concept)
	s.Equal("caffeine", triggers[1].Concept)
	s.Equal(models.CategoryLifestyle, triggers[0].Category)
}

func (s *ExtractorSuite) TestReportedTriggers_NonSymptomReturnsNothing() {
	e := models.NewHealthEvent("self", models.EventLifestyle, s.now)
	e.Lifestyle = &models.LifestylePayload{Food: "coffee"}

	triggers, err := s.extractor.ReportedTriggers(e)

	s.Require().NoError(err)
	s.Empty(triggers)
}

// =============================================================================
// STANDALONE TESTS
// =============================================================================

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercase and punctuation", input: "Severe Headache!!", want: "severe headache"},
		{name: "keeps hyphens and apostrophes", input: "can't sleep, light-headed", want: "can't sleep light-headed"},
		{name: "folds unicode apostrophe", input: "can’t sleep", want: "can't sleep"},
		{name: "collapses whitespace", input: "  too   many\tspaces ", want: "too many spaces"},
		{name: "empty", input: "", want: ""},
		{name: "only punctuation", input: "?!.,;", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestParseIntensity(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   float64
		wantOK bool
	}{
		{name: "bare integer", input: "7", want: 7, wantOK: true},
		{name: "decimal", input: "6.5", want: 6.5, wantOK: true},
		{name: "fraction of ten", input: "7/10", want: 7, wantOK: true},
		{name: "fraction of five", input: "3/5", want: 6, wantOK: true},
		{name: "fraction with spaces", input: "8 / 10", want: 8, wantOK: true},
		{name: "clamps above scale", input: "15", want: 10, wantOK: true},
		{name: "zero", input: "0", want: 0, wantOK: true},
		{name: "keyword mild", input: "mild", want: 3, wantOK: true},
		{name: "keyword severe in sentence", input: "pretty severe today", want: 8, wantOK: true},
		{name: "keyword worst", input: "worst ever", want: 10, wantOK: true},
		{name: "number wins over keyword", input: "mild, maybe 8/10", want: 8, wantOK: true},
		{name: "unparseable", input: "hard to say", wantOK: false},
		{name: "empty", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseIntensity(tt.input)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
