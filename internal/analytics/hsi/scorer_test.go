package hsi

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/sentiq/healthiq/pkg/models"
)

// ScorerSuite is a test suite for the HSI scorer.
type ScorerSuite struct {
	suite.Suite
	scorer *Scorer
	now    time.Time
	seq    int
}

func (s *ScorerSuite) SetupTest() {
	scorer, err := NewScorer(nil)
	s.Require().NoError(err)
	s.scorer = scorer
	s.now = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	s.seq = 0
}

func TestScorerSuite(t *testing.T) {
	suite.Run(t, new(ScorerSuite))
}

func (s *ScorerSuite) nextID() string {
	s.seq++
	return fmt.Sprintf("ev-%03d", s.seq)
}

// symptomDaysAgo creates a symptom event the given number of whole days
// before the suite clock.
func (s *ScorerSuite) symptomDaysAgo(days int, description, intensity string) *models.HealthEvent {
	e := models.NewHealthEvent("self", models.EventSymptom, s.now.Add(-time.Duration(days)*24*time.Hour))
	e.ID = s.nextID()
	e.Symptom = &models.SymptomPayload{Description: description, Intensity: models.Intensity(intensity)}
	return e
}

func (s *ScorerSuite) medicationDaysAgo(days int, outcome models.AdherenceOutcome) *models.HealthEvent {
	e := models.NewHealthEvent("self", models.EventMedication, s.now.Add(-time.Duration(days)*24*time.Hour))
	e.ID = s.nextID()
	e.Medication = &models.MedicationPayload{Name: "Sumatriptan", AdherenceOutcome: outcome}
	return e
}

func (s *ScorerSuite) lifestyleDaysAgo(days int) *models.HealthEvent {
	e := models.NewHealthEvent("self", models.EventLifestyle, s.now.Add(-time.Duration(days)*24*time.Hour))
	e.ID = s.nextID()
	e.Lifestyle = &models.LifestylePayload{Sleep: "slept well"}
	return e
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *ScorerSuite) TestCompute_GoodScenarios_EmptyInputIsNeutral() {
	score, err := s.scorer.Compute(nil, 0, s.now)
	s.Require().NoError(err)

	s.Equal(50.0, score.SymptomRegularity)
	s.Equal(50.0, score.BehavioralConsistency)
	s.Equal(50.0, score.TrajectoryDirection)
	s.Equal(50.0, score.Score)
	s.Equal(models.ConfidenceLow, score.DataConfidence)
	s.Equal(30, score.WindowDays)
	s.Empty(score.ContributingEventIDs)
}

func (s *ScorerSuite) TestCompute_GoodScenarios_SteadySymptomsScoreHighRegularity() {
	// One identical symptom per day: zero count variation, zero intensity
	// variation, single description. Only the diversity penalty applies.
	var events []*models.HealthEvent
	for d := 0; d < 30; d++ {
		events = append(events, s.symptomDaysAgo(d, "headache", "5"))
	}

	score, err := s.scorer.Compute(events, 30, s.now)
	s.Require().NoError(err)

	s.InDelta(98.0, score.SymptomRegularity, 1e-9)
}

func (s *ScorerSuite) TestCompute_GoodScenarios_AdherenceOnlyConsistency() {
	events := []*models.HealthEvent{
		s.medicationDaysAgo(1, models.AdherenceTaken),
		s.medicationDaysAgo(3, models.AdherenceTaken),
		s.medicationDaysAgo(5, models.AdherenceTaken),
		s.medicationDaysAgo(7, models.AdherenceMissed),
		s.medicationDaysAgo(9, models.AdherenceMissed),
	}

	score, err := s.scorer.Compute(events, 30, s.now)
	s.Require().NoError(err)

	s.InDelta(60.0, score.BehavioralConsistency, 1e-9)
}

func (s *ScorerSuite) TestCompute_GoodScenarios_CoverageOnlyConsistency() {
	// Lifestyle entries on 15 distinct days of a 30-day window.
	var events []*models.HealthEvent
	for d := 0; d < 15; d++ {
		events = append(events, s.lifestyleDaysAgo(d))
	}

	score, err := s.scorer.Compute(events, 30, s.now)
	s.Require().NoError(err)

	s.InDelta(50.0, score.BehavioralConsistency, 1e-9)
}

func (s *ScorerSuite) TestCompute_GoodScenarios_BlendedConsistency() {
	events := []*models.HealthEvent{
		s.medicationDaysAgo(1, models.AdherenceTaken),
		s.medicationDaysAgo(2, models.AdherenceTaken),
		s.lifestyleDaysAgo(1),
		s.lifestyleDaysAgo(5),
		s.lifestyleDaysAgo(9),
	}

	score, err := s.scorer.Compute(events, 30, s.now)
	s.Require().NoError(err)

	// 0.6*100 adherence + 0.4*10 coverage (3 of 30 days).
	s.InDelta(64.0, score.BehavioralConsistency, 1e-9)
}

func (s *ScorerSuite) TestCompute_GoodScenarios_ImprovingBurdenScoresHighTrajectory() {
	// Intensity falling steadily over the window: the slope is negative, so
	// the trajectory score climbs above neutral.
	var events []*models.HealthEvent
	intensities := []string{"9", "8", "7", "6", "5", "4", "3", "2"}
	for i, intensity := range intensities {
		events = append(events, s.symptomDaysAgo(2*(len(intensities)-1-i), "headache", intensity))
	}

	score, err := s.scorer.Compute(events, 30, s.now)
	s.Require().NoError(err)

	s.Greater(score.TrajectoryDirection, 50.0)
}

// =============================================================================
// SPEC PROPERTIES
// =============================================================================

func (s *ScorerSuite) TestCompute_Properties_EscalatingIntensityFloorsTrajectory() {
	// 12 symptom events climbing 3 -> 8.5: a strong positive burden slope
	// drives the trajectory score to the bottom of its range.
	var events []*models.HealthEvent
	for i := 0; i < 12; i++ {
		intensity := fmt.Sprintf("%.1f", 3.0+0.5*float64(i))
		events = append(events, s.symptomDaysAgo(2*(11-i), "migraine", intensity))
	}

	score, err := s.scorer.Compute(events, 30, s.now)
	s.Require().NoError(err)

	s.Less(score.TrajectoryDirection, 10.0)
	s.GreaterOrEqual(score.TrajectoryDirection, 0.0)
}

func (s *ScorerSuite) TestCompute_Properties_AllScoresWithinBounds() {
	scenarios := [][]*models.HealthEvent{
		nil,
		{s.symptomDaysAgo(0, "unbearable stabbing pain", "10/10")},
		{
			s.symptomDaysAgo(0, "headache", "10"),
			s.symptomDaysAgo(0, "nausea", "10"),
			s.symptomDaysAgo(0, "dizzy", "10"),
			s.symptomDaysAgo(29, "fatigue", "0"),
			s.medicationDaysAgo(2, models.AdherenceMissed),
			s.medicationDaysAgo(4, models.AdherenceMissed),
		},
	}

	for _, events := range scenarios {
		score, err := s.scorer.Compute(events, 30, s.now)
		s.Require().NoError(err)

		for name, v := range map[string]float64{
			"composite":   score.Score,
			"regularity":  score.SymptomRegularity,
			"consistency": score.BehavioralConsistency,
			"trajectory":  score.TrajectoryDirection,
		} {
			s.GreaterOrEqualf(v, 0.0, "%s below range", name)
			s.LessOrEqualf(v, 100.0, "%s above range", name)
		}
	}
}

func (s *ScorerSuite) TestCompute_Properties_FewSymptomsUseNeutralDefault() {
	events := []*models.HealthEvent{
		s.symptomDaysAgo(1, "headache", "7"),
		s.symptomDaysAgo(4, "headache", "8"),
	}

	score, err := s.scorer.Compute(events, 30, s.now)
	s.Require().NoError(err)

	s.Equal(50.0, score.SymptomRegularity)
	s.Equal(50.0, score.TrajectoryDirection)
}

func (s *ScorerSuite) TestCompute_Properties_InsightEventsExcluded() {
	insight := models.NewHealthEvent("self", models.EventInsight, s.now.Add(-time.Hour))
	insight.ID = s.nextID()
	insight.Insight = &models.InsightPayload{Summary: "weekly recap"}

	score, err := s.scorer.Compute([]*models.HealthEvent{insight}, 30, s.now)
	s.Require().NoError(err)

	s.Empty(score.ContributingEventIDs)
	s.Equal(models.ConfidenceLow, score.DataConfidence)
}

// =============================================================================
// DATA CONFIDENCE
// =============================================================================

func (s *ScorerSuite) TestCompute_DataConfidence_Grades() {
	var high []*models.HealthEvent
	for d := 0; d < 22; d++ {
		high = append(high, s.symptomDaysAgo(d, "headache", "5"))
	}
	for d := 0; d < 5; d++ {
		high = append(high, s.medicationDaysAgo(d, models.AdherenceTaken))
		high = append(high, s.lifestyleDaysAgo(d))
	}

	score, err := s.scorer.Compute(high, 30, s.now)
	s.Require().NoError(err)
	s.Equal(models.ConfidenceHigh, score.DataConfidence)

	var medium []*models.HealthEvent
	for d := 0; d < 15; d++ {
		medium = append(medium, s.symptomDaysAgo(d, "headache", "5"))
	}
	medium = append(medium, s.medicationDaysAgo(2, models.AdherenceTaken))

	score, err = s.scorer.Compute(medium, 30, s.now)
	s.Require().NoError(err)
	s.Equal(models.ConfidenceMedium, score.DataConfidence)

	score, err = s.scorer.Compute(medium[:5], 30, s.now)
	s.Require().NoError(err)
	s.Equal(models.ConfidenceLow, score.DataConfidence)
}

// =============================================================================
// ERROR SCENARIOS
// =============================================================================

func (s *ScorerSuite) TestCompute_ErrorScenarios_MalformedTimestampFailsFast() {
	e := s.symptomDaysAgo(1, "headache", "7")
	e.Timestamp = models.Timestamp{Absolute: "yesterday-ish"}

	_, err := s.scorer.Compute([]*models.HealthEvent{e}, 30, s.now)

	s.Require().Error(err)
	s.ErrorIs(err, models.ErrMalformedTimestamp)
}

func (s *ScorerSuite) TestCompute_ErrorScenarios_NegativeWindowRejected() {
	_, err := s.scorer.Compute(nil, -7, s.now)

	s.Require().Error(err)
	s.ErrorIs(err, ErrInvalidConfig)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestNewScorerRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowDays = 0
	_, err := NewScorer(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.RegularityWeight = 0.5 // weights no longer sum to 1
	_, err = NewScorer(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.AdherenceBlend = 1.4
	_, err = NewScorer(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestUpdateConfigKeepsOldOnInvalid(t *testing.T) {
	scorer, err := NewScorer(nil)
	require.NoError(t, err)

	bad := DefaultConfig()
	bad.WindowDays = -1
	require.Error(t, scorer.UpdateConfig(bad))
	assert.Equal(t, 30, scorer.GetConfig().WindowDays)

	good := DefaultConfig()
	good.WindowDays = 14
	require.NoError(t, scorer.UpdateConfig(good))
	assert.Equal(t, 14, scorer.GetConfig().WindowDays)
}
