package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/sentiq/healthiq/pkg/models"
)

// BuilderSuite is a test suite for the graph builder.
type BuilderSuite struct {
	suite.Suite
	builder *Builder
	base    time.Time
	seq     int
}

func (s *BuilderSuite) SetupTest() {
	builder, err := NewBuilder(nil, nil)
	s.Require().NoError(err)
	s.builder = builder
	s.base = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s.seq = 0
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}

func (s *BuilderSuite) nextID() string {
	s.seq++
	return "ev-" + string(rune('a'+s.seq-1))
}

func (s *BuilderSuite) symptomAt(description string, at time.Time) *models.HealthEvent {
	e := models.NewHealthEvent("self", models.EventSymptom, at)
	e.ID = s.nextID()
	e.Symptom = &models.SymptomPayload{Description: description}
	return e
}

func (s *BuilderSuite) medicationAt(name string, at time.Time) *models.HealthEvent {
	e := models.NewHealthEvent("self", models.EventMedication, at)
	e.ID = s.nextID()
	e.Medication = &models.MedicationPayload{Name: name}
	return e
}

func (s *BuilderSuite) lifestyleAt(sleep string, at time.Time) *models.HealthEvent {
	e := models.NewHealthEvent("self", models.EventLifestyle, at)
	e.ID = s.nextID()
	e.Lifestyle = &models.LifestylePayload{Sleep: sleep}
	return e
}

// buildIncrementally folds Observe+Apply event-by-event, the way the
// persistent store processes a live timeline.
func (s *BuilderSuite) buildIncrementally(events []*models.HealthEvent) *MemoryGraph {
	g := NewMemoryGraph()
	for i, event := range events {
		delta, err := s.builder.Observe(event, events[:i])
		s.Require().NoError(err)
		g.Apply(delta)
	}
	return g
}

func (s *BuilderSuite) mixedTimeline() []*models.HealthEvent {
	return []*models.HealthEvent{
		s.medicationAt("Sumatriptan", s.base),
		s.symptomAt("headache", s.base.Add(2*time.Hour)),
		s.lifestyleAt("poor sleep", s.base.Add(10*time.Hour)),
		s.symptomAt("headache and nausea", s.base.Add(26*time.Hour)),
		s.medicationAt("Sumatriptan", s.base.Add(30*time.Hour)),
		s.symptomAt("fatigue", s.base.Add(80*time.Hour)),
	}
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *BuilderSuite) TestBuild_GoodScenarios_RelationsAndDirection() {
	events := []*models.HealthEvent{
		s.medicationAt("Sumatriptan", s.base),
		s.symptomAt("headache", s.base.Add(2*time.Hour)),
		s.lifestyleAt("poor sleep", s.base.Add(12*time.Hour)),
	}

	summary, err := s.builder.Build(events, 0)
	s.Require().NoError(err)

	s.Equal(3, summary.NodeCount)
	s.Require().Len(summary.StrongestEdges, 3)

	byPair := map[string]models.EdgeSummary{}
	for _, e := range summary.StrongestEdges {
		byPair[e.SourceConcept+">"+e.TargetConcept] = e
	}

	// Medication precedes the symptom, so direction flows med -> symptom.
	medEdge := byPair["sumatriptan>headache"]
	s.Equal(models.RelationMedicationResponse, medEdge.Relation)
	s.InDelta(1.0, medEdge.Weight, 1e-9)

	// The symptom precedes the lifestyle entry, so the temporal_sequence
	// edge flows symptom -> lifestyle.
	seqEdge := byPair["headache>poor_sleep"]
	s.Equal(models.RelationTemporalSequence, seqEdge.Relation)

	coEdge := byPair["sumatriptan>poor_sleep"]
	s.Equal(models.RelationCoOccurrence, coEdge.Relation)
}

func (s *BuilderSuite) TestBuild_GoodScenarios_ReinforcementAddsHalf() {
	// Three well-separated co-occurrences of the same pair: 1.0, then +0.5
	// per repeat.
	events := []*models.HealthEvent{
		s.lifestyleAt("two coffees", s.base),
		s.symptomAt("headache", s.base.Add(2*time.Hour)),
		s.lifestyleAt("two coffees", s.base.Add(72*time.Hour)),
		s.symptomAt("headache", s.base.Add(74*time.Hour)),
		s.lifestyleAt("two coffees", s.base.Add(144*time.Hour)),
		s.symptomAt("headache", s.base.Add(146*time.Hour)),
	}

	summary, err := s.builder.Build(events, 0)
	s.Require().NoError(err)

	s.Require().NotEmpty(summary.StrongestEdges)
	top := summary.StrongestEdges[0]
	s.Equal("caffeine", top.SourceConcept)
	s.Equal("headache", top.TargetConcept)
	s.Equal(models.RelationTemporalSequence, top.Relation)
	s.InDelta(2.0, top.Weight, 1e-9)
}

func (s *BuilderSuite) TestBuild_GoodScenarios_ReportedTriggerFromContext() {
	e := s.symptomAt("pounding headache", s.base)
	e.Symptom.Context = "right after coffee"

	summary, err := s.builder.Build([]*models.HealthEvent{e}, 0)
	s.Require().NoError(err)

	s.Equal(2, summary.NodeCount)
	s.Require().Len(summary.StrongestEdges, 1)
	edge := summary.StrongestEdges[0]
	s.Equal("caffeine", edge.SourceConcept)
	s.Equal("headache", edge.TargetConcept)
	s.Equal(models.RelationReportedTrigger, edge.Relation)
}

func (s *BuilderSuite) TestBuild_GoodScenarios_NodeOccurrenceTracking() {
	events := s.mixedTimeline()

	summary, err := s.builder.Build(events, 0)
	s.Require().NoError(err)

	var headache *models.ConceptSummary
	for i := range summary.TopConcepts {
		if summary.TopConcepts[i].Concept == "headache" {
			headache = &summary.TopConcepts[i]
		}
	}
	s.Require().NotNil(headache)
	s.Equal(int64(2), headache.OccurrenceCount)
	s.Equal(s.base.Add(2*time.Hour), headache.FirstSeen)
	s.Equal(s.base.Add(26*time.Hour), headache.LastSeen)
}

// =============================================================================
// DETERMINISM AND EQUIVALENCE
// =============================================================================

func (s *BuilderSuite) TestBuild_Determinism_RebuildIsIdentical() {
	events := s.mixedTimeline()

	first, err := s.builder.Build(events, 0)
	s.Require().NoError(err)
	second, err := s.builder.Build(events, 0)
	s.Require().NoError(err)

	s.Equal(first, second)
}

func (s *BuilderSuite) TestBuild_Equivalence_IncrementalMatchesBatch() {
	events := s.mixedTimeline()

	batch, err := s.builder.Build(events, 0)
	s.Require().NoError(err)

	incremental := s.buildIncrementally(events).Summary(s.builder.ClampTopN(0))

	s.Equal(batch, incremental)
}

func (s *BuilderSuite) TestBuild_Equivalence_WindowSupersetHistoryIsSafe() {
	// Passing full history instead of the trimmed window must not change
	// the result; the window filter runs inside Observe.
	events := s.mixedTimeline()

	g := NewMemoryGraph()
	for i, event := range events {
		// Deliberately pass everything seen so far, not just the window.
		delta, err := s.builder.Observe(event, events[:i])
		s.Require().NoError(err)
		g.Apply(delta)
	}

	batch, err := s.builder.Build(events, 0)
	s.Require().NoError(err)
	s.Equal(batch, g.Summary(s.builder.ClampTopN(0)))
}

func (s *BuilderSuite) TestBuild_NoSelfLoops() {
	// Repeated identical symptoms within the window must not link a node
	// to itself.
	events := []*models.HealthEvent{
		s.symptomAt("headache", s.base),
		s.symptomAt("headache", s.base.Add(3*time.Hour)),
		s.symptomAt("headache", s.base.Add(6*time.Hour)),
	}

	summary, err := s.builder.Build(events, 0)
	s.Require().NoError(err)

	s.Equal(1, summary.NodeCount)
	s.Empty(summary.StrongestEdges)
	for _, e := range summary.StrongestEdges {
		s.False(e.SourceConcept == e.TargetConcept && e.SourceCategory == e.TargetCategory)
	}
}

// =============================================================================
// EDGE CASES
// =============================================================================

func (s *BuilderSuite) TestObserve_EdgeCases_OutsideWindowNoEdges() {
	first := s.symptomAt("headache", s.base)
	second := s.symptomAt("nausea", s.base.Add(49*time.Hour))

	delta, err := s.builder.Observe(second, []*models.HealthEvent{first})
	s.Require().NoError(err)

	s.Len(delta.Nodes, 1)
	s.Empty(delta.Edges)
}

func (s *BuilderSuite) TestObserve_EdgeCases_ExactWindowBoundaryLinks() {
	first := s.symptomAt("headache", s.base)
	second := s.symptomAt("nausea", s.base.Add(48*time.Hour))

	delta, err := s.builder.Observe(second, []*models.HealthEvent{first})
	s.Require().NoError(err)

	s.Len(delta.Edges, 1)
}

func (s *BuilderSuite) TestObserve_EdgeCases_MalformedHistoryTimestampFailsFast() {
	first := s.symptomAt("headache", s.base)
	first.Timestamp = models.Timestamp{Absolute: "whenever"}
	second := s.symptomAt("nausea", s.base.Add(time.Hour))

	_, err := s.builder.Observe(second, []*models.HealthEvent{first})

	s.Require().Error(err)
	s.ErrorIs(err, models.ErrMalformedTimestamp)
}

func (s *BuilderSuite) TestObserve_EdgeCases_InsightProducesEmptyDelta() {
	e := models.NewHealthEvent("self", models.EventInsight, s.base)
	e.Insight = &models.InsightPayload{Summary: "recap"}

	delta, err := s.builder.Observe(e, nil)
	s.Require().NoError(err)

	s.Empty(delta.Nodes)
	s.Empty(delta.Edges)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestNewBuilderRejectsInvalidConfig(t *testing.T) {
	_, err := NewBuilder(&Config{CooccurrenceWindow: -time.Hour, DefaultTopN: 15, MaxTopN: 50}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewBuilder(&Config{CooccurrenceWindow: time.Hour, DefaultTopN: 0, MaxTopN: 50}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewBuilder(&Config{CooccurrenceWindow: time.Hour, DefaultTopN: 15, MaxTopN: 10}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClampTopN(t *testing.T) {
	builder, err := NewBuilder(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 15, builder.ClampTopN(0))
	assert.Equal(t, 15, builder.ClampTopN(-3))
	assert.Equal(t, 7, builder.ClampTopN(7))
	assert.Equal(t, 50, builder.ClampTopN(100))
}
