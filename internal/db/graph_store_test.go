package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentiq/healthiq/internal/analytics/graph"
	"github.com/sentiq/healthiq/pkg/models"
)

func testGraphStore(t *testing.T) (*GraphStore, *EventStore, func()) {
	t.Helper()

	store, cleanup := testStore(t)
	builder, err := graph.NewBuilder(nil, nil)
	require.NoError(t, err)

	events := NewEventStore(store)
	return NewGraphStore(store, events, builder), events, cleanup
}

// ingest stores the event and folds it into the graph, the order the
// server performs on every write.
func ingest(t *testing.T, events *EventStore, graphs *GraphStore, event *models.HealthEvent) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, events.Create(ctx, event))
	require.NoError(t, graphs.ProcessEvent(ctx, event))
}

func TestGraphStore_ProcessEventReinforcesEdges(t *testing.T) {
	graphs, events, cleanup := testGraphStore(t)
	defer cleanup()

	// The same headache/nausea pair on three days far enough apart that
	// only the intra-day pair links.
	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	seq := 0
	for day := 0; day < 3; day++ {
		at := base.Add(time.Duration(day) * 72 * time.Hour)
		seq++
		ingest(t, events, graphs, eventAt("self", seq, at, "headache", "6"))
		seq++
		ingest(t, events, graphs, eventAt("self", seq, at.Add(time.Hour), "nausea", "4"))
	}

	summary, err := graphs.Summary(context.Background(), "self", 10)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.NodeCount)
	require.Len(t, summary.TopConcepts, 2)
	assert.Equal(t, int64(3), summary.TopConcepts[0].OccurrenceCount)
	assert.Equal(t, int64(3), summary.TopConcepts[1].OccurrenceCount)

	require.Len(t, summary.StrongestEdges, 1)
	edge := summary.StrongestEdges[0]
	assert.Equal(t, "headache", edge.SourceConcept)
	assert.Equal(t, "nausea", edge.TargetConcept)
	assert.Equal(t, models.RelationCoOccurrence, edge.Relation)
	assert.InDelta(t, 2.0, edge.Weight, 1e-9)
}

func TestGraphStore_IncrementalMatchesRebuild(t *testing.T) {
	graphs, events, cleanup := testGraphStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	timeline := []*models.HealthEvent{
		eventAt("self", 1, base, "headache", "6"),
		eventAt("self", 2, base.Add(3*time.Hour), "nausea", "4"),
		eventAt("self", 3, base.Add(20*time.Hour), "dizziness", "3"),
		eventAt("self", 4, base.Add(80*time.Hour), "headache", "7"),
		eventAt("self", 5, base.Add(82*time.Hour), "fatigue", "5"),
		medicationAt("self", 6, base.Add(83*time.Hour), "Sumatriptan", models.AdherenceTaken),
		eventAt("self", 7, base.Add(170*time.Hour), "headache", "5"),
		eventAt("self", 8, base.Add(171*time.Hour), "nausea", "6"),
	}
	for _, event := range timeline {
		ingest(t, events, graphs, event)
	}

	incremental, err := graphs.Summary(ctx, "self", 25)
	require.NoError(t, err)

	rebuilt, err := graphs.Rebuild(ctx, "self", 25)
	require.NoError(t, err)

	assert.Equal(t, incremental, rebuilt)
}

func TestGraphStore_MatchesPureBatchBuild(t *testing.T) {
	graphs, events, cleanup := testGraphStore(t)
	defer cleanup()
	ctx := context.Background()

	builder, err := graph.NewBuilder(nil, nil)
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	timeline := []*models.HealthEvent{
		eventAt("self", 1, base, "headache", "6"),
		eventAt("self", 2, base.Add(time.Hour), "nausea", "4"),
		eventAt("self", 3, base.Add(96*time.Hour), "headache", "7"),
		eventAt("self", 4, base.Add(97*time.Hour), "nausea", "5"),
	}
	for _, event := range timeline {
		ingest(t, events, graphs, event)
	}

	stored, err := graphs.Summary(ctx, "self", 10)
	require.NoError(t, err)
	pure, err := builder.Build(timeline, 10)
	require.NoError(t, err)

	assert.Equal(t, pure.NodeCount, stored.NodeCount)
	assert.Equal(t, pure.EdgeCount, stored.EdgeCount)
	require.Len(t, stored.TopConcepts, len(pure.TopConcepts))
	for i := range pure.TopConcepts {
		assert.Equal(t, pure.TopConcepts[i].Concept, stored.TopConcepts[i].Concept)
		assert.Equal(t, pure.TopConcepts[i].Category, stored.TopConcepts[i].Category)
		assert.Equal(t, pure.TopConcepts[i].OccurrenceCount, stored.TopConcepts[i].OccurrenceCount)
		assert.True(t, pure.TopConcepts[i].FirstSeen.Equal(stored.TopConcepts[i].FirstSeen))
		assert.True(t, pure.TopConcepts[i].LastSeen.Equal(stored.TopConcepts[i].LastSeen))
	}
	require.Len(t, stored.StrongestEdges, len(pure.StrongestEdges))
	for i := range pure.StrongestEdges {
		assert.Equal(t, pure.StrongestEdges[i].SourceConcept, stored.StrongestEdges[i].SourceConcept)
		assert.Equal(t, pure.StrongestEdges[i].TargetConcept, stored.StrongestEdges[i].TargetConcept)
		assert.Equal(t, pure.StrongestEdges[i].Relation, stored.StrongestEdges[i].Relation)
		assert.InDelta(t, pure.StrongestEdges[i].Weight, stored.StrongestEdges[i].Weight, 1e-9)
	}
}

func TestGraphStore_IdentitiesAreIsolated(t *testing.T) {
	graphs, events, cleanup := testGraphStore(t)
	defer cleanup()
	ctx := context.Background()

	at := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	ingest(t, events, graphs, eventAt("alice", 1, at, "headache", "6"))
	ingest(t, events, graphs, eventAt("alice", 2, at.Add(time.Hour), "nausea", "4"))
	ingest(t, events, graphs, eventAt("bob", 1, at, "back pain", "5"))

	aliceSummary, err := graphs.Summary(ctx, "alice", 10)
	require.NoError(t, err)
	bobSummary, err := graphs.Summary(ctx, "bob", 10)
	require.NoError(t, err)

	assert.Equal(t, 2, aliceSummary.NodeCount)
	assert.Equal(t, 1, aliceSummary.EdgeCount)
	assert.Equal(t, 1, bobSummary.NodeCount)
	assert.Zero(t, bobSummary.EdgeCount)
}

func TestGraphStore_EmptyIdentityHasEmptySummary(t *testing.T) {
	graphs, _, cleanup := testGraphStore(t)
	defer cleanup()

	summary, err := graphs.Summary(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.Zero(t, summary.NodeCount)
	assert.Zero(t, summary.EdgeCount)
	assert.Empty(t, summary.TopConcepts)
	assert.Empty(t, summary.StrongestEdges)
}
