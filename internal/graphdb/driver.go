// Package graphdb mirrors the relational concept graph into an external
// property-graph database for visualization and ad-hoc Cypher queries.
// The SQL store stays authoritative; mirror failures degrade to warnings
// and never fail the write path.
package graphdb

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sentiq/healthiq/internal/config"
	"github.com/sentiq/healthiq/pkg/models"
)

// Driver writes graph state to the mirror backend.
type Driver interface {
	UpsertNode(ctx context.Context, identity string, node models.GraphNode) error
	UpsertEdge(ctx context.Context, identity string, edge models.GraphEdge) error
	// Clear removes every mirrored node and edge for the identity. Used
	// before replaying a rebuild.
	Clear(ctx context.Context, identity string) error
	Close(ctx context.Context) error
}

// New selects the driver from configuration: a Neo4j driver when the
// mirror is enabled with a URI, the no-op driver otherwise.
func New(ctx context.Context, cfg config.Neo4jConfig, logger zerolog.Logger) (Driver, error) {
	if !cfg.Enabled || cfg.URI == "" {
		return NoopDriver{}, nil
	}
	return NewNeo4jDriver(ctx, cfg, logger)
}

// NoopDriver discards every mirror write. It is the default when no
// graph database is configured.
type NoopDriver struct{}

func (NoopDriver) UpsertNode(ctx context.Context, identity string, node models.GraphNode) error {
	return nil
}

func (NoopDriver) UpsertEdge(ctx context.Context, identity string, edge models.GraphEdge) error {
	return nil
}

func (NoopDriver) Clear(ctx context.Context, identity string) error { return nil }

func (NoopDriver) Close(ctx context.Context) error { return nil }

// Mirror wraps a driver with the degrade-to-warning policy. Callers on
// the event write path use Mirror so a mirror outage cannot reject an
// event.
type Mirror struct {
	driver Driver
	logger zerolog.Logger
}

// NewMirror wraps driver. A nil driver behaves as no-op.
func NewMirror(driver Driver, logger zerolog.Logger) *Mirror {
	if driver == nil {
		driver = NoopDriver{}
	}
	return &Mirror{
		driver: driver,
		logger: logger.With().Str("component", "graph_mirror").Logger(),
	}
}

// Active reports whether writes reach a real backend. Callers skip the
// summary fetch when the mirror is a no-op.
func (m *Mirror) Active() bool {
	_, noop := m.driver.(NoopDriver)
	return !noop
}

// Apply mirrors a graph delta, logging failures instead of returning
// them.
func (m *Mirror) Apply(ctx context.Context, identity string, nodes []models.GraphNode, edges []models.GraphEdge) {
	for _, node := range nodes {
		if err := m.driver.UpsertNode(ctx, identity, node); err != nil {
			m.logger.Warn().Err(err).Str("identity", identity).Str("concept", node.Key.Concept).Msg("Graph mirror node write failed")
			return
		}
	}
	for _, edge := range edges {
		if err := m.driver.UpsertEdge(ctx, identity, edge); err != nil {
			m.logger.Warn().Err(err).Str("identity", identity).Str("relation", string(edge.Relation)).Msg("Graph mirror edge write failed")
			return
		}
	}
}

// ApplySummary mirrors a graph summary snapshot. Upserts are idempotent
// merges, so re-mirroring after every ingest converges on the stored
// graph.
func (m *Mirror) ApplySummary(ctx context.Context, identity string, summary *models.GraphSummary) {
	if summary == nil {
		return
	}
	nodes := make([]models.GraphNode, 0, len(summary.TopConcepts))
	for _, c := range summary.TopConcepts {
		nodes = append(nodes, models.GraphNode{
			Key:             models.NodeKey{Concept: c.Concept, Category: c.Category},
			OccurrenceCount: c.OccurrenceCount,
			FirstSeen:       c.FirstSeen,
			LastSeen:        c.LastSeen,
		})
	}
	edges := make([]models.GraphEdge, 0, len(summary.StrongestEdges))
	for _, e := range summary.StrongestEdges {
		edges = append(edges, models.GraphEdge{
			Source:        models.NodeKey{Concept: e.SourceConcept, Category: e.SourceCategory},
			Target:        models.NodeKey{Concept: e.TargetConcept, Category: e.TargetCategory},
			Relation:      e.Relation,
			Weight:        e.Weight,
			FirstObserved: e.FirstObserved,
			LastObserved:  e.FirstObserved,
		})
	}
	m.Apply(ctx, identity, nodes, edges)
}

// Reset clears the identity's mirrored graph, logging failures.
func (m *Mirror) Reset(ctx context.Context, identity string) {
	if err := m.driver.Clear(ctx, identity); err != nil {
		m.logger.Warn().Err(err).Str("identity", identity).Msg("Graph mirror clear failed")
	}
}

// Close releases the underlying driver.
func (m *Mirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}
