package graphdb

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"github.com/sentiq/healthiq/internal/config"
	"github.com/sentiq/healthiq/pkg/models"
)

const connectTimeout = 10 * time.Second

// Neo4jDriver mirrors concepts and relations into Neo4j. Nodes carry the
// Concept label keyed by (identity, concept, category); relations use a
// single RELATES type with the semantic relation as a property, which
// keeps MERGE keys uniform across relation kinds.
type Neo4jDriver struct {
	driver neo4j.DriverWithContext
	logger zerolog.Logger
}

// NewNeo4jDriver connects, verifies connectivity, and creates the lookup
// indexes. Index creation failures are logged and tolerated since the
// index may already exist.
func NewNeo4jDriver(ctx context.Context, cfg config.Neo4jConfig, logger zerolog.Logger) (*Neo4jDriver, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}

	d := &Neo4jDriver{
		driver: driver,
		logger: logger.With().Str("component", "neo4j").Logger(),
	}
	d.ensureIndexes(ctx)
	return d, nil
}

func (d *Neo4jDriver) ensureIndexes(ctx context.Context) {
	queries := []string{
		"CREATE INDEX concept_identity IF NOT EXISTS FOR (c:Concept) ON (c.identity)",
		"CREATE INDEX concept_key IF NOT EXISTS FOR (c:Concept) ON (c.identity, c.concept, c.category)",
	}
	for _, query := range queries {
		if _, err := neo4j.ExecuteQuery(ctx, d.driver, query, nil, neo4j.EagerResultTransformer); err != nil {
			d.logger.Warn().Err(err).Str("query", query).Msg("Index creation failed")
		}
	}
}

// UpsertNode merges the concept node and refreshes its counters.
func (d *Neo4jDriver) UpsertNode(ctx context.Context, identity string, node models.GraphNode) error {
	query := `
MERGE (c:Concept {identity: $identity, concept: $concept, category: $category})
ON CREATE SET c.occurrences = $occurrences, c.first_seen = $firstSeen, c.last_seen = $lastSeen
ON MATCH SET c.occurrences = $occurrences, c.last_seen = $lastSeen`
	params := map[string]any{
		"identity":    identity,
		"concept":     node.Key.Concept,
		"category":    string(node.Key.Category),
		"occurrences": node.OccurrenceCount,
		"firstSeen":   node.FirstSeen.UTC().Format(time.RFC3339Nano),
		"lastSeen":    node.LastSeen.UTC().Format(time.RFC3339Nano),
	}
	if _, err := neo4j.ExecuteQuery(ctx, d.driver, query, params, neo4j.EagerResultTransformer); err != nil {
		return fmt.Errorf("upsert node %s/%s: %w", node.Key.Concept, node.Key.Category, err)
	}
	return nil
}

// UpsertEdge merges both endpoint nodes and the relation between them.
func (d *Neo4jDriver) UpsertEdge(ctx context.Context, identity string, edge models.GraphEdge) error {
	query := `
MERGE (a:Concept {identity: $identity, concept: $sourceConcept, category: $sourceCategory})
MERGE (b:Concept {identity: $identity, concept: $targetConcept, category: $targetCategory})
MERGE (a)-[r:RELATES {relation: $relation}]->(b)
ON CREATE SET r.weight = $weight, r.first_observed = $firstObserved, r.last_observed = $lastObserved
ON MATCH SET r.weight = $weight, r.last_observed = $lastObserved`
	params := map[string]any{
		"identity":       identity,
		"sourceConcept":  edge.Source.Concept,
		"sourceCategory": string(edge.Source.Category),
		"targetConcept":  edge.Target.Concept,
		"targetCategory": string(edge.Target.Category),
		"relation":       string(edge.Relation),
		"weight":         edge.Weight,
		"firstObserved":  edge.FirstObserved.UTC().Format(time.RFC3339Nano),
		"lastObserved":   edge.LastObserved.UTC().Format(time.RFC3339Nano),
	}
	if _, err := neo4j.ExecuteQuery(ctx, d.driver, query, params, neo4j.EagerResultTransformer); err != nil {
		return fmt.Errorf("upsert edge %s->%s: %w", edge.Source.Concept, edge.Target.Concept, err)
	}
	return nil
}

// Clear detaches and deletes every concept mirrored for the identity.
func (d *Neo4jDriver) Clear(ctx context.Context, identity string) error {
	query := "MATCH (c:Concept {identity: $identity}) DETACH DELETE c"
	params := map[string]any{"identity": identity}
	if _, err := neo4j.ExecuteQuery(ctx, d.driver, query, params, neo4j.EagerResultTransformer); err != nil {
		return fmt.Errorf("clear mirror for %s: %w", identity, err)
	}
	return nil
}

// Close shuts down the underlying driver.
func (d *Neo4jDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}
