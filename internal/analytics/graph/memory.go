package graph

import (
	"sort"

	"github.com/sentiq/healthiq/pkg/models"
)

// edgeKey identifies an edge inside the in-memory graph.
type edgeKey struct {
	Source   models.NodeKey
	Target   models.NodeKey
	Relation models.RelationType
}

// MemoryGraph is the in-memory concept graph used for batch rebuilds and
// as the reference implementation the persistent store must match.
type MemoryGraph struct {
	nodes map[models.NodeKey]*models.GraphNode
	edges map[edgeKey]*models.GraphEdge
}

// NewMemoryGraph creates an empty graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		nodes: make(map[models.NodeKey]*models.GraphNode),
		edges: make(map[edgeKey]*models.GraphEdge),
	}
}

// Apply upserts a delta. Node occurrences increment counts and extend the
// [firstSeen, lastSeen] range; edge observations create at weight 1.0 or
// reinforce by 0.5. Applying the same event history in the same order
// always yields the same graph.
func (g *MemoryGraph) Apply(delta *Delta) {
	for _, occ := range delta.Nodes {
		node, ok := g.nodes[occ.Key]
		if !ok {
			g.nodes[occ.Key] = &models.GraphNode{
				Key:             occ.Key,
				OccurrenceCount: 1,
				FirstSeen:       occ.ObservedAt,
				LastSeen:        occ.ObservedAt,
			}
			continue
		}
		node.OccurrenceCount++
		if occ.ObservedAt.Before(node.FirstSeen) {
			node.FirstSeen = occ.ObservedAt
		}
		if occ.ObservedAt.After(node.LastSeen) {
			node.LastSeen = occ.ObservedAt
		}
	}

	for _, obs := range delta.Edges {
		if obs.Source == obs.Target {
			// Self-loops are excluded at delta time already; keep the graph
			// clean even against a hand-built delta.
			continue
		}
		key := edgeKey{Source: obs.Source, Target: obs.Target, Relation: obs.Relation}
		edge, ok := g.edges[key]
		if !ok {
			g.edges[key] = &models.GraphEdge{
				Source:        obs.Source,
				Target:        obs.Target,
				Relation:      obs.Relation,
				Weight:        initialEdgeWeight,
				FirstObserved: obs.ObservedAt,
				LastObserved:  obs.ObservedAt,
			}
			continue
		}
		edge.Weight += reinforcementStep
		if obs.ObservedAt.After(edge.LastObserved) {
			edge.LastObserved = obs.ObservedAt
		}
	}
}

// NodeCount returns the number of distinct nodes.
func (g *MemoryGraph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges.
func (g *MemoryGraph) EdgeCount() int {
	return len(g.edges)
}

// Nodes returns all nodes in deterministic summary order.
func (g *MemoryGraph) Nodes() []models.GraphNode {
	out := make([]models.GraphNode, 0, len(g.nodes))
	for _, node := range g.nodes {
		out = append(out, *node)
	}
	SortNodes(out)
	return out
}

// Edges returns all edges in deterministic summary order.
func (g *MemoryGraph) Edges() []models.GraphEdge {
	out := make([]models.GraphEdge, 0, len(g.edges))
	for _, edge := range g.edges {
		out = append(out, *edge)
	}
	SortEdges(out)
	return out
}

// Summary returns the top-N view of the graph.
func (g *MemoryGraph) Summary(topN int) *models.GraphSummary {
	nodes := g.Nodes()
	edges := g.Edges()

	summary := &models.GraphSummary{
		NodeCount: len(nodes),
		EdgeCount: len(edges),
	}
	for i, node := range nodes {
		if i >= topN {
			break
		}
		summary.TopConcepts = append(summary.TopConcepts, models.ConceptSummary{
			Concept:         node.Key.Concept,
			Category:        node.Key.Category,
			OccurrenceCount: node.OccurrenceCount,
			FirstSeen:       node.FirstSeen,
			LastSeen:        node.LastSeen,
		})
	}
	for i, edge := range edges {
		if i >= topN {
			break
		}
		summary.StrongestEdges = append(summary.StrongestEdges, models.EdgeSummary{
			SourceConcept:  edge.Source.Concept,
			SourceCategory: edge.Source.Category,
			TargetConcept:  edge.Target.Concept,
			TargetCategory: edge.Target.Category,
			Relation:       edge.Relation,
			Weight:         edge.Weight,
			FirstObserved:  edge.FirstObserved,
		})
	}
	return summary
}

// SortNodes orders nodes by occurrence count descending, then firstSeen
// ascending, then concept and category ascending. The chain is total, so
// equal inputs always sort identically.
func SortNodes(nodes []models.GraphNode) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.OccurrenceCount != b.OccurrenceCount {
			return a.OccurrenceCount > b.OccurrenceCount
		}
		if !a.FirstSeen.Equal(b.FirstSeen) {
			return a.FirstSeen.Before(b.FirstSeen)
		}
		if a.Key.Concept != b.Key.Concept {
			return a.Key.Concept < b.Key.Concept
		}
		return a.Key.Category < b.Key.Category
	})
}

// SortEdges orders edges by weight descending, then firstObserved
// ascending, then source/target/relation ascending.
func SortEdges(edges []models.GraphEdge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if !a.FirstObserved.Equal(b.FirstObserved) {
			return a.FirstObserved.Before(b.FirstObserved)
		}
		if a.Source.Concept != b.Source.Concept {
			return a.Source.Concept < b.Source.Concept
		}
		if a.Source.Category != b.Source.Category {
			return a.Source.Category < b.Source.Category
		}
		if a.Target.Concept != b.Target.Concept {
			return a.Target.Concept < b.Target.Concept
		}
		if a.Target.Category != b.Target.Category {
			return a.Target.Category < b.Target.Category
		}
		return a.Relation < b.Relation
	})
}
