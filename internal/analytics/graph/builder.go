// Package graph builds and maintains the weighted concept graph derived
// from an identity's event timeline. The same delta computation backs both
// the pure batch rebuild and the store-applied incremental path, so the
// two modes cannot drift apart.
package graph

import (
	"errors"
	"fmt"
	"time"

	"github.com/sentiq/healthiq/internal/analytics/concepts"
	"github.com/sentiq/healthiq/pkg/models"
)

// ErrInvalidConfig is returned when graph configuration fails validation.
var ErrInvalidConfig = errors.New("invalid graph config")

const (
	// initialEdgeWeight is the weight of a freshly created edge.
	initialEdgeWeight = 1.0
	// reinforcementStep is added per repeated observation of an edge.
	reinforcementStep = 0.5
)

// Config contains the graph construction parameters.
type Config struct {
	// CooccurrenceWindow is the maximum gap between two events for their
	// concepts to be linked (default 48h).
	CooccurrenceWindow time.Duration `json:"cooccurrence_window"`
	// DefaultTopN is the summary size used when callers pass topN <= 0
	// (default 15).
	DefaultTopN int `json:"default_top_n"`
	// MaxTopN caps requested summary sizes (default 50).
	MaxTopN int `json:"max_top_n"`
}

// DefaultConfig returns the default graph configuration.
func DefaultConfig() *Config {
	return &Config{
		CooccurrenceWindow: 48 * time.Hour,
		DefaultTopN:        15,
		MaxTopN:            50,
	}
}

// Validate rejects unusable configuration before any computation runs.
func (c *Config) Validate() error {
	if c.CooccurrenceWindow <= 0 {
		return fmt.Errorf("%w: cooccurrence window must be positive, got %s", ErrInvalidConfig, c.CooccurrenceWindow)
	}
	if c.DefaultTopN <= 0 {
		return fmt.Errorf("%w: default top-n must be positive, got %d", ErrInvalidConfig, c.DefaultTopN)
	}
	if c.MaxTopN < c.DefaultTopN {
		return fmt.Errorf("%w: max top-n %d below default %d", ErrInvalidConfig, c.MaxTopN, c.DefaultTopN)
	}
	return nil
}

// NodeOccurrence is one sighting of a concept.
type NodeOccurrence struct {
	Key        models.NodeKey
	ObservedAt time.Time
}

// EdgeObservation is one sighting of a directed concept link.
type EdgeObservation struct {
	Source     models.NodeKey
	Target     models.NodeKey
	Relation   models.RelationType
	ObservedAt time.Time
}

// Delta is the full set of graph mutations one event produces. Applying
// deltas event-by-event to any conforming graph reproduces the batch
// build exactly.
type Delta struct {
	EventID string
	Nodes   []NodeOccurrence
	Edges   []EdgeObservation
}

// Builder computes graph deltas and batch summaries.
type Builder struct {
	config    *Config
	extractor *concepts.Extractor
}

// NewBuilder creates a builder. Nil arguments fall back to defaults.
func NewBuilder(config *Config, extractor *concepts.Extractor) (*Builder, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if extractor == nil {
		extractor = concepts.NewExtractor(nil)
	}
	return &Builder{config: config, extractor: extractor}, nil
}

// Config returns the builder's configuration.
func (b *Builder) Config() *Config {
	return b.config
}

// Observe computes the delta for one new event against its history.
//
// History must contain every already-processed event within the
// co-occurrence window of the new event; a superset is fine because the
// window filter runs here. Events outside the window never contribute
// edges. History events are assumed to have had their own deltas applied
// already, so their concepts exist as nodes.
func (b *Builder) Observe(event *models.HealthEvent, history []*models.HealthEvent) (*Delta, error) {
	eventConcepts, err := b.extractor.Extract(event)
	if err != nil {
		return nil, err
	}

	delta := &Delta{EventID: event.ID}
	if len(eventConcepts) == 0 {
		return delta, nil
	}
	when := eventConcepts[0].Timestamp

	for _, c := range eventConcepts {
		delta.Nodes = append(delta.Nodes, NodeOccurrence{
			Key:        models.NodeKey{Concept: c.Concept, Category: c.Category},
			ObservedAt: c.Timestamp,
		})
	}

	for _, older := range history {
		olderWhen, err := older.When()
		if err != nil {
			return nil, err
		}
		gap := when.Sub(olderWhen)
		if gap < 0 {
			gap = -gap
		}
		if gap > b.config.CooccurrenceWindow {
			continue
		}

		olderConcepts, err := b.extractor.Extract(older)
		if err != nil {
			return nil, err
		}
		for _, oc := range olderConcepts {
			olderKey := models.NodeKey{Concept: oc.Concept, Category: oc.Category}
			for _, nc := range eventConcepts {
				newKey := models.NodeKey{Concept: nc.Concept, Category: nc.Category}
				if olderKey == newKey {
					continue
				}
				source, target := olderKey, newKey
				// Direction flows earlier to later; an equal-timestamp tie
				// keeps input order, so the history event stays the source.
				if olderWhen.After(when) {
					source, target = newKey, olderKey
				}
				delta.Edges = append(delta.Edges, EdgeObservation{
					Source:     source,
					Target:     target,
					Relation:   classifyRelation(oc.Category, nc.Category),
					ObservedAt: laterOf(olderWhen, when),
				})
			}
		}
	}

	triggers, err := b.extractor.ReportedTriggers(event)
	if err != nil {
		return nil, err
	}
	for _, tr := range triggers {
		triggerKey := models.NodeKey{Concept: tr.Concept, Category: tr.Category}
		delta.Nodes = append(delta.Nodes, NodeOccurrence{Key: triggerKey, ObservedAt: tr.Timestamp})
		for _, nc := range eventConcepts {
			delta.Edges = append(delta.Edges, EdgeObservation{
				Source:     triggerKey,
				Target:     models.NodeKey{Concept: nc.Concept, Category: nc.Category},
				Relation:   models.RelationReportedTrigger,
				ObservedAt: when,
			})
		}
	}

	return delta, nil
}

// Build performs a pure batch rebuild over an ordered event slice and
// returns the summary. Running it twice on the same input produces
// identical output.
func (b *Builder) Build(events []*models.HealthEvent, topN int) (*models.GraphSummary, error) {
	g := NewMemoryGraph()
	for i, event := range events {
		delta, err := b.Observe(event, events[:i])
		if err != nil {
			return nil, err
		}
		g.Apply(delta)
	}
	return g.Summary(b.ClampTopN(topN)), nil
}

// ClampTopN resolves a requested summary size: non-positive values use the
// default, oversized requests are capped.
func (b *Builder) ClampTopN(topN int) int {
	if topN <= 0 {
		return b.config.DefaultTopN
	}
	if topN > b.config.MaxTopN {
		return b.config.MaxTopN
	}
	return topN
}

// classifyRelation maps an unordered category pair to its edge relation.
func classifyRelation(a, b models.ConceptCategory) models.RelationType {
	switch {
	case categoryPairIs(a, b, models.CategoryMedication, models.CategorySymptom):
		return models.RelationMedicationResponse
	case categoryPairIs(a, b, models.CategoryLifestyle, models.CategorySymptom):
		return models.RelationTemporalSequence
	default:
		return models.RelationCoOccurrence
	}
}

func categoryPairIs(a, b, want1, want2 models.ConceptCategory) bool {
	return (a == want1 && b == want2) || (a == want2 && b == want1)
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
