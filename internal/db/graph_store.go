package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sentiq/healthiq/internal/analytics/graph"
	"github.com/sentiq/healthiq/pkg/models"
)

// GraphStore maintains the persistent incremental concept graph. It applies
// the same deltas as the in-memory batch build, so processing events one at
// a time converges on the exact graph a full rebuild produces.
//
// Writes for the same identity are serialized through a per-identity mutex;
// different identities never contend.
type GraphStore struct {
	store     *Store
	events    *EventStore
	builderMu sync.RWMutex
	builder   *graph.Builder
	locksMu   sync.Mutex
	locks     map[string]*sync.Mutex
}

// NewGraphStore creates a graph store around an existing event store.
func NewGraphStore(store *Store, events *EventStore, builder *graph.Builder) *GraphStore {
	return &GraphStore{
		store:   store,
		events:  events,
		builder: builder,
		locks:   make(map[string]*sync.Mutex),
	}
}

// SetBuilder swaps the delta builder. Settings reloads call this so new
// graph thresholds apply to subsequent writes without reopening the store.
func (s *GraphStore) SetBuilder(builder *graph.Builder) {
	s.builderMu.Lock()
	s.builder = builder
	s.builderMu.Unlock()
}

func (s *GraphStore) deltaBuilder() *graph.Builder {
	s.builderMu.RLock()
	defer s.builderMu.RUnlock()
	return s.builder
}

// identityLock returns the mutex guarding one identity's graph rows.
func (s *GraphStore) identityLock(identity string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[identity]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[identity] = lock
	}
	return lock
}

// ProcessEvent folds one already-stored event into the identity's graph.
// History is read from the timeline, so the caller must have inserted the
// event first.
func (s *GraphStore) ProcessEvent(ctx context.Context, event *models.HealthEvent) error {
	at, err := event.When()
	if err != nil {
		return err
	}

	lock := s.identityLock(event.Identity)
	lock.Lock()
	defer lock.Unlock()

	history, err := s.windowHistory(ctx, event, at)
	if err != nil {
		return err
	}

	delta, err := s.deltaBuilder().Observe(event, history)
	if err != nil {
		return err
	}

	return s.store.TransactionWithTimeout(ctx, DefaultQueryTimeout, func(tx *gorm.DB) error {
		return applyDelta(tx, event.Identity, delta)
	})
}

// windowHistory loads the stored events that can co-occur with the given
// event, excluding the event itself. The builder re-filters by exact gap,
// so the epoch bounds only need to be a superset.
func (s *GraphStore) windowHistory(ctx context.Context, event *models.HealthEvent, at time.Time) ([]*models.HealthEvent, error) {
	window := s.deltaBuilder().Config().CooccurrenceWindow
	lower := at.Add(-window).UnixMilli()
	upper := at.Add(window).UnixMilli()

	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "graph_window_history")
	defer cancel()

	var records []EventRecord
	err := s.store.DB.WithContext(timeoutCtx).
		Where("identity = ? AND occurred_at_epoch BETWEEN ? AND ? AND id <> ?",
			event.Identity, lower, upper, event.ID).
		Order("occurred_at_epoch ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	history := make([]*models.HealthEvent, 0, len(records))
	for i := range records {
		decoded, err := decodeEvent(&records[i])
		if err != nil {
			return nil, err
		}
		history = append(history, decoded)
	}
	return history, nil
}

// Rebuild wipes the identity's graph rows and replays the full timeline.
// The result is identical to having processed every event incrementally.
func (s *GraphStore) Rebuild(ctx context.Context, identity string, topN int) (*models.GraphSummary, error) {
	lock := s.identityLock(identity)
	lock.Lock()
	defer lock.Unlock()

	events, err := s.events.ListByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}

	builder := s.deltaBuilder()
	err = s.store.TransactionWithTimeout(ctx, SlowQueryTimeout, func(tx *gorm.DB) error {
		if err := tx.Where("identity = ?", identity).Delete(&GraphNodeRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("identity = ?", identity).Delete(&GraphEdgeRecord{}).Error; err != nil {
			return err
		}
		for i, event := range events {
			delta, err := builder.Observe(event, events[:i])
			if err != nil {
				return err
			}
			if err := applyDelta(tx, identity, delta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.summaryLocked(ctx, identity, topN)
}

// Summary returns the identity's top-N graph view.
func (s *GraphStore) Summary(ctx context.Context, identity string, topN int) (*models.GraphSummary, error) {
	lock := s.identityLock(identity)
	lock.Lock()
	defer lock.Unlock()
	return s.summaryLocked(ctx, identity, topN)
}

func (s *GraphStore) summaryLocked(ctx context.Context, identity string, topN int) (*models.GraphSummary, error) {
	nodes, err := s.listNodes(ctx, identity)
	if err != nil {
		return nil, err
	}
	edges, err := s.listEdges(ctx, identity)
	if err != nil {
		return nil, err
	}

	// The SQL ordering already matches; the in-memory sort settles the
	// cross-backend tie-break differences conclusively.
	graph.SortNodes(nodes)
	graph.SortEdges(edges)

	n := s.deltaBuilder().ClampTopN(topN)
	summary := &models.GraphSummary{
		NodeCount: len(nodes),
		EdgeCount: len(edges),
	}
	for i, node := range nodes {
		if i >= n {
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
		if i >= n {
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
	return summary, nil
}

// NodeCount returns the number of distinct nodes of an identity.
func (s *GraphStore) NodeCount(ctx context.Context, identity string) (int64, error) {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, FastQueryTimeout, "graph_node_count")
	defer cancel()

	var count int64
	err := s.store.DB.WithContext(timeoutCtx).
		Model(&GraphNodeRecord{}).
		Where("identity = ?", identity).
		Count(&count).Error
	return count, err
}

func (s *GraphStore) listNodes(ctx context.Context, identity string) ([]models.GraphNode, error) {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "graph_list_nodes")
	defer cancel()

	var records []GraphNodeRecord
	err := s.store.DB.WithContext(timeoutCtx).
		Where("identity = ?", identity).
		Order("occurrence_count DESC, first_seen_epoch ASC, concept ASC, category ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	nodes := make([]models.GraphNode, 0, len(records))
	for _, r := range records {
		nodes = append(nodes, models.GraphNode{
			Key: models.NodeKey{
				Concept:  r.Concept,
				Category: models.ConceptCategory(r.Category),
			},
			OccurrenceCount: int64(r.OccurrenceCount),
			FirstSeen:       time.UnixMilli(r.FirstSeenEpoch).UTC(),
			LastSeen:        time.UnixMilli(r.LastSeenEpoch).UTC(),
		})
	}
	return nodes, nil
}

func (s *GraphStore) listEdges(ctx context.Context, identity string) ([]models.GraphEdge, error) {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "graph_list_edges")
	defer cancel()

	var records []GraphEdgeRecord
	err := s.store.DB.WithContext(timeoutCtx).
		Where("identity = ?", identity).
		Order("weight DESC, first_observed_epoch ASC, source_concept ASC, target_concept ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	edges := make([]models.GraphEdge, 0, len(records))
	for _, r := range records {
		edges = append(edges, models.GraphEdge{
			Source: models.NodeKey{
				Concept:  r.SourceConcept,
				Category: models.ConceptCategory(r.SourceCategory),
			},
			Target: models.NodeKey{
				Concept:  r.TargetConcept,
				Category: models.ConceptCategory(r.TargetCategory),
			},
			Relation:      models.RelationType(r.Relation),
			Weight:        r.Weight,
			FirstObserved: time.UnixMilli(r.FirstObservedEpoch).UTC(),
			LastObserved:  time.UnixMilli(r.LastObservedEpoch).UTC(),
		})
	}
	return edges, nil
}

// applyDelta upserts one delta inside a transaction, mirroring the
// in-memory apply semantics: node occurrences increment counts and extend
// the seen range, edges create at weight 1.0 and reinforce by 0.5.
func applyDelta(tx *gorm.DB, identity string, delta *graph.Delta) error {
	for _, occ := range delta.Nodes {
		if err := upsertNode(tx, identity, occ); err != nil {
			return err
		}
	}
	for _, obs := range delta.Edges {
		if obs.Source == obs.Target {
			continue
		}
		if err := upsertEdge(tx, identity, obs); err != nil {
			return err
		}
	}
	return nil
}

func upsertNode(tx *gorm.DB, identity string, occ graph.NodeOccurrence) error {
	epoch := occ.ObservedAt.UnixMilli()
	record := &GraphNodeRecord{
		Identity:        identity,
		Concept:         occ.Key.Concept,
		Category:        string(occ.Key.Category),
		OccurrenceCount: 1,
		FirstSeen:       occ.ObservedAt.UTC().Format(time.RFC3339Nano),
		LastSeen:        occ.ObservedAt.UTC().Format(time.RFC3339Nano),
		FirstSeenEpoch:  epoch,
		LastSeenEpoch:   epoch,
	}

	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}, {Name: "concept"}, {Name: "category"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Row existed: fetch-and-update under the identity lock.
	var existing GraphNodeRecord
	err := tx.Where("identity = ? AND concept = ? AND category = ?",
		identity, occ.Key.Concept, occ.Key.Category).
		First(&existing).Error
	if err != nil {
		return fmt.Errorf("load graph node: %w", err)
	}

	updates := map[string]any{"occurrence_count": existing.OccurrenceCount + 1}
	if epoch < existing.FirstSeenEpoch {
		updates["first_seen"] = record.FirstSeen
		updates["first_seen_epoch"] = epoch
	}
	if epoch > existing.LastSeenEpoch {
		updates["last_seen"] = record.LastSeen
		updates["last_seen_epoch"] = epoch
	}
	return tx.Model(&GraphNodeRecord{}).Where("id = ?", existing.ID).Updates(updates).Error
}

func upsertEdge(tx *gorm.DB, identity string, obs graph.EdgeObservation) error {
	epoch := obs.ObservedAt.UnixMilli()
	record := &GraphEdgeRecord{
		Identity:           identity,
		SourceConcept:      obs.Source.Concept,
		SourceCategory:     string(obs.Source.Category),
		TargetConcept:      obs.Target.Concept,
		TargetCategory:     string(obs.Target.Category),
		Relation:           string(obs.Relation),
		Weight:             1.0,
		ObservationCount:   1,
		FirstObserved:      obs.ObservedAt.UTC().Format(time.RFC3339Nano),
		LastObserved:       obs.ObservedAt.UTC().Format(time.RFC3339Nano),
		FirstObservedEpoch: epoch,
		LastObservedEpoch:  epoch,
	}

	result := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "identity"},
			{Name: "source_concept"}, {Name: "source_category"},
			{Name: "target_concept"}, {Name: "target_category"},
			{Name: "relation"},
		},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var existing GraphEdgeRecord
	err := tx.Where(
		"identity = ? AND source_concept = ? AND source_category = ? AND target_concept = ? AND target_category = ? AND relation = ?",
		identity, obs.Source.Concept, string(obs.Source.Category),
		obs.Target.Concept, string(obs.Target.Category), string(obs.Relation)).
		First(&existing).Error
	if err != nil {
		return fmt.Errorf("load graph edge: %w", err)
	}

	updates := map[string]any{
		"weight":            existing.Weight + 0.5,
		"observation_count": existing.ObservationCount + 1,
	}
	if epoch > existing.LastObservedEpoch {
		updates["last_observed"] = record.LastObserved
		updates["last_observed_epoch"] = epoch
	}
	return tx.Model(&GraphEdgeRecord{}).Where("id = ?", existing.ID).Updates(updates).Error
}
