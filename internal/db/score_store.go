package db

import (
	"context"
	"fmt"
	"time"

	"github.com/sentiq/healthiq/pkg/models"
)

// ScoreStore owns the append-only HSI score history. Snapshots are never
// updated or deleted; the latest row is simply the most recent append.
type ScoreStore struct {
	store *Store
}

// NewScoreStore creates a new score store.
func NewScoreStore(store *Store) *ScoreStore {
	return &ScoreStore{store: store}
}

// Append stores one score snapshot.
func (s *ScoreStore) Append(ctx context.Context, identity string, score *models.HSIScore) error {
	record := &HSIScoreRecord{
		Identity:              identity,
		Score:                 score.Score,
		SymptomRegularity:     score.SymptomRegularity,
		BehavioralConsistency: score.BehavioralConsistency,
		TrajectoryDirection:   score.TrajectoryDirection,
		WindowDays:            score.WindowDays,
		DataConfidence:        string(score.DataConfidence),
		ContributingEventIDs:  models.JSONStringArray(score.ContributingEventIDs),
		ComputedAt:            score.ComputedAt.UTC().Format(time.RFC3339Nano),
		ComputedAtEpoch:       score.ComputedAt.UnixMilli(),
	}

	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "score_append")
	defer cancel()

	return s.store.DB.WithContext(timeoutCtx).Create(record).Error
}

// Latest returns the most recent snapshot, or nil when none exists.
func (s *ScoreStore) Latest(ctx context.Context, identity string) (*models.HSIScore, error) {
	scores, err := s.History(ctx, identity, 1)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, nil
	}
	return scores[0], nil
}

// LatestTwo returns the newest and second-newest snapshots. Either may be
// nil; the decline rule needs both to fire.
func (s *ScoreStore) LatestTwo(ctx context.Context, identity string) (current, previous *models.HSIScore, err error) {
	scores, err := s.History(ctx, identity, 2)
	if err != nil {
		return nil, nil, err
	}
	if len(scores) > 0 {
		current = scores[0]
	}
	if len(scores) > 1 {
		previous = scores[1]
	}
	return current, previous, nil
}

// History returns up to limit snapshots, newest first.
func (s *ScoreStore) History(ctx context.Context, identity string, limit int) ([]*models.HSIScore, error) {
	if limit <= 0 {
		limit = 30
	}

	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "score_history")
	defer cancel()

	var records []HSIScoreRecord
	err := s.store.DB.WithContext(timeoutCtx).
		Where("identity = ?", identity).
		Order("computed_at_epoch DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	scores := make([]*models.HSIScore, 0, len(records))
	for _, r := range records {
		score, err := decodeScore(&r)
		if err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}
	return scores, nil
}

func decodeScore(r *HSIScoreRecord) (*models.HSIScore, error) {
	computedAt, err := time.Parse(time.RFC3339Nano, r.ComputedAt)
	if err != nil {
		return nil, fmt.Errorf("decode score %s: %w", r.ID, err)
	}
	return &models.HSIScore{
		Score:                 r.Score,
		SymptomRegularity:     r.SymptomRegularity,
		BehavioralConsistency: r.BehavioralConsistency,
		TrajectoryDirection:   r.TrajectoryDirection,
		WindowDays:            r.WindowDays,
		DataConfidence:        models.DataConfidence(r.DataConfidence),
		ContributingEventIDs:  []string(r.ContributingEventIDs),
		ComputedAt:            computedAt,
	}, nil
}
