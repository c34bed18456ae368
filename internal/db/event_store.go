package db

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"gorm.io/gorm"

	"github.com/sentiq/healthiq/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// EventStore owns the event timeline.
type EventStore struct {
	store *Store
}

// NewEventStore creates a new event store.
func NewEventStore(store *Store) *EventStore {
	return &EventStore{store: store}
}

// Create validates and inserts one event. Validation runs before any row
// is written: a malformed event never reaches the timeline, so downstream
// analytics can treat stored rows as well-formed.
func (s *EventStore) Create(ctx context.Context, event *models.HealthEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	at, err := event.When()
	if err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	record := &EventRecord{
		ID:              event.ID,
		Identity:        event.Identity,
		EventType:       string(event.EventType),
		Source:          string(event.Source),
		VisibilityScope: string(event.VisibilityScope),
		Confidence:      event.Confidence,
		OccurredAt:      event.Timestamp.Absolute,
		OccurredAtEpoch: at.UnixMilli(),
		Body:            string(body),
	}

	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "event_create")
	defer cancel()

	return s.store.DB.WithContext(timeoutCtx).Create(record).Error
}

// GetByID loads one event.
func (s *EventStore) GetByID(ctx context.Context, id string) (*models.HealthEvent, error) {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, FastQueryTimeout, "event_get")
	defer cancel()

	var record EventRecord
	err := s.store.DB.WithContext(timeoutCtx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeEvent(&record)
}

// ListByIdentity returns the identity's full timeline in stable
// chronological order. Ties on the timestamp break by id, so repeated
// reads always return the same sequence.
func (s *EventStore) ListByIdentity(ctx context.Context, identity string) ([]*models.HealthEvent, error) {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "event_list")
	defer cancel()

	var records []EventRecord
	err := s.store.DB.WithContext(timeoutCtx).
		Where("identity = ?", identity).
		Order("occurred_at_epoch ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	events := make([]*models.HealthEvent, 0, len(records))
	for i := range records {
		event, err := decodeEvent(&records[i])
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// ListByIdentitySince returns the timeline rows at or after the epoch
// bound, same ordering as ListByIdentity.
func (s *EventStore) ListByIdentitySince(ctx context.Context, identity string, sinceEpoch int64) ([]*models.HealthEvent, error) {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "event_list_since")
	defer cancel()

	var records []EventRecord
	err := s.store.DB.WithContext(timeoutCtx).
		Where("identity = ? AND occurred_at_epoch >= ?", identity, sinceEpoch).
		Order("occurred_at_epoch ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	events := make([]*models.HealthEvent, 0, len(records))
	for i := range records {
		event, err := decodeEvent(&records[i])
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// CountByIdentity returns the identity's event count.
func (s *EventStore) CountByIdentity(ctx context.Context, identity string) (int64, error) {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, FastQueryTimeout, "event_count")
	defer cancel()

	var count int64
	err := s.store.DB.WithContext(timeoutCtx).
		Model(&EventRecord{}).
		Where("identity = ?", identity).
		Count(&count).Error
	return count, err
}

// Delete removes one event. Returns ErrNotFound when no row matched.
func (s *EventStore) Delete(ctx context.Context, id string) error {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "event_delete")
	defer cancel()

	result := s.store.DB.WithContext(timeoutCtx).Delete(&EventRecord{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: event %s", ErrNotFound, id)
	}
	return nil
}

// decodeEvent restores the full event from the stored JSON body.
func decodeEvent(record *EventRecord) (*models.HealthEvent, error) {
	var event models.HealthEvent
	if err := json.Unmarshal([]byte(record.Body), &event); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", record.ID, err)
	}
	return &event, nil
}
