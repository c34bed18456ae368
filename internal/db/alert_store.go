package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/sentiq/healthiq/pkg/models"
)

// AlertStore owns triggered alerts and enforces the deduplication rule the
// alert engine delegates here: a rule that fired within the dedup window
// and is still un-acknowledged is not recorded again.
type AlertStore struct {
	store   *Store
	dedupMu sync.RWMutex
	dedup   time.Duration
}

// NewAlertStore creates a new alert store. A non-positive dedup window
// falls back to 24 hours.
func NewAlertStore(store *Store, dedupWindow time.Duration) *AlertStore {
	s := &AlertStore{store: store}
	s.SetDedupWindow(dedupWindow)
	return s
}

// SetDedupWindow replaces the suppression window, falling back to 24 hours
// for non-positive values. Settings reloads call this.
func (s *AlertStore) SetDedupWindow(window time.Duration) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	s.dedupMu.Lock()
	s.dedup = window
	s.dedupMu.Unlock()
}

func (s *AlertStore) dedupWindow() time.Duration {
	s.dedupMu.RLock()
	defer s.dedupMu.RUnlock()
	return s.dedup
}

// CreateIfAbsent inserts the alert unless an un-acknowledged alert of the
// same rule fired within the dedup window. Returns whether a row was
// created. The check and insert run in one transaction so concurrent
// evaluations cannot double-record.
func (s *AlertStore) CreateIfAbsent(ctx context.Context, alert *models.UserAlert) (bool, error) {
	created := false
	err := s.store.TransactionWithTimeout(ctx, DefaultQueryTimeout, func(tx *gorm.DB) error {
		cutoff := alert.TriggeredAt.Add(-s.dedupWindow()).UnixMilli()

		var count int64
		err := tx.Model(&AlertRecord{}).
			Where("identity = ? AND rule_type = ? AND acknowledged = 0 AND triggered_at_epoch > ?",
				alert.Identity, string(alert.RuleType), cutoff).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		record := &AlertRecord{
			ID:               alert.ID,
			Identity:         alert.Identity,
			RuleType:         string(alert.RuleType),
			Severity:         string(alert.Severity),
			Title:            alert.Title,
			Explanation:      alert.Explanation,
			EvidenceIDs:      models.JSONStringArray(alert.EvidenceIDs),
			TriggeredAt:      alert.TriggeredAt.UTC().Format(time.RFC3339Nano),
			TriggeredAtEpoch: alert.TriggeredAt.UnixMilli(),
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// ListActive returns the identity's un-acknowledged alerts, newest first.
func (s *AlertStore) ListActive(ctx context.Context, identity string) ([]models.UserAlert, error) {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "alert_list_active")
	defer cancel()

	var records []AlertRecord
	err := s.store.DB.WithContext(timeoutCtx).
		Where("identity = ? AND acknowledged = 0", identity).
		Order("triggered_at_epoch DESC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return decodeAlerts(records)
}

// Acknowledge marks one alert as acknowledged. Acknowledging twice is a
// no-op; a missing alert is ErrNotFound.
func (s *AlertStore) Acknowledge(ctx context.Context, identity, alertID string) error {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "alert_acknowledge")
	defer cancel()

	var record AlertRecord
	err := s.store.DB.WithContext(timeoutCtx).
		Where("identity = ? AND id = ?", identity, alertID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: alert %s", ErrNotFound, alertID)
	}
	if err != nil {
		return err
	}
	if record.Acknowledged != 0 {
		return nil
	}

	return s.store.DB.WithContext(timeoutCtx).
		Model(&AlertRecord{}).
		Where("id = ?", alertID).
		Update("acknowledged", 1).Error
}

// History returns up to limit alerts regardless of acknowledgement,
// newest first.
func (s *AlertStore) History(ctx context.Context, identity string, limit int) ([]models.UserAlert, error) {
	if limit <= 0 {
		limit = 50
	}

	timeoutCtx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "alert_history")
	defer cancel()

	var records []AlertRecord
	err := s.store.DB.WithContext(timeoutCtx).
		Where("identity = ?", identity).
		Order("triggered_at_epoch DESC, id ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return decodeAlerts(records)
}

func decodeAlerts(records []AlertRecord) ([]models.UserAlert, error) {
	alerts := make([]models.UserAlert, 0, len(records))
	for _, r := range records {
		triggeredAt, err := time.Parse(time.RFC3339Nano, r.TriggeredAt)
		if err != nil {
			return nil, fmt.Errorf("decode alert %s: %w", r.ID, err)
		}
		alerts = append(alerts, models.UserAlert{
			ID:           r.ID,
			Identity:     r.Identity,
			RuleType:     models.AlertRule(r.RuleType),
			Severity:     models.AlertSeverity(r.Severity),
			Title:        r.Title,
			Explanation:  r.Explanation,
			EvidenceIDs:  []string(r.EvidenceIDs),
			TriggeredAt:  triggeredAt,
			Acknowledged: r.Acknowledged != 0,
		})
	}
	return alerts, nil
}
