package db

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm/logger"

	"github.com/sentiq/healthiq/pkg/models"
)

// testStore creates a Store backed by a temporary SQLite database.
func testStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "healthiq_db_test_*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	store, err := NewStore(Config{
		DSN:      filepath.Join(tmpDir, "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("NewStore failed: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

// eventAt builds a valid symptom event with a deterministic ID.
func eventAt(identity string, seq int, at time.Time, description, intensity string) *models.HealthEvent {
	e := models.NewHealthEvent(identity, models.EventSymptom, at)
	e.ID = fmt.Sprintf("%s-ev-%03d", identity, seq)
	e.Symptom = &models.SymptomPayload{Description: description, Intensity: models.Intensity(intensity)}
	return e
}

// medicationAt builds a valid medication event with a deterministic ID.
func medicationAt(identity string, seq int, at time.Time, name string, outcome models.AdherenceOutcome) *models.HealthEvent {
	e := models.NewHealthEvent(identity, models.EventMedication, at)
	e.ID = fmt.Sprintf("%s-med-%03d", identity, seq)
	e.Medication = &models.MedicationPayload{Name: name, AdherenceOutcome: outcome}
	return e
}
