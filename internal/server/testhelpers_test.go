package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"

	"github.com/sentiq/healthiq/internal/config"
	"github.com/sentiq/healthiq/internal/db"
	"github.com/sentiq/healthiq/internal/graphdb"
	"github.com/sentiq/healthiq/internal/llm"
	"github.com/sentiq/healthiq/pkg/models"
)

// testService builds a full service on a temporary SQLite database with
// a simulation-mode LLM gateway and no graph mirror.
func testService(t *testing.T) (*Service, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "healthiq_server_test_*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	store, err := db.NewStore(db.Config{
		DSN:      filepath.Join(tmpDir, "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("NewStore failed: %v", err)
	}

	cfg := config.Default()
	cfg.LLM.Provider = "simulation"

	gateway, err := llm.New(context.Background(), cfg.LLM, zerolog.Nop())
	if err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("llm gateway: %v", err)
	}

	mirror := graphdb.NewMirror(nil, zerolog.Nop())

	svc, err := NewService("test-version", cfg, store, gateway, mirror, zerolog.Nop())
	if err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("NewService failed: %v", err)
	}

	cleanup := func() {
		svc.Shutdown(context.Background())
		os.RemoveAll(tmpDir)
	}
	return svc, cleanup
}

// symptomEvent builds a symptom event with a deterministic ID.
func symptomEvent(identity string, seq int, at time.Time, description, intensity string) *models.HealthEvent {
	e := models.NewHealthEvent(identity, models.EventSymptom, at)
	e.ID = fmt.Sprintf("%s-ev-%03d", identity, seq)
	e.Symptom = &models.SymptomPayload{Description: description, Intensity: models.Intensity(intensity)}
	return e
}

// medicationEvent builds a medication event with a deterministic ID.
func medicationEvent(identity string, seq int, at time.Time, name string, outcome models.AdherenceOutcome) *models.HealthEvent {
	e := models.NewHealthEvent(identity, models.EventMedication, at)
	e.ID = fmt.Sprintf("%s-med-%03d", identity, seq)
	e.Medication = &models.MedicationPayload{Name: name, AdherenceOutcome: outcome}
	return e
}
