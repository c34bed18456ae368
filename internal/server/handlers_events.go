package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/sentiq/healthiq/internal/db"
	"github.com/sentiq/healthiq/pkg/models"
)

// Listing limits.
const (
	DefaultEventsLimit = 100
	MaxEventsLimit     = 500
)

// DefaultIdentity is used when a request names no identity.
const DefaultIdentity = "self"

// writeJSON writes a JSON response with proper error handling.
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps an error to its HTTP status. Contract violations in
// the payload are the client's fault; everything else is a 500.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrMalformedTimestamp),
		errors.Is(err, models.ErrUnknownEventType),
		errors.Is(err, models.ErrMissingPayload):
		status = http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// identityFrom resolves the identity for a request: the X-Identity
// header wins, then the query parameter, then the default.
func identityFrom(r *http.Request) string {
	if id := r.Header.Get("X-Identity"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("identity"); id != "" {
		return id
	}
	return DefaultIdentity
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.store.HealthCheck(r.Context())
	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]interface{}{
		"status":  health.Status,
		"version": s.version,
		"uptime":  int64(time.Since(s.startTime).Seconds()),
		"store":   health,
	})
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Service) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var event models.HealthEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Identity == "" {
		event.Identity = identityFrom(r)
	}
	if event.Source == "" {
		event.Source = models.SourceManual
	}
	if event.VisibilityScope == "" {
		event.VisibilityScope = models.ScopePrivate
	}
	if event.Confidence == 0 {
		event.Confidence = 1.0
	}

	if err := event.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	ctx := r.Context()
	if err := s.events.Create(ctx, &event); err != nil {
		s.writeError(w, err)
		return
	}

	// Insight events are outputs of the system and never feed the graph.
	if event.EventType != models.EventInsight {
		if err := s.graphStore.ProcessEvent(ctx, &event); err != nil {
			s.writeError(w, err)
			return
		}
		if s.mirror != nil && s.mirror.Active() {
			if summary, err := s.graphStore.Summary(ctx, event.Identity, s.config.Analytics.TopN); err == nil {
				s.mirror.ApplySummary(ctx, event.Identity, summary)
			}
		}
	}

	s.writeJSON(w, http.StatusCreated, &event)
}

func (s *Service) handleListEvents(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	events, err := s.events.ListByIdentity(r.Context(), identity)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if typeFilter := r.URL.Query().Get("type"); typeFilter != "" {
		filtered := events[:0]
		for _, event := range events {
			if string(event.EventType) == typeFilter {
				filtered = append(filtered, event)
			}
		}
		events = filtered
	}

	total := len(events)
	offset := parseIntParam(r, "offset", 0, 0, total)
	limit := parseIntParam(r, "limit", DefaultEventsLimit, 1, MaxEventsLimit)
	end := offset + limit
	if end > total {
		end = total
	}
	if offset > total {
		offset = total
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"identity": identity,
		"total":    total,
		"events":   events[offset:end],
	})
}

func (s *Service) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.events.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}

func (s *Service) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.events.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// parseIntParam reads a bounded integer query parameter, falling back to
// the default on absence or garbage.
func parseIntParam(r *http.Request, name string, def, minVal, maxVal int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < minVal {
		return def
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
