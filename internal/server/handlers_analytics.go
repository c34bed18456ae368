package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentiq/healthiq/pkg/models"
)

// DefaultScoreHistory is the number of HSI snapshots returned by the
// score endpoint.
const DefaultScoreHistory = 30

func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	windowDays := parseIntParam(r, "window", s.config.Analytics.WindowDays, 1, 365)
	topN := parseIntParam(r, "top", s.config.Analytics.TopN, 1, 50)

	report, err := s.refreshReport(r.Context(), identity, windowDays, topN)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleReport returns the latest stored snapshot plus the current alert
// standing without recomputing anything.
func (s *Service) handleReport(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	topN := parseIntParam(r, "top", s.config.Analytics.TopN, 1, 50)
	ctx := r.Context()

	latest, err := s.scores.Latest(ctx, identity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	active, err := s.alertStore.ListActive(ctx, identity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	summary, err := s.graphStore.Summary(ctx, identity, topN)
	if err != nil {
		s.writeError(w, err)
		return
	}

	_, engine := s.analytics()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"identity":    identity,
		"hsi":         latest,
		"graph":       summary,
		"alerts":      active,
		"risk":        engine.ComputeRisk(latest, active),
		"suggestions": engine.Suggest(latest, active, summary),
		"generatedAt": time.Now().UTC(),
	})
}

func (s *Service) handleGraph(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	topN := parseIntParam(r, "top", s.config.Analytics.TopN, 1, 50)

	summary, err := s.graphStore.Summary(r.Context(), identity, topN)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"identity": identity,
		"graph":    summary,
	})
}

func (s *Service) handleScore(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	limit := parseIntParam(r, "limit", DefaultScoreHistory, 1, 365)
	ctx := r.Context()

	latest, err := s.scores.Latest(ctx, identity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	history, err := s.scores.History(ctx, identity, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"identity": identity,
		"latest":   latest,
		"history":  history,
	})
}

func (s *Service) handleAlerts(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	ctx := r.Context()

	var (
		list []models.UserAlert
		err  error
	)
	if r.URL.Query().Get("all") == "true" {
		list, err = s.alertStore.History(ctx, identity, 0)
	} else {
		list, err = s.alertStore.ListActive(ctx, identity)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"identity": identity,
		"alerts":   list,
	})
}

func (s *Service) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	id := chi.URLParam(r, "id")

	if err := s.alertStore.Acknowledge(r.Context(), identity, id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged", "id": id})
}
