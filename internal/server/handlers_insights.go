package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/sentiq/healthiq/internal/llm"
	"github.com/sentiq/healthiq/pkg/models"
)

// insightRequest is the body for both insight endpoints. All fields are
// optional.
type insightRequest struct {
	Identity string `json:"identity"`
	Days     int    `json:"days"`
}

func (s *Service) handleInterpret(w http.ResponseWriter, r *http.Request) {
	s.runInsightTask(w, r, llm.TaskSymptomInterpretation, DefaultRecentDays, true)
}

func (s *Service) handleWeeklySummary(w http.ResponseWriter, r *http.Request) {
	s.runInsightTask(w, r, llm.TaskWeeklySummary, 7, false)
}

// runInsightTask renders the recent timeline into the task's prompt and
// invokes the gateway. When storeResult is set the response is recorded
// as an insight event with the source events as evidence.
func (s *Service) runInsightTask(w http.ResponseWriter, r *http.Request, task string, defaultDays int, storeResult bool) {
	var req insightRequest
	if r.Body != nil {
		// An empty body means defaults.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	identity := req.Identity
	if identity == "" {
		identity = identityFrom(r)
	}
	days := req.Days
	if days <= 0 {
		days = defaultDays
	}

	ctx := r.Context()
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)

	events, err := s.events.ListByIdentitySince(ctx, identity, since.UnixMilli())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(events) == 0 {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"identity": identity,
			"result":   nil,
			"message":  "no events in the requested window",
		})
		return
	}

	input, evidence := renderTimeline(events)
	resp, err := s.gateway.Invoke(ctx, task, identity, input)
	if err != nil {
		if errors.Is(err, llm.ErrPromptTooLarge) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}

	var insight *models.HealthEvent
	if storeResult {
		insight = models.NewHealthEvent(identity, models.EventInsight, now)
		insight.Source = models.SourceAssistant
		insight.Insight = &models.InsightPayload{
			Summary:     resp.Text,
			EvidenceIDs: evidence,
		}
		if err := s.events.Create(ctx, insight); err != nil {
			s.writeError(w, err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"identity": identity,
		"result":   resp,
		"event":    insight,
	})
}

// renderTimeline flattens events into the prompt's entry lines and
// collects the event IDs as the evidence trail. Insight events are
// skipped so generated text never feeds back into generation.
func renderTimeline(events []*models.HealthEvent) (string, []string) {
	var sb strings.Builder
	var evidence []string

	for _, event := range events {
		if event.EventType == models.EventInsight {
			continue
		}
		at, err := event.When()
		if err != nil {
			continue
		}
		sb.WriteString(at.Format("2006-01-02 15:04"))
		sb.WriteString(" ")
		sb.WriteString(renderEventLine(event))
		sb.WriteString("\n")
		evidence = append(evidence, event.ID)
	}
	return sb.String(), evidence
}

func renderEventLine(event *models.HealthEvent) string {
	switch event.EventType {
	case models.EventMedication:
		line := fmt.Sprintf("medication: %s", event.Medication.Name)
		if event.Medication.Dosage != "" {
			line += " " + event.Medication.Dosage
		}
		if event.Medication.AdherenceOutcome != "" {
			line += fmt.Sprintf(" (%s)", event.Medication.AdherenceOutcome)
		}
		return line
	case models.EventSymptom:
		line := fmt.Sprintf("symptom: %s", event.Symptom.Description)
		if event.Symptom.Intensity != "" {
			line += fmt.Sprintf(" (intensity %s)", event.Symptom.Intensity)
		}
		if event.Symptom.Context != "" {
			line += fmt.Sprintf(" [context: %s]", event.Symptom.Context)
		}
		return line
	case models.EventLifestyle:
		var parts []string
		if event.Lifestyle.Sleep != "" {
			parts = append(parts, "sleep: "+event.Lifestyle.Sleep)
		}
		if event.Lifestyle.Stress != "" {
			parts = append(parts, "stress: "+event.Lifestyle.Stress)
		}
		if event.Lifestyle.Activity != "" {
			parts = append(parts, "activity: "+event.Lifestyle.Activity)
		}
		if event.Lifestyle.Food != "" {
			parts = append(parts, "food: "+event.Lifestyle.Food)
		}
		return "lifestyle: " + strings.Join(parts, ", ")
	case models.EventClinical:
		line := "clinical visit"
		if event.Clinical.VisitType != "" {
			line = "clinical: " + event.Clinical.VisitType
		}
		if event.Clinical.Notes != "" {
			line += " (" + event.Clinical.Notes + ")"
		}
		return line
	default:
		return string(event.EventType)
	}
}
