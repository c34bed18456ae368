package llm

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Registered task names. Tasks outside this set are rejected with
// ErrUnknownTask.
const (
	TaskSymptomInterpretation = "symptom_interpretation"
	TaskWeeklySummary         = "weekly_summary"
)

// Disclaimer prepended to any response that slips into diagnostic
// framing despite the template instructions.
const NonDiagnosisDisclaimer = "Note: these are observations drawn from your logged entries, not a medical diagnosis."

// strictJSONPreamble is prepended to every strict-JSON prompt.
const strictJSONPreamble = "SYSTEM: Respond ONLY with valid JSON. No markdown. No explanations.\n\n"

// jsonRetryReminder is appended to the prompt for the single retry after
// a validation failure.
const jsonRetryReminder = "\n\nREMINDER: Your previous answer was not valid JSON for the required schema. Respond with JSON only."

// SymptomInterpretation is the response schema for the
// symptom_interpretation task.
type SymptomInterpretation struct {
	Observations          []string `json:"observations"`
	PossibleFactors       []string `json:"possible_factors"`
	MonitoringSuggestions []string `json:"monitoring_suggestions"`
	Disclaimer            string   `json:"disclaimer"`
}

// WeeklySummary is the response schema for the weekly_summary task.
type WeeklySummary struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Trend      string   `json:"trend"`
	Disclaimer string   `json:"disclaimer"`
}

// taskSpec describes one registered task: its prompt template, whether
// the response must parse as JSON, the schema check, and the canned
// simulation answer.
type taskSpec struct {
	name       string
	template   string
	strictJSON bool
	validate   func(text string) error
	simulated  string
}

var taskRegistry = map[string]taskSpec{
	TaskSymptomInterpretation: {
		name: TaskSymptomInterpretation,
		template: `You are a careful health-journal assistant. Below are recent entries from a personal health log.

Describe patterns you observe in plain, observational language. Never diagnose, never tell the user what condition they have, never use phrases like "you have" or "diagnosis". Suggest only what to keep an eye on.

Entries:
%s

Respond with JSON matching exactly this shape:
{"observations": ["..."], "possible_factors": ["..."], "monitoring_suggestions": ["..."], "disclaimer": "..."}`,
		strictJSON: true,
		validate:   validateSymptomInterpretation,
		simulated:  `{"observations":["Headache entries appear on 3 of the last 7 days, usually in the evening."],"possible_factors":["Entries mentioning poor sleep precede most headache entries."],"monitoring_suggestions":["Keep logging sleep quality alongside headache intensity."],"disclaimer":"These are observations from your logged data, not a medical diagnosis."}`,
	},
	TaskWeeklySummary: {
		name: TaskWeeklySummary,
		template: `You are a careful health-journal assistant. Below are the last seven days of entries from a personal health log.

Write a short weekly recap in observational language. Never diagnose and never predict outcomes. Classify the overall trend as "improving", "stable", or "declining" based only on what the entries show.

Entries:
%s

Respond with JSON matching exactly this shape:
{"summary": "...", "highlights": ["..."], "trend": "improving|stable|declining", "disclaimer": "..."}`,
		strictJSON: true,
		validate:   validateWeeklySummary,
		simulated:  `{"summary":"You logged 12 entries this week. Medication entries were regular and symptom intensity stayed in the mild range.","highlights":["Consistent morning medication entries on 6 of 7 days.","Two mild headache entries, both after short-sleep days."],"trend":"stable","disclaimer":"These are observations from your logged data, not a medical diagnosis."}`,
	},
}

// Tasks returns the registered task names in stable order.
func Tasks() []string {
	return []string{TaskSymptomInterpretation, TaskWeeklySummary}
}

// BuildPrompt renders the task template around the caller's input text.
func BuildPrompt(task, input string) (string, error) {
	spec, ok := taskRegistry[task]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
	prompt := fmt.Sprintf(spec.template, input)
	if spec.strictJSON {
		prompt = strictJSONPreamble + prompt
	}
	return prompt, nil
}

func validateSymptomInterpretation(text string) error {
	var out SymptomInterpretation
	if err := json.Unmarshal([]byte(stripFences(text)), &out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadModelOutput, err)
	}
	if len(out.Observations) == 0 {
		return fmt.Errorf("%w: missing observations", ErrBadModelOutput)
	}
	return nil
}

func validateWeeklySummary(text string) error {
	var out WeeklySummary
	if err := json.Unmarshal([]byte(stripFences(text)), &out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadModelOutput, err)
	}
	if out.Summary == "" {
		return fmt.Errorf("%w: missing summary", ErrBadModelOutput)
	}
	switch out.Trend {
	case "improving", "stable", "declining":
	default:
		return fmt.Errorf("%w: trend %q", ErrBadModelOutput, out.Trend)
	}
	return nil
}

// stripFences removes a markdown code fence wrapper that models emit
// despite the JSON-only instruction.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var bannedFramings = []string{
	"you have ",
	"diagnosis:",
	"diagnosed with",
	"you are suffering",
	"you suffer from",
}

// sanitizeFraming prepends the non-diagnosis disclaimer when a response
// uses framing the templates forbid.
func sanitizeFraming(text string) string {
	lower := strings.ToLower(text)
	for _, phrase := range bannedFramings {
		if strings.Contains(lower, phrase) {
			return NonDiagnosisDisclaimer + "\n" + text
		}
	}
	return text
}
