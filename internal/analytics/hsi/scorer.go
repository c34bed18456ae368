// Package hsi computes the Health Stability Index: a 0-100 composite of
// symptom regularity, behavioral consistency and trajectory direction over
// a rolling window.
package hsi

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sentiq/healthiq/internal/analytics/concepts"
	"github.com/sentiq/healthiq/pkg/models"
)

// ErrInvalidConfig is returned when scorer configuration fails validation.
var ErrInvalidConfig = errors.New("invalid hsi config")

// Config contains the parameters of the HSI formula.
type Config struct {
	// WindowDays is the default scoring window (default 30).
	WindowDays int `json:"window_days"`
	// RegularityWeight scales symptom regularity in the composite (default 0.4).
	RegularityWeight float64 `json:"regularity_weight"`
	// ConsistencyWeight scales behavioral consistency (default 0.3).
	ConsistencyWeight float64 `json:"consistency_weight"`
	// TrajectoryWeight scales trajectory direction (default 0.3).
	TrajectoryWeight float64 `json:"trajectory_weight"`
	// NeutralScore is the sub-score used when a dimension has too little
	// data to compute a statistic (default 50).
	NeutralScore float64 `json:"neutral_score"`
	// MinSymptomEvents is the smallest symptom sample regularity and
	// trajectory will compute on (default 3).
	MinSymptomEvents int `json:"min_symptom_events"`
	// CountCVSlope converts daily-count variation into score loss: score =
	// 100 - slope*CV (default 40).
	CountCVSlope float64 `json:"count_cv_slope"`
	// IntensityCVSlope converts intensity variation into score loss (default 100).
	IntensityCVSlope float64 `json:"intensity_cv_slope"`
	// IntensityBlend is the share of the intensity score in regularity when
	// enough intensities parse (default 0.3, counts carry the rest).
	IntensityBlend float64 `json:"intensity_blend"`
	// DiversityPenaltyPerDescription is subtracted per distinct symptom
	// description (default 2).
	DiversityPenaltyPerDescription float64 `json:"diversity_penalty_per_description"`
	// DiversityPenaltyCap bounds the total diversity penalty (default 20).
	DiversityPenaltyCap float64 `json:"diversity_penalty_cap"`
	// AdherenceBlend is the adherence share of consistency when both
	// medication and lifestyle signals exist (default 0.6).
	AdherenceBlend float64 `json:"adherence_blend"`
	// TrajectorySlopeScale converts normalized burden drift into score
	// distance from neutral (default 7.5).
	TrajectorySlopeScale float64 `json:"trajectory_slope_scale"`
	// DefaultIntensity stands in for symptom days where no intensity
	// parses (default 5, the scale midpoint).
	DefaultIntensity float64 `json:"default_intensity"`
	// HighConfidenceEvents/Types/SpanDays gate the "high" data confidence
	// grade (defaults 30/3/21).
	HighConfidenceEvents   int `json:"high_confidence_events"`
	HighConfidenceTypes    int `json:"high_confidence_types"`
	HighConfidenceSpanDays int `json:"high_confidence_span_days"`
	// MediumConfidenceEvents/Types/SpanDays gate the "medium" grade
	// (defaults 15/2/14).
	MediumConfidenceEvents   int `json:"medium_confidence_events"`
	MediumConfidenceTypes    int `json:"medium_confidence_types"`
	MediumConfidenceSpanDays int `json:"medium_confidence_span_days"`
}

// DefaultConfig returns the default HSI configuration.
func DefaultConfig() *Config {
	return &Config{
		WindowDays:                     30,
		RegularityWeight:               0.4,
		ConsistencyWeight:              0.3,
		TrajectoryWeight:               0.3,
		NeutralScore:                   50,
		MinSymptomEvents:               3,
		CountCVSlope:                   40,
		IntensityCVSlope:               100,
		IntensityBlend:                 0.3,
		DiversityPenaltyPerDescription: 2,
		DiversityPenaltyCap:            20,
		AdherenceBlend:                 0.6,
		TrajectorySlopeScale:           7.5,
		DefaultIntensity:               5,
		HighConfidenceEvents:           30,
		HighConfidenceTypes:            3,
		HighConfidenceSpanDays:         21,
		MediumConfidenceEvents:         15,
		MediumConfidenceTypes:          2,
		MediumConfidenceSpanDays:       14,
	}
}

// Validate rejects unusable configuration before computation starts.
func (c *Config) Validate() error {
	if c.WindowDays <= 0 {
		return fmt.Errorf("%w: window days must be positive, got %d", ErrInvalidConfig, c.WindowDays)
	}
	if c.RegularityWeight <= 0 || c.ConsistencyWeight <= 0 || c.TrajectoryWeight <= 0 {
		return fmt.Errorf("%w: component weights must be positive", ErrInvalidConfig)
	}
	if sum := c.RegularityWeight + c.ConsistencyWeight + c.TrajectoryWeight; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: component weights sum to %.3f, want 1", ErrInvalidConfig, sum)
	}
	if c.MinSymptomEvents < 1 {
		return fmt.Errorf("%w: min symptom events must be at least 1", ErrInvalidConfig)
	}
	if c.IntensityBlend < 0 || c.IntensityBlend > 1 || c.AdherenceBlend < 0 || c.AdherenceBlend > 1 {
		return fmt.Errorf("%w: blend weights must be within [0,1]", ErrInvalidConfig)
	}
	return nil
}

// timedEvent pairs an event with its already-parsed timestamp so the
// sub-score passes never re-parse.
type timedEvent struct {
	event *models.HealthEvent
	at    time.Time
}

// Scorer computes HSI snapshots.
type Scorer struct {
	config *Config
}

// NewScorer creates a scorer. If config is nil, uses the default
// configuration.
func NewScorer(config *Config) (*Scorer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{config: config}, nil
}

// Compute scores the window ending at now.
//
// The composite formula:
//
//	Score = round(0.4×Regularity + 0.3×Consistency + 0.3×Trajectory)
//
// Where:
//   - Regularity = blend of daily-count CV and intensity CV mapped through
//     decreasing linear clamps, minus a distinct-description penalty
//   - Consistency = blend of medication adherence rate and lifestyle
//     logging day-coverage
//   - Trajectory = 50 - 7.5×(burden slope × window days), so improving
//     burden scores high
//
// Every sub-score and the composite are clamped to [0,100]; dimensions
// without enough data resolve to the neutral 50, never an error. The only
// errors are malformed timestamps and a negative window.
func (s *Scorer) Compute(events []*models.HealthEvent, windowDays int, now time.Time) (*models.HSIScore, error) {
	components, err := s.ComputeComponents(events, windowDays, now)
	if err != nil {
		return nil, err
	}
	return components.Score, nil
}

// Components carries the intermediate values behind one HSI snapshot.
// Useful for explaining a score to the user.
type Components struct {
	Score            *models.HSIScore `json:"score"`
	CountCV          float64          `json:"count_cv"`
	IntensityCV      float64          `json:"intensity_cv"`
	ParsedCount      int              `json:"parsed_count"`
	DistinctSymptoms int              `json:"distinct_symptoms"`
	AdherenceRate    float64          `json:"adherence_rate"`
	CoverageRate     float64          `json:"coverage_rate"`
	BurdenSlope      float64          `json:"burden_slope"`
	WindowedEvents   int              `json:"windowed_events"`
}

// ComputeComponents is the core calculation; Compute delegates to it.
func (s *Scorer) ComputeComponents(events []*models.HealthEvent, windowDays int, now time.Time) (*Components, error) {
	if windowDays < 0 {
		return nil, fmt.Errorf("%w: negative window %d", ErrInvalidConfig, windowDays)
	}
	if windowDays == 0 {
		windowDays = s.config.WindowDays
	}
	windowStart := now.Add(-time.Duration(windowDays) * 24 * time.Hour)

	// 1. Filter to the window, dropping insight events. Malformed
	// timestamps fail the whole computation rather than skewing it.
	var windowed []timedEvent
	for _, event := range events {
		if event.EventType == models.EventInsight {
			continue
		}
		at, err := event.When()
		if err != nil {
			return nil, err
		}
		if !at.After(windowStart) || at.After(now) {
			continue
		}
		windowed = append(windowed, timedEvent{event: event, at: at})
	}

	// 2. Split into the scoring subsets. Clinical events only count toward
	// data confidence.
	var symptoms, medications, lifestyle []timedEvent
	for _, te := range windowed {
		switch te.event.EventType {
		case models.EventSymptom:
			symptoms = append(symptoms, te)
		case models.EventMedication:
			medications = append(medications, te)
		case models.EventLifestyle:
			lifestyle = append(lifestyle, te)
		}
	}

	components := &Components{WindowedEvents: len(windowed)}

	// dayIndex maps a timestamp to its whole-day offset from the window
	// start: 0 is the oldest day, windowDays-1 contains now.
	dayIndex := func(at time.Time) int {
		idx := windowDays - 1 - int(now.Sub(at).Hours()/24)
		if idx < 0 {
			idx = 0
		}
		if idx >= windowDays {
			idx = windowDays - 1
		}
		return idx
	}

	// 3. Symptom regularity.
	regularity := s.regularityScore(symptoms, windowDays, dayIndex, components)

	// 4. Behavioral consistency.
	consistency := s.consistencyScore(medications, lifestyle, windowDays, components)

	// 5. Trajectory direction.
	trajectory := s.trajectoryScore(symptoms, windowDays, dayIndex, components)

	// 6. Composite, rounded then clamped.
	composite := clampScore(math.Round(
		s.config.RegularityWeight*regularity +
			s.config.ConsistencyWeight*consistency +
			s.config.TrajectoryWeight*trajectory))

	contributing := make([]string, 0, len(windowed))
	var firstAt, lastAt time.Time
	types := map[models.EventType]struct{}{}
	for i, te := range windowed {
		contributing = append(contributing, te.event.ID)
		types[te.event.EventType] = struct{}{}
		if i == 0 || te.at.Before(firstAt) {
			firstAt = te.at
		}
		if i == 0 || te.at.After(lastAt) {
			lastAt = te.at
		}
	}

	components.Score = &models.HSIScore{
		Score:                 composite,
		SymptomRegularity:     regularity,
		BehavioralConsistency: consistency,
		TrajectoryDirection:   trajectory,
		WindowDays:            windowDays,
		DataConfidence:        s.dataConfidence(len(windowed), len(types), lastAt.Sub(firstAt)),
		ContributingEventIDs:  contributing,
		ComputedAt:            now,
	}
	return components, nil
}

// regularityScore maps daily symptom distribution evenness to [0,100].
// Zero-count days stay in the sample; omitting them would make a bursty
// week look regular.
func (s *Scorer) regularityScore(symptoms []timedEvent, windowDays int, dayIndex func(time.Time) int, components *Components) float64 {
	if len(symptoms) < s.config.MinSymptomEvents {
		return s.config.NeutralScore
	}

	counts := make([]float64, windowDays)
	var intensities []float64
	distinct := map[string]struct{}{}
	for _, te := range symptoms {
		counts[dayIndex(te.at)]++
		if te.event.Symptom != nil {
			if v, ok := concepts.ParseIntensity(string(te.event.Symptom.Intensity)); ok {
				intensities = append(intensities, v)
			}
			distinct[concepts.Normalize(te.event.Symptom.Description)] = struct{}{}
		}
	}

	components.CountCV = coefficientOfVariation(counts)
	components.ParsedCount = len(intensities)
	components.DistinctSymptoms = len(distinct)

	score := clampScore(100 - s.config.CountCVSlope*components.CountCV)
	if len(intensities) >= 2 {
		components.IntensityCV = coefficientOfVariation(intensities)
		intensityScore := clampScore(100 - s.config.IntensityCVSlope*components.IntensityCV)
		score = (1-s.config.IntensityBlend)*score + s.config.IntensityBlend*intensityScore
	}

	penalty := s.config.DiversityPenaltyPerDescription * float64(len(distinct))
	if penalty > s.config.DiversityPenaltyCap {
		penalty = s.config.DiversityPenaltyCap
	}
	return clampScore(score - penalty)
}

// consistencyScore blends medication adherence with lifestyle logging
// coverage. The blend adapts to which signals exist; with neither the
// score is neutral rather than zero, since silence is not evidence of
// inconsistency.
func (s *Scorer) consistencyScore(medications, lifestyle []timedEvent, windowDays int, components *Components) float64 {
	taken, recorded := 0, 0
	for _, te := range medications {
		if te.event.Medication == nil || te.event.Medication.AdherenceOutcome == "" {
			continue
		}
		recorded++
		if te.event.Medication.AdherenceOutcome == models.AdherenceTaken {
			taken++
		}
	}

	adherence, hasAdherence := 0.0, recorded > 0
	if hasAdherence {
		adherence = 100 * float64(taken) / float64(recorded)
		components.AdherenceRate = adherence
	}

	coverage, hasCoverage := 0.0, len(lifestyle) > 0
	if hasCoverage {
		days := map[string]struct{}{}
		for _, te := range lifestyle {
			days[te.at.UTC().Format("2006-01-02")] = struct{}{}
		}
		coverage = 100 * float64(len(days)) / float64(windowDays)
		if coverage > 100 {
			coverage = 100
		}
		components.CoverageRate = coverage
	}

	switch {
	case hasAdherence && hasCoverage:
		return clampScore(s.config.AdherenceBlend*adherence + (1-s.config.AdherenceBlend)*coverage)
	case hasAdherence:
		return clampScore(adherence)
	case hasCoverage:
		return clampScore(coverage)
	default:
		return s.config.NeutralScore
	}
}

// trajectoryScore fits per-day symptom burden (count × mean intensity)
// against day index and maps the slope through a decreasing linear clamp:
// worsening burden pulls the score toward 0, improvement toward 100.
func (s *Scorer) trajectoryScore(symptoms []timedEvent, windowDays int, dayIndex func(time.Time) int, components *Components) float64 {
	if len(symptoms) < s.config.MinSymptomEvents {
		return s.config.NeutralScore
	}

	dayCounts := map[int]float64{}
	daySums := map[int]float64{}
	dayParsed := map[int]float64{}
	for _, te := range symptoms {
		idx := dayIndex(te.at)
		dayCounts[idx]++
		if te.event.Symptom != nil {
			if v, ok := concepts.ParseIntensity(string(te.event.Symptom.Intensity)); ok {
				daySums[idx] += v
				dayParsed[idx]++
			}
		}
	}
	if len(dayCounts) < 2 {
		return s.config.NeutralScore
	}

	xs := make([]float64, 0, len(dayCounts))
	ys := make([]float64, 0, len(dayCounts))
	for idx, count := range dayCounts {
		meanIntensity := s.config.DefaultIntensity
		if dayParsed[idx] > 0 {
			meanIntensity = daySums[idx] / dayParsed[idx]
		}
		xs = append(xs, float64(idx))
		ys = append(ys, count*meanIntensity)
	}

	components.BurdenSlope = olsSlope(xs, ys)
	drift := components.BurdenSlope * float64(windowDays)
	return clampScore(s.config.NeutralScore - s.config.TrajectorySlopeScale*drift)
}

// dataConfidence grades the windowed sample.
func (s *Scorer) dataConfidence(events, types int, span time.Duration) models.DataConfidence {
	spanDays := span.Hours() / 24
	switch {
	case events >= s.config.HighConfidenceEvents &&
		types >= s.config.HighConfidenceTypes &&
		spanDays >= float64(s.config.HighConfidenceSpanDays):
		return models.ConfidenceHigh
	case events >= s.config.MediumConfidenceEvents &&
		types >= s.config.MediumConfidenceTypes &&
		spanDays >= float64(s.config.MediumConfidenceSpanDays):
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// UpdateConfig swaps the scorer configuration at runtime. Invalid configs
// are rejected and the old one stays active.
func (s *Scorer) UpdateConfig(config *Config) error {
	if config == nil {
		return nil
	}
	if err := config.Validate(); err != nil {
		return err
	}
	s.config = config
	return nil
}

// GetConfig returns the current scorer configuration.
func (s *Scorer) GetConfig() *Config {
	return s.config
}
