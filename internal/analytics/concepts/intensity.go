package concepts

import (
	"regexp"
	"strconv"
	"strings"
)

// intensityScaleMax is the upper bound of the normalized intensity scale.
const intensityScaleMax = 10.0

// numericIntensityPattern matches "7", "6.5" or "7/10" style intensities.
var numericIntensityPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:/\s*(\d+(?:\.\d+)?))?`)

// intensityKeyword maps a descriptive word to its 0-10 value.
type intensityKeyword struct {
	Word  string
	Value float64
}

// intensityKeywords is walked in order, strongest wording first; the first
// substring match wins. Slice order is the tie-break, so this must stay a
// slice.
var intensityKeywords = []intensityKeyword{
	{Word: "unbearable", Value: 10},
	{Word: "worst", Value: 10},
	{Word: "extreme", Value: 9},
	{Word: "severe", Value: 8},
	{Word: "intense", Value: 8},
	{Word: "strong", Value: 7},
	{Word: "bad", Value: 7},
	{Word: "moderate", Value: 5},
	{Word: "noticeable", Value: 5},
	{Word: "mild", Value: 3},
	{Word: "slight", Value: 2},
	{Word: "minimal", Value: 1},
	{Word: "none", Value: 0},
}

// ParseIntensity converts a free-form intensity into a 0-10 value.
// Numeric forms take priority: "N/D" normalizes to N*10/D, a bare number
// is taken on the 0-10 scale directly. Without a usable number the keyword
// table decides. Returns false when nothing parses.
func ParseIntensity(raw string) (float64, bool) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return 0, false
	}

	if m := numericIntensityPattern.FindStringSubmatch(text); m != nil {
		value, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			if m[2] != "" {
				if denom, derr := strconv.ParseFloat(m[2], 64); derr == nil && denom > 0 {
					value = value * intensityScaleMax / denom
				}
			}
			return clampIntensity(value), true
		}
	}

	for _, kw := range intensityKeywords {
		if strings.Contains(text, kw.Word) {
			return kw.Value, true
		}
	}
	return 0, false
}

func clampIntensity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > intensityScaleMax {
		return intensityScaleMax
	}
	return v
}
