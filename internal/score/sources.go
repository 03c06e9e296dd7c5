// Package score implements the tiered source reliability scorer and the
// five-factor forecast confidence scorer.
package score

import (
	"math"
	"strings"
	"time"
)

// Source reliability tiers. NDBC buoys are ground truth, NOAA wave models
// next, NWS text forecasts after that.
const (
	TierBuoy    = "tier1_buoy"
	TierModel   = "tier2_model"
	TierWeather = "tier3_weather"
	TierUnknown = "unknown"
)

// DefaultAccuracy is assumed until the validation store supplies a
// measured value.
const DefaultAccuracy = 0.7

// SourceScore is the reliability assessment attached to a source's
// metadata as its fusion weight.
type SourceScore struct {
	Overall      float64 `json:"overall"`
	Tier         string  `json:"tier"`
	TierScore    float64 `json:"tier_score"`
	Freshness    float64 `json:"freshness"`
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
}

// SourceScorer weights tier, freshness, completeness and accuracy into a
// single reliability score per source.
type SourceScorer struct {
	accuracy float64
}

// NewSourceScorer returns a scorer with the default accuracy assumption.
func NewSourceScorer() *SourceScorer {
	return &SourceScorer{accuracy: DefaultAccuracy}
}

// SetAccuracy installs a measured accuracy (0-1) from the validation
// store, replacing the 0.7 default for subsequent scores.
func (s *SourceScorer) SetAccuracy(a float64) {
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}
	s.accuracy = a
}

// TierFor classifies a source identifier into a reliability tier.
func TierFor(sourceID string) (string, float64) {
	id := strings.ToLower(sourceID)
	switch {
	case strings.Contains(id, "buoy") || strings.Contains(id, "ndbc"):
		return TierBuoy, 1.0
	case strings.Contains(id, "ww3") || strings.Contains(id, "wavewatch") || strings.Contains(id, "swan") || strings.Contains(id, "model"):
		return TierModel, 0.9
	case strings.Contains(id, "nws") || strings.Contains(id, "weather"):
		return TierWeather, 0.8
	default:
		return TierUnknown, 0.5
	}
}

// Freshness decays linearly from 1 at zero age to 0 at 24 hours.
func Freshness(age time.Duration) float64 {
	hours := age.Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Max(0, 1-hours/24)
}

// Score computes the weighted reliability score for a source.
// completeness is non-null fields over expected fields.
func (s *SourceScorer) Score(sourceID string, age time.Duration, completeness float64) SourceScore {
	tier, tierScore := TierFor(sourceID)
	fresh := Freshness(age)
	completeness = clamp01(completeness)

	overall := 0.4*tierScore + 0.25*fresh + 0.2*completeness + 0.15*s.accuracy

	return SourceScore{
		Overall:      overall,
		Tier:         tier,
		TierScore:    tierScore,
		Freshness:    fresh,
		Completeness: completeness,
		Accuracy:     s.accuracy,
	}
}

// ObservationCompleteness counts non-null fields over the nine expected
// buoy measurement fields.
func ObservationCompleteness(fields []*float64) float64 {
	if len(fields) == 0 {
		return 0
	}
	present := 0
	for _, f := range fields {
		if f != nil {
			present++
		}
	}
	return float64(present) / float64(len(fields))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
