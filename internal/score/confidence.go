package score

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/models"
)

// Confidence category thresholds.
const (
	CategoryHigh   = "high"
	CategoryMedium = "medium"
	CategoryLow    = "low"
)

// Expected source classes for the completeness factor.
var expectedClasses = []string{"buoys", "models", "charts", "satellite"}

// ConfidenceInput carries everything the five-factor scorer consumes.
type ConfidenceInput struct {
	Forecast     *models.SwellForecast
	SourceScores map[string]SourceScore
	// ClassesPresent marks which of buoys/models/charts/satellite feeds
	// delivered data for this run.
	ClassesPresent map[string]bool
	DaysAhead      float64
	// RecentMAE is the validation store's mean absolute error in feet;
	// nil when the store is unavailable.
	RecentMAE *float64
}

// ConfidenceScorer combines consensus, reliability, completeness, horizon
// and accuracy into one weighted confidence score with warnings.
type ConfidenceScorer struct {
	cfg config.ConfidenceConfig
}

// NewConfidenceScorer builds a scorer with the given factor weights.
func NewConfidenceScorer(cfg config.ConfidenceConfig) *ConfidenceScorer {
	return &ConfidenceScorer{cfg: cfg}
}

// Score produces the ConfidenceReport for a fused forecast.
func (s *ConfidenceScorer) Score(in ConfidenceInput) models.ConfidenceReport {
	factors := map[string]float64{
		"consensus":    s.consensus(in.Forecast),
		"reliability":  s.reliability(in.SourceScores),
		"completeness": s.completeness(in.ClassesPresent),
		"horizon":      s.horizon(in.DaysAhead),
		"accuracy":     s.accuracy(in.RecentMAE),
	}

	overall := s.cfg.ConsensusWeight*factors["consensus"] +
		s.cfg.ReliabilityWeight*factors["reliability"] +
		s.cfg.CompletenessWeight*factors["completeness"] +
		s.cfg.HorizonWeight*factors["horizon"] +
		s.cfg.AccuracyWeight*factors["accuracy"]

	breakdown := make(map[string]float64, len(in.SourceScores))
	for id, sc := range in.SourceScores {
		breakdown[id] = sc.Overall
	}

	return models.ConfidenceReport{
		Overall:   overall,
		Category:  Categorize(overall),
		Factors:   factors,
		Breakdown: breakdown,
		Warnings:  s.warnings(factors, in.ClassesPresent),
	}
}

// Categorize maps a 0-1 score onto high/medium/low.
func Categorize(overall float64) string {
	switch {
	case overall >= 0.7:
		return CategoryHigh
	case overall >= 0.4:
		return CategoryMedium
	default:
		return CategoryLow
	}
}

// consensus measures model agreement as 1/(1+CV) over model event
// heights. Fewer than two model events fall back to 0.7; none to 0.5.
func (s *ConfidenceScorer) consensus(f *models.SwellForecast) float64 {
	if f == nil {
		return 0.5
	}
	var heights []float64
	for _, e := range f.Events {
		if tier, _ := TierFor(e.Source); tier == TierModel {
			heights = append(heights, e.HeightMeters())
		}
	}
	switch len(heights) {
	case 0:
		return 0.5
	case 1:
		return 0.7
	}

	mean := 0.0
	for _, h := range heights {
		mean += h
	}
	mean /= float64(len(heights))
	if mean == 0 {
		return 0.5
	}

	variance := 0.0
	for _, h := range heights {
		variance += (h - mean) * (h - mean)
	}
	sigma := math.Sqrt(variance / float64(len(heights)))

	cv := sigma / mean
	return 1 / (1 + cv)
}

// reliability averages the overall score of every contributing source.
func (s *ConfidenceScorer) reliability(scores map[string]SourceScore) float64 {
	if len(scores) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, sc := range scores {
		sum += sc.Overall
	}
	return sum / float64(len(scores))
}

// completeness counts present source classes over the four expected.
func (s *ConfidenceScorer) completeness(present map[string]bool) float64 {
	have := 0
	for _, class := range expectedClasses {
		if present[class] {
			have++
		}
	}
	return float64(have) / float64(len(expectedClasses))
}

// horizon degrades with forecast lead time, floored at 0.5.
func (s *ConfidenceScorer) horizon(daysAhead float64) float64 {
	if daysAhead < 0 {
		daysAhead = 0
	}
	return math.Max(0.5, 1-0.1*daysAhead)
}

// accuracy converts validation MAE (feet) into a 0-1 factor; an absent
// store keeps the 0.7 default.
func (s *ConfidenceScorer) accuracy(recentMAE *float64) float64 {
	if recentMAE == nil {
		return DefaultAccuracy
	}
	return math.Max(0, 1-*recentMAE/5)
}

func (s *ConfidenceScorer) warnings(factors map[string]float64, present map[string]bool) []string {
	var warnings []string
	if factors["completeness"] < 0.5 {
		warnings = append(warnings, "limited data")
	}
	if factors["consensus"] < 0.5 {
		warnings = append(warnings, "model disagreement")
	}

	var missing []string
	for _, class := range expectedClasses {
		if !present[class] {
			missing = append(missing, class)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		warnings = append(warnings, fmt.Sprintf("Missing feeds: %s", strings.Join(missing, ", ")))
	}
	return warnings
}
