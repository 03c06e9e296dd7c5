// Package process implements the per-source processors: buoy, weather
// and wave model data are parsed, cleaned, trend- and anomaly-analyzed,
// and assigned quality flags before fusion.
package process

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/models"
)

// Trend categories, shared by buoy height/period trends.
const (
	TrendSteady             = "steady"
	TrendSlightIncreasing   = "slight_increasing"
	TrendModerateIncreasing = "moderate_increasing"
	TrendStrongIncreasing   = "strong_increasing"
	TrendSlightDecreasing   = "slight_decreasing"
	TrendModerateDecreasing = "moderate_decreasing"
	TrendStrongDecreasing   = "strong_decreasing"
)

// Anomaly severities.
const (
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
)

// TrendResult is a linear trend over a buoy's recent observations.
type TrendResult struct {
	Station  string  `json:"station"`
	Field    string  `json:"field"`
	Slope    float64 `json:"slope"` // units per observation step
	Category string  `json:"category"`
	Samples  int     `json:"samples"`
}

// Anomaly marks a buoy whose latest reading deviates from the fleet.
type Anomaly struct {
	Station  string  `json:"station"`
	Field    string  `json:"field"`
	Value    float64 `json:"value"`
	ZScore   float64 `json:"z_score"`
	Severity string  `json:"severity"`
}

// Agreement summarises cross-buoy consistency.
type Agreement struct {
	Height         float64 `json:"height"`
	Period         float64 `json:"period"`
	Overall        float64 `json:"overall"`
	Interpretation string  `json:"interpretation"`
	Buoys          int     `json:"buoys"`
}

// ProcessedBuoy is one buoy after cleaning, analysis and flagging.
type ProcessedBuoy struct {
	Data         models.BuoyData `json:"data"`
	HeightTrend  TrendResult     `json:"height_trend"`
	Anomalies    []Anomaly       `json:"anomalies"`
	Quality      models.Quality  `json:"quality"`
	Freshness    float64         `json:"freshness"`
	Completeness float64         `json:"completeness"`
}

// BuoyProcessor runs the buoy pipeline: clean, trend, anomaly, flag.
type BuoyProcessor struct {
	cfg config.FusionConfig
	// trendWindow is the number of recent observations the trend uses.
	trendWindow int
}

// NewBuoyProcessor builds a processor with the fusion staleness config.
func NewBuoyProcessor(cfg config.FusionConfig) *BuoyProcessor {
	return &BuoyProcessor{cfg: cfg, trendWindow: 5}
}

// Process cleans and analyzes the fleet, returning per-buoy results and
// the cross-buoy agreement score.
func (p *BuoyProcessor) Process(buoys []models.BuoyData, now time.Time) ([]ProcessedBuoy, Agreement) {
	cleaned := make([]models.BuoyData, 0, len(buoys))
	for _, b := range buoys {
		cleaned = append(cleaned, Clean(b))
	}

	anomalies := DetectAnomalies(cleaned)
	byStation := make(map[string][]Anomaly)
	for _, a := range anomalies {
		byStation[a.Station] = append(byStation[a.Station], a)
	}

	out := make([]ProcessedBuoy, 0, len(cleaned))
	for _, b := range cleaned {
		trend := p.HeightTrend(b)
		pb := ProcessedBuoy{
			Data:         b,
			HeightTrend:  trend,
			Anomalies:    byStation[b.StationID],
			Completeness: buoyCompleteness(b),
		}
		if latest, ok := b.Latest(); ok {
			age := latest.Age(now)
			pb.Freshness = math.Max(0, 1-age.Hours()/24)
		}
		pb.Quality = p.AssignQuality(pb, now)
		out = append(out, pb)
	}

	return out, CrossBuoyAgreement(cleaned)
}

// Clean drops observations that carry neither height nor period; the
// bounds validator already nulled impossible individual values at parse.
func Clean(b models.BuoyData) models.BuoyData {
	kept := make([]models.Observation, 0, len(b.Observations))
	dropped := 0
	for _, o := range b.Observations {
		if o.WaveHeight == nil && o.DominantPeriod == nil {
			dropped++
			continue
		}
		kept = append(kept, o)
	}
	if dropped > 0 {
		log.Warn().Str("station", b.StationID).Int("dropped", dropped).Msg("dropped observations with no height or period")
	}
	out := b
	out.Observations = kept
	return out
}

// HeightTrend fits the endpoint slope over the last trendWindow
// observations: (newest - oldest) / (N - 1).
func (p *BuoyProcessor) HeightTrend(b models.BuoyData) TrendResult {
	var heights []float64
	for _, o := range b.Observations {
		if o.WaveHeight != nil {
			heights = append(heights, *o.WaveHeight)
		}
		if len(heights) == p.trendWindow {
			break
		}
	}

	result := TrendResult{Station: b.StationID, Field: "wave_height", Category: TrendSteady, Samples: len(heights)}
	if len(heights) < 2 {
		return result
	}

	// Observations are newest first; heights[0] is x_last.
	newest := heights[0]
	oldest := heights[len(heights)-1]
	result.Slope = (newest - oldest) / float64(len(heights)-1)
	result.Category = categorizeSlope(result.Slope)
	return result
}

func categorizeSlope(s float64) string {
	abs := math.Abs(s)
	switch {
	case abs < 0.01:
		return TrendSteady
	case s > 0.1:
		return TrendStrongIncreasing
	case s > 0.05:
		return TrendModerateIncreasing
	case s > 0:
		return TrendSlightIncreasing
	case s < -0.1:
		return TrendStrongDecreasing
	case s < -0.05:
		return TrendModerateDecreasing
	default:
		return TrendSlightDecreasing
	}
}

// DetectAnomalies pools heights and periods across the whole fleet and
// z-scores each buoy's latest reading against the pool. At least three
// distinct values are needed for a usable distribution.
func DetectAnomalies(buoys []models.BuoyData) []Anomaly {
	var out []Anomaly
	out = append(out, detectFieldAnomalies(buoys, "wave_height", func(o models.Observation) *float64 { return o.WaveHeight })...)
	out = append(out, detectFieldAnomalies(buoys, "dominant_period", func(o models.Observation) *float64 { return o.DominantPeriod })...)
	return out
}

func detectFieldAnomalies(buoys []models.BuoyData, field string, get func(models.Observation) *float64) []Anomaly {
	var pool []float64
	for _, b := range buoys {
		for _, o := range b.Observations {
			if v := get(o); v != nil {
				pool = append(pool, *v)
			}
		}
	}
	mean, sigma, ok := poolStats(pool)
	if !ok {
		return nil
	}

	var out []Anomaly
	for _, b := range buoys {
		latest, has := b.Latest()
		if !has {
			continue
		}
		v := get(latest)
		if v == nil {
			continue
		}
		z := math.Abs(*v-mean) / sigma
		severity := ""
		switch {
		case z > 3:
			severity = SeverityHigh
		case z > 2:
			severity = SeverityModerate
		default:
			continue
		}
		log.Warn().Str("station", b.StationID).Str("field", field).
			Float64("value", *v).Float64("z", z).Str("severity", severity).
			Msg("buoy reading deviates from fleet")
		out = append(out, Anomaly{Station: b.StationID, Field: field, Value: *v, ZScore: z, Severity: severity})
	}
	return out
}

// poolStats returns mean and standard deviation, requiring at least
// three distinct values.
func poolStats(pool []float64) (mean, sigma float64, ok bool) {
	distinct := map[float64]struct{}{}
	for _, v := range pool {
		distinct[v] = struct{}{}
	}
	if len(distinct) < 3 {
		return 0, 0, false
	}

	for _, v := range pool {
		mean += v
	}
	mean /= float64(len(pool))

	variance := 0.0
	for _, v := range pool {
		variance += (v - mean) * (v - mean)
	}
	sigma = math.Sqrt(variance / float64(len(pool)))
	if sigma == 0 {
		return 0, 0, false
	}
	return mean, sigma, true
}

// AssignQuality applies the exclusion and suspicion rules for one buoy.
func (p *BuoyProcessor) AssignQuality(pb ProcessedBuoy, now time.Time) models.Quality {
	latest, ok := pb.Data.Latest()
	if !ok {
		return models.QualityExcluded
	}
	age := latest.Age(now)

	var height, period float64
	hasHeight := latest.WaveHeight != nil
	if hasHeight {
		height = *latest.WaveHeight
	}
	hasPeriod := latest.DominantPeriod != nil
	if hasPeriod {
		period = *latest.DominantPeriod
	}

	declining := pb.HeightTrend.Category == TrendStrongDecreasing
	var moderate, high bool
	for _, a := range pb.Anomalies {
		switch a.Severity {
		case SeverityHigh:
			high = true
		case SeverityModerate:
			moderate = true
		}
	}

	switch {
	case high:
		return p.exclude(pb, "high-severity anomaly")
	case moderate && declining:
		return p.exclude(pb, "moderate anomaly on a collapsing trend")
	case len(pb.Data.Observations) <= 2 && hasHeight && height > 2.5:
		return p.exclude(pb, "large reading on a single scan")
	case hasHeight && height > 10:
		return p.exclude(pb, "unphysical height")
	case age.Hours() > p.cfg.StaleExcludedHours:
		return p.exclude(pb, fmt.Sprintf("stale by %.1fh", age.Hours()))
	}

	southSwell := latest.WaveDirection != nil && *latest.WaveDirection >= 135 && *latest.WaveDirection <= 225
	switch {
	case moderate:
		return models.QualitySuspect
	case age.Hours() > p.cfg.StaleSuspectHours:
		log.Info().Str("station", pb.Data.StationID).Float64("age_hours", age.Hours()).Msg("buoy data aging")
		return models.QualitySuspect
	case hasHeight && hasPeriod && height > 2 && period < 10:
		return models.QualitySuspect
	case southSwell && hasHeight && hasPeriod && height > 2 && period < 13:
		// Genuine south groundswell arrives long-period; short-period
		// south energy of this size is usually contamination.
		return models.QualitySuspect
	case hasHeight && hasPeriod && height > 3 && period < 11:
		return models.QualitySuspect
	}

	return models.QualityValid
}

func (p *BuoyProcessor) exclude(pb ProcessedBuoy, reason string) models.Quality {
	log.Warn().Str("station", pb.Data.StationID).Str("reason", reason).Msg("buoy excluded")
	return models.QualityExcluded
}

// CrossBuoyAgreement measures fleet consistency as 1 - min(1, cv) per
// quantity over latest readings, blended 60/40 height/period.
func CrossBuoyAgreement(buoys []models.BuoyData) Agreement {
	var heights, periods []float64
	for _, b := range buoys {
		latest, ok := b.Latest()
		if !ok {
			continue
		}
		if latest.WaveHeight != nil {
			heights = append(heights, *latest.WaveHeight)
		}
		if latest.DominantPeriod != nil {
			periods = append(periods, *latest.DominantPeriod)
		}
	}

	h := quantityAgreement(heights)
	pd := quantityAgreement(periods)
	overall := 0.6*h + 0.4*pd

	return Agreement{
		Height:         h,
		Period:         pd,
		Overall:        overall,
		Interpretation: interpretAgreement(overall),
		Buoys:          len(buoys),
	}
}

func quantityAgreement(values []float64) float64 {
	if len(values) < 2 {
		return 1.0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	sigma := math.Sqrt(variance / float64(len(values)))
	return 1 - math.Min(1, sigma/mean)
}

func interpretAgreement(overall float64) string {
	switch {
	case overall >= 0.9:
		return "excellent"
	case overall >= 0.75:
		return "good"
	case overall >= 0.6:
		return "moderate"
	case overall >= 0.4:
		return "poor"
	default:
		return "very_poor"
	}
}

func buoyCompleteness(b models.BuoyData) float64 {
	latest, ok := b.Latest()
	if !ok {
		return 0
	}
	fields := []*float64{
		latest.WaveHeight, latest.DominantPeriod, latest.AveragePeriod,
		latest.WaveDirection, latest.WindSpeed, latest.WindDirection,
		latest.AirTemperature, latest.WaterTemperature, latest.Pressure,
	}
	present := 0
	for _, f := range fields {
		if f != nil {
			present++
		}
	}
	return float64(present) / float64(len(fields))
}
