package process

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/makailabs/swellfuse/internal/geo"
	"github.com/makailabs/swellfuse/internal/models"
	"github.com/makailabs/swellfuse/internal/swell"
)

// Model trend categories add a peaking state to the shared trend set.
const TrendPeaking = "peaking"

// nmToKM converts nautical miles to kilometers.
const nmToKM = 1.852

// shoreImpactRadiusKM limits which grid points count toward a shore.
const shoreImpactRadiusKM = 50.0

// PeakConditions is the largest forecast sea state across the run.
type PeakConditions struct {
	Height    float64   `json:"height"`
	Period    float64   `json:"period"`
	Direction float64   `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
	Hour      int       `json:"hour"`
}

// ShoreImpact is a model's distance-weighted read on one shore.
type ShoreImpact struct {
	Shore         string  `json:"shore"`
	MeanHeight    float64 `json:"mean_height"`
	MeanPeriod    float64 `json:"mean_period"`
	MeanDirection float64 `json:"mean_direction"`
	Exposure      float64 `json:"exposure"`
	Seasonal      float64 `json:"seasonal"`
	Impact        float64 `json:"impact"` // 0-1
	Points        int     `json:"points"`
}

// ProcessedModel is a model run after cleaning and analysis.
type ProcessedModel struct {
	Data         models.ModelData     `json:"data"`
	RangeHours   int                  `json:"range_hours"`
	HeightTrend  string               `json:"height_trend"`
	Peak         *PeakConditions      `json:"peak,omitempty"`
	ShoreImpacts []ShoreImpact        `json:"shore_impacts"`
	Events       []models.SwellEvent  `json:"events"`
}

// ModelProcessor cleans wave model runs and extracts trends, peak
// conditions, shore impacts and swell events.
type ModelProcessor struct{}

// NewModelProcessor returns a wave model processor.
func NewModelProcessor() *ModelProcessor { return &ModelProcessor{} }

// Process cleans the run and derives all analysis products. Events
// already carried by the payload are kept; otherwise they are detected
// from the forecast height series.
func (p *ModelProcessor) Process(m models.ModelData, now time.Time) ProcessedModel {
	cleaned := CleanModel(m)
	cleaned.SortForecasts()

	out := ProcessedModel{
		Data:        cleaned,
		RangeHours:  forecastRangeHours(cleaned),
		HeightTrend: p.HeightTrend(cleaned),
		Peak:        peakConditions(cleaned),
		Events:      cleaned.Events,
	}
	for _, shore := range geo.Shores() {
		if imp, ok := p.ShoreImpact(cleaned, shore, now); ok {
			out.ShoreImpacts = append(out.ShoreImpacts, imp)
		}
	}
	if len(out.Events) == 0 {
		out.Events = p.DetectEvents(cleaned)
	}
	return out
}

// ParseSWAN converts a SWAN JSON payload
// (metadata.{model,region,run_time}, forecasts[].points[]) to ModelData.
func ParseSWAN(raw map[string]any) (models.ModelData, error) {
	meta, ok := raw["metadata"].(map[string]any)
	if !ok {
		return models.ModelData{}, fmt.Errorf("swan payload missing metadata")
	}

	m := models.ModelData{
		ModelID:  str(meta["model"]),
		Region:   str(meta["region"]),
		Metadata: map[string]any{},
	}
	if m.ModelID == "" {
		m.ModelID = "swan"
	}
	if t, err := time.Parse(time.RFC3339, str(meta["run_time"])); err == nil {
		m.RunTime = t
	}

	list, _ := raw["forecasts"].([]any)
	for _, item := range list {
		fm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		fc := models.ModelForecast{Hour: int(num(fm["hour"]))}
		if t, err := time.Parse(time.RFC3339, str(fm["timestamp"])); err == nil {
			fc.Timestamp = t
		}
		points, _ := fm["points"].([]any)
		for _, pt := range points {
			pm, ok := pt.(map[string]any)
			if !ok {
				continue
			}
			fc.Points = append(fc.Points, parseModelPoint(pm, "lat", "lon", "hs", "tp", "dir", "wind_speed", "wind_dir"))
		}
		m.Forecasts = append(m.Forecasts, fc)
	}
	m.SortForecasts()
	return m, nil
}

// ParseWW3 converts a WAVEWATCH III JSON payload
// (header.{refTime,area}, data[].grid[]) to ModelData.
func ParseWW3(raw map[string]any) (models.ModelData, error) {
	header, ok := raw["header"].(map[string]any)
	if !ok {
		return models.ModelData{}, fmt.Errorf("ww3 payload missing header")
	}

	m := models.ModelData{
		ModelID:  "ww3",
		Region:   str(header["area"]),
		Metadata: map[string]any{},
	}
	if t, err := time.Parse(time.RFC3339, str(header["refTime"])); err == nil {
		m.RunTime = t
	}

	list, _ := raw["data"].([]any)
	for _, item := range list {
		fm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		fc := models.ModelForecast{Hour: int(num(fm["forecastHour"]))}
		if t, err := time.Parse(time.RFC3339, str(fm["timestamp"])); err == nil {
			fc.Timestamp = t
		}
		grid, _ := fm["grid"].([]any)
		for _, pt := range grid {
			pm, ok := pt.(map[string]any)
			if !ok {
				continue
			}
			fc.Points = append(fc.Points, parseModelPoint(pm, "lat", "lon", "hs", "tp", "dir", "ws", "wd"))
		}
		m.Forecasts = append(m.Forecasts, fc)
	}
	m.SortForecasts()
	return m, nil
}

func parseModelPoint(pm map[string]any, latKey, lonKey, hsKey, tpKey, dirKey, wsKey, wdKey string) models.WaveModelPoint {
	pt := models.WaveModelPoint{
		Lat:       num(pm[latKey]),
		Lon:       num(pm[lonKey]),
		Height:    num(pm[hsKey]),
		Period:    num(pm[tpKey]),
		Direction: geo.NormalizeDegrees(num(pm[dirKey])),
	}
	if _, ok := pm[wsKey]; ok {
		ws := num(pm[wsKey])
		pt.WindSpeed = &ws
	}
	if _, ok := pm[wdKey]; ok {
		wd := geo.NormalizeDegrees(num(pm[wdKey]))
		pt.WindDirection = &wd
	}
	return pt
}

// CleanModel drops grid points with non-positive height or period or
// directions outside [0, 360].
func CleanModel(m models.ModelData) models.ModelData {
	out := m
	out.Forecasts = make([]models.ModelForecast, 0, len(m.Forecasts))
	dropped := 0
	for _, fc := range m.Forecasts {
		kept := make([]models.WaveModelPoint, 0, len(fc.Points))
		for _, pt := range fc.Points {
			if pt.Height <= 0 || pt.Period <= 0 || pt.Direction < 0 || pt.Direction > 360 {
				dropped++
				continue
			}
			kept = append(kept, pt)
		}
		fc.Points = kept
		out.Forecasts = append(out.Forecasts, fc)
	}
	if dropped > 0 {
		log.Warn().Str("model", m.ModelID).Int("dropped", dropped).Msg("dropped invalid model grid points")
	}
	return out
}

func forecastRangeHours(m models.ModelData) int {
	if len(m.Forecasts) == 0 {
		return 0
	}
	min, max := m.Forecasts[0].Hour, m.Forecasts[0].Hour
	for _, fc := range m.Forecasts {
		if fc.Hour < min {
			min = fc.Hour
		}
		if fc.Hour > max {
			max = fc.Hour
		}
	}
	return max - min
}

// HeightTrend compares mean heights across the run split into thirds.
// A middle third at least 25% above both tails reads as peaking.
func (p *ModelProcessor) HeightTrend(m models.ModelData) string {
	heights := make([]float64, 0, len(m.Forecasts))
	for _, fc := range m.Forecasts {
		if h, ok := meanHeight(fc.Points); ok {
			heights = append(heights, h)
		}
	}
	if len(heights) < 3 {
		return TrendSteady
	}

	third := len(heights) / 3
	first := meanOf(heights[:third])
	middle := meanOf(heights[third : len(heights)-third])
	last := meanOf(heights[len(heights)-third:])

	if middle >= 1.25*first && middle >= 1.25*last {
		return TrendPeaking
	}
	if first == 0 {
		return TrendSteady
	}
	change := (last - first) / first
	switch {
	case change > 0.3:
		return TrendStrongIncreasing
	case change > 0.15:
		return TrendModerateIncreasing
	case change > 0.05:
		return TrendSlightIncreasing
	case change < -0.3:
		return TrendStrongDecreasing
	case change < -0.15:
		return TrendModerateDecreasing
	case change < -0.05:
		return TrendSlightDecreasing
	default:
		return TrendSteady
	}
}

func peakConditions(m models.ModelData) *PeakConditions {
	var peak *PeakConditions
	for _, fc := range m.Forecasts {
		for _, pt := range fc.Points {
			if peak == nil || pt.Height > peak.Height {
				peak = &PeakConditions{
					Height:    pt.Height,
					Period:    pt.Period,
					Direction: pt.Direction,
					Timestamp: fc.Timestamp,
					Hour:      fc.Hour,
				}
			}
		}
	}
	return peak
}

// ShoreImpact averages grid points within 50km of the shore's reference
// point and scores the result by exposure and season. The second return
// is false when no point is near the shore.
func (p *ModelProcessor) ShoreImpact(m models.ModelData, shore geo.Shore, now time.Time) (ShoreImpact, bool) {
	var heights, periods, dirs []float64
	for _, fc := range m.Forecasts {
		for _, pt := range fc.Points {
			distKM := swell.HaversineNM(pt.Lat, pt.Lon, shore.Lat, shore.Lon) * nmToKM
			if distKM > shoreImpactRadiusKM {
				continue
			}
			heights = append(heights, pt.Height)
			periods = append(periods, pt.Period)
			dirs = append(dirs, pt.Direction)
		}
	}
	if len(heights) == 0 {
		return ShoreImpact{}, false
	}

	meanDir := circularMean(dirs)
	exposure := geo.ExposureFactor(shore, meanDir)
	seasonal := geo.SeasonalFactor(shore, now)
	sig := models.Significance(meanOf(heights), meanOf(periods))

	return ShoreImpact{
		Shore:         shore.Name,
		MeanHeight:    meanOf(heights),
		MeanPeriod:    meanOf(periods),
		MeanDirection: meanDir,
		Exposure:      exposure,
		Seasonal:      seasonal,
		Impact:        sig * exposure * seasonal,
		Points:        len(heights),
	}, true
}

// DetectEvents finds swell events in the run's mean-height series: local
// maxima at least 20% above both neighbors become event peaks, with the
// window traced outward to where the height falls to half the peak.
func (p *ModelProcessor) DetectEvents(m models.ModelData) []models.SwellEvent {
	type step struct {
		height, period, direction float64
		at                        time.Time
	}
	var series []step
	for _, fc := range m.Forecasts {
		if len(fc.Points) == 0 {
			continue
		}
		var hs, tp, dirs []float64
		for _, pt := range fc.Points {
			hs = append(hs, pt.Height)
			tp = append(tp, pt.Period)
			dirs = append(dirs, pt.Direction)
		}
		series = append(series, step{
			height:    meanOf(hs),
			period:    meanOf(tp),
			direction: circularMean(dirs),
			at:        fc.Timestamp,
		})
	}
	if len(series) < 3 {
		return nil
	}

	var events []models.SwellEvent
	for i := 1; i < len(series)-1; i++ {
		h := series[i].height
		if h < 1.2*series[i-1].height || h < 1.2*series[i+1].height {
			continue
		}

		// Trace the window to the half-peak crossings.
		startIdx := i
		for startIdx > 0 && series[startIdx-1].height > h/2 {
			startIdx--
		}
		endIdx := i
		for endIdx < len(series)-1 && series[endIdx+1].height > h/2 {
			endIdx++
		}

		start, peakAt, end := series[startIdx].at, series[i].at, series[endIdx].at
		comp := models.SwellComponent{
			Height:     h,
			Period:     series[i].period,
			Direction:  series[i].direction,
			Confidence: 0.7,
			Source:     m.ModelID,
			Quality:    models.QualityValid,
		}
		ev, err := models.NewSwellEvent(
			uuid.NewString(), &start, &peakAt, &end,
			series[i].direction, models.Significance(h, series[i].period), h,
			m.ModelID, models.QualityValid, []models.SwellComponent{comp},
		)
		if err != nil {
			log.Warn().Str("model", m.ModelID).Err(err).Msg("skipping malformed detected event")
			continue
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Significance > events[j].Significance
	})
	return events
}

func meanHeight(points []models.WaveModelPoint) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, pt := range points {
		sum += pt.Height
	}
	return sum / float64(len(points)), true
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// circularMean averages compass directions through the unit circle so
// that 350 and 10 average to 0, not 180.
func circularMean(dirs []float64) float64 {
	if len(dirs) == 0 {
		return 0
	}
	var x, y float64
	for _, d := range dirs {
		rad := d * math.Pi / 180
		x += math.Cos(rad)
		y += math.Sin(rad)
	}
	return geo.NormalizeDegrees(math.Atan2(y, x) * 180 / math.Pi)
}
