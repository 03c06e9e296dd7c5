// Package models defines the immutable record types flowing through the
// forecast pipeline: observations, buoy datasets, weather periods, wave
// model runs, swell components and events, forecast locations, and the
// fused forecast itself.
package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/makailabs/swellfuse/internal/geo"
)

// MetersToHawaiianFeet converts significant height in meters to face
// height in feet on the Hawaiian scale.
const MetersToHawaiianFeet = 6.56168

// Quality is the tri-state quality flag attached to events and components.
type Quality string

const (
	QualityValid    Quality = "valid"
	QualitySuspect  Quality = "suspect"
	QualityExcluded Quality = "excluded"
)

// Observation is a single buoy report. Fields that failed bounds
// validation are nil. Observations are immutable once constructed.
type Observation struct {
	Timestamp        time.Time `json:"timestamp"`
	WaveHeight       *float64  `json:"wave_height,omitempty"`       // meters
	DominantPeriod   *float64  `json:"dominant_period,omitempty"`   // seconds
	AveragePeriod    *float64  `json:"average_period,omitempty"`    // seconds
	WaveDirection    *float64  `json:"wave_direction,omitempty"`    // degrees from
	WindSpeed        *float64  `json:"wind_speed,omitempty"`        // m/s
	WindDirection    *float64  `json:"wind_direction,omitempty"`    // degrees from
	AirTemperature   *float64  `json:"air_temperature,omitempty"`   // degC
	WaterTemperature *float64  `json:"water_temperature,omitempty"` // degC
	Pressure         *float64  `json:"pressure,omitempty"`          // hPa
}

// Age returns how old the observation is relative to now.
func (o Observation) Age(now time.Time) time.Duration {
	return now.Sub(o.Timestamp)
}

// BuoyData is an ordered set of observations from a single NDBC station,
// newest first.
type BuoyData struct {
	StationID    string         `json:"station_id"`
	Name         string         `json:"name"`
	Lat          float64        `json:"lat"`
	Lon          float64        `json:"lon"`
	Observations []Observation  `json:"observations"`
	SpectrumPath string         `json:"spectrum_path,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewBuoyData constructs a BuoyData with observations sorted newest first.
func NewBuoyData(stationID, name string, lat, lon float64, obs []Observation) BuoyData {
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	return BuoyData{
		StationID:    stationID,
		Name:         name,
		Lat:          lat,
		Lon:          lon,
		Observations: sorted,
		Metadata:     map[string]any{},
	}
}

// Latest returns the newest observation, or false when the buoy is empty.
func (b BuoyData) Latest() (Observation, bool) {
	if len(b.Observations) == 0 {
		return Observation{}, false
	}
	return b.Observations[0], true
}

// WeatherPeriod is one NWS forecast period with units normalized at
// ingest (degC, m/s).
type WeatherPeriod struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	TemperatureC     float64   `json:"temperature_c"`
	WindSpeedMS      float64   `json:"wind_speed_ms"`
	WindDirection    *float64  `json:"wind_direction,omitempty"`
	ShortForecast    string    `json:"short_forecast"`
	DetailedForecast string    `json:"detailed_forecast"`
}

// WaveModelPoint is one grid point of a wave model forecast step.
type WaveModelPoint struct {
	Lat           float64  `json:"lat"`
	Lon           float64  `json:"lon"`
	Height        float64  `json:"height"`    // meters
	Period        float64  `json:"period"`    // seconds
	Direction     float64  `json:"direction"` // degrees from
	WindSpeed     *float64 `json:"wind_speed,omitempty"`
	WindDirection *float64 `json:"wind_direction,omitempty"`
}

// ModelForecast is one forecast step of a model run.
type ModelForecast struct {
	Timestamp time.Time        `json:"timestamp"`
	Hour      int              `json:"hour"` // forecast-hour offset
	Points    []WaveModelPoint `json:"points"`
}

// ModelData is a complete wave model run with forecasts ordered by
// forecast hour ascending. Events holds pre-extracted swell events when
// the payload carries them.
type ModelData struct {
	ModelID   string          `json:"model_id"`
	RunTime   time.Time       `json:"run_time"`
	Region    string          `json:"region"`
	Forecasts []ModelForecast `json:"forecasts"`
	Events    []SwellEvent    `json:"events,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// SortForecasts orders the run's forecast steps by hour ascending.
func (m *ModelData) SortForecasts() {
	sort.Slice(m.Forecasts, func(i, j int) bool {
		return m.Forecasts[i].Hour < m.Forecasts[j].Hour
	})
}

// SwellComponent is one spectral partition of an event. Immutable.
type SwellComponent struct {
	Height     float64 `json:"height"`     // meters
	Period     float64 `json:"period"`     // seconds
	Direction  float64 `json:"direction"`  // degrees from
	Confidence float64 `json:"confidence"` // 0-1
	Source     string  `json:"source"`
	Quality    Quality `json:"quality"`
}

// SwellEvent is a distinct swell identified by fusion: a window in time,
// a primary direction, and the components that back it.
type SwellEvent struct {
	ID           string           `json:"id"`
	Start        *time.Time       `json:"start,omitempty"`
	Peak         *time.Time       `json:"peak,omitempty"`
	End          *time.Time       `json:"end,omitempty"`
	Direction    float64          `json:"primary_direction"`
	Cardinal     string           `json:"primary_direction_cardinal"`
	Significance float64          `json:"significance"` // 0-1
	HawaiianFeet float64          `json:"hawaiian_feet"`
	Source       string           `json:"source"`
	Quality      Quality          `json:"quality"`
	Components   []SwellComponent `json:"components"`
	Secondary    []SwellComponent `json:"secondary,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
}

// NewSwellEvent validates event invariants: the time window must be
// ordered and a non-excluded event needs at least one non-excluded
// component. The cardinal label is derived from the direction.
func NewSwellEvent(id string, start, peak, end *time.Time, direction, significance, heightM float64, source string, quality Quality, components []SwellComponent) (SwellEvent, error) {
	if start != nil && peak != nil && start.After(*peak) {
		return SwellEvent{}, fmt.Errorf("swell event %s: start after peak", id)
	}
	if peak != nil && end != nil && peak.After(*end) {
		return SwellEvent{}, fmt.Errorf("swell event %s: peak after end", id)
	}
	if start != nil && end != nil && start.After(*end) {
		return SwellEvent{}, fmt.Errorf("swell event %s: start after end", id)
	}

	if quality != QualityExcluded {
		ok := false
		for _, c := range components {
			if c.Quality != QualityExcluded {
				ok = true
				break
			}
		}
		if !ok {
			return SwellEvent{}, fmt.Errorf("swell event %s: no usable components", id)
		}
	}

	return SwellEvent{
		ID:           id,
		Start:        start,
		Peak:         peak,
		End:          end,
		Direction:    geo.NormalizeDegrees(direction),
		Cardinal:     geo.DegreesToCardinal(direction),
		Significance: clamp01(significance),
		HawaiianFeet: heightM * MetersToHawaiianFeet,
		Source:       source,
		Quality:      quality,
		Components:   components,
		Metadata:     map[string]any{},
	}, nil
}

// HeightMeters recovers the significant height in meters from the stored
// Hawaiian-scale feet.
func (e SwellEvent) HeightMeters() float64 {
	return e.HawaiianFeet / MetersToHawaiianFeet
}

// ForecastLocation is a named shore with the indexes of the events that
// affect it. Events live in the owning SwellForecast's slice; locations
// refer to them by index to avoid cyclic references.
type ForecastLocation struct {
	Name         string         `json:"name"`
	Shore        string         `json:"shore"`
	Lat          float64        `json:"lat"`
	Lon          float64        `json:"lon"`
	Facing       float64        `json:"facing"`
	EventIndexes []int          `json:"event_indexes"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Events resolves the location's event indexes against the forecast's
// event arena.
func (l ForecastLocation) Events(f *SwellForecast) []SwellEvent {
	out := make([]SwellEvent, 0, len(l.EventIndexes))
	for _, idx := range l.EventIndexes {
		if idx >= 0 && idx < len(f.Events) {
			out = append(out, f.Events[idx])
		}
	}
	return out
}

// SwellForecast is the fused output: all detected events (sorted by
// significance descending then start time) plus the four shore locations.
type SwellForecast struct {
	ID        string             `json:"forecast_id"`
	Generated time.Time          `json:"generated"`
	Events    []SwellEvent       `json:"events"`
	Locations []ForecastLocation `json:"locations"`
	Metadata  map[string]any     `json:"metadata"`
}

// SortEvents applies the canonical event ordering.
func (f *SwellForecast) SortEvents() {
	sort.SliceStable(f.Events, func(i, j int) bool {
		if f.Events[i].Significance != f.Events[j].Significance {
			return f.Events[i].Significance > f.Events[j].Significance
		}
		si, sj := f.Events[i].Start, f.Events[j].Start
		switch {
		case si == nil:
			return false
		case sj == nil:
			return true
		default:
			return si.Before(*sj)
		}
	})
}

// ConfidenceReport is the five-factor confidence assessment.
type ConfidenceReport struct {
	Overall   float64            `json:"overall_score"` // 0-1
	Category  string             `json:"category"`      // high|medium|low
	Factors   map[string]float64 `json:"factors"`
	Breakdown map[string]float64 `json:"breakdown"`
	Warnings  []string           `json:"warnings"`
}

// SpecialistOutput is the uniform envelope returned by every specialist.
type SpecialistOutput struct {
	Confidence float64        `json:"confidence"` // 0-1
	Data       any            `json:"data"`
	Narrative  string         `json:"narrative"`
	Metadata   map[string]any `json:"metadata"`
}

// NewSpecialistOutput stamps the envelope with its creation time.
func NewSpecialistOutput(confidence float64, data any, narrative string) SpecialistOutput {
	return SpecialistOutput{
		Confidence: clamp01(confidence),
		Data:       data,
		Narrative:  narrative,
		Metadata:   map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)},
	}
}

// Significance scores a swell by height and period:
// min(1, H/5) * min(1.5, T/10), clipped to [0,1].
func Significance(heightM, periodS float64) float64 {
	h := heightM / 5
	if h > 1 {
		h = 1
	}
	t := periodS / 10
	if t > 1.5 {
		t = 1.5
	}
	return clamp01(h * t)
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
