// Package fusion combines processed buoy, wave model and weather data
// into a single multi-source swell forecast: events are extracted,
// merged, mapped onto shores, weighted by source reliability and scored
// for confidence.
package fusion

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/geo"
	"github.com/makailabs/swellfuse/internal/metrics"
	"github.com/makailabs/swellfuse/internal/models"
	"github.com/makailabs/swellfuse/internal/process"
	"github.com/makailabs/swellfuse/internal/score"
	"github.com/makailabs/swellfuse/internal/spectral"
	"github.com/makailabs/swellfuse/internal/swell"
)

// TideEntry is one upcoming tide turn.
type TideEntry struct {
	Time     time.Time `json:"time"`
	HeightFt float64   `json:"height_ft"`
	Type     string    `json:"type"` // H or L
}

// UpperAirReading is one sounding level.
type UpperAirReading struct {
	PressureMb    float64 `json:"pressure_mb"`
	WindSpeedKt   float64 `json:"wind_speed_kt"`
	WindDirection float64 `json:"wind_direction"`
	HeightM       float64 `json:"height_m"`
}

// Storm is a surface low identified on a pressure chart.
type Storm struct {
	Name       string    `json:"name"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	PeriodSec  float64   `json:"period_sec"`
	ObservedAt time.Time `json:"observed_at"`
}

// Auxiliary carries the secondary feeds folded into forecast metadata.
type Auxiliary struct {
	METAR        string            `json:"metar,omitempty"`
	Tides        []TideEntry       `json:"tides,omitempty"`
	WaterLevelFt *float64          `json:"water_level_ft,omitempty"`
	Tropical     string            `json:"tropical,omitempty"`
	Charts       []string          `json:"charts,omitempty"`
	Altimetry    map[string]any    `json:"altimetry,omitempty"`
	Nearshore    map[string]any    `json:"nearshore,omitempty"`
	UpperAir     []UpperAirReading `json:"upper_air,omitempty"`
	Climatology  string            `json:"climatology,omitempty"`
	Storms       []Storm           `json:"storms,omitempty"`
}

// Inputs is everything one fusion run consumes.
type Inputs struct {
	Buoys            []process.ProcessedBuoy
	Spectra          map[string]spectral.Spectrum // by station ID
	Models           []process.ProcessedModel
	Weather          *process.ProcessedWeather
	Aux              Auxiliary
	SatellitePresent bool
	DaysAhead        float64
	RecentMAE        *float64
	Now              time.Time
}

// Result is the fused forecast with its confidence and source weights.
type Result struct {
	Forecast   *models.SwellForecast
	Confidence models.ConfidenceReport
	Sources    map[string]score.SourceScore
}

// Engine runs the fusion pipeline.
type Engine struct {
	cfg        config.Config
	sources    *score.SourceScorer
	confidence *score.ConfidenceScorer
	analyzer   *spectral.Analyzer
	calc       *swell.Calculator
}

// NewEngine wires an engine from configuration.
func NewEngine(cfg config.Config) *Engine {
	return &Engine{
		cfg:        cfg,
		sources:    score.NewSourceScorer(),
		confidence: score.NewConfidenceScorer(cfg.Confidence),
		analyzer:   spectral.NewAnalyzer(cfg.Spectral),
		calc:       swell.NewCalculator(),
	}
}

// Fuse builds the forecast: score sources, extract and merge events, map
// them onto shores, fold in auxiliary feeds and attach confidence.
func (e *Engine) Fuse(in Inputs) (*Result, error) {
	if len(in.Buoys) == 0 && len(in.Models) == 0 {
		return nil, fmt.Errorf("fusion needs at least one buoy or model source")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if in.RecentMAE != nil {
		e.sources.SetAccuracy(clamp01(1 - *in.RecentMAE/5))
	}
	sourceScores := e.scoreSources(in, now)

	events := e.extractBuoyEvents(in, now)
	events = append(events, e.extractModelEvents(in.Models)...)
	events = e.mergeEvents(events)

	forecast := &models.SwellForecast{
		ID:        uuid.NewString(),
		Generated: now,
		Events:    events,
		Metadata:  map[string]any{},
	}
	forecast.SortEvents()

	e.mapShores(forecast, in, now)
	e.attachAuxiliary(forecast, in.Aux, now)

	scoresMeta := make(map[string]any, len(sourceScores))
	for id, sc := range sourceScores {
		scoresMeta[id] = sc
	}
	forecast.Metadata["source_scores"] = scoresMeta

	report := e.confidence.Score(score.ConfidenceInput{
		Forecast:     forecast,
		SourceScores: sourceScores,
		ClassesPresent: map[string]bool{
			"buoys":     len(in.Buoys) > 0,
			"models":    len(in.Models) > 0,
			"charts":    len(in.Aux.Charts) > 0,
			"satellite": in.SatellitePresent,
		},
		DaysAhead: in.DaysAhead,
		RecentMAE: in.RecentMAE,
	})
	forecast.Metadata["confidence"] = report.Overall
	forecast.Metadata["confidence_report"] = report

	log.Info().Str("forecast_id", forecast.ID).
		Int("events", len(forecast.Events)).
		Float64("confidence", report.Overall).
		Msg("forecast fused")

	return &Result{Forecast: forecast, Confidence: report, Sources: sourceScores}, nil
}

// scoreSources computes the reliability weight of every contributing
// source.
func (e *Engine) scoreSources(in Inputs, now time.Time) map[string]score.SourceScore {
	scores := make(map[string]score.SourceScore)

	for _, pb := range in.Buoys {
		age := 24 * time.Hour
		if latest, ok := pb.Data.Latest(); ok {
			age = latest.Age(now)
		}
		scores["buoy_"+pb.Data.StationID] = e.sources.Score("buoy_"+pb.Data.StationID, age, pb.Completeness)
	}

	for _, pm := range in.Models {
		completeness := 0.0
		if len(pm.Data.Forecasts) > 0 {
			withPoints := 0
			for _, fc := range pm.Data.Forecasts {
				if len(fc.Points) > 0 {
					withPoints++
				}
			}
			completeness = float64(withPoints) / float64(len(pm.Data.Forecasts))
		}
		scores[pm.Data.ModelID] = e.sources.Score(pm.Data.ModelID, now.Sub(pm.Data.RunTime), completeness)
	}

	if in.Weather != nil && len(in.Weather.Periods) > 0 {
		age := now.Sub(in.Weather.Periods[0].Start)
		if age < 0 {
			age = 0
		}
		scores["nws_weather"] = e.sources.Score("nws_weather", age, 1.0)
	}

	return scores
}

// extractBuoyEvents turns each usable buoy into events: the directional
// spectrum when it resolves multiple partitions, otherwise the latest
// observation as a single component.
func (e *Engine) extractBuoyEvents(in Inputs, now time.Time) []models.SwellEvent {
	var events []models.SwellEvent
	for _, pb := range in.Buoys {
		if pb.Quality == models.QualityExcluded {
			metrics.ExcludedEvents.WithLabelValues("buoy_" + pb.Data.StationID).Inc()
			log.Warn().Str("station", pb.Data.StationID).Msg("excluded buoy skipped during extraction")
			continue
		}

		if spec, ok := in.Spectra[pb.Data.StationID]; ok {
			peaks, err := e.analyzer.FindPeaks(spec)
			if err != nil {
				log.Warn().Str("station", pb.Data.StationID).Err(err).Msg("spectrum rejected")
			} else if len(peaks) >= 2 {
				events = append(events, e.spectralEvents(pb, peaks, now)...)
				continue
			}
		}

		if ev, ok := e.observationEvent(pb, now); ok {
			events = append(events, ev)
		}
	}
	return events
}

func (e *Engine) spectralEvents(pb process.ProcessedBuoy, peaks []spectral.Peak, now time.Time) []models.SwellEvent {
	var events []models.SwellEvent
	for _, p := range peaks {
		comp := models.SwellComponent{
			Height:     p.Height,
			Period:     p.Period,
			Direction:  p.Direction,
			Confidence: p.Confidence,
			Source:     "buoy_spectral",
			Quality:    pb.Quality,
		}
		at := now
		ev, err := models.NewSwellEvent(
			uuid.NewString(), nil, &at, nil,
			p.Direction, models.Significance(p.Height, p.Period), p.Height,
			"buoy_spectral", pb.Quality, []models.SwellComponent{comp},
		)
		if err != nil {
			log.Warn().Str("station", pb.Data.StationID).Err(err).Msg("dropping spectral partition")
			continue
		}
		ev.Metadata["station"] = pb.Data.StationID
		events = append(events, ev)
	}
	return events
}

// observationEvent builds a single event from the buoy's latest reading.
// Periods under the configured floor are windswell, not a swell event,
// and a reading without a direction cannot be mapped to a shore.
func (e *Engine) observationEvent(pb process.ProcessedBuoy, now time.Time) (models.SwellEvent, bool) {
	latest, ok := pb.Data.Latest()
	if !ok || latest.WaveHeight == nil || latest.DominantPeriod == nil {
		return models.SwellEvent{}, false
	}
	if *latest.DominantPeriod < e.cfg.Fusion.MinPeriodSeconds {
		return models.SwellEvent{}, false
	}
	if latest.WaveDirection == nil {
		log.Warn().Str("station", pb.Data.StationID).Msg("dropping direction-less buoy reading")
		return models.SwellEvent{}, false
	}
	direction := *latest.WaveDirection

	quality := pb.Quality
	if latest.Age(now).Hours() > 24 {
		quality = models.QualitySuspect
	}

	source := "buoy_" + pb.Data.StationID
	comp := models.SwellComponent{
		Height:     *latest.WaveHeight,
		Period:     *latest.DominantPeriod,
		Direction:  direction,
		Confidence: pb.Completeness,
		Source:     source,
		Quality:    quality,
	}
	at := latest.Timestamp
	ev, err := models.NewSwellEvent(
		uuid.NewString(), nil, &at, nil,
		direction, models.Significance(comp.Height, comp.Period), comp.Height,
		source, quality, []models.SwellComponent{comp},
	)
	if err != nil {
		log.Warn().Str("station", pb.Data.StationID).Err(err).Msg("dropping observation event")
		return models.SwellEvent{}, false
	}
	ev.Metadata["trend"] = pb.HeightTrend.Category
	return ev, true
}

// extractModelEvents keeps each model's detected events, falling back to
// a single event at the run's peak conditions.
func (e *Engine) extractModelEvents(runs []process.ProcessedModel) []models.SwellEvent {
	var events []models.SwellEvent
	for _, pm := range runs {
		if len(pm.Events) > 0 {
			events = append(events, pm.Events...)
			continue
		}
		if pm.Peak == nil {
			continue
		}

		comp := models.SwellComponent{
			Height:     pm.Peak.Height,
			Period:     pm.Peak.Period,
			Direction:  pm.Peak.Direction,
			Confidence: 0.6,
			Source:     pm.Data.ModelID,
			Quality:    models.QualityValid,
		}
		at := pm.Peak.Timestamp
		ev, err := models.NewSwellEvent(
			uuid.NewString(), nil, &at, nil,
			pm.Peak.Direction, models.Significance(pm.Peak.Height, pm.Peak.Period), pm.Peak.Height,
			pm.Data.ModelID, models.QualityValid, []models.SwellComponent{comp},
		)
		if err != nil {
			log.Warn().Str("model", pm.Data.ModelID).Err(err).Msg("dropping model peak event")
			continue
		}
		events = append(events, ev)
	}
	return events
}

// mergeEvents collapses duplicate detections: two events from the same
// source tier, peaking within the merge window and pointing within the
// direction tolerance, describe one swell. The more significant event
// survives and absorbs the other's components as secondaries.
func (e *Engine) mergeEvents(events []models.SwellEvent) []models.SwellEvent {
	merged := make([]models.SwellEvent, 0, len(events))
	for _, ev := range events {
		absorbed := false
		for i := range merged {
			if !e.sameSwell(merged[i], ev) {
				continue
			}
			if ev.Significance > merged[i].Significance {
				ev.Secondary = append(ev.Secondary, merged[i].Components...)
				ev.Secondary = append(ev.Secondary, merged[i].Secondary...)
				merged[i] = ev
			} else {
				merged[i].Secondary = append(merged[i].Secondary, ev.Components...)
			}
			absorbed = true
			break
		}
		if !absorbed {
			merged = append(merged, ev)
		}
	}
	return merged
}

func (e *Engine) sameSwell(a, b models.SwellEvent) bool {
	tierA, _ := score.TierFor(a.Source)
	tierB, _ := score.TierFor(b.Source)
	if tierA != tierB {
		return false
	}
	if geo.AngularDistance(a.Direction, b.Direction) > e.cfg.Fusion.MergeDirectionTol {
		return false
	}
	if a.Peak == nil || b.Peak == nil {
		return true
	}
	gap := a.Peak.Sub(*b.Peak)
	if gap < 0 {
		gap = -gap
	}
	return gap.Hours() <= e.cfg.Fusion.MergeWindowHours
}

// mapShores attaches events to the shores they expose and scores each
// shore's overall quality.
func (e *Engine) mapShores(f *models.SwellForecast, in Inputs, now time.Time) {
	windFactor := map[string]float64{}
	if in.Weather != nil {
		for shore, impact := range in.Weather.SurfImpact {
			windFactor[shore] = (impact + 1) / 2 // [-1,1] -> [0,1]
		}
	}

	for _, shore := range geo.Shores() {
		loc := models.ForecastLocation{
			Name:     shore.Name,
			Shore:    shore.Name,
			Lat:      shore.Lat,
			Lon:      shore.Lon,
			Facing:   shore.Facing,
			Metadata: map[string]any{},
		}

		bestImpact := 0.0
		for idx := range f.Events {
			ev := &f.Events[idx]
			if ev.Quality == models.QualityExcluded {
				continue
			}
			exposure := geo.ExposureFactor(shore, ev.Direction)
			if exposure <= 0 {
				continue
			}
			loc.EventIndexes = append(loc.EventIndexes, idx)
			ev.Metadata["exposure_"+shore.Name] = exposure
			if impact := ev.Significance * exposure; impact > bestImpact {
				bestImpact = impact
			}
		}

		seasonal := geo.SeasonalFactor(shore, now)
		wind := 0.5
		if w, ok := windFactor[shore.Name]; ok {
			wind = w
		}
		quality := clamp01(0.3*seasonal + 0.4*wind + 0.3*bestImpact)

		loc.Metadata["seasonal_factor"] = seasonal
		loc.Metadata["wind_factor"] = wind
		loc.Metadata["quality"] = quality
		f.Locations = append(f.Locations, loc)
	}
}

// attachAuxiliary folds the secondary feeds into forecast metadata and
// computes physics arrival windows for charted storms.
func (e *Engine) attachAuxiliary(f *models.SwellForecast, aux Auxiliary, now time.Time) {
	if aux.METAR != "" {
		f.Metadata["metar"] = aux.METAR
	}
	if len(aux.Tides) > 0 {
		tides := aux.Tides
		if len(tides) > 3 {
			tides = tides[:3]
		}
		f.Metadata["tides"] = tides
	}
	if aux.WaterLevelFt != nil {
		f.Metadata["water_level_ft"] = *aux.WaterLevelFt
	}
	if aux.Tropical != "" {
		f.Metadata["tropical"] = aux.Tropical
	}
	if len(aux.Charts) > 0 {
		f.Metadata["charts"] = aux.Charts
	}
	if len(aux.Altimetry) > 0 {
		f.Metadata["altimetry"] = aux.Altimetry
	}
	if len(aux.Nearshore) > 0 {
		f.Metadata["nearshore"] = aux.Nearshore
	}
	if aux.Climatology != "" {
		f.Metadata["climatology"] = aux.Climatology
	}

	if len(aux.UpperAir) > 0 {
		byLevel := map[string][]UpperAirReading{}
		for _, r := range aux.UpperAir {
			key := fmt.Sprintf("%.0fmb", r.PressureMb)
			byLevel[key] = append(byLevel[key], r)
		}
		f.Metadata["upper_air"] = byLevel
	}

	if len(aux.Storms) > 0 {
		arrivals := make([]map[string]any, 0, len(aux.Storms))
		for _, storm := range aux.Storms {
			observed := storm.ObservedAt
			if observed.IsZero() {
				observed = now
			}
			arrival, details, err := e.calc.Arrival(storm.Lat, storm.Lon, storm.PeriodSec, observed)
			if err != nil {
				log.Warn().Str("storm", storm.Name).Err(err).Msg("skipping storm arrival estimate")
				continue
			}
			arrivals = append(arrivals, map[string]any{
				"name":            storm.Name,
				"arrival":         arrival,
				"distance_nm":     details.DistanceNM,
				"travel_time_hrs": details.TravelHours,
				"group_vel_knots": details.GroupVelocityKnots,
			})
		}
		if len(arrivals) > 0 {
			f.Metadata["storm_arrivals"] = arrivals
		}
	}
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
