package process

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/makailabs/swellfuse/internal/geo"
	"github.com/makailabs/swellfuse/internal/models"
)

// Wind condition classes by sustained speed (m/s).
const (
	WindCalm       = "calm"
	WindLight      = "light"
	WindModerate   = "moderate"
	WindStrong     = "strong"
	WindVeryStrong = "very_strong"
)

// Unit conversion factors to m/s.
const (
	mphToMS  = 0.44704
	ktToMS   = 0.51444
	kmhToMS  = 0.27778
)

// ProcessedWeather is the weather feed after unit normalization and
// textual analysis.
type ProcessedWeather struct {
	Periods    []models.WeatherPeriod `json:"periods"`
	Condition  string                 `json:"condition"` // latest period's wind class
	SurfImpact map[string]float64     `json:"surf_impact"`
	TextCounts map[string]int         `json:"text_counts"`
}

// WeatherProcessor normalizes NWS forecast periods and scores wind
// impact per shore.
type WeatherProcessor struct{}

// NewWeatherProcessor returns a weather processor.
func NewWeatherProcessor() *WeatherProcessor { return &WeatherProcessor{} }

// Process normalizes raw NWS payloads and analyzes the result.
func (p *WeatherProcessor) Process(raw map[string]any) (ProcessedWeather, error) {
	periods, err := ParseNWS(raw)
	if err != nil {
		return ProcessedWeather{}, err
	}
	return p.Analyze(periods), nil
}

// Analyze classifies wind and scores the per-shore surf impact of the
// first (current) period, and counts weather keywords across all text.
func (p *WeatherProcessor) Analyze(periods []models.WeatherPeriod) ProcessedWeather {
	out := ProcessedWeather{
		Periods:    periods,
		Condition:  WindCalm,
		SurfImpact: map[string]float64{},
		TextCounts: countWeatherKeywords(periods),
	}
	if len(periods) == 0 {
		return out
	}

	current := periods[0]
	out.Condition = ClassifyWind(current.WindSpeedMS)
	for _, shore := range geo.Shores() {
		out.SurfImpact[shore.Name] = SurfImpact(shore, current.WindSpeedMS, current.WindDirection)
	}
	return out
}

// ParseNWS converts an NWS forecast JSON document
// (properties.periods[*]) into normalized WeatherPeriods.
func ParseNWS(raw map[string]any) ([]models.WeatherPeriod, error) {
	props, ok := raw["properties"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("weather payload missing properties")
	}
	list, ok := props["periods"].([]any)
	if !ok {
		return nil, fmt.Errorf("weather payload missing periods")
	}

	periods := make([]models.WeatherPeriod, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		wp, err := parseNWSPeriod(m)
		if err != nil {
			log.Warn().Int("period", i).Err(err).Msg("skipping malformed weather period")
			continue
		}
		periods = append(periods, wp)
	}
	return periods, nil
}

func parseNWSPeriod(m map[string]any) (models.WeatherPeriod, error) {
	start, err := time.Parse(time.RFC3339, str(m["startTime"]))
	if err != nil {
		return models.WeatherPeriod{}, fmt.Errorf("bad startTime: %w", err)
	}
	end, err := time.Parse(time.RFC3339, str(m["endTime"]))
	if err != nil {
		return models.WeatherPeriod{}, fmt.Errorf("bad endTime: %w", err)
	}

	temp := num(m["temperature"])
	if strings.EqualFold(str(m["temperatureUnit"]), "F") {
		temp = (temp - 32) * 5 / 9
	}

	speedMS, err := ParseWindSpeed(str(m["windSpeed"]))
	if err != nil {
		return models.WeatherPeriod{}, err
	}

	wp := models.WeatherPeriod{
		Start:            start,
		End:              end,
		TemperatureC:     temp,
		WindSpeedMS:      speedMS,
		ShortForecast:    str(m["shortForecast"]),
		DetailedForecast: str(m["detailedForecast"]),
	}

	if deg, ok := geo.CardinalToDegrees(str(m["windDirection"])); ok {
		wp.WindDirection = &deg
	}
	return wp, nil
}

// ParseWindSpeed normalizes NWS wind speed strings like "15 mph",
// "10 to 15 mph" (upper bound kept), "8 kt" or "20 km/h" to m/s.
func ParseWindSpeed(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	factor := mphToMS
	switch {
	case strings.Contains(s, "km/h") || strings.Contains(s, "kph"):
		factor = kmhToMS
	case strings.Contains(s, "kt") || strings.Contains(s, "knot"):
		factor = ktToMS
	case strings.Contains(s, "m/s"):
		factor = 1
	}

	value := 0.0
	found := false
	for _, tok := range strings.Fields(s) {
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			value = v // ranges keep the upper bound
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("unparseable wind speed %q", s)
	}
	return value * factor, nil
}

// ClassifyWind buckets a sustained wind speed (m/s).
func ClassifyWind(speedMS float64) string {
	switch {
	case speedMS < 2.5:
		return WindCalm
	case speedMS <= 5:
		return WindLight
	case speedMS <= 7.5:
		return WindModerate
	case speedMS <= 12.5:
		return WindStrong
	default:
		return WindVeryStrong
	}
}

// SurfImpact scores the wind's effect on a shore in [-1, 1]. Wind within
// 90 degrees of the offshore bearing (facing + 180) grooms the surf;
// onshore flow degrades it, harder as it strengthens.
func SurfImpact(shore geo.Shore, speedMS float64, windDir *float64) float64 {
	class := ClassifyWind(speedMS)
	if class == WindCalm || windDir == nil {
		return 0.3 // glassy or unknown direction: mildly favorable
	}

	offshore := geo.NormalizeDegrees(shore.Facing + 180)
	isOffshore := geo.AngularDistance(*windDir, offshore) <= 90

	switch class {
	case WindLight:
		if isOffshore {
			return 0.5
		}
		return -0.2
	case WindModerate:
		if isOffshore {
			return 0.6
		}
		return -0.5
	case WindStrong:
		if isOffshore {
			return 0.7
		}
		return -0.8
	default: // very strong
		if isOffshore {
			return 0.4
		}
		return -1.0
	}
}

var weatherKeywords = []string{"rain", "shower", "thunder", "storm", "sunny", "clear", "cloudy"}

func countWeatherKeywords(periods []models.WeatherPeriod) map[string]int {
	counts := make(map[string]int, len(weatherKeywords))
	for _, kw := range weatherKeywords {
		counts[kw] = 0
	}
	for _, p := range periods {
		text := strings.ToLower(p.ShortForecast + " " + p.DetailedForecast)
		for _, kw := range weatherKeywords {
			counts[kw] += strings.Count(text, kw)
		}
	}
	return counts
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	}
	return 0
}
