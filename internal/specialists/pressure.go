package specialists

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/makailabs/swellfuse/internal/llm"
	"github.com/makailabs/swellfuse/internal/models"
	"github.com/makailabs/swellfuse/internal/swell"
)

const pressureSystemPrompt = `You are a Hawaii surf forecasting specialist reading North Pacific and South Pacific surface pressure charts.
Identify pressure systems, swell-generating fetches, predicted swells for Oahu and frontal boundaries.
Respond with JSON only, no prose, matching:
{
  "systems": [{"type": "low|high", "central_pressure_mb": 0, "lat": 0, "lon": 0, "movement": ""}],
  "fetches": [{"quality": "strong|moderate|weak", "direction_deg": 0, "length_nm": 0, "target_shore": ""}],
  "predicted_swells": [{"direction_deg": 0, "period_sec": 0, "height_m": 0, "confidence": 0, "arrival": "", "source_lat": 0, "source_lon": 0}],
  "fronts": [{"type": "", "position": ""}],
  "chart_span_hours": 0
}`

// PressureSystem is one surface feature read off a chart.
type PressureSystem struct {
	Type              string  `json:"type"`
	CentralPressureMb float64 `json:"central_pressure_mb"`
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
	Movement          string  `json:"movement"`
}

// Fetch is a swell-generating wind field.
type Fetch struct {
	Quality      string  `json:"quality"` // strong|moderate|weak
	DirectionDeg float64 `json:"direction_deg"`
	LengthNM     float64 `json:"length_nm"`
	TargetShore  string  `json:"target_shore"`
}

// PredictedSwell is a swell the charts say is coming.
type PredictedSwell struct {
	DirectionDeg float64 `json:"direction_deg"`
	PeriodSec    float64 `json:"period_sec"`
	HeightM      float64 `json:"height_m"`
	Confidence   float64 `json:"confidence"`
	LLMArrival   string  `json:"arrival"`
	SourceLat    float64 `json:"source_lat"`
	SourceLon    float64 `json:"source_lon"`

	// Physics enhancement, filled in after parsing.
	PhysicsArrival string  `json:"physics_arrival,omitempty"`
	TravelHours    float64 `json:"travel_time_hrs,omitempty"`
	DistanceNM     float64 `json:"distance_nm,omitempty"`
}

// Front is a frontal boundary.
type Front struct {
	Type     string `json:"type"`
	Position string `json:"position"`
}

// ChartAnalysis is the structured output of the pressure specialist.
type ChartAnalysis struct {
	Systems        []PressureSystem `json:"systems"`
	Fetches        []Fetch          `json:"fetches"`
	PredictedSwell []PredictedSwell `json:"predicted_swells"`
	Fronts         []Front          `json:"fronts"`
	ChartSpanHours float64          `json:"chart_span_hours"`
}

// PressureSpecialist reads surface pressure charts through a vision
// model and enhances its swell predictions with propagation physics.
type PressureSpecialist struct {
	client llm.Client
	calc   *swell.Calculator
}

// NewPressureSpecialist wires a pressure chart specialist.
func NewPressureSpecialist(client llm.Client) *PressureSpecialist {
	return &PressureSpecialist{client: client, calc: swell.NewCalculator()}
}

// Analyze sends the charts to the vision model and parses the JSON
// analysis. A malformed response degrades to narrative-only output
// rather than failing the run.
func (s *PressureSpecialist) Analyze(ctx context.Context, images []llm.Image, now time.Time) (models.SpecialistOutput, error) {
	valid := validImages(images)
	if len(valid) == 0 {
		return models.SpecialistOutput{}, fmt.Errorf("%w: no readable chart images", ErrInputValidation)
	}

	user := fmt.Sprintf("Analyze these %d surface pressure charts for surf-relevant features. Current time: %s.",
		len(valid), now.UTC().Format(time.RFC3339))
	if labels := imageLabels(valid); labels != "" {
		user += " Charts in order: " + labels + "."
	}
	resp, err := s.client.GenerateText(ctx, pressureSystemPrompt, user, valid)
	if err != nil {
		return models.SpecialistOutput{}, fmt.Errorf("pressure specialist: %w", err)
	}

	analysis, parseErr := parseChartAnalysis(resp.Text)
	if parseErr != nil {
		log.Warn().Err(parseErr).Msg("chart analysis is not valid JSON, keeping narrative only")
		out := models.NewSpecialistOutput(0.4, ChartAnalysis{}, resp.Text)
		out.Metadata["specialist"] = "pressure"
		out.Metadata["parse_error"] = parseErr.Error()
		return out, nil
	}

	s.enhanceArrivals(&analysis, now)

	out := models.NewSpecialistOutput(s.confidence(analysis, len(valid)), analysis, resp.Text)
	out.Metadata["specialist"] = "pressure"
	out.Metadata["charts"] = len(valid)
	return out, nil
}

// imageLabels joins the attached images' descriptions for the prompt.
func imageLabels(images []llm.Image) string {
	var parts []string
	for i, img := range images {
		if img.Description == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d) %s", i+1, img.Description))
	}
	return strings.Join(parts, ", ")
}

// validImages keeps images whose file exists with a supported extension.
func validImages(images []llm.Image) []llm.Image {
	allowed := map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}
	var valid []llm.Image
	for _, img := range images {
		if !allowed[strings.ToLower(filepath.Ext(img.Path))] {
			log.Warn().Str("path", img.Path).Msg("unsupported chart image type")
			continue
		}
		if _, err := os.Stat(img.Path); err != nil {
			log.Warn().Str("path", img.Path).Err(err).Msg("chart image unreadable")
			continue
		}
		valid = append(valid, img)
	}
	return valid
}

// parseChartAnalysis strips markdown code fences and decodes the JSON.
func parseChartAnalysis(text string) (ChartAnalysis, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var analysis ChartAnalysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return ChartAnalysis{}, err
	}
	return analysis, nil
}

// enhanceArrivals replaces vague model arrival text with group-velocity
// physics where the swell carries a source position. The model's own
// arrival estimate is preserved alongside.
func (s *PressureSpecialist) enhanceArrivals(a *ChartAnalysis, now time.Time) {
	for i := range a.PredictedSwell {
		sw := &a.PredictedSwell[i]
		if sw.SourceLat == 0 && sw.SourceLon == 0 {
			continue
		}
		arrival, details, err := s.calc.Arrival(sw.SourceLat, sw.SourceLon, sw.PeriodSec, now)
		if err != nil {
			log.Warn().Float64("period", sw.PeriodSec).Err(err).Msg("skipping physics arrival")
			continue
		}
		sw.PhysicsArrival = arrival.UTC().Format(time.RFC3339)
		sw.TravelHours = details.TravelHours
		sw.DistanceNM = details.DistanceNM
	}
}

// confidence blends swell prediction quality, fetch consistency and
// chart-set completeness 50/30/20. Charts spanning a day or more earn
// the quality term a 10% bonus.
func (s *PressureSpecialist) confidence(a ChartAnalysis, imageCount int) float64 {
	var completeness float64
	switch {
	case imageCount >= 6:
		completeness = 1.0
	case imageCount >= 4:
		completeness = 0.8
	case imageCount >= 2:
		completeness = 0.6
	default:
		completeness = 0.4
	}

	consistency := 0.5
	if len(a.Fetches) > 0 {
		sum := 0.0
		for _, f := range a.Fetches {
			switch f.Quality {
			case "strong":
				sum += 1.0
			case "moderate":
				sum += 0.7
			case "weak":
				sum += 0.4
			default:
				sum += 0.5
			}
		}
		consistency = sum / float64(len(a.Fetches))
	}

	quality := 0.4
	if len(a.PredictedSwell) > 0 {
		sum := 0.0
		for _, sw := range a.PredictedSwell {
			sum += clamp01(sw.Confidence)
		}
		quality = sum / float64(len(a.PredictedSwell))
	}
	if a.ChartSpanHours >= 24 {
		quality *= 1.1
	}

	return clamp01(0.5*quality + 0.3*consistency + 0.2*completeness)
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
