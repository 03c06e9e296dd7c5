// Package specialists implements the analysis agents layered on the
// fused forecast: a buoy data specialist, a pressure chart vision
// specialist and a senior forecaster that reconciles their outputs.
package specialists

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/llm"
	"github.com/makailabs/swellfuse/internal/models"
	"github.com/makailabs/swellfuse/internal/process"
)

// Sentinel errors for specialist orchestration.
var (
	// ErrInputValidation marks inputs a specialist cannot work with.
	ErrInputValidation = errors.New("specialist input validation failed")
	// ErrInsufficientSpecialists marks a senior synthesis with too few
	// usable specialist outputs.
	ErrInsufficientSpecialists = errors.New("insufficient specialist outputs")
)

const buoySystemPrompt = `You are a Hawaii surf forecasting specialist focused on NDBC buoy data.
You receive cleaned buoy observations with trend, anomaly and cross-buoy agreement analysis.
Interpret what the buoys say about arriving and departing swells for Oahu's shores.
Write 500 to 1000 words. Be specific about stations, heights, periods and directions.`

// BuoyAnalysis is the structured half of the buoy specialist's output.
type BuoyAnalysis struct {
	Buoys     []process.ProcessedBuoy `json:"buoys"`
	Agreement process.Agreement       `json:"agreement"`
	Summary   BuoySummary             `json:"summary"`
}

// BuoySummary aggregates the fleet's latest readings.
type BuoySummary struct {
	Stations      int      `json:"stations"`
	MeanHeight    float64  `json:"mean_height"`
	MeanPeriod    float64  `json:"mean_period"`
	MaxHeight     float64  `json:"max_height"`
	MaxStation    string   `json:"max_station"`
	Anomalies     int      `json:"anomalies"`
	Excluded      int      `json:"excluded"`
	TrendSummary  string   `json:"trend_summary"`
	SuspectFlags  []string `json:"suspect_flags,omitempty"`
}

// BuoySpecialist runs the buoy processing pipeline and asks the language
// model for an interpretation.
type BuoySpecialist struct {
	client    llm.Client
	processor *process.BuoyProcessor
}

// NewBuoySpecialist wires a buoy specialist.
func NewBuoySpecialist(client llm.Client, cfg config.Config) *BuoySpecialist {
	return &BuoySpecialist{
		client:    client,
		processor: process.NewBuoyProcessor(cfg.Fusion),
	}
}

// Analyze normalizes the inputs through the single gate, runs trend and
// anomaly analysis, and produces the specialist envelope.
func (s *BuoySpecialist) Analyze(ctx context.Context, inputs []models.BuoyInput, now time.Time) (models.SpecialistOutput, error) {
	if len(inputs) == 0 {
		return models.SpecialistOutput{}, fmt.Errorf("%w: no buoy inputs", ErrInputValidation)
	}

	var buoys []models.BuoyData
	for i, in := range inputs {
		data, err := models.NormalizeBuoy(in)
		if err != nil {
			log.Warn().Int("input", i).Err(err).Msg("buoy input rejected")
			continue
		}
		buoys = append(buoys, data)
	}
	if len(buoys) == 0 {
		return models.SpecialistOutput{}, fmt.Errorf("%w: no usable buoy inputs", ErrInputValidation)
	}

	processed, agreement := s.processor.Process(buoys, now)
	analysis := BuoyAnalysis{
		Buoys:     processed,
		Agreement: agreement,
		Summary:   summarize(processed),
	}

	confidence := s.confidence(analysis)

	resp, err := s.client.GenerateText(ctx, buoySystemPrompt, s.prompt(analysis, now), nil)
	if err != nil {
		return models.SpecialistOutput{}, fmt.Errorf("buoy specialist: %w", err)
	}

	out := models.NewSpecialistOutput(confidence, analysis, resp.Text)
	out.Metadata["specialist"] = "buoy"
	out.Metadata["stations"] = analysis.Summary.Stations

	freshness := make(map[string]float64, len(processed))
	fieldCompleteness := make(map[string]float64, len(processed))
	for _, pb := range processed {
		fieldCompleteness[pb.Data.StationID] = pb.Completeness
		if latest, ok := pb.Data.Latest(); ok {
			freshness[pb.Data.StationID] = latest.Age(now).Hours()
		}
	}
	out.Metadata["completeness"] = fieldCompleteness
	out.Metadata["freshness_hours"] = freshness
	return out, nil
}

func summarize(processed []process.ProcessedBuoy) BuoySummary {
	sum := BuoySummary{Stations: len(processed)}
	var heights, periods []float64
	trendCounts := map[string]int{}

	for _, pb := range processed {
		if pb.Quality == models.QualityExcluded {
			sum.Excluded++
		}
		if pb.Quality == models.QualitySuspect {
			sum.SuspectFlags = append(sum.SuspectFlags, pb.Data.StationID)
		}
		sum.Anomalies += len(pb.Anomalies)
		trendCounts[pb.HeightTrend.Category]++

		latest, ok := pb.Data.Latest()
		if !ok {
			continue
		}
		if latest.WaveHeight != nil {
			heights = append(heights, *latest.WaveHeight)
			if *latest.WaveHeight > sum.MaxHeight {
				sum.MaxHeight = *latest.WaveHeight
				sum.MaxStation = pb.Data.StationID
			}
		}
		if latest.DominantPeriod != nil {
			periods = append(periods, *latest.DominantPeriod)
		}
	}

	sum.MeanHeight = mean(heights)
	sum.MeanPeriod = mean(periods)

	dominant, count := "", 0
	for cat, n := range trendCounts {
		if n > count {
			dominant, count = cat, n
		}
	}
	sum.TrendSummary = dominant
	return sum
}

// confidence blends data quality, cross-buoy consistency and field
// completeness 50/30/20. Quality is the fraction of buoys with no
// anomaly flag.
func (s *BuoySpecialist) confidence(a BuoyAnalysis) float64 {
	quality := 1.0
	if a.Summary.Stations > 0 {
		anomalous := 0
		for _, pb := range a.Buoys {
			if len(pb.Anomalies) > 0 {
				anomalous++
			}
		}
		quality = 1 - float64(anomalous)/float64(a.Summary.Stations)
	}

	completeness := 0.0
	for _, pb := range a.Buoys {
		completeness += pb.Completeness
	}
	if len(a.Buoys) > 0 {
		completeness /= float64(len(a.Buoys))
	}

	return 0.5*quality + 0.3*a.Agreement.Overall + 0.2*completeness
}

func (s *BuoySpecialist) prompt(a BuoyAnalysis, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Buoy network status at %s:\n\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Fleet: %d stations, mean %.1fm @ %.1fs, largest %.1fm at %s\n",
		a.Summary.Stations, a.Summary.MeanHeight, a.Summary.MeanPeriod, a.Summary.MaxHeight, a.Summary.MaxStation)
	fmt.Fprintf(&b, "Cross-buoy agreement: %.2f (%s)\n", a.Agreement.Overall, a.Agreement.Interpretation)
	fmt.Fprintf(&b, "Dominant trend: %s\n\n", a.Summary.TrendSummary)

	for _, pb := range a.Buoys {
		latest, ok := pb.Data.Latest()
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "Station %s [%s]:", pb.Data.StationID, pb.Quality)
		if latest.WaveHeight != nil {
			fmt.Fprintf(&b, " %.1fm", *latest.WaveHeight)
		}
		if latest.DominantPeriod != nil {
			fmt.Fprintf(&b, " @ %.1fs", *latest.DominantPeriod)
		}
		if latest.WaveDirection != nil {
			fmt.Fprintf(&b, " from %.0f deg", *latest.WaveDirection)
		}
		fmt.Fprintf(&b, ", trend %s", pb.HeightTrend.Category)
		for _, an := range pb.Anomalies {
			fmt.Fprintf(&b, ", %s anomaly (%s z=%.1f)", an.Severity, an.Field, an.ZScore)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nInterpret the swell picture these buoys paint for Oahu's four shores.")
	return b.String()
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
