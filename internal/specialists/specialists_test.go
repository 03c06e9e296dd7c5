package specialists

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/llm"
	"github.com/makailabs/swellfuse/internal/models"
	"github.com/makailabs/swellfuse/internal/process"
)

// mockClient answers vision calls (calls carrying images) with canned
// JSON and text calls with a canned narrative.
type mockClient struct {
	mu             sync.Mutex
	visionResponse string
	textResponse   string
	err            error
	calls          int
}

func (m *mockClient) GenerateText(_ context.Context, _, _ string, images []llm.Image) (llm.Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return llm.Response{}, m.err
	}
	if len(images) > 0 {
		return llm.Response{Text: m.visionResponse, Usage: llm.Usage{PromptTokens: 2000, CompletionTokens: 400}}, nil
	}
	return llm.Response{Text: m.textResponse, Usage: llm.Usage{PromptTokens: 1000, CompletionTokens: 600}}, nil
}

func f(v float64) *float64 { return &v }

func buoyInputs(now time.Time) []models.BuoyInput {
	mk := func(station string, height float64) models.BuoyInput {
		data := models.NewBuoyData(station, station, 21.67, -158.12, []models.Observation{
			{Timestamp: now, WaveHeight: f(height), DominantPeriod: f(15.0), WaveDirection: f(315.0)},
			{Timestamp: now.Add(-time.Hour), WaveHeight: f(height - 0.1), DominantPeriod: f(15.0), WaveDirection: f(316.0)},
		})
		return models.BuoyInput{Parsed: &data}
	}
	return []models.BuoyInput{mk("51201", 3.0), mk("51101", 3.2), mk("51208", 2.9)}
}

func chartImages(t *testing.T) []llm.Image {
	return chartImagesN(t, 1)
}

func chartImagesN(t *testing.T, n int) []llm.Image {
	t.Helper()
	dir := t.TempDir()
	images := make([]llm.Image, 0, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("surface_analysis_%d.png", i))
		require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
		images = append(images, llm.Image{Path: path, Detail: "high"})
	}
	return images
}

const chartJSON = `{
	"systems": [{"type": "low", "central_pressure_mb": 985, "lat": 40, "lon": -158, "movement": "east"}],
	"fetches": [{"quality": "strong", "direction_deg": 315, "length_nm": 600, "target_shore": "North Shore"}],
	"predicted_swells": [{"direction_deg": 315, "period_sec": 14, "height_m": 3.0, "confidence": 0.8, "arrival": "Tuesday", "source_lat": 40, "source_lon": -158}],
	"fronts": [{"type": "cold", "position": "north of 35N"}],
	"chart_span_hours": 48
}`

func TestBuoySpecialist_Analyze(t *testing.T) {
	now := time.Now().UTC()
	client := &mockClient{textResponse: "The northwest pulse is filling in across the outer buoys."}
	spec := NewBuoySpecialist(client, config.Default())

	out, err := spec.Analyze(context.Background(), buoyInputs(now), now)
	require.NoError(t, err)

	assert.NotEmpty(t, out.Narrative)
	assert.Greater(t, out.Confidence, 0.3)
	assert.Equal(t, "buoy", out.Metadata["specialist"])

	analysis, ok := out.Data.(BuoyAnalysis)
	require.True(t, ok)
	assert.Equal(t, 3, analysis.Summary.Stations)
	assert.Equal(t, "51101", analysis.Summary.MaxStation)
	assert.Greater(t, analysis.Agreement.Overall, 0.9, "tight fleet should agree")
}

func TestBuoySpecialist_EmptyInput(t *testing.T) {
	spec := NewBuoySpecialist(&mockClient{textResponse: "x"}, config.Default())
	_, err := spec.Analyze(context.Background(), nil, time.Now())
	assert.ErrorIs(t, err, ErrInputValidation)

	_, err = spec.Analyze(context.Background(), []models.BuoyInput{{}}, time.Now())
	assert.ErrorIs(t, err, ErrInputValidation)
}

func TestBuoySpecialist_RawInputNormalized(t *testing.T) {
	now := time.Now().UTC()
	raw := models.BuoyInput{Raw: map[string]any{
		"station_id": "51201",
		"name":       "Waimea Bay",
		"lat":        21.67,
		"lon":        -158.12,
		"observations": []any{
			map[string]any{
				"timestamp": now.Format(time.RFC3339),
				"WVHT":      "2.8", "DPD": "15.0", "MWD": "315",
			},
		},
	}}

	client := &mockClient{textResponse: "Single station read."}
	out, err := NewBuoySpecialist(client, config.Default()).Analyze(context.Background(), []models.BuoyInput{raw}, now)
	require.NoError(t, err)

	analysis := out.Data.(BuoyAnalysis)
	require.Len(t, analysis.Buoys, 1)
	latest, ok := analysis.Buoys[0].Data.Latest()
	require.True(t, ok)
	require.NotNil(t, latest.WaveHeight)
	assert.InDelta(t, 2.8, *latest.WaveHeight, 1e-9)
}

func TestPressureSpecialist_ParsesAndEnhances(t *testing.T) {
	now := time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)
	client := &mockClient{visionResponse: "```json\n" + chartJSON + "\n```"}
	spec := NewPressureSpecialist(client)

	out, err := spec.Analyze(context.Background(), chartImages(t), now)
	require.NoError(t, err)

	analysis, ok := out.Data.(ChartAnalysis)
	require.True(t, ok)
	require.Len(t, analysis.PredictedSwell, 1)

	sw := analysis.PredictedSwell[0]
	assert.Equal(t, "Tuesday", sw.LLMArrival, "the model's own estimate is preserved")
	assert.NotEmpty(t, sw.PhysicsArrival)
	assert.Greater(t, sw.TravelHours, 40.0)
	assert.Less(t, sw.TravelHours, 55.0)

	// One chart image, strong fetch, 0.8 swell confidence with the 48h
	// span bonus: 0.5*(0.8*1.1) + 0.3*1.0 + 0.2*0.4.
	assert.InDelta(t, 0.5*(0.8*1.1)+0.3*1.0+0.2*0.4, out.Confidence, 1e-9)
}

func TestPressureSpecialist_ConfidenceTracksChartCount(t *testing.T) {
	now := time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)
	sixChartJSON := `{
		"fetches": [{"quality": "strong", "direction_deg": 315, "length_nm": 600, "target_shore": "North Shore"}],
		"predicted_swells": [{"direction_deg": 315, "period_sec": 14, "height_m": 3.0, "confidence": 0.6, "arrival": "Tuesday"}],
		"chart_span_hours": 48
	}`
	client := &mockClient{visionResponse: sixChartJSON}
	spec := NewPressureSpecialist(client)

	out, err := spec.Analyze(context.Background(), chartImagesN(t, 6), now)
	require.NoError(t, err)

	// A full six-chart set maxes completeness regardless of how few
	// features parse out: 0.5*(0.6*1.1) + 0.3*1.0 + 0.2*1.0.
	assert.InDelta(t, 0.83, out.Confidence, 1e-9)
}

func TestPressureSpecialist_MalformedJSONDegrades(t *testing.T) {
	client := &mockClient{visionResponse: "The low near the dateline looks potent."}
	out, err := NewPressureSpecialist(client).Analyze(context.Background(), chartImages(t), time.Now())
	require.NoError(t, err)

	assert.InDelta(t, 0.4, out.Confidence, 1e-9)
	assert.Contains(t, out.Narrative, "dateline")
	assert.Contains(t, out.Metadata, "parse_error")
}

func TestPressureSpecialist_RejectsBadImages(t *testing.T) {
	spec := NewPressureSpecialist(&mockClient{visionResponse: chartJSON})
	_, err := spec.Analyze(context.Background(), []llm.Image{
		{Path: "charts/analysis.pdf"},
		{Path: "does/not/exist.png"},
	}, time.Now())
	assert.ErrorIs(t, err, ErrInputValidation)
}

func seniorForecast(t *testing.T) *models.SwellForecast {
	t.Helper()
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	comp := models.SwellComponent{Height: 3.0, Period: 15, Direction: 315, Confidence: 0.8, Source: "buoy_51201", Quality: models.QualityValid}
	peak := now.Add(12 * time.Hour)
	ev, err := models.NewSwellEvent("nw", nil, &peak, nil, 315, models.Significance(3.0, 15), 3.0,
		"buoy_51201", models.QualityValid, []models.SwellComponent{comp})
	require.NoError(t, err)
	return &models.SwellForecast{
		ID: "f-1", Generated: now,
		Events:   []models.SwellEvent{ev},
		Metadata: map[string]any{},
	}
}

func specialistOutputs(buoyDir, chartDir float64) map[string]models.SpecialistOutput {
	return customOutputs(buoyDir, process.TrendSteady, ChartAnalysis{
		PredictedSwell: []PredictedSwell{{DirectionDeg: chartDir, PeriodSec: 14, HeightM: 3.1, Confidence: 0.8}},
	})
}

func customOutputs(buoyDir float64, trend string, charts ChartAnalysis) map[string]models.SpecialistOutput {
	now := time.Now().UTC()
	data := models.NewBuoyData("51201", "Waimea", 21.67, -158.12, []models.Observation{
		{Timestamp: now, WaveHeight: f(3.0), DominantPeriod: f(15.0), WaveDirection: f(buoyDir)},
	})
	buoyOut := models.NewSpecialistOutput(0.8, BuoyAnalysis{
		Buoys: []process.ProcessedBuoy{{
			Data:        data,
			HeightTrend: process.TrendResult{Category: trend},
			Quality:     models.QualityValid,
		}},
		Summary: BuoySummary{Stations: 1},
	}, "buoys read a NW pulse")

	pressureOut := models.NewSpecialistOutput(0.7, charts, "charts show a gulf low")

	return map[string]models.SpecialistOutput{"buoy": buoyOut, "pressure": pressureOut}
}

func TestSenior_SynthesizesAgreement(t *testing.T) {
	client := &mockClient{textResponse: "Final call: solid NW for the North Shore."}
	senior := NewSeniorSpecialist(client, config.Default().Specialist)

	out, err := senior.Synthesize(context.Background(), SeniorInput{
		Forecast: seniorForecast(t),
		Digest:   "digest",
		Outputs:  specialistOutputs(315, 318),
		Now:      time.Now().UTC(),
	})
	require.NoError(t, err)

	analysis := out.Data.(SeniorAnalysis)
	assert.Empty(t, analysis.Contradictions)
	// Full directional match (1.0), neutral trend alignment (0.5) and a
	// 0.1 confidence gap (0.9), averaged.
	assert.InDelta(t, (1.0+0.5+0.9)/3, analysis.AgreementScore, 1e-9)
	assert.InDelta(t, analysis.AgreementScore, out.Confidence, 1e-9, "no contradictions, no penalty")

	require.Len(t, analysis.Shores, 4)
	var north ShoreForecast
	for _, sf := range analysis.Shores {
		if sf.Shore == "North Shore" {
			north = sf
		}
	}
	// 3.0m * 1.8 * 3.28 breaking face.
	assert.InDelta(t, 3.0*1.8*3.28, north.SizeFtMax, 1e-6)
	assert.Equal(t, "clean", north.Conditions, "single long-period groundswell")
	assert.NotEmpty(t, north.Timing)

	require.NotEmpty(t, analysis.Swells)
	assert.True(t, analysis.Swells[0].HasBuoyConfirmation)
	assert.True(t, analysis.Swells[0].HasPressureSupport)
}

func TestSenior_DirectionContradiction(t *testing.T) {
	client := &mockClient{textResponse: "Sources disagree on direction."}
	senior := NewSeniorSpecialist(client, config.Default().Specialist)

	out, err := senior.Synthesize(context.Background(), SeniorInput{
		Forecast: seniorForecast(t),
		Digest:   "digest",
		Outputs:  specialistOutputs(315, 355), // 40 degrees apart: medium
		Now:      time.Now().UTC(),
	})
	require.NoError(t, err)

	analysis := out.Data.(SeniorAnalysis)
	require.Len(t, analysis.Contradictions, 1)
	assert.Equal(t, "medium", analysis.Contradictions[0].Impact)
	assert.InDelta(t, (1.0+0.5+0.9)/3, analysis.AgreementScore, 1e-9)
	assert.InDelta(t, analysis.AgreementScore-0.05, out.Confidence, 1e-9, "one medium contradiction docks 0.05")
}

func TestSenior_FadingBuoysVersusIncomingSwell(t *testing.T) {
	client := &mockClient{textResponse: "Expect the NW to fade before the new pulse fills in."}
	senior := NewSeniorSpecialist(client, config.Default().Specialist)
	now := time.Now().UTC()

	outputs := customOutputs(315, process.TrendStrongDecreasing, ChartAnalysis{
		PredictedSwell: []PredictedSwell{{
			DirectionDeg:   315,
			PeriodSec:      15,
			HeightM:        3.2,
			Confidence:     0.9,
			PhysicsArrival: now.Add(6 * time.Hour).Format(time.RFC3339),
		}},
	})

	out, err := senior.Synthesize(context.Background(), SeniorInput{
		Forecast: seniorForecast(t),
		Digest:   "digest",
		Outputs:  outputs,
		Now:      now,
	})
	require.NoError(t, err)

	analysis := out.Data.(SeniorAnalysis)
	require.Len(t, analysis.Contradictions, 1)
	c := analysis.Contradictions[0]
	assert.Equal(t, "medium", c.Impact)
	assert.Contains(t, c.Issue, "fading")
	assert.Contains(t, c.Resolution, "rebuild")
	assert.InDelta(t, analysis.AgreementScore-0.05, out.Confidence, 1e-9)
	assert.Less(t, out.Confidence, analysis.AgreementScore)
}

func TestSenior_RisingBuoysWithNoChartedSource(t *testing.T) {
	client := &mockClient{textResponse: "Short-period energy on the east buoys."}
	senior := NewSeniorSpecialist(client, config.Default().Specialist)

	outputs := customOutputs(60, process.TrendStrongIncreasing, ChartAnalysis{})

	out, err := senior.Synthesize(context.Background(), SeniorInput{
		Forecast: seniorForecast(t),
		Digest:   "digest",
		Outputs:  outputs,
		Now:      time.Now().UTC(),
	})
	require.NoError(t, err)

	analysis := out.Data.(SeniorAnalysis)
	require.Len(t, analysis.Contradictions, 1)
	assert.Equal(t, "medium", analysis.Contradictions[0].Impact)
	assert.Contains(t, analysis.Contradictions[0].Resolution, "windswell")
}

func TestSenior_UnconfirmedChartSwellImpactByArrival(t *testing.T) {
	client := &mockClient{textResponse: "Charts see swells the buoys cannot."}
	senior := NewSeniorSpecialist(client, config.Default().Specialist)
	now := time.Now().UTC()

	outputs := customOutputs(315, process.TrendSteady, ChartAnalysis{
		PredictedSwell: []PredictedSwell{
			{
				DirectionDeg:   200,
				Confidence:     0.9,
				PhysicsArrival: now.Add(-2 * time.Hour).Format(time.RFC3339),
			},
			{
				DirectionDeg:   120,
				Confidence:     0.9,
				PhysicsArrival: now.Add(30 * time.Hour).Format(time.RFC3339),
			},
		},
	})

	out, err := senior.Synthesize(context.Background(), SeniorInput{
		Forecast: seniorForecast(t),
		Digest:   "digest",
		Outputs:  outputs,
		Now:      now,
	})
	require.NoError(t, err)

	analysis := out.Data.(SeniorAnalysis)
	require.Len(t, analysis.Contradictions, 2)
	impacts := map[string]int{}
	for _, c := range analysis.Contradictions {
		impacts[c.Impact]++
	}
	assert.Equal(t, 1, impacts["high"], "overdue unconfirmed swell")
	assert.Equal(t, 1, impacts["low"], "swell still en route")
	assert.InDelta(t, analysis.AgreementScore-0.15, out.Confidence, 1e-9, "only the high contradiction penalizes")
}

func TestSenior_ShoreMatchFollowsExposureWindows(t *testing.T) {
	client := &mockClient{textResponse: "WNW energy wraps onto the North Shore."}
	senior := NewSeniorSpecialist(client, config.Default().Specialist)
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	comp := models.SwellComponent{Height: 2.5, Period: 14, Direction: 290, Confidence: 0.8, Source: "buoy_51201", Quality: models.QualityValid}
	peak := now.Add(12 * time.Hour)
	ev, err := models.NewSwellEvent("wnw", nil, &peak, nil, 290, models.Significance(2.5, 14), 2.5,
		"buoy_51201", models.QualityValid, []models.SwellComponent{comp})
	require.NoError(t, err)
	forecast := &models.SwellForecast{
		ID: "f-2", Generated: now,
		Events:   []models.SwellEvent{ev},
		Metadata: map[string]any{},
	}

	out, err := senior.Synthesize(context.Background(), SeniorInput{
		Forecast: forecast,
		Digest:   "digest",
		Outputs:  specialistOutputs(290, 292),
		Now:      now,
	})
	require.NoError(t, err)

	analysis := out.Data.(SeniorAnalysis)
	var north ShoreForecast
	for _, sf := range analysis.Shores {
		if sf.Shore == "North Shore" {
			north = sf
		}
	}
	// 290 degrees sits inside the North Shore exposure window despite
	// being 70 degrees off its facing.
	assert.Greater(t, north.SizeFtMax, 0.0)
	assert.InDelta(t, 290, north.PrimaryDirection, 1e-9)
	assert.Equal(t, "Building through the period, peak in 12-24 hours", north.Timing)
}

func TestSenior_InsufficientSpecialists(t *testing.T) {
	client := &mockClient{textResponse: "unused"}
	senior := NewSeniorSpecialist(client, config.Default().Specialist)

	outputs := specialistOutputs(315, 318)
	low := outputs["pressure"]
	low.Confidence = 0.1 // below the floor
	outputs["pressure"] = low

	_, err := senior.Synthesize(context.Background(), SeniorInput{
		Forecast: seniorForecast(t),
		Outputs:  outputs,
	})
	assert.ErrorIs(t, err, ErrInsufficientSpecialists)
}

func TestOrchestrator_FullRun(t *testing.T) {
	now := time.Now().UTC()
	client := &mockClient{
		visionResponse: chartJSON,
		textResponse:   "Narrative output for text calls.",
	}
	orch := NewOrchestrator(client, config.Default())

	result, err := orch.Run(context.Background(), Inputs{
		Buoys:    buoyInputs(now),
		Charts:   chartImages(t),
		Forecast: seniorForecast(t),
		Digest:   "digest",
		Now:      now,
	})
	require.NoError(t, err)

	require.Len(t, result.Specialists, 2)
	assert.Contains(t, result.Specialists, "buoy")
	assert.Contains(t, result.Specialists, "pressure")
	assert.NotEmpty(t, result.Senior.Narrative)
	assert.Equal(t, "senior", result.Senior.Metadata["specialist"])
}

func TestOrchestrator_OneSpecialistDownFailsQuorum(t *testing.T) {
	now := time.Now().UTC()
	client := &mockClient{textResponse: "buoy narrative"}
	orch := NewOrchestrator(client, config.Default())

	// No charts: the pressure specialist fails validation, leaving one
	// usable specialist against a quorum of two.
	_, err := orch.Run(context.Background(), Inputs{
		Buoys:    buoyInputs(now),
		Forecast: seniorForecast(t),
		Digest:   "digest",
		Now:      now,
	})
	assert.ErrorIs(t, err, ErrInsufficientSpecialists)
}

func TestOrchestrator_LLMDown(t *testing.T) {
	now := time.Now().UTC()
	client := &mockClient{err: errors.New("provider down")}
	orch := NewOrchestrator(client, config.Default())

	_, err := orch.Run(context.Background(), Inputs{
		Buoys:    buoyInputs(now),
		Charts:   chartImages(t),
		Forecast: seniorForecast(t),
		Now:      now,
	})
	assert.ErrorIs(t, err, ErrInsufficientSpecialists)
}
