package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makailabs/swellfuse/internal/geo"
	"github.com/makailabs/swellfuse/internal/models"
)

// modelRun builds a run with one grid point per forecast hour, centered
// on the North Shore reference point.
func modelRun(base time.Time, heights []float64, period, direction float64) models.ModelData {
	m := models.ModelData{ModelID: "swan", RunTime: base, Metadata: map[string]any{}}
	for i, h := range heights {
		m.Forecasts = append(m.Forecasts, models.ModelForecast{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Hour:      i,
			Points: []models.WaveModelPoint{{
				Lat: 21.6639, Lon: -158.0529,
				Height: h, Period: period, Direction: direction,
			}},
		})
	}
	return m
}

func TestParseSWAN(t *testing.T) {
	raw := map[string]any{
		"metadata": map[string]any{
			"model":    "swan-oahu",
			"region":   "oahu",
			"run_time": "2025-10-07T00:00:00Z",
		},
		"forecasts": []any{
			map[string]any{
				"hour":      6.0,
				"timestamp": "2025-10-07T06:00:00Z",
				"points": []any{
					map[string]any{
						"lat": 21.66, "lon": -158.05,
						"hs": 2.4, "tp": 15.0, "dir": 315.0,
						"wind_speed": 5.0, "wind_dir": 60.0,
					},
				},
			},
			map[string]any{
				"hour":      0.0,
				"timestamp": "2025-10-07T00:00:00Z",
				"points": []any{
					map[string]any{"lat": 21.66, "lon": -158.05, "hs": 1.8, "tp": 14.0, "dir": 320.0},
				},
			},
		},
	}

	m, err := ParseSWAN(raw)
	require.NoError(t, err)
	assert.Equal(t, "swan-oahu", m.ModelID)
	assert.Equal(t, "oahu", m.Region)
	require.Len(t, m.Forecasts, 2)

	// Forecasts come back ordered by hour.
	assert.Equal(t, 0, m.Forecasts[0].Hour)
	assert.Equal(t, 6, m.Forecasts[1].Hour)

	pt := m.Forecasts[1].Points[0]
	assert.InDelta(t, 2.4, pt.Height, 1e-9)
	require.NotNil(t, pt.WindSpeed)
	assert.InDelta(t, 5.0, *pt.WindSpeed, 1e-9)
}

func TestParseWW3(t *testing.T) {
	raw := map[string]any{
		"header": map[string]any{"refTime": "2025-10-07T00:00:00Z", "area": "north_pacific"},
		"data": []any{
			map[string]any{
				"timestamp":    "2025-10-07T12:00:00Z",
				"forecastHour": 12.0,
				"grid": []any{
					map[string]any{"lat": 21.7, "lon": -158.1, "hs": 3.1, "tp": 16.0, "dir": 310.0, "ws": 8.0, "wd": 45.0},
				},
			},
		},
	}

	m, err := ParseWW3(raw)
	require.NoError(t, err)
	assert.Equal(t, "ww3", m.ModelID)
	assert.Equal(t, "north_pacific", m.Region)
	require.Len(t, m.Forecasts, 1)
	require.Len(t, m.Forecasts[0].Points, 1)
	assert.InDelta(t, 3.1, m.Forecasts[0].Points[0].Height, 1e-9)

	_, err = ParseWW3(map[string]any{})
	assert.Error(t, err)
}

func TestCleanModel_DropsInvalidPoints(t *testing.T) {
	base := time.Now().UTC()
	m := models.ModelData{
		ModelID: "swan",
		Forecasts: []models.ModelForecast{{
			Timestamp: base,
			Points: []models.WaveModelPoint{
				{Lat: 21.6, Lon: -158, Height: 2.0, Period: 14, Direction: 315},
				{Lat: 21.6, Lon: -158, Height: -1.0, Period: 14, Direction: 315}, // negative height
				{Lat: 21.6, Lon: -158, Height: 2.0, Period: 0, Direction: 315},   // zero period
			},
		}},
	}

	cleaned := CleanModel(m)
	require.Len(t, cleaned.Forecasts, 1)
	assert.Len(t, cleaned.Forecasts[0].Points, 1)
}

func TestHeightTrend_ThirdsAndPeaking(t *testing.T) {
	base := time.Now().UTC()
	p := NewModelProcessor()

	peaking := modelRun(base, []float64{1, 1, 1, 2.5, 2.5, 2.5, 1, 1, 1}, 14, 315)
	assert.Equal(t, TrendPeaking, p.HeightTrend(peaking))

	building := modelRun(base, []float64{1, 1, 1, 1.1, 1.1, 1.1, 1.4, 1.4, 1.4}, 14, 315)
	assert.Equal(t, TrendStrongIncreasing, p.HeightTrend(building))

	fading := modelRun(base, []float64{1.5, 1.5, 1.5, 1.2, 1.2, 1.2, 1, 1, 1}, 14, 315)
	assert.Equal(t, TrendStrongDecreasing, p.HeightTrend(fading))

	flat := modelRun(base, []float64{2, 2, 2, 2, 2, 2}, 14, 315)
	assert.Equal(t, TrendSteady, p.HeightTrend(flat))

	short := modelRun(base, []float64{1, 2}, 14, 315)
	assert.Equal(t, TrendSteady, p.HeightTrend(short))
}

func TestShoreImpact_NearbyQualitySwell(t *testing.T) {
	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC) // winter
	m := modelRun(base, []float64{3.0}, 15, 315)         // inside the NW quality window

	north, ok := geo.ShoreByName("North Shore")
	require.True(t, ok)

	imp, found := NewModelProcessor().ShoreImpact(m, north, base)
	require.True(t, found)
	assert.Equal(t, "North Shore", imp.Shore)
	assert.InDelta(t, 3.0, imp.MeanHeight, 1e-9)
	assert.InDelta(t, 315, imp.MeanDirection, 1e-9)
	assert.Greater(t, imp.Exposure, 0.9)
	assert.InDelta(t, 0.9, imp.Seasonal, 1e-9)
	assert.Greater(t, imp.Impact, 0.5)

	// A point a thousand miles away contributes nothing.
	far := m
	far.Forecasts = []models.ModelForecast{{
		Timestamp: base,
		Points:    []models.WaveModelPoint{{Lat: 40, Lon: -140, Height: 5, Period: 16, Direction: 315}},
	}}
	_, found = NewModelProcessor().ShoreImpact(far, north, base)
	assert.False(t, found)
}

func TestDetectEvents_TracesHalfPeakWindow(t *testing.T) {
	base := time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)
	m := modelRun(base, []float64{1.0, 1.0, 2.0, 2.5, 2.0, 1.0, 1.0}, 14, 315)

	events := NewModelProcessor().DetectEvents(m)
	require.Len(t, events, 1)

	ev := events[0]
	require.NotNil(t, ev.Start)
	require.NotNil(t, ev.Peak)
	require.NotNil(t, ev.End)
	assert.Equal(t, base.Add(2*time.Hour), *ev.Start)
	assert.Equal(t, base.Add(3*time.Hour), *ev.Peak)
	assert.Equal(t, base.Add(4*time.Hour), *ev.End)

	assert.InDelta(t, 2.5, ev.HeightMeters(), 1e-9)
	assert.InDelta(t, models.Significance(2.5, 14), ev.Significance, 1e-9)
	assert.Equal(t, "NW", ev.Cardinal)
	assert.Equal(t, models.QualityValid, ev.Quality)
}

func TestDetectEvents_FlatRunYieldsNone(t *testing.T) {
	base := time.Now().UTC()
	m := modelRun(base, []float64{2, 2, 2, 2, 2}, 14, 315)
	assert.Empty(t, NewModelProcessor().DetectEvents(m))
}

func TestProcess_PreExtractedEventsKept(t *testing.T) {
	base := time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)
	m := modelRun(base, []float64{1.0, 1.0, 2.0, 2.5, 2.0, 1.0, 1.0}, 14, 315)

	comp := models.SwellComponent{Height: 2.2, Period: 15, Direction: 320, Confidence: 0.8, Source: "swan", Quality: models.QualityValid}
	ev, err := models.NewSwellEvent("pre", &base, &base, &base, 320, 0.6, 2.2, "swan", models.QualityValid, []models.SwellComponent{comp})
	require.NoError(t, err)
	m.Events = []models.SwellEvent{ev}

	out := NewModelProcessor().Process(m, base)
	require.Len(t, out.Events, 1)
	assert.Equal(t, "pre", out.Events[0].ID)
	assert.Equal(t, 6, out.RangeHours)
	require.NotNil(t, out.Peak)
	assert.InDelta(t, 2.5, out.Peak.Height, 1e-9)
}
