package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/models"
)

func f(v float64) *float64 { return &v }

func buoyWithHeights(station string, now time.Time, heights ...float64) models.BuoyData {
	obs := make([]models.Observation, len(heights))
	for i, h := range heights {
		obs[i] = models.Observation{
			Timestamp:      now.Add(-time.Duration(i) * time.Hour),
			WaveHeight:     f(h),
			DominantPeriod: f(14.0),
			WaveDirection:  f(315.0),
		}
	}
	return models.NewBuoyData(station, station, 21.67, -158.12, obs)
}

func testProcessor() *BuoyProcessor {
	return NewBuoyProcessor(config.Default().Fusion)
}

func TestClean_DropsEmptyObservations(t *testing.T) {
	now := time.Now().UTC()
	b := models.NewBuoyData("51201", "Waimea", 21.67, -158.12, []models.Observation{
		{Timestamp: now, WaveHeight: f(2.1), DominantPeriod: f(14)},
		{Timestamp: now.Add(-time.Hour)}, // nothing usable
		{Timestamp: now.Add(-2 * time.Hour), DominantPeriod: f(13)},
	})

	cleaned := Clean(b)
	assert.Len(t, cleaned.Observations, 2)
}

func TestHeightTrend_Categories(t *testing.T) {
	now := time.Now().UTC()
	p := testProcessor()

	tests := []struct {
		name    string
		heights []float64 // newest first
		want    string
	}{
		{"flat", []float64{2.0, 2.0, 2.0, 2.0, 2.0}, TrendSteady},
		{"building hard", []float64{3.0, 2.5, 2.2, 2.1, 2.0}, TrendStrongIncreasing},
		{"building slowly", []float64{2.1, 2.08, 2.05, 2.02, 2.0}, TrendSlightIncreasing},
		{"dropping hard", []float64{2.0, 2.5, 2.8, 3.0, 3.2}, TrendStrongDecreasing},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			trend := p.HeightTrend(buoyWithHeights("51201", now, tc.heights...))
			assert.Equal(t, tc.want, trend.Category)
			assert.Equal(t, len(tc.heights), trend.Samples)
		})
	}
}

func TestHeightTrend_TooFewSamples(t *testing.T) {
	now := time.Now().UTC()
	trend := testProcessor().HeightTrend(buoyWithHeights("51201", now, 2.5))
	assert.Equal(t, TrendSteady, trend.Category)
	assert.Zero(t, trend.Slope)
}

func TestDetectAnomalies_FleetOutlier(t *testing.T) {
	now := time.Now().UTC()
	fleet := []models.BuoyData{
		buoyWithHeights("51201", now, 1.0, 1.1, 1.2),
		buoyWithHeights("51202", now, 1.1, 1.0, 1.2),
		buoyWithHeights("51205", now, 1.2, 1.1, 1.0),
		buoyWithHeights("51208", now, 1.0, 1.2, 1.1),
		buoyWithHeights("51101", now, 8.0),
	}

	anomalies := DetectAnomalies(fleet)
	require.NotEmpty(t, anomalies)

	var outlier *Anomaly
	for i := range anomalies {
		if anomalies[i].Station == "51101" && anomalies[i].Field == "wave_height" {
			outlier = &anomalies[i]
		}
	}
	require.NotNil(t, outlier, "the 8m buoy must be flagged")
	assert.Equal(t, SeverityHigh, outlier.Severity)
	assert.Greater(t, outlier.ZScore, 3.0)
}

func TestDetectAnomalies_NeedsThreeDistinctValues(t *testing.T) {
	now := time.Now().UTC()
	fleet := []models.BuoyData{
		buoyWithHeights("51201", now, 1.0, 1.0),
		buoyWithHeights("51202", now, 8.0, 8.0),
	}
	// Only two distinct heights: no usable distribution, no anomalies.
	for _, a := range DetectAnomalies(fleet) {
		assert.NotEqual(t, "wave_height", a.Field)
	}
}

func TestProcess_OutlierBuoyExcluded(t *testing.T) {
	now := time.Now().UTC()
	fleet := []models.BuoyData{
		buoyWithHeights("51201", now, 1.0, 1.1, 1.2),
		buoyWithHeights("51202", now, 1.1, 1.0, 1.2),
		buoyWithHeights("51205", now, 1.2, 1.1, 1.0),
		buoyWithHeights("51208", now, 1.0, 1.2, 1.1),
		buoyWithHeights("51101", now, 8.0),
	}

	processed, agreement := testProcessor().Process(fleet, now)
	require.Len(t, processed, 5)

	byStation := map[string]ProcessedBuoy{}
	for _, pb := range processed {
		byStation[pb.Data.StationID] = pb
	}

	assert.Equal(t, models.QualityExcluded, byStation["51101"].Quality)
	assert.Equal(t, models.QualityValid, byStation["51201"].Quality)
	assert.Equal(t, 5, agreement.Buoys)
	assert.Less(t, agreement.Overall, 0.9, "an 8m outlier should drag agreement down")
}

func TestAssignQuality_Staleness(t *testing.T) {
	now := time.Now().UTC()
	p := testProcessor()

	fresh := buoyWithHeights("51201", now, 1.5, 1.5, 1.5)
	stale := buoyWithHeights("51202", now.Add(-8*time.Hour), 1.5, 1.5, 1.5)
	dead := buoyWithHeights("51205", now.Add(-30*time.Hour), 1.5, 1.5, 1.5)

	assert.Equal(t, models.QualityValid, p.AssignQuality(ProcessedBuoy{Data: fresh, HeightTrend: TrendResult{Category: TrendSteady}}, now))
	assert.Equal(t, models.QualitySuspect, p.AssignQuality(ProcessedBuoy{Data: stale, HeightTrend: TrendResult{Category: TrendSteady}}, now))
	assert.Equal(t, models.QualityExcluded, p.AssignQuality(ProcessedBuoy{Data: dead, HeightTrend: TrendResult{Category: TrendSteady}}, now))
}

func TestAssignQuality_ShortPeriodSouthSwell(t *testing.T) {
	now := time.Now().UTC()
	obs := []models.Observation{{
		Timestamp:      now,
		WaveHeight:     f(2.5),
		DominantPeriod: f(11.0),
		WaveDirection:  f(180.0),
	}, {
		Timestamp:      now.Add(-time.Hour),
		WaveHeight:     f(2.4),
		DominantPeriod: f(11.0),
		WaveDirection:  f(182.0),
	}, {
		Timestamp:      now.Add(-2 * time.Hour),
		WaveHeight:     f(2.4),
		DominantPeriod: f(11.0),
		WaveDirection:  f(181.0),
	}}
	b := models.NewBuoyData("51002", "SW Hawaii", 17.0, -157.7, obs)

	q := testProcessor().AssignQuality(ProcessedBuoy{Data: b, HeightTrend: TrendResult{Category: TrendSteady}}, now)
	assert.Equal(t, models.QualitySuspect, q)
}

func TestAssignQuality_UnphysicalHeightExcluded(t *testing.T) {
	now := time.Now().UTC()
	b := buoyWithHeights("51201", now, 12.0, 11.5, 11.0)
	q := testProcessor().AssignQuality(ProcessedBuoy{Data: b, HeightTrend: TrendResult{Category: TrendSteady}}, now)
	assert.Equal(t, models.QualityExcluded, q)
}

func TestCrossBuoyAgreement_Interpretation(t *testing.T) {
	now := time.Now().UTC()

	tight := CrossBuoyAgreement([]models.BuoyData{
		buoyWithHeights("a", now, 2.0),
		buoyWithHeights("b", now, 2.05),
		buoyWithHeights("c", now, 1.95),
	})
	assert.Equal(t, "excellent", tight.Interpretation)
	assert.Greater(t, tight.Overall, 0.9)

	scattered := CrossBuoyAgreement([]models.BuoyData{
		buoyWithHeights("a", now, 0.5),
		buoyWithHeights("b", now, 4.0),
		buoyWithHeights("c", now, 8.0),
	})
	assert.Less(t, scattered.Overall, tight.Overall)
}

func TestBuoyCompleteness(t *testing.T) {
	now := time.Now().UTC()
	full := models.NewBuoyData("51201", "Waimea", 21.67, -158.12, []models.Observation{{
		Timestamp: now, WaveHeight: f(2), DominantPeriod: f(14), AveragePeriod: f(9),
		WaveDirection: f(315), WindSpeed: f(5), WindDirection: f(60),
		AirTemperature: f(26), WaterTemperature: f(25), Pressure: f(1016),
	}})
	assert.InDelta(t, 1.0, buoyCompleteness(full), 1e-9)

	sparse := buoyWithHeights("51202", now, 2.0)
	assert.InDelta(t, 3.0/9.0, buoyCompleteness(sparse), 1e-9)
}
