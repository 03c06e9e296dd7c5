package swell

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineNM(t *testing.T) {
	// One degree of latitude along a meridian is 60 nm.
	assert.InDelta(t, 60, HaversineNM(20, -158, 21, -158), 0.1)
	assert.InDelta(t, 0, HaversineNM(21.5, -158, 21.5, -158), 1e-9)
}

func TestArrival_GulfOfAlaskaStorm(t *testing.T) {
	calc := NewCalculator()
	generated := time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)

	// 985mb low at 40N 158W, 14s swell: 1110nm due north of Hawaii.
	arrival, details, err := calc.Arrival(40.0, -158.0, 14.0, generated)
	require.NoError(t, err)

	assert.InDelta(t, 1110, details.DistanceNM, 2)
	assert.InDelta(t, 21.25, details.GroupVelocityKnots, 0.5)
	assert.Greater(t, details.TravelHours, 40.0)
	assert.Less(t, details.TravelHours, 55.0)

	assert.True(t, arrival.After(generated.Add(40*time.Hour)))
	assert.True(t, arrival.Before(generated.Add(55*time.Hour)))
}

func TestArrival_GroupVelocityScalesWithPeriod(t *testing.T) {
	calc := NewCalculator()
	now := time.Now().UTC()

	_, longPeriod, err := calc.Arrival(45, -160, 18, now)
	require.NoError(t, err)
	_, shortPeriod, err := calc.Arrival(45, -160, 10, now)
	require.NoError(t, err)

	// Longer period swell travels faster and arrives sooner.
	assert.Greater(t, longPeriod.GroupVelocityKnots, shortPeriod.GroupVelocityKnots)
	assert.Less(t, longPeriod.TravelHours, shortPeriod.TravelHours)

	// Cg = g*T/(4*pi): 14s swell moves at ~21 knots.
	_, d14, err := calc.Arrival(45, -160, 14, now)
	require.NoError(t, err)
	assert.InDelta(t, 10.93, d14.GroupVelocityMS, 0.01)
	assert.InDelta(t, 21.25, d14.GroupVelocityKnots, 0.1)
}

func TestArrival_InvalidPeriod(t *testing.T) {
	calc := NewCalculator()
	_, _, err := calc.Arrival(45, -160, 0, time.Now())
	assert.Error(t, err)
	_, _, err = calc.Arrival(45, -160, -5, time.Now())
	assert.Error(t, err)
}
