// Package swell computes deep-water swell propagation: great-circle
// distance from a storm's fetch to Hawaii and the group-velocity travel
// time for a given period.
package swell

import (
	"fmt"
	"math"
	"time"
)

const (
	// Hawaii arrival reference point.
	hawaiiLat = 21.5
	hawaiiLon = -158.0

	// Earth radius in nautical miles.
	earthRadiusNM = 3440.065

	gravity   = 9.81
	msToKnots = 1 / 0.51444
)

// Details carries the intermediate propagation quantities.
type Details struct {
	DistanceNM         float64 `json:"distance_nm"`
	TravelHours        float64 `json:"travel_time_hrs"`
	GroupVelocityMS    float64 `json:"group_velocity_ms"`
	GroupVelocityKnots float64 `json:"group_velocity_knots"`
}

// Calculator produces physics-based arrival estimates.
type Calculator struct{}

// NewCalculator returns a propagation calculator.
func NewCalculator() *Calculator { return &Calculator{} }

// Arrival estimates when swell generated at (lat, lon) with the given
// period arrives in Hawaii. Deep-water group velocity is Cg = g*T/(4*pi).
func (c *Calculator) Arrival(lat, lon, periodSec float64, generated time.Time) (time.Time, Details, error) {
	if periodSec <= 0 {
		return time.Time{}, Details{}, fmt.Errorf("invalid period %.1fs", periodSec)
	}

	distance := HaversineNM(lat, lon, hawaiiLat, hawaiiLon)
	cgMS := gravity * periodSec / (4 * math.Pi)
	cgKnots := cgMS * msToKnots

	travelHours := distance / cgKnots
	arrival := generated.Add(time.Duration(travelHours * float64(time.Hour)))

	return arrival, Details{
		DistanceNM:         distance,
		TravelHours:        travelHours,
		GroupVelocityMS:    cgMS,
		GroupVelocityKnots: cgKnots,
	}, nil
}

// HaversineNM computes the great-circle distance between two points in
// nautical miles.
func HaversineNM(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return earthRadiusNM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
