// Package geo provides the Hawaiian shore geography used to map incoming
// swell directions onto named shores: exposure windows, quality windows,
// and monthly seasonal ratings.
package geo

import (
	"math"
	"time"
)

// DegreeRange is a directional window in compass degrees. Ranges may wrap
// through 360/0 (From > To means the window crosses north).
type DegreeRange struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Contains reports whether direction d (0-360) falls inside the range,
// handling wrap-around windows.
func (r DegreeRange) Contains(d float64) bool {
	d = NormalizeDegrees(d)
	if r.From <= r.To {
		return d >= r.From && d <= r.To
	}
	return d >= r.From || d <= r.To
}

// Width returns the angular width of the range in degrees.
func (r DegreeRange) Width() float64 {
	if r.From <= r.To {
		return r.To - r.From
	}
	return 360 - r.From + r.To
}

// Midpoint returns the angular midpoint of the range.
func (r DegreeRange) Midpoint() float64 {
	return NormalizeDegrees(r.From + r.Width()/2)
}

// Shore describes one of the four Hawaiian forecast shores.
type Shore struct {
	Name           string        `json:"name"`
	Lat            float64       `json:"lat"`
	Lon            float64       `json:"lon"`
	Facing         float64       `json:"facing"` // degrees the shore faces
	ExposureRanges []DegreeRange `json:"exposure_ranges"`
	QualityRanges  []DegreeRange `json:"quality_ranges"`
	Seasonal       [12]float64   `json:"seasonal"` // Jan..Dec rating 0-1
}

// The four shores are fixed: the exposure tables are Hawaii-specific
// and not configurable.
var shores = []Shore{
	{
		Name:   "North Shore",
		Lat:    21.6639,
		Lon:    -158.0529,
		Facing: 0,
		ExposureRanges: []DegreeRange{
			{From: 270, To: 360},
			{From: 0, To: 90},
		},
		QualityRanges: []DegreeRange{{From: 305, To: 340}},
		// Winter-peaked: the NPAC season runs roughly October through March.
		Seasonal: [12]float64{0.9, 0.9, 0.8, 0.6, 0.4, 0.2, 0.2, 0.2, 0.4, 0.6, 0.8, 0.9},
	},
	{
		Name:   "South Shore",
		Lat:    21.2749,
		Lon:    -157.8238,
		Facing: 180,
		ExposureRanges: []DegreeRange{
			{From: 90, To: 270},
		},
		QualityRanges: []DegreeRange{{From: 170, To: 200}},
		// Summer-peaked: Southern Hemisphere swell season.
		Seasonal: [12]float64{0.2, 0.2, 0.3, 0.5, 0.7, 0.9, 0.9, 0.9, 0.7, 0.5, 0.3, 0.2},
	},
	{
		Name:   "West Side",
		Lat:    21.4152,
		Lon:    -158.1928,
		Facing: 270,
		ExposureRanges: []DegreeRange{
			{From: 210, To: 330},
		},
		QualityRanges: []DegreeRange{{From: 270, To: 310}},
		// Winter-leaning: catches wrap from NW swells plus some south energy.
		Seasonal: [12]float64{0.8, 0.8, 0.7, 0.5, 0.4, 0.3, 0.3, 0.3, 0.4, 0.5, 0.7, 0.8},
	},
	{
		Name:   "East Side",
		Lat:    21.4813,
		Lon:    -157.7040,
		Facing: 90,
		ExposureRanges: []DegreeRange{
			{From: 30, To: 150},
		},
		QualityRanges: []DegreeRange{{From: 60, To: 90}},
		// Near-constant trade windswell year round.
		Seasonal: [12]float64{0.6, 0.6, 0.6, 0.6, 0.6, 0.7, 0.7, 0.7, 0.6, 0.6, 0.6, 0.6},
	},
}

// Shores returns the four Hawaiian shores in canonical order
// (North, South, West, East).
func Shores() []Shore {
	out := make([]Shore, len(shores))
	copy(out, shores)
	return out
}

// ShoreByName looks up a shore by its name. The second return is false
// when no shore matches.
func ShoreByName(name string) (Shore, bool) {
	for _, s := range shores {
		if s.Name == name {
			return s, true
		}
	}
	return Shore{}, false
}

// NormalizeDegrees maps any angle onto [0, 360).
func NormalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// AngularDistance returns the smallest absolute separation between two
// directions in degrees (0-180).
func AngularDistance(a, b float64) float64 {
	diff := math.Abs(NormalizeDegrees(a) - NormalizeDegrees(b))
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

// ExposureFactor scores how strongly a swell from direction d impacts the
// shore. 1.0 at the midpoint of a quality window decaying linearly to 0.8
// at its edges, 0.5 inside an exposure window but outside quality, and 0
// when the shore is shadowed from that direction.
func ExposureFactor(shore Shore, d float64) float64 {
	d = NormalizeDegrees(d)

	for _, q := range shore.QualityRanges {
		if q.Contains(d) {
			half := q.Width() / 2
			if half == 0 {
				return 1.0
			}
			off := AngularDistance(d, q.Midpoint())
			// Linear decay from 1.0 at center to 0.8 at the edge.
			return 1.0 - 0.2*(off/half)
		}
	}

	for _, e := range shore.ExposureRanges {
		if e.Contains(d) {
			return 0.5
		}
	}

	return 0
}

// SeasonalFactor returns the shore's 0-1 rating for the month of t.
func SeasonalFactor(shore Shore, t time.Time) float64 {
	return shore.Seasonal[int(t.Month())-1]
}
