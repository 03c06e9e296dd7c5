package geo

import "strings"

// Sixteen-point compass rose, clockwise from north.
var compass16 = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// DegreesToCardinal converts a direction in degrees to its 16-point
// compass label. Equivalent directions (d, d+360, d-360) map identically.
func DegreesToCardinal(d float64) string {
	d = NormalizeDegrees(d)
	idx := int((d+11.25)/22.5) % 16
	return compass16[idx]
}

// CardinalToDegrees converts a 16-point compass label back to the center
// direction of its sector. The second return is false for unknown labels.
func CardinalToDegrees(c string) (float64, bool) {
	c = strings.ToUpper(strings.TrimSpace(c))
	for i, label := range compass16 {
		if label == c {
			return float64(i) * 22.5, true
		}
	}
	return 0, false
}
