// Package validate coerces raw feed values into physically plausible
// floats. Anything outside the measurement bounds is rejected and logged;
// callers substitute nil and continue.
package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/makailabs/swellfuse/internal/metrics"
)

// Bounds is the inclusive accepted range for a measurement field.
type Bounds struct {
	Min float64
	Max float64
}

// Field bounds in SI units (meters, seconds, m/s, hPa, degC, degrees).
// A dominant period below 4s is a phantom swell and always rejected.
var FieldBounds = map[string]Bounds{
	"wave_height":       {Min: 0.0, Max: 30.0},
	"dominant_period":   {Min: 4.0, Max: 30.0},
	"average_period":    {Min: 2.0, Max: 25.0},
	"wind_speed":        {Min: 0.0, Max: 150.0},
	"pressure":          {Min: 900.0, Max: 1100.0},
	"water_temperature": {Min: -2.0, Max: 35.0},
	"air_temperature":   {Min: -40.0, Max: 50.0},
	"wave_direction":    {Min: 0.0, Max: 360.0},
	"wind_direction":    {Min: 0.0, Max: 360.0},
}

// BoundsFor returns the bounds for a named field. Direction-like fields
// fall back to the generic 0-360 window.
func BoundsFor(field string) (Bounds, bool) {
	if b, ok := FieldBounds[field]; ok {
		return b, true
	}
	if strings.HasSuffix(field, "_direction") || field == "direction" {
		return Bounds{Min: 0, Max: 360}, true
	}
	return Bounds{}, false
}

// SafeFloat parses raw into a float and enforces [min,max]. Empty or nil
// input returns nil without noise; unparseable or out-of-range values are
// rejected with a WARN log. The second return reports rejection.
func SafeFloat(raw any, min, max float64, field string) (*float64, bool) {
	if raw == nil {
		return nil, false
	}

	var v float64
	switch t := raw.(type) {
	case float64:
		v = t
	case float32:
		v = float64(t)
	case int:
		v = float64(t)
	case int64:
		v = float64(t)
	case string:
		s := strings.TrimSpace(t)
		// NDBC placeholder for missing readings.
		if s == "" || s == "MM" || s == "N/A" {
			return nil, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			log.Warn().Str("field", field).Str("value", s).Msg("unparseable numeric value rejected")
			metrics.BoundsRejected(field)
			return nil, true
		}
		v = parsed
	default:
		log.Warn().Str("field", field).Str("value", fmt.Sprintf("%v", raw)).Msg("unsupported value type rejected")
		metrics.BoundsRejected(field)
		return nil, true
	}

	if math.IsNaN(v) || math.IsInf(v, 0) || v < min || v > max {
		log.Warn().Str("field", field).Float64("value", v).Float64("min", min).Float64("max", max).Msg("out-of-bounds value rejected")
		metrics.BoundsRejected(field)
		return nil, true
	}

	return &v, false
}

// SafeField applies SafeFloat using the canonical bounds table for the
// named field. Unknown fields are passed through unbounded.
func SafeField(raw any, field string) (*float64, bool) {
	if b, ok := BoundsFor(field); ok {
		return SafeFloat(raw, b.Min, b.Max, field)
	}
	return SafeFloat(raw, math.Inf(-1), math.Inf(1), field)
}
