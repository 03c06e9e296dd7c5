package models

import (
	"fmt"
)

// BuoyInput is the tagged variant accepted at the module boundary: either
// an already-parsed BuoyData or a raw crawler dictionary. Exactly one
// side is set.
type BuoyInput struct {
	Parsed *BuoyData
	Raw    map[string]any
}

// NormalizeBuoy is the single gate turning a BuoyInput into BuoyData.
// Raw dictionaries must carry station/name/lat/lon plus an observations
// list of NDBC-keyed string rows.
func NormalizeBuoy(in BuoyInput) (BuoyData, error) {
	if in.Parsed != nil {
		return *in.Parsed, nil
	}
	if in.Raw == nil {
		return BuoyData{}, fmt.Errorf("empty buoy input")
	}

	station, _ := in.Raw["station_id"].(string)
	if station == "" {
		return BuoyData{}, fmt.Errorf("buoy input missing station_id")
	}
	name, _ := in.Raw["name"].(string)
	lat := rawFloat(in.Raw["lat"])
	lon := rawFloat(in.Raw["lon"])

	rows := rawRows(in.Raw["observations"])
	data := ParseNDBC(station, name, lat, lon, rows)

	if spectrum, ok := in.Raw["spectrum_path"].(string); ok {
		data.SpectrumPath = spectrum
	}
	return data, nil
}

func rawFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	}
	return 0
}

// rawRows tolerates both []map[string]string and the looser
// []any / map[string]any shapes JSON decoding produces.
func rawRows(v any) []map[string]string {
	switch rows := v.(type) {
	case []map[string]string:
		return rows
	case []any:
		out := make([]map[string]string, 0, len(rows))
		for _, r := range rows {
			m, ok := r.(map[string]any)
			if !ok {
				continue
			}
			row := make(map[string]string, len(m))
			for k, val := range m {
				row[k] = fmt.Sprintf("%v", val)
			}
			out = append(out, row)
		}
		return out
	}
	return nil
}
