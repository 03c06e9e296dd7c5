package models

import (
	"fmt"
	"time"

	"github.com/makailabs/swellfuse/internal/validate"
)

// NDBC fixed-field keys mapped onto Observation fields. This is the
// canonical ingest path for buoy data.
var ndbcFieldMap = map[string]string{
	"WVHT": "wave_height",
	"DPD":  "dominant_period",
	"APD":  "average_period",
	"MWD":  "wave_direction",
	"WSPD": "wind_speed",
	"WDIR": "wind_direction",
	"ATMP": "air_temperature",
	"WTMP": "water_temperature",
	"PRES": "pressure",
}

// ParseNDBCRow converts one NDBC key/value row into an Observation.
// Values failing bounds validation come back nil; the row's timestamp is
// required and must be RFC3339 or the NDBC "YY MM DD hh mm" layout.
func ParseNDBCRow(row map[string]string) (Observation, error) {
	ts, err := parseNDBCTime(row)
	if err != nil {
		return Observation{}, err
	}

	obs := Observation{Timestamp: ts}
	for key, field := range ndbcFieldMap {
		raw, ok := row[key]
		if !ok {
			continue
		}
		v, _ := validate.SafeField(raw, field)
		switch field {
		case "wave_height":
			obs.WaveHeight = v
		case "dominant_period":
			obs.DominantPeriod = v
		case "average_period":
			obs.AveragePeriod = v
		case "wave_direction":
			obs.WaveDirection = v
		case "wind_speed":
			obs.WindSpeed = v
		case "wind_direction":
			obs.WindDirection = v
		case "air_temperature":
			obs.AirTemperature = v
		case "water_temperature":
			obs.WaterTemperature = v
		case "pressure":
			obs.Pressure = v
		}
	}
	return obs, nil
}

// ParseNDBC converts a station's rows into BuoyData, dropping rows with
// unusable timestamps.
func ParseNDBC(stationID, name string, lat, lon float64, rows []map[string]string) BuoyData {
	obs := make([]Observation, 0, len(rows))
	for _, row := range rows {
		o, err := ParseNDBCRow(row)
		if err != nil {
			continue
		}
		obs = append(obs, o)
	}
	return NewBuoyData(stationID, name, lat, lon, obs)
}

func parseNDBCTime(row map[string]string) (time.Time, error) {
	if ts, ok := row["timestamp"]; ok {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad timestamp %q: %w", ts, err)
		}
		return t, nil
	}

	// Fixed-field realtime2 layout: #YY MM DD hh mm.
	yy, okY := row["YY"]
	mm, okM := row["MM"]
	dd, okD := row["DD"]
	hh, okH := row["hh"]
	mi, okMin := row["mm"]
	if okY && okM && okD && okH && okMin {
		t, err := time.Parse("2006 01 02 15 04", fmt.Sprintf("%s %s %s %s %s", yy, mm, dd, hh, mi))
		if err != nil {
			return time.Time{}, fmt.Errorf("bad NDBC time fields: %w", err)
		}
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("row has no timestamp")
}
