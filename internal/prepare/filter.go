// Package prepare turns a fused forecast into specialist-ready material:
// excluded data is stripped, shore and overall digests are rendered, and
// chart images are collected, prioritized and token-budgeted.
package prepare

import (
	"github.com/rs/zerolog/log"

	"github.com/makailabs/swellfuse/internal/metrics"
	"github.com/makailabs/swellfuse/internal/models"
)

// Sanitize returns a copy of the forecast with every excluded event and
// component removed. Location event indexes are remapped onto the
// filtered arena so nothing downstream can observe excluded data.
func Sanitize(f *models.SwellForecast) *models.SwellForecast {
	out := &models.SwellForecast{
		ID:        f.ID,
		Generated: f.Generated,
		Metadata:  f.Metadata,
	}

	remap := make(map[int]int, len(f.Events))
	for idx, ev := range f.Events {
		if ev.Quality == models.QualityExcluded {
			metrics.ExcludedEvents.WithLabelValues(ev.Source).Inc()
			log.Warn().Str("event", ev.ID).Str("source", ev.Source).Msg("excluded event removed before specialist handoff")
			continue
		}
		remap[idx] = len(out.Events)
		out.Events = append(out.Events, filterComponents(ev))
	}

	for _, loc := range f.Locations {
		kept := loc
		kept.EventIndexes = nil
		for _, idx := range loc.EventIndexes {
			if newIdx, ok := remap[idx]; ok {
				kept.EventIndexes = append(kept.EventIndexes, newIdx)
			}
		}
		out.Locations = append(out.Locations, kept)
	}
	return out
}

func filterComponents(ev models.SwellEvent) models.SwellEvent {
	ev.Components = keepUsable(ev.ID, ev.Components)
	ev.Secondary = keepUsable(ev.ID, ev.Secondary)
	return ev
}

func keepUsable(eventID string, comps []models.SwellComponent) []models.SwellComponent {
	kept := make([]models.SwellComponent, 0, len(comps))
	for _, c := range comps {
		if c.Quality == models.QualityExcluded {
			log.Warn().Str("event", eventID).Str("source", c.Source).Msg("excluded component removed")
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
