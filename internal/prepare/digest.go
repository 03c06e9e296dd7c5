package prepare

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/fusion"
	"github.com/makailabs/swellfuse/internal/models"
)

// Face heights run about 30% above significant height at the upper end
// of the distribution (H1/10 vs H1/3).
const faceHeightFactor = 1.3

// hst is the fixed Hawaii Standard Time zone; Hawaii does not observe
// daylight saving.
var hst = time.FixedZone("HST", -10*60*60)

// Digester renders forecast digests for the specialist prompts.
type Digester struct {
	topEvents int
}

// NewDigester builds a digester; topEvents caps events per shore digest.
func NewDigester(cfg config.SpecialistConfig) *Digester {
	return &Digester{topEvents: cfg.TopEvents}
}

// ShoreDigests renders one text digest per shore, listing its top events
// by Hawaiian-scale size with HST timing windows.
func (d *Digester) ShoreDigests(f *models.SwellForecast) map[string]string {
	out := make(map[string]string, len(f.Locations))
	for _, loc := range f.Locations {
		out[loc.Name] = d.shoreDigest(f, loc)
	}
	return out
}

func (d *Digester) shoreDigest(f *models.SwellForecast, loc models.ForecastLocation) string {
	events := loc.Events(f)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].HawaiianFeet > events[j].HawaiianFeet
	})
	if d.topEvents > 0 && len(events) > d.topEvents {
		events = events[:d.topEvents]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (facing %s):\n", loc.Name, directionLabel(loc.Facing))
	if len(events) == 0 {
		b.WriteString("  No significant swell energy mapped to this shore.\n")
		return b.String()
	}

	for _, ev := range events {
		fmt.Fprintf(&b, "  %.1f ft faces from the %s (%.0f deg, %.1fs",
			ev.HawaiianFeet, ev.Cardinal, ev.Direction, primaryPeriod(ev))
		if ev.Quality == models.QualitySuspect {
			b.WriteString(", suspect")
		}
		b.WriteString(")")
		if window := timingWindow(ev); window != "" {
			fmt.Fprintf(&b, " %s", window)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Overall renders the digest handed to the senior specialist: summary,
// events, shores, timeline, conditions, upper air, season, historical
// norms, data gaps and confidence.
func (d *Digester) Overall(f *models.SwellForecast, report models.ConfidenceReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "SWELL FORECAST %s\nGenerated %s\n\n",
		f.ID, f.Generated.In(hst).Format("Mon Jan 2 3:04 PM HST"))

	b.WriteString("== ACTIVE SWELL EVENTS ==\n")
	if len(f.Events) == 0 {
		b.WriteString("No active swell events.\n")
	}
	for _, ev := range f.Events {
		face := ev.HawaiianFeet * faceHeightFactor
		fmt.Fprintf(&b, "%.1f ft Hawaiian (sets to %.1f ft) from the %s at %.1fs, significance %.2f, %s\n",
			ev.HawaiianFeet, face, ev.Cardinal, primaryPeriod(ev), ev.Significance, ev.Quality)
	}

	b.WriteString("\n== SHORE OUTLOOK ==\n")
	for _, loc := range f.Locations {
		quality, _ := loc.Metadata["quality"].(float64)
		fmt.Fprintf(&b, "%s: %d event(s), quality %.2f\n", loc.Name, len(loc.EventIndexes), quality)
	}

	b.WriteString("\n== THREE DAY TIMELINE ==\n")
	b.WriteString(d.timeline(f))

	b.WriteString("\n== CONDITIONS ==\n")
	if metar, ok := f.Metadata["metar"].(string); ok {
		fmt.Fprintf(&b, "METAR: %s\n", metar)
	}
	if tropical, ok := f.Metadata["tropical"].(string); ok {
		fmt.Fprintf(&b, "Tropical: %s\n", tropical)
	}
	if level, ok := f.Metadata["water_level_ft"].(float64); ok {
		fmt.Fprintf(&b, "Water level: %.1f ft\n", level)
	}
	if tides, ok := f.Metadata["tides"].([]fusion.TideEntry); ok && len(tides) > 0 {
		parts := make([]string, 0, len(tides))
		for _, t := range tides {
			parts = append(parts, fmt.Sprintf("%s %.1f ft %s", t.Type, t.HeightFt, t.Time.In(hst).Format("3:04 PM")))
		}
		fmt.Fprintf(&b, "Tides: %s\n", strings.Join(parts, ", "))
	}

	if byLevel, ok := f.Metadata["upper_air"].(map[string][]fusion.UpperAirReading); ok && len(byLevel) > 0 {
		b.WriteString("\n== UPPER AIR ==\n")
		levels := make([]string, 0, len(byLevel))
		for level := range byLevel {
			levels = append(levels, level)
		}
		sort.Strings(levels)
		for _, level := range levels {
			readings := byLevel[level]
			if len(readings) == 0 {
				continue
			}
			r := readings[0]
			fmt.Fprintf(&b, "%s: %.0f kt from %.0f deg\n", level, r.WindSpeedKt, r.WindDirection)
		}
	}

	b.WriteString("\n== SEASONAL CONTEXT ==\n")
	b.WriteString(SeasonalContext(f.Generated.In(hst)) + "\n")
	if climo, ok := f.Metadata["climatology"].(string); ok && climo != "" {
		fmt.Fprintf(&b, "Historical norms: %s\n", climo)
	}

	b.WriteString("\n== DATA GAPS ==\n")
	gaps := dataGaps(f)
	if len(gaps) == 0 {
		b.WriteString("None noted.\n")
	}
	for _, gap := range gaps {
		fmt.Fprintf(&b, "- %s\n", gap)
	}

	b.WriteString("\n== CONFIDENCE ==\n")
	fmt.Fprintf(&b, "%.2f (%s)\n", report.Overall, report.Category)
	for _, w := range report.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}

	return b.String()
}

// dataGaps lists the feeds and readings this forecast had to do
// without, so the senior knows what it cannot lean on.
func dataGaps(f *models.SwellForecast) []string {
	var gaps []string
	if _, ok := f.Metadata["metar"]; !ok {
		gaps = append(gaps, "no METAR surface observation")
	}
	if _, ok := f.Metadata["tides"]; !ok {
		gaps = append(gaps, "no tide predictions")
	}
	if _, ok := f.Metadata["charts"]; !ok {
		gaps = append(gaps, "no surface pressure charts")
	}
	if _, ok := f.Metadata["upper_air"]; !ok {
		gaps = append(gaps, "no upper-air sounding")
	}

	suspect := 0
	for _, ev := range f.Events {
		if ev.Quality == models.QualitySuspect {
			suspect++
		}
	}
	if suspect > 0 {
		gaps = append(gaps, fmt.Sprintf("%d event(s) built on suspect-quality data", suspect))
	}
	return gaps
}

// timeline buckets event peaks into the next three days.
func (d *Digester) timeline(f *models.SwellForecast) string {
	var b strings.Builder
	start := f.Generated.In(hst).Truncate(24 * time.Hour)
	for day := 0; day < 3; day++ {
		from := start.AddDate(0, 0, day)
		to := from.AddDate(0, 0, 1)
		var peaks []string
		for _, ev := range f.Events {
			if ev.Peak == nil {
				continue
			}
			at := ev.Peak.In(hst)
			if at.Before(from) || !at.Before(to) {
				continue
			}
			peaks = append(peaks, fmt.Sprintf("%.1f ft %s peaking %s", ev.HawaiianFeet, ev.Cardinal, at.Format("3 PM")))
		}
		label := from.Format("Mon Jan 2")
		if len(peaks) == 0 {
			fmt.Fprintf(&b, "%s: holding\n", label)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", label, strings.Join(peaks, "; "))
	}
	return b.String()
}

// SeasonalContext describes the Hawaiian swell season for t.
func SeasonalContext(t time.Time) string {
	switch t.Month() {
	case time.November, time.December, time.January, time.February, time.March:
		return "Winter season: North Pacific storm track active, north and west shores carry the size; town stays mostly flat."
	case time.April, time.May:
		return "Spring transition: NPAC winding down, first Southern Hemisphere pulses reaching south shores."
	case time.June, time.July, time.August:
		return "Summer season: Southern Hemisphere groundswell window for south shores; north shores typically flat outside trade windswell."
	default:
		return "Fall transition: early-season NPAC swells possible up north while south energy fades."
	}
}

func primaryPeriod(ev models.SwellEvent) float64 {
	if len(ev.Components) > 0 {
		return ev.Components[0].Period
	}
	return 0
}

func timingWindow(ev models.SwellEvent) string {
	format := func(t *time.Time) string { return t.In(hst).Format("Mon 3 PM") }
	switch {
	case ev.Start != nil && ev.End != nil:
		return fmt.Sprintf("building %s through %s", format(ev.Start), format(ev.End))
	case ev.Peak != nil:
		return fmt.Sprintf("peaking %s", format(ev.Peak))
	default:
		return ""
	}
}

func directionLabel(facing float64) string {
	switch {
	case facing < 45 || facing >= 315:
		return "north"
	case facing < 135:
		return "east"
	case facing < 225:
		return "south"
	default:
		return "west"
	}
}
