package specialists

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/geo"
	"github.com/makailabs/swellfuse/internal/llm"
	"github.com/makailabs/swellfuse/internal/models"
	"github.com/makailabs/swellfuse/internal/process"
	"github.com/makailabs/swellfuse/internal/score"
)

const seniorSystemPrompt = `You are the senior Hawaii surf forecaster. You receive a fused multi-source
forecast digest plus analyses from a buoy specialist and a pressure chart specialist.
Reconcile them into a final forecast for Oahu's four shores. When specialists disagree,
say so and explain which source you trust and why. Write a complete forecast discussion.`

// Direction tolerances for cross-specialist matching: within
// confirmTolerance two detections confirm each other; between that and
// contradictTolerance they describe the same swell with a direction
// disagreement.
const (
	confirmTolerance    = 30.0
	contradictTolerance = 45.0
	shoreMatchTolerance = 60.0
)

// Breaking wave face: deep-water height times 1.8 shoaling, meters to feet.
const breakingFaceFactor = 1.8 * 3.28

// Swells of 12 seconds and up count as groundswell.
const groundswellPeriodSec = 12.0

// Contradiction is one detected disagreement between specialists.
type Contradiction struct {
	Issue      string `json:"issue"`
	Resolution string `json:"resolution"`
	Impact     string `json:"impact"` // high|medium|low
}

// ShoreForecast is the final per-shore call.
type ShoreForecast struct {
	Shore            string  `json:"shore"`
	SizeFtMin        float64 `json:"size_ft_min"`
	SizeFtMax        float64 `json:"size_ft_max"`
	PrimaryDirection float64 `json:"primary_direction"`
	Conditions       string  `json:"conditions"`
	Timing           string  `json:"timing"`
	Confidence       float64 `json:"confidence"`
}

// SwellSummary is one entry of the final swell breakdown.
type SwellSummary struct {
	Direction           float64 `json:"direction"`
	Cardinal            string  `json:"cardinal"`
	PeriodSec           float64 `json:"period_sec"`
	HeightFt            float64 `json:"height_ft"`
	HasPressureSupport  bool    `json:"has_pressure_support"`
	HasBuoyConfirmation bool    `json:"has_buoy_confirmation"`
}

// SeniorAnalysis is the structured half of the senior output.
type SeniorAnalysis struct {
	KeyFindings    []string        `json:"key_findings"`
	Contradictions []Contradiction `json:"contradictions"`
	AgreementScore float64         `json:"agreement_score"`
	Shores         []ShoreForecast `json:"shores"`
	Swells         []SwellSummary  `json:"swells"`
}

// SeniorInput is everything the senior synthesis consumes.
type SeniorInput struct {
	Forecast     *models.SwellForecast
	Digest       string
	ShoreDigests map[string]string
	Outputs      map[string]models.SpecialistOutput
	Now          time.Time
}

// SeniorSpecialist reconciles the specialist outputs into the final
// forecast.
type SeniorSpecialist struct {
	client llm.Client
	cfg    config.SpecialistConfig
}

// NewSeniorSpecialist wires the senior forecaster.
func NewSeniorSpecialist(client llm.Client, cfg config.SpecialistConfig) *SeniorSpecialist {
	return &SeniorSpecialist{client: client, cfg: cfg}
}

// Synthesize validates quorum, detects contradictions, builds per-shore
// calls and asks the model for the final discussion.
func (s *SeniorSpecialist) Synthesize(ctx context.Context, in SeniorInput) (models.SpecialistOutput, error) {
	usable := 0
	for _, out := range in.Outputs {
		if out.Confidence >= s.cfg.ConfidenceFloor {
			usable++
		}
	}
	if usable < s.cfg.MinRequired {
		return models.SpecialistOutput{}, fmt.Errorf("%w: %d usable of %d required",
			ErrInsufficientSpecialists, usable, s.cfg.MinRequired)
	}
	if in.Forecast == nil {
		return models.SpecialistOutput{}, fmt.Errorf("%w: missing fused forecast", ErrInputValidation)
	}

	buoySwells := buoySwellDirections(in.Outputs)
	charts := pressureChartAnalysis(in.Outputs)

	contradictions := detectContradictions(buoySwells, charts, in.Now)
	agreement := agreementScore(buoySwells, charts.PredictedSwell, in.Outputs, in.Now)

	analysis := SeniorAnalysis{
		Contradictions: contradictions,
		AgreementScore: agreement,
		Swells:         swellBreakdown(in.Forecast, buoySwells, charts.PredictedSwell),
	}
	analysis.Shores = s.shoreForecasts(in, agreement)
	analysis.KeyFindings = keyFindings(in.Forecast, analysis)

	confidence := overallConfidence(agreement, contradictions, len(in.Outputs))

	resp, err := s.client.GenerateText(ctx, seniorSystemPrompt, s.prompt(in, analysis), nil)
	if err != nil {
		return models.SpecialistOutput{}, fmt.Errorf("senior specialist: %w", err)
	}

	out := models.NewSpecialistOutput(confidence, analysis, resp.Text)
	out.Metadata["specialist"] = "senior"
	out.Metadata["specialists_used"] = usable
	out.Metadata["agreement_score"] = agreement
	return out, nil
}

type observedSwell struct {
	direction float64
	period    float64
	heightM   float64
	trend     string
}

func trendIncreasing(t string) bool { return strings.HasSuffix(t, "_increasing") }
func trendDecreasing(t string) bool { return strings.HasSuffix(t, "_decreasing") }

func buoySwellDirections(outputs map[string]models.SpecialistOutput) []observedSwell {
	analysis, ok := outputs["buoy"].Data.(BuoyAnalysis)
	if !ok {
		return nil
	}
	var swells []observedSwell
	for _, pb := range analysis.Buoys {
		if pb.Quality == models.QualityExcluded {
			continue
		}
		latest, has := pb.Data.Latest()
		if !has || latest.WaveDirection == nil || latest.WaveHeight == nil {
			continue
		}
		sw := observedSwell{
			direction: *latest.WaveDirection,
			heightM:   *latest.WaveHeight,
			trend:     pb.HeightTrend.Category,
		}
		if latest.DominantPeriod != nil {
			sw.period = *latest.DominantPeriod
		}
		swells = append(swells, sw)
	}
	return swells
}

func pressureChartAnalysis(outputs map[string]models.SpecialistOutput) ChartAnalysis {
	analysis, _ := outputs["pressure"].Data.(ChartAnalysis)
	return analysis
}

// arrivalTime parses a prediction's physics arrival estimate. The second
// return is false when no parseable estimate exists.
func arrivalTime(sw PredictedSwell) (time.Time, bool) {
	if sw.PhysicsArrival == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, sw.PhysicsArrival)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// detectContradictions reconciles buoy readings against chart
// predictions. Beyond direction and height disagreements on the same
// swell, it flags rising buoys with no charted source (likely local
// windswell), confident chart swells no buoy can see, and buoys fading
// ahead of a charted swell still en route.
func detectContradictions(buoys []observedSwell, charts ChartAnalysis, now time.Time) []Contradiction {
	var out []Contradiction
	preds := charts.PredictedSwell

	for _, pred := range preds {
		matched := false
		for _, buoy := range buoys {
			gap := geo.AngularDistance(pred.DirectionDeg, buoy.direction)
			if gap > contradictTolerance {
				continue
			}
			matched = true
			if gap > confirmTolerance {
				out = append(out, Contradiction{
					Issue: fmt.Sprintf("charts predict %.0f deg swell, buoys read %.0f deg (%.0f deg apart)",
						pred.DirectionDeg, buoy.direction, gap),
					Resolution: "treat as one swell with an uncertain direction; favor the buoy reading",
					Impact:     "medium",
				})
				continue
			}
			if pred.HeightM > 0 && buoy.heightM > 0 {
				bigger, smaller := pred.HeightM, buoy.heightM
				if smaller > bigger {
					bigger, smaller = smaller, bigger
				}
				if (bigger-smaller)/bigger > 0.5 {
					out = append(out, Contradiction{
						Issue: fmt.Sprintf("same %.0f deg swell but charts say %.1fm while buoys read %.1fm",
							pred.DirectionDeg, pred.HeightM, buoy.heightM),
						Resolution: "size off the buoy reading; the chart estimate is indirect",
						Impact:     "high",
					})
				}
			}
			if trendDecreasing(buoy.trend) && pred.Confidence > 0.7 {
				if at, ok := arrivalTime(pred); ok && at.After(now) {
					out = append(out, Contradiction{
						Issue: fmt.Sprintf("buoys show the %.0f deg swell fading while charts have a confident new pulse arriving %s",
							buoy.direction, at.UTC().Format("Jan 2 15:04 MST")),
						Resolution: "expect a fade then a rebuild when the charted swell arrives",
						Impact:     "medium",
					})
				}
			}
		}

		if !matched && pred.Confidence > 0.7 {
			impact := "low"
			resolution := "arrival is still ahead; buoys cannot confirm yet"
			if at, ok := arrivalTime(pred); ok && !at.After(now) {
				impact = "high"
				resolution = "the swell should already show on buoys and does not; distrust the chart prediction"
			}
			out = append(out, Contradiction{
				Issue: fmt.Sprintf("charts are %.0f%% confident in a %.0f deg swell no buoy is reading",
					pred.Confidence*100, pred.DirectionDeg),
				Resolution: resolution,
				Impact:     impact,
			})
		}
	}

	for _, buoy := range buoys {
		if buoy.trend != process.TrendStrongIncreasing {
			continue
		}
		sourced := false
		for _, pred := range preds {
			if geo.AngularDistance(pred.DirectionDeg, buoy.direction) <= contradictTolerance {
				sourced = true
				break
			}
		}
		for _, fetch := range charts.Fetches {
			if geo.AngularDistance(fetch.DirectionDeg, buoy.direction) <= contradictTolerance {
				sourced = true
				break
			}
		}
		if !sourced {
			out = append(out, Contradiction{
				Issue: fmt.Sprintf("buoys rising fast from %.0f deg with no charted fetch or predicted swell behind it",
					buoy.direction),
				Resolution: "likely locally generated windswell; expect short periods and a quick drop",
				Impact:     "medium",
			})
		}
	}

	return out
}

// agreementScore averages three cross-specialist signals: how many buoy
// swells the charts account for, whether buoy trends line up with chart
// arrival times, and how close the two specialists' confidences sit.
func agreementScore(buoys []observedSwell, preds []PredictedSwell, outputs map[string]models.SpecialistOutput, now time.Time) float64 {
	match := 0.5
	if len(buoys) > 0 && len(preds) > 0 {
		matched := 0
		for _, b := range buoys {
			for _, p := range preds {
				if geo.AngularDistance(b.direction, p.DirectionDeg) <= contradictTolerance {
					matched++
					break
				}
			}
		}
		match = float64(matched) / float64(len(buoys))
	}

	align := 0.5
	pairs := 0
	alignSum := 0.0
	for _, b := range buoys {
		for _, p := range preds {
			if geo.AngularDistance(b.direction, p.DirectionDeg) > contradictTolerance {
				continue
			}
			pairs++
			at, ok := arrivalTime(p)
			future := ok && at.After(now)
			switch {
			case trendIncreasing(b.trend) && future:
				alignSum += 1.0
			case trendDecreasing(b.trend) && future:
				// The buoy is fading ahead of a swell still en route.
			default:
				alignSum += 0.5
			}
		}
	}
	if pairs > 0 {
		align = alignSum / float64(pairs)
	}

	confCloseness := 0.5
	buoyOut, hasBuoy := outputs["buoy"]
	pressOut, hasPress := outputs["pressure"]
	if hasBuoy && hasPress {
		confCloseness = 1.0 - absFloat(buoyOut.Confidence-pressOut.Confidence)
	}

	return clamp01((match + align + confCloseness) / 3)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// overallConfidence starts from the agreement score, docks 0.15 per high
// and 0.05 per medium contradiction, and adds a 10% bonus when three or
// more specialists contributed.
func overallConfidence(agreement float64, contradictions []Contradiction, specialists int) float64 {
	conf := agreement
	for _, c := range contradictions {
		switch c.Impact {
		case "high":
			conf -= 0.15
		case "medium":
			conf -= 0.05
		}
	}
	if specialists >= 3 {
		conf *= 1.1
	}
	return clamp01(conf)
}

// shoreForecasts builds the per-shore size, conditions and timing calls
// from the fused events mapped to each shore's exposure windows.
func (s *SeniorSpecialist) shoreForecasts(in SeniorInput, agreement float64) []ShoreForecast {
	sourceConf := 0.0
	if len(in.Outputs) > 0 {
		for _, out := range in.Outputs {
			sourceConf += out.Confidence
		}
		sourceConf /= float64(len(in.Outputs))
	}

	var forecasts []ShoreForecast
	for _, shore := range geo.Shores() {
		var matched []*models.SwellEvent
		var best *models.SwellEvent
		for i := range in.Forecast.Events {
			ev := &in.Forecast.Events[i]
			if ev.Quality == models.QualityExcluded {
				continue
			}
			if !nearExposure(shore, ev.Direction) {
				continue
			}
			matched = append(matched, ev)
			if best == nil || ev.Significance > best.Significance {
				best = ev
			}
		}

		sf := ShoreForecast{
			Shore:      shore.Name,
			Confidence: clamp01(0.4*agreement + 0.6*sourceConf),
		}
		if best == nil {
			sf.Conditions = "small and clean"
			sf.Timing = "Steady through period"
			forecasts = append(forecasts, sf)
			continue
		}

		maxFt := best.HeightMeters() * breakingFaceFactor
		sf.SizeFtMax = maxFt
		sf.SizeFtMin = maxFt * 0.7
		sf.PrimaryDirection = best.Direction
		sf.Conditions = conditionsFor(matched, maxFt)
		sf.Timing = timingFor(best, in.Now)
		forecasts = append(forecasts, sf)
	}
	return forecasts
}

// nearExposure reports whether direction d is inside the shore's
// exposure windows or within the shore match tolerance of one of their
// edges.
func nearExposure(shore geo.Shore, d float64) bool {
	if geo.ExposureFactor(shore, d) > 0 {
		return true
	}
	for _, r := range shore.ExposureRanges {
		if geo.AngularDistance(d, r.From) <= shoreMatchTolerance ||
			geo.AngularDistance(d, r.To) <= shoreMatchTolerance {
			return true
		}
	}
	return false
}

// conditionsFor reads surface character off the matched swell mix:
// groundswell from one direction is clean, groundswell from scattered
// directions chops up, and a pure short-period mix is wind-affected.
func conditionsFor(matched []*models.SwellEvent, maxFt float64) string {
	if len(matched) == 0 || maxFt < 3 {
		return "small and clean"
	}

	groundswell := false
	spread := 0.0
	for i, ev := range matched {
		if eventPeriod(ev) >= groundswellPeriodSec {
			groundswell = true
		}
		for _, other := range matched[i+1:] {
			if d := geo.AngularDistance(ev.Direction, other.Direction); d > spread {
				spread = d
			}
		}
	}
	diverse := spread > contradictTolerance

	switch {
	case groundswell && !diverse:
		return "clean"
	case groundswell && diverse:
		return "fair to choppy"
	default:
		return "mixed and choppy"
	}
}

func eventPeriod(ev *models.SwellEvent) float64 {
	if len(ev.Components) > 0 {
		return ev.Components[0].Period
	}
	return 0
}

func timingFor(ev *models.SwellEvent, now time.Time) string {
	hst := time.FixedZone("HST", -10*60*60)
	if ev.Start != nil && ev.Start.After(now) {
		return fmt.Sprintf("New swell arriving %s, building thereafter", ev.Start.In(hst).Format("Monday"))
	}
	if ev.Peak != nil && ev.Peak.After(now) {
		return "Building through the period, peak in 12-24 hours"
	}
	return "Steady through period"
}

// swellBreakdown lists the top five events with cross-source support
// flags.
func swellBreakdown(f *models.SwellForecast, buoys []observedSwell, charts []PredictedSwell) []SwellSummary {
	events := make([]models.SwellEvent, 0, len(f.Events))
	for _, ev := range f.Events {
		if ev.Quality != models.QualityExcluded {
			events = append(events, ev)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Significance > events[j].Significance
	})
	if len(events) > 5 {
		events = events[:5]
	}

	var out []SwellSummary
	for _, ev := range events {
		sum := SwellSummary{
			Direction: ev.Direction,
			Cardinal:  ev.Cardinal,
			HeightFt:  ev.HawaiianFeet,
		}
		if len(ev.Components) > 0 {
			sum.PeriodSec = ev.Components[0].Period
		}

		tier, _ := score.TierFor(ev.Source)
		sum.HasBuoyConfirmation = tier == score.TierBuoy
		if !sum.HasBuoyConfirmation {
			for _, b := range buoys {
				if geo.AngularDistance(ev.Direction, b.direction) <= confirmTolerance {
					sum.HasBuoyConfirmation = true
					break
				}
			}
		}
		for _, c := range charts {
			if geo.AngularDistance(ev.Direction, c.DirectionDeg) <= contradictTolerance {
				sum.HasPressureSupport = true
				break
			}
		}
		out = append(out, sum)
	}
	return out
}

func keyFindings(f *models.SwellForecast, a SeniorAnalysis) []string {
	var findings []string
	if len(a.Swells) > 0 {
		top := a.Swells[0]
		findings = append(findings, fmt.Sprintf("Primary swell: %.1f ft Hawaiian from the %s at %.1fs",
			top.HeightFt, top.Cardinal, top.PeriodSec))
	}
	for _, c := range a.Contradictions {
		findings = append(findings, "Disagreement: "+c.Issue)
	}
	if arrivals, ok := f.Metadata["storm_arrivals"].([]map[string]any); ok && len(arrivals) > 0 {
		findings = append(findings, fmt.Sprintf("%d charted storm(s) with physics arrival estimates", len(arrivals)))
	}
	if report, ok := f.Metadata["confidence_report"].(models.ConfidenceReport); ok {
		for _, w := range report.Warnings {
			findings = append(findings, "Data warning: "+w)
		}
	}
	if len(findings) > 5 {
		findings = findings[:5]
	}
	return findings
}

func (s *SeniorSpecialist) prompt(in SeniorInput, a SeniorAnalysis) string {
	var b strings.Builder
	b.WriteString(in.Digest)

	if len(in.ShoreDigests) > 0 {
		b.WriteString("\n== SHORE DIGESTS ==\n")
		shoreNames := make([]string, 0, len(in.ShoreDigests))
		for name := range in.ShoreDigests {
			shoreNames = append(shoreNames, name)
		}
		sort.Strings(shoreNames)
		for _, name := range shoreNames {
			b.WriteString(in.ShoreDigests[name])
		}
	}

	b.WriteString("\n== SPECIALIST ANALYSES ==\n")

	names := make([]string, 0, len(in.Outputs))
	for name := range in.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out := in.Outputs[name]
		fmt.Fprintf(&b, "\n[%s specialist, confidence %.2f]\n%s\n", name, out.Confidence, out.Narrative)
	}

	b.WriteString("\n== RECONCILIATION NOTES ==\n")
	fmt.Fprintf(&b, "Cross-source agreement: %.2f\n", a.AgreementScore)
	for _, c := range a.Contradictions {
		fmt.Fprintf(&b, "%s-impact contradiction: %s (%s)\n", c.Impact, c.Issue, c.Resolution)
	}
	for _, finding := range a.KeyFindings {
		fmt.Fprintf(&b, "- %s\n", finding)
	}

	b.WriteString("\nWrite the final forecast discussion for all four shores.")
	return b.String()
}
