// Package pipeline runs the end-to-end forecast: source processing,
// fusion, specialist preparation and orchestration, with stage timings
// exported as metrics.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/fusion"
	"github.com/makailabs/swellfuse/internal/llm"
	"github.com/makailabs/swellfuse/internal/metrics"
	"github.com/makailabs/swellfuse/internal/models"
	"github.com/makailabs/swellfuse/internal/perfstore"
	"github.com/makailabs/swellfuse/internal/prepare"
	"github.com/makailabs/swellfuse/internal/process"
	"github.com/makailabs/swellfuse/internal/spectral"
	"github.com/makailabs/swellfuse/internal/specialists"
)

// RunInput is everything one forecast run consumes.
type RunInput struct {
	Buoys   []models.BuoyInput
	Spectra map[string]spectral.Spectrum
	Models  []models.ModelData
	Weather map[string]any
	Aux     fusion.Auxiliary

	// DataRoot is the chart image directory layout root; empty skips
	// image collection.
	DataRoot  string
	DaysAhead float64
	Now       time.Time
}

// RunOutput is the complete result of one forecast run.
type RunOutput struct {
	Forecast      *models.SwellForecast
	Confidence    models.ConfidenceReport
	Senior        models.SpecialistOutput
	Specialists   map[string]models.SpecialistOutput
	Digest        string
	ShoreDigests  map[string]string
	Images        []prepare.Image
	TokenEstimate int
	Performance   *perfstore.PerformanceReport
}

// Pipeline wires the full forecast flow.
type Pipeline struct {
	cfg          config.Config
	engine       *fusion.Engine
	orchestrator *specialists.Orchestrator
	digester     *prepare.Digester
	store        *perfstore.Store
}

// New builds a pipeline around a language model client.
func New(cfg config.Config, client llm.Client) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		engine:       fusion.NewEngine(cfg),
		orchestrator: specialists.NewOrchestrator(client, cfg),
		digester:     prepare.NewDigester(cfg.Specialist),
	}
}

// WithStore attaches the validation performance store; without it the
// accuracy factor keeps its default.
func (p *Pipeline) WithStore(store *perfstore.Store) *Pipeline {
	p.store = store
	return p
}

// Run executes the forecast end to end.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (*RunOutput, error) {
	if len(in.Buoys) == 0 && len(in.Models) == 0 {
		return nil, fmt.Errorf("%w: no buoy or model sources", ErrInputValidation)
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var performance *perfstore.PerformanceReport
	var recentMAE *float64
	if p.store != nil {
		report, err := p.store.RecentPerformance(ctx, now)
		if err != nil {
			log.Warn().Err(err).Msg("validation store unavailable, keeping default accuracy")
		} else {
			performance = &report
			if report.Sufficient {
				mae := report.Overall.MAE
				recentMAE = &mae
			}
		}
	}

	fusionIn, err := p.processSources(ctx, in, now)
	if err != nil {
		return nil, err
	}
	fusionIn.DaysAhead = in.DaysAhead
	fusionIn.RecentMAE = recentMAE

	var images []prepare.Image
	if in.DataRoot != "" {
		collector := prepare.NewCollector(p.cfg.Images, in.DataRoot)
		images = collector.Select(collector.Collect())
	}
	var pressurePaths []string
	for _, img := range images {
		switch img.Type {
		case prepare.ImageSatellite:
			fusionIn.SatellitePresent = true
		case prepare.ImagePressure:
			pressurePaths = append(pressurePaths, img.Path)
		}
	}
	if len(fusionIn.Aux.Charts) == 0 {
		fusionIn.Aux.Charts = pressurePaths
	}

	fuseStart := time.Now()
	result, err := p.engine.Fuse(*fusionIn)
	metrics.ObserveStage("fuse", time.Since(fuseStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputValidation, err)
	}

	prepStart := time.Now()
	clean := prepare.Sanitize(result.Forecast)
	digest := p.digester.Overall(clean, result.Confidence)
	shoreDigests := p.digester.ShoreDigests(clean)
	tokens := prepare.EstimateTokens(digest, images)
	metrics.ObserveStage("prepare", time.Since(prepStart).Seconds())

	charts := make([]llm.Image, 0, len(images))
	for _, img := range images {
		charts = append(charts, llm.Image{Path: img.Path, Detail: img.Detail, Description: img.Description})
	}

	specStart := time.Now()
	run, err := p.orchestrator.Run(ctx, specialists.Inputs{
		Buoys:        in.Buoys,
		Charts:       charts,
		Forecast:     clean,
		Digest:       digest,
		ShoreDigests: shoreDigests,
		Now:          now,
	})
	metrics.ObserveStage("specialists", time.Since(specStart).Seconds())
	if err != nil {
		return nil, err
	}

	log.Info().Str("forecast_id", clean.ID).
		Int("events", len(clean.Events)).
		Int("specialists", len(run.Specialists)).
		Int("token_estimate", tokens).
		Msg("forecast run complete")

	return &RunOutput{
		Forecast:      clean,
		Confidence:    result.Confidence,
		Senior:        run.Senior,
		Specialists:   run.Specialists,
		Digest:        digest,
		ShoreDigests:  shoreDigests,
		Images:        images,
		TokenEstimate: tokens,
		Performance:   performance,
	}, nil
}

// processSources runs the per-source processors under a bounded worker
// pool and assembles the fusion inputs.
func (p *Pipeline) processSources(ctx context.Context, in RunInput, now time.Time) (*fusion.Inputs, error) {
	start := time.Now()
	defer func() { metrics.ObserveStage("process_sources", time.Since(start).Seconds()) }()

	workers := p.cfg.Fetch.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	out := &fusion.Inputs{
		Spectra: in.Spectra,
		Aux:     in.Aux,
		Now:     now,
	}

	run := func(job func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			job()
		}()
	}

	run(func() {
		var buoys []models.BuoyData
		for i, input := range in.Buoys {
			data, err := models.NormalizeBuoy(input)
			if err != nil {
				log.Warn().Int("input", i).Err(err).Msg("buoy input rejected")
				continue
			}
			buoys = append(buoys, data)
		}
		processed, _ := process.NewBuoyProcessor(p.cfg.Fusion).Process(buoys, now)

		mu.Lock()
		defer mu.Unlock()
		out.Buoys = processed
		for _, b := range buoys {
			if b.SpectrumPath == "" {
				continue
			}
			if _, have := out.Spectra[b.StationID]; have {
				continue
			}
			spec, err := spectral.Load(b.SpectrumPath)
			if err != nil {
				log.Warn().Str("station", b.StationID).Err(err).Msg("spectrum file rejected")
				continue
			}
			if out.Spectra == nil {
				out.Spectra = map[string]spectral.Spectrum{}
			}
			out.Spectra[b.StationID] = spec
		}
	})

	processor := process.NewModelProcessor()
	for _, m := range in.Models {
		m := m
		run(func() {
			pm := processor.Process(m, now)
			mu.Lock()
			out.Models = append(out.Models, pm)
			mu.Unlock()
		})
	}

	if in.Weather != nil {
		run(func() {
			weather, err := process.NewWeatherProcessor().Process(in.Weather)
			if err != nil {
				log.Warn().Err(err).Msg("weather feed rejected")
				return
			}
			mu.Lock()
			out.Weather = &weather
			mu.Unlock()
		})
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
