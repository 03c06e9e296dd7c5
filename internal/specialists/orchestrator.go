package specialists

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/llm"
	"github.com/makailabs/swellfuse/internal/models"
)

// Inputs is everything one orchestration run consumes.
type Inputs struct {
	Buoys        []models.BuoyInput
	Charts       []llm.Image
	Forecast     *models.SwellForecast
	Digest       string
	ShoreDigests map[string]string
	Now          time.Time
}

// RunResult carries the senior output plus every individual specialist
// envelope for audit.
type RunResult struct {
	Senior      models.SpecialistOutput
	Specialists map[string]models.SpecialistOutput
}

// Orchestrator fans the independent specialists out concurrently and
// joins them into the senior synthesis.
type Orchestrator struct {
	cfg      config.Config
	buoy     *BuoySpecialist
	pressure *PressureSpecialist
	senior   *SeniorSpecialist
}

// NewOrchestrator wires the three specialists around a shared client.
func NewOrchestrator(client llm.Client, cfg config.Config) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		buoy:     NewBuoySpecialist(client, cfg),
		pressure: NewPressureSpecialist(client),
		senior:   NewSeniorSpecialist(client, cfg.Specialist),
	}
}

// Run launches the buoy and pressure specialists in parallel, each under
// its own timeout, then hands the survivors to the senior forecaster. A
// failed specialist is logged and omitted; quorum is enforced by the
// senior stage.
func (o *Orchestrator) Run(ctx context.Context, in Inputs) (RunResult, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	type named struct {
		name string
		out  models.SpecialistOutput
		err  error
	}
	results := make(chan named, 2)
	var wg sync.WaitGroup

	launch := func(name string, run func(context.Context) (models.SpecialistOutput, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, o.cfg.LLM.Timeout())
			defer cancel()
			out, err := run(callCtx)
			results <- named{name: name, out: out, err: err}
		}()
	}

	launch("buoy", func(c context.Context) (models.SpecialistOutput, error) {
		return o.buoy.Analyze(c, in.Buoys, now)
	})
	launch("pressure", func(c context.Context) (models.SpecialistOutput, error) {
		return o.pressure.Analyze(c, in.Charts, now)
	})

	wg.Wait()
	close(results)

	outputs := make(map[string]models.SpecialistOutput, 2)
	for r := range results {
		if r.err != nil {
			log.Warn().Str("specialist", r.name).Err(r.err).Msg("specialist failed, continuing without it")
			continue
		}
		outputs[r.name] = r.out
	}

	senior, err := o.senior.Synthesize(ctx, SeniorInput{
		Forecast:     in.Forecast,
		Digest:       in.Digest,
		ShoreDigests: in.ShoreDigests,
		Outputs:      outputs,
		Now:          now,
	})
	if err != nil {
		return RunResult{Specialists: outputs}, err
	}

	return RunResult{Senior: senior, Specialists: outputs}, nil
}
