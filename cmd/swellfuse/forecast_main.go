package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/fusion"
	"github.com/makailabs/swellfuse/internal/llm"
	"github.com/makailabs/swellfuse/internal/models"
	"github.com/makailabs/swellfuse/internal/perfstore"
	"github.com/makailabs/swellfuse/internal/pipeline"
	"github.com/makailabs/swellfuse/internal/process"
)

func newForecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Run the full forecast pipeline over a data bundle",
		Long: `Reads a fetched data bundle (buoys.json, model runs, weather.json,
aux.json plus chart image directories), fuses it and runs the specialist
agents. The final forecast is written to stdout as JSON.`,
		RunE: runForecast,
	}
	cmd.Flags().String("bundle-id", "", "Data bundle directory under the data root")
	cmd.Flags().String("data-root", "data", "Root directory holding fetched bundles")
	cmd.Flags().Float64("days-ahead", 1, "Forecast lead time in days")
	cmd.Flags().Int("lookback-days", 0, "Override the validation window (0 keeps config)")
	_ = cmd.MarkFlagRequired("bundle-id")
	return cmd
}

func runForecast(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	bundleID, _ := cmd.Flags().GetString("bundle-id")
	dataRoot, _ := cmd.Flags().GetString("data-root")
	daysAhead, _ := cmd.Flags().GetFloat64("days-ahead")
	lookback, _ := cmd.Flags().GetInt("lookback-days")
	if lookback > 0 {
		cfg.Store.WindowDays = lookback
	}

	bundle := filepath.Join(dataRoot, bundleID)
	in, err := loadBundle(bundle)
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrInputValidation, err)
	}
	in.DaysAhead = daysAhead
	in.Now = time.Now().UTC()

	client := llm.NewRetryingClient(
		llm.NewOpenAIClient(os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_KEY"), cfg.LLM.Model),
		cfg.LLM, "forecast")

	p := pipeline.New(cfg, client)
	if store, err := perfstore.Open(cfg.Store); err == nil {
		defer store.Close()
		p = p.WithStore(store)
	} else {
		log.Warn().Err(err).Msg("validation store unavailable")
	}

	out, err := p.Run(cmd.Context(), *in)
	if err != nil {
		return err
	}

	log.Info().Str("forecast_id", out.Forecast.ID).
		Str("confidence", out.Confidence.Category).
		Msg("forecast complete")

	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"forecast":    out.Forecast,
		"confidence":  out.Confidence,
		"senior":      out.Senior,
		"specialists": out.Specialists,
		"tokens":      out.TokenEstimate,
	})
}

// loadBundle reads the fetcher's JSON layout into pipeline inputs. Every
// file is optional except that at least one buoy or model source must
// load.
func loadBundle(dir string) (*pipeline.RunInput, error) {
	in := &pipeline.RunInput{DataRoot: dir}

	var rawBuoys []map[string]any
	if err := readJSON(filepath.Join(dir, "buoys.json"), &rawBuoys); err == nil {
		for _, raw := range rawBuoys {
			in.Buoys = append(in.Buoys, models.BuoyInput{Raw: raw})
		}
	}

	for _, name := range []string{"swan.json", "ww3.json"} {
		var payload map[string]any
		if err := readJSON(filepath.Join(dir, name), &payload); err != nil {
			continue
		}
		model, err := parseModelPayload(name, payload)
		if err != nil {
			log.Warn().Str("file", name).Err(err).Msg("model payload rejected")
			continue
		}
		in.Models = append(in.Models, model)
	}

	var weather map[string]any
	if err := readJSON(filepath.Join(dir, "weather.json"), &weather); err == nil {
		in.Weather = weather
	}

	var aux fusion.Auxiliary
	if err := readJSON(filepath.Join(dir, "aux.json"), &aux); err == nil {
		in.Aux = aux
	}

	if len(in.Buoys) == 0 && len(in.Models) == 0 {
		return nil, fmt.Errorf("bundle %s has no buoy or model data", dir)
	}
	return in, nil
}

func parseModelPayload(name string, payload map[string]any) (models.ModelData, error) {
	if name == "ww3.json" {
		return process.ParseWW3(payload)
	}
	return process.ParseSWAN(payload)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
