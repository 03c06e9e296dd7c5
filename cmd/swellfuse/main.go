package main

import (
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/makailabs/swellfuse/internal/pipeline"
)

const (
	appName = "swellfuse"
	version = "v1.2.0"
)

// Exit codes by failure class, for scripted callers.
const (
	exitInputValidation = 2
	exitLLMUnavailable  = 3
	exitNoQuorum        = 4
)

var flagConfig string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Hawaii swell forecast fusion engine",
		Version: version,
		Long: `swellfuse fuses NDBC buoy observations, wave model runs, NWS forecasts
and surface pressure charts into a single Oahu swell forecast, then runs
specialist analysis agents over the result.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config (defaults apply when empty)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")
	cobra.OnInitialize(func() {
		level, _ := rootCmd.PersistentFlags().GetString("log-level")
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			zerolog.SetGlobalLevel(parsed)
		}
	})

	rootCmd.AddCommand(newForecastCmd(), newPerformanceCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInputValidation):
		return exitInputValidation
	case errors.Is(err, pipeline.ErrLLMUnavailable), errors.Is(err, pipeline.ErrEmptyLLMResponse):
		return exitLLMUnavailable
	case errors.Is(err, pipeline.ErrInsufficientSpecialists):
		return exitNoQuorum
	default:
		return 1
	}
}
