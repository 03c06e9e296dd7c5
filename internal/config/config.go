// Package config loads and validates the forecast engine configuration
// from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Fusion     FusionConfig     `yaml:"fusion"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	Spectral   SpectralConfig   `yaml:"spectral"`
	Images     ImagesConfig     `yaml:"images"`
	LLM        LLMConfig        `yaml:"llm"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Specialist SpecialistConfig `yaml:"specialists"`
	Store      StoreConfig      `yaml:"store"`
}

// FusionConfig tunes event extraction and merging.
type FusionConfig struct {
	MinPeriodSeconds   float64 `yaml:"min_period_seconds"`   // buoy single-component floor
	MergeWindowHours   float64 `yaml:"merge_window_hours"`   // same-source event collapse window
	MergeDirectionTol  float64 `yaml:"merge_direction_tol"`  // degrees
	StaleSuspectHours  float64 `yaml:"stale_suspect_hours"`  // observation age → suspect
	StaleExcludedHours float64 `yaml:"stale_excluded_hours"` // observation age → excluded
}

// ConfidenceConfig carries the five factor weights. They must sum to 1.
type ConfidenceConfig struct {
	ConsensusWeight    float64 `yaml:"consensus_weight"`
	ReliabilityWeight  float64 `yaml:"reliability_weight"`
	CompletenessWeight float64 `yaml:"completeness_weight"`
	HorizonWeight      float64 `yaml:"horizon_weight"`
	AccuracyWeight     float64 `yaml:"accuracy_weight"`
}

// SpectralConfig tunes directional spectrum peak extraction.
type SpectralConfig struct {
	PeakNeighborhood int `yaml:"peak_neighborhood"` // bins integrated around a peak
	MaxPeaks         int `yaml:"max_peaks"`
}

// ImagesConfig governs chart image selection for the vision specialist.
type ImagesConfig struct {
	MaxTotal        int    `yaml:"max_total"`
	MaxPerType      int    `yaml:"max_per_type"`
	PressureDetail  string `yaml:"pressure_detail"`
	ModelDetail     string `yaml:"model_detail"`
	SatelliteDetail string `yaml:"satellite_detail"`
	SSTDetail       string `yaml:"sst_detail"`
}

// LLMConfig governs the shared language model client.
type LLMConfig struct {
	Model          string        `yaml:"model"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	MaxRetries     int           `yaml:"max_retries"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
}

// Timeout returns the per-call timeout as a duration.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// FetchConfig bounds per-source processing.
type FetchConfig struct {
	SourceTimeoutSeconds int `yaml:"source_timeout_seconds"`
	MaxWorkers           int `yaml:"max_workers"` // 0 = CPU count
}

// SpecialistConfig governs the specialist orchestration stage.
type SpecialistConfig struct {
	MinRequired     int     `yaml:"min_required"`     // specialists above floor needed
	ConfidenceFloor float64 `yaml:"confidence_floor"` // per-specialist minimum
	TopEvents       int     `yaml:"top_events"`       // events per shore digest
}

// StoreConfig points at the validation performance database.
type StoreConfig struct {
	ValidationDBPath string  `yaml:"validation_db_path"`
	WindowDays       int     `yaml:"window_days"`
	MinSamples       int     `yaml:"min_samples"`
	OutlierFeet      float64 `yaml:"outlier_feet"`
}

// Default returns the canonical configuration.
func Default() Config {
	return Config{
		Fusion: FusionConfig{
			MinPeriodSeconds:   8.0,
			MergeWindowHours:   24.0,
			MergeDirectionTol:  45.0,
			StaleSuspectHours:  6.0,
			StaleExcludedHours: 24.0,
		},
		Confidence: ConfidenceConfig{
			ConsensusWeight:    0.30,
			ReliabilityWeight:  0.25,
			CompletenessWeight: 0.20,
			HorizonWeight:      0.15,
			AccuracyWeight:     0.10,
		},
		Spectral: SpectralConfig{
			PeakNeighborhood: 2,
			MaxPeaks:         4,
		},
		Images: ImagesConfig{
			MaxTotal:        10,
			MaxPerType:      4,
			PressureDetail:  "high",
			ModelDetail:     "auto",
			SatelliteDetail: "auto",
			SSTDetail:       "low",
		},
		LLM: LLMConfig{
			Model:          "gpt-4o",
			TimeoutSeconds: 120,
			MaxRetries:     3,
			BackoffBase:    2 * time.Second,
			RatePerSecond:  1,
			Burst:          4,
		},
		Fetch: FetchConfig{
			SourceTimeoutSeconds: 60,
			MaxWorkers:           0,
		},
		Specialist: SpecialistConfig{
			MinRequired:     2,
			ConfidenceFloor: 0.3,
			TopEvents:       6,
		},
		Store: StoreConfig{
			ValidationDBPath: "data/validations.db",
			WindowDays:       30,
			MinSamples:       10,
			OutlierFeet:      10,
		},
	}
}

// Load reads a YAML config file layered over defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Fusion.MinPeriodSeconds < 4 {
		return fmt.Errorf("fusion min_period_seconds %.1f below the 4s phantom-swell floor", c.Fusion.MinPeriodSeconds)
	}
	if c.Fusion.MergeDirectionTol <= 0 || c.Fusion.MergeDirectionTol > 180 {
		return fmt.Errorf("fusion merge_direction_tol must be in (0,180], got %.1f", c.Fusion.MergeDirectionTol)
	}

	sum := c.Confidence.ConsensusWeight + c.Confidence.ReliabilityWeight +
		c.Confidence.CompletenessWeight + c.Confidence.HorizonWeight + c.Confidence.AccuracyWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("confidence weights must sum to 1, got %.3f", sum)
	}

	if c.Spectral.PeakNeighborhood < 1 {
		return fmt.Errorf("spectral peak_neighborhood must be >= 1, got %d", c.Spectral.PeakNeighborhood)
	}
	if c.Images.MaxTotal <= 0 {
		return fmt.Errorf("images max_total must be positive, got %d", c.Images.MaxTotal)
	}
	for _, d := range []string{c.Images.PressureDetail, c.Images.ModelDetail, c.Images.SatelliteDetail, c.Images.SSTDetail} {
		if d != "high" && d != "auto" && d != "low" {
			return fmt.Errorf("image detail must be high|auto|low, got %q", d)
		}
	}

	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("llm timeout_seconds must be positive, got %d", c.LLM.TimeoutSeconds)
	}
	if c.LLM.MaxRetries < 1 {
		return fmt.Errorf("llm max_retries must be >= 1, got %d", c.LLM.MaxRetries)
	}
	if c.Specialist.MinRequired < 1 {
		return fmt.Errorf("specialists min_required must be >= 1, got %d", c.Specialist.MinRequired)
	}
	if c.Specialist.ConfidenceFloor < 0 || c.Specialist.ConfidenceFloor >= 1 {
		return fmt.Errorf("specialists confidence_floor must be in [0,1), got %.2f", c.Specialist.ConfidenceFloor)
	}
	return nil
}
