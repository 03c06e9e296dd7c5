// Package perfstore reads the forecast validation database and turns
// past predicted-versus-observed pairs into accuracy and bias reports
// that feed back into confidence scoring.
package perfstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/makailabs/swellfuse/internal/config"
)

// Validation is one predicted-versus-observed pair.
type Validation struct {
	ID          int64     `db:"id"`
	Shore       string    `db:"shore"`
	ValidatedAt time.Time `db:"validated_at"`
	PredictedFt float64   `db:"predicted_ft"`
	ObservedFt  float64   `db:"observed_ft"`
}

// Stats summarizes the error distribution of a validation sample.
type Stats struct {
	Total       int     `json:"total"`
	MAE         float64 `json:"mae"`
	RMSE        float64 `json:"rmse"`
	Categorical float64 `json:"categorical_accuracy"`
	AvgBias     float64 `json:"avg_bias"` // positive means overprediction
}

// BiasAlert flags a shore with a persistent prediction bias.
type BiasAlert struct {
	Shore        string  `json:"shore"`
	AvgBias      float64 `json:"avg_bias"`
	SampleSize   int     `json:"sample_size"`
	BiasCategory string  `json:"bias_category"` // OVERPREDICTING|UNDERPREDICTING
}

// PerformanceReport is the rolled-up validation history.
type PerformanceReport struct {
	Overall    Stats            `json:"overall"`
	ByShore    map[string]Stats `json:"by_shore"`
	BiasAlerts []BiasAlert      `json:"bias_alerts"`
	Sufficient bool             `json:"sufficient"`
	Metadata   map[string]any   `json:"metadata"`
}

// biasAlertFeet is the per-shore average bias that triggers an alert.
const biasAlertFeet = 1.5

// Store reads the validation database.
type Store struct {
	db  *sqlx.DB
	cfg config.StoreConfig
}

// Open opens the sqlite validation database read-only.
func Open(cfg config.StoreConfig) (*Store, error) {
	db, err := sqlx.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", cfg.ValidationDBPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open validation db: %w", err)
	}
	return &Store{db: db, cfg: cfg}, nil
}

// NewWithDB wraps an existing connection; used by tests.
func NewWithDB(db *sqlx.DB, cfg config.StoreConfig) *Store {
	return &Store{db: db, cfg: cfg}
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecentPerformance computes the rolling accuracy report over the
// configured window. Samples whose absolute error exceeds the outlier
// threshold are dropped; a report with fewer than min_samples is
// returned but marked insufficient.
func (s *Store) RecentPerformance(ctx context.Context, now time.Time) (PerformanceReport, error) {
	cutoff := now.AddDate(0, 0, -s.cfg.WindowDays)

	var rows []Validation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, shore, validated_at, predicted_ft, observed_ft
		FROM validations
		WHERE validated_at >= ?
		ORDER BY validated_at DESC`, cutoff)
	if err != nil {
		return PerformanceReport{}, fmt.Errorf("failed to query validations: %w", err)
	}

	kept := make([]Validation, 0, len(rows))
	for _, v := range rows {
		if math.Abs(v.PredictedFt-v.ObservedFt) > s.cfg.OutlierFeet {
			log.Warn().Str("shore", v.Shore).
				Float64("predicted", v.PredictedFt).Float64("observed", v.ObservedFt).
				Msg("validation outlier dropped")
			continue
		}
		kept = append(kept, v)
	}

	report := PerformanceReport{
		Overall:    computeStats(kept),
		ByShore:    map[string]Stats{},
		Sufficient: len(kept) >= s.cfg.MinSamples,
		Metadata: map[string]any{
			"window_days": s.cfg.WindowDays,
			"min_samples": s.cfg.MinSamples,
			"dropped":     len(rows) - len(kept),
			"generated":   now.UTC().Format(time.RFC3339),
		},
	}

	byShore := map[string][]Validation{}
	for _, v := range kept {
		byShore[v.Shore] = append(byShore[v.Shore], v)
	}
	for shore, sample := range byShore {
		stats := computeStats(sample)
		report.ByShore[shore] = stats
		if alert, ok := biasAlert(shore, stats); ok {
			report.BiasAlerts = append(report.BiasAlerts, alert)
		}
	}
	sort.Slice(report.BiasAlerts, func(i, j int) bool {
		return report.BiasAlerts[i].Shore < report.BiasAlerts[j].Shore
	})

	return report, nil
}

// RecentMAE returns the overall mean absolute error in feet, or nil when
// the sample is too small to trust.
func (s *Store) RecentMAE(ctx context.Context, now time.Time) (*float64, error) {
	report, err := s.RecentPerformance(ctx, now)
	if err != nil {
		return nil, err
	}
	if !report.Sufficient {
		return nil, nil
	}
	mae := report.Overall.MAE
	return &mae, nil
}

func computeStats(sample []Validation) Stats {
	stats := Stats{Total: len(sample)}
	if len(sample) == 0 {
		return stats
	}

	var absSum, sqSum, biasSum float64
	sameCategory := 0
	for _, v := range sample {
		err := v.PredictedFt - v.ObservedFt
		absSum += math.Abs(err)
		sqSum += err * err
		biasSum += err
		if sizeCategory(v.PredictedFt) == sizeCategory(v.ObservedFt) {
			sameCategory++
		}
	}

	n := float64(len(sample))
	stats.MAE = absSum / n
	stats.RMSE = math.Sqrt(sqSum / n)
	stats.AvgBias = biasSum / n
	stats.Categorical = float64(sameCategory) / n
	return stats
}

// sizeCategory buckets Hawaiian-scale heights the way surf reports do.
func sizeCategory(ft float64) string {
	switch {
	case ft < 1:
		return "flat"
	case ft < 3:
		return "small"
	case ft < 6:
		return "medium"
	case ft < 12:
		return "large"
	default:
		return "extra_large"
	}
}

func biasAlert(shore string, stats Stats) (BiasAlert, bool) {
	alert := BiasAlert{Shore: shore, AvgBias: stats.AvgBias, SampleSize: stats.Total}
	switch {
	case stats.AvgBias > biasAlertFeet:
		alert.BiasCategory = "OVERPREDICTING"
		return alert, true
	case stats.AvgBias < -biasAlertFeet:
		alert.BiasCategory = "UNDERPREDICTING"
		return alert, true
	default:
		return BiasAlert{}, false
	}
}
