package perfstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makailabs/swellfuse/internal/config"
)

func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "sqlmock"), config.Default().Store), mock
}

func validationRows(now time.Time, pairs [][3]any) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "shore", "validated_at", "predicted_ft", "observed_ft"})
	for i, p := range pairs {
		rows.AddRow(int64(i+1), p[0], now.AddDate(0, 0, -i%7), p[1], p[2])
	}
	return rows
}

func TestRecentPerformance_Stats(t *testing.T) {
	store, mock := mockStore(t)
	now := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	pairs := [][3]any{
		{"North Shore", 8.0, 6.0},
		{"North Shore", 10.0, 8.0},
		{"North Shore", 6.0, 4.0},
		{"North Shore", 9.0, 7.0},
		{"South Shore", 3.0, 3.0},
		{"South Shore", 2.0, 2.5},
		{"South Shore", 3.5, 3.0},
		{"West Side", 4.0, 4.0},
		{"West Side", 5.0, 4.5},
		{"East Side", 2.0, 2.0},
		{"East Side", 3.0, 2.8},
	}
	mock.ExpectQuery("SELECT id, shore, validated_at").
		WillReturnRows(validationRows(now, pairs))

	report, err := store.RecentPerformance(context.Background(), now)
	require.NoError(t, err)

	assert.True(t, report.Sufficient)
	assert.Equal(t, 11, report.Overall.Total)
	assert.Greater(t, report.Overall.MAE, 0.0)
	assert.GreaterOrEqual(t, report.Overall.RMSE, report.Overall.MAE)

	// The North Shore runs a consistent +2 ft bias.
	north := report.ByShore["North Shore"]
	assert.InDelta(t, 2.0, north.AvgBias, 1e-9)
	require.Len(t, report.BiasAlerts, 1)
	assert.Equal(t, "North Shore", report.BiasAlerts[0].Shore)
	assert.Equal(t, "OVERPREDICTING", report.BiasAlerts[0].BiasCategory)
	assert.Equal(t, 4, report.BiasAlerts[0].SampleSize)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentPerformance_DropsOutliers(t *testing.T) {
	store, mock := mockStore(t)
	now := time.Now().UTC()

	pairs := [][3]any{
		{"North Shore", 4.0, 3.5},
		{"North Shore", 25.0, 3.0}, // 22 ft error: sensor glitch
		{"North Shore", 5.0, 5.5},
	}
	mock.ExpectQuery("SELECT id, shore, validated_at").
		WillReturnRows(validationRows(now, pairs))

	report, err := store.RecentPerformance(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Overall.Total)
	assert.Equal(t, 1, report.Metadata["dropped"])
	assert.False(t, report.Sufficient, "two samples is under the minimum")
}

func TestRecentMAE_InsufficientSampleIsNil(t *testing.T) {
	store, mock := mockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, shore, validated_at").
		WillReturnRows(validationRows(now, [][3]any{{"North Shore", 4.0, 3.5}}))

	mae, err := store.RecentMAE(context.Background(), now)
	require.NoError(t, err)
	assert.Nil(t, mae)
}

func TestRecentMAE_SufficientSample(t *testing.T) {
	store, mock := mockStore(t)
	now := time.Now().UTC()

	var pairs [][3]any
	for i := 0; i < 12; i++ {
		pairs = append(pairs, [3]any{"North Shore", 5.0, 4.0})
	}
	mock.ExpectQuery("SELECT id, shore, validated_at").
		WillReturnRows(validationRows(now, pairs))

	mae, err := store.RecentMAE(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, mae)
	assert.InDelta(t, 1.0, *mae, 1e-9)
}

func TestSizeCategory(t *testing.T) {
	assert.Equal(t, "flat", sizeCategory(0.5))
	assert.Equal(t, "small", sizeCategory(2.0))
	assert.Equal(t, "medium", sizeCategory(4.0))
	assert.Equal(t, "large", sizeCategory(8.0))
	assert.Equal(t, "extra_large", sizeCategory(15.0))
}
