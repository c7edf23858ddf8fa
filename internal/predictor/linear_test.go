package predictor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"StockCast/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(n int, closeAt func(i int) float64) []models.Bar {
	bars := make([]models.Bar, n)
	d := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := closeAt(i)
		bars[i] = models.Bar{
			Instrument: "PETR4",
			Date:       d.AddDate(0, 0, i),
			Open:       c, High: c + 0.5, Low: c - 0.5, Close: c,
			Volume: 1000,
		}
	}
	return bars
}

func TestFitInsufficientHistory(t *testing.T) {
	p := New(60)
	_, err := p.Fit(context.Background(), series(30, func(i int) float64 { return 10 }), models.TrainParams{})
	assert.True(t, errors.Is(err, models.ErrInsufficientHistory))
}

func TestFitProducesFiniteMetrics(t *testing.T) {
	p := New(10)
	bars := series(120, func(i int) float64 {
		return 50 + 5*math.Sin(float64(i)/10) + 0.05*float64(i)
	})

	fit, err := p.Fit(context.Background(), bars, models.TrainParams{Epochs: 100, BatchSize: 16})
	require.NoError(t, err)
	require.NotEmpty(t, fit.Model)
	require.NotEmpty(t, fit.Scaler)

	assert.False(t, math.IsNaN(fit.Metrics.MAE))
	assert.False(t, math.IsNaN(fit.Metrics.RMSE))
	assert.GreaterOrEqual(t, fit.Metrics.RMSE, fit.Metrics.MAE)
	assert.Less(t, fit.Metrics.MAPE, 25.0)
}

func TestFitLoadPredictRoundTrip(t *testing.T) {
	p := New(5)
	const price = 31.4
	bars := series(40, func(i int) float64 { return price })

	fit, err := p.Fit(context.Background(), bars, models.TrainParams{Epochs: 20, BatchSize: 8})
	require.NoError(t, err)

	h, err := p.Load(fit.Model, fit.Scaler)
	require.NoError(t, err)
	assert.Equal(t, 5, h.Lookback())

	// a flat series predicts the flat price
	got, err := h.Predict(bars[len(bars)-5:])
	require.NoError(t, err)
	assert.InDelta(t, price, got, 1e-9)

	// longer windows are trimmed to the trailing lookback
	got2, err := h.Predict(bars)
	require.NoError(t, err)
	assert.Equal(t, got, got2)
}

func TestPredictShortWindow(t *testing.T) {
	p := New(5)
	bars := series(40, func(i int) float64 { return 10 + float64(i) })
	fit, err := p.Fit(context.Background(), bars, models.TrainParams{})
	require.NoError(t, err)

	h, err := p.Load(fit.Model, fit.Scaler)
	require.NoError(t, err)

	_, err = h.Predict(bars[:3])
	assert.True(t, errors.Is(err, models.ErrInsufficientHistory))
}

func TestLoadRejectsBadArtifacts(t *testing.T) {
	p := New(5)

	_, err := p.Load([]byte("not json"), []byte("{}"))
	assert.Error(t, err)

	_, err = p.Load([]byte(`{"lookback":3,"weights":[0.1],"bias":0}`), []byte(`{"min":0,"max":1}`))
	assert.Error(t, err)
}

func TestFitHonorsContextCancellation(t *testing.T) {
	p := New(10)
	bars := series(120, func(i int) float64 { return 20 + float64(i)*0.1 })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Fit(ctx, bars, models.TrainParams{Epochs: 1000})
	assert.ErrorIs(t, err, context.Canceled)
}
