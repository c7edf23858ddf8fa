package repository

import (
	"context"
	"time"

	"StockCast/internal/domain/models"
)

// BarStore is the persistent daily-bar store backing the series cache.
type BarStore interface {
	Init(ctx context.Context) error
	// Upsert inserts bars keyed by (instrument, date). Bars whose date is
	// already present are overwritten only when values differ; the dates of
	// such revisions are returned so callers can log them as anomalies.
	Upsert(ctx context.Context, instrument string, bars []models.Bar) (revised []time.Time, err error)
	// Suffix returns up to limit bars for the instrument dated at or before
	// asOf, ordered by date ascending. limit <= 0 means no limit.
	Suffix(ctx context.Context, instrument string, asOf time.Time, limit int) ([]models.Bar, error)
	// Prune deletes bars strictly older than before and returns the count.
	Prune(ctx context.Context, instrument string, before time.Time) (int64, error)
	Close() error
}

// QuoteProvider fetches raw daily bars from the external data source for
// the half-open date range [from, to).
type QuoteProvider interface {
	DailyBars(ctx context.Context, instrument string, from, to time.Time) ([]models.Bar, error)
}

// PredictorHandle is one loaded, immutable trained model ready to serve.
type PredictorHandle interface {
	// Predict consumes the trailing lookback window of bars and returns the
	// predicted next close in price space.
	Predict(window []models.Bar) (float64, error)
	Lookback() int
}

// Predictor is the opaque model capability: fit a series into artifacts,
// load artifacts into a servable handle.
type Predictor interface {
	Fit(ctx context.Context, bars []models.Bar, p models.TrainParams) (*models.FitResult, error)
	Load(model, scaler []byte) (PredictorHandle, error)
}

// Metrics records operational counters exposed via Prometheus.
type Metrics interface {
	RecordPrediction(instrument, version string)
	RecordCacheMiss(instrument, reason string)
	RecordDataRevision(instrument string)
	RecordFetchAttempt(instrument, outcome string)
	RecordRetrain(instrument, status string)
	RecordLastPredicted(instrument string, price float64)
	RecordLatency(op string, seconds float64)
}
