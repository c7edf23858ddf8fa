package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"StockCast/internal/domain/models"
	drepo "StockCast/internal/domain/repository"
	"StockCast/internal/registry"
	seriescache "StockCast/internal/service/cache"
	"StockCast/pkg/cache"
	"StockCast/pkg/config"
	"StockCast/pkg/logger"
	"StockCast/pkg/util"
)

// BarFetcher is the fallback source used when the series cache misses.
type BarFetcher interface {
	Fetch(ctx context.Context, instrument string, from, to time.Time) ([]models.Bar, error)
}

// PredictionService serves next-close predictions. Per request it resolves
// a model version, obtains a fresh price series (refreshing through the
// fetcher on a cache miss), and runs the loaded model over the trailing
// lookback window. Loaded handles are kept in a bounded LRU keyed by
// instrument and version token.
type PredictionService struct {
	cfg       *config.Config
	series    *seriescache.SeriesCache
	fetcher   BarFetcher
	registry  *registry.Registry
	predictor drepo.Predictor
	handles   *cache.LRU[drepo.PredictorHandle]
	logger    *logger.Logger
	metrics   drepo.Metrics

	now func() time.Time // test seam
}

// NewPredictionService wires the serving path together.
func NewPredictionService(
	cfg *config.Config,
	series *seriescache.SeriesCache,
	fetcher BarFetcher,
	reg *registry.Registry,
	pred drepo.Predictor,
	l *logger.Logger,
	m drepo.Metrics,
) *PredictionService {
	size := cfg.Training.ModelCacheSize
	if size <= 0 {
		size = 16
	}
	return &PredictionService{
		cfg:       cfg,
		series:    series,
		fetcher:   fetcher,
		registry:  reg,
		predictor: pred,
		handles:   cache.NewLRU[drepo.PredictorHandle](size),
		logger:    l,
		metrics:   m,
		now:       time.Now,
	}
}

// PredictLatest predicts the next close for the instrument using the model
// named by selector (empty or "latest" for the newest ready version).
func (s *PredictionService) PredictLatest(ctx context.Context, instrument, selector string) (*models.PredictionResult, error) {
	started := s.now()
	defer func() { s.metrics.RecordLatency("predict", s.now().Sub(started).Seconds()) }()

	instrument = strings.ToUpper(instrument)
	if !s.cfg.Supported(instrument) {
		return nil, fmt.Errorf("%w: %s", models.ErrInstrumentUnsupported, instrument)
	}

	version, err := s.registry.Resolve(instrument, selector)
	if err != nil {
		return nil, err
	}
	handle, err := s.handle(version)
	if err != nil {
		return nil, err
	}

	bars, err := s.freshSeries(ctx, instrument, handle.Lookback())
	if err != nil {
		return nil, err
	}

	window := bars[len(bars)-handle.Lookback():]
	price, err := handle.Predict(window)
	if err != nil {
		return nil, fmt.Errorf("predict %s %s: %w", instrument, version.Token(), err)
	}

	last := bars[len(bars)-1]
	s.metrics.RecordPrediction(instrument, version.Token())
	s.metrics.RecordLastPredicted(instrument, price)

	return &models.PredictionResult{
		Instrument:        instrument,
		Version:           version.Token(),
		PredictedPrice:    price,
		PredictionDate:    util.NextTradingDay(last.Date).Format(models.DateLayout),
		LastObservedPrice: last.Close,
		Metrics:           version.Metrics,
	}, nil
}

// PredictHistory replays the model over the last days trading days. Each
// entry is predicted from the bars strictly before its date, so the model
// never sees the close it is asked to predict, and carries that day's
// actual close for comparison. Entries are ordered most recent first.
func (s *PredictionService) PredictHistory(ctx context.Context, instrument, selector string, days int) ([]models.PredictionResult, error) {
	started := s.now()
	defer func() { s.metrics.RecordLatency("predict_history", s.now().Sub(started).Seconds()) }()

	instrument = strings.ToUpper(instrument)
	if !s.cfg.Supported(instrument) {
		return nil, fmt.Errorf("%w: %s", models.ErrInstrumentUnsupported, instrument)
	}
	if days <= 0 {
		days = 7
	}

	version, err := s.registry.Resolve(instrument, selector)
	if err != nil {
		return nil, err
	}
	handle, err := s.handle(version)
	if err != nil {
		return nil, err
	}

	lookback := handle.Lookback()
	bars, err := s.freshSeries(ctx, instrument, lookback+days)
	if err != nil {
		return nil, err
	}

	results := make([]models.PredictionResult, 0, days)
	for i := len(bars) - 1; i >= lookback && len(results) < days; i-- {
		window := bars[i-lookback : i]
		price, err := handle.Predict(window)
		if err != nil {
			return nil, fmt.Errorf("predict %s %s: %w", instrument, version.Token(), err)
		}
		actual := bars[i].Close
		results = append(results, models.PredictionResult{
			Instrument:        instrument,
			Version:           version.Token(),
			PredictedPrice:    price,
			PredictionDate:    bars[i].Date.Format(models.DateLayout),
			LastObservedPrice: bars[i-1].Close,
			ActualPrice:       &actual,
			Metrics:           version.Metrics,
		})
	}
	return results, nil
}

// freshSeries returns at least minBars fresh bars, refreshing from the
// external source on a cache miss. A second miss after a refresh surfaces
// as ErrInsufficientHistory.
func (s *PredictionService) freshSeries(ctx context.Context, instrument string, minBars int) ([]models.Bar, error) {
	asOf := s.now().UTC()

	bars, err := s.series.Get(ctx, instrument, asOf, minBars)
	if err == nil {
		return bars, nil
	}
	var miss *models.CacheMissError
	if !errors.As(err, &miss) {
		return nil, err
	}

	s.logger.Info("refreshing series from source",
		logger.String("instrument", instrument),
		logger.String("reason", string(miss.Reason)))

	from := asOf.AddDate(0, 0, -s.cfg.Data.HistoryDays)
	fetched, ferr := s.fetcher.Fetch(ctx, instrument, from, asOf.AddDate(0, 0, 1))
	if ferr != nil {
		return nil, fmt.Errorf("refresh %s: %w", instrument, ferr)
	}
	if err := s.series.Put(ctx, instrument, fetched); err != nil {
		return nil, err
	}

	bars, err = s.series.Get(ctx, instrument, asOf, minBars)
	if err == nil {
		return bars, nil
	}
	if errors.As(err, &miss) {
		return nil, fmt.Errorf("%w: %s has %d bars after refresh, need %d",
			models.ErrInsufficientHistory, instrument, miss.Have, miss.Want)
	}
	return nil, err
}

// handle returns the loaded model for a ready version, loading artifacts
// on first use.
func (s *PredictionService) handle(v *models.ModelVersion) (drepo.PredictorHandle, error) {
	key := v.Instrument + "@" + v.Token()
	if h, ok := s.handles.Get(key); ok {
		return h, nil
	}

	model, scaler, err := s.registry.LoadArtifacts(v)
	if err != nil {
		return nil, err
	}
	h, err := s.predictor.Load(model, scaler)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", v.Instrument, v.Token(), err)
	}
	s.handles.Put(key, h)
	return h, nil
}
