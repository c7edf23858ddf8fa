package di

import (
	"context"
	"fmt"
	"time"

	"StockCast/internal/domain/repository"
	"StockCast/internal/handler/api"
	"StockCast/internal/predictor"
	"StockCast/internal/registry"
	internalrepo "StockCast/internal/repository"
	"StockCast/internal/scheduler"
	seriescache "StockCast/internal/service/cache"
	"StockCast/internal/service/provider"
	"StockCast/internal/usecase"
	"StockCast/pkg/config"
	xhttp "StockCast/pkg/http"
	"StockCast/pkg/logger"
	"StockCast/pkg/metrics"
	"StockCast/pkg/queue"
	"StockCast/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideBarStore opens the SQLite bar store and initializes its schema.
func ProvideBarStore(cfg *config.Config) (repository.BarStore, error) {
	store, err := internalrepo.NewSQLiteBarStore(cfg.Data.DBPath)
	if err != nil {
		return nil, fmt.Errorf("bar store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("bar store schema: %w", err)
	}
	return store, nil
}

// ProvideSeriesCache creates the series cache over the bar store.
func ProvideSeriesCache(store repository.BarStore, l *logger.Logger, m repository.Metrics) *seriescache.SeriesCache {
	return seriescache.NewSeriesCache(store, l, m)
}

// ProvideQuoteProvider creates the external chart-API client.
func ProvideQuoteProvider(cfg *config.Config) repository.QuoteProvider {
	return provider.NewYahooClient(cfg.Provider.BaseURL, cfg.Provider.Timeout)
}

// ProvideFetcher creates the retrying, validating source fetcher.
func ProvideFetcher(qp repository.QuoteProvider, cfg *config.Config, l *logger.Logger, m repository.Metrics) usecase.BarFetcher {
	return provider.NewFetcher(qp, provider.RetryPolicy{
		MaxAttempts:        cfg.Provider.Retry.MaxAttempts,
		BaseDelay:          cfg.Provider.Retry.BaseDelay,
		MaxDelay:           cfg.Provider.Retry.MaxDelay,
		UnavailableRetries: cfg.Provider.Retry.UnavailableRetries,
	}, cfg.Provider.MaxRPS, l, m)
}

// ProvideRegistry opens the model registry under the configured directory.
func ProvideRegistry(cfg *config.Config, l *logger.Logger) (*registry.Registry, error) {
	return registry.Open(cfg.Training.ModelsDir, l)
}

// ProvidePredictor creates the model implementation.
func ProvidePredictor(cfg *config.Config) repository.Predictor {
	return predictor.New(cfg.Data.LookbackWindow)
}

// ProvideQueue creates the in-process worker pool for training jobs.
func ProvideQueue(cfg *config.Config, l *logger.Logger) *queue.MemoryQueue {
	return queue.NewMemoryQueue(l, &queue.QueueConfig{
		Workers:   cfg.Training.Workers,
		QueueSize: 2 * len(cfg.Instruments),
	})
}

// ProvidePredictionService creates the serving use case.
func ProvidePredictionService(
	cfg *config.Config,
	series *seriescache.SeriesCache,
	fetcher usecase.BarFetcher,
	reg *registry.Registry,
	pred repository.Predictor,
	l *logger.Logger,
	m repository.Metrics,
) *usecase.PredictionService {
	return usecase.NewPredictionService(cfg, series, fetcher, reg, pred, l, m)
}

// ProvideRetrainCoordinator creates the retraining use case and registers
// it on the worker queue.
func ProvideRetrainCoordinator(
	cfg *config.Config,
	series *seriescache.SeriesCache,
	fetcher usecase.BarFetcher,
	reg *registry.Registry,
	pred repository.Predictor,
	q *queue.MemoryQueue,
	l *logger.Logger,
	m repository.Metrics,
) *usecase.RetrainCoordinator {
	coord := usecase.NewRetrainCoordinator(cfg, series, fetcher, reg, pred, q, l, m)
	q.RegisterJob(coord)
	return coord
}

// ProvideScheduler creates the background refresh/retrain scheduler.
func ProvideScheduler(
	cfg *config.Config,
	series *seriescache.SeriesCache,
	fetcher usecase.BarFetcher,
	coord *usecase.RetrainCoordinator,
	store repository.BarStore,
	l *logger.Logger,
) *scheduler.Scheduler {
	return scheduler.New(cfg, series, fetcher, coord, store, l)
}

// ProvideHandler creates the HTTP API handler.
func ProvideHandler(
	l *logger.Logger,
	svc *usecase.PredictionService,
	coord *usecase.RetrainCoordinator,
	reg *registry.Registry,
) xhttp.Handler {
	return api.NewPredictionsHandler(l, svc, coord, reg)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	store repository.BarStore,
	q *queue.MemoryQueue,
	sched *scheduler.Scheduler,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, l, store, q, sched, handler)
}
