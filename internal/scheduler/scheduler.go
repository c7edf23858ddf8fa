package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"StockCast/internal/domain/models"
	drepo "StockCast/internal/domain/repository"
	seriescache "StockCast/internal/service/cache"
	"StockCast/internal/usecase"
	"StockCast/pkg/config"
	"StockCast/pkg/logger"
)

// Scheduler owns the background jobs: periodic series refresh from the
// external source, optional periodic retraining, and retention pruning.
// Refreshes closer together than the configured minimum gap are skipped,
// so overlapping cron fires and manual refreshes cannot stampede the
// provider.
type Scheduler struct {
	cfg     *config.Config
	series  *seriescache.SeriesCache
	fetcher usecase.BarFetcher
	coord   *usecase.RetrainCoordinator
	store   drepo.BarStore
	logger  *logger.Logger
	cron    *cron.Cron

	mu          sync.Mutex
	lastRefresh time.Time

	now func() time.Time // test seam
}

func New(
	cfg *config.Config,
	series *seriescache.SeriesCache,
	fetcher usecase.BarFetcher,
	coord *usecase.RetrainCoordinator,
	store drepo.BarStore,
	l *logger.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		series:  series,
		fetcher: fetcher,
		coord:   coord,
		store:   store,
		logger:  l,
		cron:    cron.New(),
		now:     time.Now,
	}
}

// Start registers the configured cron jobs and launches the scheduler.
// Empty cron expressions disable the corresponding job.
func (s *Scheduler) Start() error {
	if spec := s.cfg.Scheduler.RefreshCron; spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.RefreshAll(context.Background()) }); err != nil {
			return err
		}
		s.logger.Info("refresh job scheduled", logger.String("cron", spec))
	}
	if spec := s.cfg.Scheduler.RetrainCron; spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.coord.TriggerAll(context.Background(), models.TrainParams{}) }); err != nil {
			return err
		}
		s.logger.Info("retrain job scheduled", logger.String("cron", spec))
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RefreshAll refreshes the cached series for every configured instrument,
// then applies retention pruning. One instrument failing does not stop
// the others.
func (s *Scheduler) RefreshAll(ctx context.Context) {
	asOf := s.now().UTC()

	s.mu.Lock()
	gap := s.cfg.Scheduler.RefreshMinGap
	if gap > 0 && !s.lastRefresh.IsZero() && asOf.Sub(s.lastRefresh) < gap {
		s.mu.Unlock()
		s.logger.Debug("refresh skipped, too soon after previous run",
			logger.Time("last_refresh", s.lastRefresh))
		return
	}
	s.lastRefresh = asOf
	s.mu.Unlock()

	from := asOf.AddDate(0, 0, -s.cfg.Data.HistoryDays)
	for _, instrument := range s.cfg.Instruments {
		bars, err := s.fetcher.Fetch(ctx, instrument, from, asOf.AddDate(0, 0, 1))
		if err != nil {
			s.logger.Warn("scheduled refresh failed",
				logger.String("instrument", instrument),
				logger.Error(err))
			continue
		}
		if err := s.series.Put(ctx, instrument, bars); err != nil {
			s.logger.Warn("scheduled refresh store failed",
				logger.String("instrument", instrument),
				logger.Error(err))
			continue
		}
		s.logger.Info("series refreshed",
			logger.String("instrument", instrument),
			logger.Int("bars", len(bars)))
	}

	s.prune(ctx, asOf)
}

func (s *Scheduler) prune(ctx context.Context, asOf time.Time) {
	days := s.cfg.Data.RetentionDays
	if days <= 0 {
		return
	}
	cutoff := asOf.AddDate(0, 0, -days)
	for _, instrument := range s.cfg.Instruments {
		n, err := s.store.Prune(ctx, instrument, cutoff)
		if err != nil {
			s.logger.Warn("retention prune failed",
				logger.String("instrument", instrument),
				logger.Error(err))
			continue
		}
		if n > 0 {
			s.logger.Info("old bars pruned",
				logger.String("instrument", instrument),
				logger.Int64("pruned", n))
		}
	}
}
