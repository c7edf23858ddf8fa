package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"StockCast/internal/domain/models"
	drepo "StockCast/internal/domain/repository"
	"StockCast/internal/registry"
	seriescache "StockCast/internal/service/cache"
	"StockCast/pkg/config"
	"StockCast/pkg/logger"
	"StockCast/pkg/queue"
)

const retrainMsgType = "retrain"

type retrainPayload struct {
	Instrument string `json:"instrument"`
	JobID      string `json:"job_id"`
	Epochs     int    `json:"epochs,omitempty"`
	BatchSize  int    `json:"batch_size,omitempty"`
}

// RetrainCoordinator runs the per-instrument retraining pipeline:
// fetch fresh history, fit a new model version, publish it. At most one
// retrain runs per instrument at a time; triggers while one is in flight
// are rejected, not queued. Work executes on the shared worker pool.
type RetrainCoordinator struct {
	cfg       *config.Config
	series    *seriescache.SeriesCache
	fetcher   BarFetcher
	registry  *registry.Registry
	predictor drepo.Predictor
	queue     queue.QueueService
	logger    *logger.Logger
	metrics   drepo.Metrics

	mu     sync.Mutex
	states map[string]models.RetrainStatus

	now func() time.Time // test seam
}

// NewRetrainCoordinator creates the coordinator. RegisterJob on the queue
// and Start it before triggering.
func NewRetrainCoordinator(
	cfg *config.Config,
	series *seriescache.SeriesCache,
	fetcher BarFetcher,
	reg *registry.Registry,
	pred drepo.Predictor,
	q queue.QueueService,
	l *logger.Logger,
	m drepo.Metrics,
) *RetrainCoordinator {
	return &RetrainCoordinator{
		cfg:       cfg,
		series:    series,
		fetcher:   fetcher,
		registry:  reg,
		predictor: pred,
		queue:     q,
		logger:    l,
		metrics:   m,
		states:    make(map[string]models.RetrainStatus),
		now:       time.Now,
	}
}

// Name implements queue.Job.
func (c *RetrainCoordinator) Name() string { return "model-retrain" }

// Type implements queue.Job.
func (c *RetrainCoordinator) Type() string { return retrainMsgType }

// Trigger requests a retrain for one instrument. Zero-valued params fall
// back to the configured training defaults. The returned receipt says
// whether the job was accepted; a retrain already in flight rejects the
// trigger without queueing.
func (c *RetrainCoordinator) Trigger(ctx context.Context, instrument string, params models.TrainParams) (*models.RetrainReceipt, error) {
	instrument = strings.ToUpper(instrument)
	if !c.cfg.Supported(instrument) {
		return nil, fmt.Errorf("%w: %s", models.ErrInstrumentUnsupported, instrument)
	}

	if !c.casState(instrument, models.RetrainIdle, models.RetrainFetching) {
		return &models.RetrainReceipt{
			Instrument: instrument,
			Accepted:   false,
			Reason:     models.ErrAlreadyRunning.Error(),
		}, nil
	}

	jobID := ulid.Make().String()
	payload := retrainPayload{
		Instrument: instrument,
		JobID:      jobID,
		Epochs:     params.Epochs,
		BatchSize:  params.BatchSize,
	}
	if err := c.queue.PublishMessage(ctx, retrainMsgType, payload); err != nil {
		c.setState(instrument, models.RetrainIdle)
		return nil, fmt.Errorf("queue retrain %s: %w", instrument, err)
	}

	c.logger.Info("retrain queued",
		logger.String("instrument", instrument),
		logger.String("job_id", jobID))
	return &models.RetrainReceipt{Instrument: instrument, JobID: jobID, Accepted: true}, nil
}

// TriggerAll requests a retrain for every configured instrument. One
// instrument failing to queue does not block the others.
func (c *RetrainCoordinator) TriggerAll(ctx context.Context, params models.TrainParams) []models.RetrainReceipt {
	receipts := make([]models.RetrainReceipt, 0, len(c.cfg.Instruments))
	for _, instrument := range c.cfg.Instruments {
		r, err := c.Trigger(ctx, instrument, params)
		if err != nil {
			receipts = append(receipts, models.RetrainReceipt{
				Instrument: strings.ToUpper(instrument),
				Accepted:   false,
				Reason:     err.Error(),
			})
			continue
		}
		receipts = append(receipts, *r)
	}
	return receipts
}

// Status returns the coordinator state for an instrument.
func (c *RetrainCoordinator) Status(instrument string) models.RetrainStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[strings.ToUpper(instrument)]; ok {
		return st
	}
	return models.RetrainIdle
}

// Handle implements queue.Job: it runs one queued retrain to completion.
func (c *RetrainCoordinator) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[retrainPayload](payload)
	if err != nil {
		return fmt.Errorf("retrain payload: %w", err)
	}

	defer c.setState(p.Instrument, models.RetrainIdle)

	// a failed run is terminal for this job; retrying happens through a
	// fresh trigger, never through the queue's retry loop
	if err := c.run(ctx, p.Instrument, models.TrainParams{Epochs: p.Epochs, BatchSize: p.BatchSize}); err != nil {
		c.metrics.RecordRetrain(p.Instrument, "failed")
		c.logger.Error("retrain failed",
			logger.String("instrument", p.Instrument),
			logger.String("job_id", p.JobID),
			logger.Error(err))
		return nil
	}

	c.metrics.RecordRetrain(p.Instrument, "ok")
	return nil
}

func (c *RetrainCoordinator) run(ctx context.Context, instrument string, params models.TrainParams) error {
	if params.Epochs <= 0 {
		params.Epochs = c.cfg.Training.Epochs
	}
	if params.BatchSize <= 0 {
		params.BatchSize = c.cfg.Training.BatchSize
	}

	asOf := c.now().UTC()

	from := asOf.AddDate(0, 0, -c.cfg.Data.HistoryDays)
	fetched, err := c.fetcher.Fetch(ctx, instrument, from, asOf.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	if err := c.series.Put(ctx, instrument, fetched); err != nil {
		return err
	}

	bars, err := c.series.Get(ctx, instrument, asOf, c.cfg.Data.LookbackWindow+2)
	if err != nil {
		return fmt.Errorf("training series: %w", err)
	}

	c.setState(instrument, models.RetrainTraining)
	version := c.registry.Begin(instrument)
	c.logger.Info("training started",
		logger.String("instrument", instrument),
		logger.String("version", version.Token()),
		logger.Int("bars", len(bars)))

	fit, err := c.predictor.Fit(ctx, bars, params)
	if err != nil {
		c.registry.MarkFailed(version, err.Error())
		return fmt.Errorf("fit %s: %w", version.Token(), err)
	}

	c.setState(instrument, models.RetrainPublishing)
	if err := c.registry.Publish(version, fit); err != nil {
		c.registry.MarkFailed(version, err.Error())
		return fmt.Errorf("publish %s: %w", version.Token(), err)
	}
	return nil
}

func (c *RetrainCoordinator) casState(instrument string, from, to models.RetrainStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.states[instrument]
	if !ok {
		current = models.RetrainIdle
	}
	if current != from {
		return false
	}
	c.states[instrument] = to
	return true
}

func (c *RetrainCoordinator) setState(instrument string, st models.RetrainStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[instrument] = st
}
