package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"StockCast/internal/domain/models"
	drepo "StockCast/internal/domain/repository"
	"StockCast/pkg/logger"
	"StockCast/pkg/util"
)

// SeriesCache is the single source of truth for "do we already have this
// data". It fronts the persistent bar store, classifies misses, and keeps
// per-instrument miss counters for the refresh/backoff logic.
//
// Freshness is computed against the trading calendar, not a wall-clock
// TTL: a series is usable when its last bar is at most one trading day
// older than the most recent completed trading day at asOf.
type SeriesCache struct {
	store   drepo.BarStore
	logger  *logger.Logger
	metrics drepo.Metrics

	mu     sync.Mutex
	locks  map[string]*sync.Mutex // per-instrument write serialization
	misses map[string]int
}

// NewSeriesCache creates a series cache over the given bar store.
func NewSeriesCache(store drepo.BarStore, l *logger.Logger, m drepo.Metrics) *SeriesCache {
	return &SeriesCache{
		store:   store,
		logger:  l,
		metrics: m,
		locks:   make(map[string]*sync.Mutex),
		misses:  make(map[string]int),
	}
}

// Get returns the longest cached suffix for the instrument ending at or
// before asOf when it holds at least minBars entries and is fresh.
// Otherwise it records and returns a typed *models.CacheMissError.
func (c *SeriesCache) Get(ctx context.Context, instrument string, asOf time.Time, minBars int) ([]models.Bar, error) {
	bars, err := c.store.Suffix(ctx, instrument, asOf, 0)
	if err != nil {
		return nil, fmt.Errorf("series cache read %s: %w", instrument, err)
	}

	if len(bars) == 0 {
		return nil, c.miss(&models.CacheMissError{
			Instrument: instrument,
			Reason:     models.MissEmpty,
			Want:       minBars,
		})
	}

	last := bars[len(bars)-1].Date
	lastCompleted := util.LastCompletedTradingDay(asOf)
	if util.TradingDaysBetween(last, lastCompleted) > 1 {
		return nil, c.miss(&models.CacheMissError{
			Instrument: instrument,
			Reason:     models.MissStale,
			LastDate:   last,
			Have:       len(bars),
			Want:       minBars,
		})
	}

	if len(bars) < minBars {
		return nil, c.miss(&models.CacheMissError{
			Instrument: instrument,
			Reason:     models.MissInsufficient,
			LastDate:   last,
			Have:       len(bars),
			Want:       minBars,
		})
	}

	return bars, nil
}

// Put upserts bars for one instrument. Writes for the same instrument are
// serialized; different instruments may write concurrently. Overwrites of
// historical bars with differing values are logged as data-revision
// anomalies, never silently accepted.
func (c *SeriesCache) Put(ctx context.Context, instrument string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	lock := c.instrumentLock(instrument)
	lock.Lock()
	defer lock.Unlock()

	revised, err := c.store.Upsert(ctx, instrument, bars)
	if err != nil {
		return fmt.Errorf("series cache write %s: %w", instrument, err)
	}

	for _, date := range revised {
		c.logger.Warn("historical bar revised by newer fetch",
			logger.String("instrument", instrument),
			logger.String("date", date.Format(models.DateLayout)))
		c.metrics.RecordDataRevision(instrument)
	}

	return nil
}

// MissCount returns the number of misses recorded for the instrument.
func (c *SeriesCache) MissCount(instrument string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses[instrument]
}

func (c *SeriesCache) miss(m *models.CacheMissError) error {
	c.mu.Lock()
	c.misses[m.Instrument]++
	c.mu.Unlock()

	c.metrics.RecordCacheMiss(m.Instrument, string(m.Reason))
	c.logger.Debug("series cache miss",
		logger.String("instrument", m.Instrument),
		logger.String("reason", string(m.Reason)),
		logger.Int("have", m.Have),
		logger.Int("want", m.Want))
	return m
}

func (c *SeriesCache) instrumentLock(instrument string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[instrument]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[instrument] = lock
	}
	return lock
}
