package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/repository"
	"StockCast/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorderStub struct {
	mu        sync.Mutex
	misses    map[string]int
	revisions int
}

func newRecorderStub() *recorderStub {
	return &recorderStub{misses: make(map[string]int)}
}

func (r *recorderStub) RecordPrediction(string, string) {}
func (r *recorderStub) RecordCacheMiss(instrument, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses[instrument+"/"+reason]++
}
func (r *recorderStub) RecordDataRevision(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revisions++
}
func (r *recorderStub) RecordFetchAttempt(string, string)   {}
func (r *recorderStub) RecordRetrain(string, string)        {}
func (r *recorderStub) RecordLastPredicted(string, float64) {}
func (r *recorderStub) RecordLatency(string, float64)       {}

func newCache(t *testing.T) (*SeriesCache, *recorderStub) {
	t.Helper()
	store, err := repository.NewSQLiteBarStore(filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { store.Close() })

	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)

	rec := newRecorderStub()
	return NewSeriesCache(store, l, rec), rec
}

func bar(instrument string, date time.Time, close float64) models.Bar {
	return models.Bar{
		Instrument: instrument,
		Date:       date,
		Open:       close,
		High:       close + 1,
		Low:        close - 1,
		Close:      close,
		Volume:     100,
	}
}

// weekdaysEnding builds n consecutive trading-day bars ending on end.
func weekdaysEnding(instrument string, end time.Time, n int) []models.Bar {
	bars := make([]models.Bar, n)
	d := end
	for i := n - 1; i >= 0; i-- {
		bars[i] = bar(instrument, d, 10+float64(i)*0.1)
		d = prevWeekday(d)
	}
	return bars
}

func prevWeekday(t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

var tue = time.Date(2024, time.October, 15, 0, 0, 0, 0, time.UTC) // Tuesday

func TestGetEmptyMiss(t *testing.T) {
	c, rec := newCache(t)

	_, err := c.Get(context.Background(), "PETR4", tue, 60)
	var miss *models.CacheMissError
	require.True(t, errors.As(err, &miss))
	assert.Equal(t, models.MissEmpty, miss.Reason)
	assert.Equal(t, 1, c.MissCount("PETR4"))
	assert.Equal(t, 1, rec.misses["PETR4/empty"])
}

func TestGetInsufficientMiss(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "PETR4", weekdaysEnding("PETR4", tue, 10)))

	_, err := c.Get(ctx, "PETR4", tue, 60)
	var miss *models.CacheMissError
	require.True(t, errors.As(err, &miss))
	assert.Equal(t, models.MissInsufficient, miss.Reason)
	assert.Equal(t, 10, miss.Have)
	assert.Equal(t, 60, miss.Want)
}

func TestGetStaleMiss(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	// series ends two trading days before asOf
	end := prevWeekday(prevWeekday(tue))
	require.NoError(t, c.Put(ctx, "PETR4", weekdaysEnding("PETR4", end, 60)))

	_, err := c.Get(ctx, "PETR4", tue, 60)
	var miss *models.CacheMissError
	require.True(t, errors.As(err, &miss))
	assert.Equal(t, models.MissStale, miss.Reason)
	assert.Equal(t, end, miss.LastDate)
}

func TestGetFreshWithOneDayLag(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	// last bar is the prior trading day: one day stale is still usable
	require.NoError(t, c.Put(ctx, "PETR4", weekdaysEnding("PETR4", prevWeekday(tue), 60)))

	got, err := c.Get(ctx, "PETR4", tue, 60)
	require.NoError(t, err)
	assert.Len(t, got, 60)
	assert.Equal(t, 0, c.MissCount("PETR4"))
}

func TestGetFreshOverWeekend(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	fri := time.Date(2024, time.October, 11, 0, 0, 0, 0, time.UTC)
	sun := time.Date(2024, time.October, 13, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Put(ctx, "PETR4", weekdaysEnding("PETR4", fri, 60)))

	// asOf on a weekend: Friday's close is current
	got, err := c.Get(ctx, "PETR4", sun, 60)
	require.NoError(t, err)
	assert.Equal(t, fri, got[len(got)-1].Date)
}

func TestPutRoundTrip(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	fetched := time.Date(2024, time.October, 14, 21, 30, 0, 0, time.UTC)
	bars := weekdaysEnding("VALE3", tue, 5)
	for i := range bars {
		bars[i].FetchedAt = fetched
	}
	require.NoError(t, c.Put(ctx, "VALE3", bars))

	got, err := c.Get(ctx, "VALE3", tue, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := range bars {
		assert.Equal(t, bars[i].Date, got[i].Date)
		assert.Equal(t, bars[i].Open, got[i].Open)
		assert.Equal(t, bars[i].High, got[i].High)
		assert.Equal(t, bars[i].Low, got[i].Low)
		assert.Equal(t, bars[i].Close, got[i].Close)
		assert.Equal(t, bars[i].Volume, got[i].Volume)
		assert.True(t, got[i].FetchedAt.Equal(fetched))
	}
}

func TestPutLogsRevisions(t *testing.T) {
	c, rec := newCache(t)
	ctx := context.Background()

	bars := weekdaysEnding("ITSA4", tue, 3)
	require.NoError(t, c.Put(ctx, "ITSA4", bars))

	bars[0].Close += 0.5
	require.NoError(t, c.Put(ctx, "ITSA4", bars))

	assert.Equal(t, 1, rec.revisions)
}
