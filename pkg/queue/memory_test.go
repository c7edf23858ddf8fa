package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"StockCast/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return l
}

type countingJob struct {
	name     string
	calls    atomic.Int32
	failures int32
	done     chan struct{}
}

func (j *countingJob) Name() string { return j.name }
func (j *countingJob) Type() string { return j.name }

func (j *countingJob) Handle(_ context.Context, _ interface{}) error {
	n := j.calls.Add(1)
	if n <= j.failures {
		return errors.New("transient")
	}
	if j.done != nil {
		close(j.done)
	}
	return nil
}

func TestPublishDispatchesToJob(t *testing.T) {
	q := NewMemoryQueue(testLogger(t), &QueueConfig{Workers: 1, QueueSize: 4})
	job := &countingJob{name: "work", done: make(chan struct{})}
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer q.Stop()

	require.NoError(t, q.PublishMessage(context.Background(), "work", nil))

	select {
	case <-job.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job not executed")
	}
	assert.Equal(t, int32(1), job.calls.Load())
}

func TestPublishUnknownType(t *testing.T) {
	q := NewMemoryQueue(testLogger(t), nil)
	require.NoError(t, q.Start())
	defer q.Stop()

	err := q.PublishMessage(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job registered")
}

func TestRetriesUntilSuccess(t *testing.T) {
	q := NewMemoryQueue(testLogger(t), &QueueConfig{
		Workers:    1,
		RetryLimit: 3,
		RetryDelay: 5 * time.Millisecond,
	})
	job := &countingJob{name: "flaky", failures: 2, done: make(chan struct{})}
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer q.Stop()

	require.NoError(t, q.PublishMessage(context.Background(), "flaky", nil))

	select {
	case <-job.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not complete")
	}
	assert.Equal(t, int32(3), job.calls.Load())
}

func TestPublishWhenStopped(t *testing.T) {
	q := NewMemoryQueue(testLogger(t), nil)
	err := q.PublishMessage(context.Background(), "work", nil)
	require.Error(t, err)
}

func TestParsePayloadRoundTrip(t *testing.T) {
	type task struct {
		Instrument string `json:"instrument"`
		Epochs     int    `json:"epochs"`
	}

	direct, err := ParsePayload[task](task{Instrument: "PETR4", Epochs: 10})
	require.NoError(t, err)
	assert.Equal(t, "PETR4", direct.Instrument)

	fromMap, err := ParsePayload[task](map[string]interface{}{"instrument": "VALE3", "epochs": 5})
	require.NoError(t, err)
	assert.Equal(t, "VALE3", fromMap.Instrument)
	assert.Equal(t, 5, fromMap.Epochs)

	_, err = ParsePayload[task](42)
	require.Error(t, err)
}
