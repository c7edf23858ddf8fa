package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"StockCast/internal/domain/models"
	"StockCast/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	r, err := Open(dir, l)
	require.NoError(t, err)
	return r, dir
}

func sampleFit() *models.FitResult {
	return &models.FitResult{
		Model:   []byte(`{"weights":[0.5,0.5]}`),
		Scaler:  []byte(`{"min":10,"max":20}`),
		Metrics: models.EvalMetrics{MAE: 0.4, RMSE: 0.6, MAPE: 1.2},
	}
}

func TestBeginAllocatesMonotonicVersions(t *testing.T) {
	r, _ := newRegistry(t)

	v1 := r.Begin("petr4")
	v2 := r.Begin("PETR4")
	other := r.Begin("VALE3")

	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, "PETR4", v1.Instrument)
	assert.Equal(t, 1, other.Version)
	assert.Equal(t, models.StatusTraining, v1.Status)
}

func TestPublishAndResolve(t *testing.T) {
	r, dir := newRegistry(t)

	v := r.Begin("PETR4")
	require.NoError(t, r.Publish(v, sampleFit()))

	assert.Equal(t, models.StatusReady, v.Status)
	assert.Equal(t, 0.4, v.Metrics.MAE)

	// artifacts visible under the final directory, no staging leftovers
	final := filepath.Join(dir, "PETR4", "v1")
	for _, name := range []string{"model.json", "scaler.json", "metrics.json", "manifest.json"} {
		_, err := os.Stat(filepath.Join(final, name))
		assert.NoError(t, err, name)
	}
	_, err := os.Stat(filepath.Join(dir, "PETR4", ".staging-v1"))
	assert.True(t, os.IsNotExist(err))

	got, err := r.Resolve("PETR4", models.SelectorLatest)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	explicit, err := r.Resolve("petr4", "v1")
	require.NoError(t, err)
	assert.Equal(t, got, explicit)

	bare, err := r.Resolve("PETR4", "1")
	require.NoError(t, err)
	assert.Equal(t, got, bare)

	model, scaler, err := r.LoadArtifacts(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"weights":[0.5,0.5]}`, string(model))
	assert.JSONEq(t, `{"min":10,"max":20}`, string(scaler))
}

func TestResolveErrors(t *testing.T) {
	r, _ := newRegistry(t)

	_, err := r.Resolve("PETR4", models.SelectorLatest)
	assert.True(t, errors.Is(err, models.ErrNoReadyVersion))

	v := r.Begin("PETR4")
	require.NoError(t, r.Publish(v, sampleFit()))

	_, err = r.Resolve("PETR4", "v9")
	assert.True(t, errors.Is(err, models.ErrVersionNotFound))

	_, err = r.Resolve("PETR4", "bogus")
	assert.True(t, errors.Is(err, models.ErrVersionNotFound))
}

func TestLatestSkipsFailedVersions(t *testing.T) {
	r, _ := newRegistry(t)

	v1 := r.Begin("ITSA4")
	require.NoError(t, r.Publish(v1, sampleFit()))

	v2 := r.Begin("ITSA4")
	r.MarkFailed(v2, "training diverged")

	got, err := r.Resolve("ITSA4", models.SelectorLatest)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	// an explicitly requested failed version is not servable
	_, err = r.Resolve("ITSA4", "v2")
	assert.True(t, errors.Is(err, models.ErrVersionNotFound))
}

func TestReopenRebuildsIndex(t *testing.T) {
	r, dir := newRegistry(t)

	require.NoError(t, r.Publish(r.Begin("PETR4"), sampleFit()))
	require.NoError(t, r.Publish(r.Begin("PETR4"), sampleFit()))
	r.MarkFailed(r.Begin("VALE3"), "no data")

	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	reopened, err := Open(dir, l)
	require.NoError(t, err)

	got, err := reopened.Resolve("PETR4", models.SelectorLatest)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)

	// version numbering continues past everything found on disk
	next := reopened.Begin("PETR4")
	assert.Equal(t, 3, next.Version)
	nextVale := reopened.Begin("VALE3")
	assert.Equal(t, 2, nextVale.Version)
}

func TestPublishPartialWriteLeavesNothingVisible(t *testing.T) {
	r, dir := newRegistry(t)

	calls := 0
	r.writeFile = func(path string, data []byte) error {
		calls++
		if calls == 3 {
			return errors.New("disk full")
		}
		return os.WriteFile(path, data, 0o644)
	}

	v := r.Begin("PETR4")
	err := r.Publish(v, sampleFit())
	require.Error(t, err)

	assert.Equal(t, models.StatusTraining, v.Status)
	_, statErr := os.Stat(filepath.Join(dir, "PETR4", "v1"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dir, "PETR4", ".staging-v1"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = r.Resolve("PETR4", models.SelectorLatest)
	assert.True(t, errors.Is(err, models.ErrNoReadyVersion))
}
