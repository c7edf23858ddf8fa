package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/pkg/logger"
)

const (
	modelFile    = "model.json"
	scalerFile   = "scaler.json"
	metricsFile  = "metrics.json"
	manifestFile = "manifest.json"
)

// Registry owns trained model versions. Versions are monotonically
// increasing per instrument and immutable once ready or failed. Artifacts
// live on disk under root/<INSTRUMENT>/v<N>/; a version becomes visible
// on disk only via an atomic directory rename, so readers never observe
// a partially written version.
type Registry struct {
	root   string
	logger *logger.Logger

	mu       sync.Mutex
	versions map[string][]*models.ModelVersion // keyed by upper-case instrument, ascending
	next     map[string]int

	writeFile func(path string, data []byte) error // test seam
}

// Open loads the registry rooted at dir, rebuilding the in-memory index
// from the version manifests found on disk. Directories without a readable
// manifest are skipped with a warning.
func Open(dir string, l *logger.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("registry root %s: %w", dir, err)
	}

	r := &Registry{
		root:     dir,
		logger:   l,
		versions: make(map[string][]*models.ModelVersion),
		next:     make(map[string]int),
		writeFile: func(path string, data []byte) error {
			return os.WriteFile(path, data, 0o644)
		},
	}
	if err := r.scan(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) scan() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("registry scan: %w", err)
	}

	for _, inst := range entries {
		if !inst.IsDir() || strings.HasPrefix(inst.Name(), ".") {
			continue
		}
		instrument := strings.ToUpper(inst.Name())

		versionDirs, err := os.ReadDir(filepath.Join(r.root, inst.Name()))
		if err != nil {
			return fmt.Errorf("registry scan %s: %w", instrument, err)
		}
		for _, vd := range versionDirs {
			if !vd.IsDir() || !strings.HasPrefix(vd.Name(), "v") {
				continue
			}
			v, err := r.readManifest(filepath.Join(r.root, inst.Name(), vd.Name(), manifestFile))
			if err != nil {
				r.logger.Warn("skipping version with unreadable manifest",
					logger.String("instrument", instrument),
					logger.String("version", vd.Name()),
					logger.Error(err))
				continue
			}
			r.versions[instrument] = append(r.versions[instrument], v)
			if v.Version >= r.next[instrument] {
				r.next[instrument] = v.Version + 1
			}
		}
		sort.Slice(r.versions[instrument], func(i, j int) bool {
			return r.versions[instrument][i].Version < r.versions[instrument][j].Version
		})
	}
	return nil
}

func (r *Registry) readManifest(path string) (*models.ModelVersion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v models.ModelVersion
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &v, nil
}

// Begin allocates the next version number for the instrument and registers
// it in the training state. Nothing touches disk until Publish or MarkFailed.
func (r *Registry) Begin(instrument string) *models.ModelVersion {
	instrument = strings.ToUpper(instrument)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next[instrument]
	if n == 0 {
		n = 1
	}
	r.next[instrument] = n + 1

	v := &models.ModelVersion{
		Instrument: instrument,
		Version:    n,
		Status:     models.StatusTraining,
		CreatedAt:  time.Now().UTC(),
	}
	r.versions[instrument] = append(r.versions[instrument], v)
	return v
}

// Publish writes the fit artifacts for a training version and flips it to
// ready. Artifacts are staged in a hidden sibling directory and made
// visible with a single rename; on any failure the staging directory is
// removed and the version stays in training so the caller can MarkFailed.
func (r *Registry) Publish(v *models.ModelVersion, fit *models.FitResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.Status != models.StatusTraining {
		return fmt.Errorf("publish %s %s: version is %s, not training", v.Instrument, v.Token(), v.Status)
	}

	instDir := filepath.Join(r.root, v.Instrument)
	staging := filepath.Join(instDir, ".staging-"+v.Token())
	final := filepath.Join(instDir, v.Token())

	if err := r.stageArtifacts(staging, v, fit); err != nil {
		os.RemoveAll(staging)
		return err
	}
	if err := os.Rename(staging, final); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("publish %s %s: %w", v.Instrument, v.Token(), err)
	}

	v.Status = models.StatusReady
	v.Metrics = fit.Metrics
	v.ArtifactRef = filepath.Join(final, modelFile)
	v.ScalerRef = filepath.Join(final, scalerFile)

	r.logger.Info("model version published",
		logger.String("instrument", v.Instrument),
		logger.String("version", v.Token()),
		logger.Float64("mae", fit.Metrics.MAE),
		logger.Float64("rmse", fit.Metrics.RMSE))
	return nil
}

func (r *Registry) stageArtifacts(staging string, v *models.ModelVersion, fit *models.FitResult) error {
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("stage %s %s: %w", v.Instrument, v.Token(), err)
	}

	metrics, err := json.Marshal(fit.Metrics)
	if err != nil {
		return fmt.Errorf("stage %s %s: encode metrics: %w", v.Instrument, v.Token(), err)
	}

	manifest := *v
	manifest.Status = models.StatusReady
	manifest.Metrics = fit.Metrics
	manifestData, err := json.MarshalIndent(&manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("stage %s %s: encode manifest: %w", v.Instrument, v.Token(), err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{modelFile, fit.Model},
		{scalerFile, fit.Scaler},
		{metricsFile, metrics},
		{manifestFile, manifestData},
	}
	for _, f := range files {
		if err := r.writeFile(filepath.Join(staging, f.name), f.data); err != nil {
			return fmt.Errorf("stage %s %s: write %s: %w", v.Instrument, v.Token(), f.name, err)
		}
	}
	return nil
}

// MarkFailed flips a training version to failed with the given reason and
// records a manifest so the failure survives restarts. Best effort on
// disk; the in-memory state always transitions.
func (r *Registry) MarkFailed(v *models.ModelVersion, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.Status != models.StatusTraining {
		return
	}
	v.Status = models.StatusFailed
	v.Reason = reason

	dir := filepath.Join(r.root, v.Instrument, v.Token())
	data, err := json.MarshalIndent(v, "", "  ")
	if err == nil {
		if err = os.MkdirAll(dir, 0o755); err == nil {
			err = r.writeFile(filepath.Join(dir, manifestFile), data)
		}
	}
	if err != nil {
		r.logger.Warn("could not persist failed-version manifest",
			logger.String("instrument", v.Instrument),
			logger.String("version", v.Token()),
			logger.Error(err))
	}
}

// Resolve maps a version selector to a concrete version. The empty
// selector and "latest" resolve to the newest ready version; an explicit
// selector ("v3" or "3") must name an existing ready version.
func (r *Registry) Resolve(instrument, selector string) (*models.ModelVersion, error) {
	instrument = strings.ToUpper(instrument)

	r.mu.Lock()
	defer r.mu.Unlock()

	vs := r.versions[instrument]

	if selector == "" || selector == models.SelectorLatest {
		for i := len(vs) - 1; i >= 0; i-- {
			if vs[i].Status == models.StatusReady {
				return vs[i], nil
			}
		}
		return nil, fmt.Errorf("%w: %s", models.ErrNoReadyVersion, instrument)
	}

	n, err := strconv.Atoi(strings.TrimPrefix(selector, "v"))
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: %s %q", models.ErrVersionNotFound, instrument, selector)
	}
	for _, v := range vs {
		if v.Version == n {
			if v.Status != models.StatusReady {
				return nil, fmt.Errorf("%w: %s %s is %s", models.ErrVersionNotFound, instrument, v.Token(), v.Status)
			}
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %q", models.ErrVersionNotFound, instrument, selector)
}

// LoadArtifacts reads the serialized model and scaler for a ready version.
func (r *Registry) LoadArtifacts(v *models.ModelVersion) (model, scaler []byte, err error) {
	dir := filepath.Join(r.root, v.Instrument, v.Token())
	model, err = os.ReadFile(filepath.Join(dir, modelFile))
	if err != nil {
		return nil, nil, fmt.Errorf("load %s %s: %w", v.Instrument, v.Token(), err)
	}
	scaler, err = os.ReadFile(filepath.Join(dir, scalerFile))
	if err != nil {
		return nil, nil, fmt.Errorf("load %s %s: %w", v.Instrument, v.Token(), err)
	}
	return model, scaler, nil
}

// Versions returns a snapshot of all versions known for the instrument,
// ascending by version number.
func (r *Registry) Versions(instrument string) []models.ModelVersion {
	instrument = strings.ToUpper(instrument)

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ModelVersion, 0, len(r.versions[instrument]))
	for _, v := range r.versions[instrument] {
		out = append(out, *v)
	}
	return out
}
