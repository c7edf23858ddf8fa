package models

import (
	"fmt"
	"time"
)

// DateLayout is the canonical wire/storage format for trading dates.
const DateLayout = "2006-01-02"

// Bar represents one trading day of OHLCV data for an instrument.
// Bars are unique per (Instrument, Date) and dates inside a series are
// strictly increasing.
type Bar struct {
	Instrument string    `json:"instrument"`
	Date       time.Time `json:"date"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// SameValues reports whether two bars carry identical OHLCV values,
// ignoring FetchedAt. Used to detect data revisions on re-fetch.
func (b Bar) SameValues(o Bar) bool {
	return b.Open == o.Open &&
		b.High == o.High &&
		b.Low == o.Low &&
		b.Close == o.Close &&
		b.Volume == o.Volume
}

// VersionStatus is the lifecycle state of a trained model version.
type VersionStatus string

const (
	StatusTraining VersionStatus = "training"
	StatusReady    VersionStatus = "ready"
	StatusFailed   VersionStatus = "failed"
)

// SelectorLatest resolves to the newest ready version of an instrument.
const SelectorLatest = "latest"

// EvalMetrics holds holdout evaluation metrics recorded at training time.
type EvalMetrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
}

// ModelVersion is one immutable trained generation of an instrument's
// predictor. Owned by the registry; immutable once ready or failed.
type ModelVersion struct {
	Instrument  string        `json:"instrument"`
	Version     int           `json:"version"`
	Status      VersionStatus `json:"status"`
	Metrics     EvalMetrics   `json:"metrics"`
	CreatedAt   time.Time     `json:"created_at"`
	Reason      string        `json:"reason,omitempty"`
	ArtifactRef string        `json:"artifact_ref,omitempty"`
	ScalerRef   string        `json:"scaler_ref,omitempty"`
}

// Token returns the external version token, e.g. "v3".
func (v *ModelVersion) Token() string { return fmt.Sprintf("v%d", v.Version) }

// TrainParams are the caller-supplied training hyperparameters.
type TrainParams struct {
	Epochs    int `json:"epochs"`
	BatchSize int `json:"batch_size"`
}

// FitResult is the output of Predictor.Fit: serialized artifacts plus
// the holdout metrics recorded alongside the published version.
type FitResult struct {
	Model   []byte
	Scaler  []byte
	Metrics EvalMetrics
}

// PredictionResult is the transient, per-request prediction output.
// Never persisted or cached across requests.
type PredictionResult struct {
	Instrument        string      `json:"instrument"`
	Version           string      `json:"version"`
	PredictedPrice    float64     `json:"predicted_price"`
	PredictionDate    string      `json:"prediction_date"`
	LastObservedPrice float64     `json:"last_observed_price"`
	ActualPrice       *float64    `json:"actual_price,omitempty"`
	Metrics           EvalMetrics `json:"metrics"`
}

// RetrainStatus is the coordinator's per-instrument state machine state.
type RetrainStatus string

const (
	RetrainIdle       RetrainStatus = "idle"
	RetrainFetching   RetrainStatus = "fetching"
	RetrainTraining   RetrainStatus = "training"
	RetrainPublishing RetrainStatus = "publishing"
)

// RetrainReceipt is returned by a retrain trigger.
type RetrainReceipt struct {
	Instrument string `json:"instrument"`
	JobID      string `json:"job_id,omitempty"`
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
}
