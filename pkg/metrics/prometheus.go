package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions   *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	dataRevisions *prometheus.CounterVec
	fetchAttempts *prometheus.CounterVec
	retrains      *prometheus.CounterVec
	lastPredicted *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		predictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_predictions_total",
				Help: "Total number of predictions served",
			},
			[]string{"instrument", "version"},
		),
		cacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_series_cache_misses_total",
				Help: "Series cache misses by instrument and reason",
			},
			[]string{"instrument", "reason"},
		),
		dataRevisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_data_revisions_total",
				Help: "Historical bars overwritten with differing values on re-fetch",
			},
			[]string{"instrument"},
		),
		fetchAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_fetch_attempts_total",
				Help: "External source fetch attempts by outcome",
			},
			[]string{"instrument", "outcome"},
		),
		retrains: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_retrains_total",
				Help: "Retrain runs by terminal status",
			},
			[]string{"instrument", "status"},
		),
		lastPredicted: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockcast_last_predicted_price",
				Help: "Last predicted price for an instrument",
			},
			[]string{"instrument"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockcast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordPrediction records a prediction served for instrument@version.
func (r *Recorder) RecordPrediction(instrument, version string) {
	r.predictions.WithLabelValues(instrument, version).Inc()
}

// RecordCacheMiss records a typed series cache miss.
func (r *Recorder) RecordCacheMiss(instrument, reason string) {
	r.cacheMisses.WithLabelValues(instrument, reason).Inc()
}

// RecordDataRevision records a historical bar overwritten with new values.
func (r *Recorder) RecordDataRevision(instrument string) {
	r.dataRevisions.WithLabelValues(instrument).Inc()
}

// RecordFetchAttempt records one provider call and its outcome.
func (r *Recorder) RecordFetchAttempt(instrument, outcome string) {
	r.fetchAttempts.WithLabelValues(instrument, outcome).Inc()
}

// RecordRetrain records a retrain run reaching a terminal status.
func (r *Recorder) RecordRetrain(instrument, status string) {
	r.retrains.WithLabelValues(instrument, status).Inc()
}

// RecordLastPredicted records the last predicted price for an instrument.
func (r *Recorder) RecordLastPredicted(instrument string, price float64) {
	r.lastPredicted.WithLabelValues(instrument).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
