package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"StockCast/internal/domain/models"
	drepo "StockCast/internal/domain/repository"
)

const holdoutFraction = 0.2

// LinearPredictor fits an autoregressive linear model over min-max scaled
// closing prices: the next close is a learned weighted sum of the trailing
// lookback closes. Training runs mini-batch SGD over the requested epochs;
// the most recent samples are held out for evaluation and never trained on.
type LinearPredictor struct {
	lookback     int
	learningRate float64
}

// New creates a predictor with the given lookback window.
func New(lookback int) *LinearPredictor {
	return &LinearPredictor{lookback: lookback, learningRate: 0.05}
}

type scalerParams struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (s scalerParams) scale(x float64) float64 {
	if s.Max == s.Min {
		return 0
	}
	return (x - s.Min) / (s.Max - s.Min)
}

func (s scalerParams) unscale(x float64) float64 {
	return x*(s.Max-s.Min) + s.Min
}

type modelParams struct {
	Lookback int       `json:"lookback"`
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
}

// Fit trains a model on the closing-price series and evaluates it on the
// held-out tail. The series must provide at least lookback+2 bars so that
// one training sample and one holdout sample exist.
func (p *LinearPredictor) Fit(ctx context.Context, bars []models.Bar, params models.TrainParams) (*models.FitResult, error) {
	minBars := p.lookback + 2
	if len(bars) < minBars {
		return nil, fmt.Errorf("%w: %d bars, need at least %d", models.ErrInsufficientHistory, len(bars), minBars)
	}
	epochs := params.Epochs
	if epochs <= 0 {
		epochs = 50
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	scaler := fitScaler(closes)
	scaled := make([]float64, len(closes))
	for i, c := range closes {
		scaled[i] = scaler.scale(c)
	}

	// sample i predicts scaled[i+lookback] from the window before it
	nSamples := len(scaled) - p.lookback
	nHoldout := int(math.Ceil(float64(nSamples) * holdoutFraction))
	if nHoldout < 1 {
		nHoldout = 1
	}
	nTrain := nSamples - nHoldout
	if nTrain < 1 {
		return nil, fmt.Errorf("%w: %d bars leave no training samples", models.ErrInsufficientHistory, len(bars))
	}

	weights := make([]float64, p.lookback)
	for i := range weights {
		weights[i] = 1 / float64(p.lookback)
	}
	bias := 0.0

	grad := make([]float64, p.lookback)
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for start := 0; start < nTrain; start += batchSize {
			end := start + batchSize
			if end > nTrain {
				end = nTrain
			}
			for i := range grad {
				grad[i] = 0
			}
			gradBias := 0.0

			for s := start; s < end; s++ {
				window := scaled[s : s+p.lookback]
				pred := dot(weights, window) + bias
				residual := pred - scaled[s+p.lookback]
				for i, x := range window {
					grad[i] += residual * x
				}
				gradBias += residual
			}

			scale := p.learningRate / float64(end-start)
			for i := range weights {
				weights[i] -= scale * grad[i]
			}
			bias -= scale * gradBias
		}
	}

	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: weights diverged", models.ErrTrainingFailure)
		}
	}

	metrics := evaluate(scaled, closes, weights, bias, p.lookback, nTrain, nSamples, scaler)

	modelData, err := json.Marshal(modelParams{Lookback: p.lookback, Weights: weights, Bias: bias})
	if err != nil {
		return nil, fmt.Errorf("%w: encode model: %v", models.ErrTrainingFailure, err)
	}
	scalerData, err := json.Marshal(scaler)
	if err != nil {
		return nil, fmt.Errorf("%w: encode scaler: %v", models.ErrTrainingFailure, err)
	}

	return &models.FitResult{Model: modelData, Scaler: scalerData, Metrics: metrics}, nil
}

// Load deserializes artifacts produced by Fit into a servable handle.
func (p *LinearPredictor) Load(model, scaler []byte) (drepo.PredictorHandle, error) {
	var m modelParams
	if err := json.Unmarshal(model, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if m.Lookback <= 0 || len(m.Weights) != m.Lookback {
		return nil, fmt.Errorf("decode model: lookback %d with %d weights", m.Lookback, len(m.Weights))
	}
	var s scalerParams
	if err := json.Unmarshal(scaler, &s); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	return &handle{model: m, scaler: s}, nil
}

type handle struct {
	model  modelParams
	scaler scalerParams
}

func (h *handle) Lookback() int { return h.model.Lookback }

// Predict returns the next close in price space from the trailing lookback
// window of bars.
func (h *handle) Predict(window []models.Bar) (float64, error) {
	if len(window) < h.model.Lookback {
		return 0, fmt.Errorf("%w: window of %d bars, need %d", models.ErrInsufficientHistory, len(window), h.model.Lookback)
	}
	tail := window[len(window)-h.model.Lookback:]

	x := make([]float64, h.model.Lookback)
	for i, b := range tail {
		x[i] = h.scaler.scale(b.Close)
	}
	return h.scaler.unscale(dot(h.model.Weights, x) + h.model.Bias), nil
}

func fitScaler(xs []float64) scalerParams {
	s := scalerParams{Min: xs[0], Max: xs[0]}
	for _, x := range xs[1:] {
		if x < s.Min {
			s.Min = x
		}
		if x > s.Max {
			s.Max = x
		}
	}
	return s
}

func dot(w, x []float64) float64 {
	sum := 0.0
	for i := range w {
		sum += w[i] * x[i]
	}
	return sum
}

// evaluate computes holdout MAE/RMSE/MAPE in price space over the samples
// excluded from training.
func evaluate(scaled, closes, weights []float64, bias float64, lookback, nTrain, nSamples int, s scalerParams) models.EvalMetrics {
	var sumAbs, sumSq, sumPct float64
	n := 0

	for i := nTrain; i < nSamples; i++ {
		pred := s.unscale(dot(weights, scaled[i:i+lookback]) + bias)
		actual := closes[i+lookback]

		diff := pred - actual
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
		if actual != 0 {
			sumPct += math.Abs(diff/actual) * 100
		}
		n++
	}
	if n == 0 {
		return models.EvalMetrics{}
	}
	return models.EvalMetrics{
		MAE:  sumAbs / float64(n),
		RMSE: math.Sqrt(sumSq / float64(n)),
		MAPE: sumPct / float64(n),
	}
}
