package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockCast/internal/domain/models"
	drepo "StockCast/internal/domain/repository"
	"StockCast/internal/service/ratelimit"
	"StockCast/pkg/logger"
)

// RetryPolicy bounds the fetcher's retry behavior. Rate limiting backs off
// exponentially up to MaxAttempts total calls; transport failures retry a
// small fixed number of times; validation failures never retry.
type RetryPolicy struct {
	MaxAttempts        int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	UnavailableRetries int
}

// Fetcher is the fallback path to the external provider. It validates and
// normalizes raw bars before they may enter the cache. The fetcher holds
// no per-instrument state; callers serialize per-instrument use.
type Fetcher struct {
	provider drepo.QuoteProvider
	limiter  *ratelimit.Limiter
	policy   RetryPolicy
	maxRPS   float64
	logger   *logger.Logger
	metrics  drepo.Metrics

	sleep func(time.Duration) // test seam
}

// NewFetcher creates a source fetcher over the given provider.
func NewFetcher(p drepo.QuoteProvider, policy RetryPolicy, maxRPS float64, l *logger.Logger, m drepo.Metrics) *Fetcher {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 500 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 8 * time.Second
	}
	return &Fetcher{
		provider: p,
		limiter:  ratelimit.New(),
		policy:   policy,
		maxRPS:   maxRPS,
		logger:   l,
		metrics:  m,
		sleep:    time.Sleep,
	}
}

// Fetch retrieves, validates and normalizes daily bars for [from, to).
// Transient provider errors are retried within policy limits; validation
// failures and empty results surface immediately.
func (f *Fetcher) Fetch(ctx context.Context, instrument string, from, to time.Time) ([]models.Bar, error) {
	var (
		rateDelay   = f.policy.BaseDelay
		unavailLeft = f.policy.UnavailableRetries
		lastErr     error
	)

	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		if err := f.throttle(ctx); err != nil {
			return nil, err
		}

		bars, err := f.provider.DailyBars(ctx, instrument, from, to)
		switch {
		case err == nil:
			cleaned, verr := validateBars(instrument, bars)
			if verr != nil {
				f.metrics.RecordFetchAttempt(instrument, "invalid")
				return nil, verr
			}
			f.metrics.RecordFetchAttempt(instrument, "ok")
			return cleaned, nil

		case errors.Is(err, models.ErrRateLimited):
			f.metrics.RecordFetchAttempt(instrument, "rate_limited")
			lastErr = err
			if attempt == f.policy.MaxAttempts {
				break
			}
			f.logger.Warn("provider rate limited, backing off",
				logger.String("instrument", instrument),
				logger.Int("attempt", attempt),
				logger.Duration("delay", rateDelay))
			if err := f.wait(ctx, rateDelay); err != nil {
				return nil, err
			}
			rateDelay *= 2
			if rateDelay > f.policy.MaxDelay {
				rateDelay = f.policy.MaxDelay
			}

		case errors.Is(err, models.ErrSourceUnavailable):
			f.metrics.RecordFetchAttempt(instrument, "unavailable")
			lastErr = err
			if unavailLeft <= 0 {
				return nil, fmt.Errorf("fetch %s: %w", instrument, err)
			}
			unavailLeft--
			f.logger.Warn("provider unavailable, retrying",
				logger.String("instrument", instrument),
				logger.Int("retries_left", unavailLeft))

		case errors.Is(err, models.ErrEmptyResult):
			f.metrics.RecordFetchAttempt(instrument, "empty")
			return nil, fmt.Errorf("fetch %s: %w", instrument, err)

		default:
			f.metrics.RecordFetchAttempt(instrument, "error")
			return nil, fmt.Errorf("fetch %s: %w", instrument, err)
		}
	}

	return nil, fmt.Errorf("fetch %s: attempts exhausted: %w", instrument, lastErr)
}

func (f *Fetcher) throttle(ctx context.Context) error {
	if f.maxRPS <= 0 {
		return nil
	}
	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if !f.limiter.Wait("provider", f.maxRPS, f.maxRPS, deadline) {
		return fmt.Errorf("%w: rate limiter wait expired", models.ErrSourceUnavailable)
	}
	return ctx.Err()
}

func (f *Fetcher) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.sleep(d)
	return ctx.Err()
}

// validateBars rejects malformed bars: non-positive prices, OHLC bounds
// violations, and non-increasing dates. Bad data is never retried.
func validateBars(instrument string, bars []models.Bar) ([]models.Bar, error) {
	cleaned := make([]models.Bar, 0, len(bars))
	var prev time.Time

	for _, b := range bars {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return nil, &models.ValidationError{Instrument: instrument, Date: b.Date, Detail: "non-positive price"}
		}
		if b.Low > b.High {
			return nil, &models.ValidationError{Instrument: instrument, Date: b.Date, Detail: "low above high"}
		}
		if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
			return nil, &models.ValidationError{Instrument: instrument, Date: b.Date, Detail: "open/close outside low-high range"}
		}
		if b.Volume < 0 {
			return nil, &models.ValidationError{Instrument: instrument, Date: b.Date, Detail: "negative volume"}
		}
		if !prev.IsZero() && !b.Date.After(prev) {
			return nil, &models.ValidationError{Instrument: instrument, Date: b.Date, Detail: "non-increasing date"}
		}
		prev = b.Date
		cleaned = append(cleaned, b)
	}

	if len(cleaned) == 0 {
		return nil, fmt.Errorf("validate %s: %w", instrument, models.ErrEmptyResult)
	}
	return cleaned, nil
}
