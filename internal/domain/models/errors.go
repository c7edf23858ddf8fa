package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors of the serving core. Transient source errors are retried
// internally by the fetcher; everything else surfaces immediately.
var (
	ErrSourceUnavailable     = errors.New("source unavailable")
	ErrRateLimited           = errors.New("source rate limited")
	ErrEmptyResult           = errors.New("source returned no usable bars")
	ErrInstrumentUnsupported = errors.New("instrument not supported")
	ErrVersionNotFound       = errors.New("model version not found")
	ErrNoReadyVersion        = errors.New("no ready model version")
	ErrInsufficientHistory   = errors.New("insufficient history")
	ErrAlreadyRunning        = errors.New("retrain already running")
	ErrTrainingFailure       = errors.New("training failure")
)

// MissReason classifies a series-cache miss.
type MissReason string

const (
	MissEmpty        MissReason = "empty"
	MissStale        MissReason = "stale"
	MissInsufficient MissReason = "insufficient"
)

// CacheMissError is the typed miss reported by the series cache.
type CacheMissError struct {
	Instrument string
	Reason     MissReason
	LastDate   time.Time // zero when Reason == MissEmpty
	Have       int
	Want       int
}

func (e *CacheMissError) Error() string {
	switch e.Reason {
	case MissEmpty:
		return fmt.Sprintf("cache miss for %s: no bars cached", e.Instrument)
	case MissStale:
		return fmt.Sprintf("cache miss for %s: last bar %s is stale", e.Instrument, e.LastDate.Format(DateLayout))
	default:
		return fmt.Sprintf("cache miss for %s: %d bars cached, need %d", e.Instrument, e.Have, e.Want)
	}
}

// ValidationError reports a bar rejected by source-data validation.
// Validation failures are permanent for the fetch attempt and never retried.
type ValidationError struct {
	Instrument string
	Date       time.Time
	Detail     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bar for %s on %s: %s", e.Instrument, e.Date.Format(DateLayout), e.Detail)
}
