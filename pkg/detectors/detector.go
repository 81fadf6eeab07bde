// Package detectors provides trend-band anomaly detection for univariate time series.
package detectors

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Configuration errors returned by Params.Validate.
var (
	ErrInvalidAlpha      = errors.New("alpha must be in (0, 1]")
	ErrInvalidBeta       = errors.New("beta must be in [0, 1]")
	ErrInvalidK          = errors.New("k must be non-negative")
	ErrInvalidMinPeriods = errors.New("min periods must be non-negative")
)

// Detector is the common interface for batch estimators.
type Detector interface {
	// Detect scores every point of series and returns one record per index.
	// It does not mutate detector state.
	Detect(series []float64) []Record
}

// StreamDetector scores values one at a time with O(1) state.
type StreamDetector interface {
	// Advance scores value against the statistics of all earlier values and
	// then folds it in. The bool is false on the first call only.
	Advance(value float64) (Record, bool)

	// DetectStream processes values from a channel and outputs decisions.
	DetectStream(ctx context.Context, input <-chan float64, output chan<- Record) error
}

// Record is the detection result for a single point.
type Record struct {
	// Value is the observed point.
	Value float64 `json:"x"`
	// Mean is the estimate available before Value was seen.
	Mean  float64 `json:"mean"`
	Stdev float64 `json:"stdev"`
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
	// Anomaly is true when Value falls strictly outside [Lower, Upper].
	Anomaly bool `json:"anomaly"`
}

// NewRecord scores value against mean and stdev and builds its record.
func NewRecord(value, mean, stdev, k float64) Record {
	upper, lower, anomaly := Band(value, mean, stdev, k)
	return Record{
		Value:   value,
		Mean:    mean,
		Stdev:   stdev,
		Upper:   upper,
		Lower:   lower,
		Anomaly: anomaly,
	}
}

// Band returns the band [mean-k*stdev, mean+k*stdev] and whether value lies
// strictly outside it. stdev must be non-negative.
func Band(value, mean, stdev, k float64) (upper, lower float64, anomaly bool) {
	upper = mean + k*stdev
	lower = mean - k*stdev
	anomaly = value < lower || value > upper
	return upper, lower, anomaly
}

// Params holds the hyperparameters shared by the estimators.
type Params struct {
	// Alpha is the weight of the most recent raw value, in (0, 1].
	Alpha float64
	// Beta scales how strongly outlier probability suppresses Alpha (PEWMA only).
	Beta float64
	// K is the band half-width in standard deviations.
	K float64
	// MinPeriods is the length of the training window.
	MinPeriods int
	// Adjust selects renormalized EWMA weights over the available history
	// instead of the recursive form seeded with the first value.
	Adjust bool
}

// DefaultParams returns the default hyperparameters.
func DefaultParams() Params {
	return Params{
		Alpha:      0.5,
		Beta:       0.5,
		K:          3.0,
		MinPeriods: 1,
		Adjust:     true,
	}
}

// Validate checks the hyperparameters and reports the first violation.
func (p Params) Validate() error {
	if !(p.Alpha > 0 && p.Alpha <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidAlpha, p.Alpha)
	}
	if !(p.Beta >= 0 && p.Beta <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidBeta, p.Beta)
	}
	if !(p.K >= 0) || math.IsInf(p.K, 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidK, p.K)
	}
	if p.MinPeriods < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMinPeriods, p.MinPeriods)
	}
	return nil
}
