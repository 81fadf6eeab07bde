// Package io provides input/output utilities for series ingestion and
// detection results.
package io

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hed1ad/tsanomaly/pkg/detectors"
)

// ErrNonFinite is returned when an input value is NaN or infinite. The
// estimators have no missing-value semantics, so readers reject such values.
var ErrNonFinite = errors.New("non-finite value")

// Reader is the interface for reading a univariate series from various sources.
type Reader interface {
	// Read returns the complete series in time order.
	Read() ([]float64, error)

	// Stream returns a channel of values for real-time processing.
	Stream(ctx context.Context) (<-chan float64, error)

	// Err reports the error that ended a Stream early, if any.
	Err() error

	// Close releases resources.
	Close() error
}

// Writer is the interface for writing detection results.
type Writer interface {
	// Write outputs a single record.
	Write(r detectors.Record) error

	// WriteAll outputs multiple records.
	WriteAll(records []detectors.Record) error

	// Close flushes and releases resources.
	Close() error
}

// CheckFinite returns ErrNonFinite if v is NaN or ±Inf.
func CheckFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v", ErrNonFinite, v)
	}
	return nil
}

// Columns are the result column names, in output order.
var Columns = []string{"x", "mean", "stdev", "upper", "lower", "anomaly"}
