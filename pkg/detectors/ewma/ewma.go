// Package ewma implements anomaly detection based on the exponentially
// weighted moving average, in batch and streaming form.
package ewma

import (
	"math"

	"github.com/hed1ad/tsanomaly/pkg/detectors"
)

// Compile-time interface guards.
var (
	_ detectors.Detector       = (*Detector)(nil)
	_ detectors.StreamDetector = (*Stream)(nil)
)

// Option configures an EWMA estimator.
type Option func(*detectors.Params)

// WithAlpha sets the weight of the most recent value.
func WithAlpha(alpha float64) Option {
	return func(p *detectors.Params) {
		p.Alpha = alpha
	}
}

// WithK sets the band multiplier.
func WithK(k float64) Option {
	return func(p *detectors.Params) {
		p.K = k
	}
}

// WithMinPeriods sets the training period. Points inside it are never flagged.
func WithMinPeriods(n int) Option {
	return func(p *detectors.Params) {
		p.MinPeriods = n
	}
}

// WithAdjust selects between renormalized weights (true) and the recursive
// form seeded with the first value (false). The recursive form matches Stream.
func WithAdjust(adjust bool) Option {
	return func(p *detectors.Params) {
		p.Adjust = adjust
	}
}

// WithParams replaces all hyperparameters at once.
func WithParams(params detectors.Params) Option {
	return func(p *detectors.Params) {
		*p = params
	}
}

func buildParams(opts []Option) (detectors.Params, error) {
	p := detectors.DefaultParams()
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.Validate(); err != nil {
		return detectors.Params{}, err
	}
	return p, nil
}

// Detector is the EWMA batch estimator.
type Detector struct {
	params detectors.Params
}

// New creates a new EWMA batch detector with the given options.
func New(opts ...Option) (*Detector, error) {
	p, err := buildParams(opts)
	if err != nil {
		return nil, err
	}
	return &Detector{params: p}, nil
}

// Params returns the detector's hyperparameters.
func (d *Detector) Params() detectors.Params {
	return d.params
}

// Detect runs the detector on the given series. Each point is scored against
// the weighted mean and population standard deviation of the points before it.
func (d *Detector) Detect(series []float64) []detectors.Record {
	n := len(series)
	records := make([]detectors.Record, n)
	if n == 0 {
		return records
	}

	// No history for the first point.
	records[0] = detectors.Record{
		Value: series[0],
		Mean:  series[0],
		Stdev: math.NaN(),
		Upper: math.NaN(),
		Lower: math.NaN(),
	}

	alpha, k := d.params.Alpha, d.params.K
	m := detectors.NewMoments(series[0])

	for t := 1; t < n; t++ {
		// m covers series[0..t-1] only.
		r := detectors.NewRecord(series[t], m.Mean(), m.StdDev(), k)
		if t < d.params.MinPeriods {
			r.Anomaly = false
		}
		records[t] = r

		if d.params.Adjust {
			m.Accumulate(series[t], 1-alpha)
		} else {
			m.Blend(series[t], alpha)
		}
	}

	return records
}
