// Package pewma implements anomaly detection based on the probabilistic
// exponentially weighted moving average.
//
// Based on Carter and Streilein, "Probabilistic reasoning for streaming
// anomaly detection" (2012). Alpha here is the weight of the most recent
// value, the reverse of the paper's convention.
package pewma

import (
	"math"

	"github.com/hed1ad/tsanomaly/pkg/detectors"
)

var _ detectors.Detector = (*Detector)(nil)

// prDenom normalizes the standard normal density.
var prDenom = math.Sqrt(2 * math.Pi)

// Option configures a PEWMA detector.
type Option func(*detectors.Params)

// WithAlpha sets the weight of the most recent value.
func WithAlpha(alpha float64) Option {
	return func(p *detectors.Params) {
		p.Alpha = alpha
	}
}

// WithBeta sets how strongly outlier probability suppresses alpha.
func WithBeta(beta float64) Option {
	return func(p *detectors.Params) {
		p.Beta = beta
	}
}

// WithK sets the band multiplier.
func WithK(k float64) Option {
	return func(p *detectors.Params) {
		p.K = k
	}
}

// WithMinPeriods sets the training period.
func WithMinPeriods(n int) Option {
	return func(p *detectors.Params) {
		p.MinPeriods = n
	}
}

// WithParams replaces all hyperparameters at once. Adjust is ignored.
func WithParams(params detectors.Params) Option {
	return func(p *detectors.Params) {
		*p = params
	}
}

// Detector is the PEWMA batch estimator.
type Detector struct {
	params detectors.Params
}

// New creates a new PEWMA batch detector with the given options.
func New(opts ...Option) (*Detector, error) {
	p := detectors.DefaultParams()
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Detector{params: p}, nil
}

// Params returns the detector's hyperparameters.
func (d *Detector) Params() detectors.Params {
	return d.params
}

// Gamma returns the weight kept on the running estimate when folding in
// step t's predecessor, given that predecessor's value and the estimates
// it was scored against. The result is in [0, 1].
func (d *Detector) Gamma(t int, prevValue, prevMean, prevStdev float64) float64 {
	gamma := 1 - d.params.Alpha

	switch {
	case t < d.params.MinPeriods:
		// Training: the raw value keeps a weight of 1/t.
		return 1 - 1/float64(t)
	case prevStdev == 0:
		return gamma
	default:
		z := (prevValue - prevMean) / prevStdev
		p := math.Exp(-0.5*z*z) / prDenom
		return (1 - d.params.Beta*p) * gamma
	}
}

// Detect runs the detector on the given series. The weight of each value in
// the running statistics shrinks with how unlikely it looked when scored.
func (d *Detector) Detect(series []float64) []detectors.Record {
	n := len(series)
	records := make([]detectors.Record, n)
	if n == 0 {
		return records
	}

	k := d.params.K
	first := detectors.NewRecord(series[0], series[0], 0, k)
	first.Anomaly = false
	records[0] = first

	m := detectors.NewMoments(series[0])
	for t := 1; t < n; t++ {
		prev := records[t-1]
		gammaT := d.Gamma(t, prev.Value, prev.Mean, prev.Stdev)
		m.Blend(prev.Value, 1-gammaT)

		r := detectors.NewRecord(series[t], m.Mean(), m.StdDev(), k)
		if t < d.params.MinPeriods {
			r.Anomaly = false
		}
		records[t] = r
	}

	return records
}
