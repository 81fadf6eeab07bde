package detectors

import "math"

// Moments tracks an exponentially weighted mean and population variance.
//
// The state is equivalent to the running moments s1 (weighted mean) and s2
// (weighted mean of squares), with s2 - s1² kept as a sum of squared
// deviations. Folding in a value equal to the mean leaves the mean unchanged
// and the variance at zero, so constant series never drift by rounding.
// A Moments value belongs to one series.
type Moments struct {
	mean   float64
	sumSq  float64
	weight float64
}

// NewMoments seeds the moments with a first observation: s1 = x, s2 = x².
func NewMoments(x float64) Moments {
	return Moments{mean: x, weight: 1}
}

// Blend folds x in with weight w, keeping the total weight at one:
//
//	s1 = w*x + (1-w)*s1
//	s2 = w*x² + (1-w)*s2
func (m *Moments) Blend(x, w float64) {
	delta := x - m.mean
	m.mean += w * delta
	m.sumSq = (1 - w) * (m.sumSq + w*delta*delta)
}

// Accumulate scales the existing weights by decay and adds x with weight
// one. Mean and variance are then the renormalized weighted statistics.
// Accumulate and Blend must not be mixed on the same Moments.
func (m *Moments) Accumulate(x, decay float64) {
	m.weight = decay*m.weight + 1
	delta := x - m.mean
	m.mean += delta / m.weight
	m.sumSq = decay*m.sumSq + delta*(x-m.mean)
}

// Mean returns the weighted mean s1.
func (m Moments) Mean() float64 {
	return m.mean
}

// Variance returns the population variance s2 - s1², clamped at zero.
func (m Moments) Variance() float64 {
	if m.weight == 0 {
		return 0
	}
	return math.Max(0, m.sumSq/m.weight)
}

// StdDev returns sqrt(max(0, s2 - s1²)).
func (m Moments) StdDev() float64 {
	return math.Sqrt(m.Variance())
}
