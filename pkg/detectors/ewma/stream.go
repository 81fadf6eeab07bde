package ewma

import (
	"context"
	"sync"

	"github.com/hed1ad/tsanomaly/pkg/detectors"
)

// Stream is the single-pass EWMA estimator. It keeps only the running first
// and second moments of the values seen so far.
//
// One Stream monitors one series. Values must be delivered in time order;
// the mutex keeps concurrent calls memory safe but cannot restore ordering.
type Stream struct {
	mu sync.Mutex

	alpha float64
	k     float64

	moments detectors.Moments
	primed  bool
}

// NewStream creates a streaming detector. Only WithAlpha and WithK affect it.
func NewStream(opts ...Option) (*Stream, error) {
	p, err := buildParams(opts)
	if err != nil {
		return nil, err
	}
	return &Stream{alpha: p.Alpha, k: p.K}, nil
}

// Advance scores value against the estimates as they stood before it and
// then folds it into the running moments. The first call only seeds the
// moments and returns false.
func (s *Stream) Advance(value float64) (detectors.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		s.moments = detectors.NewMoments(value)
		s.primed = true
		return detectors.Record{}, false
	}

	r := detectors.NewRecord(value, s.moments.Mean(), s.moments.StdDev(), s.k)
	s.moments.Blend(value, s.alpha)

	return r, true
}

// Estimate returns the current mean and standard deviation, i.e. the
// statistics the next value will be scored against.
func (s *Stream) Estimate() (mean, stdev float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		return 0, 0, false
	}
	return s.moments.Mean(), s.moments.StdDev(), true
}

// Reset discards all history.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.moments, s.primed = detectors.Moments{}, false
}

// DetectStream processes values from a channel and outputs a decision for
// every value except the first. It returns when input is closed or ctx is done.
func (s *Stream) DetectStream(ctx context.Context, input <-chan float64, output chan<- detectors.Record) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case value, ok := <-input:
			if !ok {
				return nil
			}

			r, decided := s.Advance(value)
			if !decided {
				continue
			}

			select {
			case output <- r:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
