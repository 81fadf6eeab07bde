package ewma

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/tsanomaly/pkg/detectors"
)

func TestNewStream(t *testing.T) {
	s, err := NewStream(WithAlpha(0.25), WithK(2))
	require.NoError(t, err)
	assert.Equal(t, 0.25, s.alpha)
	assert.Equal(t, 2.0, s.k)

	_, err = NewStream(WithAlpha(0))
	assert.ErrorIs(t, err, detectors.ErrInvalidAlpha)

	_, err = NewStream(WithAlpha(-0.5))
	assert.ErrorIs(t, err, detectors.ErrInvalidAlpha)
}

func TestAdvanceFirstCall(t *testing.T) {
	s, err := NewStream(WithAlpha(0.5))
	require.NoError(t, err)

	_, ok := s.Advance(10)
	assert.False(t, ok, "first call has no history to judge against")

	r, ok := s.Advance(10)
	require.True(t, ok)
	assert.False(t, r.Anomaly)
	assert.Equal(t, 10.0, r.Mean)
	assert.Equal(t, 0.0, r.Stdev)
}

func TestAdvanceNoDecisionOnlyOnce(t *testing.T) {
	s, err := NewStream()
	require.NoError(t, err)

	undecided := 0
	for _, v := range []float64{1, 2, 3, 4, 5, 6} {
		if _, ok := s.Advance(v); !ok {
			undecided++
		}
	}
	assert.Equal(t, 1, undecided)
}

func TestAdvanceCausalLag(t *testing.T) {
	s, err := NewStream(WithAlpha(0.5), WithK(3))
	require.NoError(t, err)

	for _, v := range []float64{10, 10, 10, 10, 10} {
		s.Advance(v)
	}

	mean, stdev, ok := s.Estimate()
	require.True(t, ok)

	r, decided := s.Advance(50)
	require.True(t, decided)
	assert.True(t, r.Anomaly)
	assert.Equal(t, mean, r.Mean, "spike is scored against the pre-update mean")
	assert.Equal(t, stdev, r.Stdev)

	after, _, _ := s.Estimate()
	assert.Equal(t, 30.0, after)
}

func TestStreamMatchesBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(99))

	for _, alpha := range []float64{0.05, 0.2, 0.5, 0.9, 1} {
		for _, n := range []int{2, 3, 17, 250} {
			series := generateSeries(rng, n)

			batch, err := New(WithAlpha(alpha), WithK(2), WithMinPeriods(1), WithAdjust(false))
			require.NoError(t, err)
			stream, err := NewStream(WithAlpha(alpha), WithK(2))
			require.NoError(t, err)

			records := batch.Detect(series)
			for i, v := range series {
				r, ok := stream.Advance(v)
				if i == 0 {
					assert.False(t, ok)
					assert.False(t, records[0].Anomaly)
					continue
				}
				require.True(t, ok)
				assert.Equal(t, records[i].Anomaly, r.Anomaly, "alpha=%v n=%d index=%d", alpha, n, i)
				assert.Equal(t, records[i].Mean, r.Mean)
				assert.Equal(t, records[i].Stdev, r.Stdev)
			}
		}
	}
}

func TestStreamConstantSeries(t *testing.T) {
	s, err := NewStream(WithAlpha(0.3), WithK(1))
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		r, ok := s.Advance(1e6 + 0.7)
		if ok {
			assert.False(t, r.Anomaly, "index %d", i)
		}
	}
}

func TestReset(t *testing.T) {
	s, err := NewStream()
	require.NoError(t, err)

	s.Advance(1)
	s.Advance(2)
	s.Reset()

	_, _, ok := s.Estimate()
	assert.False(t, ok)

	_, decided := s.Advance(100)
	assert.False(t, decided, "reset stream starts a new series")
}

func TestDetectStream(t *testing.T) {
	s, err := NewStream(WithAlpha(0.5), WithK(3))
	require.NoError(t, err)

	results := detectStream(t, s, []float64{10, 10, 10, 10, 10, 50})

	require.Len(t, results, 5)
	for _, r := range results[:4] {
		assert.False(t, r.Anomaly)
	}
	assert.True(t, results[4].Anomaly)
	assert.Equal(t, 50.0, results[4].Value)
}

func TestDetectStreamCancel(t *testing.T) {
	s, err := NewStream()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := make(chan float64)
	output := make(chan detectors.Record)
	err = s.DetectStream(ctx, input, output)
	assert.ErrorIs(t, err, context.Canceled)
}

func BenchmarkAdvance(b *testing.B) {
	s, _ := NewStream(WithAlpha(0.2))
	series := generateSeries(rand.New(rand.NewSource(42)), 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Advance(series[i%len(series)])
	}
}
