// Package runner wires readers, estimators, writers and metrics together for
// the command line.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/hed1ad/tsanomaly/internal/config"
	"github.com/hed1ad/tsanomaly/internal/metrics"
	"github.com/hed1ad/tsanomaly/pkg/detectors"
	"github.com/hed1ad/tsanomaly/pkg/detectors/ewma"
	"github.com/hed1ad/tsanomaly/pkg/detectors/pewma"
	tsio "github.com/hed1ad/tsanomaly/pkg/io"
)

// ErrUnknownDetector is returned for an unsupported detector kind.
var ErrUnknownDetector = errors.New("unknown detector")

// NewDetector builds the batch estimator named by cfg.Kind.
func NewDetector(cfg config.Detector) (detectors.Detector, error) {
	switch cfg.Kind {
	case config.KindEWMA, "":
		return ewma.New(ewma.WithParams(cfg.Params()))
	case config.KindPEWMA:
		return pewma.New(pewma.WithParams(cfg.Params()))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDetector, cfg.Kind)
	}
}

// NewStreamDetector builds the streaming estimator. Only the EWMA contract
// has a streaming form; Kind is ignored.
func NewStreamDetector(cfg config.Detector) (*ewma.Stream, error) {
	return ewma.NewStream(ewma.WithAlpha(cfg.Alpha), ewma.WithK(cfg.K))
}

// Summary describes one detection run.
type Summary struct {
	Points      int
	Anomalies   int
	AnomalyRate float64
	// MeanStdev averages the defined band standard deviations.
	MeanStdev float64
}

// Summarize computes a Summary over records.
func Summarize(records []detectors.Record) Summary {
	s := Summary{Points: len(records)}
	stdevs := make([]float64, 0, len(records))
	for _, r := range records {
		if r.Anomaly {
			s.Anomalies++
		}
		if !math.IsNaN(r.Stdev) {
			stdevs = append(stdevs, r.Stdev)
		}
	}
	if s.Points > 0 {
		s.AnomalyRate = float64(s.Anomalies) / float64(s.Points)
	}
	if len(stdevs) > 0 {
		s.MeanStdev = stat.Mean(stdevs, nil)
	}
	return s
}

// Batch runs a batch detector over complete series.
type Batch struct {
	Name     string
	Detector detectors.Detector
	Recorder *metrics.Recorder
	Logger   *zap.Logger
}

// Run reads the whole series from r, scores it and writes every record to w.
func (b *Batch) Run(r tsio.Reader, w tsio.Writer) (Summary, error) {
	series, err := r.Read()
	if err != nil {
		return Summary{}, fmt.Errorf("reading series: %w", err)
	}

	records := b.Detector.Detect(series)
	if err := w.WriteAll(records); err != nil {
		return Summary{}, fmt.Errorf("writing results: %w", err)
	}

	if b.Recorder != nil {
		for _, rec := range records {
			b.Recorder.Observe(b.Name, rec)
		}
	}

	summary := Summarize(records)
	b.logger().Info("batch detection complete",
		zap.String("detector", b.Name),
		zap.Int("points", summary.Points),
		zap.Int("anomalies", summary.Anomalies),
		zap.Float64("anomaly_rate", summary.AnomalyRate),
	)
	return summary, nil
}

func (b *Batch) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// Stream feeds values to a streaming detector as they arrive.
type Stream struct {
	Detector detectors.StreamDetector
	Recorder *metrics.Recorder
	Logger   *zap.Logger
}

// Run drains r through the detector and writes each decision to w. It
// returns when the input ends, on the first write error, or when ctx is done.
func (s *Stream) Run(ctx context.Context, r tsio.Reader, w tsio.Writer) (Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	input, err := r.Stream(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("opening stream: %w", err)
	}

	output := make(chan detectors.Record, 100)
	errCh := make(chan error, 1)
	go func() {
		defer close(output)
		errCh <- s.Detector.DetectStream(ctx, input, output)
	}()

	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var summary Summary
	var writeErr error
	for rec := range output {
		if writeErr != nil {
			continue
		}
		if err := w.Write(rec); err != nil {
			writeErr = fmt.Errorf("writing decision: %w", err)
			cancel()
			continue
		}
		summary.Points++
		if rec.Anomaly {
			summary.Anomalies++
			logger.Debug("anomaly",
				zap.Float64("value", rec.Value),
				zap.Float64("mean", rec.Mean),
				zap.Float64("stdev", rec.Stdev),
			)
		}
		if s.Recorder != nil {
			s.Recorder.Observe("stream", rec)
		}
	}

	detectErr := <-errCh
	if writeErr != nil {
		return summary, writeErr
	}
	if detectErr != nil && !errors.Is(detectErr, context.Canceled) {
		return summary, detectErr
	}
	if err := r.Err(); err != nil {
		return summary, fmt.Errorf("reading stream: %w", err)
	}
	if summary.Points > 0 {
		summary.AnomalyRate = float64(summary.Anomalies) / float64(summary.Points)
	}
	return summary, ctx.Err()
}
