package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hed1ad/tsanomaly/internal/config"
	"github.com/hed1ad/tsanomaly/internal/metrics"
	"github.com/hed1ad/tsanomaly/pkg/detectors"
	"github.com/hed1ad/tsanomaly/pkg/io/csv"
)

// Manifest lists the datasets of a training run.
//
//	data_dir: ./data
//	out_dir: ./out
//	count: 10          # wn-000 .. wn-009, used when datasets is empty
//	column: value
//	runs:
//	  - {kind: ewma, alpha: 0.2, k: 3, min_periods: 5}
//	  - {kind: pewma, alpha: 0.2, beta: 0.9, k: 3, min_periods: 5}
type Manifest struct {
	DataDir  string        `yaml:"data_dir"`
	OutDir   string        `yaml:"out_dir"`
	Count    int           `yaml:"count"`
	Datasets []string      `yaml:"datasets"`
	Column   string        `yaml:"column"`
	Runs     []ManifestRun `yaml:"runs"`
}

// ManifestRun is one detector configuration applied to every dataset.
// Unset fields fall back to the base detector settings.
type ManifestRun struct {
	Kind       string   `yaml:"kind"`
	Alpha      *float64 `yaml:"alpha"`
	Beta       *float64 `yaml:"beta"`
	K          *float64 `yaml:"k"`
	MinPeriods *int     `yaml:"min_periods"`
	Adjust     *bool    `yaml:"adjust"`
}

// Apply overlays the run's fields on base.
func (mr ManifestRun) Apply(base config.Detector) config.Detector {
	d := base
	if mr.Kind != "" {
		d.Kind = mr.Kind
	}
	if mr.Alpha != nil {
		d.Alpha = *mr.Alpha
	}
	if mr.Beta != nil {
		d.Beta = *mr.Beta
	}
	if mr.K != nil {
		d.K = *mr.K
	}
	if mr.MinPeriods != nil {
		d.MinPeriods = *mr.MinPeriods
	}
	if mr.Adjust != nil {
		d.Adjust = mr.Adjust
	}
	return d
}

// LoadManifest reads and checks a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if m.OutDir == "" {
		m.OutDir = "out"
	}
	if len(m.Datasets) == 0 && m.Count <= 0 {
		return nil, fmt.Errorf("manifest %s: no datasets and no count", path)
	}
	return m, nil
}

// DatasetNames returns the explicit dataset list, or wn-000.. wn-(count-1).
func (m *Manifest) DatasetNames() []string {
	if len(m.Datasets) > 0 {
		return m.Datasets
	}
	names := make([]string, m.Count)
	for i := range names {
		names[i] = fmt.Sprintf("wn-%03d", i)
	}
	return names
}

// Result is the outcome of one detector on one dataset.
type Result struct {
	Dataset  string
	Detector string
	Output   string
	Summary  Summary
}

// Trainer runs every manifest run over every dataset.
type Trainer struct {
	Base     config.Detector
	Recorder *metrics.Recorder
	Logger   *zap.Logger
}

// Train writes <out_dir>/<kind>-<dataset>.csv for each pair (<kind>-r<i>-...
// when the manifest has several runs) and returns the per-pair summaries.
// It stops at the first failing dataset.
func (t *Trainer) Train(ctx context.Context, m *Manifest) ([]Result, error) {
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(m.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	runs := m.Runs
	if len(runs) == 0 {
		runs = []ManifestRun{{}}
	}

	var results []Result
	for i, run := range runs {
		cfg := run.Apply(t.Base)
		det, err := NewDetector(cfg)
		if err != nil {
			return results, fmt.Errorf("run %d: %w", i, err)
		}
		name := cfg.Kind
		if name == "" {
			name = config.KindEWMA
		}
		if len(runs) > 1 {
			// Keep outputs of repeated kinds apart.
			name = fmt.Sprintf("%s-r%d", name, i)
		}

		for _, dataset := range m.DatasetNames() {
			if err := ctx.Err(); err != nil {
				return results, err
			}

			res, err := t.trainOne(m, dataset, name, det, logger)
			if err != nil {
				return results, fmt.Errorf("dataset %s: %w", dataset, err)
			}
			results = append(results, res)
		}
	}

	return results, nil
}

func (t *Trainer) trainOne(m *Manifest, dataset, name string, det detectors.Detector, logger *zap.Logger) (Result, error) {
	input := filepath.Join(m.DataDir, dataset+".csv")
	output := filepath.Join(m.OutDir, name+"-"+dataset+".csv")

	var opts []csv.Option
	if m.Column != "" {
		opts = append(opts, csv.WithColumn(m.Column))
	}
	r, err := csv.NewReader(input, opts...)
	if err != nil {
		return Result{}, err
	}
	defer r.Close()

	w, err := csv.NewWriter(output)
	if err != nil {
		return Result{}, err
	}

	b := &Batch{
		Name:     name,
		Detector: det,
		Recorder: t.Recorder,
		Logger:   logger.With(zap.String("dataset", dataset)),
	}
	summary, err := b.Run(r, w)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing %s: %w", output, cerr)
	}
	if err != nil {
		return Result{}, err
	}

	return Result{
		Dataset:  dataset,
		Detector: name,
		Output:   output,
		Summary:  summary,
	}, nil
}
