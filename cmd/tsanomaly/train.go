package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/tsanomaly/internal/runner"
)

func newTrainCmd(a *app) *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run batch detectors over every dataset in a manifest",
		Long: `Runs each detector configuration listed in the manifest over every named
dataset (<data_dir>/<name>.csv) and writes <out_dir>/<detector>-<name>.csv.
Hyperparameters not set in a run come from flags, environment or config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.logger.Named("train")

			m, err := runner.LoadManifest(manifestPath)
			if err != nil {
				return err
			}

			tr := &runner.Trainer{Base: a.cfg.Detector, Logger: logger}
			results, err := tr.Train(cmd.Context(), m)
			for _, res := range results {
				logger.Info("dataset scored",
					zap.String("dataset", res.Dataset),
					zap.String("detector", res.Detector),
					zap.String("output", res.Output),
					zap.Int("points", res.Summary.Points),
					zap.Int("anomalies", res.Summary.Anomalies),
					zap.Float64("mean_stdev", res.Summary.MeanStdev),
				)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "train.yaml", "training manifest file")
	return cmd
}
