package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hed1ad/tsanomaly/internal/runner"
)

func newDetectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Score a whole series with a batch detector",
		Long: `Reads a complete series, scores every point against the band derived
from the points before it, and writes one CSV row per point with the
columns x, mean, stdev, upper, lower, anomaly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			det, err := runner.NewDetector(a.cfg.Detector)
			if err != nil {
				return err
			}

			r, err := a.openReader()
			if err != nil {
				return fmt.Errorf("opening input: %w", err)
			}
			defer r.Close()

			w, err := a.openWriter()
			if err != nil {
				return fmt.Errorf("opening output: %w", err)
			}

			b := &runner.Batch{
				Name:     a.cfg.Detector.Kind,
				Detector: det,
				Logger:   a.logger.Named("detect"),
			}
			_, err = b.Run(r, w)
			if cerr := w.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}
	a.addInputFlags(cmd, false)
	return cmd
}
