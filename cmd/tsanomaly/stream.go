package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/tsanomaly/internal/metrics"
	"github.com/hed1ad/tsanomaly/internal/runner"
)

func newStreamCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Score values one at a time as they arrive",
		Long: `Feeds values to the single-pass EWMA detector in arrival order. Each
value is scored against the statistics of the values before it and only
then folded in. The first value produces no row.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := a.logger.Named("stream")

			sd, err := runner.NewStreamDetector(a.cfg.Detector)
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

			recorder := metrics.NewRecorder()
			if addr := a.cfg.Metrics.Addr; addr != "" {
				srv := serveMetrics(addr, recorder, logger)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			s := &runner.Stream{Detector: sd, Recorder: recorder, Logger: logger}
			summary, err := s.Run(ctx, r, w)
			if cerr := w.Close(); err == nil {
				err = cerr
			}

			logger.Info("stream finished",
				zap.Int("points", summary.Points),
				zap.Int("anomalies", summary.Anomalies),
			)
			return err
		},
	}
	a.addInputFlags(cmd, true)
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9102")
	return cmd
}

func serveMetrics(addr string, recorder *metrics.Recorder, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
