package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/tsanomaly/internal/config"
	"github.com/hed1ad/tsanomaly/pkg/detectors"
	tsio "github.com/hed1ad/tsanomaly/pkg/io"
	"github.com/hed1ad/tsanomaly/pkg/io/csv"
	"github.com/hed1ad/tsanomaly/pkg/io/pcap"
)

// app holds state shared by subcommands once flags and config are resolved.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger

	input  string
	pcap   string
	iface  string
	metric string
	output string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "tsanomaly",
		Short:         "Trend-band anomaly detection for univariate time series",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	defaults := detectors.DefaultParams()
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to configuration file")
	flags.String("detector", config.KindEWMA, "batch detector: ewma or pewma")
	flags.Float64("alpha", defaults.Alpha, "weight of the most recent value, in (0, 1]")
	flags.Float64("beta", defaults.Beta, "outlier probability weight, in [0, 1] (pewma)")
	flags.Float64("k", defaults.K, "band half-width in standard deviations")
	flags.Int("min-periods", defaults.MinPeriods, "training period length")
	flags.Bool("adjust", defaults.Adjust, "renormalize EWMA weights over the available history (ewma)")
	flags.String("column", "", "CSV column name holding the series")
	flags.Int("column-index", 0, "CSV column position when no name is given")
	flags.Bool("header", true, "CSV input has a header row")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "console", "log format: json or console")

	cmd.AddCommand(
		newDetectCmd(a),
		newStreamCmd(a),
		newTrainCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// flagBindings maps config keys to the flags that override them.
var flagBindings = map[string]string{
	"detector.kind":        "detector",
	"detector.alpha":       "alpha",
	"detector.beta":        "beta",
	"detector.k":           "k",
	"detector.min_periods": "min-periods",
	"detector.adjust":      "adjust",
	"input.column":         "column",
	"input.column_index":   "column-index",
	"input.header":         "header",
	"logging.level":        "log-level",
	"logging.format":       "log-format",
	"metrics.addr":         "metrics-addr",
}

// init loads the config file, overlays environment and flags, and builds
// the logger. Flags left at their defaults do not override file or env.
func (a *app) init(cmd *cobra.Command) error {
	v, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	for key, name := range flagBindings {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	a.logger = logger

	if f := v.ConfigFileUsed(); f != "" {
		logger.Debug("configuration loaded", zap.String("source", f))
	}
	logger.Debug("detector configured",
		zap.String("command", cmd.Name()),
		zap.String("kind", cfg.Detector.Kind),
		zap.Float64("alpha", cfg.Detector.Alpha),
		zap.Float64("beta", cfg.Detector.Beta),
		zap.Float64("k", cfg.Detector.K),
		zap.Int("min_periods", cfg.Detector.MinPeriods),
	)
	return nil
}

// addInputFlags registers the series source flags.
func (a *app) addInputFlags(cmd *cobra.Command, live bool) {
	cmd.Flags().StringVarP(&a.input, "input", "i", "-", "CSV input file, - for stdin")
	cmd.Flags().StringVar(&a.pcap, "pcap", "", "read packets from a capture file instead of CSV")
	cmd.Flags().StringVar(&a.metric, "metric", string(pcap.PacketSize), "packet metric: packet_size, inter_arrival, payload_size, ip_ttl")
	if live {
		cmd.Flags().StringVar(&a.iface, "iface", "", "capture live packets from a network interface")
	}
	cmd.Flags().StringVarP(&a.output, "output", "o", "-", "CSV output file, - for stdout")
}

// openReader opens the configured series source.
func (a *app) openReader() (tsio.Reader, error) {
	if a.pcap != "" || a.iface != "" {
		metric, err := pcap.ParseMetric(a.metric)
		if err != nil {
			return nil, err
		}
		if a.iface != "" {
			return pcap.NewLiveReader(a.iface, metric, 65535, true, time.Second)
		}
		return pcap.NewFileReader(a.pcap, metric)
	}

	opts := []csv.Option{csv.WithHeader(a.cfg.Input.HasHeader())}
	if a.cfg.Input.Column != "" {
		opts = append(opts, csv.WithColumn(a.cfg.Input.Column))
	} else {
		opts = append(opts, csv.WithColumnIndex(a.cfg.Input.ColumnIndex))
	}

	if a.input == "-" || a.input == "" {
		return csv.NewStreamReader(os.Stdin, opts...)
	}
	return csv.NewReader(a.input, opts...)
}

// openWriter opens the configured result sink.
func (a *app) openWriter() (*csv.Writer, error) {
	if a.output == "-" || a.output == "" {
		return csv.NewStreamWriter(os.Stdout), nil
	}
	return csv.NewWriter(a.output)
}
