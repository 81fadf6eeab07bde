// Package config loads tsanomaly settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/hed1ad/tsanomaly/pkg/detectors"
)

// EnvPrefix prefixes environment overrides: TSA_DETECTOR_ALPHA=0.2.
const EnvPrefix = "TSA"

// Detector kinds.
const (
	KindEWMA  = "ewma"
	KindPEWMA = "pewma"
)

var (
	validate    = validator.New()
	envReplacer = strings.NewReplacer(".", "_")
)

// Config is the resolved application configuration.
type Config struct {
	Detector Detector `mapstructure:"detector"`
	Input    Input    `mapstructure:"input"`
	Logging  Logging  `mapstructure:"logging"`
	Metrics  Metrics  `mapstructure:"metrics"`
}

// Detector selects a batch estimator and its hyperparameters.
type Detector struct {
	Kind       string  `mapstructure:"kind" default:"ewma" validate:"oneof=ewma pewma"`
	Alpha      float64 `mapstructure:"alpha" default:"0.5" validate:"gt=0,lte=1"`
	Beta       float64 `mapstructure:"beta" default:"0.5" validate:"gte=0,lte=1"`
	K          float64 `mapstructure:"k" default:"3" validate:"gte=0"`
	MinPeriods int     `mapstructure:"min_periods" default:"1" validate:"gte=0"`
	Adjust     *bool   `mapstructure:"adjust" default:"true"`
}

// Params converts the settings to estimator hyperparameters.
func (d Detector) Params() detectors.Params {
	adjust := true
	if d.Adjust != nil {
		adjust = *d.Adjust
	}
	return detectors.Params{
		Alpha:      d.Alpha,
		Beta:       d.Beta,
		K:          d.K,
		MinPeriods: d.MinPeriods,
		Adjust:     adjust,
	}
}

// Input describes how a CSV series is read.
type Input struct {
	Column      string `mapstructure:"column"`
	ColumnIndex int    `mapstructure:"column_index" validate:"gte=0"`
	Header      *bool  `mapstructure:"header" default:"true"`
}

// HasHeader reports whether the input has a header row.
func (i Input) HasHeader() bool {
	return i.Header == nil || *i.Header
}

// Logging configures the zap logger.
type Logging struct {
	Level  string `mapstructure:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" default:"console" validate:"oneof=json console"`
}

// Metrics configures the Prometheus endpoint. Empty Addr disables it.
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from configPath, or from tsanomaly.yaml in the
// usual locations when configPath is empty. A missing default file is not
// an error. Keys may be overridden by TSA_* environment variables.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("tsanomaly")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.tsanomaly")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}

// Decode resolves v into a Config: struct defaults first, then values from
// v, then validation.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	// AutomaticEnv only answers keys viper already knows about.
	for _, key := range knownKeys {
		_ = v.BindEnv(key)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the estimator hyperparameters.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Detector.Params().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

var knownKeys = []string{
	"detector.kind",
	"detector.alpha",
	"detector.beta",
	"detector.k",
	"detector.min_periods",
	"detector.adjust",
	"input.column",
	"input.column_index",
	"input.header",
	"logging.level",
	"logging.format",
	"metrics.addr",
}
