package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
	"github.com/RyanBlaney/sonido-mosaic/pkg/match"
	"github.com/RyanBlaney/sonido-mosaic/pkg/synth"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// Analysis run settings
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`

	// Per-kind analysis parameters, keyed by kind name
	Analyses map[string]analysis.Params `mapstructure:"analyses" yaml:"analyses"`

	// Descriptor weight per kind; zero disables a kind for matching
	MatcherWeightings map[string]float64 `mapstructure:"matcher_weightings" yaml:"matcher_weightings"`

	// Reduction policy per kind
	Reductions map[string]string `mapstructure:"reductions" yaml:"reductions"`

	Matcher     MatcherConfig     `mapstructure:"matcher" yaml:"matcher"`
	Synthesizer SynthesizerConfig `mapstructure:"synthesizer" yaml:"synthesizer"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// AnalysisConfig contains corpus analysis settings
type AnalysisConfig struct {
	Reanalyse      bool          `mapstructure:"reanalyse" yaml:"reanalyse"`
	Kinds          []string      `mapstructure:"kinds" yaml:"kinds"`
	Persist        bool          `mapstructure:"persist" yaml:"persist"`
	MaxConcurrency int           `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	StoreTimeout   time.Duration `mapstructure:"store_timeout" yaml:"store_timeout"`
}

// MatcherConfig contains matching settings
type MatcherConfig struct {
	Rematch       bool    `mapstructure:"rematch" yaml:"rematch"`
	GrainSize     float64 `mapstructure:"grain_size" yaml:"grain_size"`
	Overlap       float64 `mapstructure:"overlap" yaml:"overlap"`
	MatchQuantity int     `mapstructure:"match_quantity" yaml:"match_quantity"`
	Method        string  `mapstructure:"method" yaml:"method"`
}

// SynthesizerConfig contains synthesis settings
type SynthesizerConfig struct {
	EnforceIntensity       bool    `mapstructure:"enforce_intensity" yaml:"enforce_intensity"`
	EnfIntensityRatioLimit float64 `mapstructure:"enf_intensity_ratio_limit" yaml:"enf_intensity_ratio_limit"`
	EnforceF0              bool    `mapstructure:"enforce_f0" yaml:"enforce_f0"`
	EnfF0RatioLimit        float64 `mapstructure:"enf_f0_ratio_limit" yaml:"enf_f0_ratio_limit"`
	GrainSize              float64 `mapstructure:"grain_size" yaml:"grain_size"`
	Overlap                float64 `mapstructure:"overlap" yaml:"overlap"`
	Normalize              bool    `mapstructure:"normalize" yaml:"normalize"`
	NormalizeCeiling       float64 `mapstructure:"normalize_ceiling" yaml:"normalize_ceiling"`
	MatchQuantity          int     `mapstructure:"match_quantity" yaml:"match_quantity"`
	Selection              string  `mapstructure:"selection" yaml:"selection"`
	Seed                   uint64  `mapstructure:"seed" yaml:"seed"`
	Quality                int     `mapstructure:"quality" yaml:"quality"`
}

// OutputConfig contains output audio and report settings
type OutputConfig struct {
	SampleRate   int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	BitDepth     int    `mapstructure:"bit_depth" yaml:"bit_depth"`
	Channels     int    `mapstructure:"channels" yaml:"channels"`
	ReportFormat string `mapstructure:"report_format" yaml:"report_format"`
	ReportFile   string `mapstructure:"report_file" yaml:"report_file"`
}

// MetricsConfig contains the run metrics sink settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	LogPath string `mapstructure:"log_path" yaml:"log_path"`
}

// LoadConfig fills in defaults and decodes the configuration held by v
func LoadConfig(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	SetDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	return config, nil
}

// ValidateConfig validates the configuration of a full mosaic run
func ValidateConfig(config *Config) error {
	if err := ValidateAnalysisConfig(config); err != nil {
		return err
	}

	mopts, err := config.MatchOptions()
	if err != nil {
		return err
	}
	if err := mopts.Validate(); err != nil {
		return err
	}
	if err := config.SynthOptions().Validate(); err != nil {
		return err
	}

	switch config.Output.BitDepth {
	case 16, 24, 32:
	default:
		return common.ConfigError("output.bit_depth", fmt.Sprintf("unsupported bit depth %d", config.Output.BitDepth))
	}
	if config.Output.Channels < 1 {
		return common.ConfigError("output.channels", "must be at least 1")
	}
	return nil
}

// ValidateAnalysisConfig validates only what an analysis run reads. Matcher
// weightings and synthesizer settings are left alone.
func ValidateAnalysisConfig(config *Config) error {
	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return common.ConfigError("log_level", fmt.Sprintf("unknown log level %q", config.LogLevel))
	}

	if _, err := config.Kinds(); err != nil {
		return err
	}
	if _, err := config.Settings(); err != nil {
		return err
	}
	if config.Analysis.MaxConcurrency < 0 {
		return common.ConfigError("analysis.max_concurrency", "cannot be negative")
	}

	switch config.Output.ReportFormat {
	case "json", "yaml", "csv", "table":
	default:
		return common.ConfigError("output.report_format", fmt.Sprintf("unknown report format %q", config.Output.ReportFormat))
	}
	return nil
}

// Kinds returns every analysis the run needs: the requested kinds, the weighted
// kinds, f0 when pitch is enforced, and their dependencies
func (c *Config) Kinds() ([]analysis.Kind, error) {
	names := append([]string{}, c.Analysis.Kinds...)
	for name, w := range c.MatcherWeightings {
		if w != 0 {
			names = append(names, name)
		}
	}
	if c.Synthesizer.EnforceF0 {
		names = append(names, analysis.KindF0.String())
	}

	kinds, err := analysis.ParseKinds(names)
	if err != nil {
		return nil, fmt.Errorf("analysis.kinds: %w", err)
	}
	for _, k := range kinds {
		for _, dep := range k.Requires() {
			names = append(names, dep.String())
		}
	}
	return analysis.ParseKinds(names)
}

// Settings converts the per-kind parameters
func (c *Config) Settings() (analysis.Settings, error) {
	settings := analysis.Settings{Params: make(map[analysis.Kind]analysis.Params, len(c.Analyses))}
	for name, p := range c.Analyses {
		kind, err := analysis.ParseKind(name)
		if err != nil {
			return analysis.Settings{}, fmt.Errorf("analyses: %w", err)
		}
		if p.WindowSize <= 0 && p.WindowMS <= 0 {
			return analysis.Settings{}, common.ConfigError("analyses."+name, "window_size or window_ms must be positive")
		}
		if _, err := p.Grain(44100); err != nil {
			return analysis.Settings{}, fmt.Errorf("analyses.%s: %w", name, err)
		}
		settings.Params[kind] = p
	}
	return settings, nil
}

// MatchOptions converts the matcher settings, weightings and reductions
func (c *Config) MatchOptions() (match.Options, error) {
	opts := match.Options{
		Weights:        make(map[analysis.Kind]float64, len(c.MatcherWeightings)),
		Reductions:     make(map[analysis.Kind]analysis.Policy, len(c.Reductions)),
		K:              c.Matcher.MatchQuantity,
		GrainMS:        c.Matcher.GrainSize,
		Overlap:        c.Matcher.Overlap,
		Method:         match.Method(c.Matcher.Method),
		Rematch:        c.Matcher.Rematch,
		MaxConcurrency: c.Analysis.MaxConcurrency,
	}
	for name, w := range c.MatcherWeightings {
		kind, err := analysis.ParseKind(name)
		if err != nil {
			return match.Options{}, fmt.Errorf("matcher_weightings: %w", err)
		}
		opts.Weights[kind] = w
	}
	for name, p := range c.Reductions {
		kind, err := analysis.ParseKind(name)
		if err != nil {
			return match.Options{}, fmt.Errorf("reductions: %w", err)
		}
		policy, err := analysis.ParsePolicy(p)
		if err != nil {
			return match.Options{}, fmt.Errorf("reductions.%s: %w", name, err)
		}
		opts.Reductions[kind] = policy
	}
	return opts, nil
}

// SynthOptions converts the synthesizer and output settings
func (c *Config) SynthOptions() synth.Options {
	s := c.Synthesizer
	return synth.Options{
		GrainMS:          s.GrainSize,
		Overlap:          s.Overlap,
		SampleRate:       c.Output.SampleRate,
		MatchQuantity:    s.MatchQuantity,
		EnforceIntensity: s.EnforceIntensity,
		IntensityLimit:   s.EnfIntensityRatioLimit,
		EnforceF0:        s.EnforceF0,
		F0Limit:          s.EnfF0RatioLimit,
		Normalize:        s.Normalize,
		Ceiling:          s.NormalizeCeiling,
		Selection:        synth.Selection(s.Selection),
		Seed:             s.Seed,
		Quality:          s.Quality,
		MaxConcurrency:   c.Analysis.MaxConcurrency,
	}
}

// WriteSnapshot records the effective configuration as YAML so a run can be repeated
func (c *Config) WriteSnapshot(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
