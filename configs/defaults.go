package configs

import (
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/match"
	"github.com/RyanBlaney/sonido-mosaic/pkg/synth"
)

// SetDefaults sets default configuration values for all components
func SetDefaults(v *viper.Viper) {
	// Application defaults
	v.SetDefault("verbose", false)
	v.SetDefault("log_level", "info")

	// Analysis defaults
	d := GetDefaultConfig()
	v.SetDefault("analysis.reanalyse", d.Analysis.Reanalyse)
	v.SetDefault("analysis.kinds", d.Analysis.Kinds)
	v.SetDefault("analysis.persist", d.Analysis.Persist)
	v.SetDefault("analysis.max_concurrency", d.Analysis.MaxConcurrency)
	v.SetDefault("analysis.store_timeout", d.Analysis.StoreTimeout)

	// Per-kind parameters are defaulted key by key so a partial override keeps the rest
	for name, p := range d.Analyses {
		prefix := "analyses." + name + "."
		if p.WindowSize > 0 {
			v.SetDefault(prefix+"window_size", p.WindowSize)
		}
		if p.WindowMS > 0 {
			v.SetDefault(prefix+"window_ms", p.WindowMS)
		}
		v.SetDefault(prefix+"overlap", p.Overlap)
		if p.RatioThreshold > 0 {
			v.SetDefault(prefix+"ratio_threshold", p.RatioThreshold)
		}
	}
	for name, w := range d.MatcherWeightings {
		v.SetDefault("matcher_weightings."+name, w)
	}
	for name, p := range d.Reductions {
		v.SetDefault("reductions."+name, p)
	}

	// Matcher defaults
	v.SetDefault("matcher.rematch", d.Matcher.Rematch)
	v.SetDefault("matcher.grain_size", d.Matcher.GrainSize)
	v.SetDefault("matcher.overlap", d.Matcher.Overlap)
	v.SetDefault("matcher.match_quantity", d.Matcher.MatchQuantity)
	v.SetDefault("matcher.method", d.Matcher.Method)

	// Synthesizer defaults
	v.SetDefault("synthesizer.enforce_intensity", d.Synthesizer.EnforceIntensity)
	v.SetDefault("synthesizer.enf_intensity_ratio_limit", d.Synthesizer.EnfIntensityRatioLimit)
	v.SetDefault("synthesizer.enforce_f0", d.Synthesizer.EnforceF0)
	v.SetDefault("synthesizer.enf_f0_ratio_limit", d.Synthesizer.EnfF0RatioLimit)
	v.SetDefault("synthesizer.grain_size", d.Synthesizer.GrainSize)
	v.SetDefault("synthesizer.overlap", d.Synthesizer.Overlap)
	v.SetDefault("synthesizer.normalize", d.Synthesizer.Normalize)
	v.SetDefault("synthesizer.normalize_ceiling", d.Synthesizer.NormalizeCeiling)
	v.SetDefault("synthesizer.match_quantity", d.Synthesizer.MatchQuantity)
	v.SetDefault("synthesizer.selection", d.Synthesizer.Selection)
	v.SetDefault("synthesizer.seed", d.Synthesizer.Seed)
	v.SetDefault("synthesizer.quality", d.Synthesizer.Quality)

	// Output defaults
	v.SetDefault("output.sample_rate", d.Output.SampleRate)
	v.SetDefault("output.bit_depth", d.Output.BitDepth)
	v.SetDefault("output.channels", d.Output.Channels)
	v.SetDefault("output.report_format", d.Output.ReportFormat)
	v.SetDefault("output.report_file", d.Output.ReportFile)

	// Metrics defaults
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.log_path", d.Metrics.LogPath)
}

// GetDefaultConfig returns a Config struct with all default values set
func GetDefaultConfig() *Config {
	return &Config{
		Verbose:  false,
		LogLevel: "info",

		Analysis:          GetDefaultAnalysisConfig(),
		Analyses:          DefaultAnalyses(),
		MatcherWeightings: DefaultWeightings(),
		Reductions:        DefaultReductions(),
		Matcher:           GetDefaultMatcherConfig(),
		Synthesizer:       GetDefaultSynthesizerConfig(),
		Output:            GetDefaultOutputConfig(),
		Metrics:           MetricsConfig{},
	}
}

// GetDefaultAnalysisConfig analyses every kind and persists results next to the corpus
func GetDefaultAnalysisConfig() AnalysisConfig {
	var kinds []string
	for _, k := range analysis.AllKinds() {
		kinds = append(kinds, k.String())
	}
	return AnalysisConfig{
		Reanalyse:      false,
		Kinds:          kinds,
		Persist:        true,
		MaxConcurrency: 0,
		StoreTimeout:   time.Second,
	}
}

// DefaultAnalyses returns the stock parameters of every kind
func DefaultAnalyses() map[string]analysis.Params {
	out := make(map[string]analysis.Params)
	for _, k := range analysis.AllKinds() {
		out[k.String()] = analysis.DefaultParams(k)
	}
	return out
}

// DefaultWeightings matches on pitch alone
func DefaultWeightings() map[string]float64 {
	out := make(map[string]float64)
	for _, k := range analysis.AllKinds() {
		if k.Vector() {
			continue
		}
		out[k.String()] = 0
	}
	out[analysis.KindF0.String()] = 1
	return out
}

// DefaultReductions returns the reduction policy of every scalar kind
func DefaultReductions() map[string]string {
	return map[string]string{
		analysis.KindF0.String():               string(analysis.PolicyLog2Median),
		analysis.KindRMS.String():              string(analysis.PolicyMean),
		analysis.KindZeroCrossing.String():     string(analysis.PolicyMean),
		analysis.KindPeak.String():             string(analysis.PolicyMean),
		analysis.KindCentroid.String():         string(analysis.PolicyMean),
		analysis.KindKurtosis.String():         string(analysis.PolicyMean),
		analysis.KindSkewness.String():         string(analysis.PolicyMean),
		analysis.KindVariance.String():         string(analysis.PolicyMean),
		analysis.KindHarmonicRatio.String():    string(analysis.PolicyMean),
		analysis.KindSpectralCentroid.String(): string(analysis.PolicyMedian),
		analysis.KindSpectralSpread.String():   string(analysis.PolicyMedian),
		analysis.KindSpectralFlux.String():     string(analysis.PolicyMedian),
		analysis.KindSpectralCrest.String():    string(analysis.PolicyMedian),
		analysis.KindSpectralFlatness.String(): string(analysis.PolicyMedian),
	}
}

// GetDefaultMatcherConfig returns default matching settings
func GetDefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		Rematch:       false,
		GrainSize:     70,
		Overlap:       8,
		MatchQuantity: 20,
		Method:        string(match.MethodKDTree),
	}
}

// GetDefaultSynthesizerConfig returns default synthesis settings
func GetDefaultSynthesizerConfig() SynthesizerConfig {
	return SynthesizerConfig{
		EnforceIntensity:       true,
		EnfIntensityRatioLimit: 25,
		EnforceF0:              true,
		EnfF0RatioLimit:        100,
		GrainSize:              70,
		Overlap:                8,
		Normalize:              true,
		NormalizeCeiling:       synth.DefaultCeiling,
		MatchQuantity:          20,
		Selection:              string(synth.SelectClosest),
		Seed:                   0,
		Quality:                4,
	}
}

// GetDefaultOutputConfig returns default output settings
func GetDefaultOutputConfig() OutputConfig {
	return OutputConfig{
		SampleRate:   44100,
		BitDepth:     16,
		Channels:     1,
		ReportFormat: "table",
	}
}
