package synth

import (
	"fmt"
	"math"
	"runtime"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

// Selection picks one source grain among a target grain's eligible candidates
type Selection string

const (
	SelectClosest Selection = "closest"
	SelectSeeded  Selection = "seeded"
)

// DefaultCeiling is just under full scale
const DefaultCeiling = 0.999

// Options configure synthesis. They are immutable once passed to NewSynthesizer.
type Options struct {
	GrainMS          float64
	Overlap          float64
	SampleRate       int
	MatchQuantity    int
	EnforceIntensity bool
	IntensityLimit   float64
	EnforceF0        bool
	F0Limit          float64
	Normalize        bool
	Ceiling          float64
	Selection        Selection
	Seed             uint64
	// Quality is the interpolation quality of the resampler, 1 to 64
	Quality        int
	MaxConcurrency int
}

// Validate checks the options
func (o Options) Validate() error {
	if o.SampleRate <= 0 {
		return common.ConfigError("output.sample_rate", fmt.Sprintf("must be positive, got %d", o.SampleRate))
	}
	if o.GrainMS <= 0 {
		return common.ConfigError("synthesizer.grain_size", fmt.Sprintf("must be positive, got %v", o.GrainMS))
	}
	if _, err := o.grain(); err != nil {
		return err
	}
	if o.MatchQuantity < 1 {
		return common.ConfigError("synthesizer.match_quantity", "must be at least 1")
	}
	if o.EnforceIntensity && !(o.IntensityLimit >= 1) {
		return common.ConfigError("synthesizer.enf_intensity_ratio_limit", fmt.Sprintf("must be >= 1, got %v", o.IntensityLimit))
	}
	if o.EnforceF0 && !(o.F0Limit >= 1) {
		return common.ConfigError("synthesizer.enf_f0_ratio_limit", fmt.Sprintf("must be >= 1, got %v", o.F0Limit))
	}
	if o.Normalize && !(o.Ceiling > 0 && o.Ceiling <= 1) {
		return common.ConfigError("synthesizer.normalize_ceiling", fmt.Sprintf("must be in (0, 1], got %v", o.Ceiling))
	}
	switch o.Selection {
	case SelectClosest, SelectSeeded:
	default:
		return common.ConfigError("synthesizer.selection", fmt.Sprintf("unknown selection %q", o.Selection))
	}
	if o.Quality < 1 || o.Quality > 64 {
		return common.ConfigError("synthesizer.quality", fmt.Sprintf("must be in [1, 64], got %d", o.Quality))
	}
	return nil
}

// grain is the output grain configuration
func (o Options) grain() (analysis.GrainConfig, error) {
	return analysis.Params{WindowMS: o.GrainMS, Overlap: o.Overlap}.Grain(o.SampleRate)
}

func (o Options) concurrency() int {
	if o.MaxConcurrency > 0 {
		return o.MaxConcurrency
	}
	return runtime.NumCPU()
}

// ClampRatio limits ratio to [1/limit, limit]. Undefined, negative or infinite
// ratios are treated as missing and return 1 with ok false.
func ClampRatio(ratio, limit float64) (float64, bool) {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio < 0 {
		return 1, false
	}
	if limit < 1 {
		limit = 1
	}
	return math.Min(math.Max(ratio, 1/limit), limit), true
}

// OverlapAddGain scales triangular grains of window w placed every hop samples
// so that their sum stays near unity
func OverlapAddGain(window, hop int) float64 {
	return 2 * float64(hop) / float64(window)
}
