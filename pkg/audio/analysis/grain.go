package analysis

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

// Params are the user-facing analysis parameters of one kind.
// WindowMS takes precedence over WindowSize when set.
type Params struct {
	WindowSize     int     `mapstructure:"window_size" json:"window_size" yaml:"window_size"`
	WindowMS       float64 `mapstructure:"window_ms" json:"window_ms" yaml:"window_ms"`
	Overlap        float64 `mapstructure:"overlap" json:"overlap" yaml:"overlap"`
	RatioThreshold float64 `mapstructure:"ratio_threshold" json:"ratio_threshold" yaml:"ratio_threshold"`
}

// Grain resolves the params into a sample-domain grain configuration
func (p Params) Grain(sampleRate int) (GrainConfig, error) {
	window := p.WindowSize
	if p.WindowMS > 0 {
		if sampleRate <= 0 {
			return GrainConfig{}, common.ConfigError("sample_rate", "sample rate must be positive")
		}
		window = int(math.Round(p.WindowMS * float64(sampleRate) / 1000))
	}
	return NewGrainConfig(window, p.Overlap)
}

// GrainConfig describes how a signal is cut into grains
type GrainConfig struct {
	WindowSize int `json:"window_size"`
	Hop        int `json:"hop"`
}

// NewGrainConfig derives the hop from an overlap value. Values in [0,1) are an
// overlap fraction, values >= 1 divide the window (8 means hop = W/8).
func NewGrainConfig(windowSize int, overlap float64) (GrainConfig, error) {
	if windowSize <= 0 {
		return GrainConfig{}, common.ConfigError("window_size", fmt.Sprintf("window size must be positive, got %d", windowSize))
	}
	if overlap < 0 || math.IsNaN(overlap) || math.IsInf(overlap, 0) {
		return GrainConfig{}, common.ConfigError("overlap", fmt.Sprintf("invalid overlap %v", overlap))
	}

	var hop int
	if overlap < 1 {
		hop = windowSize - int(math.Floor(overlap*float64(windowSize)))
	} else {
		hop = int(math.Floor(float64(windowSize) / overlap))
	}
	return GrainConfig{WindowSize: windowSize, Hop: max(1, hop)}, nil
}

// Count returns ceil((L + W) / H), the number of grains for a signal of length L
func (g GrainConfig) Count(length int) int {
	if length <= 0 {
		return 0
	}
	return (length + g.WindowSize + g.Hop - 1) / g.Hop
}

// Start returns the sample offset of grain n. Grains are centred on n*H, so the
// first grain starts half a window before the signal.
func (g GrainConfig) Start(n int) int {
	return n*g.Hop - g.WindowSize/2
}

// Frame copies grain n into dst (allocated when too small), zero-padding outside the signal
func (g GrainConfig) Frame(samples []float64, n int, dst []float64) []float64 {
	if cap(dst) < g.WindowSize {
		dst = make([]float64, g.WindowSize)
	}
	dst = dst[:g.WindowSize]
	start := g.Start(n)
	for i := range dst {
		j := start + i
		if j < 0 || j >= len(samples) {
			dst[i] = 0
		} else {
			dst[i] = samples[j]
		}
	}
	return dst
}

// Times returns the timestamp in seconds of each of n grains: (L/n)*i/sr
func Times(length, n, sampleRate int) []float64 {
	times := make([]float64, n)
	if n == 0 || sampleRate <= 0 {
		return times
	}
	step := float64(length) / float64(n)
	for i := range times {
		times[i] = step * float64(i) / float64(sampleRate)
	}
	return times
}

// TriangularWindow returns a triangular window of length m (non-zero endpoints)
func TriangularWindow(m int) []float64 {
	w := make([]float64, m)
	if m == 1 {
		w[0] = 1
		return w
	}
	fm := float64(m)
	for n := range w {
		fn := float64(n)
		if m%2 == 1 {
			w[n] = 1 - math.Abs(fn-(fm-1)/2)/((fm+1)/2)
		} else {
			w[n] = 1 - math.Abs(2*fn-fm+1)/fm
		}
	}
	return w
}

func applyWindow(frame, window []float64) {
	for i := range frame {
		frame[i] *= window[i]
	}
}

// DefaultParams returns the stock parameters of kind
func DefaultParams(kind Kind) Params {
	switch kind {
	case KindFFT:
		return Params{WindowSize: 2048, Overlap: 0.5}
	case KindF0:
		return Params{WindowSize: 2048, Overlap: 8, RatioThreshold: 0.1}
	case KindHarmonicRatio:
		return Params{WindowSize: 2048, Overlap: 8}
	default:
		return Params{WindowMS: 70, Overlap: 8}
	}
}

// Settings holds the per-kind parameters of a run. Spectral kinds derived from the
// FFT always use the FFT's parameters.
type Settings struct {
	Params map[Kind]Params
}

// For returns the parameters for kind, falling back to DefaultParams
func (s Settings) For(kind Kind) Params {
	if kind.Family() == FamilySpectral && kind != KindFFT {
		kind = KindFFT
	}
	if p, ok := s.Params[kind]; ok {
		return p
	}
	return DefaultParams(kind)
}
