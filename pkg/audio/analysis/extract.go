package analysis

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

// extractorVersion is bumped whenever an extractor's output changes, so cached
// analyses from older builds are recomputed
const extractorVersion = 1

// Input is everything an extractor sees for one item
type Input struct {
	Item       string
	Samples    []float64
	SampleRate int
	Params     Params
	Upstream   map[Kind]*Result
}

// Config is the canonical description of how a result was produced. Two results
// with equal configs are interchangeable.
type Config struct {
	Kind           string  `json:"kind"`
	Version        int     `json:"version"`
	SampleRate     int     `json:"sample_rate"`
	Samples        int     `json:"samples"`
	WindowSize     int     `json:"window_size"`
	Hop            int     `json:"hop"`
	RatioThreshold float64 `json:"ratio_threshold,omitempty"`
}

// Fingerprint serializes the config deterministically
func (c Config) Fingerprint() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// Grain returns the grain configuration recorded in c
func (c Config) Grain() GrainConfig {
	return GrainConfig{WindowSize: c.WindowSize, Hop: c.Hop}
}

// Result is a time-indexed feature series. Frames[i] holds the value(s) of grain i
// and Times[i] its timestamp in seconds. Undefined values are NaN.
type Result struct {
	Kind   Kind
	Frames [][]float64
	Times  []float64
	Config Config
}

// Len returns the number of grains
func (r *Result) Len() int {
	return len(r.Frames)
}

// Dims returns the width of each frame
func (r *Result) Dims() int {
	if len(r.Frames) == 0 {
		return 0
	}
	return len(r.Frames[0])
}

// Undefined counts the grains whose value is NaN
func (r *Result) Undefined() int {
	n := 0
	for _, f := range r.Frames {
		for _, v := range f {
			if math.IsNaN(v) {
				n++
				break
			}
		}
	}
	return n
}

// Extractor computes one feature kind. Implementations are stateless so a
// single value can be shared between goroutines.
type Extractor interface {
	Kind() Kind
	Requires() []Kind
	Config(in Input) (Config, error)
	Extract(in Input) (*Result, error)
}

type kindExtractor struct {
	kind Kind
}

// NewExtractor returns the extractor for kind
func NewExtractor(kind Kind) (Extractor, error) {
	if !kind.Valid() {
		return nil, common.ConfigError(kind.String(), "unknown analysis kind")
	}
	return kindExtractor{kind: kind}, nil
}

func (e kindExtractor) Kind() Kind       { return e.kind }
func (e kindExtractor) Requires() []Kind { return e.kind.Requires() }

func (e kindExtractor) Config(in Input) (Config, error) {
	key := in.Item + "/" + e.kind.String()

	// Derived kinds inherit the framing of the analysis they are computed from
	for _, dep := range e.kind.Requires() {
		up, ok := in.Upstream[dep]
		if !ok || up == nil {
			return Config{}, common.NewMosaicError(common.ErrCodeMissingDependency, key,
				fmt.Sprintf("requires %s analysis", dep), nil)
		}
		cfg := up.Config
		cfg.Kind = e.kind.String()
		cfg.Version = extractorVersion
		return cfg, nil
	}

	grain, err := in.Params.Grain(in.SampleRate)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", key, err)
	}
	cfg := Config{
		Kind:       e.kind.String(),
		Version:    extractorVersion,
		SampleRate: in.SampleRate,
		Samples:    len(in.Samples),
		WindowSize: grain.WindowSize,
		Hop:        grain.Hop,
	}
	if e.kind == KindF0 {
		cfg.RatioThreshold = in.Params.RatioThreshold
	}
	return cfg, nil
}

func (e kindExtractor) Extract(in Input) (*Result, error) {
	cfg, err := e.Config(in)
	if err != nil {
		return nil, err
	}

	var frames [][]float64
	switch e.kind.Family() {
	case FamilySpectral:
		if e.kind == KindFFT {
			frames = framewise(in.Samples, cfg, magnitudeSpectrum)
		} else {
			frames, err = spectralFrames(e.kind, in.Upstream[KindFFT], in.SampleRate)
		}
	case FamilyTonal:
		frames = tonalFrames(e.kind, in.Samples, in.SampleRate, cfg)
	default:
		fn := temporalFeature(e.kind, in.SampleRate)
		frames = framewise(in.Samples, cfg, func(grain []float64) []float64 {
			return []float64{fn(grain)}
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", in.Item, e.kind, err)
	}

	var times []float64
	if up, ok := in.Upstream[KindFFT]; ok && e.kind.Family() == FamilySpectral && e.kind != KindFFT {
		times = append([]float64(nil), up.Times...)
	} else {
		times = Times(len(in.Samples), len(frames), in.SampleRate)
	}

	return &Result{Kind: e.kind, Frames: frames, Times: times, Config: cfg}, nil
}

// Extract runs the extractor for kind over in
func Extract(kind Kind, in Input) (*Result, error) {
	ex, err := NewExtractor(kind)
	if err != nil {
		return nil, err
	}
	return ex.Extract(in)
}

// framewise windows every grain of the signal and maps it through fn
func framewise(samples []float64, cfg Config, fn func(grain []float64) []float64) [][]float64 {
	grain := cfg.Grain()
	n := grain.Count(len(samples))
	window := TriangularWindow(grain.WindowSize)
	frames := make([][]float64, n)
	buf := make([]float64, grain.WindowSize)
	for i := range n {
		buf = grain.Frame(samples, i, buf)
		applyWindow(buf, window)
		frames[i] = fn(buf)
	}
	return frames
}

func decodeConfig(s string, cfg *Config) error {
	if s == "" {
		return fmt.Errorf("missing config attribute")
	}
	return json.Unmarshal([]byte(s), cfg)
}
