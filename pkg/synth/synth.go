package synth

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/faiface/beep"
	"github.com/sourcegraph/conc/iter"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
	"github.com/RyanBlaney/sonido-mosaic/pkg/corpus"
	"github.com/RyanBlaney/sonido-mosaic/pkg/match"
	"github.com/RyanBlaney/sonido-mosaic/pkg/storage"
)

// Output is the synthesized counterpart of one target item
type Output struct {
	Name       string
	TargetItem int
	SampleRate int
	Samples    []float64
	Plan       []PlanEntry
	// Peak is the absolute peak before normalisation
	Peak float64

	MissingPitch     int
	MissingAmplitude int
}

// Save persists the output's synthesis plan under the plans group
func (o *Output) Save(store storage.Store) error {
	return savePlan(store, o.Name, o.TargetItem, o.SampleRate, o.Plan)
}

// Synthesizer rebuilds target items from matched source grains by overlap-add
type Synthesizer struct {
	opts   Options
	grain  analysis.GrainConfig
	window []float64
	gain   float64
	logger logging.Logger
}

// NewSynthesizer validates opts and precomputes the output grain window
func NewSynthesizer(opts Options, logger logging.Logger) (*Synthesizer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	grain, _ := opts.grain()
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Synthesizer{
		opts:   opts,
		grain:  grain,
		window: analysis.TriangularWindow(grain.WindowSize),
		gain:   OverlapAddGain(grain.WindowSize, grain.Hop),
		logger: logger.WithFields(logging.Fields{
			"component": "synthesizer",
		}),
	}, nil
}

// Grain returns the output grain configuration
func (s *Synthesizer) Grain() analysis.GrainConfig {
	return s.grain
}

// Synthesize renders one output per target item, in item order
func (s *Synthesizer) Synthesize(ctx context.Context, result *match.Result, source, target *corpus.Corpus) ([]*Output, error) {
	if s.opts.EnforceF0 {
		for _, c := range []*corpus.Corpus{source, target} {
			if !c.HasAnalysis(analysis.KindF0) {
				return nil, common.ConfigError(c.Role().String()+"/"+analysis.KindF0.String(),
					"pitch enforcement needs the f0 analysis")
			}
		}
	}

	outputs := make([]*Output, 0, len(target.Items()))
	for _, it := range target.Items() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.synthesizeItem(ctx, result, source, it)
		if err != nil {
			return nil, fmt.Errorf("synthesizing %s: %w", it.Name, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (s *Synthesizer) synthesizeItem(ctx context.Context, result *match.Result, source *corpus.Corpus, it *corpus.Item) (*Output, error) {
	start := time.Now()
	logger := s.logger.WithFields(logging.Fields{"item": it.Name})

	length := int(math.Round(it.Seconds() * float64(s.opts.SampleRate)))
	p := &planner{opts: s.opts, result: result, source: source, target: it}
	plan, err := p.plan(s.grain, length)
	if err != nil {
		return nil, err
	}
	if p.stats.missingAmplitude > 0 || p.stats.missingPitch > 0 {
		logger.Warn("Enforcement disabled for grains without a reference value", logging.Fields{
			"missing_amplitude": p.stats.missingAmplitude,
			"missing_pitch":     p.stats.missingPitch,
		})
	}
	if p.stats.unmatched > 0 {
		logger.Warn("Target grains without candidates left silent", logging.Fields{"grains": p.stats.unmatched})
	}

	samples, err := s.Render(ctx, source, plan, length)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Name:             it.Name,
		TargetItem:       it.ID,
		SampleRate:       s.opts.SampleRate,
		Samples:          samples,
		Plan:             plan,
		Peak:             peakOf(samples),
		MissingPitch:     p.stats.missingPitch,
		MissingAmplitude: p.stats.missingAmplitude,
	}
	if s.opts.Normalize {
		Normalize(out.Samples, s.opts.Ceiling)
	}

	logger.Debug("Item synthesized", logging.Fields{
		"grains":      len(plan),
		"samples":     len(samples),
		"peak":        out.Peak,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return out, nil
}

// Render overlap-adds the planned grains into a buffer of length samples.
// Grains are rendered concurrently into private buffers and summed in plan order.
func (s *Synthesizer) Render(ctx context.Context, source *corpus.Corpus, plan []PlanEntry, length int) ([]float64, error) {
	items := source.Items()
	for _, e := range plan {
		if e.Source.Item < 0 || e.Source.Item >= len(items) {
			return nil, common.ConfigError(fmt.Sprintf("source/%d", e.Source.Item), "planned source item does not exist")
		}
	}

	mapper := iter.Mapper[PlanEntry, []float64]{MaxGoroutines: s.opts.concurrency()}
	grains := mapper.Map(plan, func(e *PlanEntry) []float64 {
		if ctx.Err() != nil {
			return nil
		}
		return s.renderGrain(items[e.Source.Item], e)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]float64, length)
	for i, g := range grains {
		offset := s.grain.Start(plan[i].Grain)
		for k, v := range g {
			if pos := offset + k; pos >= 0 && pos < length {
				out[pos] += v
			}
		}
	}
	return out, nil
}

// renderGrain reads the source around the grain centre at the pitch-adjusted
// rate, converting to the output sample rate, then windows and scales it
func (s *Synthesizer) renderGrain(src *corpus.Item, e *PlanEntry) []float64 {
	w := s.grain.WindowSize
	ratio := e.PitchRatio * float64(src.SampleRate) / float64(s.opts.SampleRate)

	pos := e.SourceCentre - int(math.Round(float64(w)/2*ratio))
	reader := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := 0.0
			if pos >= 0 && pos < len(src.Samples) {
				v = src.Samples[pos]
			}
			samples[i] = [2]float64{v, v}
			pos++
		}
		return len(samples), true
	})

	var stream beep.Streamer = reader
	if ratio != 1 {
		stream = beep.ResampleRatio(s.opts.Quality, ratio, reader)
	}
	buf := make([][2]float64, w)
	for filled := 0; filled < w; {
		n, ok := stream.Stream(buf[filled:])
		filled += n
		if !ok {
			break
		}
	}

	out := make([]float64, w)
	scale := s.gain * e.AmplitudeRatio
	for i := range out {
		out[i] = buf[i][0] * s.window[i] * scale
	}
	return out
}

func peakOf(samples []float64) float64 {
	p := 0.0
	for _, v := range samples {
		p = math.Max(p, math.Abs(v))
	}
	return p
}

// Normalize scales samples in place so the absolute peak equals ceiling.
// Silent buffers are left untouched.
func Normalize(samples []float64, ceiling float64) {
	p := peakOf(samples)
	if p == 0 || math.IsNaN(p) {
		return
	}
	g := ceiling / p
	for i := range samples {
		samples[i] *= g
	}
}
