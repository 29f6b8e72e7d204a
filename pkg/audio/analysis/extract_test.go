package analysis

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

const testRate = 44100

func TestPeakOfSine(t *testing.T) {
	in := Input{
		Item:       "sine.wav",
		Samples:    sine(440, 0.5, testRate, testRate),
		SampleRate: testRate,
		Params:     Params{WindowSize: 512, Overlap: 0.5},
	}

	res, err := Extract(KindPeak, in)
	require.NoError(t, err)
	require.Equal(t, 175, res.Len())
	require.Len(t, res.Times, res.Len())

	for i := 2; i < res.Len()-3; i++ {
		p := res.Frames[i][0]
		assert.LessOrEqual(t, p, 0.5)
		assert.InDelta(t, 0.5, p, 0.06, "grain %d", i)
	}
	for i := 1; i < len(res.Times); i++ {
		assert.Greater(t, res.Times[i], res.Times[i-1])
	}
}

func TestTemporalFeaturesOfSilence(t *testing.T) {
	in := Input{Item: "silence.wav", Samples: make([]float64, 4096), SampleRate: testRate,
		Params: Params{WindowSize: 512, Overlap: 0.5}}

	peakRes, err := Extract(KindPeak, in)
	require.NoError(t, err)
	rmsRes, err := Extract(KindRMS, in)
	require.NoError(t, err)
	kurt, err := Extract(KindKurtosis, in)
	require.NoError(t, err)

	for i := range peakRes.Frames {
		assert.Zero(t, peakRes.Frames[i][0])
		assert.Zero(t, rmsRes.Frames[i][0])
		assert.True(t, math.IsNaN(kurt.Frames[i][0]))
	}
}

func TestSpectralFlatnessRequiresFFT(t *testing.T) {
	in := Input{Item: "a.wav", Samples: noise(1, 0.5, 8192), SampleRate: testRate,
		Params: Params{WindowSize: 1024, Overlap: 0.5}}

	_, err := Extract(KindSpectralFlatness, in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrMissingDependency))

	var me *common.MosaicError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "a.wav/spcflatness", me.Key)
}

func TestSpectralFlatnessSilenceIsUndefined(t *testing.T) {
	in := Input{Item: "silence.wav", Samples: make([]float64, 8192), SampleRate: testRate,
		Params: Params{WindowSize: 1024, Overlap: 0.5}}

	spectrum, err := Extract(KindFFT, in)
	require.NoError(t, err)
	in.Upstream = map[Kind]*Result{KindFFT: spectrum}

	flat, err := Extract(KindSpectralFlatness, in)
	require.NoError(t, err)
	require.Equal(t, spectrum.Len(), flat.Len())
	assert.Equal(t, spectrum.Times, flat.Times)
	for _, f := range flat.Frames {
		assert.True(t, math.IsNaN(f[0]))
	}
	assert.Equal(t, flat.Len(), flat.Undefined())
}

func TestSpectralFlatnessNoiseAboveTone(t *testing.T) {
	params := Params{WindowSize: 1024, Overlap: 0.5}

	flatness := func(samples []float64) float64 {
		in := Input{Item: "x", Samples: samples, SampleRate: testRate, Params: params}
		spectrum, err := Extract(KindFFT, in)
		require.NoError(t, err)
		in.Upstream = map[Kind]*Result{KindFFT: spectrum}
		res, err := Extract(KindSpectralFlatness, in)
		require.NoError(t, err)
		return res.Frames[res.Len()/2][0]
	}

	noisy := flatness(noise(7, 0.5, 16384))
	tone := flatness(sine(1000, 0.5, testRate, 16384))
	assert.Greater(t, noisy, tone)
	assert.LessOrEqual(t, noisy, 1.0)
}

func TestSpectralFlatnessValues(t *testing.T) {
	assert.InDelta(t, 1.0, SpectralFlatness([]float64{2, 2, 2, 2}), 1e-12)
	assert.Zero(t, SpectralFlatness([]float64{0, 1, 2}))
	assert.True(t, math.IsNaN(SpectralFlatness([]float64{0, 0})))
	assert.InDelta(t, math.Sqrt(4)/2.5, SpectralFlatness([]float64{1, 4}), 1e-12)
}

func TestFFTFrameShape(t *testing.T) {
	in := Input{Item: "a", Samples: sine(1000, 0.5, testRate, 8192), SampleRate: testRate,
		Params: Params{WindowSize: 1024, Overlap: 0.5}}
	res, err := Extract(KindFFT, in)
	require.NoError(t, err)
	assert.Equal(t, 513, res.Dims())

	// 1 kHz sits at bin 1000*1024/44100 ~ 23
	mid := res.Frames[res.Len()/2]
	best := 0
	for k := range mid {
		if mid[k] > mid[best] {
			best = k
		}
	}
	assert.InDelta(t, 23, best, 1)
}

func TestF0ThresholdAndSilence(t *testing.T) {
	in := Input{Item: "a", Samples: make([]float64, 8192), SampleRate: testRate,
		Params: Params{WindowSize: 2048, Overlap: 8, RatioThreshold: 0.1}}
	res, err := Extract(KindF0, in)
	require.NoError(t, err)
	assert.Equal(t, res.Len(), res.Undefined())
	assert.Equal(t, 0.1, res.Config.RatioThreshold)
}

func TestExtractorConfigDerivedFromUpstream(t *testing.T) {
	in := Input{Item: "a", Samples: make([]float64, 4096), SampleRate: testRate,
		Params: Params{WindowSize: 1024, Overlap: 0.5}}
	spectrum, err := Extract(KindFFT, in)
	require.NoError(t, err)

	ex, err := NewExtractor(KindSpectralCentroid)
	require.NoError(t, err)
	in.Params = Params{WindowSize: 64, Overlap: 0}
	in.Upstream = map[Kind]*Result{KindFFT: spectrum}

	cfg, err := ex.Config(in)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.WindowSize)
	assert.Equal(t, 512, cfg.Hop)
	assert.Equal(t, "spccntr", cfg.Kind)
}

func TestEveryKindFollowsGrainFraming(t *testing.T) {
	for _, window := range []int{64, 512, 2048} {
		for _, overlap := range []float64{0, 0.5, 0.875} {
			for _, length := range []int{1, 63, 1000, 8192} {
				t.Run(fmt.Sprintf("w%d_o%g_l%d", window, overlap, length), func(t *testing.T) {
					grain, err := NewGrainConfig(window, overlap)
					require.NoError(t, err)
					want := grain.Count(length)

					in := Input{Item: "noise.wav", Samples: noise(uint64(length), 0.5, length), SampleRate: testRate,
						Params: Params{WindowSize: window, Overlap: overlap, RatioThreshold: 0.1}}
					spectrum, err := Extract(KindFFT, in)
					require.NoError(t, err)
					in.Upstream = map[Kind]*Result{KindFFT: spectrum}

					for _, kind := range AllKinds() {
						res, err := Extract(kind, in)
						require.NoError(t, err, kind.String())
						assert.Equal(t, want, res.Len(), kind.String())
						require.Len(t, res.Times, res.Len(), kind.String())
						for i := 1; i < len(res.Times); i++ {
							require.GreaterOrEqual(t, res.Times[i], res.Times[i-1], "%s grain %d", kind, i)
						}
					}
				})
			}
		}
	}
}
