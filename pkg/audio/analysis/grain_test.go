package analysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

func TestNewGrainConfig(t *testing.T) {
	tests := []struct {
		name    string
		window  int
		overlap float64
		hop     int
		wantErr bool
	}{
		{"half overlap fraction", 512, 0.5, 256, false},
		{"no overlap", 512, 0, 512, false},
		{"divisor", 3087, 8, 385, false},
		{"divisor of one", 512, 1, 512, false},
		{"tiny window clamps hop", 2, 0.9, 1, false},
		{"zero window", 0, 0.5, 0, true},
		{"negative overlap", 512, -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGrainConfig(tt.window, tt.overlap)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, common.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hop, g.Hop)
		})
	}
}

func TestGrainCount(t *testing.T) {
	g, err := NewGrainConfig(512, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 175, g.Count(44100))
	assert.Equal(t, 3, g.Count(256))
	assert.Equal(t, 0, g.Count(0))
}

func TestParamsGrainPrefersMilliseconds(t *testing.T) {
	g, err := Params{WindowSize: 2048, WindowMS: 70, Overlap: 8}.Grain(44100)
	require.NoError(t, err)
	assert.Equal(t, 3087, g.WindowSize)
	assert.Equal(t, 385, g.Hop)

	g, err = Params{WindowSize: 2048, Overlap: 0.5}.Grain(44100)
	require.NoError(t, err)
	assert.Equal(t, 2048, g.WindowSize)
	assert.Equal(t, 1024, g.Hop)
}

func TestFrameZeroPadsBoundaries(t *testing.T) {
	g := GrainConfig{WindowSize: 4, Hop: 2}
	samples := []float64{1, 2, 3, 4, 5}

	assert.Equal(t, []float64{0, 0, 1, 2}, g.Frame(samples, 0, nil))
	assert.Equal(t, []float64{1, 2, 3, 4}, g.Frame(samples, 1, nil))
	assert.Equal(t, []float64{5, 0, 0, 0}, g.Frame(samples, 3, nil))
}

func TestTimes(t *testing.T) {
	times := Times(8, 4, 4)
	assert.Equal(t, []float64{0, 0.5, 1, 1.5}, times)
	assert.Empty(t, Times(8, 0, 4))
}

func TestTriangularWindow(t *testing.T) {
	assert.InDeltaSlice(t, []float64{1.0 / 3, 2.0 / 3, 1, 2.0 / 3, 1.0 / 3}, TriangularWindow(5), 1e-12)
	assert.InDeltaSlice(t, []float64{0.25, 0.75, 0.75, 0.25}, TriangularWindow(4), 1e-12)
	assert.Equal(t, []float64{1}, TriangularWindow(1))
}

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds([]string{"spcflatness", "F0", "fft", "rms", "rms"})
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindRMS, KindFFT, KindSpectralFlatness, KindF0}, kinds)

	_, err = ParseKinds([]string{"mfcc"})
	assert.True(t, errors.Is(err, common.ErrConfiguration))
}

func TestKindMetadata(t *testing.T) {
	assert.Equal(t, []Kind{KindFFT}, KindSpectralCrest.Requires())
	assert.Nil(t, KindPeak.Requires())
	assert.Equal(t, FamilyTonal, KindHarmonicRatio.Family())
	assert.True(t, KindFFT.Vector())
	assert.Equal(t, "harm_ratio", KindHarmonicRatio.String())
	assert.Len(t, AllKinds(), 15)
}
