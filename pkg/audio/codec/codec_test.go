package codec

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

func TestWriteReadWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tone.wav")
	samples := make([]float64, 4410)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/44100)
	}

	require.NoError(t, WriteWAV(path, samples, 44100, 16, 1))

	a, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, a.SampleRate)
	assert.Equal(t, 16, a.BitDepth)
	assert.Equal(t, "wav", a.Format)
	require.Len(t, a.Samples, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], a.Samples[i], 1.0/16384)
	}
	assert.InDelta(t, 0.1, a.Duration().Seconds(), 1e-9)
}

func TestWriteWAVStereoDuplicatesAndMixesBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	require.NoError(t, WriteWAV(path, []float64{0.25, -0.25, 1.5, math.NaN()}, 22050, 24, 2))

	a, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Channels)
	require.Len(t, a.Samples, 4)
	assert.InDelta(t, 0.25, a.Samples[0], 1e-6)
	assert.InDelta(t, -0.25, a.Samples[1], 1e-6)
	assert.InDelta(t, 1.0, a.Samples[2], 1e-6)
	assert.InDelta(t, 0.0, a.Samples[3], 1e-6)
}

func TestWriteWAVLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteWAV(filepath.Join(dir, "a.wav"), []float64{0}, 8000, 16, 1))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.wav", entries[0].Name())
}

func TestWriteWAVRejectsBadArguments(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, WriteWAV(filepath.Join(dir, "a.wav"), nil, 0, 16, 1))
	assert.Error(t, WriteWAV(filepath.Join(dir, "a.wav"), nil, 44100, 12, 1))
}

func TestReadUnsupported(t *testing.T) {
	_, err := Read("notes.txt")
	assert.True(t, errors.Is(err, common.ErrDecoding))

	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("not riff"), 0644))
	_, err = Read(path)
	assert.True(t, errors.Is(err, common.ErrDecoding))
}

func TestSupported(t *testing.T) {
	for _, p := range []string{"a.wav", "b.AIFF", "c.mp3", "d.ogg", "e.flac"} {
		assert.True(t, Supported(p), p)
	}
	assert.False(t, Supported("f.m4a"))
}

func TestMixdown(t *testing.T) {
	assert.Equal(t, []float64{0.5, 0}, mixdown([]float64{1, 0, 0.5, -0.5}, 2))
	assert.Equal(t, []float64{1, 2}, mixdown([]float64{1, 2}, 1))
}
