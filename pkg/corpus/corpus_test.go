package corpus

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/codec"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

func writeTone(t *testing.T, path string, freq float64, n int) {
	t.Helper()
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/22050)
	}
	require.NoError(t, codec.WriteWAV(path, samples, 22050, 16, 1))
}

func testSettings() analysis.Settings {
	return analysis.Settings{Params: map[analysis.Kind]analysis.Params{
		analysis.KindRMS: {WindowSize: 512, Overlap: 0.5},
		analysis.KindFFT: {WindowSize: 1024, Overlap: 0.5},
	}}
}

func TestOpenOrdersItemsByPath(t *testing.T) {
	root := t.TempDir()
	writeTone(t, filepath.Join(root, "b.wav"), 220, 4410)
	writeTone(t, filepath.Join(root, "a", "z.wav"), 330, 4410)
	writeTone(t, filepath.Join(root, "data", "ignored.wav"), 440, 4410)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))

	c, err := Open(context.Background(), Options{Role: common.RoleSource, Root: root})
	require.NoError(t, err)
	defer c.Close()

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "a/z.wav", items[0].Name)
	assert.Equal(t, 0, items[0].ID)
	assert.Equal(t, "b.wav", items[1].Name)
	assert.Equal(t, 1, items[1].ID)
	assert.Equal(t, 22050, items[1].SampleRate)
	assert.InDelta(t, 0.4, c.Seconds(), 1e-9)
}

func TestOpenSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "one.wav")
	writeTone(t, path, 220, 2205)

	c, err := Open(context.Background(), Options{Role: common.RoleTarget, Root: path})
	require.NoError(t, err)
	defer c.Close()
	require.Len(t, c.Items(), 1)
	assert.Equal(t, "one.wav", c.Items()[0].Name)
}

func TestOpenEmptyCorpus(t *testing.T) {
	_, err := Open(context.Background(), Options{Role: common.RoleSource, Root: t.TempDir()})
	assert.True(t, errors.Is(err, common.ErrConfiguration))

	_, err = Open(context.Background(), Options{Role: common.RoleSource, Root: filepath.Join(t.TempDir(), "missing")})
	assert.True(t, errors.Is(err, common.ErrConfiguration))
}

func TestAnalysePersistsAndReuses(t *testing.T) {
	root := t.TempDir()
	writeTone(t, filepath.Join(root, "a.wav"), 220, 11025)
	writeTone(t, filepath.Join(root, "b.wav"), 440, 11025)
	kinds := []analysis.Kind{analysis.KindRMS, analysis.KindFFT, analysis.KindSpectralFlatness}
	opts := Options{Role: common.RoleSource, Root: root, Persist: true, MaxConcurrency: 2}

	c, err := Open(context.Background(), opts)
	require.NoError(t, err)
	require.NoError(t, c.Analyse(context.Background(), kinds, testSettings(), false))
	assert.Equal(t, int64(6), c.Cache().Stats().Computed)
	assert.True(t, c.HasAnalysis(analysis.KindSpectralFlatness))

	p, ok := c.Params(analysis.KindSpectralFlatness)
	require.True(t, ok)
	assert.Equal(t, 1024, p.WindowSize)
	require.NoError(t, c.Close())
	assert.FileExists(t, filepath.Join(root, "data", "analysis.db"))

	c, err = Open(context.Background(), opts)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Analyse(context.Background(), kinds, testSettings(), false))
	assert.Equal(t, int64(6), c.Cache().Stats().Hits)
	assert.Zero(t, c.Cache().Stats().Computed)

	require.NoError(t, c.Analyse(context.Background(), kinds[:1], testSettings(), true))
	assert.Equal(t, int64(2), c.Cache().Stats().Computed)
}

func TestAnalyseMissingDependency(t *testing.T) {
	item := NewItem(0, "x", make([]float64, 4096), 22050)
	c := New(common.RoleSource, []*Item{item}, nil, nil)

	err := c.Analyse(context.Background(), []analysis.Kind{analysis.KindSpectralCrest}, testSettings(), false)
	assert.True(t, errors.Is(err, common.ErrMissingDependency))
	assert.False(t, c.HasAnalysis(analysis.KindSpectralCrest))
}

func TestOutputCorpusWritesItems(t *testing.T) {
	dir := t.TempDir()
	out, err := NewOutput(dir, true, nil)
	require.NoError(t, err)
	defer out.Close()

	item, err := out.WriteItem("voice.flac", []float64{0, 0.5, -0.5}, 44100, 16, 1)
	require.NoError(t, err)
	assert.Equal(t, "voice.wav", item.Name)
	assert.FileExists(t, filepath.Join(dir, "audio", "voice.wav"))
	assert.FileExists(t, filepath.Join(dir, "data", "matches.db"))
	assert.Len(t, out.Items(), 1)
}

func TestOutputNamesKeepSubdirectoriesApart(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"voice.wav", "voice.wav"},
		{"a/x.wav", "a_x.wav"},
		{"b/x.flac", "b_x.wav"},
		{"./c/d/take.mp3", "c_d_take.wav"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outputName(tt.name))
		})
	}

	dir := t.TempDir()
	out, err := NewOutput(dir, false, nil)
	require.NoError(t, err)
	defer out.Close()

	_, err = out.WriteItem("a/x.wav", []float64{0.5, 0.5}, 44100, 16, 1)
	require.NoError(t, err)
	_, err = out.WriteItem("b/x.wav", []float64{-0.5}, 44100, 16, 1)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "audio", "a_x.wav"))
	assert.FileExists(t, filepath.Join(dir, "audio", "b_x.wav"))
}
