package app

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/codec"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

const testRate = 8000

func writeTone(t *testing.T, path string, freq, amp float64) {
	t.Helper()
	samples := make([]float64, testRate/2)
	for i := range samples {
		samples[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	require.NoError(t, codec.WriteWAV(path, samples, testRate, 16, 1))
}

type MosaicAppTestSuite struct {
	suite.Suite
	source string
	target string
	output string
}

func (s *MosaicAppTestSuite) SetupTest() {
	root := s.T().TempDir()
	s.source = filepath.Join(root, "source")
	s.target = filepath.Join(root, "target")
	s.output = filepath.Join(root, "output")

	writeTone(s.T(), filepath.Join(s.source, "low.wav"), 220, 0.2)
	writeTone(s.T(), filepath.Join(s.source, "high.wav"), 330, 0.6)
	writeTone(s.T(), filepath.Join(s.target, "voice.wav"), 330, 0.5)
}

func (s *MosaicAppTestSuite) newContext() *Context {
	off := false
	return &Context{
		Source:           s.source,
		Target:           s.target,
		Output:           s.output,
		Analyse:          []string{"rms"},
		Weights:          []string{"f0=0", "rms=1"},
		EnforceF0:        &off,
		ReportFormat:     "json",
		ReportFile:       filepath.Join(s.output, "report.json"),
		Viper:            viper.New(),
		EnforceIntensity: nil,
	}
}

func (s *MosaicAppTestSuite) TestMosaicWritesOutputs() {
	app, err := NewMosaicApp(s.newContext())
	s.Require().NoError(err)

	report, err := app.Mosaic(context.Background())
	s.Require().NoError(err)

	s.Equal([]string{"rms"}, report.Kinds)
	s.Require().NotNil(report.Source)
	s.Equal(2, report.Source.Items)
	s.Equal(int64(2), report.Source.Cache.Computed)
	s.Require().NotNil(report.Target)
	s.Equal(1, report.Target.Items)
	s.NotEmpty(report.MatchKey)
	s.Positive(report.MatchedGrains)

	s.Require().Len(report.Outputs, 1)
	out := report.Outputs[0]
	s.Equal("voice.wav", out.Name)
	s.InDelta(0.5, out.Seconds, 1e-9)
	s.Positive(out.Grains)

	a, err := codec.Read(filepath.Join(s.output, "audio", "voice.wav"))
	s.Require().NoError(err)
	s.Equal(44100, a.SampleRate)
	s.Len(a.Samples, 22050)

	s.FileExists(filepath.Join(s.output, "data", "matches.db"))
	s.FileExists(filepath.Join(s.output, "data", snapshotName))
	s.FileExists(filepath.Join(s.source, "data", "analysis.db"))
	s.FileExists(filepath.Join(s.target, "data", "analysis.db"))
}

func (s *MosaicAppTestSuite) TestSecondRunReusesAnalyses() {
	app, err := NewMosaicApp(s.newContext())
	s.Require().NoError(err)
	_, err = app.Mosaic(context.Background())
	s.Require().NoError(err)

	app, err = NewMosaicApp(s.newContext())
	s.Require().NoError(err)
	report, err := app.Mosaic(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(2), report.Source.Cache.Hits)
	s.Equal(int64(0), report.Source.Cache.Computed)
	s.Equal(int64(1), report.Target.Cache.Hits)

	ctx := s.newContext()
	ctx.Reanalyse = true
	app, err = NewMosaicApp(ctx)
	s.Require().NoError(err)
	report, err = app.Mosaic(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(2), report.Source.Cache.Computed)
}

func (s *MosaicAppTestSuite) TestSeparateDatabaseDirectories() {
	ctx := s.newContext()
	ctx.SourceDB = filepath.Join(s.T().TempDir(), "src-db")
	ctx.TargetDB = filepath.Join(s.T().TempDir(), "tar-db")
	app, err := NewMosaicApp(ctx)
	s.Require().NoError(err)

	_, err = app.Mosaic(context.Background())
	s.Require().NoError(err)
	s.FileExists(filepath.Join(ctx.SourceDB, "analysis.db"))
	s.FileExists(filepath.Join(ctx.TargetDB, "analysis.db"))
	s.NoFileExists(filepath.Join(s.source, "data", "analysis.db"))
}

func (s *MosaicAppTestSuite) TestRunWritesReport() {
	ctx := s.newContext()
	app, err := NewMosaicApp(ctx)
	s.Require().NoError(err)
	report, err := app.Run(context.Background())
	s.Require().NoError(err)
	s.Len(report.Outputs, 1)

	data, err := os.ReadFile(ctx.ReportFile)
	s.Require().NoError(err)
	s.Contains(string(data), "matched_grains")
	s.Contains(string(data), "voice.wav")
}

func (s *MosaicAppTestSuite) TestAnalyseOnly() {
	ctx := s.newContext()
	ctx.Target = ""
	ctx.Output = ""
	ctx.AnalyseOnly = true
	ctx.ReportFile = filepath.Join(s.T().TempDir(), "report.json")
	app, err := NewMosaicApp(ctx)
	s.Require().NoError(err)

	report, err := app.Analyse(context.Background())
	s.Require().NoError(err)
	s.Equal(2, report.Source.Items)
	s.Nil(report.Target)
	s.Empty(report.Outputs)
	s.NoDirExists(filepath.Join(s.output, "audio"))

	_, err = app.Run(context.Background())
	s.Require().NoError(err)
	s.FileExists(ctx.ReportFile)
}

func (s *MosaicAppTestSuite) TestAnalyseOnlyIgnoresMatcherWeights() {
	ctx := s.newContext()
	ctx.Target = ""
	ctx.Output = ""
	ctx.Weights = []string{"f0=0", "rms=0"}
	ctx.AnalyseOnly = true
	app, err := NewMosaicApp(ctx)
	s.Require().NoError(err)

	report, err := app.Analyse(context.Background())
	s.Require().NoError(err)
	s.Equal([]string{"rms"}, report.Kinds)
	s.Equal(2, report.Source.Items)

	ctx = s.newContext()
	ctx.Weights = []string{"f0=0", "rms=0"}
	_, err = NewMosaicApp(ctx)
	s.True(errors.Is(err, common.ErrConfiguration))
}

func (s *MosaicAppTestSuite) TestMosaicNeedsTarget() {
	ctx := s.newContext()
	ctx.Target = ""
	app, err := NewMosaicApp(ctx)
	s.Require().NoError(err)

	_, err = app.Mosaic(context.Background())
	s.Require().Error(err)
	s.True(errors.Is(err, common.ErrConfiguration))
}

func (s *MosaicAppTestSuite) TestPitchEnforcementAnalysesF0() {
	ctx := s.newContext()
	on := true
	ctx.EnforceF0 = &on
	app, err := NewMosaicApp(ctx)
	s.Require().NoError(err)

	kinds, err := app.Config().Kinds()
	s.Require().NoError(err)
	var names []string
	for _, k := range kinds {
		names = append(names, k.String())
	}
	s.Equal([]string{"rms", "f0"}, names)
}

func TestMosaicAppTestSuite(t *testing.T) {
	suite.Run(t, new(MosaicAppTestSuite))
}

func TestSanitizeForJSON(t *testing.T) {
	in := map[string]any{
		"peak":   math.NaN(),
		"list":   []any{1.0, math.Inf(1)},
		"output": OutputReport{Name: "a.wav", Peak: math.Inf(-1), Grains: 3},
	}
	out := sanitizeForJSON(in).(map[string]any)

	assert.Equal(t, 0.0, out["peak"])
	assert.Equal(t, []any{1.0, 0.0}, out["list"])
	o := out["output"].(map[string]any)
	assert.Equal(t, "a.wav", o["name"])
	assert.Equal(t, 0.0, o["peak"])
	assert.Equal(t, 3, o["grains"])
}
