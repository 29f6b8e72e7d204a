package analysis

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
	"github.com/RyanBlaney/sonido-mosaic/pkg/storage"
)

// CacheTestSuite exercises the analysis cache lifecycle against a bbolt store
type CacheTestSuite struct {
	suite.Suite
	store  *storage.BoltStore
	cache  *Cache
	logger logging.Logger
	input  Input
}

func (s *CacheTestSuite) SetupTest() {
	s.logger = logging.WithFields(logging.Fields{"component": "cache_test_suite"})

	store, err := storage.OpenBolt(filepath.Join(s.T().TempDir(), "analysis.db"), time.Second)
	s.Require().NoError(err)
	s.store = store
	s.cache = NewCache(store, s.logger)
	s.input = Input{
		Item:       "tone.wav",
		Samples:    sine(220, 0.8, testRate, testRate/2),
		SampleRate: testRate,
		Params:     Params{WindowSize: 1024, Overlap: 0.5},
	}
}

func (s *CacheTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *CacheTestSuite) extractor(kind Kind) Extractor {
	ex, err := NewExtractor(kind)
	s.Require().NoError(err)
	return ex
}

func (s *CacheTestSuite) TestSecondCallIsBitIdenticalHit() {
	ctx := context.Background()
	first, err := s.cache.GetOrCreate(ctx, s.extractor(KindRMS), s.input, false)
	s.Require().NoError(err)

	second, err := s.cache.GetOrCreate(ctx, s.extractor(KindRMS), s.input, false)
	s.Require().NoError(err)

	s.Equal(CacheStats{Hits: 1, Computed: 1}, s.cache.Stats())
	s.Require().Equal(first.Len(), second.Len())
	for i := range first.Frames {
		s.Equal(math.Float64bits(first.Frames[i][0]), math.Float64bits(second.Frames[i][0]))
	}
	s.Equal(first.Times, second.Times)
	s.Equal(first.Config, second.Config)
}

func (s *CacheTestSuite) TestPersistsAcrossCacheInstances() {
	ctx := context.Background()
	_, err := s.cache.GetOrCreate(ctx, s.extractor(KindFFT), s.input, false)
	s.Require().NoError(err)

	fresh := NewCache(s.store, s.logger)
	res, err := fresh.GetOrCreate(ctx, s.extractor(KindFFT), s.input, false)
	s.Require().NoError(err)
	s.Equal(int64(1), fresh.Stats().Hits)
	s.Equal(513, res.Dims())
}

func (s *CacheTestSuite) TestConfigurationDriftRecomputes() {
	ctx := context.Background()
	_, err := s.cache.GetOrCreate(ctx, s.extractor(KindPeak), s.input, false)
	s.Require().NoError(err)

	changed := s.input
	changed.Params = Params{WindowSize: 512, Overlap: 0.5}
	res, err := s.cache.GetOrCreate(ctx, s.extractor(KindPeak), changed, false)
	s.Require().NoError(err)

	s.Equal(512, res.Config.WindowSize)
	s.Equal(CacheStats{Computed: 2, Drifted: 1}, s.cache.Stats())

	stored, err := s.cache.Lookup("tone.wav", KindPeak)
	s.Require().NoError(err)
	s.Equal(res.Config, stored.Config)
}

func (s *CacheTestSuite) TestForceRecomputes() {
	ctx := context.Background()
	_, err := s.cache.GetOrCreate(ctx, s.extractor(KindZeroCrossing), s.input, false)
	s.Require().NoError(err)
	_, err = s.cache.GetOrCreate(ctx, s.extractor(KindZeroCrossing), s.input, true)
	s.Require().NoError(err)
	s.Equal(int64(2), s.cache.Stats().Computed)
}

func (s *CacheTestSuite) TestConcurrentCallsShareResult() {
	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.cache.GetOrCreate(ctx, s.extractor(KindVariance), s.input, false)
			s.NoError(err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	stats := s.cache.Stats()
	s.Equal(int64(len(results)), stats.Hits+stats.Computed)
	for _, r := range results[1:] {
		s.Equal(results[0].Frames, r.Frames)
	}
}

func (s *CacheTestSuite) TestCorruptEntryFailsWithStorageRead() {
	path := resultPath("tone.wav", KindRMS)
	s.Require().NoError(s.store.WriteArrays(path, map[string][]float64{
		framesArray: {1, 2, 3},
		timesArray:  {0, 1},
	}, storage.Attributes{configAttr: `{"kind":"rms"}`, dimsAttr: 1}))

	_, err := s.cache.GetOrCreate(context.Background(), s.extractor(KindRMS), s.input, false)
	s.Require().Error(err)
	s.True(errors.Is(err, common.ErrStorageRead))
}

func (s *CacheTestSuite) TestMissingDependencyIsFatal() {
	_, err := s.cache.GetOrCreate(context.Background(), s.extractor(KindSpectralFlux), s.input, false)
	s.True(errors.Is(err, common.ErrMissingDependency))
}

func (s *CacheTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.cache.GetOrCreate(ctx, s.extractor(KindRMS), s.input, false)
	s.ErrorIs(err, context.Canceled)
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func TestGrainsInRange(t *testing.T) {
	res := &Result{
		Kind:   KindRMS,
		Frames: [][]float64{{1}, {2}, {3}, {4}},
		Times:  []float64{0, 0.25, 0.5, 0.75},
	}

	frames, times := GrainsInRange(res, 250, 500)
	if len(frames) != 2 || times[0] != 0.25 || times[1] != 0.5 {
		t.Fatalf("closed interval: got %v %v", frames, times)
	}
	if frames, _ := GrainsInRange(res, 800, 900); len(frames) != 0 {
		t.Errorf("expected empty range, got %v", frames)
	}
	if frames, _ := GrainsInRange(res, 500, 250); len(frames) != 0 {
		t.Errorf("inverted range should be empty, got %v", frames)
	}
	if got := ValuesInRange(res, 0, 1000); len(got) != 4 {
		t.Errorf("full range: got %v", got)
	}
}

func TestSpanValuesCoverEverySignalGrain(t *testing.T) {
	const rate = 1000
	in := Input{Item: "sine.wav", Samples: sine(3, 1, rate, rate), SampleRate: rate,
		Params: Params{WindowSize: 100, Overlap: 4}}
	res, err := Extract(KindRMS, in)
	if err != nil {
		t.Fatal(err)
	}
	grain := res.Config.Grain()
	n := grain.Count(len(in.Samples))

	span := func(j int) (float64, float64) {
		start := float64(grain.Start(j))
		return start, start + float64(grain.WindowSize)
	}

	// timestamps are spaced L/n, so the tail grains lie past the last one
	if got := ValuesInRange(res, 1025, 1125); len(got) != 0 {
		t.Fatalf("expected the raw tail range to be empty, got %v", got)
	}
	for j := range n {
		startMS, endMS := span(j)
		values := SpanValues(res, startMS, endMS)
		if len(values) == 0 {
			t.Fatalf("grain %d: no values", j)
		}
		found := false
		for _, v := range values {
			found = found || v == res.Frames[j][0]
		}
		if !found {
			t.Errorf("grain %d: %v does not include its own frame %v", j, values, res.Frames[j][0])
		}
	}
}

func TestSpanValuesFallBackToNearestGrain(t *testing.T) {
	res := &Result{
		Kind:   KindRMS,
		Frames: [][]float64{{1}, {2}, {3}},
		Times:  []float64{0, 0.25, 0.5},
	}

	tests := []struct {
		name           string
		startMS, endMS float64
		want           []float64
	}{
		{"inside", 200, 300, []float64{2}},
		{"past the end", 800, 900, []float64{3}},
		{"before the start", -300, -200, []float64{1}},
		{"between grains", 60, 100, []float64{1}},
		{"inverted", 500, 250, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SpanValues(res, tt.startMS, tt.endMS)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}
