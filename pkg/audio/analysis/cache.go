package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
	"github.com/RyanBlaney/sonido-mosaic/pkg/storage"
	"golang.org/x/sync/singleflight"
)

const (
	analysesGroup = "analyses"
	framesArray   = "frames"
	timesArray    = "times"
	configAttr    = "config"
	dimsAttr      = "dims"
)

// CacheStats counts how results were obtained
type CacheStats struct {
	Hits     int64 `json:"hits"`
	Computed int64 `json:"computed"`
	Drifted  int64 `json:"drifted"`
}

// Cache is a persistent, lazily populated store of analysis results keyed by
// (item, kind). An entry is either absent or present with the config that
// produced it; a config mismatch is treated as absent.
type Cache struct {
	store  storage.Store
	flight singleflight.Group
	logger logging.Logger

	hits     atomic.Int64
	computed atomic.Int64
	drifted  atomic.Int64
}

// NewCache wraps store
func NewCache(store storage.Store, logger logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Cache{
		store:  store,
		logger: logger.WithFields(logging.Fields{"component": "analysis_cache"}),
	}
}

// Stats returns a snapshot of the cache counters
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:     c.hits.Load(),
		Computed: c.computed.Load(),
		Drifted:  c.drifted.Load(),
	}
}

func resultPath(item string, kind Kind) storage.Path {
	return storage.Path{analysesGroup, item, kind.String()}
}

// GetOrCreate returns the cached result for in.Item when it was produced with the
// same configuration, otherwise it extracts, persists and returns a fresh one.
// force skips the lookup. Concurrent calls for the same key share one extraction.
func (c *Cache) GetOrCreate(ctx context.Context, ex Extractor, in Input, force bool) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, err := ex.Config(in)
	if err != nil {
		return nil, err
	}
	fingerprint := cfg.Fingerprint()
	key := in.Item + "\x00" + ex.Kind().String() + "\x00" + fingerprint

	v, err, _ := c.flight.Do(key, func() (any, error) {
		logger := c.logger.WithFields(logging.Fields{
			"item": in.Item,
			"kind": ex.Kind().String(),
		})

		if !force {
			cached, err := c.load(in.Item, ex.Kind())
			switch {
			case err == nil && cached.Config.Fingerprint() == fingerprint:
				c.hits.Add(1)
				logger.Debug("Analysis cache hit")
				return cached, nil
			case err == nil:
				c.drifted.Add(1)
				logger.Warn("Cached analysis configuration changed, recomputing", logging.Fields{
					"stored":    cached.Config.Fingerprint(),
					"requested": fingerprint,
				})
			case !errors.Is(err, storage.ErrNotFound):
				return nil, err
			}
		}

		result, err := ex.Extract(in)
		if err != nil {
			return nil, err
		}
		if undefined := result.Undefined(); undefined > 0 {
			logger.Debug("Analysis produced undefined values", logging.Fields{
				"code":      common.ErrCodeUndefinedFeature,
				"undefined": undefined,
				"grains":    result.Len(),
			})
		}

		if err := c.save(in.Item, result); err != nil {
			return nil, err
		}
		c.computed.Add(1)
		logger.Debug("Analysis computed", logging.Fields{"grains": result.Len()})
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Lookup returns a stored result without computing anything
func (c *Cache) Lookup(item string, kind Kind) (*Result, error) {
	return c.load(item, kind)
}

func (c *Cache) save(item string, r *Result) error {
	dims := r.Dims()
	flat := make([]float64, 0, r.Len()*dims)
	for _, f := range r.Frames {
		flat = append(flat, f...)
	}
	err := c.store.WriteArrays(resultPath(item, r.Kind), map[string][]float64{
		framesArray: flat,
		timesArray:  r.Times,
	}, storage.Attributes{
		configAttr: r.Config.Fingerprint(),
		dimsAttr:   dims,
	})
	if err != nil {
		return common.NewMosaicError(common.ErrCodeStorageWrite, item+"/"+r.Kind.String(), "failed to persist analysis", err)
	}
	return nil
}

func (c *Cache) load(item string, kind Kind) (*Result, error) {
	path := resultPath(item, kind)
	key := item + "/" + kind.String()

	flat, attrs, err := c.store.ReadArray(path, framesArray)
	if err != nil {
		return nil, err
	}
	times, timeAttrs, err := c.store.ReadArray(path, timesArray)
	if err != nil {
		return nil, err
	}
	if attrs.String(configAttr) != timeAttrs.String(configAttr) {
		return nil, common.NewMosaicError(common.ErrCodeStorageRead, key, "frames and times disagree", nil)
	}

	var cfg Config
	if err := decodeConfig(attrs.String(configAttr), &cfg); err != nil {
		return nil, common.NewMosaicError(common.ErrCodeStorageRead, key, "unreadable analysis config", err)
	}
	dims, ok := attrs.Int(dimsAttr)
	if !ok || (len(times) > 0 && dims <= 0) || (dims > 0 && len(flat) != dims*len(times)) {
		return nil, common.NewMosaicError(common.ErrCodeStorageRead, key,
			fmt.Sprintf("corrupt analysis: %d values for %d grains of width %d", len(flat), len(times), dims), nil)
	}

	frames := make([][]float64, len(times))
	for i := range frames {
		frames[i] = flat[i*dims : (i+1)*dims : (i+1)*dims]
	}
	return &Result{Kind: kind, Frames: frames, Times: times, Config: cfg}, nil
}

// GrainsInRange returns the frames whose timestamps fall in the closed interval
// [startMS, endMS] milliseconds, in time order. The returned slices alias r.
func GrainsInRange(r *Result, startMS, endMS float64) ([][]float64, []float64) {
	lo, hi := startMS/1000, endMS/1000
	if r == nil || hi < lo {
		return nil, nil
	}
	first := sort.SearchFloat64s(r.Times, lo)
	last := sort.Search(len(r.Times), func(i int) bool { return r.Times[i] > hi })
	if first >= last {
		return nil, nil
	}
	return r.Frames[first:last], r.Times[first:last]
}

// ValuesInRange flattens the frames of GrainsInRange into one slice
func ValuesInRange(r *Result, startMS, endMS float64) []float64 {
	frames, _ := GrainsInRange(r, startMS, endMS)
	out := make([]float64, 0, len(frames))
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

// SpanValues returns the values of the grains centred inside the signal span
// [startMS, endMS]. Timestamps are spaced L/n apart rather than one hop, so the
// span is first rescaled into the result's own time base. When no grain falls
// inside, the grain nearest the middle of the span is used.
func SpanValues(r *Result, startMS, endMS float64) []float64 {
	if r == nil || len(r.Times) == 0 || endMS < startMS {
		return nil
	}
	scale := r.timeScale()
	if values := ValuesInRange(r, startMS*scale, endMS*scale); len(values) > 0 {
		return values
	}

	mid := (startMS + endMS) / 2 * scale / 1000
	i := sort.SearchFloat64s(r.Times, mid)
	if i == len(r.Times) || (i > 0 && mid-r.Times[i-1] <= r.Times[i]-mid) {
		i--
	}
	return append([]float64(nil), r.Frames[i]...)
}

// timeScale maps signal time onto r.Times. Results without a recorded framing
// are taken to be timestamped in signal time.
func (r *Result) timeScale() float64 {
	cfg := r.Config
	if cfg.Hop <= 0 || cfg.Samples <= 0 || len(r.Times) == 0 {
		return 1
	}
	return float64(cfg.Samples) / float64(len(r.Times)) / float64(cfg.Hop)
}
