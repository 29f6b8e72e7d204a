package match

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/sourcegraph/conc/iter"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
	"github.com/RyanBlaney/sonido-mosaic/pkg/corpus"
	"github.com/RyanBlaney/sonido-mosaic/pkg/storage"
)

// Matcher ranks source grains against every target grain by weighted
// descriptor distance
type Matcher struct {
	opts     Options
	features []feature
	store    storage.Store
	logger   logging.Logger
}

// NewMatcher validates opts. Results are persisted in store when it is non-nil.
func NewMatcher(opts Options, store storage.Store, logger logging.Logger) (*Matcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	feats, _ := opts.features()
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Matcher{
		opts:     opts,
		features: feats,
		store:    store,
		logger: logger.WithFields(logging.Fields{
			"component": "matcher",
			"method":    string(opts.Method),
		}),
	}, nil
}

// Kinds returns the analyses the matcher needs
func (m *Matcher) Kinds() []analysis.Kind {
	out := make([]analysis.Kind, len(m.features))
	for i, f := range m.features {
		out[i] = f.Kind
	}
	return out
}

func errNotAnalysed(where string, kind analysis.Kind) error {
	return common.ConfigError(where+"/"+kind.String(), "weighted analysis has not been computed")
}

// check verifies both corpora carry every weighted analysis with the same grain parameters
func (m *Matcher) check(source, target *corpus.Corpus) error {
	for _, f := range m.features {
		for _, c := range []*corpus.Corpus{source, target} {
			if !c.HasAnalysis(f.Kind) {
				return errNotAnalysed(c.Role().String(), f.Kind)
			}
		}
		sp, _ := source.Params(f.Kind)
		tp, _ := target.Params(f.Kind)
		if sp != tp {
			return common.NewMosaicError(common.ErrCodeGrainMismatch, "source|target/"+f.Kind.String(),
				fmt.Sprintf("analysed with different grains (source %+v, target %+v)", sp, tp), nil)
		}
	}
	if len(source.Items()) == 0 {
		return common.ConfigError("source", "source corpus is empty")
	}
	return nil
}

// Descriptors computes the descriptor of every matcher grain of c, items in id order
func (m *Matcher) Descriptors(ctx context.Context, c *corpus.Corpus) ([]Descriptor, error) {
	items := c.Items()
	perItem := make([][]Descriptor, len(items))
	errs := make([]error, len(items))

	mapper := iter.Iterator[*corpus.Item]{MaxGoroutines: m.opts.concurrency()}
	mapper.ForEachIdx(items, func(i int, it **corpus.Item) {
		if ctx.Err() != nil {
			errs[i] = ctx.Err()
			return
		}
		perItem[i], errs[i] = itemDescriptors(*it, m.features, m.opts.GrainMS, m.opts.Overlap)
	})
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	var out []Descriptor
	for _, d := range perItem {
		out = append(out, d...)
	}
	return out, nil
}

// Key identifies a matching run: corpora contents, features and grain settings
func (m *Matcher) Key(source, target *corpus.Corpus) string {
	type itemKey struct {
		Name       string `json:"name"`
		Samples    int    `json:"samples"`
		SampleRate int    `json:"sample_rate"`
	}
	describe := func(c *corpus.Corpus) []itemKey {
		var out []itemKey
		for _, it := range c.Items() {
			out = append(out, itemKey{it.Name, len(it.Samples), it.SampleRate})
		}
		return out
	}
	params := make(map[string]analysis.Params, len(m.features))
	for _, f := range m.features {
		p, _ := source.Params(f.Kind)
		params[f.Kind.String()] = p
	}

	b, _ := json.Marshal(struct {
		Version  int                        `json:"version"`
		Source   []itemKey                  `json:"source"`
		Target   []itemKey                  `json:"target"`
		Features []feature                  `json:"features"`
		Params   map[string]analysis.Params `json:"params"`
		K        int                        `json:"k"`
		GrainMS  float64                    `json:"grain_ms"`
		Overlap  float64                    `json:"overlap"`
	}{resultVersion, describe(source), describe(target), m.features, params, m.opts.K, m.opts.GrainMS, m.opts.Overlap})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

// Match returns the k best source grains for each target grain. A persisted
// result with the same key is reused unless Rematch is set.
func (m *Matcher) Match(ctx context.Context, source, target *corpus.Corpus) (*Result, error) {
	if err := m.check(source, target); err != nil {
		return nil, err
	}
	key := m.Key(source, target)
	logger := m.logger.WithFields(logging.Fields{"key": key})

	if m.store != nil && !m.opts.Rematch {
		res, err := loadResult(m.store, key)
		switch {
		case err == nil:
			logger.Info("Reusing stored matches", logging.Fields{"targets": len(res.Targets)})
			return res, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
	}

	start := time.Now()
	srcDesc, err := m.Descriptors(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("source descriptors: %w", err)
	}
	tarDesc, err := m.Descriptors(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("target descriptors: %w", err)
	}

	searcher := NewSearcher(m.opts.Method, srcDesc)
	mapper := iter.Mapper[Descriptor, []Candidate]{MaxGoroutines: m.opts.concurrency()}
	candidates := mapper.Map(tarDesc, func(d *Descriptor) []Candidate {
		return searcher.Search(d.Vector, m.opts.K)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	targets := make([]GrainRef, len(tarDesc))
	for i, d := range tarDesc {
		targets[i] = d.Ref
	}
	res := newResult(key, m.opts.K, m.opts.GrainMS, m.opts.Overlap, targets, candidates)

	if m.store != nil {
		if err := res.save(m.store, storage.Attributes{"method": string(m.opts.Method)}); err != nil {
			return nil, err
		}
	}

	logger.Info("Matching complete", logging.Fields{
		"source_grains": len(srcDesc),
		"target_grains": len(tarDesc),
		"k":             m.opts.K,
		"duration_ms":   time.Since(start).Milliseconds(),
	})
	return res, nil
}
