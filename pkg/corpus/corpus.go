package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/codec"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
	"github.com/RyanBlaney/sonido-mosaic/pkg/storage"
)

const (
	dataDirName   = "data"
	audioDirName  = "audio"
	analysisStore = "analysis.db"
	matchesStore  = "matches.db"
)

// Options configure how a corpus is opened
type Options struct {
	Role           common.Role
	Root           string // audio file or directory
	DatabaseDir    string // defaults to <root dir>/data
	Persist        bool
	MaxConcurrency int
	StoreTimeout   time.Duration
	Logger         logging.Logger
}

// Corpus is a collection of audio items sharing one analysis store
type Corpus struct {
	role  common.Role
	root  string
	items []*Item
	store storage.Store
	cache *analysis.Cache

	maxConcurrency int
	logger         logging.Logger

	mu     sync.RWMutex
	params map[analysis.Kind]analysis.Params
}

// Open discovers and decodes every supported audio file under opts.Root.
// Items are ordered by relative path, which fixes their ids.
func Open(ctx context.Context, opts Options) (*Corpus, error) {
	if opts.Root == "" {
		return nil, common.ConfigError(opts.Role.String(), "corpus path is required")
	}
	info, err := os.Stat(opts.Root)
	if err != nil {
		return nil, common.ConfigError(opts.Root, fmt.Sprintf("cannot open %s corpus: %v", opts.Role, err))
	}

	c, err := newCorpus(opts, info.IsDir())
	if err != nil {
		return nil, err
	}

	files, err := discover(opts.Root, info.IsDir())
	if err != nil {
		c.Close()
		return nil, err
	}
	if len(files) == 0 {
		c.Close()
		return nil, common.ConfigError(opts.Root, fmt.Sprintf("%s corpus contains no supported audio files", opts.Role))
	}

	p := pool.NewWithResults[*Item]().
		WithMaxGoroutines(c.maxConcurrency).
		WithContext(ctx).
		WithCancelOnError()
	for _, f := range files {
		p.Go(func(ctx context.Context) (*Item, error) {
			a, err := codec.Read(f.path)
			if err != nil {
				return nil, err
			}
			item := NewItem(0, f.name, a.Samples, a.SampleRate)
			item.Path = f.path
			c.logger.Debug("Decoded item", logging.Fields{
				"item":        f.name,
				"sample_rate": a.SampleRate,
				"channels":    a.Channels,
				"seconds":     item.Seconds(),
			})
			return item, nil
		})
	}
	items, err := p.Wait()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load %s corpus: %w", opts.Role, err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	for i, it := range items {
		it.ID = i
	}
	c.items = items

	c.logger.Info("Corpus loaded", logging.Fields{
		"items":   len(items),
		"seconds": c.Seconds(),
	})
	return c, nil
}

// NewOutput creates the output corpus rooted at dir. Synthesized items are added
// with WriteItem; match data lives in its store.
func NewOutput(dir string, persist bool, logger logging.Logger) (*Corpus, error) {
	if dir == "" {
		return nil, common.ConfigError("output", "output path is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, audioDirName), 0755); err != nil {
		return nil, common.NewMosaicError(common.ErrCodeStorageWrite, dir, "failed to create output directory", err)
	}
	return newCorpus(Options{
		Role:        common.RoleOutput,
		Root:        dir,
		DatabaseDir: filepath.Join(dir, dataDirName),
		Persist:     persist,
		Logger:      logger,
	}, true)
}

// New wraps in-memory items, mainly for tests and embedding
func New(role common.Role, items []*Item, store storage.Store, logger logging.Logger) *Corpus {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	for i, it := range items {
		it.ID = i
	}
	return &Corpus{
		role:           role,
		items:          items,
		store:          store,
		cache:          analysis.NewCache(store, logger),
		maxConcurrency: runtime.NumCPU(),
		logger:         logger.WithFields(logging.Fields{"component": "corpus", "role": role.String()}),
		params:         make(map[analysis.Kind]analysis.Params),
	}
}

func newCorpus(opts Options, isDir bool) (*Corpus, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	var store storage.Store = storage.NewMemoryStore()
	if opts.Persist {
		dbDir := opts.DatabaseDir
		if dbDir == "" {
			base := opts.Root
			if !isDir {
				base = filepath.Dir(opts.Root)
			}
			dbDir = filepath.Join(base, dataDirName)
		}
		name := analysisStore
		if opts.Role == common.RoleOutput {
			name = matchesStore
		}
		bolt, err := storage.OpenBolt(filepath.Join(dbDir, name), opts.StoreTimeout)
		if err != nil {
			return nil, err
		}
		store = bolt
	}

	c := New(opts.Role, nil, store, logger)
	c.root = opts.Root
	if opts.MaxConcurrency > 0 {
		c.maxConcurrency = opts.MaxConcurrency
	}
	return c, nil
}

type audioFile struct {
	name string
	path string
}

func discover(root string, isDir bool) ([]audioFile, error) {
	if !isDir {
		if !codec.Supported(root) {
			return nil, common.ConfigError(root, "unsupported audio format")
		}
		return []audioFile{{name: filepath.Base(root), path: root}}, nil
	}

	var files []audioFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (d.Name() == dataDirName || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !codec.Supported(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, audioFile{name: filepath.ToSlash(rel), path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return files, nil
}

// Analyse computes kinds for every item through the analysis cache. Items run in
// parallel; kinds run in order within an item so dependencies are available.
func (c *Corpus) Analyse(ctx context.Context, kinds []analysis.Kind, settings analysis.Settings, force bool) error {
	extractors := make([]analysis.Extractor, len(kinds))
	for i, k := range kinds {
		ex, err := analysis.NewExtractor(k)
		if err != nil {
			return err
		}
		extractors[i] = ex
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for _, it := range c.items {
		g.Go(func() error {
			for _, ex := range extractors {
				in := analysis.Input{
					Item:       it.Name,
					Samples:    it.Samples,
					SampleRate: it.SampleRate,
					Params:     settings.For(ex.Kind()),
					Upstream:   it.upstream(),
				}
				res, err := c.cache.GetOrCreate(ctx, ex, in, force)
				if err != nil {
					return err
				}
				it.SetAnalysis(res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Error(err, "Corpus analysis failed")
		return err
	}

	c.mu.Lock()
	for _, k := range kinds {
		c.params[k] = settings.For(k)
	}
	c.mu.Unlock()

	stats := c.cache.Stats()
	c.logger.Info("Corpus analysed", logging.Fields{
		"items":       len(c.items),
		"kinds":       len(kinds),
		"cache_hits":  stats.Hits,
		"computed":    stats.Computed,
		"drifted":     stats.Drifted,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// Params returns the parameters kind was analysed with
func (c *Corpus) Params(kind analysis.Kind) (analysis.Params, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.params[kind]
	return p, ok
}

// HasAnalysis reports whether every item carries kind
func (c *Corpus) HasAnalysis(kind analysis.Kind) bool {
	if len(c.items) == 0 {
		return false
	}
	for _, it := range c.items {
		if _, ok := it.Analysis(kind); !ok {
			return false
		}
	}
	return true
}

// WriteItem encodes samples under <root>/audio/<name>.wav and adds the item.
// Directories of a relative name are flattened into the file name with '_'.
func (c *Corpus) WriteItem(name string, samples []float64, sampleRate, bitDepth, channels int) (*Item, error) {
	base := outputName(name)
	path := filepath.Join(c.root, audioDirName, base)
	if err := codec.WriteWAV(path, samples, sampleRate, bitDepth, channels); err != nil {
		return nil, common.NewMosaicError(common.ErrCodeStorageWrite, path, "failed to write output audio", err)
	}

	c.mu.Lock()
	item := NewItem(len(c.items), base, samples, sampleRate)
	item.Path = path
	c.items = append(c.items, item)
	c.mu.Unlock()

	c.logger.Info("Wrote output item", logging.Fields{
		"path":    path,
		"seconds": item.Seconds(),
	})
	return item, nil
}

func outputName(name string) string {
	rel := strings.TrimLeft(filepath.ToSlash(filepath.Clean(name)), "/")
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(rel, "/", "_") + ".wav"
}

func (c *Corpus) Role() common.Role      { return c.role }
func (c *Corpus) Root() string           { return c.root }
func (c *Corpus) Store() storage.Store   { return c.store }
func (c *Corpus) Cache() *analysis.Cache { return c.cache }

// Items returns the corpus items ordered by id
func (c *Corpus) Items() []*Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items
}

// Item returns the item with id
func (c *Corpus) Item(id int) (*Item, error) {
	items := c.Items()
	if id < 0 || id >= len(items) {
		return nil, fmt.Errorf("%s corpus has no item %d", c.role, id)
	}
	return items[id], nil
}

// Seconds is the total duration of all items
func (c *Corpus) Seconds() float64 {
	total := 0.0
	for _, it := range c.Items() {
		total += it.Seconds()
	}
	return total
}

// Close releases the analysis store
func (c *Corpus) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
