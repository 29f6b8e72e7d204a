package corpus

import (
	"sync"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
)

// Item is one decoded audio file of a corpus
type Item struct {
	ID         int
	Name       string
	Path       string
	Samples    []float64
	SampleRate int

	mu       sync.RWMutex
	analyses map[analysis.Kind]*analysis.Result
}

// NewItem builds an in-memory item, used for outputs and tests
func NewItem(id int, name string, samples []float64, sampleRate int) *Item {
	return &Item{
		ID:         id,
		Name:       name,
		Samples:    samples,
		SampleRate: sampleRate,
		analyses:   make(map[analysis.Kind]*analysis.Result),
	}
}

// Analysis returns the result of kind when it has been computed
func (it *Item) Analysis(kind analysis.Kind) (*analysis.Result, bool) {
	it.mu.RLock()
	defer it.mu.RUnlock()
	r, ok := it.analyses[kind]
	return r, ok
}

// SetAnalysis attaches a result to the item
func (it *Item) SetAnalysis(r *analysis.Result) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.analyses == nil {
		it.analyses = make(map[analysis.Kind]*analysis.Result)
	}
	it.analyses[r.Kind] = r
}

func (it *Item) upstream() map[analysis.Kind]*analysis.Result {
	it.mu.RLock()
	defer it.mu.RUnlock()
	out := make(map[analysis.Kind]*analysis.Result, len(it.analyses))
	for k, v := range it.analyses {
		out[k] = v
	}
	return out
}

// Seconds is the item duration
func (it *Item) Seconds() float64 {
	if it.SampleRate <= 0 {
		return 0
	}
	return float64(len(it.Samples)) / float64(it.SampleRate)
}
