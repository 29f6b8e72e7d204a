package match

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
	"github.com/RyanBlaney/sonido-mosaic/pkg/storage"
)

const matchesGroup = "matches"

// resultVersion is part of the match key and changes with the stored layout
// or the way descriptors are computed
const resultVersion = 2

// Result holds the ranked candidates of every target grain
type Result struct {
	Key        string
	K          int
	GrainMS    float64
	Overlap    float64
	Targets    []GrainRef
	Candidates [][]Candidate

	index map[GrainRef]int
}

func newResult(key string, k int, grainMS, overlap float64, targets []GrainRef, candidates [][]Candidate) *Result {
	r := &Result{Key: key, K: k, GrainMS: grainMS, Overlap: overlap, Targets: targets, Candidates: candidates}
	r.buildIndex()
	return r
}

func (r *Result) buildIndex() {
	r.index = make(map[GrainRef]int, len(r.Targets))
	for i, t := range r.Targets {
		r.index[t] = i
	}
}

// For returns the ranked candidates of one target grain, best first
func (r *Result) For(item, grain int) []Candidate {
	i, ok := r.index[GrainRef{Item: item, Grain: grain}]
	if !ok {
		return nil
	}
	return r.Candidates[i]
}

// Grain returns the matcher grain configuration at sampleRate
func (r *Result) Grain(sampleRate int) (analysis.GrainConfig, error) {
	return analysis.Params{WindowMS: r.GrainMS, Overlap: r.Overlap}.Grain(sampleRate)
}

// TargetGrains counts the target grains of item
func (r *Result) TargetGrains(item int) int {
	n := 0
	for _, t := range r.Targets {
		if t.Item == item {
			n++
		}
	}
	return n
}

func resultPath(key string) storage.Path {
	return storage.Path{matchesGroup, key}
}

// save writes the result in one atomic group write: target_item, target_grain and
// counts hold one entry per target grain, the remaining columns one per candidate
func (r *Result) save(store storage.Store, attrs storage.Attributes) error {
	var rows int
	for _, c := range r.Candidates {
		rows += len(c)
	}
	cols := map[string][]float64{
		"target_item":  make([]float64, 0, len(r.Targets)),
		"target_grain": make([]float64, 0, len(r.Targets)),
		"counts":       make([]float64, 0, len(r.Targets)),
		"source_item":  make([]float64, 0, rows),
		"source_grain": make([]float64, 0, rows),
		"distance":     make([]float64, 0, rows),
	}
	for i, t := range r.Targets {
		cols["target_item"] = append(cols["target_item"], float64(t.Item))
		cols["target_grain"] = append(cols["target_grain"], float64(t.Grain))
		cols["counts"] = append(cols["counts"], float64(len(r.Candidates[i])))
		for _, c := range r.Candidates[i] {
			cols["source_item"] = append(cols["source_item"], float64(c.Source.Item))
			cols["source_grain"] = append(cols["source_grain"], float64(c.Source.Grain))
			cols["distance"] = append(cols["distance"], c.Distance)
		}
	}
	if attrs == nil {
		attrs = storage.Attributes{}
	}
	attrs["k"] = r.K
	attrs["grain_ms"] = r.GrainMS
	attrs["overlap"] = r.Overlap
	attrs["targets"] = len(r.Targets)
	return store.WriteArrays(resultPath(r.Key), cols, attrs)
}

// loadResult reads a persisted result. storage.ErrNotFound is returned untouched.
func loadResult(store storage.Store, key string) (*Result, error) {
	path := resultPath(key)
	read := func(name string) ([]float64, storage.Attributes, error) {
		return store.ReadArray(path, name)
	}

	counts, attrs, err := read("counts")
	if err != nil {
		return nil, err
	}
	names := []string{"target_item", "target_grain", "source_item", "source_grain", "distance"}
	cols := make(map[string][]float64, len(names))
	for _, name := range names {
		col, _, err := read(name)
		if err != nil {
			return nil, err
		}
		cols[name] = col
	}

	k, _ := attrs.Int("k")
	grainMS, _ := attrs.Float("grain_ms")
	overlap, _ := attrs.Float("overlap")
	rows := len(cols["distance"])
	if len(cols["source_item"]) != rows || len(cols["source_grain"]) != rows ||
		len(cols["target_item"]) != len(counts) || len(cols["target_grain"]) != len(counts) {
		return nil, common.NewMosaicError(common.ErrCodeStorageRead, path.String(), "match columns differ in length", nil)
	}

	targets := make([]GrainRef, len(counts))
	candidates := make([][]Candidate, len(counts))
	row := 0
	for i, c := range counts {
		n := int(c)
		if n < 0 || row+n > rows || math.IsNaN(c) {
			return nil, common.NewMosaicError(common.ErrCodeStorageRead, path.String(),
				fmt.Sprintf("match counts exceed %d rows", rows), nil)
		}
		targets[i] = GrainRef{Item: int(cols["target_item"][i]), Grain: int(cols["target_grain"][i])}
		list := make([]Candidate, n)
		for j := range n {
			list[j] = Candidate{
				Source:   GrainRef{Item: int(cols["source_item"][row+j]), Grain: int(cols["source_grain"][row+j])},
				Distance: cols["distance"][row+j],
			}
		}
		candidates[i] = list
		row += n
	}
	return newResult(key, k, grainMS, overlap, targets, candidates), nil
}
