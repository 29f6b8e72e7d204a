package match

import (
	"math"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/corpus"
)

// GrainRef addresses one grain of one corpus item
type GrainRef struct {
	Item  int `json:"item"`
	Grain int `json:"grain"`
}

// Descriptor is the weighted feature vector of a grain
type Descriptor struct {
	Ref    GrainRef
	Vector []float64
}

// grainSpan returns the time range of matcher grain n in milliseconds
func grainSpan(g analysis.GrainConfig, n, sampleRate int) (float64, float64) {
	start := g.Start(n)
	toMS := 1000 / float64(sampleRate)
	return float64(start) * toMS, float64(start+g.WindowSize) * toMS
}

// itemDescriptors reduces each analysed feature over every matcher grain of it
func itemDescriptors(it *corpus.Item, feats []feature, grainMS, overlap float64) ([]Descriptor, error) {
	grain, err := analysis.Params{WindowMS: grainMS, Overlap: overlap}.Grain(it.SampleRate)
	if err != nil {
		return nil, err
	}

	results := make([]*analysis.Result, len(feats))
	for i, f := range feats {
		r, ok := it.Analysis(f.Kind)
		if !ok {
			return nil, errNotAnalysed(it.Name, f.Kind)
		}
		results[i] = r
	}

	n := grain.Count(len(it.Samples))
	out := make([]Descriptor, n)
	for j := range n {
		startMS, endMS := grainSpan(grain, j, it.SampleRate)
		vec := make([]float64, len(feats))
		for i, f := range feats {
			v := f.Weight * analysis.Reduce(f.Policy, analysis.SpanValues(results[i], startMS, endMS))
			if math.IsInf(v, 0) {
				v = math.NaN()
			}
			vec[i] = v
		}
		out[j] = Descriptor{Ref: GrainRef{Item: it.ID, Grain: j}, Vector: vec}
	}
	return out, nil
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

// sqDist is the squared Euclidean distance. Both searchers rank by it so their
// results agree bit for bit.
func sqDist(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
