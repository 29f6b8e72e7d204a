package match

import (
	"fmt"
	"math"
	"runtime"

	"github.com/RyanBlaney/sonido-mosaic/pkg/audio/analysis"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

// Method selects the nearest-neighbour search implementation
type Method string

const (
	MethodKDTree Method = "kdtree"
	MethodBrute  Method = "brute"
)

// Options configure a matching run. They are immutable once passed to NewMatcher.
type Options struct {
	Weights        map[analysis.Kind]float64
	Reductions     map[analysis.Kind]analysis.Policy
	K              int
	GrainMS        float64
	Overlap        float64
	Method         Method
	Rematch        bool
	MaxConcurrency int
}

// feature is one descriptor dimension
type feature struct {
	Kind   analysis.Kind   `json:"kind"`
	Weight float64         `json:"weight"`
	Policy analysis.Policy `json:"policy"`
}

// features returns the weighted kinds in canonical order
func (o Options) features() ([]feature, error) {
	var out []feature
	for _, k := range analysis.AllKinds() {
		w, ok := o.Weights[k]
		if !ok || w == 0 {
			continue
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, common.ConfigError("matcher_weightings."+k.String(), fmt.Sprintf("invalid weight %v", w))
		}
		if k.Vector() {
			return nil, common.ConfigError("matcher_weightings."+k.String(), "vector analyses cannot be weighted")
		}
		policy, ok := o.Reductions[k]
		if !ok {
			return nil, common.ConfigError("reductions."+k.String(), "weighted analysis has no reduction policy")
		}
		if _, err := analysis.ParsePolicy(string(policy)); err != nil {
			return nil, fmt.Errorf("reductions.%s: %w", k, err)
		}
		out = append(out, feature{Kind: k, Weight: w, Policy: policy})
	}
	if len(out) == 0 {
		return nil, common.ConfigError("matcher_weightings", "all feature weights are zero")
	}
	return out, nil
}

// Validate checks the options without touching any corpus
func (o Options) Validate() error {
	if _, err := o.features(); err != nil {
		return err
	}
	if o.K < 1 {
		return common.ConfigError("match_quantity", "must be at least 1")
	}
	if _, err := (analysis.Params{WindowMS: o.GrainMS, Overlap: o.Overlap}).Grain(1000); err != nil || o.GrainMS <= 0 {
		return common.ConfigError("matcher.grain_size", fmt.Sprintf("invalid grain size %vms / overlap %v", o.GrainMS, o.Overlap))
	}
	switch o.Method {
	case MethodKDTree, MethodBrute:
	default:
		return common.ConfigError("matcher.method", fmt.Sprintf("unknown search method %q", o.Method))
	}
	return nil
}

func (o Options) concurrency() int {
	if o.MaxConcurrency > 0 {
		return o.MaxConcurrency
	}
	return runtime.NumCPU()
}
