package analysis

import (
	"math"
	"slices"

	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
	"gonum.org/v1/gonum/stat"
)

// Policy reduces the values of several grains into one descriptor component
type Policy string

const (
	PolicyMean       Policy = "mean"
	PolicyMedian     Policy = "median"
	PolicyLog2Mean   Policy = "log2_mean"
	PolicyLog2Median Policy = "log2_median"
)

// ParsePolicy validates a reduction policy name
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(name); p {
	case PolicyMean, PolicyMedian, PolicyLog2Mean, PolicyLog2Median:
		return p, nil
	}
	return "", common.ConfigError(name, "unknown reduction policy")
}

// Reduce applies p to values. NaN inputs are ignored; the result is NaN when no
// defined value remains or the log of a non-positive value is requested.
func Reduce(p Policy, values []float64) float64 {
	defined := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}
	if len(defined) == 0 {
		return math.NaN()
	}

	var v float64
	switch p {
	case PolicyMean, PolicyLog2Mean:
		v = stat.Mean(defined, nil)
	case PolicyMedian, PolicyLog2Median:
		v = median(defined)
	default:
		return math.NaN()
	}

	if p == PolicyLog2Mean || p == PolicyLog2Median {
		if v <= 0 {
			return math.NaN()
		}
		v = math.Log2(v)
	}
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// median averages the two middle values for even-length input
func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
