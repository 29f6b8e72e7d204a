package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// temporalFeature returns the per-grain function of a time-domain kind
func temporalFeature(kind Kind, sampleRate int) func([]float64) float64 {
	switch kind {
	case KindPeak:
		return peak
	case KindRMS:
		return RMS
	case KindZeroCrossing:
		return zeroCrossingRate
	case KindVariance:
		return func(x []float64) float64 { return stat.Variance(x, nil) }
	case KindKurtosis:
		return func(x []float64) float64 { return finite(stat.ExKurtosis(x, nil)) }
	case KindSkewness:
		return func(x []float64) float64 { return finite(stat.Skew(x, nil)) }
	case KindCentroid:
		return func(x []float64) float64 { return temporalCentroid(x, sampleRate) }
	}
	return func([]float64) float64 { return math.NaN() }
}

func peak(x []float64) float64 {
	p := 0.0
	for _, v := range x {
		p = math.Max(p, math.Abs(v))
	}
	return p
}

// RMS is the root mean square of x, NaN when x is empty
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// zeroCrossingRate is the fraction of adjacent sample pairs that change sign
func zeroCrossingRate(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	crossings := 0
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x)-1)
}

// temporalCentroid is the energy-weighted mean position in seconds from the grain start
func temporalCentroid(x []float64, sampleRate int) float64 {
	var num, den float64
	for i, v := range x {
		e := v * v
		num += float64(i) * e
		den += e
	}
	if den == 0 || sampleRate <= 0 {
		return math.NaN()
	}
	return num / den / float64(sampleRate)
}

func finite(v float64) float64 {
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}
