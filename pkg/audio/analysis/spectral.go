package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/RyanBlaney/sonido-sonar/algorithms/spectral"
	"github.com/mjibson/go-dsp/fft"
)

// magnitudeSpectrum returns |X[k]| for k = 0..W/2 of a windowed grain
func magnitudeSpectrum(grain []float64) []float64 {
	spectrum := fft.FFTReal(grain)
	bins := len(spectrum)/2 + 1
	mags := make([]float64, bins)
	for k := range mags {
		mags[k] = cmplx.Abs(spectrum[k])
	}
	return mags
}

// spectralFrames derives a scalar spectral feature from every FFT frame
func spectralFrames(kind Kind, fftResult *Result, sampleRate int) ([][]float64, error) {
	if fftResult == nil {
		return nil, fmt.Errorf("fft analysis not available")
	}

	var (
		centroid  = spectral.NewSpectralCentroid(sampleRate)
		bandwidth = spectral.NewSpectralBandwidth(sampleRate)
		crest     = spectral.NewSpectralCrest()
		flux      = spectral.NewSpectralFlux()
	)

	frames := make([][]float64, fftResult.Len())
	var prev []float64
	for t, mags := range fftResult.Frames {
		silent := isSilent(mags)
		v := math.NaN()
		switch kind {
		case KindSpectralFlatness:
			v = SpectralFlatness(mags)
		case KindSpectralCentroid:
			if !silent {
				v = centroid.Compute(mags)
			}
		case KindSpectralSpread:
			if !silent {
				v = bandwidth.Compute(mags, centroid.Compute(mags))
			}
		case KindSpectralCrest:
			if !silent {
				v = crest.Compute(mags)
			}
		case KindSpectralFlux:
			if prev == nil {
				prev = make([]float64, len(mags))
			}
			if out := flux.Compute([][]float64{prev, mags}); len(out) > 0 {
				v = out[0]
			}
			prev = mags
		default:
			return nil, fmt.Errorf("%s is not derived from the spectrum", kind)
		}
		frames[t] = []float64{finite(v)}
	}
	return frames, nil
}

// SpectralFlatness is the ratio of the geometric to the arithmetic mean of a
// magnitude spectrum. It is NaN when every bin is zero and 0 when any bin is zero.
func SpectralFlatness(mags []float64) float64 {
	if len(mags) == 0 || isSilent(mags) {
		return math.NaN()
	}
	var logSum, sum float64
	for _, m := range mags {
		if m == 0 {
			return 0
		}
		logSum += math.Log(m)
		sum += m
	}
	n := float64(len(mags))
	return math.Exp(logSum/n) / (sum / n)
}

func isSilent(mags []float64) bool {
	for _, m := range mags {
		if m != 0 {
			return false
		}
	}
	return true
}
