package analysis

import (
	"math"

	"github.com/RyanBlaney/sonido-sonar/algorithms/tonal"
)

// tonalFrames runs pitch or harmonicity detection on every windowed grain.
// Detectors keep internal buffers, so each call gets its own instance.
func tonalFrames(kind Kind, samples []float64, sampleRate int, cfg Config) [][]float64 {
	switch kind {
	case KindF0:
		detector := tonal.NewPitchDetector(sampleRate)
		return framewise(samples, cfg, func(grain []float64) []float64 {
			if isSilent(grain) {
				return []float64{math.NaN()}
			}
			res, err := detector.DetectPitch(grain)
			if err != nil || res.Pitch <= 0 || res.Confidence < cfg.RatioThreshold {
				return []float64{math.NaN()}
			}
			return []float64{res.Pitch}
		})
	case KindHarmonicRatio:
		analyzer := tonal.NewHarmonicRatioAnalyzer(sampleRate)
		return framewise(samples, cfg, func(grain []float64) []float64 {
			if isSilent(grain) {
				return []float64{math.NaN()}
			}
			res, err := analyzer.AnalyzeFrame(grain)
			if err != nil {
				return []float64{math.NaN()}
			}
			return []float64{finite(res.HarmonicRatio)}
		})
	}
	return nil
}
