package analysis

import (
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

// Kind selects a feature extractor. The numeric order is the canonical
// descriptor order used by the matcher.
type Kind int

const (
	KindPeak Kind = iota
	KindRMS
	KindZeroCrossing
	KindVariance
	KindKurtosis
	KindSkewness
	KindCentroid
	KindFFT
	KindSpectralFlatness
	KindSpectralCentroid
	KindSpectralSpread
	KindSpectralFlux
	KindSpectralCrest
	KindF0
	KindHarmonicRatio

	numKinds
)

// Family groups kinds by what they are computed from
type Family string

const (
	FamilyTemporal Family = "temporal"
	FamilySpectral Family = "spectral"
	FamilyTonal    Family = "tonal"
)

var kindNames = [numKinds]string{
	KindPeak:             "peak",
	KindRMS:              "rms",
	KindZeroCrossing:     "zerox",
	KindVariance:         "variance",
	KindKurtosis:         "kurtosis",
	KindSkewness:         "skewness",
	KindCentroid:         "centroid",
	KindFFT:              "fft",
	KindSpectralFlatness: "spcflatness",
	KindSpectralCentroid: "spccntr",
	KindSpectralSpread:   "spcsprd",
	KindSpectralFlux:     "spcflux",
	KindSpectralCrest:    "spccf",
	KindF0:               "f0",
	KindHarmonicRatio:    "harm_ratio",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k names a known extractor
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

func (k Kind) Family() Family {
	switch k {
	case KindFFT, KindSpectralFlatness, KindSpectralCentroid, KindSpectralSpread, KindSpectralFlux, KindSpectralCrest:
		return FamilySpectral
	case KindF0, KindHarmonicRatio:
		return FamilyTonal
	default:
		return FamilyTemporal
	}
}

// Requires lists the analyses that must exist before k can be extracted
func (k Kind) Requires() []Kind {
	switch k {
	case KindSpectralFlatness, KindSpectralCentroid, KindSpectralSpread, KindSpectralFlux, KindSpectralCrest:
		return []Kind{KindFFT}
	}
	return nil
}

// Vector reports whether a grain produces more than one value
func (k Kind) Vector() bool {
	return k == KindFFT
}

// ParseKind resolves a kind by its configuration name
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, kn := range kindNames {
		if kn == n {
			return Kind(i), nil
		}
	}
	return -1, common.ConfigError(name, "unknown analysis kind")
}

// ParseKinds resolves a list of names, dropping duplicates and sorting into
// dependency-safe canonical order
func ParseKinds(names []string) ([]Kind, error) {
	seen := make(map[Kind]bool, len(names))
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		seen[k] = true
	}
	out := make([]Kind, 0, len(seen))
	for _, k := range AllKinds() {
		if seen[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

// AllKinds returns every kind in canonical order
func AllKinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}
