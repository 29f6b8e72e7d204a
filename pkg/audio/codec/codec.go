package codec

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

// Audio is a decoded signal mixed down to mono, samples in [-1, 1]
type Audio struct {
	Samples    []float64
	SampleRate int
	Channels   int // channel count of the source before mixdown
	BitDepth   int
	Format     string
}

// Duration of the decoded signal
func (a *Audio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(a.Samples)) / float64(a.SampleRate) * float64(time.Second))
}

type decodeFunc func(path string) (*Audio, error)

var decoders = map[string]decodeFunc{
	".wav":  decodeWAV,
	".wave": decodeWAV,
	".aif":  decodeAIFF,
	".aiff": decodeAIFF,
	".mp3":  decodeMP3,
	".ogg":  decodeVorbis,
	".flac": decodeFLAC,
}

// Supported reports whether path has an extension Read can decode
func Supported(path string) bool {
	_, ok := decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Read decodes path according to its extension
func Read(path string) (*Audio, error) {
	ext := strings.ToLower(filepath.Ext(path))
	dec, ok := decoders[ext]
	if !ok {
		return nil, common.NewMosaicError(common.ErrCodeDecoding, path, fmt.Sprintf("unsupported audio format %q", ext), nil)
	}
	a, err := dec(path)
	if err != nil {
		return nil, common.NewMosaicError(common.ErrCodeDecoding, path, "failed to decode audio", err)
	}
	if a.SampleRate <= 0 {
		return nil, common.NewMosaicError(common.ErrCodeDecoding, path, "invalid sample rate", nil)
	}
	return a, nil
}

// mixdown averages interleaved channels into one
func mixdown(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := range mono {
		sum := 0.0
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// intsToFloats scales signed PCM of the given bit depth to [-1, 1)
func intsToFloats(data []int, bitDepth int) []float64 {
	scale := float64(int64(1) << (bitDepth - 1))
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v) / scale
	}
	return out
}
