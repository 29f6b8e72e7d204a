package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

func decodeWAV(path string) (*Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf.Format == nil {
		return nil, fmt.Errorf("wav file without format chunk")
	}

	bitDepth := int(dec.BitDepth)
	channels := buf.Format.NumChannels
	return &Audio{
		Samples:    mixdown(intsToFloats(buf.Data, bitDepth), channels),
		SampleRate: buf.Format.SampleRate,
		Channels:   channels,
		BitDepth:   bitDepth,
		Format:     "wav",
	}, nil
}

func decodeAIFF(path string) (*Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := aiff.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid aiff file")
	}
	dec.ReadInfo()
	format := dec.Format()
	if format == nil {
		return nil, fmt.Errorf("aiff file without format")
	}

	var data []int
	chunk := &goaudio.IntBuffer{Format: format, Data: make([]int, 8192)}
	for {
		n, err := dec.PCMBuffer(chunk)
		if n > 0 {
			data = append(data, chunk.Data[:n]...)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if n == 0 || err != nil {
			break
		}
	}

	bitDepth := int(dec.BitDepth)
	return &Audio{
		Samples:    mixdown(intsToFloats(data, bitDepth), format.NumChannels),
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
		BitDepth:   bitDepth,
		Format:     "aiff",
	}, nil
}

// decodeMP3 reads go-mp3 output, which is always 16-bit little-endian stereo
func decodeMP3(path string) (*Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}

	interleaved := make([]float64, len(raw)/2)
	for i := range interleaved {
		interleaved[i] = float64(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768.0
	}
	return &Audio{
		Samples:    mixdown(interleaved, 2),
		SampleRate: dec.SampleRate(),
		Channels:   2,
		BitDepth:   16,
		Format:     "mp3",
	}, nil
}

func decodeVorbis(path string) (*Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, format, err := oggvorbis.ReadAll(f)
	if err != nil {
		return nil, err
	}

	interleaved := make([]float64, len(data))
	for i, v := range data {
		interleaved[i] = float64(v)
	}
	return &Audio{
		Samples:    mixdown(interleaved, format.Channels),
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		BitDepth:   32,
		Format:     "ogg",
	}, nil
}

func decodeFLAC(path string) (*Audio, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	bitDepth := int(stream.Info.BitsPerSample)
	var data []int
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(frame.Subframes) == 0 {
			continue
		}
		n := len(frame.Subframes[0].Samples)
		for i := range n {
			for c := range channels {
				data = append(data, int(frame.Subframes[c].Samples[i]))
			}
		}
	}

	return &Audio{
		Samples:    mixdown(intsToFloats(data, bitDepth), channels),
		SampleRate: int(stream.Info.SampleRate),
		Channels:   channels,
		BitDepth:   bitDepth,
		Format:     "flac",
	}, nil
}
