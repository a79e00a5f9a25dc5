package samples

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
)

// MP3Decoder decodes MP3 assets and resamples them to SampleRate.
type MP3Decoder struct {
	SampleRate int
}

func (d MP3Decoder) Decode(note string, data []byte) (*Buffer, error) {
	s, err := mp3.DecodeWithSampleRate(d.SampleRate, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return readPCM16(note, d.SampleRate, s)
}

// WAVDecoder decodes WAV assets and resamples them to SampleRate.
type WAVDecoder struct {
	SampleRate int
}

func (d WAVDecoder) Decode(note string, data []byte) (*Buffer, error) {
	s, err := wav.DecodeWithSampleRate(d.SampleRate, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return readPCM16(note, d.SampleRate, s)
}

// DecoderFor picks a decoder by asset extension.
func DecoderFor(ext string, sampleRate int) (Decoder, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "", "mp3":
		return MP3Decoder{SampleRate: sampleRate}, nil
	case "wav":
		return WAVDecoder{SampleRate: sampleRate}, nil
	default:
		return nil, fmt.Errorf("unsupported sample format %q (expected mp3|wav)", ext)
	}
}

// readPCM16 converts a 16-bit little-endian stereo stream to float32 frames.
func readPCM16(note string, sampleRate int, r io.Reader) (*Buffer, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		Note:       note,
		SampleRate: sampleRate,
		Frames:     PCM16ToFloat32(raw),
	}, nil
}

// PCM16ToFloat32 converts interleaved signed 16-bit LE samples to [-1, 1).
// A trailing odd byte is ignored.
func PCM16ToFloat32(raw []byte) []float32 {
	out := make([]float32, len(raw)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		out[i] = float32(v) / float32(math.MaxInt16+1)
	}
	return out
}
