package touchpiano

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/rs/zerolog"

	intaudio "github.com/cbegin/touchpiano-go/internal/audio"
	"github.com/cbegin/touchpiano-go/internal/samples"
	"github.com/cbegin/touchpiano-go/internal/voice"
)

type RenderOptions struct {
	SampleRate      int
	TickRate        int
	ReleaseDuration time.Duration
	// TailTicks keeps rendering after the last event so releases finish.
	TailTicks int
	Observer  voice.Observer
	Log       zerolog.Logger
}

func (o *RenderOptions) normalize(table *samples.Table) {
	if o.SampleRate <= 0 {
		o.SampleRate = 48000
		for _, n := range table.Notes() {
			if b, ok := table.Get(n); ok && b.SampleRate > 0 {
				o.SampleRate = b.SampleRate
				break
			}
		}
	}
	if o.TickRate <= 0 {
		o.TickRate = voice.DefaultTickRate
	}
	if o.ReleaseDuration <= 0 {
		o.ReleaseDuration = voice.DefaultReleaseDuration
	}
	if o.TailTicks <= 0 {
		o.TailTicks = voice.ReleaseSteps(o.ReleaseDuration, o.TickRate) + 1
	}
}

// RenderGesture plays a scripted gesture against a headless mixer and
// returns the interleaved stereo output. Events must be sorted by tick.
func RenderGesture(table *samples.Table, keys voice.HitTester, events []GestureEvent, opts RenderOptions) []float32 {
	opts.normalize(table)
	mixer := intaudio.NewMixer()
	m := voice.NewManager(table, mixer, keys, voice.Options{
		ReleaseSteps: voice.ReleaseSteps(opts.ReleaseDuration, opts.TickRate),
		Observer:     opts.Observer,
		Log:          opts.Log,
	})

	lastTick := 0
	if len(events) > 0 {
		lastTick = events[len(events)-1].Tick
	}
	ticks := lastTick + 1 + opts.TailTicks

	var out []float32
	next := 0
	acc := 0
	for tick := 0; tick < ticks; tick++ {
		for next < len(events) && events[next].Tick <= tick {
			applyGesture(m, events[next])
			next++
		}
		// Spread the remainder so the total length matches the tick count.
		acc += opts.SampleRate
		frames := acc / opts.TickRate
		acc -= frames * opts.TickRate
		block := make([]float32, frames*2)
		mixer.Process(block)
		out = append(out, block...)
		m.Advance()
	}
	m.Close()
	return out
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	out := make([]byte, 44+dataSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3) // IEEE float
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
