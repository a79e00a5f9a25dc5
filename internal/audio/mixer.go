package audio

import (
	"sync"

	"github.com/cbegin/touchpiano-go/internal/samples"
	"github.com/cbegin/touchpiano-go/internal/voice"
)

// Mixer sums every started source into one stereo stream. Each source owns
// its gain, so releases of different voices never interfere.
type Mixer struct {
	mu      sync.Mutex
	sources []*mixSource
	master  float64
}

func NewMixer() *Mixer {
	return &Mixer{master: 1}
}

type mixSource struct {
	mixer   *Mixer
	frames  []float32
	pos     int
	gain    float64 // target set by the voice
	current float64 // gain reached at the end of the last block
	started bool
	stopped bool
}

// NewSource implements voice.Output.
func (m *Mixer) NewSource(buf *samples.Buffer) (voice.Source, error) {
	return &mixSource{mixer: m, frames: buf.Frames, gain: 1, current: 1}, nil
}

func (s *mixSource) SetGain(gain float64) {
	s.mixer.mu.Lock()
	s.gain = gain
	s.mixer.mu.Unlock()
}

func (s *mixSource) Start() {
	m := s.mixer
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.current = s.gain
	m.sources = append(m.sources, s)
}

func (s *mixSource) Stop() {
	s.mixer.mu.Lock()
	s.stopped = true
	s.mixer.mu.Unlock()
}

// SetMasterVolume sets the output scalar. 1.0 is unity.
func (m *Mixer) SetMasterVolume(v float64) {
	if v < 0 {
		v = 0
	}
	m.mu.Lock()
	m.master = v
	m.mu.Unlock()
}

func (m *Mixer) MasterVolume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.master
}

// Playing returns the number of sources still producing sound.
func (m *Mixer) Playing() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// Process implements SampleSource. Gain changes are ramped linearly across
// the block to avoid zipper noise.
func (m *Mixer) Process(dst []float32) {
	clear(dst)
	m.mu.Lock()
	defer m.mu.Unlock()

	frames := len(dst) / 2
	kept := m.sources[:0]
	for _, s := range m.sources {
		// A source stopped at zero gain still owes the block that ramps it
		// down from its last level; any other stop is immediate.
		if s.stopped && (s.gain > 0 || s.current == 0) {
			continue
		}
		n := len(s.frames)/2 - s.pos
		if n > frames {
			n = frames
		}
		delta := 0.0
		if frames > 0 {
			delta = (s.gain - s.current) / float64(frames)
		}
		g := s.current
		for i := 0; i < n; i++ {
			g += delta
			j := (s.pos + i) * 2
			dst[i*2] += s.frames[j] * float32(g)
			dst[i*2+1] += s.frames[j+1] * float32(g)
		}
		s.pos += n
		s.current = s.gain
		if s.stopped {
			continue
		}
		if s.pos*2 >= len(s.frames) {
			// Finished naturally; the voice may still stop it later.
			s.stopped = true
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(m.sources); i++ {
		m.sources[i] = nil
	}
	m.sources = kept

	master := float32(m.master)
	for i := range dst {
		v := dst[i] * master
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		dst[i] = v
	}
}
