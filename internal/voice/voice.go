package voice

import "github.com/cbegin/touchpiano-go/internal/samples"

// silence is the gain treated as fully faded out.
const silence = 1e-6

// Source is a playing instance of a buffer with its own gain control.
type Source interface {
	SetGain(gain float64)
	Start()
	Stop()
}

// Output creates sources connected to the shared audio output.
type Output interface {
	NewSource(buf *samples.Buffer) (Source, error)
}

// Voice is one sounding sample. Once released its gain only falls, and the
// source is stopped exactly once when the gain reaches zero.
type Voice struct {
	note      string
	source    Source
	gain      float64
	releasing bool
	step      float64
	stopped   bool
}

func startVoice(out Output, buf *samples.Buffer) (*Voice, error) {
	src, err := out.NewSource(buf)
	if err != nil {
		return nil, err
	}
	src.SetGain(1)
	src.Start()
	return &Voice{note: buf.Note, source: src, gain: 1}, nil
}

func (v *Voice) Note() string    { return v.note }
func (v *Voice) Gain() float64   { return v.gain }
func (v *Voice) Releasing() bool { return v.releasing }
func (v *Voice) Stopped() bool   { return v.stopped }

// release arms the fade-out. step is the gain removed per advance.
func (v *Voice) release(step float64) {
	if v.releasing || v.stopped {
		return
	}
	if step <= 0 || step > 1 {
		step = 1
	}
	v.releasing = true
	v.step = step
}

// advance moves the release ramp one step and reports whether the voice
// has been stopped.
func (v *Voice) advance() bool {
	if v.stopped {
		return true
	}
	if !v.releasing {
		return false
	}
	v.gain -= v.step
	if v.gain <= silence {
		v.gain = 0
	}
	v.source.SetGain(v.gain)
	if v.gain == 0 {
		v.stop()
	}
	return v.stopped
}

func (v *Voice) stop() {
	if v.stopped {
		return
	}
	v.stopped = true
	v.gain = 0
	v.source.Stop()
}
