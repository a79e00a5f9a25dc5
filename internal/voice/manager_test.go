package voice

import (
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/cbegin/touchpiano-go/internal/samples"
)

type fakeSource struct {
	note    string
	gains   []float64
	started int
	stopped int
}

func (s *fakeSource) SetGain(g float64) { s.gains = append(s.gains, g) }
func (s *fakeSource) Start()            { s.started++ }
func (s *fakeSource) Stop()             { s.stopped++ }

func (s *fakeSource) gain() float64 {
	if len(s.gains) == 0 {
		return 0
	}
	return s.gains[len(s.gains)-1]
}

type fakeOutput struct {
	sources []*fakeSource
	fail    bool
}

func (o *fakeOutput) NewSource(buf *samples.Buffer) (Source, error) {
	if o.fail {
		return nil, errors.New("device gone")
	}
	s := &fakeSource{note: buf.Note}
	o.sources = append(o.sources, s)
	return s, nil
}

func (o *fakeOutput) sounding() int {
	n := 0
	for _, s := range o.sources {
		if s.stopped == 0 && s.gain() == 1 {
			n++
		}
	}
	return n
}

// stripKeys lays notes out as 100px wide columns starting at x=0.
type stripKeys []string

func (k stripKeys) KeyAt(x, y int) (string, bool) {
	if x < 0 || y < 0 || y >= 100 {
		return "", false
	}
	i := x / 100
	if i >= len(k) {
		return "", false
	}
	return k[i], true
}

type recordingObserver struct {
	events []string
	lit    map[string]int
}

func (o *recordingObserver) KeyOn(note string) {
	o.events = append(o.events, "on:"+note)
	if o.lit == nil {
		o.lit = make(map[string]int)
	}
	o.lit[note]++
}

func (o *recordingObserver) KeyOff(note string) {
	o.events = append(o.events, "off:"+note)
	o.lit[note]--
}

func testTable(notes ...string) *samples.Table {
	bufs := make([]*samples.Buffer, len(notes))
	for i, n := range notes {
		bufs[i] = &samples.Buffer{Note: n, SampleRate: 48000, Frames: make([]float32, 96)}
	}
	return samples.NewTable(bufs...)
}

func newTestManager(steps int, notes ...string) (*Manager, *fakeOutput, *recordingObserver) {
	out := &fakeOutput{}
	obs := &recordingObserver{}
	m := NewManager(testTable(notes...), out, stripKeys(notes), Options{ReleaseSteps: steps, Observer: obs})
	return m, out, obs
}

func at(id TouchID, key int) TouchPoint {
	return TouchPoint{ID: id, X: key*100 + 50, Y: 50}
}

func TestEndToEndSlideAcrossKeys(t *testing.T) {
	m, out, obs := newTestManager(4, "C4", "Db4")

	m.TouchStart(at(1, 0))
	if m.SoundingVoices() != 1 || len(out.sources) != 1 || out.sources[0].note != "C4" {
		t.Fatalf("expected one C4 voice, got %d sources", len(out.sources))
	}
	if obs.lit["C4"] != 1 {
		t.Fatalf("C4 should be lit")
	}

	m.TouchMove(at(1, 1))
	if len(out.sources) != 2 || out.sources[1].note != "Db4" {
		t.Fatalf("expected Db4 voice to start")
	}
	if m.SoundingVoices() != 1 || m.ReleasingVoices() != 1 {
		t.Fatalf("sounding=%d releasing=%d, want 1/1", m.SoundingVoices(), m.ReleasingVoices())
	}
	if obs.lit["C4"] != 0 || obs.lit["Db4"] != 1 {
		t.Fatalf("lit = %v", obs.lit)
	}
	if note, _ := m.KeyFor(1); note != "Db4" {
		t.Fatalf("touch 1 key = %s, want Db4", note)
	}

	m.TouchEnd(at(1, 1))
	if m.ActiveTouches() != 0 || m.SoundingVoices() != 0 {
		t.Fatalf("expected no active touches")
	}
	if m.ReleasingVoices() != 2 {
		t.Fatalf("releasing = %d, want 2", m.ReleasingVoices())
	}
	for i := 0; i < 4; i++ {
		m.Advance()
	}
	for _, s := range out.sources {
		if s.stopped != 1 {
			t.Fatalf("%s stopped %d times, want 1", s.note, s.stopped)
		}
	}
	want := []string{"on:C4", "off:C4", "on:Db4", "off:Db4"}
	for i, ev := range want {
		if obs.events[i] != ev {
			t.Fatalf("events = %v, want %v", obs.events, want)
		}
	}
}

func TestSameKeyMoveIsIdempotent(t *testing.T) {
	m, out, _ := newTestManager(4, "C4", "D4")
	m.TouchStart(at(7, 0))
	for i := 0; i < 10; i++ {
		m.TouchMove(TouchPoint{ID: 7, X: 10 + i*5, Y: 50})
	}
	if len(out.sources) != 1 || m.ReleasingVoices() != 0 {
		t.Fatalf("same-key moves started %d sources, released %d", len(out.sources), m.ReleasingVoices())
	}
}

func TestMoveOffBoardKeepsVoice(t *testing.T) {
	m, out, _ := newTestManager(4, "C4")
	m.TouchStart(at(1, 0))
	m.TouchMove(TouchPoint{ID: 1, X: 50, Y: 500})
	if m.SoundingVoices() != 1 || len(out.sources) != 1 {
		t.Fatalf("move to no key should be ignored")
	}
}

func TestUntrackedTouchesAreIgnored(t *testing.T) {
	m, out, _ := newTestManager(4, "C4")
	m.TouchStart(TouchPoint{ID: 3, X: -10, Y: 50})
	m.TouchMove(at(3, 0))
	m.TouchEnd(at(3, 0))
	m.TouchCancel(at(9, 0))
	if len(out.sources) != 0 || m.ActiveTouches() != 0 {
		t.Fatalf("untracked touch produced voices")
	}
}

func TestRepeatedStartReplacesVoice(t *testing.T) {
	m, out, obs := newTestManager(4, "C4", "D4")
	m.TouchStart(at(1, 0))
	m.TouchStart(at(1, 1))
	if m.ActiveTouches() != 1 || m.SoundingVoices() != 1 || m.ReleasingVoices() != 1 {
		t.Fatalf("active=%d sounding=%d releasing=%d", m.ActiveTouches(), m.SoundingVoices(), m.ReleasingVoices())
	}
	if obs.lit["C4"] != 0 || out.sounding() != 1 {
		t.Fatalf("C4 should have been released")
	}
}

func TestMissingSampleIgnoresTouch(t *testing.T) {
	out := &fakeOutput{}
	m := NewManager(testTable("C4"), out, stripKeys{"C4", "D4"}, Options{})
	m.TouchStart(at(1, 1))
	if m.ActiveTouches() != 0 {
		t.Fatal("touch on key without sample should be ignored")
	}
	m.TouchStart(at(2, 0))
	m.TouchMove(at(2, 1))
	if note, _ := m.KeyFor(2); note != "C4" || m.ReleasingVoices() != 0 {
		t.Fatalf("failed migration should keep the old voice, key=%s", note)
	}
}

func TestOutputFailureIgnoresTouch(t *testing.T) {
	m, out, obs := newTestManager(4, "C4")
	out.fail = true
	m.TouchStart(at(1, 0))
	if m.ActiveTouches() != 0 || len(obs.events) != 0 {
		t.Fatal("failed start should leave no trace")
	}
}

func TestReleaseRampIsMonotonicAndTerminates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		m, out, _ := newTestManager(steps, "C4")
		m.TouchStart(at(1, 0))
		m.TouchEnd(at(1, 0))
		src := out.sources[0]
		for i := 0; i < steps; i++ {
			m.Advance()
		}
		if src.stopped != 1 {
			t.Fatalf("source stopped %d times after %d steps", src.stopped, steps)
		}
		for i := 1; i < len(src.gains); i++ {
			if src.gains[i] > src.gains[i-1] {
				t.Fatalf("gain rose: %v", src.gains)
			}
		}
		if src.gain() != 0 {
			t.Fatalf("final gain = %v", src.gain())
		}
		m.Advance()
		if src.stopped != 1 || m.ReleasingVoices() != 0 {
			t.Fatalf("voice kept releasing after stop")
		}
	})
}

func TestOneVoicePerTouchProperty(t *testing.T) {
	notes := []string{"C4", "Db4", "D4", "Eb4", "E4"}
	rapid.Check(t, func(t *rapid.T) {
		steps := rapid.IntRange(1, 8).Draw(t, "steps")
		m, out, obs := newTestManager(steps, notes...)
		live := map[TouchID]string{}

		ops := rapid.IntRange(1, 80).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			id := TouchID(rapid.IntRange(0, 4).Draw(t, "id"))
			key := rapid.IntRange(-1, len(notes)).Draw(t, "key")
			p := TouchPoint{ID: id, X: key*100 + 50, Y: 50}
			resolved := key >= 0 && key < len(notes)
			before := len(out.sources)

			switch rapid.IntRange(0, 4).Draw(t, "kind") {
			case 0:
				m.TouchStart(p)
				if resolved {
					live[id] = notes[key]
				}
			case 1:
				prev, tracked := live[id]
				m.TouchMove(p)
				if tracked && resolved && prev != notes[key] {
					if len(out.sources) != before+1 {
						t.Fatalf("migration must start exactly one voice")
					}
					live[id] = notes[key]
				} else if len(out.sources) != before {
					t.Fatalf("no-op move started a voice")
				}
			case 2:
				m.TouchEnd(p)
				delete(live, id)
			case 3:
				m.TouchCancel(p)
				delete(live, id)
			case 4:
				m.Advance()
			}

			if m.ActiveTouches() != len(live) || m.SoundingVoices() != len(live) {
				t.Fatalf("active=%d sounding=%d, want %d", m.ActiveTouches(), m.SoundingVoices(), len(live))
			}
			if out.sounding() < len(live) {
				t.Fatalf("fewer full-gain sources than live touches")
			}
			for id, note := range live {
				if got, _ := m.KeyFor(id); got != note {
					t.Fatalf("touch %d key = %s, want %s", id, got, note)
				}
			}
			lit := 0
			for _, n := range obs.lit {
				if n < 0 {
					t.Fatalf("key released more often than pressed: %v", obs.lit)
				}
				lit += n
			}
			if lit != len(live) {
				t.Fatalf("lit count = %d, want %d", lit, len(live))
			}
		}

		m.CancelAll()
		for i := 0; i < steps; i++ {
			m.Advance()
		}
		for _, s := range out.sources {
			if s.stopped != 1 {
				t.Fatalf("source %s stopped %d times", s.note, s.stopped)
			}
		}
	})
}

func TestCloseStopsEverything(t *testing.T) {
	m, out, obs := newTestManager(100, "C4", "D4")
	m.TouchStart(at(1, 0), at(2, 1))
	m.TouchEnd(at(1, 0))
	m.Close()
	for _, s := range out.sources {
		if s.stopped != 1 {
			t.Fatalf("source %s stopped %d times", s.note, s.stopped)
		}
	}
	if m.ActiveTouches() != 0 || m.ReleasingVoices() != 0 || obs.lit["D4"] != 0 {
		t.Fatal("close left state behind")
	}
}

func TestReleaseSteps(t *testing.T) {
	if got := ReleaseSteps(DefaultReleaseDuration, 60); got != 24 {
		t.Fatalf("steps = %d, want 24", got)
	}
	if got := ReleaseSteps(0, 60); got != 1 {
		t.Fatalf("steps = %d, want 1", got)
	}
}
