package voice

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cbegin/touchpiano-go/internal/samples"
)

// TouchID identifies one live touch for as long as it stays down.
type TouchID int

// TouchPoint is one touch delivered with an input event.
type TouchPoint struct {
	ID   TouchID
	X, Y int
}

// HitTester resolves the key region under a screen position.
type HitTester interface {
	KeyAt(x, y int) (note string, ok bool)
}

// Observer is told when a key starts and stops sounding for a touch.
type Observer interface {
	KeyOn(note string)
	KeyOff(note string)
}

type nopObserver struct{}

func (nopObserver) KeyOn(string)  {}
func (nopObserver) KeyOff(string) {}

const (
	DefaultReleaseDuration = 400 * time.Millisecond
	DefaultTickRate        = 60
)

// ReleaseSteps converts a release duration into ticks at tickRate.
func ReleaseSteps(d time.Duration, tickRate int) int {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	steps := int(d.Seconds()*float64(tickRate) + 0.5)
	if steps < 1 {
		steps = 1
	}
	return steps
}

type Options struct {
	// ReleaseSteps is the number of Advance calls a release takes to reach
	// silence. Defaults to DefaultReleaseDuration at DefaultTickRate.
	ReleaseSteps int
	Observer     Observer
	Log          zerolog.Logger
}

type activeTouch struct {
	note  string
	voice *Voice
}

// Manager maps live touches to sounding voices. It is not safe for
// concurrent use; drive it from a single event loop.
type Manager struct {
	table     *samples.Table
	out       Output
	keys      HitTester
	obs       Observer
	log       zerolog.Logger
	step      float64
	active    map[TouchID]*activeTouch
	releasing []*Voice
}

func NewManager(table *samples.Table, out Output, keys HitTester, opts Options) *Manager {
	steps := opts.ReleaseSteps
	if steps <= 0 {
		steps = ReleaseSteps(DefaultReleaseDuration, DefaultTickRate)
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Manager{
		table:  table,
		out:    out,
		keys:   keys,
		obs:    obs,
		log:    opts.Log.With().Str("component", "voices").Logger(),
		step:   1 / float64(steps),
		active: make(map[TouchID]*activeTouch),
	}
}

// TouchStart starts a voice for every point that lands on a key.
func (m *Manager) TouchStart(points ...TouchPoint) {
	for _, p := range points {
		note, ok := m.keys.KeyAt(p.X, p.Y)
		if !ok {
			m.log.Trace().Int("touch", int(p.ID)).Msg("Touch start outside keys")
			continue
		}
		if prev, exists := m.active[p.ID]; exists {
			// A repeated start for a live touch replaces its voice.
			m.releaseTouch(p.ID, prev)
		}
		v, err := m.start(note)
		if err != nil {
			m.log.Warn().Err(err).Str("note", note).Int("touch", int(p.ID)).Msg("Failed to start voice")
			continue
		}
		m.obs.KeyOn(note)
		m.active[p.ID] = &activeTouch{note: note, voice: v}
		m.log.Debug().Str("note", note).Int("touch", int(p.ID)).Msg("Voice started")
	}
}

// TouchMove migrates a touch's voice when it slides onto a different key.
func (m *Manager) TouchMove(points ...TouchPoint) {
	for _, p := range points {
		at, exists := m.active[p.ID]
		if !exists {
			continue
		}
		note, ok := m.keys.KeyAt(p.X, p.Y)
		if !ok || note == at.note {
			continue
		}
		v, err := m.start(note)
		if err != nil {
			m.log.Warn().Err(err).Str("note", note).Int("touch", int(p.ID)).Msg("Failed to migrate voice")
			continue
		}
		m.release(at.voice)
		m.obs.KeyOff(at.note)
		m.obs.KeyOn(note)
		m.log.Debug().Str("from", at.note).Str("to", note).Int("touch", int(p.ID)).Msg("Voice migrated")
		at.note = note
		at.voice = v
	}
}

// TouchEnd releases the voice of every point that has one.
func (m *Manager) TouchEnd(points ...TouchPoint) {
	for _, p := range points {
		if at, exists := m.active[p.ID]; exists {
			m.releaseTouch(p.ID, at)
		}
	}
}

// TouchCancel behaves like TouchEnd.
func (m *Manager) TouchCancel(points ...TouchPoint) {
	m.TouchEnd(points...)
}

// CancelAll releases every live touch.
func (m *Manager) CancelAll() {
	for id, at := range m.active {
		m.releaseTouch(id, at)
	}
}

// Advance moves every release ramp forward one step and discards voices
// that have gone silent.
func (m *Manager) Advance() {
	kept := m.releasing[:0]
	for _, v := range m.releasing {
		if !v.advance() {
			kept = append(kept, v)
		}
	}
	for i := len(kept); i < len(m.releasing); i++ {
		m.releasing[i] = nil
	}
	m.releasing = kept
}

// Close stops every voice at once, sounding or releasing.
func (m *Manager) Close() {
	for id, at := range m.active {
		at.voice.stop()
		m.obs.KeyOff(at.note)
		delete(m.active, id)
	}
	for _, v := range m.releasing {
		v.stop()
	}
	m.releasing = nil
}

func (m *Manager) ActiveTouches() int { return len(m.active) }

// SoundingVoices counts voices that have not started releasing.
func (m *Manager) SoundingVoices() int {
	n := 0
	for _, at := range m.active {
		if !at.voice.releasing && !at.voice.stopped {
			n++
		}
	}
	return n
}

func (m *Manager) ReleasingVoices() int { return len(m.releasing) }

// KeyFor returns the note currently driven by a touch.
func (m *Manager) KeyFor(id TouchID) (string, bool) {
	at, ok := m.active[id]
	if !ok {
		return "", false
	}
	return at.note, true
}

func (m *Manager) start(note string) (*Voice, error) {
	buf, ok := m.table.Get(note)
	if !ok {
		return nil, &MissingSampleError{Note: note}
	}
	return startVoice(m.out, buf)
}

func (m *Manager) releaseTouch(id TouchID, at *activeTouch) {
	m.release(at.voice)
	m.obs.KeyOff(at.note)
	delete(m.active, id)
	m.log.Debug().Str("note", at.note).Int("touch", int(id)).Msg("Voice released")
}

func (m *Manager) release(v *Voice) {
	if v.releasing || v.stopped {
		return
	}
	v.release(m.step)
	m.releasing = append(m.releasing, v)
}

// MissingSampleError is returned when a key has no loaded sample.
type MissingSampleError struct {
	Note string
}

func (e *MissingSampleError) Error() string {
	return "no sample loaded for " + e.Note
}
