package samples

import "time"

// DefaultNotes is the C4..C5 chromatic set, accidentals spelled as flats.
var DefaultNotes = []string{"C4", "Db4", "D4", "Eb4", "E4", "F4", "Gb4", "G4", "Ab4", "A4", "Bb4", "B4", "C5"}

// AssetPath returns the relative path of a note's sample asset.
func AssetPath(note string, ext string) string {
	if ext == "" {
		ext = "mp3"
	}
	return "assets/samples/" + note + "." + ext
}

// Buffer is a decoded sample: interleaved stereo float32 PCM.
type Buffer struct {
	Note       string
	SampleRate int
	Frames     []float32
}

// Len returns the number of stereo frames.
func (b *Buffer) Len() int { return len(b.Frames) / 2 }

func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Len()) * time.Second / time.Duration(b.SampleRate)
}

// Table maps note names to decoded buffers. It is read-only once built.
type Table struct {
	notes   []string
	buffers map[string]*Buffer
}

func newTable(notes []string, buffers map[string]*Buffer) *Table {
	ordered := make([]string, len(notes))
	copy(ordered, notes)
	return &Table{notes: ordered, buffers: buffers}
}

// NewTable builds a table from already decoded buffers, keeping their order.
func NewTable(buffers ...*Buffer) *Table {
	notes := make([]string, 0, len(buffers))
	m := make(map[string]*Buffer, len(buffers))
	for _, b := range buffers {
		if _, dup := m[b.Note]; dup {
			continue
		}
		notes = append(notes, b.Note)
		m[b.Note] = b
	}
	return newTable(notes, m)
}

func (t *Table) Get(note string) (*Buffer, bool) {
	if t == nil {
		return nil, false
	}
	b, ok := t.buffers[note]
	return b, ok
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.buffers)
}

// Notes returns the note names in load order.
func (t *Table) Notes() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.notes))
	copy(out, t.notes)
	return out
}
