package keyboard

import (
	"image"
	"strings"
)

// Key is one touch region bound to a note.
type Key struct {
	Note  string
	Black bool
	Rect  image.Rectangle
}

// Layout is a piano-style arrangement of keys. Naturals fill the bounds as
// white keys; flats sit as shorter black keys over the boundary between
// their neighbours.
type Layout struct {
	notes  []string
	keys   []Key
	lit    map[string]int
	bounds image.Rectangle
}

const (
	blackWidthRatio  = 0.6
	blackHeightRatio = 0.62
)

func New(notes []string, bounds image.Rectangle) *Layout {
	l := &Layout{
		notes: append([]string(nil), notes...),
		lit:   make(map[string]int, len(notes)),
	}
	l.Resize(bounds)
	return l
}

// IsBlack reports whether a note name is spelled with an accidental.
func IsBlack(note string) bool {
	return len(note) > 1 && strings.ContainsAny(note[1:2], "b#")
}

// Resize recomputes key geometry for new bounds.
func (l *Layout) Resize(bounds image.Rectangle) {
	if bounds == l.bounds && len(l.keys) == len(l.notes) {
		return
	}
	l.bounds = bounds
	l.keys = l.keys[:0]

	whites := 0
	for _, n := range l.notes {
		if !IsBlack(n) {
			whites++
		}
	}
	if whites == 0 {
		whites = 1
	}
	whiteW := float64(bounds.Dx()) / float64(whites)
	blackW := int(whiteW * blackWidthRatio)
	blackH := int(float64(bounds.Dy()) * blackHeightRatio)

	col := 0
	for _, n := range l.notes {
		var r image.Rectangle
		if IsBlack(n) {
			center := bounds.Min.X + int(float64(col)*whiteW)
			r = image.Rect(center-blackW/2, bounds.Min.Y, center+blackW-blackW/2, bounds.Min.Y+blackH)
			l.keys = append(l.keys, Key{Note: n, Black: true, Rect: r.Intersect(bounds)})
		} else {
			x0 := bounds.Min.X + int(float64(col)*whiteW)
			x1 := bounds.Min.X + int(float64(col+1)*whiteW)
			r = image.Rect(x0, bounds.Min.Y, x1, bounds.Max.Y)
			l.keys = append(l.keys, Key{Note: n, Rect: r})
			col++
		}
	}
}

func (l *Layout) Bounds() image.Rectangle { return l.bounds }

// Keys returns white keys first, then black keys, i.e. in drawing order.
func (l *Layout) Keys() []Key {
	out := make([]Key, 0, len(l.keys))
	for _, k := range l.keys {
		if !k.Black {
			out = append(out, k)
		}
	}
	for _, k := range l.keys {
		if k.Black {
			out = append(out, k)
		}
	}
	return out
}

// KeyAt returns the note under (x, y). Black keys cover white ones.
func (l *Layout) KeyAt(x, y int) (string, bool) {
	pt := image.Pt(x, y)
	for _, k := range l.keys {
		if k.Black && pt.In(k.Rect) {
			return k.Note, true
		}
	}
	for _, k := range l.keys {
		if !k.Black && pt.In(k.Rect) {
			return k.Note, true
		}
	}
	return "", false
}

// KeyOn marks a key as held. Keys are reference counted so a key stays
// lit while any touch holds it.
func (l *Layout) KeyOn(note string) {
	l.lit[note]++
}

func (l *Layout) KeyOff(note string) {
	if l.lit[note] <= 1 {
		delete(l.lit, note)
		return
	}
	l.lit[note]--
}

func (l *Layout) IsActive(note string) bool { return l.lit[note] > 0 }

// Reset clears all active state.
func (l *Layout) Reset() {
	clear(l.lit)
}
