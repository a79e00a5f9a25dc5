package touchpiano

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/cbegin/touchpiano-go/internal/voice"
)

const (
	GestureStart  = "start"
	GestureMove   = "move"
	GestureEnd    = "end"
	GestureCancel = "cancel"
)

// GestureEvent is one touch event at a given tick of a scripted gesture.
type GestureEvent struct {
	Tick  int    `toml:"tick"`
	Kind  string `toml:"kind"`
	Touch int    `toml:"touch"`
	X     int    `toml:"x"`
	Y     int    `toml:"y"`
}

func (e GestureEvent) point() voice.TouchPoint {
	return voice.TouchPoint{ID: voice.TouchID(e.Touch), X: e.X, Y: e.Y}
}

type gestureScript struct {
	Events []GestureEvent `toml:"event"`
}

// LoadGestureScript reads [[event]] tables from a TOML file, sorted by tick.
func LoadGestureScript(path string) ([]GestureEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGestureScript(string(data))
}

func ParseGestureScript(text string) ([]GestureEvent, error) {
	var script gestureScript
	if _, err := toml.Decode(text, &script); err != nil {
		return nil, fmt.Errorf("failed to parse gesture script: %w", err)
	}
	for i, ev := range script.Events {
		switch ev.Kind {
		case GestureStart, GestureMove, GestureEnd, GestureCancel:
		default:
			return nil, fmt.Errorf("event %d: unknown kind %q", i, ev.Kind)
		}
		if ev.Tick < 0 {
			return nil, fmt.Errorf("event %d: negative tick %d", i, ev.Tick)
		}
	}
	sort.SliceStable(script.Events, func(i, j int) bool {
		return script.Events[i].Tick < script.Events[j].Tick
	})
	return script.Events, nil
}

func applyGesture(m *voice.Manager, ev GestureEvent) {
	switch ev.Kind {
	case GestureStart:
		m.TouchStart(ev.point())
	case GestureMove:
		m.TouchMove(ev.point())
	case GestureEnd:
		m.TouchEnd(ev.point())
	case GestureCancel:
		m.TouchCancel(ev.point())
	}
}
