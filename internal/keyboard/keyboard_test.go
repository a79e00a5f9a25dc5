package keyboard

import (
	"image"
	"testing"

	"github.com/cbegin/touchpiano-go/internal/samples"
)

func TestLayoutDefaultNotes(t *testing.T) {
	l := New(samples.DefaultNotes, image.Rect(0, 0, 800, 300))
	keys := l.Keys()
	if len(keys) != 13 {
		t.Fatalf("keys = %d, want 13", len(keys))
	}
	whites, blacks := 0, 0
	for _, k := range keys {
		if k.Black {
			blacks++
		} else {
			whites++
		}
	}
	if whites != 8 || blacks != 5 {
		t.Fatalf("whites=%d blacks=%d, want 8/5", whites, blacks)
	}
	// 100px wide white keys.
	cases := []struct {
		x, y int
		want string
	}{
		{10, 290, "C4"},
		{150, 290, "D4"},
		{100, 50, "Db4"},
		{790, 290, "C5"},
		{300, 50, "F4"},
		{680, 50, "B4"},
		{610, 50, "Bb4"},
	}
	for _, c := range cases {
		got, ok := l.KeyAt(c.x, c.y)
		if !ok || got != c.want {
			t.Errorf("KeyAt(%d,%d) = %q,%v want %q", c.x, c.y, got, ok, c.want)
		}
	}
	if _, ok := l.KeyAt(810, 10); ok {
		t.Error("point outside the board should not resolve")
	}
}

func TestLayoutResize(t *testing.T) {
	l := New([]string{"C4", "D4"}, image.Rect(0, 0, 200, 100))
	if got, _ := l.KeyAt(150, 50); got != "D4" {
		t.Fatalf("before resize got %s", got)
	}
	l.Resize(image.Rect(0, 0, 400, 100))
	if got, _ := l.KeyAt(150, 50); got != "C4" {
		t.Fatalf("after resize got %s", got)
	}
}

func TestKeyActiveRefCount(t *testing.T) {
	l := New([]string{"C4"}, image.Rect(0, 0, 100, 100))
	l.KeyOn("C4")
	l.KeyOn("C4")
	l.KeyOff("C4")
	if !l.IsActive("C4") {
		t.Fatal("key should stay lit while another touch holds it")
	}
	l.KeyOff("C4")
	l.KeyOff("C4")
	if l.IsActive("C4") {
		t.Fatal("key should be dark")
	}
	l.KeyOn("C4")
	l.Reset()
	if l.IsActive("C4") {
		t.Fatal("reset should clear lit keys")
	}
}

func TestIsBlack(t *testing.T) {
	for note, want := range map[string]bool{"C4": false, "Db4": true, "F#3": true, "B4": false, "": false} {
		if IsBlack(note) != want {
			t.Errorf("IsBlack(%q) = %v", note, !want)
		}
	}
}
