package client

import (
	"testing"
	"time"
)

func TestScaleAndClamp(t *testing.T) {
	e := NewInputEncoder(100, 50)
	tests := []struct {
		uiX, uiY, scale float64
		wantX, wantY    uint16
	}{
		{0, 0, 1.0, 0, 0},
		{50, 25, 1.0, 50, 25},
		{200, 25, 1.0, 99, 25}, // clamp x to width-1
		{50, 100, 1.0, 50, 49}, // clamp y to height-1
		{-10, -10, 1.0, 0, 0},  // clamp negative
		{100, 50, 0.5, 99, 49}, // scale before clamp: 100/0.5=200 -> clamp to 99
	}
	for _, test := range tests {
		x, y := e.scaleAndClamp(test.uiX, test.uiY, test.scale)
		if x != test.wantX || y != test.wantY {
			t.Errorf("scaleAndClamp(%v,%v,%v) = (%d,%d), want (%d,%d)", test.uiX, test.uiY, test.scale, x, y, test.wantX, test.wantY)
		}
	}
}

func TestTranslateKeysymLettersPassThrough(t *testing.T) {
	k, ok := TranslateKeysym('a')
	if !ok || k != uint32('a') {
		t.Errorf("TranslateKeysym('a') = (%d, %v), want (%d, true)", k, ok, 'a')
	}
}

func TestTranslateKeysymSpecialKeys(t *testing.T) {
	tests := []struct {
		r    rune
		want uint32
	}{
		{'\b', KeysymBackspace},
		{'\t', KeysymTab},
		{'\n', KeysymReturn},
		{0x1b, KeysymEscape},
	}
	for _, test := range tests {
		got, ok := TranslateKeysym(test.r)
		if !ok || got != test.want {
			t.Errorf("TranslateKeysym(%q) = (%x, %v), want (%x, true)", test.r, got, ok, test.want)
		}
	}
}

func TestTranslateKeyNamedKeys(t *testing.T) {
	tests := []struct {
		key  Key
		want uint32
	}{
		{KeyEnter, KeysymReturn},
		{KeyEscape, KeysymEscape},
		{KeyDelete, KeysymDelete},
		{KeyHome, KeysymHome},
		{KeyEnd, KeysymEnd},
		{KeyPageUp, KeysymPageUp},
		{KeyPageDown, KeysymPageDown},
		{KeyLeft, KeysymLeft},
		{KeyRight, KeysymRight},
		{KeyUp, KeysymUp},
		{KeyDown, KeysymDown},
		{KeyShift, KeysymShiftL},
		{KeyControl, KeysymControlL},
		{KeyAlt, KeysymAltL},
		{KeyF1, KeysymF1},
		{KeyF12, KeysymF12},
	}
	for _, test := range tests {
		got, ok := TranslateKey(test.key)
		if !ok || got != test.want {
			t.Errorf("TranslateKey(%d) = (%#x, %v), want (%#x, true)", test.key, got, ok, test.want)
		}
	}
}

func TestTranslateKeyUnknownKey(t *testing.T) {
	if _, ok := TranslateKey(Key(9999)); ok {
		t.Errorf("TranslateKey of an unmapped key reported ok = true")
	}
}

// countingTransport wraps a Transport and counts WriteAll calls, so tests
// can assert how many wire messages an operation produced without
// inspecting byte contents.
type countingTransport struct {
	Transport
	writes int
}

func (c *countingTransport) WriteAll(b []byte) error {
	c.writes++
	return c.Transport.WriteAll(b)
}

func TestChordCtrlAltDelSequence(t *testing.T) {
	counting := &countingTransport{Transport: NewBytesTransport(nil)}
	var sleeps int
	err := Chord(counting, func(time.Duration) { sleeps++ }, ChordCtrlAltDel...)
	if err != nil {
		t.Fatalf("Chord: %v", err)
	}
	if counting.writes != 2*len(ChordCtrlAltDel) {
		t.Errorf("Chord wrote %d messages, want %d (one down + one up per key)", counting.writes, 2*len(ChordCtrlAltDel))
	}
	if sleeps != 2*len(ChordCtrlAltDel) {
		t.Errorf("Chord slept %d times, want %d (one spacing per transition)", sleeps, 2*len(ChordCtrlAltDel))
	}
}

func TestWheelSendsPressThenRelease(t *testing.T) {
	counting := &countingTransport{Transport: NewBytesTransport(nil)}
	e := NewInputEncoder(100, 100)
	if err := e.Wheel(counting, 10, 10, 1.0, true, 0); err != nil {
		t.Fatalf("Wheel: %v", err)
	}
	if counting.writes != 2 {
		t.Errorf("Wheel wrote %d messages, want 2 (press + release)", counting.writes)
	}
}
