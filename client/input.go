package client

import (
	"encoding/binary"
	"time"

	"golang.org/x/time/rate"

	"github.com/dalton-tools/rfbshadow/rfb"
)

// PointerEvent button mask bits.
const (
	ButtonLeft     = 1
	ButtonMiddle   = 2
	ButtonRight    = 4
	ButtonWheelUp  = 8
	ButtonWheelDn  = 16
)

// chordSpacing is the inter-transition delay for composite chords (Ctrl-
// Alt-Del, Alt-Tab); slow servers coalesce or drop faster sequences.
const chordSpacing = 50 * time.Millisecond

// motionThrottleHz is the UI-boundary pointer-move rate limit.
const motionThrottleHz = 50

// InputEncoder translates UI-level pointer/key events into wire messages,
// scaling and clamping coordinates and rate-limiting motion. It writes
// directly to Transport under the caller-held transport-write lock, which
// serializes all outbound writes.
type InputEncoder struct {
	width, height int
	motionLimiter *rate.Limiter
}

func NewInputEncoder(width, height int) *InputEncoder {
	return &InputEncoder{
		width: width, height: height,
		motionLimiter: rate.NewLimiter(rate.Limit(motionThrottleHz), 1),
	}
}

// scaleAndClamp maps a UI-space coordinate into framebuffer space at the
// given presenter scale and clamps it to [0, width) x [0, height).
func (e *InputEncoder) scaleAndClamp(uiX, uiY float64, scale float64) (x, y uint16) {
	realX := int(uiX / scale)
	realY := int(uiY / scale)
	if realX < 0 {
		realX = 0
	}
	if realX >= e.width {
		realX = e.width - 1
	}
	if realY < 0 {
		realY = 0
	}
	if realY >= e.height {
		realY = e.height - 1
	}
	return uint16(realX), uint16(realY)
}

// PointerMove sends a motion-only pointer event (buttonMask unchanged from
// the last press state), subject to the 50Hz motion throttle. A throttled
// event is simply dropped, never queued.
func (e *InputEncoder) PointerMove(transport Transport, uiX, uiY, scale float64, buttonMask uint8) error {
	if !e.motionLimiter.Allow() {
		return nil
	}
	x, y := e.scaleAndClamp(uiX, uiY, scale)
	return writePointerEvent(transport, buttonMask, x, y)
}

// PointerButton sends a press or release of the given button bit, never
// throttled (only motion is rate-limited).
func (e *InputEncoder) PointerButton(transport Transport, uiX, uiY, scale float64, buttonMask uint8) error {
	x, y := e.scaleAndClamp(uiX, uiY, scale)
	return writePointerEvent(transport, buttonMask, x, y)
}

// Wheel synthesizes a press of button 8 (up) or 16 (down) immediately
// followed by a release.
func (e *InputEncoder) Wheel(transport Transport, uiX, uiY, scale float64, up bool, currentButtons uint8) error {
	x, y := e.scaleAndClamp(uiX, uiY, scale)
	bit := uint8(ButtonWheelDn)
	if up {
		bit = ButtonWheelUp
	}
	if err := writePointerEvent(transport, currentButtons|bit, x, y); err != nil {
		return err
	}
	return writePointerEvent(transport, currentButtons, x, y)
}

func writePointerEvent(transport Transport, buttonMask uint8, x, y uint16) error {
	msg := rfb.PointerEventMessage{ButtonMask: buttonMask, X: x, Y: y}
	return msg.Write(transportWriter{transport}, binary.BigEndian)
}

// KeyEvent sends a single key press or release.
func KeyEvent(transport Transport, keysym uint32, down bool) error {
	msg := rfb.KeyEventMessage{Pressed: down, KeySym: keysym}
	return msg.Write(transportWriter{transport}, binary.BigEndian)
}

// Chord sends an explicit down/up sequence for each keysym in order, with
// chordSpacing between every transition, for composite chords like Ctrl-
// Alt-Del that slow servers may otherwise coalesce or drop.
func Chord(transport Transport, sleep func(time.Duration), keysyms ...uint32) error {
	for _, k := range keysyms {
		if err := KeyEvent(transport, k, true); err != nil {
			return err
		}
		sleep(chordSpacing)
	}
	for i := len(keysyms) - 1; i >= 0; i-- {
		if err := KeyEvent(transport, keysyms[i], false); err != nil {
			return err
		}
		sleep(chordSpacing)
	}
	return nil
}

// X11 keysyms for the common navigation, function, and modifier keys (Xlib
// keysymdef.h values).
const (
	KeysymBackspace = 0xFF08
	KeysymTab       = 0xFF09
	KeysymReturn    = 0xFF0D
	KeysymEscape    = 0xFF1B
	KeysymDelete    = 0xFFFF
	KeysymHome      = 0xFF50
	KeysymLeft      = 0xFF51
	KeysymUp        = 0xFF52
	KeysymRight     = 0xFF53
	KeysymDown      = 0xFF54
	KeysymPageUp    = 0xFF55
	KeysymPageDown  = 0xFF56
	KeysymEnd       = 0xFF57
	KeysymF1        = 0xFFBE
	KeysymF2        = 0xFFBF
	KeysymF3        = 0xFFC0
	KeysymF4        = 0xFFC1
	KeysymF5        = 0xFFC2
	KeysymF6        = 0xFFC3
	KeysymF7        = 0xFFC4
	KeysymF8        = 0xFFC5
	KeysymF9        = 0xFFC6
	KeysymF10       = 0xFFC7
	KeysymF11       = 0xFFC8
	KeysymF12       = 0xFFC9
	KeysymShiftL    = 0xFFE1
	KeysymControlL  = 0xFFE3
	KeysymAltL      = 0xFFE9
)

// Key identifies a non-character key on the host keyboard, independent of
// any one UI framework's key-code numbering. The embedding application maps
// its framework's codes onto these and calls TranslateKey; character input
// goes through TranslateKeysym instead.
type Key int

const (
	KeyEnter Key = iota
	KeyEscape
	KeyTab
	KeyBackspace
	KeyDelete
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	KeyShift
	KeyControl
	KeyAlt
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

var keyKeysyms = map[Key]uint32{
	KeyEnter:     KeysymReturn,
	KeyEscape:    KeysymEscape,
	KeyTab:       KeysymTab,
	KeyBackspace: KeysymBackspace,
	KeyDelete:    KeysymDelete,
	KeyHome:      KeysymHome,
	KeyEnd:       KeysymEnd,
	KeyPageUp:    KeysymPageUp,
	KeyPageDown:  KeysymPageDown,
	KeyLeft:      KeysymLeft,
	KeyRight:     KeysymRight,
	KeyUp:        KeysymUp,
	KeyDown:      KeysymDown,
	KeyShift:     KeysymShiftL,
	KeyControl:   KeysymControlL,
	KeyAlt:       KeysymAltL,
	KeyF1:        KeysymF1,
	KeyF2:        KeysymF2,
	KeyF3:        KeysymF3,
	KeyF4:        KeysymF4,
	KeyF5:        KeysymF5,
	KeyF6:        KeysymF6,
	KeyF7:        KeysymF7,
	KeyF8:        KeysymF8,
	KeyF9:        KeysymF9,
	KeyF10:       KeysymF10,
	KeyF11:       KeysymF11,
	KeyF12:       KeysymF12,
}

// TranslateKey maps a named non-character key (arrows, function keys,
// modifiers, navigation) to its X11 keysym.
func TranslateKey(k Key) (uint32, bool) {
	sym, ok := keyKeysyms[k]
	return sym, ok
}

// TranslateKeysym maps character input — whatever rune the embedding UI
// framework produces — to the matching X11 keysym. Letters, digits, and
// the rest of printable ASCII pass through their ASCII value unchanged,
// which is the X11 convention for that range; the control characters a
// text widget reports for Backspace/Tab/Enter/Escape map to their keysyms.
// Non-character keys have no rune and go through TranslateKey.
func TranslateKeysym(r rune) (uint32, bool) {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return uint32(r), true
	case r == '\b':
		return KeysymBackspace, true
	case r == '\t':
		return KeysymTab, true
	case r == '\n', r == '\r':
		return KeysymReturn, true
	case r == 0x1b:
		return KeysymEscape, true
	default:
		if r >= 0x20 && r < 0x7f {
			return uint32(r), true
		}
		return 0, false
	}
}

// Common composite chords.
var (
	ChordCtrlAltDel = []uint32{KeysymControlL, KeysymAltL, KeysymDelete}
	ChordAltTab     = []uint32{KeysymAltL, KeysymTab}
)
