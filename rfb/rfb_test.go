package rfb

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestProtocolVersionMessageRoundTrip(t *testing.T) {
	m := ProtocolVersionMessage{Major: 3, Minor: 8}
	var buf bytes.Buffer
	if err := m.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.String() != "RFB 003.008\n" {
		t.Fatalf("wrote %q, want %q", buf.String(), "RFB 003.008\n")
	}
	var got ProtocolVersionMessage
	if err := got.Read(&buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != m {
		t.Errorf("got %+v, want %+v", got, m)
	}
}

func TestSecurityTypesMessageRoundTrip(t *testing.T) {
	m := SecurityTypesMessage{Types: []SecurityType{SecurityTypeNone, SecurityTypeVNC}}
	var buf bytes.Buffer
	if err := m.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got SecurityTypesMessage
	if err := got.Read(&buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Rejected {
		t.Fatalf("got.Rejected = true, want false")
	}
	if len(got.Types) != 2 || got.Types[0] != SecurityTypeNone || got.Types[1] != SecurityTypeVNC {
		t.Errorf("got.Types = %v, want [None VNC]", got.Types)
	}
}

func TestSecurityTypesMessageRejection(t *testing.T) {
	m := SecurityTypesMessage{Rejected: true, Reason: "too many connections"}
	var buf bytes.Buffer
	if err := m.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got SecurityTypesMessage
	if err := got.Read(&buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.Rejected {
		t.Fatalf("got.Rejected = false, want true")
	}
	if got.Reason != m.Reason {
		t.Errorf("got.Reason = %q, want %q", got.Reason, m.Reason)
	}
}

func TestChooseSecurityTypePrefersVNC(t *testing.T) {
	got, err := ChooseSecurityType([]SecurityType{SecurityTypeNone, SecurityTypeVNC})
	if err != nil {
		t.Fatalf("ChooseSecurityType: %v", err)
	}
	if got != SecurityTypeVNC {
		t.Errorf("got %v, want SecurityTypeVNC", got)
	}
}

func TestChooseSecurityTypeFallsBackToNone(t *testing.T) {
	got, err := ChooseSecurityType([]SecurityType{SecurityTypeNone})
	if err != nil {
		t.Fatalf("ChooseSecurityType: %v", err)
	}
	if got != SecurityTypeNone {
		t.Errorf("got %v, want SecurityTypeNone", got)
	}
}

func TestChooseSecurityTypeRejectsMsLogonOnly(t *testing.T) {
	_, err := ChooseSecurityType([]SecurityType{SecurityTypeMsLogonII})
	if err == nil {
		t.Fatalf("expected error when only MS-Logon II is offered")
	}
}

func TestChooseSecurityTypeRejectsEmpty(t *testing.T) {
	_, err := ChooseSecurityType(nil)
	if err == nil {
		t.Fatalf("expected error when nothing is offered")
	}
}

func TestSecurityResultMessageOK(t *testing.T) {
	var buf bytes.Buffer
	m := SecurityResultMessage{OK: true}
	if err := m.Write(&buf, binary.BigEndian); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got SecurityResultMessage
	if err := got.Read(&buf, binary.BigEndian); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.OK {
		t.Errorf("got.OK = false, want true")
	}
}

func TestSecurityResultMessageFailureReason(t *testing.T) {
	var buf bytes.Buffer
	m := SecurityResultMessage{OK: false, Reason: "authentication failed"}
	if err := m.Write(&buf, binary.BigEndian); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got SecurityResultMessage
	if err := got.Read(&buf, binary.BigEndian); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.OK {
		t.Errorf("got.OK = true, want false")
	}
	if got.Reason != m.Reason {
		t.Errorf("got.Reason = %q, want %q", got.Reason, m.Reason)
	}
}

func TestServerInitialisationMessageRoundTrip(t *testing.T) {
	m := ServerInitialisationMessage{
		FramebufferWidth:  1920,
		FramebufferHeight: 1080,
		PixelFormat: PixelFormat{
			BitsPerPixel: 32, BitDepth: 24, BigEndian: true, TrueColor: true,
			RedMax: 0xff, GreenMax: 0xff, BlueMax: 0xff,
			RedShift: 16, GreenShift: 8, BlueShift: 0,
		},
		// Past 255 bytes to stress the dynamic-length name path, which a
		// fixed-size buffer would silently truncate or corrupt.
		Name: strings.Repeat("a very long desktop name ", 12),
	}
	var buf bytes.Buffer
	if err := m.Write(&buf, binary.BigEndian); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got ServerInitialisationMessage
	if err := got.Read(&buf, binary.BigEndian); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.FramebufferWidth != m.FramebufferWidth || got.FramebufferHeight != m.FramebufferHeight {
		t.Errorf("got dims %dx%d, want %dx%d", got.FramebufferWidth, got.FramebufferHeight, m.FramebufferWidth, m.FramebufferHeight)
	}
	if got.Name != m.Name {
		t.Errorf("got.Name = %q, want %q", got.Name, m.Name)
	}
	if got.PixelFormat != m.PixelFormat {
		t.Errorf("got.PixelFormat = %+v, want %+v", got.PixelFormat, m.PixelFormat)
	}
}

func TestFramebufferUpdateHeaderRoundTrip(t *testing.T) {
	m := FramebufferUpdateHeader{NumRects: 3}
	var buf bytes.Buffer
	if err := m.Write(&buf, binary.BigEndian); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got FramebufferUpdateHeader
	if err := got.Read(&buf, binary.BigEndian); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.NumRects != m.NumRects {
		t.Errorf("got.NumRects = %d, want %d", got.NumRects, m.NumRects)
	}
}

func TestRectangleHeaderRoundTrip(t *testing.T) {
	m := RectangleHeader{X: 10, Y: 20, Width: 100, Height: 200, EncodingType: EncodingTypeCopyRectangle}
	var buf bytes.Buffer
	if err := m.Write(&buf, binary.BigEndian); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got RectangleHeader
	if err := got.Read(&buf, binary.BigEndian); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != m {
		t.Errorf("got %+v, want %+v", got, m)
	}
}

func TestServerCutTextMessageRoundTrip(t *testing.T) {
	m := ServerCutTextMessage{Text: "hello clipboard"}
	var buf bytes.Buffer
	if err := m.Write(&buf, binary.BigEndian); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got ServerCutTextMessage
	if err := got.Read(&buf, binary.BigEndian); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Text != m.Text {
		t.Errorf("got.Text = %q, want %q", got.Text, m.Text)
	}
}

func TestSkipColourMapEntriesNoEntries(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0}) // first-index=0, count=0
	if err := SkipColourMapEntries(&buf, binary.BigEndian); err != nil {
		t.Fatalf("SkipColourMapEntries: %v", err)
	}
}

func TestSkipColourMapEntriesWithEntries(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 2}) // first-index=0, count=2
	buf.Write(make([]byte, 2*6))
	if err := SkipColourMapEntries(&buf, binary.BigEndian); err != nil {
		t.Fatalf("SkipColourMapEntries: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("SkipColourMapEntries left %d unread bytes", buf.Len())
	}
}

func TestPixelFormatValidate(t *testing.T) {
	tests := []struct {
		name    string
		pf      PixelFormat
		wantErr bool
	}{
		{"valid 32bpp truecolor", PixelFormat{BitsPerPixel: 32, TrueColor: true, RedMax: 0xff, GreenMax: 0xff, BlueMax: 0xff}, false},
		{"valid 16bpp truecolor", PixelFormat{BitsPerPixel: 16, TrueColor: true, RedMax: 0x1f, GreenMax: 0x3f, BlueMax: 0x1f}, false},
		{"bad bits per pixel", PixelFormat{BitsPerPixel: 24, TrueColor: true, RedMax: 0xff, GreenMax: 0xff, BlueMax: 0xff}, true},
		{"non power-of-two-minus-one max", PixelFormat{BitsPerPixel: 32, TrueColor: true, RedMax: 0xfe, GreenMax: 0xff, BlueMax: 0xff}, true},
		{"zero max", PixelFormat{BitsPerPixel: 32, TrueColor: true, RedMax: 0, GreenMax: 0xff, BlueMax: 0xff}, true},
		{"palette mode skips colour checks", PixelFormat{BitsPerPixel: 8, TrueColor: false}, false},
	}
	for _, test := range tests {
		err := test.pf.Validate()
		if (err != nil) != test.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", test.name, err, test.wantErr)
		}
	}
}

func TestPixelFormatBytesPerPixel(t *testing.T) {
	pf := PixelFormat{BitsPerPixel: 32}
	if got := pf.BytesPerPixel(); got != 4 {
		t.Errorf("BytesPerPixel() = %d, want 4", got)
	}
}

func TestReadLengthPrefixedBytesRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	var lbuf [4]byte
	binary.BigEndian.PutUint32(lbuf[:], 1<<21)
	buf.Write(lbuf[:])
	_, err := readLengthPrefixedBytes(&buf, binary.BigEndian, maxTextLength)
	if err == nil {
		t.Fatalf("expected error for length exceeding maximum")
	}
}
