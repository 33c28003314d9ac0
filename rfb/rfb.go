/*
Package rfb defines representations and serialization for messages in the RFB
(Remote Framebuffer) protocol, which is used for VNC.

Types that do not have a protocol version suffix are appropriate for use with
all versions of the RFB protocol this package targets (3.8).

The handshake goes like this:

	client reads ProtocolVersionMessage, writes "RFB 003.008\n"
	server sends SecurityTypesMessage (or rejects with a reason)
	client writes the chosen SecurityType
		If SecurityTypeVNC:
			server sends a 16-byte challenge
			client sends the 16-byte DES-encrypted response
		server sends SecurityResultMessage
	client sends ClientInitialisationMessage
	server sends ServerInitialisationMessage

Thereafter client and server enter message processing loops. Every message
type dispatched by this package's caller reads its own leading type byte
before delegating to the per-message Read method here, so the Read methods
below only consume the bytes that follow the type byte.

Clients may send:

	Type 0	SetPixelFormatMessage        (reserved; not emitted by a minimal client)
	Type 2	SetEncodingsMessage
	Type 3	FramebufferUpdateRequestMessage
	Type 4	KeyEventMessage
	Type 5	PointerEventMessage
	Type 6	ClientCutTextMessage

Servers may send:

	Type 0	FramebufferUpdateHeader, then a RectangleHeader per rectangle
	Type 1	SetColourMapEntries — consumed and discarded, see SkipColourMapEntries
	Type 2	BellMessage
	Type 3	ServerCutTextMessage
*/
package rfb

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/text/encoding/charmap"
)

// maxTextLength bounds length-prefixed clipboard payloads so a corrupt or
// hostile length field can't force an enormous allocation.
const maxTextLength = 1 << 20

// maxNameLength bounds the ServerInit desktop name for the same reason.
const maxNameLength = 1 << 16

// maxReasonLength bounds a security-rejection or auth-failure reason string.
const maxReasonLength = 1 << 16

type ProtocolVersionMessage struct {
	Major, Minor int
}

func (m *ProtocolVersionMessage) Read(r io.Reader) error {
	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	if _, err := fmt.Sscanf(string(buf[:]), "RFB %03d.%03d\n", &m.Major, &m.Minor); err != nil {
		return fmt.Errorf("parse protocol version: %v", err)
	}
	return nil
}

func (m *ProtocolVersionMessage) Write(w io.Writer) error {
	buf := []byte(fmt.Sprintf("RFB %03d.%03d\n", m.Major, m.Minor))
	if len(buf) != 12 {
		return fmt.Errorf("expected formatted message to be 12 bytes, but %q is %d", string(buf), len(buf))
	}
	_, err := w.Write(buf)
	return err
}

// SecurityType identifies a security/authentication scheme offered by the
// server during the 3.8 handshake.
type SecurityType uint8

const (
	SecurityTypeInvalid   = SecurityType(0)
	SecurityTypeNone      = SecurityType(1)
	SecurityTypeVNC       = SecurityType(2)
	SecurityTypeTight     = SecurityType(16)
	SecurityTypeUltra     = SecurityType(17)
	SecurityTypeTLS       = SecurityType(18)
	SecurityTypeVeNCrypt  = SecurityType(19)
	SecurityTypeMsLogonII = SecurityType(113)
)

// SecurityTypesMessage is the server's list of acceptable security types, or
// (when Rejected) the reason the server refuses the connection outright.
type SecurityTypesMessage struct {
	Types    []SecurityType
	Rejected bool
	Reason   string
}

func (m *SecurityTypesMessage) Read(r io.Reader) error {
	var nbuf [1]byte
	if _, err := io.ReadFull(r, nbuf[:]); err != nil {
		return err
	}
	n := nbuf[0]
	if n == 0 {
		m.Rejected = true
		reason, err := readLengthPrefixedText(r, binary.BigEndian, maxReasonLength)
		if err != nil {
			return fmt.Errorf("read security rejection reason: %v", err)
		}
		m.Reason = reason
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	m.Types = make([]SecurityType, n)
	for i, b := range buf {
		m.Types[i] = SecurityType(b)
	}
	return nil
}

// Write is used by tests that simulate a server.
func (m *SecurityTypesMessage) Write(w io.Writer) error {
	if m.Rejected {
		if _, err := w.Write([]byte{0}); err != nil {
			return err
		}
		return writeLengthPrefixedText(w, binary.BigEndian, m.Reason)
	}
	if len(m.Types) > 255 {
		return fmt.Errorf("too many security types: %d > 255", len(m.Types))
	}
	buf := make([]byte, 1+len(m.Types))
	buf[0] = byte(len(m.Types))
	for i, t := range m.Types {
		buf[1+i] = byte(t)
	}
	_, err := w.Write(buf)
	return err
}

// ChooseSecurityType selects VncAuthentication over None when both are
// offered, and refuses everything else — in particular it never selects
// UltraVNC MS-Logon (113), which requires a Diffie-Hellman exchange this
// client does not implement.
func ChooseSecurityType(offered []SecurityType) (SecurityType, error) {
	haveNone := false
	for _, t := range offered {
		if t == SecurityTypeVNC {
			return SecurityTypeVNC, nil
		}
		if t == SecurityTypeNone {
			haveNone = true
		}
	}
	if haveNone {
		return SecurityTypeNone, nil
	}
	return SecurityTypeInvalid, fmt.Errorf("no usable security type offered: %v", offered)
}

// SelectedSecurityTypeMessage is the single byte the client sends to choose
// a security type from SecurityTypesMessage.Types.
type SelectedSecurityTypeMessage struct {
	Type SecurityType
}

func (m *SelectedSecurityTypeMessage) Read(r io.Reader) error {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.Type = SecurityType(buf[0])
	return nil
}

func (m *SelectedSecurityTypeMessage) Write(w io.Writer) error {
	_, err := w.Write([]byte{byte(m.Type)})
	return err
}

// VNCAuthenticationChallengeMessage is the 16-byte random challenge sent by
// the server for VncAuthentication.
type VNCAuthenticationChallengeMessage [16]byte

func (m *VNCAuthenticationChallengeMessage) Read(r io.Reader) error {
	_, err := io.ReadFull(r, m[:])
	return err
}

func (m *VNCAuthenticationChallengeMessage) Write(w io.Writer) error {
	_, err := w.Write(m[:])
	return err
}

// VNCAuthenticationResponseMessage is the 16-byte DES-ECB-encrypted
// challenge the client sends back.
type VNCAuthenticationResponseMessage [16]byte

func (m *VNCAuthenticationResponseMessage) Read(r io.Reader) error {
	_, err := io.ReadFull(r, m[:])
	return err
}

func (m *VNCAuthenticationResponseMessage) Write(w io.Writer) error {
	_, err := w.Write(m[:])
	return err
}

// SecurityResultMessage is the 4-byte result word that concludes security
// negotiation under 3.8 (sent after None as well as after VncAuthentication),
// followed by a length-prefixed reason string when the result isn't OK.
type SecurityResultMessage struct {
	OK     bool
	Reason string
}

func (m *SecurityResultMessage) Read(r io.Reader, bo binary.ByteOrder) error {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.OK = bo.Uint32(buf[:]) == 0
	if !m.OK {
		reason, err := readLengthPrefixedText(r, bo, maxReasonLength)
		if err != nil {
			return fmt.Errorf("read auth failure reason: %v", err)
		}
		m.Reason = reason
	}
	return nil
}

// Write is used by tests that simulate a server.
func (m *SecurityResultMessage) Write(w io.Writer, bo binary.ByteOrder) error {
	var buf [4]byte
	if !m.OK {
		bo.PutUint32(buf[:], 1)
	}
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	if !m.OK {
		return writeLengthPrefixedText(w, bo, m.Reason)
	}
	return nil
}

type ClientInitialisationMessage struct {
	// If true, share the desktop with other clients.
	// If false, disconnect all other clients.
	Shared bool
}

func (m *ClientInitialisationMessage) Read(r io.Reader) error {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.Shared = buf[0] != 0
	return nil
}

func (m *ClientInitialisationMessage) Write(w io.Writer) error {
	var buf [1]byte
	if m.Shared {
		buf[0] = 1
	}
	_, err := w.Write(buf[:])
	return err
}

type ServerInitialisationMessage struct {
	FramebufferWidth  uint16
	FramebufferHeight uint16
	PixelFormat       PixelFormat
	Name              string
}

func (m *ServerInitialisationMessage) Read(r io.Reader, bo binary.ByteOrder) error {
	var buf [20]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.FramebufferWidth = bo.Uint16(buf[0:])
	m.FramebufferHeight = bo.Uint16(buf[2:])
	m.PixelFormat.Read(buf[4:], bo)
	name, err := readLengthPrefixedText(r, bo, maxNameLength)
	if err != nil {
		return fmt.Errorf("read server name: %v", err)
	}
	m.Name = name
	return nil
}

func (m *ServerInitialisationMessage) Write(w io.Writer, bo binary.ByteOrder) error {
	var buf [20]byte
	bo.PutUint16(buf[0:], m.FramebufferWidth)
	bo.PutUint16(buf[2:], m.FramebufferHeight)
	m.PixelFormat.Write(buf[4:], bo)
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	return writeLengthPrefixedText(w, bo, m.Name)
}

type SetPixelFormatMessage struct {
	PixelFormat PixelFormat
}

func (m *SetPixelFormatMessage) Write(w io.Writer, bo binary.ByteOrder) error {
	var buf [20]byte
	buf[0] = 0
	m.PixelFormat.Write(buf[4:], bo)
	_, err := w.Write(buf[:])
	return err
}

type SetEncodingsMessage struct {
	EncodingTypes []int32
}

const (
	EncodingTypeRaw           = int32(0)
	EncodingTypeCopyRectangle = int32(1)
	EncodingTypeRRE           = int32(2)
	EncodingTypeCoRRE         = int32(4)
	EncodingTypeHextile       = int32(5)
)

func (m *SetEncodingsMessage) Write(w io.Writer, bo binary.ByteOrder) error {
	buf := make([]byte, 4+4*len(m.EncodingTypes))
	buf[0] = 2
	bo.PutUint16(buf[2:], uint16(len(m.EncodingTypes)))
	for idx, encodingType := range m.EncodingTypes {
		bo.PutUint32(buf[4+idx*4:], uint32(encodingType))
	}
	_, err := w.Write(buf)
	return err
}

type FramebufferUpdateRequestMessage struct {
	// If true, only updates to changed portions of the framebuffer are
	// requested. If false, the entire region should be returned.
	Incremental bool

	X      uint16
	Y      uint16
	Width  uint16
	Height uint16
}

func (m *FramebufferUpdateRequestMessage) Write(w io.Writer, bo binary.ByteOrder) error {
	var buf [10]byte
	buf[0] = 3
	if m.Incremental {
		buf[1] = 1
	}
	bo.PutUint16(buf[2:], m.X)
	bo.PutUint16(buf[4:], m.Y)
	bo.PutUint16(buf[6:], m.Width)
	bo.PutUint16(buf[8:], m.Height)
	_, err := w.Write(buf[:])
	return err
}

type KeyEventMessage struct {
	Pressed bool
	KeySym  uint32 // Defined in Xlib Reference Manual and <X11/keysymdef.h>
}

func (m *KeyEventMessage) Write(w io.Writer, bo binary.ByteOrder) error {
	var buf [8]byte
	buf[0] = 4
	if m.Pressed {
		buf[1] = 1
	}
	bo.PutUint32(buf[4:], m.KeySym)
	_, err := w.Write(buf[:])
	return err
}

type PointerEventMessage struct {
	ButtonMask uint8
	X          uint16
	Y          uint16
}

func (m *PointerEventMessage) Write(w io.Writer, bo binary.ByteOrder) error {
	var buf [6]byte
	buf[0] = 5
	buf[1] = m.ButtonMask
	bo.PutUint16(buf[2:], m.X)
	bo.PutUint16(buf[4:], m.Y)
	_, err := w.Write(buf[:])
	return err
}

type ClientCutTextMessage struct {
	Text string
}

func (m *ClientCutTextMessage) Write(w io.Writer, bo binary.ByteOrder) error {
	converted, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(m.Text))
	if err != nil {
		return fmt.Errorf("encode text: %v", err)
	}
	var buf [8]byte
	buf[0] = 6
	bo.PutUint32(buf[4:], uint32(len(converted)))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	_, err = w.Write(converted)
	return err
}

// FramebufferUpdateHeader is read after the FramebufferUpdate type byte: one
// padding byte followed by the rectangle count.
type FramebufferUpdateHeader struct {
	NumRects uint16
}

func (m *FramebufferUpdateHeader) Read(r io.Reader, bo binary.ByteOrder) error {
	var buf [3]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.NumRects = bo.Uint16(buf[1:])
	return nil
}

func (m *FramebufferUpdateHeader) Write(w io.Writer, bo binary.ByteOrder) error {
	var buf [3]byte
	bo.PutUint16(buf[1:], m.NumRects)
	_, err := w.Write(buf[:])
	return err
}

// RectangleHeader is the 12-byte header preceding every rectangle's
// encoding-specific payload.
type RectangleHeader struct {
	X            uint16
	Y            uint16
	Width        uint16
	Height       uint16
	EncodingType int32 // signed: pseudo-encodings are negative
}

func (h *RectangleHeader) Read(r io.Reader, bo binary.ByteOrder) error {
	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	h.X = bo.Uint16(buf[0:])
	h.Y = bo.Uint16(buf[2:])
	h.Width = bo.Uint16(buf[4:])
	h.Height = bo.Uint16(buf[6:])
	h.EncodingType = int32(bo.Uint32(buf[8:]))
	return nil
}

func (h *RectangleHeader) Write(w io.Writer, bo binary.ByteOrder) error {
	var buf [12]byte
	bo.PutUint16(buf[0:], h.X)
	bo.PutUint16(buf[2:], h.Y)
	bo.PutUint16(buf[4:], h.Width)
	bo.PutUint16(buf[6:], h.Height)
	bo.PutUint32(buf[8:], uint32(h.EncodingType))
	_, err := w.Write(buf[:])
	return err
}

// BellMessage has no payload beyond its type byte.
type BellMessage struct{}

// ServerCutTextMessage is read after the type byte: three padding bytes,
// then a length-prefixed Latin-1 string.
type ServerCutTextMessage struct {
	Text string
}

func (m *ServerCutTextMessage) Read(r io.Reader, bo binary.ByteOrder) error {
	var pad [3]byte
	if _, err := io.ReadFull(r, pad[:]); err != nil {
		return err
	}
	latin1, err := readLengthPrefixedBytes(r, bo, maxTextLength)
	if err != nil {
		return fmt.Errorf("read cut text: %v", err)
	}
	converted, err := charmap.ISO8859_1.NewDecoder().Bytes(latin1)
	if err != nil {
		return fmt.Errorf("decode cut text: %v", err)
	}
	m.Text = string(converted)
	return nil
}

// Write is used by tests that simulate a server.
func (m *ServerCutTextMessage) Write(w io.Writer, bo binary.ByteOrder) error {
	converted, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(m.Text))
	if err != nil {
		return fmt.Errorf("encode text: %v", err)
	}
	var pad [3]byte
	if _, err := w.Write(pad[:]); err != nil {
		return err
	}
	var buf [4]byte
	bo.PutUint32(buf[:], uint32(len(converted)))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	_, err = w.Write(converted)
	return err
}

// SkipColourMapEntries consumes and discards a SetColourMapEntries message
// body (read after its type byte): first index, count, then count RGB
// triples. This client is true-color only and never installs a palette.
func SkipColourMapEntries(r io.Reader, bo binary.ByteOrder) error {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return err
	}
	n := bo.Uint16(head[2:])
	if n == 0 {
		return nil
	}
	buf := make([]byte, int(n)*6)
	_, err := io.ReadFull(r, buf)
	return err
}

func readLengthPrefixedText(r io.Reader, bo binary.ByteOrder, max int) (string, error) {
	b, err := readLengthPrefixedBytes(r, bo, max)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readLengthPrefixedBytes(r io.Reader, bo binary.ByteOrder, max int) ([]byte, error) {
	var lbuf [4]byte
	if _, err := io.ReadFull(r, lbuf[:]); err != nil {
		return nil, err
	}
	length := bo.Uint32(lbuf[:])
	if int(length) > max {
		return nil, fmt.Errorf("length %d exceeds maximum %d", length, max)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeLengthPrefixedText(w io.Writer, bo binary.ByteOrder, s string) error {
	b := []byte(s)
	var lbuf [4]byte
	bo.PutUint32(lbuf[:], uint32(len(b)))
	if _, err := w.Write(lbuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

type PixelFormat struct {
	BitsPerPixel uint8
	BitDepth     uint8
	BigEndian    bool

	// RGB definitions below are used if true.
	// If false, palette mode is used, which is unsupported by this package.
	TrueColor bool

	RedMax     uint16
	GreenMax   uint16
	BlueMax    uint16
	RedShift   uint8
	GreenShift uint8
	BlueShift  uint8
}

// buf must contain at least 16 bytes.
func (pf *PixelFormat) Read(buf []byte, bo binary.ByteOrder) {
	pf.BitsPerPixel = buf[0]
	pf.BitDepth = buf[1]
	pf.BigEndian = buf[2] != 0
	pf.TrueColor = buf[3] != 0

	pf.RedMax = bo.Uint16(buf[4:])
	pf.GreenMax = bo.Uint16(buf[6:])
	pf.BlueMax = bo.Uint16(buf[8:])
	pf.RedShift = buf[10]
	pf.GreenShift = buf[11]
	pf.BlueShift = buf[12]
}

// buf must contain at least 16 bytes.
func (pf *PixelFormat) Write(buf []byte, bo binary.ByteOrder) {
	buf[0] = pf.BitsPerPixel
	buf[1] = pf.BitDepth
	if pf.BigEndian {
		buf[2] = 1
	} else {
		buf[2] = 0
	}
	if pf.TrueColor {
		buf[3] = 1
	} else {
		buf[3] = 0
	}
	bo.PutUint16(buf[4:], pf.RedMax)
	bo.PutUint16(buf[6:], pf.GreenMax)
	bo.PutUint16(buf[8:], pf.BlueMax)
	buf[10] = pf.RedShift
	buf[11] = pf.GreenShift
	buf[12] = pf.BlueShift
}

// Validate rejects pixel formats this package cannot decode: BitsPerPixel
// must be 8, 16, or 32, and in true-color mode each channel max must be
// 2^k-1 for some k >= 1.
func (pf *PixelFormat) Validate() error {
	if pf.BitsPerPixel != 8 && pf.BitsPerPixel != 16 && pf.BitsPerPixel != 32 {
		return fmt.Errorf("bits_per_pixel must be 8, 16, or 32, got %d", pf.BitsPerPixel)
	}
	if pf.TrueColor {
		for name, max := range map[string]uint16{"red_max": pf.RedMax, "green_max": pf.GreenMax, "blue_max": pf.BlueMax} {
			if max == 0 || (uint32(max)+1)&uint32(max) != 0 {
				return fmt.Errorf("%s must be 2^k-1 for some k>=1, got %d", name, max)
			}
		}
	}
	return nil
}

// BytesPerPixel returns BitsPerPixel/8.
func (pf *PixelFormat) BytesPerPixel() int {
	return int(pf.BitsPerPixel) / 8
}
