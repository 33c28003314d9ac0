package client

import (
	"encoding/binary"

	"github.com/dalton-tools/rfbshadow/rfb"
)

// SessionInfo is the immutable-after-Init state derived from ServerInit:
// geometry, pixel format, and the server's self-reported name.
type SessionInfo struct {
	Width, Height int
	PixelFormat   rfb.PixelFormat
	Name          string
}

// advertisedEncodings lists, in preference order, the encodings this
// decoder actually implements: Raw, CopyRect, then RRE. The set is
// restricted to what is decoded — a client that advertises an encoding it
// cannot decode invites payloads it can only recover from by ending the
// session.
var advertisedEncodings = []int32{
	rfb.EncodingTypeRaw,
	rfb.EncodingTypeCopyRectangle,
	rfb.EncodingTypeRRE,
}

// initSession sends ClientInit, reads ServerInit, validates the returned
// PixelFormat, allocates the BackBuffer, and advertises encodings.
func initSession(transport Transport, shared bool) (*SessionInfo, *BackBuffer, error) {
	restore := withConnectReadTimeout(transport)
	defer restore()

	clientInit := rfb.ClientInitialisationMessage{Shared: shared}
	if err := clientInit.Write(transportWriter{transport}); err != nil {
		return nil, nil, err
	}

	var serverInit rfb.ServerInitialisationMessage
	if err := serverInit.Read(transportReader{transport}, binary.BigEndian); err != nil {
		return nil, nil, &ProtocolError{Kind: Malformed, Err: err}
	}
	if err := serverInit.PixelFormat.Validate(); err != nil {
		return nil, nil, &DecodeError{Kind: PixelFormatUnsupported, Err: err}
	}

	info := &SessionInfo{
		Width:       int(serverInit.FramebufferWidth),
		Height:      int(serverInit.FramebufferHeight),
		PixelFormat: serverInit.PixelFormat,
		Name:        serverInit.Name,
	}
	backBuffer := NewBackBuffer(info.Width, info.Height)

	setEncodings := rfb.SetEncodingsMessage{EncodingTypes: advertisedEncodings}
	if err := setEncodings.Write(transportWriter{transport}, binary.BigEndian); err != nil {
		return nil, nil, err
	}

	return info, backBuffer, nil
}
