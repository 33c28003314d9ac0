package client

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dalton-tools/rfbshadow/rfb"
)

// transportReader adapts Transport's ReadExact to io.Reader so the rfb
// package's io.ReadFull-based Read methods get read_exact semantics without
// duplicating their decoding logic here.
type transportReader struct {
	t Transport
}

func (r transportReader) Read(p []byte) (int, error) {
	b, err := r.t.ReadExact(len(p))
	if err != nil {
		return 0, err
	}
	n := copy(p, b)
	return n, nil
}

type transportWriter struct {
	t Transport
}

func (w transportWriter) Write(p []byte) (int, error) {
	if err := w.t.WriteAll(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// handshakeVersion performs the version exchange: read the server's 12-byte
// greeting, reject anything that isn't 3.x, and always answer with
// "RFB 003.008\n" (no fallback to older minors is attempted).
func handshakeVersion(transport Transport) error {
	restore := withConnectReadTimeout(transport)
	defer restore()

	var server rfb.ProtocolVersionMessage
	if err := server.Read(transportReader{transport}); err != nil {
		return &ProtocolError{Kind: BadVersion, Err: err}
	}
	if server.Major != 3 {
		return &ProtocolError{Kind: BadVersion, Err: fmt.Errorf("unsupported protocol major version %d", server.Major)}
	}

	client := rfb.ProtocolVersionMessage{Major: 3, Minor: 8}
	if err := client.Write(transportWriter{transport}); err != nil {
		return err
	}
	return nil
}

// getPassword is a callback returning a password, or ("", false) if none is
// available (e.g. the user cancelled a prompt). A missing password with
// VncAuthentication selected fails as AuthFailed before a ciphertext is
// even sent.
type getPassword func() (string, bool)

// chooseSecurityType performs the Negotiating-state portion of the security
// handshake: read the server's offered security types (or its rejection
// reason) and write back the client's choice. It is split from
// completeAuthentication so the caller can transition the state machine
// from Negotiating to Authenticating between the two.
func chooseSecurityType(transport Transport) (rfb.SecurityType, error) {
	restore := withConnectReadTimeout(transport)
	defer restore()

	var offered rfb.SecurityTypesMessage
	if err := offered.Read(transportReader{transport}); err != nil {
		return rfb.SecurityTypeInvalid, &TransportError{Kind: Io, Err: err}
	}
	if offered.Rejected {
		return rfb.SecurityTypeInvalid, &AuthError{Kind: ServerRejected, Reason: offered.Reason}
	}

	chosen, err := rfb.ChooseSecurityType(offered.Types)
	if err != nil {
		return rfb.SecurityTypeInvalid, &AuthError{Kind: UnsupportedSecurity, Reason: err.Error()}
	}

	selected := rfb.SelectedSecurityTypeMessage{Type: chosen}
	if err := selected.Write(transportWriter{transport}); err != nil {
		return chosen, err
	}
	return chosen, nil
}

// completeAuthentication performs the Authenticating-state portion: the DES
// challenge/response exchange for VncAuthentication (a no-op for None), then
// the mandatory 3.8 SecurityResult check.
func completeAuthentication(transport Transport, chosen rfb.SecurityType, password getPassword) error {
	restore := withConnectReadTimeout(transport)
	defer restore()

	if chosen == rfb.SecurityTypeVNC {
		if err := performVNCAuthentication(transport, password); err != nil {
			return err
		}
	}

	var result rfb.SecurityResultMessage
	if err := result.Read(transportReader{transport}, binary.BigEndian); err != nil {
		return &TransportError{Kind: Io, Err: err}
	}
	if !result.OK {
		return &AuthError{Kind: AuthFailed, Reason: result.Reason}
	}
	return nil
}

func performVNCAuthentication(transport Transport, password getPassword) error {
	pw, ok := password()
	if !ok {
		return &AuthError{Kind: AuthFailed, Reason: "no password available"}
	}

	var challenge rfb.VNCAuthenticationChallengeMessage
	if err := challenge.Read(transportReader{transport}); err != nil {
		return &TransportError{Kind: Io, Err: err}
	}

	encrypted, err := rfb.EncryptChallenge(pw, [16]byte(challenge))
	if err != nil {
		return &AuthError{Kind: AuthFailed, Reason: err.Error()}
	}
	response := rfb.VNCAuthenticationResponseMessage(encrypted)
	return response.Write(transportWriter{transport})
}

// bytesReaderTransport lets tests construct a Transport over a canned byte
// sequence without a real pipe, for pure decode-path unit tests.
type bytesReaderTransport struct {
	r *bytes.Reader
}

func NewBytesTransport(b []byte) Transport {
	return &bytesReaderTransport{r: bytes.NewReader(b)}
}

func (t *bytesReaderTransport) ReadExact(n int) ([]byte, error) {
	if n > maxReadSize {
		return nil, &ProtocolError{Kind: OversizeRead}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.r, buf); err != nil {
		return nil, classifyReadError(err)
	}
	return buf, nil
}

func (t *bytesReaderTransport) WriteAll(b []byte) error { return nil }
func (t *bytesReaderTransport) Close() error            { return nil }
