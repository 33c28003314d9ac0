package client

import "image"

// UiBridge is the core's only path to the host UI. The RFB core owns no
// widgets; it owns this four-method interface plus the input entry points
// on Client (SendPointerMove, SendPointerButton, SendWheel, SendKey).
type UiBridge interface {
	// Present delivers a freshly scaled frame for display. Called from the
	// UI context's presenter timer, never from the receive worker.
	Present(frame *image.RGBA)
	// OnBell surfaces a Bell message as a brief UI cue.
	OnBell()
	// OnClipboard forwards server clipboard text to the host clipboard.
	OnClipboard(text string)
	// SessionEnded reports the typed cause of a session's termination,
	// asynchronously, exactly once per session.
	SessionEnded(cause error)
}

// CredentialSource supplies the VNC password on demand; it may consult a
// cache or prompt the user. Returning ok=false signals "no password
// available" rather than "empty password" — an empty string is itself a
// valid password and encrypts the challenge under an all-zero key.
type CredentialSource func() (password string, ok bool)
