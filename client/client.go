// Package client implements the RFB (Remote Framebuffer / VNC) client core:
// version and security negotiation, session initialization, the pixel
// decoder, the update-request pacing engine, and the input/presentation
// plumbing that bridges a decoded framebuffer to a host UI.
package client

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config constructs a Client. The RFB core itself reads no CLI flags or
// environment variables; an embedding application builds one of these
// directly.
type Config struct {
	Addr              string
	ConnectTimeout    time.Duration
	Shared            bool
	Profile           Profile
	GetPassword       CredentialSource
	Bridge            UiBridge
	TransportProvider TransportProvider
	Logger            *slog.Logger
}

// Client is the public handle to one RFB session. A Client is used for
// exactly one connect/disconnect cycle; a reconnect is disconnect followed
// by a fresh Client, never a resurrection of a failed session.
type Client struct {
	config Config
	log    *slog.Logger

	transport Transport
	info      *SessionInfo

	stateMu sync.Mutex
	state   *StateMachine

	backBuffer *BackBuffer
	engine     *UpdateEngine
	input      *InputEncoder
	bridge     UiBridge

	writeMu sync.Mutex // serializes all outbound writes from the UI context

	stopRequested atomic.Bool
	workerDone    chan struct{}
	timersDone    chan struct{}
}

// New constructs a Client in the Disconnected state. Call Connect to begin.
func New(config Config) *Client {
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}
	if config.TransportProvider == nil {
		config.TransportProvider = DialTCP
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = connectTimeout
	}
	return &Client{
		config: config,
		log:    log,
		state:  newStateMachine(log),
		bridge: config.Bridge,
	}
}

// State returns the current ConnectionState.
func (c *Client) State() ConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state.Current()
}

// FailureCause returns the error that most recently drove the session to
// Disconnected, or nil.
func (c *Client) FailureCause() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state.FailureCause()
}

// Info returns the session's geometry/pixel-format/name, valid once
// Connect has returned successfully.
func (c *Client) Info() *SessionInfo { return c.info }

// BackBuffer exposes the live framebuffer mirror for a caller-driven
// presenter; most callers should instead use NewPresenter.
func (c *Client) BackBuffer() *BackBuffer { return c.backBuffer }

// Connect performs the full synchronous connect phase: dial, version
// exchange, security negotiation, authentication, and session init. On
// success it starts the receive worker and the update-pacing timers and
// returns with the state machine in Streaming. Every error here surfaces
// synchronously to the caller; only streaming-phase failures are reported
// through the UiBridge instead.
func (c *Client) Connect() error {
	if err := c.transition(Connecting); err != nil {
		return err
	}

	transport, err := c.config.TransportProvider(c.config.Addr, c.config.ConnectTimeout)
	if err != nil {
		c.failSync(Disconnected, err)
		return err
	}
	c.transport = transport

	if err := c.transition(HandshakingVersion); err != nil {
		transport.Close()
		return err
	}
	if err := handshakeVersion(transport); err != nil {
		transport.Close()
		c.failSync(Disconnected, err)
		return err
	}

	if err := c.transition(Negotiating); err != nil {
		transport.Close()
		return err
	}
	chosen, err := chooseSecurityType(transport)
	if err != nil {
		transport.Close()
		c.failSync(Disconnected, err)
		return err
	}

	getPassword := func() (string, bool) {
		if c.config.GetPassword == nil {
			return "", false
		}
		return c.config.GetPassword()
	}

	if err := c.transition(Authenticating); err != nil {
		transport.Close()
		return err
	}
	if err := completeAuthentication(transport, chosen, getPassword); err != nil {
		transport.Close()
		c.failSync(Disconnected, err)
		return err
	}

	if err := c.transition(Initializing); err != nil {
		transport.Close()
		return err
	}
	info, backBuffer, err := initSession(transport, c.config.Shared)
	if err != nil {
		transport.Close()
		c.failSync(Disconnected, err)
		return err
	}
	c.info = info
	c.backBuffer = backBuffer
	c.engine = NewUpdateEngine(c.config.Profile, c.log)
	c.input = NewInputEncoder(info.Width, info.Height)

	if err := c.forceInitialFullRequest(); err != nil {
		transport.Close()
		c.failSync(Disconnected, err)
		return err
	}

	if err := c.transition(Streaming); err != nil {
		transport.Close()
		return err
	}

	c.workerDone = make(chan struct{})
	c.timersDone = make(chan struct{})
	go c.receiveLoop()
	go c.runTimers()

	return nil
}

func (c *Client) forceInitialFullRequest() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.engine.forceFullRequest(c.transport, c.info.Width, c.info.Height)
}

func (c *Client) transition(to ConnectionState) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state.Transition(to)
}

// failSync records cause and forces the state machine straight to
// Disconnected; used only for connect-phase failures, which have no
// receive worker to join.
func (c *Client) failSync(to ConnectionState, cause error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state.Current() != to {
		c.state.Fail(to, cause)
	}
}

// runTimers drives the continuous-update and forced-refresh cadences plus
// the liveness health probe, all on one goroutine. Outbound writes are
// serialized through writeMu exactly as pointer/key events are, so a
// continuous-update request and a PointerEvent can never interleave on the
// wire.
func (c *Client) runTimers() {
	defer close(c.timersDone)

	params := c.config.Profile.Params()
	continuous := time.NewTicker(params.Continuous)
	forced := time.NewTicker(params.Forced)
	// The probe must fire within 50ms of the liveness deadline, so the
	// ticker granularity is 50ms (livenessTimeout/40), not some coarser
	// fraction that could observe the deadline hundreds of ms late.
	health := time.NewTicker(livenessTimeout / 40)
	defer continuous.Stop()
	defer forced.Stop()
	defer health.Stop()

	for {
		select {
		case <-c.workerDone:
			return
		case <-continuous.C:
			c.withWrite(func() error {
				return c.engine.requestIncremental(c.transport, c.info.Width, c.info.Height)
			})
		case <-forced.C:
			c.withWrite(func() error {
				return c.engine.requestFull(c.transport, c.info.Width, c.info.Height)
			})
		case <-health.C:
			c.withWrite(func() error {
				return c.engine.checkHealth(c.transport, c.info.Width, c.info.Height)
			})
		}
	}
}

// withWrite serializes transport writes and quietly ignores errors here:
// any real transport failure will also be observed by the receive worker's
// next read and drive the session to Draining from there, so the timer
// goroutine doesn't need to duplicate that teardown.
func (c *Client) withWrite(fn func() error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = fn()
}

// NotifyInputEvent tells the update engine a pointer press/release or key
// press occurred, opportunistically requesting an incremental update.
// Pointer motion and key release must not call this.
func (c *Client) NotifyInputEvent() {
	c.withWrite(func() error {
		return c.engine.requestIncremental(c.transport, c.info.Width, c.info.Height)
	})
}

// SendPointerMove emits a throttled motion event.
func (c *Client) SendPointerMove(uiX, uiY, scale float64, buttonMask uint8) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.input.PointerMove(c.transport, uiX, uiY, scale, buttonMask)
}

// SendPointerButton emits a press/release event and requests an incremental
// update.
func (c *Client) SendPointerButton(uiX, uiY, scale float64, buttonMask uint8) {
	c.writeMu.Lock()
	c.input.PointerButton(c.transport, uiX, uiY, scale, buttonMask)
	c.engine.requestIncremental(c.transport, c.info.Width, c.info.Height)
	c.writeMu.Unlock()
}

// SendWheel emits a synthetic wheel press+release.
func (c *Client) SendWheel(uiX, uiY, scale float64, up bool, currentButtons uint8) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.input.Wheel(c.transport, uiX, uiY, scale, up, currentButtons)
}

// SendKey emits a key event and, on a press, requests an incremental
// update (never on release).
func (c *Client) SendKey(keysym uint32, down bool) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	KeyEvent(c.transport, keysym, down)
	if down {
		c.engine.requestIncremental(c.transport, c.info.Width, c.info.Height)
	}
}

// SendChord emits a composite chord (e.g. ChordCtrlAltDel) with 50ms
// spacing between transitions.
func (c *Client) SendChord(keysyms ...uint32) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return Chord(c.transport, time.Sleep, keysyms...)
}

// Disconnect initiates a graceful teardown: it marks the session as
// cancelled (so the receive worker reports ErrCancelled rather than a raw
// transport error), closes the transport to unblock the worker's read, and
// waits up to 500ms for the worker to join.
func (c *Client) Disconnect() error {
	if c.State() == Disconnected {
		return nil
	}
	c.stopRequested.Store(true)
	if c.transport != nil {
		c.transport.Close()
	}

	select {
	case <-c.workerDone:
	case <-time.After(500 * time.Millisecond):
		return fmt.Errorf("client: receive worker did not join within 500ms")
	}
	if c.timersDone != nil {
		<-c.timersDone
	}
	return nil
}
