package client

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"github.com/dalton-tools/rfbshadow/rfb"
)

// Server->client message type bytes.
const (
	msgFramebufferUpdate   = 0
	msgSetColourMapEntries = 1
	msgBell                = 2
	msgServerCutText       = 3
)

// receiveLoop is the dedicated receive worker: it locks to an OS thread,
// blocks on Transport reads, is the exclusive writer of the BackBuffer, and
// is the only path that records FramebufferUpdate arrivals in the
// UpdateEngine. The recover guard turns a panic on a
// malformed stream into an ordinary session-ending error instead of taking
// the process down.
func (c *Client) receiveLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.workerDone)

	defer func() {
		if r := recover(); r != nil {
			c.onWorkerError(fmt.Errorf("receive worker panic: %v", r))
		}
	}()

	for {
		typeByte, err := c.transport.ReadExact(1)
		if err != nil {
			c.onWorkerError(err)
			return
		}

		var dispatchErr error
		switch typeByte[0] {
		case msgFramebufferUpdate:
			c.engine.onFramebufferUpdateReceived()
			dispatchErr = applyFramebufferUpdate(c.transport, c.info, c.backBuffer)
		case msgSetColourMapEntries:
			dispatchErr = rfb.SkipColourMapEntries(transportReader{c.transport}, binary.BigEndian)
		case msgBell:
			c.bridge.OnBell()
		case msgServerCutText:
			var msg rfb.ServerCutTextMessage
			if err := msg.Read(transportReader{c.transport}, binary.BigEndian); err != nil {
				dispatchErr = &ProtocolError{Kind: Malformed, Err: err}
			} else {
				c.bridge.OnClipboard(msg.Text)
			}
		default:
			c.log.Warn("unknown top-level message type, cannot infer length", "type", typeByte[0])
			dispatchErr = &ProtocolError{Kind: UnalignedStream, Err: fmt.Errorf("unknown message type %d", typeByte[0])}
		}

		if dispatchErr != nil {
			c.onWorkerError(dispatchErr)
			return
		}
	}
}

// onWorkerError is called exactly once per session by the receive loop on
// any terminal condition (transport error, protocol error, or cancellation)
// and drives the Streaming -> Draining -> Disconnected tail of the state
// machine, reporting the cause to the UI bridge asynchronously.
func (c *Client) onWorkerError(err error) {
	cause := err
	if c.stopRequested.Load() {
		cause = ErrCancelled
	}

	c.stateMu.Lock()
	if c.state.Current() == Streaming {
		c.state.Fail(Draining, cause)
	}
	c.transport.Close()
	if c.state.Current() == Draining {
		c.state.Transition(Disconnected)
	}
	c.stateMu.Unlock()

	c.log.Info("session ended", "cause", cause)
	c.bridge.SessionEnded(cause)
}
