package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// maxReadSize caps any single read request as a protocol-sanity check; no
// RFB message legitimately needs more than this in one read, so anything
// larger means a corrupt or hostile length field.
const maxReadSize = 100 << 20 // 100 MiB

// connectTimeout is the default Config.ConnectTimeout, the timeout handed to
// the TransportProvider for the dial. It bounds the dial only; the later
// connect-phase steps are bounded by connectReadTimeout, and there is no
// overall budget across the whole connect phase.
const connectTimeout = 10 * time.Second

// connectReadTimeout bounds each connect-phase step (version exchange,
// security negotiation, auth, init): all reads of one step share a single
// deadline this far out.
const connectReadTimeout = 2 * time.Second

// Transport is the exact-length duplex byte stream the core is built on.
// Streaming-phase reads have no deadline of their own; progress is ensured
// by the server's own pacing and the update engine's liveness probe.
type Transport interface {
	ReadExact(n int) ([]byte, error)
	WriteAll(b []byte) error
	Close() error
}

// TransportProvider dials a new Transport to addr, respecting timeout for
// the whole dial. The RFB core never opens a socket directly, it is handed
// a provider.
type TransportProvider func(addr string, timeout time.Duration) (Transport, error)

// DialTCP is the default TransportProvider: a TCP_NODELAY connection to
// addr ("host:port").
func DialTCP(addr string, timeout time.Duration) (Transport, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &TransportError{Kind: ConnectTimeout, Err: err}
		}
		return nil, &TransportError{Kind: Io, Err: err}
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, &TransportError{Kind: Io, Err: err}
		}
	}
	return &tcpTransport{conn: conn}, nil
}

type tcpTransport struct {
	conn net.Conn
}

func (t *tcpTransport) ReadExact(n int) ([]byte, error) {
	if n > maxReadSize {
		return nil, &ProtocolError{Kind: OversizeRead, Err: fmt.Errorf("requested read of %d bytes exceeds %d byte limit", n, maxReadSize)}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return nil, classifyReadError(err)
	}
	return buf, nil
}

func (t *tcpTransport) WriteAll(b []byte) error {
	_, err := t.conn.Write(b)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return &TransportError{Kind: ReadTimeout, Err: err}
		}
		return &TransportError{Kind: Io, Err: err}
	}
	return nil
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &TransportError{Kind: ConnectionClosed, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: ReadTimeout, Err: err}
	}
	return &TransportError{Kind: Io, Err: err}
}

// deadlineSetter is implemented by transports (like the TCP one) that can
// bound an individual read; used only during the connect phase. A Transport
// that doesn't support deadlines (e.g. the net.Pipe()-backed one used in
// tests) simply has no per-read timeout, which is acceptable because tests
// drive both ends synchronously.
type deadlineSetter interface {
	SetReadDeadline(time.Time) error
}

func (t *tcpTransport) SetReadDeadline(at time.Time) error {
	return t.conn.SetReadDeadline(at)
}

// withConnectReadTimeout sets one read deadline connectReadTimeout from now,
// when the transport supports deadlines. Every read until restore is called
// shares that deadline and fails with ReadTimeout once it passes; a read is
// not given a fresh timeout of its own. restore clears the deadline.
func withConnectReadTimeout(transport Transport) (restore func()) {
	ds, ok := transport.(deadlineSetter)
	if !ok {
		return func() {}
	}
	ds.SetReadDeadline(time.Now().Add(connectReadTimeout))
	return func() { ds.SetReadDeadline(time.Time{}) }
}

// pipeTransport adapts an io.ReadWriteCloser (in particular net.Pipe(), used
// throughout the test suite) to the Transport interface.
type pipeTransport struct {
	rw io.ReadWriteCloser
}

// NewPipeTransport wraps rw as a Transport with no read-size guard bypass
// and no deadline support; intended for tests.
func NewPipeTransport(rw io.ReadWriteCloser) Transport {
	return &pipeTransport{rw: rw}
}

func (t *pipeTransport) ReadExact(n int) ([]byte, error) {
	if n > maxReadSize {
		return nil, &ProtocolError{Kind: OversizeRead, Err: fmt.Errorf("requested read of %d bytes exceeds %d byte limit", n, maxReadSize)}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.rw, buf); err != nil {
		return nil, classifyReadError(err)
	}
	return buf, nil
}

func (t *pipeTransport) WriteAll(b []byte) error {
	_, err := t.rw.Write(b)
	if err != nil {
		return &TransportError{Kind: Io, Err: err}
	}
	return nil
}

func (t *pipeTransport) Close() error {
	return t.rw.Close()
}
