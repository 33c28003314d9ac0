package client

import (
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dalton-tools/rfbshadow/rfb"
)

// UpdateEngine paces outbound FramebufferUpdateRequest messages and tracks
// how many are outstanding. The minimum gap between requests is enforced
// with a token-bucket limiter rather than a hand-rolled timestamp diff.
type UpdateEngine struct {
	mu sync.Mutex

	params PacingParams
	limit  *rate.Limiter

	pendingRequests  int
	lastRequestTime  time.Time
	lastResponseTime time.Time

	log *slog.Logger
}

// NewUpdateEngine constructs an engine for the given profile. lastResponseTime
// is initialized to now so a fresh session doesn't immediately look stalled.
func NewUpdateEngine(profile Profile, log *slog.Logger) *UpdateEngine {
	if log == nil {
		log = slog.Default()
	}
	params := profile.Params()
	return &UpdateEngine{
		params:           params,
		limit:            rate.NewLimiter(rate.Every(params.RequestInterval), 1),
		lastResponseTime: timeNow(),
		log:              log,
	}
}

// timeNow exists only so tests can be written against a fixed notion of
// time if ever needed; production code always uses the wall clock.
var timeNow = time.Now

// tryRequest reports whether a request may be sent right now without
// violating the request interval or the pending cap, and if so reserves the
// slot (increments pendingRequests, stamps lastRequestTime). A suppressed
// request is simply dropped by the caller — there is no queueing here.
func (e *UpdateEngine) tryRequest() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pendingRequests >= e.params.MaxPending {
		return false
	}
	if !e.limit.Allow() {
		return false
	}
	e.pendingRequests++
	e.lastRequestTime = timeNow()
	return true
}

// onFramebufferUpdateReceived is called by the receive worker the instant a
// FramebufferUpdate message's type byte (and nothing more) has been
// observed — it decrements pendingRequests (saturating at zero) and stamps
// lastResponseTime, then applies the stall-threshold recovery rule.
func (e *UpdateEngine) onFramebufferUpdateReceived() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pendingRequests > 0 {
		e.pendingRequests--
	}
	now := timeNow()
	if !e.lastResponseTime.IsZero() && now.Sub(e.lastResponseTime) > stallThreshold {
		e.log.Warn("update stall detected, resetting pending requests", "gap", now.Sub(e.lastResponseTime))
		e.pendingRequests = 0
	}
	e.lastResponseTime = now
}

func (e *UpdateEngine) sinceLastResponse() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return timeNow().Sub(e.lastResponseTime)
}

// requestIncremental opportunistically requests changed regions, issued on
// pointer press/release and key press (never on motion or key release) and
// periodically while the continuous timer is running. It is a no-op if
// pacing would be violated.
func (e *UpdateEngine) requestIncremental(transport Transport, width, height int) error {
	if !e.tryRequest() {
		return nil
	}
	return sendFramebufferUpdateRequest(transport, true, width, height)
}

// requestFull asks for a complete snapshot, used by the forced-refresh
// timer. It respects the same pacing gate as requestIncremental; only
// forceFullRequest (init and the health probe) bypasses pacing.
func (e *UpdateEngine) requestFull(transport Transport, width, height int) error {
	if !e.tryRequest() {
		return nil
	}
	return sendFramebufferUpdateRequest(transport, false, width, height)
}

// forceFullRequest bypasses pacing entirely: used once after Init and by
// the health probe, both of which must not be silently suppressed by a
// request that happened to land moments before. It resets pendingRequests
// before counting the new request and stamps lastResponseTime along with
// lastRequestTime — without the response stamp, a silent server would
// leave sinceLastResponse() permanently over livenessTimeout and
// checkHealth would force a new, uncounted request on every subsequent
// tick forever.
func (e *UpdateEngine) forceFullRequest(transport Transport, width, height int) error {
	e.mu.Lock()
	now := timeNow()
	e.pendingRequests = 1
	e.lastRequestTime = now
	e.lastResponseTime = now
	e.mu.Unlock()
	return sendFramebufferUpdateRequest(transport, false, width, height)
}

func sendFramebufferUpdateRequest(transport Transport, incremental bool, width, height int) error {
	req := rfb.FramebufferUpdateRequestMessage{
		Incremental: incremental,
		X:           0, Y: 0,
		Width: uint16(width), Height: uint16(height),
	}
	return req.Write(transportWriter{transport}, binary.BigEndian)
}

// checkHealth emits exactly one full request if no FramebufferUpdate has
// arrived for livenessTimeout, recovering from servers that silently drop
// an incremental cycle.
func (e *UpdateEngine) checkHealth(transport Transport, width, height int) error {
	if e.sinceLastResponse() < livenessTimeout {
		return nil
	}
	e.log.Debug("liveness probe firing", "since_last_response", e.sinceLastResponse())
	return e.forceFullRequest(transport, width, height)
}

func (e *UpdateEngine) pendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingRequests
}
