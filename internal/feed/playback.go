package feed

import (
	"fmt"
	"strings"
	"sync"

	"github.com/abelbrown/imageshelf/internal/otel"
)

// PlayState is the user's desired playback state.
type PlayState int

const (
	Playing PlayState = iota
	Paused
)

func (s PlayState) String() string {
	if s == Paused {
		return "paused"
	}
	return "playing"
}

// ParsePlayState accepts "playing"/"play" and "paused"/"pause".
// The empty string selects Playing.
func ParsePlayState(s string) (PlayState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "playing", "play":
		return Playing, nil
	case "paused", "pause":
		return Paused, nil
	default:
		return Playing, fmt.Errorf("unknown play state %q", s)
	}
}

// Status labels shown to the user.
const (
	StatusPaused       = "paused"
	StatusLive         = "live"
	StatusConnecting   = "connecting"
	StatusReconnecting = "reconnecting"
	StatusIdle         = "idle"
)

// Controller applies play/pause/clear to a Conn and its Buffer.
//
// While Paused the Conn is never Open or Connecting. While Playing the Conn
// is Connecting or Open unless a reconnect is pending. A reconnect timer
// that fires after Pause is a no-op.
type Controller struct {
	conn   *Conn
	buf    *Buffer
	url    string
	events otel.Component

	// ops serializes transitions so concurrent Play/Pause calls cannot
	// leave the connection out of step with the desired state. It is never
	// taken by the Conn, so holding it across Conn calls is safe.
	ops sync.Mutex

	mu      sync.Mutex // guards desired; read by the Conn's reconnect guard
	desired PlayState
}

// NewController creates a controller for conn and buf. Nothing connects
// until Start.
func NewController(conn *Conn, buf *Buffer, url string, initial PlayState, logger *otel.Logger) *Controller {
	c := &Controller{
		conn:    conn,
		buf:     buf,
		url:     url,
		events:  logger.Component("playback"),
		desired: initial,
	}
	conn.SetReconnectGuard(c.Playing)
	return c
}

// Start applies the initial state: connects when Playing.
func (c *Controller) Start() {
	c.ops.Lock()
	defer c.ops.Unlock()
	if c.Desired() == Playing {
		c.conn.EnsureConnected(c.url)
	}
}

// Play resumes the live feed.
func (c *Controller) Play() {
	c.ops.Lock()
	defer c.ops.Unlock()
	c.play()
}

// Pause stops the live feed. Buffered items are kept.
func (c *Controller) Pause() {
	c.ops.Lock()
	defer c.ops.Unlock()
	c.pause()
}

// Toggle switches between Playing and Paused and returns the new state.
func (c *Controller) Toggle() PlayState {
	c.ops.Lock()
	defer c.ops.Unlock()
	if c.Desired() == Paused {
		c.play()
		return Playing
	}
	c.pause()
	return Paused
}

func (c *Controller) play() {
	c.setDesired(Playing)
	c.events.Emit(otel.Event{Kind: otel.KindPlay, Level: otel.LevelInfo, Feed: c.url})
	c.conn.EnsureConnected(c.url)
}

func (c *Controller) pause() {
	c.setDesired(Paused)
	c.events.Emit(otel.Event{Kind: otel.KindPause, Level: otel.LevelInfo, Feed: c.url})
	c.conn.Disconnect()
}

// Clear empties the buffer without touching the connection.
// Returns the number of items dropped.
func (c *Controller) Clear() int {
	n := c.buf.Clear()
	c.events.Emit(otel.Event{Kind: otel.KindFeedClear, Level: otel.LevelInfo, Count: n})
	return n
}

// Desired returns the desired playback state.
func (c *Controller) Desired() PlayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired
}

// Playing reports whether playback is desired.
func (c *Controller) Playing() bool {
	return c.Desired() == Playing
}

// Status returns a display label combining the desired and connection state.
func (c *Controller) Status() string {
	if !c.Playing() {
		return StatusPaused
	}
	switch c.conn.State() {
	case StateOpen:
		return StatusLive
	case StateConnecting:
		return StatusConnecting
	case StateErrored:
		return StatusReconnecting
	default:
		return StatusIdle
	}
}

func (c *Controller) setDesired(s PlayState) {
	c.mu.Lock()
	c.desired = s
	c.mu.Unlock()
}
