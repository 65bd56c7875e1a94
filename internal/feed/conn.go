package feed

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/abelbrown/imageshelf/internal/notify"
	"github.com/abelbrown/imageshelf/internal/otel"
)

// DefaultReconnectDelay is the wait between a transport error and the next
// connection attempt.
const DefaultReconnectDelay = 5 * time.Second

// errStreamEnded reports a server-side close of the event stream.
var errStreamEnded = errors.New("feed stream ended")

// State is the lifecycle state of a Conn.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ConnConfig holds the collaborators of a Conn.
type ConnConfig struct {
	Transport      Transport     // nil selects an HTTPTransport
	Clock          Clock         // nil selects SystemClock
	Buffer         *Buffer       // required
	ReconnectDelay time.Duration // non-positive selects DefaultReconnectDelay
	Logger         *otel.Logger  // nil discards events
}

// Conn manages the single live connection to a feed. Items received on the
// open connection are inserted into the buffer in arrival order. After any
// transport error the connection is closed and exactly one reconnect is
// scheduled.
//
// Every connection attempt gets a new generation number. Reader goroutines
// check their generation under mu before touching state or the buffer, so a
// superseded reader can do neither.
//
// Lock order: Conn.mu, then Buffer.mu.
type Conn struct {
	transport Transport
	clock     Clock
	buf       *Buffer
	delay     time.Duration
	events    otel.Component
	changed   *notify.Signal

	mu       sync.Mutex
	state    State
	url      string
	gen      uint64
	cancel   context.CancelFunc
	body     io.ReadCloser
	timer    Timer // pending reconnect, nil when none
	attempts int   // reconnects since the last successful open
	lastErr  error
	guard    func() bool

	wg sync.WaitGroup
}

// NewConn creates an idle connection manager.
func NewConn(cfg ConnConfig) *Conn {
	if cfg.Transport == nil {
		cfg.Transport = NewHTTPTransport(nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	changed := notify.NewSignal()
	if cfg.Buffer != nil {
		// Share the buffer's signal so one channel covers items and state.
		changed = cfg.Buffer.changed
	}
	return &Conn{
		transport: cfg.Transport,
		clock:     cfg.Clock,
		buf:       cfg.Buffer,
		delay:     cfg.ReconnectDelay,
		events:    cfg.Logger.Component("feed"),
		changed:   changed,
	}
}

// SetReconnectGuard installs a predicate consulted when a reconnect timer
// fires. The reconnect is skipped when it returns false. The predicate is
// called with the Conn lock held and must not call back into the Conn.
func (c *Conn) SetReconnectGuard(fn func() bool) {
	c.mu.Lock()
	c.guard = fn
	c.mu.Unlock()
}

// Connect opens a connection to url, first closing any existing connection
// and cancelling any pending reconnect.
func (c *Conn) Connect(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectLocked(url)
}

// EnsureConnected connects to url unless a connection to it is already open
// or being opened. A pending reconnect is superseded by an immediate attempt.
func (c *Conn) EnsureConnected(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.url == url && (c.state == StateOpen || c.state == StateConnecting) {
		return
	}
	c.connectLocked(url)
}

// Disconnect closes the connection, cancels any pending reconnect and
// returns to Idle. Safe to call when already disconnected.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()
	c.stopTimerLocked()
	c.gen++
	if c.state != StateIdle {
		c.events.Emit(otel.Event{Kind: otel.KindFeedDisconnect, Level: otel.LevelInfo, Feed: c.url})
	}
	c.attempts = 0
	c.setStateLocked(StateIdle)
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectPending reports whether a reconnect timer is scheduled.
func (c *Conn) ReconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// Attempts returns the number of reconnects scheduled since the last
// successful open. Informational only; reconnection is never abandoned.
func (c *Conn) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// LastError returns the most recent transport error, nil after a successful open.
func (c *Conn) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// URL returns the feed URL of the current or last connection.
func (c *Conn) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Changed returns a channel closed on the next state change or buffer mutation.
func (c *Conn) Changed() <-chan struct{} {
	return c.changed.C()
}

// Wait blocks until every reader goroutine has exited. Call after Disconnect.
func (c *Conn) Wait() {
	c.wg.Wait()
}

func (c *Conn) connectLocked(url string) {
	c.closeLocked()
	c.stopTimerLocked()

	c.gen++
	gen := c.gen
	c.url = url

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setStateLocked(StateConnecting)
	c.events.Emit(otel.Event{Kind: otel.KindFeedConnect, Level: otel.LevelInfo, Feed: url, Attempt: c.attempts})

	c.wg.Add(1)
	go c.run(ctx, gen, url)
}

// run owns one connection attempt from open to the final error.
func (c *Conn) run(ctx context.Context, gen uint64, url string) {
	defer c.wg.Done()

	start := time.Now()
	body, err := c.transport.Open(ctx, url)
	if err != nil {
		c.fail(gen, err)
		return
	}
	if !c.opened(gen, body, time.Since(start)) {
		body.Close()
		return
	}

	err = readEvents(body, func(data []byte) {
		c.ingest(gen, data)
	})
	if err == nil {
		err = errStreamEnded
	}
	c.fail(gen, err)
}

func (c *Conn) opened(gen uint64, body io.ReadCloser, dur time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.body = body
	c.attempts = 0
	c.lastErr = nil
	c.setStateLocked(StateOpen)
	c.events.Emit(otel.Event{Kind: otel.KindFeedOpen, Level: otel.LevelInfo, Feed: c.url, Dur: dur})
	return true
}

func (c *Conn) ingest(gen uint64, data []byte) {
	item, err := ParseItem(data)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != StateOpen {
		return
	}
	if err != nil {
		c.events.Fail(otel.KindParseError, err, otel.Event{Feed: c.url})
		return
	}
	c.buf.Insert(item)
	if otel.TraceEnabled() {
		c.events.Emit(otel.Event{Kind: otel.KindFeedMessage, Level: otel.LevelDebug, ImageURL: item.ImageURL})
	}
}

func (c *Conn) fail(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}

	c.closeLocked()
	c.lastErr = err
	c.setStateLocked(StateErrored)
	c.events.Fail(otel.KindFeedError, err, otel.Event{Feed: c.url})

	if c.timer != nil {
		return
	}
	c.attempts++
	c.timer = c.clock.AfterFunc(c.delay, func() {
		c.reconnect(gen)
	})
}

func (c *Conn) reconnect(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A Disconnect or Connect since scheduling has bumped the generation
	// and already dropped this timer.
	if gen != c.gen || c.state != StateErrored {
		return
	}
	c.timer = nil
	if c.guard != nil && !c.guard() {
		return
	}
	c.events.Emit(otel.Event{Kind: otel.KindFeedReconnect, Level: otel.LevelInfo, Feed: c.url, Attempt: c.attempts})
	c.connectLocked(c.url)
}

func (c *Conn) closeLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.body != nil {
		_ = c.body.Close()
		c.body = nil
	}
}

func (c *Conn) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Conn) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.changed.Notify()
}
