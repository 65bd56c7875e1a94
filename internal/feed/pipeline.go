package feed

import (
	"time"

	"github.com/abelbrown/imageshelf/internal/otel"
)

// Options parameterize a Pipeline.
type Options struct {
	URL            string
	Capacity       int
	ReconnectDelay time.Duration
	InitialState   PlayState
}

// DefaultOptions returns the defaults: 50 items, 5s reconnect delay, Playing.
func DefaultOptions() Options {
	return Options{
		Capacity:       DefaultCapacity,
		ReconnectDelay: DefaultReconnectDelay,
		InitialState:   Playing,
	}
}

// Pipeline bundles the state of one live feed. Independent pipelines share
// nothing.
type Pipeline struct {
	Buffer     *Buffer
	Conn       *Conn
	Controller *Controller
}

// New assembles a pipeline. A nil transport selects HTTP, a nil clock the
// system clock, and a nil logger discards events.
func New(opts Options, transport Transport, clock Clock, logger *otel.Logger) *Pipeline {
	buf := NewBuffer(opts.Capacity)
	conn := NewConn(ConnConfig{
		Transport:      transport,
		Clock:          clock,
		Buffer:         buf,
		ReconnectDelay: opts.ReconnectDelay,
		Logger:         logger,
	})
	return &Pipeline{
		Buffer:     buf,
		Conn:       conn,
		Controller: NewController(conn, buf, opts.URL, opts.InitialState, logger),
	}
}

// Start applies the initial playback state.
func (p *Pipeline) Start() {
	p.Controller.Start()
}

// Close disconnects and waits for the reader goroutine to exit.
func (p *Pipeline) Close() {
	p.Conn.Disconnect()
	p.Conn.Wait()
}

// Changed returns a channel closed on the next buffer mutation or
// connection state change.
func (p *Pipeline) Changed() <-chan struct{} {
	return p.Buffer.Changed()
}
