// Package coord connects the live feed pipeline and the curation dispatcher
// to the Bubble Tea program.
package coord

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/abelbrown/imageshelf/internal/curate"
	"github.com/abelbrown/imageshelf/internal/feed"
	"github.com/abelbrown/imageshelf/internal/ui"
)

// refreshRate caps how many snapshots per second reach the program. Bursts
// of feed messages between two refreshes collapse into one snapshot.
const refreshRate = 20

// Sender receives messages for the program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Coordinator forwards pipeline changes to the program and turns UI
// intents into pipeline and dispatcher calls.
// Uses context cancellation as the ONLY stop mechanism.
type Coordinator struct {
	pipeline   *feed.Pipeline
	dispatcher *curate.Dispatcher
	limiter    *rate.Limiter

	mu sync.Mutex
	g  *errgroup.Group
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(p *feed.Pipeline, d *curate.Dispatcher) *Coordinator {
	return &Coordinator{
		pipeline:   p,
		dispatcher: d,
		limiter:    rate.NewLimiter(rate.Limit(refreshRate), 1),
	}
}

// Start applies the initial playback state and begins forwarding
// snapshots to program. Canceling ctx closes the pipeline.
func (c *Coordinator) Start(ctx context.Context, program Sender) {
	g, ctx := errgroup.WithContext(ctx)
	c.mu.Lock()
	c.g = g
	c.mu.Unlock()

	c.pipeline.Start()

	g.Go(func() error {
		c.forward(ctx, program)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		c.pipeline.Close()
		return nil
	})
}

// Wait blocks until the background goroutines exit.
// Call after canceling the context passed to Start.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	g := c.g
	c.mu.Unlock()
	if g != nil {
		_ = g.Wait() // goroutines never fail
	}
}

// forward sends a snapshot, then one more after every change signal.
// The channel is taken before the snapshot so no change is missed.
func (c *Coordinator) forward(ctx context.Context, program Sender) {
	for {
		changed := c.pipeline.Changed()
		if program != nil {
			program.Send(c.Snapshot())
		}

		select {
		case <-ctx.Done():
			return
		case <-changed:
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
	}
}

// Snapshot captures the current pipeline state for the UI.
func (c *Coordinator) Snapshot() ui.FeedUpdated {
	p := c.pipeline
	return ui.FeedUpdated{
		Items:    p.Buffer.Snapshot(),
		Capacity: p.Buffer.Cap(),
		Status:   p.Controller.Status(),
		Attempts: p.Conn.Attempts(),
		Err:      p.Conn.LastError(),
	}
}

// RefreshCmd returns a Cmd producing a fresh snapshot.
func (c *Coordinator) RefreshCmd() tea.Cmd {
	return func() tea.Msg {
		return c.Snapshot()
	}
}

// ToggleCmd returns a Cmd that flips playback.
func (c *Coordinator) ToggleCmd() tea.Cmd {
	return func() tea.Msg {
		state := c.pipeline.Controller.Toggle()
		return ui.PlaybackToggled{State: state, Status: c.pipeline.Controller.Status()}
	}
}

// ClearCmd returns a Cmd that empties the buffer without touching the
// connection.
func (c *Coordinator) ClearCmd() tea.Cmd {
	return func() tea.Msg {
		return ui.FeedCleared{Removed: c.pipeline.Controller.Clear()}
	}
}

// SaveCmd returns a Cmd that saves item through the dispatcher. The
// dispatcher's timeout bounds the call.
func (c *Coordinator) SaveCmd(item feed.Item) tea.Cmd {
	return func() tea.Msg {
		t, err := c.dispatcher.Save(context.Background(), item)
		return ui.SaveResult{ImageURL: item.ImageURL, Record: t.Record, Err: err}
	}
}
