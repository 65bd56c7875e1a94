package feed

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeStream is one connection opened through fakeTransport.
type fakeStream struct {
	url string
	w   *io.PipeWriter
}

// send writes one SSE message. It blocks until the reader consumes it.
func (s *fakeStream) send(data string) error {
	_, err := fmt.Fprintf(s.w, "data: %s\n\n", data)
	return err
}

// end closes the stream as a server would.
func (s *fakeStream) end() {
	s.w.Close()
}

// fakeTransport hands out in-memory streams. Queued errors fail the next
// Open calls in order.
type fakeTransport struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	opened chan *fakeStream
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{opened: make(chan *fakeStream, 16)}
}

func (f *fakeTransport) failNext(err error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransport) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	pr, pw := io.Pipe()
	go func() {
		<-ctx.Done()
		pw.CloseWithError(ctx.Err())
	}()
	s := &fakeStream{url: url, w: pw}
	f.opened <- s
	return pr, nil
}

// next waits for the next opened stream.
func (f *fakeTransport) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-f.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

// fakeClock records timers and fires them on demand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// pending returns timers neither stopped nor fired.
func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs every pending timer on the calling goroutine and returns how
// many ran.
func (c *fakeClock) fire() int {
	timers := c.pending()
	c.mu.Lock()
	for _, t := range timers {
		t.fired = true
	}
	c.mu.Unlock()
	for _, t := range timers {
		t.f()
	}
	return len(timers)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func urls(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ImageURL
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
