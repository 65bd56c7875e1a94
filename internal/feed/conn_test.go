package feed

import (
	"errors"
	"testing"
	"time"
)

const testURL = "https://feed.test/imageFeed"

func newTestConn(t *testing.T, capacity int) (*Conn, *Buffer, *fakeTransport, *fakeClock) {
	t.Helper()
	buf := NewBuffer(capacity)
	ft := newFakeTransport()
	clk := &fakeClock{}
	c := NewConn(ConnConfig{
		Transport:      ft,
		Clock:          clk,
		Buffer:         buf,
		ReconnectDelay: 3 * time.Second,
	})
	t.Cleanup(func() {
		c.Disconnect()
		c.Wait()
	})
	return c, buf, ft, clk
}

func openConn(t *testing.T, c *Conn, ft *fakeTransport) *fakeStream {
	t.Helper()
	c.Connect(testURL)
	s := ft.next(t)
	waitFor(t, "open", func() bool { return c.State() == StateOpen })
	return s
}

func currentGen(c *Conn) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func TestConnInsertsInArrivalOrder(t *testing.T) {
	c, buf, ft, _ := newTestConn(t, 2)
	s := openConn(t, c, ft)

	for _, u := range []string{"A", "B", "C"} {
		if err := s.send(`{"imageURL":"` + u + `","prompt":"p"}`); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	waitFor(t, "C buffered", func() bool {
		snap := buf.Snapshot()
		return len(snap) > 0 && snap[0].ImageURL == "C"
	})

	if got, want := urls(buf.Snapshot()), []string{"C", "B"}; !equalStrings(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestConnDiscardsInvalidMessages(t *testing.T) {
	c, buf, ft, _ := newTestConn(t, 10)
	s := openConn(t, c, ft)

	for _, msg := range []string{`{"prompt":"no url"}`, `not json`, `{"imageURL":""}`, `{"imageURL":"ok"}`} {
		if err := s.send(msg); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	waitFor(t, "valid item", func() bool { return buf.Len() > 0 })

	if got, want := urls(buf.Snapshot()), []string{"ok"}; !equalStrings(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
	if c.State() != StateOpen {
		t.Errorf("State() = %v, want open (parse errors are not transport errors)", c.State())
	}
}

func TestConnOpenFailureSchedulesReconnect(t *testing.T) {
	c, _, ft, clk := newTestConn(t, 10)
	refused := errors.New("connection refused")
	ft.failNext(refused)

	c.Connect(testURL)
	waitFor(t, "errored", func() bool { return c.State() == StateErrored })

	if !errors.Is(c.LastError(), refused) {
		t.Errorf("LastError() = %v, want %v", c.LastError(), refused)
	}
	pending := clk.pending()
	if len(pending) != 1 {
		t.Fatalf("pending timers = %d, want 1", len(pending))
	}
	if pending[0].d != 3*time.Second {
		t.Errorf("reconnect delay = %v, want 3s", pending[0].d)
	}
	if c.Attempts() != 1 {
		t.Errorf("Attempts() = %d, want 1", c.Attempts())
	}

	clk.fire()
	ft.next(t)
	waitFor(t, "reopen", func() bool { return c.State() == StateOpen })
	if c.Attempts() != 0 {
		t.Errorf("Attempts() after open = %d, want 0", c.Attempts())
	}
	if c.LastError() != nil {
		t.Errorf("LastError() after open = %v, want nil", c.LastError())
	}
}

func TestConnStreamEndReconnectsOnce(t *testing.T) {
	c, _, ft, clk := newTestConn(t, 10)
	s := openConn(t, c, ft)
	gen := currentGen(c)

	s.end()
	waitFor(t, "errored", func() bool { return c.State() == StateErrored })
	if !errors.Is(c.LastError(), errStreamEnded) {
		t.Errorf("LastError() = %v, want %v", c.LastError(), errStreamEnded)
	}

	// A second error while the reconnect is pending adds no timer.
	c.fail(gen, errors.New("late error"))
	if n := len(clk.pending()); n != 1 {
		t.Fatalf("pending timers = %d, want 1", n)
	}
	if !c.ReconnectPending() {
		t.Error("ReconnectPending() = false, want true")
	}

	if n := clk.fire(); n != 1 {
		t.Fatalf("fired %d timers, want 1", n)
	}
	ft.next(t)
	waitFor(t, "reopen", func() bool { return c.State() == StateOpen })
	if ft.Calls() != 2 {
		t.Errorf("transport calls = %d, want 2", ft.Calls())
	}
	if c.ReconnectPending() {
		t.Error("ReconnectPending() = true after reconnect")
	}
}

func TestConnReconnectGuard(t *testing.T) {
	c, _, ft, clk := newTestConn(t, 10)
	c.SetReconnectGuard(func() bool { return false })
	ft.failNext(errors.New("down"))

	c.Connect(testURL)
	waitFor(t, "errored", func() bool { return c.State() == StateErrored })
	clk.fire()

	if c.State() != StateErrored {
		t.Errorf("State() = %v, want errored", c.State())
	}
	if ft.Calls() != 1 {
		t.Errorf("transport calls = %d, want 1", ft.Calls())
	}
	if c.ReconnectPending() {
		t.Error("ReconnectPending() = true after guarded fire")
	}
}

func TestConnDisconnectCancelsReconnect(t *testing.T) {
	c, _, ft, clk := newTestConn(t, 10)
	ft.failNext(errors.New("down"))

	c.Connect(testURL)
	waitFor(t, "errored", func() bool { return c.State() == StateErrored })

	c.Disconnect()
	c.Disconnect() // idempotent

	if c.State() != StateIdle {
		t.Errorf("State() = %v, want idle", c.State())
	}
	if n := clk.fire(); n != 0 {
		t.Errorf("fired %d timers after Disconnect, want 0", n)
	}
	if ft.Calls() != 1 {
		t.Errorf("transport calls = %d, want 1", ft.Calls())
	}
}

func TestConnFiredTimerAfterDisconnectIsNoop(t *testing.T) {
	c, _, ft, clk := newTestConn(t, 10)
	ft.failNext(errors.New("down"))

	c.Connect(testURL)
	waitFor(t, "errored", func() bool { return c.State() == StateErrored })

	// Simulate a timer that had already fired and was blocked on the lock
	// when Disconnect ran.
	timer := clk.pending()[0]
	c.Disconnect()
	timer.f()

	if c.State() != StateIdle {
		t.Errorf("State() = %v, want idle", c.State())
	}
	if ft.Calls() != 1 {
		t.Errorf("transport calls = %d, want 1", ft.Calls())
	}
}

func TestConnStaleGenerationIgnored(t *testing.T) {
	c, buf, ft, _ := newTestConn(t, 10)
	openConn(t, c, ft)
	stale := currentGen(c)

	// Reconnect supersedes the first connection.
	c.Connect(testURL)
	ft.next(t)
	waitFor(t, "open", func() bool { return c.State() == StateOpen && currentGen(c) != stale })

	c.ingest(stale, []byte(`{"imageURL":"stale"}`))
	c.fail(stale, errors.New("stale error"))

	if buf.Len() != 0 {
		t.Errorf("stale reader inserted %v", urls(buf.Snapshot()))
	}
	if c.State() != StateOpen {
		t.Errorf("State() = %v, want open", c.State())
	}
}

func TestConnDisconnectClosesStream(t *testing.T) {
	c, buf, ft, _ := newTestConn(t, 10)
	s := openConn(t, c, ft)

	c.Disconnect()
	c.Wait()

	if err := s.send(`{"imageURL":"late"}`); err == nil {
		t.Error("send after Disconnect succeeded, want closed pipe")
	}
	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}
}

func TestConnStateChangeSignals(t *testing.T) {
	c, _, ft, _ := newTestConn(t, 10)
	ch := c.Changed()
	c.Connect(testURL)
	ft.next(t)

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("Changed() not closed after Connect")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle:       "idle",
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateErrored:    "errored",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
