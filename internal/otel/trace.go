package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled gates per-message feed.message events, which are too chatty
// for normal sessions.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("IMAGESHELF_TRACE") != "")
}

// TraceEnabled reports whether IMAGESHELF_TRACE is set.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// setTraceEnabled overrides the flag for tests.
func setTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
