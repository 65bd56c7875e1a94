// Package otel provides structured observability for imageshelf.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer keeps recent events in memory for the TUI status line.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// rank orders levels for threshold comparisons.
func (l Level) rank() int {
	switch l {
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether l is as severe as min.
func (l Level) AtLeast(min Level) bool {
	return l.rank() >= min.rank()
}

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Feed connection events
	KindFeedConnect    EventKind = "feed.connect"
	KindFeedOpen       EventKind = "feed.open"
	KindFeedError      EventKind = "feed.error"
	KindFeedReconnect  EventKind = "feed.reconnect"
	KindFeedDisconnect EventKind = "feed.disconnect"
	KindFeedMessage    EventKind = "feed.message"
	KindParseError     EventKind = "feed.parse_error"
	KindFeedClear      EventKind = "feed.clear"

	// Playback events
	KindPlay  EventKind = "playback.play"
	KindPause EventKind = "playback.pause"

	// Curation events
	KindSaveStart    EventKind = "save.start"
	KindSaveComplete EventKind = "save.complete"
	KindSaveError    EventKind = "save.error"
	KindSaveConflict EventKind = "save.conflict"

	// Gallery events
	KindTagLookupError EventKind = "tag.lookup_error"
	KindGalleryCreate  EventKind = "gallery.create"
	KindStoreError     EventKind = "store.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "feed", "curate", "gallery", "main"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire app run
	Dur       time.Duration  `json:"-"`                    // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"`     // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Feed      string         `json:"feed,omitempty"`      // feed URL
	ImageURL  string         `json:"image_url,omitempty"` // item identity
	State     string         `json:"state,omitempty"`     // connection or playback state
	Attempt   int            `json:"attempt,omitempty"`   // reconnect attempt number
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
