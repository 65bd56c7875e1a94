// Package ui provides the Bubble Tea TUI for the live image feed.
package ui

import (
	"github.com/abelbrown/imageshelf/internal/feed"
	"github.com/abelbrown/imageshelf/internal/gallery"
)

// FeedUpdated carries a fresh snapshot of the pipeline.
type FeedUpdated struct {
	Items    []feed.Item // newest first
	Capacity int
	Status   string // feed.Status* label
	Attempts int    // reconnect attempts since the last successful open
	Err      error  // last connection error, nil once open
}

// PlaybackToggled is sent after a play/pause transition.
type PlaybackToggled struct {
	State  feed.PlayState
	Status string
}

// FeedCleared is sent after the buffer was emptied.
type FeedCleared struct {
	Removed int
}

// SaveResult is sent when a save request for ImageURL finishes.
type SaveResult struct {
	ImageURL string
	Record   gallery.Record
	Err      error
}
