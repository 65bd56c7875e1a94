// Package feed implements the live image feed pipeline: an SSE connection
// with automatic reconnection, a bounded newest-first buffer of received
// items, and play/pause/clear control on top of both.
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMissingImageURL is returned by ParseItem when a message has no imageURL.
var ErrMissingImageURL = errors.New("feed message missing imageURL")

// Item is one generated image announced by the feed.
// ImageURL identifies the item for the lifetime of a buffer.
type Item struct {
	ImageURL string
	Prompt   string
	Seed     *int64 // nil when the message carried no usable seed

	// Params holds every other field of the message verbatim (width, height,
	// model, quality, nologo, ...). The pipeline never interprets them.
	Params map[string]json.RawMessage
}

// ParseItem decodes one feed message. Malformed JSON, a non-string imageURL,
// or an empty imageURL are errors; an unparseable seed is dropped rather
// than failing the message.
func ParseItem(data []byte) (Item, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Item{}, fmt.Errorf("parse feed message: %w", err)
	}

	var item Item
	if raw, ok := fields["imageURL"]; ok {
		if err := json.Unmarshal(raw, &item.ImageURL); err != nil {
			return Item{}, fmt.Errorf("parse feed message: imageURL: %w", err)
		}
	}
	if item.ImageURL == "" {
		return Item{}, ErrMissingImageURL
	}

	if raw, ok := fields["prompt"]; ok {
		// A non-string prompt is treated as absent.
		_ = json.Unmarshal(raw, &item.Prompt)
	}
	if raw, ok := fields["seed"]; ok {
		item.Seed = parseSeed(raw)
	}

	delete(fields, "imageURL")
	delete(fields, "prompt")
	delete(fields, "seed")
	if len(fields) > 0 {
		item.Params = fields
	}
	return item, nil
}

// parseSeed accepts integral JSON numbers and numeric strings.
func parseSeed(raw json.RawMessage) *int64 {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		n = json.Number(s)
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Param returns a passthrough parameter rendered as text, or "" when absent.
// Strings are unquoted; numbers and booleans keep their JSON form.
func (it Item) Param(name string) string {
	raw, ok := it.Params[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// MarshalJSON re-emits the item in the feed's wire shape.
func (it Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(it.Params)+3)
	for k, v := range it.Params {
		out[k] = v
	}
	out["imageURL"] = it.ImageURL
	out["prompt"] = it.Prompt
	if it.Seed != nil {
		out["seed"] = *it.Seed
	}
	return json.Marshal(out)
}

// clone copies the mutable parts of an item so buffer contents never alias
// caller memory.
func (it Item) clone() Item {
	if it.Seed != nil {
		s := *it.Seed
		it.Seed = &s
	}
	if it.Params != nil {
		cp := make(map[string]json.RawMessage, len(it.Params))
		for k, v := range it.Params {
			cp[k] = v
		}
		it.Params = cp
	}
	return it
}
