// Package gallery is the persistence side of curation: it turns a save
// request into a stored image record, attaching tags whose names appear in
// the prompt.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TagLimit caps every tag catalog query.
const TagLimit = 100

// titleRunes is the prompt prefix length used for record titles.
const titleRunes = 50

// ErrInvalidRequest is returned when a save request lacks imageURL or prompt.
var ErrInvalidRequest = errors.New("invalid image data")

// Status is the curation status of a stored image.
type Status string

const (
	StatusActive   Status = "Active"
	StatusFeatured Status = "Featured"
	StatusArchived Status = "Archived"
)

// ParseStatus matches a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusActive, StatusFeatured, StatusArchived} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown image status %q", s)
}

// Tag is one entry of the tag catalog.
type Tag struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// SaveRequest is the payload of a save: the item identity, its prompt and
// optional seed.
type SaveRequest struct {
	ImageURL string `json:"imageURL"`
	Prompt   string `json:"prompt"`
	Seed     *int64 `json:"seed,omitempty"`
}

// Validate reports ErrInvalidRequest when a required field is empty.
func (r SaveRequest) Validate() error {
	if strings.TrimSpace(r.ImageURL) == "" {
		return fmt.Errorf("%w: imageURL is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	return nil
}

// Record is a stored image.
type Record struct {
	ID        string   `json:"id"`
	Slug      string   `json:"slug"`
	Title     string   `json:"title"`
	ImageURL  string   `json:"image_url"`
	Prompt    string   `json:"prompt"`
	Seed      *int64   `json:"seed,omitempty"`
	Status    Status   `json:"status"`
	TagIDs    []string `json:"tags"`
	CreatedAt string   `json:"created_at"` // YYYY-MM-DD
}

// Settings are the remotely managed application settings.
// Zero values mean "not set".
type Settings struct {
	FeedURL            string `json:"feed_url"`
	ImagesPerPage      int    `json:"images_per_page,omitempty"`
	FeedUpdateInterval int    `json:"feed_update_interval,omitempty"` // seconds
	EnableAutoTagging  *bool  `json:"enable_auto_tagging,omitempty"`
}

// ImageQuery filters image listings.
type ImageQuery struct {
	Status Status // empty matches every status
	Limit  int
}

// TagCatalog lists tags, at most limit of them.
type TagCatalog interface {
	ListTags(ctx context.Context, limit int) ([]Tag, error)
}

// RecordWriter stores a new record and returns it with ID and Slug filled.
type RecordWriter interface {
	InsertRecord(ctx context.Context, rec Record) (Record, error)
}

// Title derives a record title: the first 50 runes of the prompt, followed
// by "..." when the prompt is longer.
func Title(prompt string) string {
	r := []rune(prompt)
	if len(r) <= titleRunes {
		return prompt
	}
	return string(r[:titleRunes]) + "..."
}
