// Package cosmic stores the gallery in a Cosmic bucket through its REST API.
package cosmic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/imageshelf/internal/gallery"
	"github.com/abelbrown/imageshelf/internal/httpclient"
)

// DefaultEndpoint is the Cosmic REST API root.
const DefaultEndpoint = "https://api.cosmicjs.com/v3"

// Config holds bucket credentials.
type Config struct {
	BucketSlug string
	ReadKey    string
	WriteKey   string
	Endpoint   string // empty selects DefaultEndpoint
}

// Client reads and writes bucket objects. It implements gallery.TagCatalog,
// gallery.RecordWriter and gallery.Browser.
type Client struct {
	cfg      Config
	client   *http.Client
	limiter  *rate.Limiter
	backoffs []time.Duration
}

// New creates a client for the bucket in cfg.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Client{
		cfg:      cfg,
		client:   httpclient.Default(),
		limiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 2),
		backoffs: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// Available returns true if a bucket is configured.
func (c *Client) Available() bool {
	return c.cfg.BucketSlug != ""
}

// object is a Cosmic object as returned by the API.
type object struct {
	ID        string          `json:"id"`
	Slug      string          `json:"slug"`
	Title     string          `json:"title"`
	Type      string          `json:"type"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt string          `json:"created_at"`
}

type findResponse struct {
	Objects []object `json:"objects"`
	Total   int      `json:"total"`
}

type tagMetadata struct {
	Name string `json:"name"`
}

type imageMetadata struct {
	ImageURL  string          `json:"image_url"`
	Prompt    string          `json:"prompt,omitempty"`
	Seed      *int64          `json:"seed,omitempty"`
	Status    string          `json:"status,omitempty"`
	Tags      json.RawMessage `json:"tags,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
}

type settingsMetadata struct {
	FeedURL            string `json:"feed_url"`
	ImagesPerPage      int    `json:"images_per_page"`
	FeedUpdateInterval int    `json:"feed_update_interval"`
	EnableAutoTagging  *bool  `json:"enable_auto_tagging"`
}

// ListTags fetches up to limit tags (id, slug, name).
func (c *Client) ListTags(ctx context.Context, limit int) ([]gallery.Tag, error) {
	objs, err := c.find(ctx, map[string]any{"type": "tags"}, "id,slug,metadata.name", limit, "")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	tags := make([]gallery.Tag, 0, len(objs))
	for _, o := range objs {
		var md tagMetadata
		if len(o.Metadata) > 0 {
			if err := json.Unmarshal(o.Metadata, &md); err != nil {
				return nil, fmt.Errorf("decode tag %s: %w", o.ID, err)
			}
		}
		tags = append(tags, gallery.Tag{ID: o.ID, Slug: o.Slug, Name: md.Name})
	}
	return tags, nil
}

// ListImages fetches image objects, newest first.
func (c *Client) ListImages(ctx context.Context, q gallery.ImageQuery) ([]gallery.Record, error) {
	query := map[string]any{"type": "images"}
	if q.Status != "" {
		query["metadata.status"] = string(q.Status)
	}
	objs, err := c.find(ctx, query, "id,slug,title,metadata", q.Limit, "-created_at")
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	recs := make([]gallery.Record, 0, len(objs))
	for _, o := range objs {
		rec, err := decodeImage(o)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// InsertRecord creates an image object.
func (c *Client) InsertRecord(ctx context.Context, rec gallery.Record) (gallery.Record, error) {
	tags := rec.TagIDs
	if tags == nil {
		tags = []string{}
	}
	tagJSON, err := json.Marshal(tags)
	if err != nil {
		return gallery.Record{}, fmt.Errorf("marshal tags: %w", err)
	}

	body := struct {
		Title    string        `json:"title"`
		Type     string        `json:"type"`
		Metadata imageMetadata `json:"metadata"`
	}{
		Title: rec.Title,
		Type:  "images",
		Metadata: imageMetadata{
			ImageURL:  rec.ImageURL,
			Prompt:    rec.Prompt,
			Seed:      rec.Seed,
			Status:    string(rec.Status),
			Tags:      tagJSON,
			CreatedAt: rec.CreatedAt,
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return gallery.Record{}, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.doWithRetry(ctx, http.MethodPost, c.objectsURL(nil), data, false)
	if err != nil {
		return gallery.Record{}, fmt.Errorf("insert image: %w", err)
	}

	var resp struct {
		Object object `json:"object"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return gallery.Record{}, fmt.Errorf("parse response: %w", err)
	}

	rec.ID = resp.Object.ID
	rec.Slug = resp.Object.Slug
	return rec, nil
}

// Settings fetches the first settings object. Missing settings yield the
// zero value.
func (c *Client) Settings(ctx context.Context) (gallery.Settings, error) {
	objs, err := c.find(ctx, map[string]any{"type": "settings"}, "metadata", 1, "")
	if err != nil {
		return gallery.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	if len(objs) == 0 {
		return gallery.Settings{}, nil
	}

	var md settingsMetadata
	if err := json.Unmarshal(objs[0].Metadata, &md); err != nil {
		return gallery.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return gallery.Settings{
		FeedURL:            md.FeedURL,
		ImagesPerPage:      md.ImagesPerPage,
		FeedUpdateInterval: md.FeedUpdateInterval,
		EnableAutoTagging:  md.EnableAutoTagging,
	}, nil
}

func decodeImage(o object) (gallery.Record, error) {
	var md imageMetadata
	if len(o.Metadata) > 0 {
		if err := json.Unmarshal(o.Metadata, &md); err != nil {
			return gallery.Record{}, fmt.Errorf("decode image %s: %w", o.ID, err)
		}
	}
	return gallery.Record{
		ID:        o.ID,
		Slug:      o.Slug,
		Title:     o.Title,
		ImageURL:  md.ImageURL,
		Prompt:    md.Prompt,
		Seed:      md.Seed,
		Status:    gallery.Status(md.Status),
		TagIDs:    decodeTagRefs(md.Tags),
		CreatedAt: md.CreatedAt,
	}, nil
}

// decodeTagRefs accepts tags as an ID list or as expanded objects.
func decodeTagRefs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err == nil {
		return ids
	}
	var objs []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil
	}
	for _, o := range objs {
		ids = append(ids, o.ID)
	}
	return ids
}

// find queries objects. The API answers 404 when nothing matches, which is
// reported as an empty result.
func (c *Client) find(ctx context.Context, query map[string]any, props string, limit int, sort string) ([]object, error) {
	q, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	params := url.Values{}
	params.Set("query", string(q))
	if props != "" {
		params.Set("props", props)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if sort != "" {
		params.Set("sort", sort)
	}
	if c.cfg.ReadKey != "" {
		params.Set("read_key", c.cfg.ReadKey)
	}

	body, err := c.doWithRetry(ctx, http.MethodGet, c.objectsURL(params), nil, true)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var resp findResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return resp.Objects, nil
}

func (c *Client) objectsURL(params url.Values) string {
	u := c.cfg.Endpoint + "/buckets/" + url.PathEscape(c.cfg.BucketSlug) + "/objects"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cosmic API error (status %d): %s", e.Status, e.Body)
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// doWithRetry executes a request with the client's backoff schedule.
// Idempotent requests retry on transport errors, HTTP 429 and 5xx.
// Others retry only on 429, which the server rejects before processing;
// any other failure may have created the object and is returned as is.
// Retry-After is honored on 429.
func (c *Client) doWithRetry(ctx context.Context, method, target string, body []byte, idempotent bool) ([]byte, error) {
	maxRetries := len(c.backoffs)
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, rd)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if method != http.MethodGet && c.cfg.WriteKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.WriteKey)
		}
		req.Header.Set("User-Agent", httpclient.UserAgent)

		delay := time.Duration(0)
		if attempt < maxRetries {
			delay = c.backoffs[attempt]
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if !idempotent {
				return nil, lastErr
			}
			if err := c.sleep(ctx, attempt, delay); err != nil {
				return nil, err
			}
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			if !idempotent {
				return nil, lastErr
			}
			if err := c.sleep(ctx, attempt, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		apiErr := &APIError{Status: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode == http.StatusTooManyRequests || (idempotent && resp.StatusCode >= 500) {
			lastErr = apiErr
			if resp.StatusCode == http.StatusTooManyRequests {
				if ra := resp.Header.Get("Retry-After"); ra != "" {
					if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
						delay = min(time.Duration(seconds)*time.Second, 30*time.Second)
					}
				}
			}
			if err := c.sleep(ctx, attempt, delay); err != nil {
				return nil, err
			}
			continue
		}

		// Non-retryable (4xx, or 5xx on a create).
		return nil, apiErr
	}

	return nil, fmt.Errorf("cosmic request failed after %d retries: %w", maxRetries, lastErr)
}

// sleep waits before the next attempt. No wait follows the last attempt.
func (c *Client) sleep(ctx context.Context, attempt int, d time.Duration) error {
	if attempt >= len(c.backoffs) {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
