package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/imageshelf/internal/httpclient"
)

// Client talks to a remote gallery Handler. It implements Saver and
// TagCatalog.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client for the gallery served at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpclient.Default(),
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
	}
}

// Create posts req to /api/save-image. A 400 response maps to
// ErrInvalidRequest.
func (c *Client) Create(ctx context.Context, req SaveRequest) (Record, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Record{}, fmt.Errorf("marshal request: %w", err)
	}

	var resp saveResponse
	if err := c.do(ctx, http.MethodPost, "/api/save-image", body, &resp); err != nil {
		return Record{}, err
	}
	if !resp.Success {
		return Record{}, fmt.Errorf("gallery: save not acknowledged")
	}
	return resp.Object, nil
}

// ListTags fetches the tag catalog, truncated to limit.
func (c *Client) ListTags(ctx context.Context, limit int) ([]Tag, error) {
	var resp struct {
		Tags []Tag `json:"tags"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &resp); err != nil {
		return nil, err
	}
	if limit > 0 && len(resp.Tags) > limit {
		resp.Tags = resp.Tags[:limit]
	}
	return resp.Tags, nil
}

// ListImages fetches stored images matching q.
func (c *Client) ListImages(ctx context.Context, q ImageQuery) ([]Record, error) {
	path := "/api/images?limit=" + strconv.Itoa(q.Limit)
	if q.Status != "" {
		path += "&status=" + string(q.Status)
	}
	var resp struct {
		Images []Record `json:"images"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Images, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gallery request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.Unmarshal(data, &e)
		if resp.StatusCode == http.StatusBadRequest {
			return fmt.Errorf("%w: %s", ErrInvalidRequest, e.Error)
		}
		return fmt.Errorf("gallery error (status %d): %s", resp.StatusCode, e.Error)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
