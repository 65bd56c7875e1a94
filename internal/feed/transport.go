package feed

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/abelbrown/imageshelf/internal/httpclient"
)

// Transport opens a server-push stream. Implementations must abort the
// returned body when ctx is cancelled.
type Transport interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPTransport opens SSE streams over HTTP(S).
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport using client, or the shared
// streaming client when client is nil.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = httpclient.Streaming()
	}
	return &HTTPTransport{client: client}
}

// Open issues the GET and returns the event-stream body.
// Non-200 responses and non-SSE content types are errors.
func (t *HTTPTransport) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", httpclient.UserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("open feed: unexpected status %d", resp.StatusCode)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("open feed: unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	return resp.Body, nil
}
