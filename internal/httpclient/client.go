// Package httpclient provides the shared HTTP clients used by imageshelf.
//
// Callers MUST close response bodies, including on non-2xx status.
//
// Two clients share one pooled transport:
//
//	httpclient.Default()    30s timeout, for gallery and content-store calls
//	httpclient.Streaming()  no timeout, for the live SSE feed
//
// The streaming client relies on context cancellation to end a request;
// an overall timeout would cut a healthy feed connection.
package httpclient

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// UserAgent is sent on every outbound request.
const UserAgent = "imageshelf/0.1 (https://github.com/abelbrown/imageshelf)"

// DefaultTimeout bounds non-streaming requests.
const DefaultTimeout = 30 * time.Second

var (
	initOnce        sync.Once
	sharedTransport *http.Transport
	defaultClient   *http.Client
	streamingClient *http.Client
)

func initClients() {
	initOnce.Do(func() {
		sharedTransport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		}

		defaultClient = &http.Client{
			Transport: sharedTransport,
			Timeout:   DefaultTimeout,
		}

		// No Timeout: an SSE body stays open indefinitely.
		streamingClient = &http.Client{
			Transport: sharedTransport,
		}
	})
}

// Default returns the shared client with a 30-second timeout.
func Default() *http.Client {
	initClients()
	return defaultClient
}

// Streaming returns the shared client with no overall timeout.
func Streaming() *http.Client {
	initClients()
	return streamingClient
}
