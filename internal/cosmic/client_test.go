package cosmic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/imageshelf/internal/gallery"
)

// Verify Client satisfies the gallery collaborator interfaces at compile time.
var (
	_ gallery.TagCatalog   = (*Client)(nil)
	_ gallery.RecordWriter = (*Client)(nil)
	_ gallery.Browser      = (*Client)(nil)
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := New(Config{BucketSlug: "shelf", ReadKey: "rk", WriteKey: "wk", Endpoint: srv.URL})
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	c.backoffs = []time.Duration{time.Millisecond, time.Millisecond}
	return c
}

func TestClientAvailable(t *testing.T) {
	if !New(Config{BucketSlug: "b"}).Available() {
		t.Error("Available() = false with bucket set")
	}
	if New(Config{}).Available() {
		t.Error("Available() = true without bucket")
	}
}

func TestListTags(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/buckets/shelf/objects" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("query") != `{"type":"tags"}` {
			t.Errorf("query = %s", q.Get("query"))
		}
		if q.Get("props") != "id,slug,metadata.name" || q.Get("limit") != "100" || q.Get("read_key") != "rk" {
			t.Errorf("params = %v", q)
		}
		w.Write([]byte(`{"objects":[
			{"id":"t1","slug":"cat","metadata":{"name":"cat"}},
			{"id":"t2","slug":"dog","metadata":{"name":"Dog"}}
		],"total":2}`))
	})

	tags, err := c.ListTags(context.Background(), gallery.TagLimit)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 2 || tags[1] != (gallery.Tag{ID: "t2", Slug: "dog", Name: "Dog"}) {
		t.Errorf("tags = %+v", tags)
	}
}

func TestListTagsNotFoundIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"No objects found"}`, http.StatusNotFound)
	})

	tags, err := c.ListTags(context.Background(), gallery.TagLimit)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("tags = %v, want none", tags)
	}
}

func TestInsertRecord(t *testing.T) {
	type insertBody struct {
		Title    string        `json:"title"`
		Type     string        `json:"type"`
		Metadata imageMetadata `json:"metadata"`
	}
	bodies := make(chan insertBody, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer wk" {
			t.Errorf("Authorization = %q", auth)
		}
		var b insertBody
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			t.Errorf("decode: %v", err)
		}
		bodies <- b
		w.Write([]byte(`{"object":{"id":"obj-1","slug":"a-cat","title":"a cat"}}`))
	})

	seed := int64(7)
	rec, err := c.InsertRecord(context.Background(), gallery.Record{
		Title:     "a cat",
		ImageURL:  "https://img/1.jpg",
		Prompt:    "a cat",
		Seed:      &seed,
		Status:    gallery.StatusActive,
		TagIDs:    []string{"t1"},
		CreatedAt: "2025-03-09",
	})
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if rec.ID != "obj-1" || rec.Slug != "a-cat" {
		t.Errorf("record = %+v", rec)
	}

	got := <-bodies
	if got.Type != "images" || got.Title != "a cat" {
		t.Errorf("body = %+v", got)
	}
	md := got.Metadata
	if md.ImageURL != "https://img/1.jpg" || md.Status != "Active" || md.CreatedAt != "2025-03-09" || md.Seed == nil || *md.Seed != 7 {
		t.Errorf("metadata = %+v", md)
	}
	if string(md.Tags) != `["t1"]` {
		t.Errorf("tags = %s", md.Tags)
	}
}

func TestInsertRecordEmptyTags(t *testing.T) {
	bodies := make(chan map[string]map[string]any, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]map[string]any
		json.NewDecoder(r.Body).Decode(&raw)
		bodies <- raw
		w.Write([]byte(`{"object":{"id":"x"}}`))
	})

	if _, err := c.InsertRecord(context.Background(), gallery.Record{ImageURL: "u", Prompt: "p"}); err != nil {
		t.Fatal(err)
	}
	raw := <-bodies
	tags, ok := raw["metadata"]["tags"].([]any)
	if !ok || len(tags) != 0 {
		t.Errorf("tags = %#v, want empty array", raw["metadata"]["tags"])
	}
}

func TestListImages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !strings.Contains(q.Get("query"), `"metadata.status":"Featured"`) {
			t.Errorf("query = %s", q.Get("query"))
		}
		if q.Get("sort") != "-created_at" {
			t.Errorf("sort = %s", q.Get("sort"))
		}
		w.Write([]byte(`{"objects":[{"id":"i1","slug":"s","title":"T","metadata":{
			"image_url":"u","prompt":"p","seed":3,"status":"Featured",
			"tags":[{"id":"t1","title":"cat"}],"created_at":"2025-01-02"}}]}`))
	})

	recs, err := c.ListImages(context.Background(), gallery.ImageQuery{Status: gallery.StatusFeatured, Limit: 10})
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d", len(recs))
	}
	r := recs[0]
	if r.ImageURL != "u" || r.Status != gallery.StatusFeatured || r.Seed == nil || *r.Seed != 3 {
		t.Errorf("record = %+v", r)
	}
	if len(r.TagIDs) != 1 || r.TagIDs[0] != "t1" {
		t.Errorf("TagIDs = %v", r.TagIDs)
	}
}

func TestSettings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"objects":[{"id":"s","metadata":{
			"feed_url":"https://feed.example/imageFeed","images_per_page":24,
			"feed_update_interval":3,"enable_auto_tagging":false}}]}`))
	})

	s, err := c.Settings(context.Background())
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if s.FeedURL != "https://feed.example/imageFeed" || s.ImagesPerPage != 24 || s.FeedUpdateInterval != 3 {
		t.Errorf("settings = %+v", s)
	}
	if s.EnableAutoTagging == nil || *s.EnableAutoTagging {
		t.Errorf("EnableAutoTagging = %v, want false", s.EnableAutoTagging)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"objects":[]}`))
	})

	if _, err := c.ListTags(context.Background(), 10); err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestInsertRecordNoRetryOnServerError(t *testing.T) {
	var posts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if posts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"object":{"id":"img-1","slug":"a-cat"}}`))
	})

	_, err := c.InsertRecord(context.Background(), gallery.Record{ImageURL: "u", Prompt: "a cat"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Errorf("err = %v, want 502 APIError", err)
	}
	if n := posts.Load(); n != 1 {
		t.Errorf("posts = %d, want 1", n)
	}
}

func TestInsertRecordNoRetryOnTransportError(t *testing.T) {
	var posts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer cannot hijack")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		conn.Close()
	})

	if _, err := c.InsertRecord(context.Background(), gallery.Record{ImageURL: "u", Prompt: "a cat"}); err == nil {
		t.Fatal("expected error")
	}
	if n := posts.Load(); n != 1 {
		t.Errorf("posts = %d, want 1", n)
	}
}

func TestInsertRecordRetriesOnTooManyRequests(t *testing.T) {
	var posts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if posts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"object":{"id":"img-1","slug":"a-cat"}}`))
	})

	rec, err := c.InsertRecord(context.Background(), gallery.Record{ImageURL: "u", Prompt: "a cat"})
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if rec.ID != "img-1" {
		t.Errorf("ID = %q, want img-1", rec.ID)
	}
	if n := posts.Load(); n != 2 {
		t.Errorf("posts = %d, want 2", n)
	}
}

func TestRetriesWaitOnLimiter(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"objects":[]}`))
	})
	c.limiter = rate.NewLimiter(rate.Every(50*time.Millisecond), 1)

	start := time.Now()
	if _, err := c.ListTags(context.Background(), 10); err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	// Three attempts with one token up front: two limiter waits.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("elapsed = %v, retries bypassed the limiter", elapsed)
	}
}

func TestRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.ListTags(context.Background(), 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Errorf("err = %v, want wrapped 503 APIError", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", n)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	if _, err := c.InsertRecord(context.Background(), gallery.Record{ImageURL: "u"}); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c.backoffs = []time.Duration{time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.ListTags(ctx, 10); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
