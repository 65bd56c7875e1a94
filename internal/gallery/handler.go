package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

// maxRequestBody caps save request bodies.
const maxRequestBody = 1 << 20

// Saver creates records from save requests. *Service implements it.
type Saver interface {
	Create(ctx context.Context, req SaveRequest) (Record, error)
}

// Browser lists stored images and tags.
type Browser interface {
	TagCatalog
	ListImages(ctx context.Context, q ImageQuery) ([]Record, error)
}

// Handler serves the gallery HTTP API:
//
//	POST /api/save-image  create a record from {imageURL, prompt, seed}
//	GET  /api/images      list records (?status=Active&limit=20)
//	GET  /api/tags        list the tag catalog
type Handler struct {
	saver   Saver
	browser Browser
	mux     *http.ServeMux
}

// NewHandler creates the API handler.
func NewHandler(saver Saver, browser Browser) *Handler {
	h := &Handler{saver: saver, browser: browser, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /api/save-image", h.handleSave)
	h.mux.HandleFunc("GET /api/images", h.handleImages)
	h.mux.HandleFunc("GET /api/tags", h.handleTags)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type saveResponse struct {
	Success bool   `json:"success"`
	Object  Record `json:"object"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid image data")
		return
	}

	rec, err := h.saver.Create(r.Context(), req)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "Invalid image data")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to save image")
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{Success: true, Object: rec})
}

func (h *Handler) handleImages(w http.ResponseWriter, r *http.Request) {
	var q ImageQuery
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := ParseStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.Status = st
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}

	images, err := h.browser.ListImages(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list images")
		return
	}
	if images == nil {
		images = []Record{}
	}
	writeJSON(w, http.StatusOK, map[string][]Record{"images": images})
}

func (h *Handler) handleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.browser.ListTags(r.Context(), TagLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tags")
		return
	}
	if tags == nil {
		tags = []Tag{}
	}
	writeJSON(w, http.StatusOK, map[string][]Tag{"tags": tags})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
