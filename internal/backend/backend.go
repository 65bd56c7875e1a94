// Package backend opens the gallery configured in config.Config. Both the
// TUI and the shelf CLI go through Open so a backend behaves the same in
// each binary.
package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abelbrown/imageshelf/internal/config"
	"github.com/abelbrown/imageshelf/internal/cosmic"
	"github.com/abelbrown/imageshelf/internal/gallery"
	"github.com/abelbrown/imageshelf/internal/logging"
	"github.com/abelbrown/imageshelf/internal/otel"
	"github.com/abelbrown/imageshelf/internal/store"
)

// Gallery is an opened backend.
type Gallery struct {
	Saver   gallery.Saver
	Browser gallery.Browser
	Store   *store.Store // nil unless the sqlite backend is configured

	close func()
}

// Close releases the backend.
func (g *Gallery) Close() {
	if g.close != nil {
		g.close()
	}
}

// Open builds the save and browse paths for cfg.Gallery.Backend. For the
// Cosmic backend the bucket's settings object is merged into cfg before
// the service is built, so a remote enable_auto_tagging takes effect. An
// unreachable settings object is logged and the local config is kept.
func Open(ctx context.Context, cfg *config.Config, events *otel.Logger) (*Gallery, error) {
	switch cfg.Gallery.Backend {
	case config.BackendCosmic:
		cc := NewCosmicClient(cfg)
		if settings, err := cc.Settings(ctx); err != nil {
			logging.Warn("Cosmic settings unavailable, using local config", "error", err)
		} else {
			cfg.ApplySettings(settings)
		}
		svc := gallery.NewService(cc, cc, events)
		svc.SetAutoTag(cfg.Gallery.AutoTag)
		return &Gallery{Saver: svc, Browser: cc}, nil

	case config.BackendRemote:
		c := gallery.NewClient(cfg.Gallery.URL)
		return &Gallery{Saver: c, Browser: c}, nil

	default:
		st, err := OpenStore(cfg)
		if err != nil {
			return nil, err
		}
		logging.Info("Store initialized", "path", cfg.DBPath())
		svc := gallery.NewService(st, st, events)
		svc.SetAutoTag(cfg.Gallery.AutoTag)
		return &Gallery{Saver: svc, Browser: st, Store: st, close: func() { st.Close() }}, nil
	}
}

// OpenStore opens the local SQLite gallery, creating its directory.
func OpenStore(cfg *config.Config) (*store.Store, error) {
	path := cfg.DBPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// NewCosmicClient builds a Cosmic client from the config credentials.
func NewCosmicClient(cfg *config.Config) *cosmic.Client {
	return cosmic.New(cosmic.Config{
		BucketSlug: cfg.Cosmic.BucketSlug,
		ReadKey:    cfg.Cosmic.ReadKey,
		WriteKey:   cfg.Cosmic.WriteKey,
		Endpoint:   cfg.Cosmic.Endpoint,
	})
}
