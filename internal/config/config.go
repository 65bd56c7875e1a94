// Package config loads the persistent application configuration from
// ~/.imageshelf/config.json (or a YAML file), environment variables and the
// remote settings object.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abelbrown/imageshelf/internal/feed"
	"github.com/abelbrown/imageshelf/internal/gallery"
)

// DefaultFeedURL is the public image feed.
const DefaultFeedURL = "https://image.pollinations.ai/feed"

// Gallery backends.
const (
	BackendSQLite = "sqlite"
	BackendCosmic = "cosmic"
	BackendRemote = "remote"
)

// Config is the persistent application configuration
type Config struct {
	Feed    FeedConfig    `json:"feed" yaml:"feed"`
	Gallery GalleryConfig `json:"gallery" yaml:"gallery"`
	Cosmic  CosmicConfig  `json:"cosmic" yaml:"cosmic"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	UI      UIConfig      `json:"ui" yaml:"ui"`
}

// FeedConfig holds live feed settings
type FeedConfig struct {
	URL              string `json:"url" yaml:"url"`
	Capacity         int    `json:"capacity" yaml:"capacity"`
	ReconnectDelayMs int    `json:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
	InitialState     string `json:"initial_state" yaml:"initial_state"` // "playing" or "paused"
}

// GalleryConfig selects where saved images go
type GalleryConfig struct {
	Backend       string `json:"backend" yaml:"backend"` // "sqlite", "cosmic" or "remote"
	DBPath        string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	URL           string `json:"url,omitempty" yaml:"url,omitempty"` // remote gallery base URL
	AutoTag       bool   `json:"auto_tag" yaml:"auto_tag"`
	SaveTimeoutMs int    `json:"save_timeout_ms" yaml:"save_timeout_ms"`
}

// CosmicConfig holds Cosmic bucket credentials
type CosmicConfig struct {
	BucketSlug string `json:"bucket_slug,omitempty" yaml:"bucket_slug,omitempty"`
	ReadKey    string `json:"read_key,omitempty" yaml:"read_key,omitempty"`
	WriteKey   string `json:"write_key,omitempty" yaml:"write_key,omitempty"`
	Endpoint   string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// ServerConfig holds `shelf serve` settings
type ServerConfig struct {
	Addr           string  `json:"addr" yaml:"addr"`
	SaveRatePerSec float64 `json:"save_rate_per_sec" yaml:"save_rate_per_sec"`
	SaveBurst      int     `json:"save_burst" yaml:"save_burst"`
}

// UIConfig holds UI preferences
type UIConfig struct {
	ShowParams bool `json:"show_params" yaml:"show_params"` // model/size column in the feed list
	PageSize   int  `json:"page_size" yaml:"page_size"`     // rows listed by `shelf images list`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			URL:              DefaultFeedURL,
			Capacity:         feed.DefaultCapacity,
			ReconnectDelayMs: int(feed.DefaultReconnectDelay / time.Millisecond),
			InitialState:     "playing",
		},
		Gallery: GalleryConfig{
			Backend:       BackendSQLite,
			AutoTag:       true,
			SaveTimeoutMs: 30000,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:3000",
			SaveRatePerSec: 2,
			SaveBurst:      5,
		},
		UI: UIConfig{
			ShowParams: true,
			PageSize:   20,
		},
	}
}

// DataDir returns ~/.imageshelf, where the database, config and logs live.
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".imageshelf")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// DBPath returns the configured SQLite path, defaulting into DataDir.
func (c *Config) DBPath() string {
	if c.Gallery.DBPath != "" {
		return c.Gallery.DBPath
	}
	return filepath.Join(DataDir(), "imageshelf.db")
}

// Load reads config from path (ConfigPath when empty). Files ending in .yaml
// or .yml are parsed as YAML, everything else as JSON. A missing file yields
// the defaults. Fields absent from the file keep their defaults, and
// environment variables override both.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	case isYAML(path):
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}

	cfg.AutoPopulateFromEnv()
	return cfg, nil
}

// Save writes config to path (ConfigPath when empty) in the format its
// extension selects.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // Restrictive permissions for API keys
}

// AutoPopulateFromEnv fills in credentials and URLs from environment variables
func (c *Config) AutoPopulateFromEnv() {
	if v := os.Getenv("IMAGESHELF_FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("COSMIC_BUCKET_SLUG"); v != "" {
		c.Cosmic.BucketSlug = v
		c.Gallery.Backend = BackendCosmic
	}
	if v := os.Getenv("COSMIC_READ_KEY"); v != "" {
		c.Cosmic.ReadKey = v
	}
	if v := os.Getenv("COSMIC_WRITE_KEY"); v != "" {
		c.Cosmic.WriteKey = v
	}
	if v := os.Getenv("IMAGESHELF_GALLERY_URL"); v != "" {
		c.Gallery.URL = v
		c.Gallery.Backend = BackendRemote
	}
}

// ApplySettings merges the remote settings object. Only fields the
// settings actually carry are applied.
func (c *Config) ApplySettings(s gallery.Settings) {
	if s.FeedURL != "" {
		c.Feed.URL = s.FeedURL
	}
	if s.FeedUpdateInterval > 0 {
		c.Feed.ReconnectDelayMs = s.FeedUpdateInterval * 1000
	}
	if s.ImagesPerPage > 0 {
		c.UI.PageSize = s.ImagesPerPage
	}
	if s.EnableAutoTagging != nil {
		c.Gallery.AutoTag = *s.EnableAutoTagging
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if !strings.HasPrefix(c.Feed.URL, "http://") && !strings.HasPrefix(c.Feed.URL, "https://") {
		return fmt.Errorf("feed.url %q must be http or https", c.Feed.URL)
	}
	if c.Feed.Capacity < 0 {
		return fmt.Errorf("feed.capacity must not be negative, got %d", c.Feed.Capacity)
	}
	if c.Feed.ReconnectDelayMs < 0 {
		return fmt.Errorf("feed.reconnect_delay_ms must not be negative, got %d", c.Feed.ReconnectDelayMs)
	}
	if _, err := feed.ParsePlayState(c.Feed.InitialState); err != nil {
		return fmt.Errorf("feed.initial_state: %w", err)
	}

	switch c.Gallery.Backend {
	case BackendSQLite:
	case BackendCosmic:
		if c.Cosmic.BucketSlug == "" {
			return errors.New("cosmic backend requires cosmic.bucket_slug")
		}
	case BackendRemote:
		if c.Gallery.URL == "" {
			return errors.New("remote backend requires gallery.url")
		}
	default:
		return fmt.Errorf("unknown gallery.backend %q", c.Gallery.Backend)
	}
	return nil
}

// FeedOptions converts the feed section for feed.New.
func (c *Config) FeedOptions() (feed.Options, error) {
	state, err := feed.ParsePlayState(c.Feed.InitialState)
	if err != nil {
		return feed.Options{}, err
	}
	return feed.Options{
		URL:            c.Feed.URL,
		Capacity:       c.Feed.Capacity,
		ReconnectDelay: time.Duration(c.Feed.ReconnectDelayMs) * time.Millisecond,
		InitialState:   state,
	}, nil
}

// SaveTimeout returns the per-save deadline.
func (c *Config) SaveTimeout() time.Duration {
	return time.Duration(c.Gallery.SaveTimeoutMs) * time.Millisecond
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
