package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abelbrown/imageshelf/internal/backend"
	"github.com/abelbrown/imageshelf/internal/config"
	"github.com/abelbrown/imageshelf/internal/gallery"
	"github.com/abelbrown/imageshelf/internal/store"
)

// loadConfig reads the file named by --config and validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// requireStore opens the local store, rejecting configs whose gallery
// lives elsewhere.
func requireStore(cfg *config.Config, action string) (*store.Store, error) {
	if cfg.Gallery.Backend != config.BackendSQLite {
		return nil, fmt.Errorf("%s needs the sqlite backend, config uses %q", action, cfg.Gallery.Backend)
	}
	return backend.OpenStore(cfg)
}

// openBrowser returns a read view of the configured gallery and a close func.
func openBrowser(cfg *config.Config) (gallery.Browser, func(), error) {
	switch cfg.Gallery.Backend {
	case config.BackendCosmic:
		return backend.NewCosmicClient(cfg), func() {}, nil
	case config.BackendRemote:
		return gallery.NewClient(cfg.Gallery.URL), func() {}, nil
	default:
		st, err := backend.OpenStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	}
}

// printer handles table or JSON output.
type printer struct {
	format string
	w      io.Writer
}

func newPrinter(cmd *cobra.Command) *printer {
	format, _ := cmd.Flags().GetString("output")
	return &printer{format: format, w: cmd.OutOrStdout()}
}

func (p *printer) isJSON() bool {
	return p.format == "json"
}

// json marshals v as indented JSON.
func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes rows using tabwriter. header is the first row.
func (p *printer) table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	writeRow(tw, header)
	for _, row := range rows {
		writeRow(tw, row)
	}
	_ = tw.Flush()
}

func writeRow(w io.Writer, cols []string) {
	for i, col := range cols {
		if i > 0 {
			_, _ = fmt.Fprint(w, "\t")
		}
		_, _ = fmt.Fprint(w, col)
	}
	_, _ = fmt.Fprintln(w)
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
