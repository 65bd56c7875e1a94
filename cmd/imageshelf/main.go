// Command imageshelf shows the live image feed in the terminal and saves
// selected images to the gallery.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/abelbrown/imageshelf/internal/backend"
	"github.com/abelbrown/imageshelf/internal/config"
	"github.com/abelbrown/imageshelf/internal/coord"
	"github.com/abelbrown/imageshelf/internal/curate"
	"github.com/abelbrown/imageshelf/internal/feed"
	"github.com/abelbrown/imageshelf/internal/logging"
	"github.com/abelbrown/imageshelf/internal/otel"
	"github.com/abelbrown/imageshelf/internal/ui"
)

func main() {
	var (
		cfgPath string
		feedURL string
		paused  bool
		verbose bool
	)

	root := &cobra.Command{
		Use:           "imageshelf",
		Short:         "Watch the live image feed and save the ones worth keeping",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if feedURL != "" {
				cfg.Feed.URL = feedURL
			}
			if paused {
				cfg.Feed.InitialState = feed.Paused.String()
			}
			level := log.InfoLevel
			if verbose {
				level = log.DebugLevel
			}
			return run(cmd.Context(), cfg, level)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default ~/.imageshelf/config.json)")
	root.Flags().StringVar(&feedURL, "feed", "", "feed URL override")
	root.Flags().BoolVar(&paused, "paused", false, "start with playback paused")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug-level operational log")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "imageshelf: %v\n", err)
		os.Exit(1)
	}
}

func run(parent context.Context, cfg *config.Config, level log.Level) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Initialize logging
	if err := logging.Init(dataDir, level); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	defer logging.Close()

	events, err := otel.OpenFileLogger(filepath.Join(dataDir, "imageshelf.events.jsonl"))
	if err != nil {
		logging.Warn("Event log unavailable", "error", err)
		events = otel.NewNullLogger()
	}
	defer events.Close()
	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	events.SetRingBuffer(ring)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	gal, err := backend.Open(ctx, cfg, events)
	if err != nil {
		return err
	}
	defer gal.Close()

	// Remote settings may have replaced feed values.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	opts, err := cfg.FeedOptions()
	if err != nil {
		return err
	}

	pipeline := feed.New(opts, nil, nil, events)
	dispatcher := curate.NewDispatcher(gal.Saver, cfg.SaveTimeout(), events)
	coordinator := coord.NewCoordinator(pipeline, dispatcher)

	app := ui.NewApp(coordinator.RefreshCmd, coordinator.ToggleCmd, coordinator.ClearCmd, coordinator.SaveCmd).
		WithRing(ring).
		WithParams(cfg.UI.ShowParams)

	events.Info(otel.KindStartup, "main", "imageshelf starting")
	logging.Info("imageshelf starting", "feed", opts.URL, "backend", cfg.Gallery.Backend, "state", opts.InitialState)

	program := tea.NewProgram(app, tea.WithAltScreen())
	coordinator.Start(ctx, program)

	// Run UI (blocks until quit)
	_, runErr := program.Run()
	if runErr != nil {
		logging.Error("Application error", "error", runErr)
	}

	// Graceful shutdown
	cancel()
	coordinator.Wait()
	events.Info(otel.KindShutdown, "main", "imageshelf exiting")
	logging.Info("imageshelf exiting")
	return runErr
}
