package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/abelbrown/imageshelf/internal/backend"
	"github.com/abelbrown/imageshelf/internal/config"
	"github.com/abelbrown/imageshelf/internal/gallery"
	"github.com/abelbrown/imageshelf/internal/logging"
	"github.com/abelbrown/imageshelf/internal/otel"
)

const (
	shutdownTimeout   = 5 * time.Second
	limiterSweepEvery = time.Minute
	limiterStaleAfter = 10 * time.Minute
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the gallery HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			level := log.InfoLevel
			if v, _ := cmd.Flags().GetBool("verbose"); v {
				level = log.DebugLevel
			}
			logging.InitWriter(os.Stderr, level)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config, 127.0.0.1:3000)")
	cmd.Flags().BoolP("verbose", "v", false, "log every request")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.WithPrefix("serve")

	events, err := otel.OpenFileLogger(filepath.Join(config.DataDir(), "imageshelf.events.jsonl"))
	if err != nil {
		logger.Warn("Event log unavailable", "error", err)
		events = otel.NewNullLogger()
	}
	defer events.Close()

	gal, err := openServeBackend(ctx, cfg, events)
	if err != nil {
		return err
	}
	defer gal.Close()

	limiter := gallery.NewRateLimiter(rate.Limit(cfg.Server.SaveRatePerSec), cfg.Server.SaveBurst)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newServeHandler(gal.Saver, gal.Browser, limiter, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	var wg sync.WaitGroup
	limiter.StartCleanup(gctx, &wg, limiterSweepEvery, limiterStaleAfter)

	g.Go(func() error {
		logger.Info("Listening", "addr", cfg.Server.Addr, "backend", cfg.Gallery.Backend)
		events.Info(otel.KindStartup, "serve", "listening on "+cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	wg.Wait()
	events.Info(otel.KindShutdown, "serve", "stopped")
	logger.Info("Stopped")
	return err
}

// openServeBackend opens the configured gallery for serving. The remote
// backend is a client of this server, so it cannot serve.
func openServeBackend(ctx context.Context, cfg *config.Config, events *otel.Logger) (*backend.Gallery, error) {
	if cfg.Gallery.Backend == config.BackendRemote {
		return nil, errors.New("serve needs the sqlite or cosmic backend")
	}
	return backend.Open(ctx, cfg, events)
}

// newServeHandler stacks rate limiting and request logging on the API.
func newServeHandler(saver gallery.Saver, browser gallery.Browser, limiter *gallery.RateLimiter, logger *log.Logger) http.Handler {
	return limiter.Middleware(logRequests(logger, gallery.NewHandler(saver, browser)))
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("Request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "dur", time.Since(start))
	})
}
