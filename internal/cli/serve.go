package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/me/supertask/internal/config"
	"github.com/me/supertask/internal/engine"
	"github.com/me/supertask/internal/manifest"
	"github.com/me/supertask/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		addr         string
		manifestPath string
		watch        bool
		concurrency  int
		reclaim      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine behind the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Server.Addr = addr
			}
			if flags.Changed("manifest") {
				cfg.Manifest = manifestPath
			}
			if flags.Changed("watch") {
				cfg.Watch = watch
			}
			if flags.Changed("concurrency") {
				cfg.Engine.Concurrency = concurrency
			}
			if flags.Changed("reclaim") {
				cfg.Engine.Reclaim = reclaim
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Task manifest to load at startup")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-apply the manifest when it changes")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1000, "Jobs dispatched per tick")
	cmd.Flags().BoolVar(&reclaim, "reclaim", false, "Free a job's slot once the engine timeout elapses")
	return cmd
}

// serve runs the engine, the optional manifest watcher and the HTTP server
// until ctx is done. ready, if set, receives the bound address.
func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, ready func(addr string)) error {
	eng, err := engine.New(cfg.Engine, logger)
	if err != nil {
		return err
	}
	defer eng.Stop()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Manifest != "" {
		applier := manifest.NewApplier(eng, logger)
		if cfg.Watch {
			w, err := manifest.NewWatcher(cfg.Manifest, applier, logger)
			if err != nil {
				return fmt.Errorf("watch manifest: %w", err)
			}
			if err := w.Start(gctx); err != nil {
				return err
			}
			g.Go(func() error {
				<-gctx.Done()
				w.Stop()
				return nil
			})
		} else {
			m, err := manifest.Load(cfg.Manifest)
			if err != nil {
				return err
			}
			if _, err := applier.Apply(m); err != nil {
				logger.Warn("manifest applied with errors", "error", err)
			}
		}
	}

	httpServer := &http.Server{
		Handler:           server.New(cfg.Server, eng, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("server starting", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if ready != nil {
		ready(ln.Addr().String())
	}
	err = g.Wait()
	logger.Info("server stopped")
	return err
}
