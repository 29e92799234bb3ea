package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/trainr/formtrack/internal/camera"
	"github.com/trainr/formtrack/internal/config"
	"github.com/trainr/formtrack/internal/overlay"
	"github.com/trainr/formtrack/internal/server"
	"github.com/trainr/formtrack/internal/session"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the annotated camera feed over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.cfg)
		},
	}

	f := cmd.Flags()
	f.String("host", "", "listen host")
	f.Int("port", 0, "listen port")
	f.Int("max-sessions", 0, "maximum concurrent viewers, 0 for unlimited")
	f.String("mqtt-broker", "", "MQTT broker URL for rep events, empty disables")
	a.bind(f.Lookup("host"), config.KeyHost)
	a.bind(f.Lookup("port"), config.KeyPort)
	a.bind(f.Lookup("max-sessions"), config.KeyMaxSessions)
	a.bind(f.Lookup("mqtt-broker"), config.KeyMQTTBroker)

	return cmd
}

// runServe blocks until ctx is cancelled or the listener fails.
func runServe(ctx context.Context, cfg *config.Config) error {
	logger := slog.With("component", "serve")

	registry, err := newRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to load exercises: %w", err)
	}

	estimator, err := newEstimator(cfg)
	if err != nil {
		logger.Error("failed to load keypoint model", "path", cfg.Model.Path, "error", err)
		return err
	}
	defer estimator.Close()

	dev, err := newDevice(cfg)
	if err != nil {
		return fmt.Errorf("failed to create camera: %w", err)
	}
	source := camera.NewSource(dev, sourceConfig(cfg))

	events, eventStats, closeEvents, err := newEmitter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect mqtt: %w", err)
	}
	defer closeEvents()

	mgr := session.NewManager(session.Deps{
		Source:      source,
		Estimator:   estimator,
		Registry:    registry,
		Renderer:    overlay.New(overlay.DefaultOptions()),
		Emitter:     events,
		JPEGQuality: cfg.Stream.JPEGQuality,
		MaxFPS:      cfg.Stream.MaxFPS,
		MaxSessions: cfg.Server.MaxSessions,
	})

	var opts []server.Option
	if eventStats != nil {
		opts = append(opts, server.WithEventStats(eventStats))
	}
	opts = append(opts, server.WithModel(cfg.Model.Path))
	srv := server.New(cfg.Server.Addr(), mgr, source, opts...)

	logger.Info("starting formtrackd",
		"addr", cfg.Server.Addr(),
		"camera", dev.Name(),
		"model", cfg.Model.Path,
		"exercises", registry.IDs(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully", "timeout", cfg.ShutdownTimeout())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		return err
	}
	logger.Info("formtrackd stopped successfully")
	return nil
}
