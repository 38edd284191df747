package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zpdzap/modidock/internal/api"
	"github.com/zpdzap/modidock/internal/broker"
	"github.com/zpdzap/modidock/internal/engine"
	"github.com/zpdzap/modidock/internal/registry"
	"github.com/zpdzap/modidock/internal/telemetry"
)

const engineProbeTimeout = 5 * time.Second

type serveOptions struct {
	addr           string
	restartTimeout time.Duration
	stopTimeout    time.Duration
	maxBody        int64
	otlpEndpoint   string
}

func serveCmd(g *globals) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g.configPath, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", defaultAddr(), "Listen address")
	cmd.Flags().DurationVar(&opts.restartTimeout, "restart-timeout", envDuration("MODIDOCK_RESTART_TIMEOUT", engine.DefaultRestartTimeout), "Upper bound on one container restart")
	cmd.Flags().DurationVar(&opts.stopTimeout, "stop-timeout", envDuration("MODIDOCK_STOP_TIMEOUT", engine.DefaultStopTimeout), "Grace period before the engine kills a restarting container")
	cmd.Flags().Int64Var(&opts.maxBody, "max-body", envInt64("MODIDOCK_MAX_BODY", api.DefaultMaxBody), "Maximum request body in bytes")
	cmd.Flags().StringVar(&opts.otlpEndpoint, "otlp-endpoint", envOr("MODIDOCK_OTLP_ENDPOINT", ""), "OTLP/HTTP trace endpoint URL (tracing is off when empty)")
	return cmd
}

func runServe(ctx context.Context, configPath string, opts serveOptions) error {
	store, err := registry.NewStore(configPath)
	if err != nil {
		return err
	}
	slog.Info("registry loaded", "path", store.Path(), "containers", store.Current().Len())

	shutdownTracing, err := telemetry.Setup(ctx, opts.otlpEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("flush traces", "err", err)
		}
	}()

	cli, err := engine.NewClient()
	if err != nil {
		return err
	}
	defer cli.Close()

	ctrl := engine.New(cli, store,
		engine.WithRestartTimeout(opts.restartTimeout),
		engine.WithStopTimeout(opts.stopTimeout),
	)
	probeCtx, cancel := context.WithTimeout(ctx, engineProbeTimeout)
	if err := ctrl.WaitReady(probeCtx); err != nil {
		slog.Warn("container engine not reachable yet; restarts will fail until it is", "err", err)
	}
	cancel()

	srv := api.New(store, broker.New(store), ctrl, api.WithMaxBody(opts.maxBody))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, opts.addr)
	})
	g.Go(func() error {
		reloadOnHangup(ctx, store)
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}
	slog.Info("stopped")
	return nil
}

// reloadOnHangup reloads the registry on every SIGHUP until ctx ends. A bad
// document is logged and the previous registry stays in service.
func reloadOnHangup(ctx context.Context, store *registry.Store) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := store.Reload(); err != nil {
				slog.Error("reload failed, keeping previous registry", "err", err)
			}
		}
	}
}
