// Package engine restarts and inspects registered containers through the
// Docker Engine API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zpdzap/modidock/internal/registry"
)

// ErrRuntime wraps any failure reported by the container engine, including a
// restart that ran past its timeout.
var ErrRuntime = errors.New("container runtime error")

const (
	DefaultRestartTimeout = 60 * time.Second
	DefaultStopTimeout    = 10 * time.Second
)

// API is the part of the Docker client the controller uses.
type API interface {
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	Ping(ctx context.Context) (types.Ping, error)
}

var _ API = (*client.Client)(nil)

// Source looks up containers. *registry.Store satisfies it.
type Source interface {
	Lookup(id string) (registry.ContainerEntry, bool)
}

// Controller issues engine calls for registry-known containers only.
type Controller struct {
	api            API
	source         Source
	restartTimeout time.Duration
	stopTimeout    time.Duration
	tracer         trace.Tracer
}

// Option configures a Controller.
type Option func(*Controller)

// WithRestartTimeout bounds each restart call. Expiry surfaces as ErrRuntime.
func WithRestartTimeout(d time.Duration) Option {
	return func(c *Controller) { c.restartTimeout = d }
}

// WithStopTimeout is the grace period the engine gives the container before
// killing it.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Controller) { c.stopTimeout = d }
}

// WithTracer overrides the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// New creates a controller around an engine API client.
func New(api API, source Source, opts ...Option) *Controller {
	c := &Controller{
		api:            api,
		source:         source,
		restartTimeout: DefaultRestartTimeout,
		stopTimeout:    DefaultStopTimeout,
		tracer:         otel.Tracer("github.com/zpdzap/modidock/internal/engine"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClient creates a Docker client from the environment (DOCKER_HOST etc.).
func NewClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return cli, nil
}

// Restart restarts a registered container.
//
// Errors: registry.ErrUnknownContainer, ErrRuntime.
func (c *Controller) Restart(ctx context.Context, containerID string) (err error) {
	if _, ok := c.source.Lookup(containerID); !ok {
		return fmt.Errorf("%w %q", registry.ErrUnknownContainer, containerID)
	}

	ctx, span := c.tracer.Start(ctx, "engine.restart", trace.WithAttributes(
		attribute.String("modidock.container", containerID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.restartTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.restartTimeout)
		defer cancel()
	}

	stopSecs := int(c.stopTimeout / time.Second)
	log := slog.With("component", "engine", "container", containerID)
	start := time.Now()
	if err := c.api.ContainerRestart(ctx, containerID, container.StopOptions{Timeout: &stopSecs}); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		log.Warn("restart failed", "err", err, "elapsed", time.Since(start))
		return fmt.Errorf("%w: restart %s: %w", ErrRuntime, containerID, err)
	}
	log.Info("container restarted", "elapsed", time.Since(start))
	return nil
}

// Status reports the engine-side state of a registered container. It is
// best-effort: engine failures come back as StatusUnknown.
func (c *Controller) Status(ctx context.Context, containerID string) Status {
	if _, ok := c.source.Lookup(containerID); !ok {
		return StatusUnknown
	}
	info, err := c.api.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return StatusMissing
		}
		slog.Debug("inspect failed", "component", "engine", "container", containerID, "err", err)
		return StatusUnknown
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return StatusUnknown
	}
	return dockerToStatus(string(info.State.Status))
}

// WaitReady pings the engine once a second until it answers. It returns early
// on a non-connection error or when ctx ends.
func (c *Controller) WaitReady(ctx context.Context) error {
	log := slog.With("component", "engine")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	waiting := false
	for {
		_, err := c.api.Ping(ctx)
		if err == nil {
			if waiting {
				log.Debug("daemon reachable")
			}
			return nil
		}
		if !client.IsErrConnectionFailed(err) {
			return fmt.Errorf("%w: connect to docker daemon: %w", ErrRuntime, err)
		}
		if !waiting {
			waiting = true
			log.Debug("waiting for docker daemon")
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: docker daemon unreachable: %w", ErrRuntime, ctx.Err())
		case <-ticker.C:
		}
	}
}
