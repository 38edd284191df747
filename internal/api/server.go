// Package api is the HTTP surface of modidock: a small JSON API over the
// broker and engine controller, plus the embedded web UI.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zpdzap/modidock/internal/engine"
	"github.com/zpdzap/modidock/internal/registry"
)

const (
	DefaultMaxBody = 4 << 20

	statusTimeout   = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Catalog lists the managed containers.
type Catalog interface {
	Entries() []registry.ContainerEntry
}

// Files reads and writes allowlisted files.
type Files interface {
	Read(ctx context.Context, containerID, rel string) ([]byte, error)
	Write(ctx context.Context, containerID, rel string, contents []byte) error
}

// Containers restarts containers and reports their engine state.
type Containers interface {
	Restart(ctx context.Context, containerID string) error
	Status(ctx context.Context, containerID string) engine.Status
}

type Server struct {
	catalog    Catalog
	files      Files
	containers Containers
	maxBody    int64
	log        *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMaxBody caps the size of JSON request bodies.
func WithMaxBody(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

func New(catalog Catalog, files Files, containers Containers, opts ...Option) *Server {
	s := &Server{
		catalog:    catalog,
		files:      files,
		containers: containers,
		maxBody:    DefaultMaxBody,
		log:        slog.With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the full route table, instrumented and access-logged.
func (s *Server) Handler() http.Handler {
	routes := []struct {
		method, path string
		handle       http.HandlerFunc
	}{
		{http.MethodGet, "/api/containers", s.handleContainers},
		{http.MethodGet, "/api/file", s.handleReadFile},
		{http.MethodPost, "/api/file", s.handleWriteFile},
		{http.MethodPost, "/api/restart", s.handleRestart},
	}

	mux := http.NewServeMux()
	allowed := make(map[string][]string)
	for _, rt := range routes {
		mux.HandleFunc(rt.method+" "+rt.path, rt.handle)
		allowed[rt.path] = append(allowed[rt.path], rt.method)
	}
	mux.Handle("/api/", s.noRoute(allowed))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("/", staticHandler())

	return otelhttp.NewHandler(s.logRequests(mux), "modidock.http")
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		level := slog.LevelInfo
		if r.URL.Path == "/healthz" {
			level = slog.LevelDebug
		}
		s.log.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("shutdown", "err", err)
		}
	}()

	s.log.Info("listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	<-done
	return nil
}
