// Package broker performs guarded reads and backed-up writes of allowlisted
// container files.
//
// Every request goes through the registry and pathguard before any I/O. A
// write copies the current file to a timestamped sibling backup, then replaces
// the original atomically. Writes to the same resolved file are serialized;
// writes to different files and all reads proceed without coordination.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/sys/atomicwriter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zpdzap/modidock/internal/pathguard"
	"github.com/zpdzap/modidock/internal/registry"
)

// ErrIO wraps a filesystem failure on a path that passed every check.
var ErrIO = errors.New("file i/o failed")

const (
	// backupStamp sorts lexically in time order.
	backupStamp       = "20060102T150405.000000000Z"
	maxBackupAttempts = 100
)

// Source looks up containers. *registry.Store and *registry.Registry satisfy it.
type Source interface {
	Lookup(id string) (registry.ContainerEntry, bool)
}

// Broker is safe for concurrent use.
type Broker struct {
	source Source
	locks  *pathLocks
	now    func() time.Time
	tracer trace.Tracer
	log    *slog.Logger
}

// Option configures a Broker.
type Option func(*Broker)

// WithClock overrides the clock used to name backups.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// WithTracer overrides the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(b *Broker) { b.tracer = t }
}

// New creates a broker over source.
func New(source Source, opts ...Option) *Broker {
	b := &Broker{
		source: source,
		locks:  newPathLocks(),
		now:    time.Now,
		tracer: otel.Tracer("github.com/zpdzap/modidock/internal/broker"),
		log:    slog.With("component", "broker"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Read returns the contents of an allowlisted file.
//
// Errors: registry.ErrUnknownContainer, pathguard.ErrForbidden, ErrIO.
func (b *Broker) Read(ctx context.Context, containerID, rel string) (_ []byte, err error) {
	_, span := b.startSpan(ctx, "broker.read", containerID, rel)
	defer func() { endSpan(span, err) }()

	res, err := b.resolve(containerID, rel)
	if err != nil {
		return nil, err
	}
	if _, err := regularFile(res.AbsolutePath); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, rel, err)
	}
	data, err := os.ReadFile(res.AbsolutePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, rel, err)
	}
	span.SetAttributes(attribute.Int("modidock.bytes", len(data)))
	return data, nil
}

// Write backs up an allowlisted file and replaces its contents. The file must
// already exist. If the backup cannot be written the original is not touched.
//
// Errors: registry.ErrUnknownContainer, pathguard.ErrForbidden, ErrIO.
func (b *Broker) Write(ctx context.Context, containerID, rel string, contents []byte) (err error) {
	_, span := b.startSpan(ctx, "broker.write", containerID, rel)
	defer func() { endSpan(span, err) }()

	res, err := b.resolve(containerID, rel)
	if err != nil {
		return err
	}

	unlock := b.locks.lock(res.AbsolutePath)
	defer unlock()

	info, err := regularFile(res.AbsolutePath)
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, rel, err)
	}
	current, err := os.ReadFile(res.AbsolutePath)
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, rel, err)
	}

	backup, err := b.backup(res.AbsolutePath, current, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("%w: backup %s: %w", ErrIO, rel, err)
	}

	if err := atomicwriter.WriteFile(res.AbsolutePath, contents, info.Mode().Perm()); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, rel, err)
	}
	if err := restoreOwner(res.AbsolutePath, info); err != nil {
		b.log.Warn("could not restore file owner", "container", containerID, "file", rel, "err", err)
	}

	span.SetAttributes(attribute.Int("modidock.bytes", len(contents)))
	b.log.Info("file written",
		"container", containerID,
		"file", rel,
		"bytes", len(contents),
		"digest", Digest(contents),
		"backup", filepath.Base(backup),
	)
	return nil
}

func (b *Broker) resolve(containerID, rel string) (pathguard.Resolved, error) {
	entry, ok := b.source.Lookup(containerID)
	if !ok {
		return pathguard.Resolved{}, fmt.Errorf("%w %q", registry.ErrUnknownContainer, containerID)
	}
	return pathguard.Resolve(entry, rel)
}

// backup copies current next to abs under a name no other backup has used.
// O_EXCL guarantees two writes in the same nanosecond still get distinct files.
func (b *Broker) backup(abs string, current []byte, perm fs.FileMode) (string, error) {
	base := abs + ".bak." + b.now().UTC().Format(backupStamp)
	for n := 0; n < maxBackupAttempts; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := writeAndClose(f, current); err != nil {
			_ = os.Remove(name)
			return "", err
		}
		return name, nil
	}
	return "", fmt.Errorf("no free backup name after %d attempts", maxBackupAttempts)
}

func writeAndClose(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func regularFile(path string) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file")
	}
	return info, nil
}

func (b *Broker) startSpan(ctx context.Context, name, containerID, rel string) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("modidock.container", containerID),
		attribute.String("modidock.file", rel),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
