package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"

	"github.com/zpdzap/modidock/internal/registry"
)

type fakeAPI struct {
	mu         sync.Mutex
	restarted  []string
	stopSecs   []int
	restartErr error
	block      bool
	state      string
	inspectErr error
	pingErrs   []error
}

func (f *fakeAPI) ContainerRestart(ctx context.Context, id string, opts container.StopOptions) error {
	f.mu.Lock()
	f.restarted = append(f.restarted, id)
	if opts.Timeout != nil {
		f.stopSecs = append(f.stopSecs, *opts.Timeout)
	}
	block, err := f.block, f.restartErr
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeAPI) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	if f.inspectErr != nil {
		return container.InspectResponse{}, f.inspectErr
	}
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			State: &container.State{Status: container.ContainerState(f.state)},
		},
	}, nil
}

func (f *fakeAPI) Ping(ctx context.Context) (types.Ping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pingErrs) == 0 {
		return types.Ping{}, nil
	}
	err := f.pingErrs[0]
	f.pingErrs = f.pingErrs[1:]
	return types.Ping{}, err
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.New([]registry.ContainerEntry{{ID: "web1", VolumeRoot: "/vol/web1"}})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRestartKnownContainer(t *testing.T) {
	api := &fakeAPI{}
	c := New(api, testRegistry(t), WithStopTimeout(15*time.Second))

	if err := c.Restart(context.Background(), "web1"); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if len(api.restarted) != 1 || api.restarted[0] != "web1" {
		t.Errorf("restarted = %v, want [web1]", api.restarted)
	}
	if len(api.stopSecs) != 1 || api.stopSecs[0] != 15 {
		t.Errorf("stop timeout = %v, want [15]", api.stopSecs)
	}
}

func TestRestartUnknownNeverReachesEngine(t *testing.T) {
	api := &fakeAPI{}
	c := New(api, testRegistry(t))

	// Syntactically valid engine ids that are not registered.
	for _, id := range []string{"web2", "db", "4f2a9c1b7e3d", ""} {
		if err := c.Restart(context.Background(), id); !errors.Is(err, registry.ErrUnknownContainer) {
			t.Errorf("Restart(%q) error = %v, want ErrUnknownContainer", id, err)
		}
	}
	if len(api.restarted) != 0 {
		t.Errorf("engine was called for %v", api.restarted)
	}
}

func TestRestartEngineFailureIsRuntimeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"missing at engine", errdefs.ErrNotFound},
		{"permission", errdefs.ErrPermissionDenied},
		{"other", errors.New("socket closed")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&fakeAPI{restartErr: tt.err}, testRegistry(t))
			err := c.Restart(context.Background(), "web1")
			if !errors.Is(err, ErrRuntime) {
				t.Fatalf("error = %v, want ErrRuntime", err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("error = %v, should wrap %v", err, tt.err)
			}
		})
	}
}

func TestRestartTimeout(t *testing.T) {
	c := New(&fakeAPI{block: true}, testRegistry(t), WithRestartTimeout(20*time.Millisecond))

	start := time.Now()
	err := c.Restart(context.Background(), "web1")
	if !errors.Is(err, ErrRuntime) {
		t.Fatalf("error = %v, want ErrRuntime", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded in chain", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("restart took %v, timeout not applied", elapsed)
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		state      string
		inspectErr error
		want       Status
	}{
		{"running", nil, StatusRunning},
		{"exited", nil, StatusStopped},
		{"restarting", nil, StatusStarting},
		{"paused", nil, StatusStopped},
		{"dead", nil, StatusStopped},
		{"created", nil, StatusStarting},
		{"removing", nil, StatusMissing},
		{"hibernating", nil, StatusError},
		{"", errdefs.ErrNotFound, StatusMissing},
		{"", errors.New("boom"), StatusUnknown},
	}
	for _, tt := range tests {
		c := New(&fakeAPI{state: tt.state, inspectErr: tt.inspectErr}, testRegistry(t))
		if got := c.Status(context.Background(), "web1"); got != tt.want {
			t.Errorf("Status(state=%q, err=%v) = %q, want %q", tt.state, tt.inspectErr, got, tt.want)
		}
	}

	c := New(&fakeAPI{state: "running"}, testRegistry(t))
	if got := c.Status(context.Background(), "web2"); got != StatusUnknown {
		t.Errorf("Status(unregistered) = %q, want unknown", got)
	}
}

func TestWaitReadyStopsOnHardError(t *testing.T) {
	hard := errors.New("client version too old")
	c := New(&fakeAPI{pingErrs: []error{hard}}, testRegistry(t))
	err := c.WaitReady(context.Background())
	if !errors.Is(err, hard) || !errors.Is(err, ErrRuntime) {
		t.Errorf("WaitReady error = %v", err)
	}
}

func TestWaitReadyReachable(t *testing.T) {
	c := New(&fakeAPI{}, testRegistry(t))
	if err := c.WaitReady(context.Background()); err != nil {
		t.Errorf("WaitReady: %v", err)
	}
}
