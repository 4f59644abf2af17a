package docker

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/client"
)

// Gateway is the engine's only point of contact with the Docker daemon.
// Every failure is a *Error carrying one of the Kind values.
type Gateway interface {
	// ListContainers returns running and stopped containers.
	ListContainers(ctx context.Context) ([]ContainerRecord, error)

	// ListImages returns tagged images (no intermediate layers).
	ListImages(ctx context.Context) ([]ImageRecord, error)

	// ListVolumes returns all volumes.
	ListVolumes(ctx context.Context) ([]VolumeRecord, error)

	// StartContainer starts a stopped container. Starting a running
	// container is a KindConflict failure.
	StartContainer(ctx context.Context, id string) error

	// StopContainer stops a running container, giving it the configured
	// grace period before the daemon kills it. Stopping a stopped container
	// is a KindConflict failure.
	StopContainer(ctx context.Context, id string) error

	// Events streams container, image and volume lifecycle events. Both
	// channels are closed when ctx is cancelled or the stream breaks.
	Events(ctx context.Context) (<-chan ResourceEvent, <-chan error)

	// Host returns the daemon endpoint this gateway was built for.
	Host() string

	Close() error
}

// DefaultStopTimeout is the grace period given to a container on stop
// before the daemon escalates to SIGKILL.
const DefaultStopTimeout = 10 * time.Second

// Options configures Connect.
type Options struct {
	// Host overrides DOCKER_HOST, e.g. "unix:///run/user/1000/docker.sock"
	// or "tcp://10.0.0.5:2376".
	Host string

	// StopTimeout is the grace period for StopContainer. Zero means
	// DefaultStopTimeout.
	StopTimeout time.Duration

	// PingTimeout bounds the reachability check done at construction.
	PingTimeout time.Duration
}

// ResolveHost returns the daemon endpoint: the explicit override, then
// DOCKER_HOST, then the platform default (Unix socket or named pipe).
func ResolveHost(override string) string {
	if override != "" {
		return override
	}
	if v := os.Getenv(client.EnvOverrideHost); v != "" {
		return v
	}
	return client.DefaultDockerHost
}

// SocketPath returns the filesystem path of a unix:// endpoint, or "" for
// any other scheme.
func SocketPath(host string) string {
	if !strings.HasPrefix(host, "unix://") {
		return ""
	}
	return strings.TrimPrefix(host, "unix://")
}

// Connect builds an SDK-backed Gateway and verifies the daemon answers.
// An unreachable endpoint yields a KindConnection error; callers are
// expected to continue with Unavailable rather than exit.
func Connect(ctx context.Context, opts Options) (*SDKGateway, error) {
	host := ResolveHost(opts.Host)

	gw, err := NewSDKGatewayWithHost(host, opts.StopTimeout)
	if err != nil {
		return nil, err
	}

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := gw.Ping(pingCtx); err != nil {
		gw.Close()
		return nil, err
	}
	return gw, nil
}

// unavailableGateway is the degraded gateway the engine runs on while no
// daemon is reachable. Every operation fails with the given cause.
type unavailableGateway struct {
	host  string
	cause error
}

// Unavailable returns a Gateway whose every operation fails with a
// KindConnection error wrapping cause.
func Unavailable(host string, cause error) Gateway {
	return &unavailableGateway{host: host, cause: cause}
}

func (u *unavailableGateway) fail(op string) error {
	return connectionError(op, u.cause)
}

func (u *unavailableGateway) ListContainers(context.Context) ([]ContainerRecord, error) {
	return nil, u.fail("list containers")
}

func (u *unavailableGateway) ListImages(context.Context) ([]ImageRecord, error) {
	return nil, u.fail("list images")
}

func (u *unavailableGateway) ListVolumes(context.Context) ([]VolumeRecord, error) {
	return nil, u.fail("list volumes")
}

func (u *unavailableGateway) StartContainer(context.Context, string) error {
	return u.fail("start container")
}

func (u *unavailableGateway) StopContainer(context.Context, string) error {
	return u.fail("stop container")
}

func (u *unavailableGateway) Events(context.Context) (<-chan ResourceEvent, <-chan error) {
	out := make(chan ResourceEvent)
	errCh := make(chan error, 1)
	errCh <- u.fail("events")
	close(out)
	close(errCh)
	return out, errCh
}

func (u *unavailableGateway) Host() string { return u.host }

func (u *unavailableGateway) Close() error { return nil }

var _ Gateway = (*unavailableGateway)(nil)
