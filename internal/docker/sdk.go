package docker

import (
	"context"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/doctainr/doctainr/internal/docker")

// SDKGateway implements Gateway using the Docker Engine SDK.
type SDKGateway struct {
	cli         *client.Client
	host        string
	stopTimeout time.Duration
}

// NewSDKGatewayWithHost creates an SDKGateway for a specific daemon
// endpoint. TLS material (DOCKER_TLS_VERIFY, DOCKER_CERT_PATH) is still
// taken from the environment. No connection is made until the first call.
func NewSDKGatewayWithHost(host string, stopTimeout time.Duration) (*SDKGateway, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, connectionError("connect", err)
	}
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &SDKGateway{cli: cli, host: host, stopTimeout: stopTimeout}, nil
}

func (s *SDKGateway) Host() string { return s.host }

// Ping checks that the daemon answers on the configured endpoint.
func (s *SDKGateway) Ping(ctx context.Context) error {
	ctx, span := s.start(ctx, "ping")
	defer span.End()

	if _, err := s.cli.Ping(ctx); err != nil {
		return s.fail(span, classify("ping", "", err))
	}
	return nil
}

func (s *SDKGateway) ListContainers(ctx context.Context) ([]ContainerRecord, error) {
	ctx, span := s.start(ctx, "list containers")
	defer span.End()

	raw, err := s.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, s.fail(span, classify("list containers", "", err))
	}

	result := make([]ContainerRecord, 0, len(raw))
	for _, c := range raw {
		name := "unnamed"
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		status := orDefault(c.Status, unknownText)

		result = append(result, ContainerRecord{
			ID:     shortID(c.ID),
			Name:   name,
			Image:  orDefault(c.Image, unknownText),
			Status: status,
			Ports:  formatPorts(c.Ports),
			State:  DeriveState(status),
		})
	}
	span.SetAttributes(attribute.Int("count", len(result)))
	return result, nil
}

func (s *SDKGateway) ListImages(ctx context.Context) ([]ImageRecord, error) {
	ctx, span := s.start(ctx, "list images")
	defer span.End()

	imgs, err := s.cli.ImageList(ctx, image.ListOptions{All: false})
	if err != nil {
		return nil, s.fail(span, classify("list images", "", err))
	}

	result := make([]ImageRecord, 0, len(imgs))
	for _, img := range imgs {
		repo, tag := noneTag, noneTag
		if len(img.RepoTags) > 0 {
			repo, tag = splitRepoTag(img.RepoTags[0])
		}
		result = append(result, ImageRecord{
			ID:         img.ID,
			Repository: repo,
			Tag:        tag,
			Size:       formatSize(img.Size),
		})
	}
	span.SetAttributes(attribute.Int("count", len(result)))
	return result, nil
}

func (s *SDKGateway) ListVolumes(ctx context.Context) ([]VolumeRecord, error) {
	ctx, span := s.start(ctx, "list volumes")
	defer span.End()

	resp, err := s.cli.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return nil, s.fail(span, classify("list volumes", "", err))
	}

	result := make([]VolumeRecord, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		if v == nil {
			continue
		}
		result = append(result, VolumeRecord{
			Name:       v.Name,
			Driver:     v.Driver,
			Mountpoint: v.Mountpoint,
		})
	}
	span.SetAttributes(attribute.Int("count", len(result)))
	return result, nil
}

func (s *SDKGateway) StartContainer(ctx context.Context, id string) error {
	const op = "start container"
	ctx, span := s.start(ctx, op, attribute.String("container", id))
	defer span.End()

	// The daemon answers a redundant start with 304, which the SDK reports
	// as success, so the current state is checked first.
	state, err := s.inspectState(ctx, op, id)
	if err != nil {
		return s.fail(span, err)
	}
	if state == Running {
		return s.fail(span, conflictError(op, id, Running, nil))
	}

	if err := s.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return s.fail(span, classify(op, id, err))
	}
	return nil
}

func (s *SDKGateway) StopContainer(ctx context.Context, id string) error {
	const op = "stop container"
	ctx, span := s.start(ctx, op, attribute.String("container", id))
	defer span.End()

	state, err := s.inspectState(ctx, op, id)
	if err != nil {
		return s.fail(span, err)
	}
	if state == Stopped {
		return s.fail(span, conflictError(op, id, Stopped, nil))
	}

	timeout := int(s.stopTimeout / time.Second)
	if err := s.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return s.fail(span, classify(op, id, err))
	}
	return nil
}

// inspectState reports whether the daemon considers the container running.
func (s *SDKGateway) inspectState(ctx context.Context, op, id string) (State, *Error) {
	resp, err := s.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", classify(op, id, err)
	}
	if resp.ContainerJSONBase == nil || resp.State == nil {
		return "", protocolError(op, errMissingState)
	}
	if resp.State.Running {
		return Running, nil
	}
	return Stopped, nil
}

func (s *SDKGateway) Events(ctx context.Context) (<-chan ResourceEvent, <-chan error) {
	out := make(chan ResourceEvent, 64)
	outErr := make(chan error, 1)

	opts := events.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("type", string(events.ContainerEventType)),
			filters.Arg("type", string(events.ImageEventType)),
			filters.Arg("type", string(events.VolumeEventType)),
		),
	}
	msgCh, errCh := s.cli.Events(ctx, opts)

	go func() {
		defer close(out)
		defer close(outErr)

		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				if msg.Type == events.ContainerEventType && !relevantContainerAction(msg.Action) {
					continue
				}
				evt := ResourceEvent{
					Type:   string(msg.Type),
					Action: string(msg.Action),
					ID:     msg.Actor.ID,
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}

			case err, ok := <-errCh:
				if !ok {
					return
				}
				select {
				case outErr <- classify("events", "", err):
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	return out, outErr
}

// relevantContainerAction filters out exec, attach and health noise that
// never changes the container list.
func relevantContainerAction(a events.Action) bool {
	switch a {
	case events.ActionStart, events.ActionStop, events.ActionDie,
		events.ActionPause, events.ActionUnPause, events.ActionRestart,
		events.ActionCreate, events.ActionDestroy, events.ActionRename:
		return true
	}
	return false
}

func (s *SDKGateway) Close() error {
	return s.cli.Close()
}

func (s *SDKGateway) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("docker.host", s.host))
	return tracer.Start(ctx, "docker."+strings.ReplaceAll(op, " ", "_"), trace.WithAttributes(attrs...))
}

func (s *SDKGateway) fail(span trace.Span, err *Error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Kind))
	return err
}

type gatewayError string

func (e gatewayError) Error() string { return string(e) }

const errMissingState = gatewayError("inspect response has no State")

// Ensure SDKGateway implements Gateway at compile time.
var _ Gateway = (*SDKGateway)(nil)
