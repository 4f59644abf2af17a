package docker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Route names accepted by FakeDaemon.Break and FakeDaemon.SetDelay.
const (
	RouteContainers = "containers"
	RouteImages     = "images"
	RouteVolumes    = "volumes"
	RouteInspect    = "inspect"
	RouteStart      = "start"
	RouteStop       = "stop"
)

// FakeDaemon is an HTTP server on a Unix socket that implements the slice of
// the Docker Engine API the Gateway uses, backed by in-memory state. The real
// SDK client talks to it exactly as it would to dockerd.
type FakeDaemon struct {
	socketPath string
	listener   net.Listener
	server     *http.Server

	mu         sync.Mutex
	containers []*fakeContainer
	images     []FakeImage
	volumes    []FakeVolume
	broken     map[string]bool
	delays     map[string]time.Duration
	requests   map[string]int
	lastStopT  string

	eventsMu  sync.Mutex
	eventSubs map[int]chan eventMessage
	nextSubID int
}

// FakeContainer seeds a container.
type FakeContainer struct {
	Name    string     `yaml:"name"`
	Image   string     `yaml:"image"`
	Running bool       `yaml:"running"`
	Ports   []FakePort `yaml:"ports"`
}

// FakePort is a port binding; Public 0 means unpublished.
type FakePort struct {
	Private uint16 `yaml:"private"`
	Public  uint16 `yaml:"public"`
}

// FakeImage seeds an image. An empty RepoTag makes it a dangling image.
type FakeImage struct {
	RepoTag string `yaml:"repoTag"`
	Size    int64  `yaml:"size"`
}

// FakeVolume seeds a volume.
type FakeVolume struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`
}

type fakeContainer struct {
	FakeContainer
	id string
}

type eventMessage struct {
	Type     string     `json:"Type"`
	Action   string     `json:"Action"`
	Actor    eventActor `json:"Actor"`
	Time     int64      `json:"time"`
	TimeNano int64      `json:"timeNano"`
}

type eventActor struct {
	ID         string            `json:"ID"`
	Attributes map[string]string `json:"Attributes"`
}

// StartFakeDaemon starts a fake daemon on a socket in a fresh temp dir.
func StartFakeDaemon() (*FakeDaemon, error) {
	tmpDir, err := os.MkdirTemp("", "doctainr-fake-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	fd, err := StartFakeDaemonOnSocket(filepath.Join(tmpDir, "docker.sock"))
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}
	return fd, nil
}

// StartFakeDaemonOnSocket starts a fake daemon listening on socketPath.
func StartFakeDaemonOnSocket(socketPath string) (*FakeDaemon, error) {
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix: %w", err)
	}

	fd := &FakeDaemon{
		socketPath: socketPath,
		listener:   listener,
		broken:     make(map[string]bool),
		delays:     make(map[string]time.Duration),
		requests:   make(map[string]int),
		eventSubs:  make(map[int]chan eventMessage),
	}

	mux := http.NewServeMux()
	fd.registerRoutes(mux)
	fd.server = &http.Server{Handler: stripVersionPrefix(mux)}

	go func() {
		if err := fd.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("fake daemon serve", "err", err)
		}
	}()
	return fd, nil
}

// Host returns the DOCKER_HOST-style endpoint of the daemon.
func (fd *FakeDaemon) Host() string {
	return "unix://" + fd.socketPath
}

// Close stops the server and removes the socket.
func (fd *FakeDaemon) Close() error {
	err := fd.server.Close()
	fd.listener.Close()
	os.Remove(fd.socketPath)
	if strings.HasPrefix(filepath.Base(filepath.Dir(fd.socketPath)), "doctainr-fake-") {
		os.RemoveAll(filepath.Dir(fd.socketPath))
	}
	return err
}

// AddContainer seeds a container and returns its full daemon ID.
func (fd *FakeDaemon) AddContainer(c FakeContainer) string {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fc := &fakeContainer{FakeContainer: c, id: fakeID(c.Name)}
	fd.containers = append(fd.containers, fc)
	return fc.id
}

// RemoveContainer drops a container, as if removed out-of-band.
func (fd *FakeDaemon) RemoveContainer(ref string) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	for i, c := range fd.containers {
		if c.matches(ref) {
			fd.containers = append(fd.containers[:i], fd.containers[i+1:]...)
			return
		}
	}
}

// SetRunning changes a container's state without going through the API.
func (fd *FakeDaemon) SetRunning(ref string, running bool) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if c := fd.findLocked(ref); c != nil {
		c.Running = running
	}
}

func (fd *FakeDaemon) AddImage(img FakeImage) {
	fd.mu.Lock()
	fd.images = append(fd.images, img)
	fd.mu.Unlock()
}

func (fd *FakeDaemon) AddVolume(v FakeVolume) {
	fd.mu.Lock()
	if v.Driver == "" {
		v.Driver = "local"
	}
	fd.volumes = append(fd.volumes, v)
	fd.mu.Unlock()
}

// Break makes route answer 200 with a body that cannot be decoded.
func (fd *FakeDaemon) Break(route string, broken bool) {
	fd.mu.Lock()
	fd.broken[route] = broken
	fd.mu.Unlock()
}

// SetDelay holds every request on route for d before answering.
func (fd *FakeDaemon) SetDelay(route string, d time.Duration) {
	fd.mu.Lock()
	fd.delays[route] = d
	fd.mu.Unlock()
}

// Requests returns how many requests route has served.
func (fd *FakeDaemon) Requests(route string) int {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.requests[route]
}

// LastStopTimeout returns the "t" query parameter of the last stop request.
func (fd *FakeDaemon) LastStopTimeout() string {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.lastStopT
}

func fakeID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

func (c *fakeContainer) matches(ref string) bool {
	if ref == "" {
		return false
	}
	return ref == c.id || ref == c.Name || ref == "/"+c.Name || strings.HasPrefix(c.id, ref)
}

func (fd *FakeDaemon) findLocked(ref string) *fakeContainer {
	for _, c := range fd.containers {
		if c.matches(ref) {
			return c
		}
	}
	return nil
}

// stripVersionPrefix strips the /v1.47 prefix the SDK puts on every path.
func stripVersionPrefix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if len(path) > 2 && path[0] == '/' && path[1] == 'v' && path[2] >= '0' && path[2] <= '9' {
			if idx := strings.IndexByte(path[2:], '/'); idx >= 0 {
				r.URL.Path = path[2+idx:]
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (fd *FakeDaemon) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("HEAD /_ping", fd.handlePing)
	mux.HandleFunc("GET /_ping", fd.handlePing)

	mux.HandleFunc("GET /containers/json", fd.route(RouteContainers, fd.handleContainerList))
	mux.HandleFunc("GET /containers/{id}/json", fd.route(RouteInspect, fd.handleContainerInspect))
	mux.HandleFunc("POST /containers/{id}/start", fd.route(RouteStart, fd.handleContainerStart))
	mux.HandleFunc("POST /containers/{id}/stop", fd.route(RouteStop, fd.handleContainerStop))
	mux.HandleFunc("GET /images/json", fd.route(RouteImages, fd.handleImageList))
	mux.HandleFunc("GET /volumes", fd.route(RouteVolumes, fd.handleVolumeList))
	mux.HandleFunc("GET /events", fd.handleEvents)
}

// route wraps a handler with request counting, injected latency and
// injected malformed responses.
func (fd *FakeDaemon) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fd.mu.Lock()
		fd.requests[name]++
		delay := fd.delays[name]
		broken := fd.broken[name]
		fd.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if broken {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"Id": [`))
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func (fd *FakeDaemon) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Api-Version", "1.47")
	w.Header().Set("Docker-Experimental", "false")
	w.Header().Set("Ostype", "linux")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// --- Containers ---

type containerJSON struct {
	ID      string            `json:"Id"`
	Names   []string          `json:"Names"`
	Image   string            `json:"Image"`
	ImageID string            `json:"ImageID"`
	Command string            `json:"Command"`
	Created int64             `json:"Created"`
	State   string            `json:"State"`
	Status  string            `json:"Status"`
	Ports   []portJSON        `json:"Ports"`
	Labels  map[string]string `json:"Labels"`
}

type portJSON struct {
	IP          string `json:"IP,omitempty"`
	PrivatePort uint16 `json:"PrivatePort"`
	PublicPort  uint16 `json:"PublicPort,omitempty"`
	Type        string `json:"Type"`
}

func (fd *FakeDaemon) handleContainerList(w http.ResponseWriter, r *http.Request) {
	allParam := r.URL.Query().Get("all")
	all := allParam == "1" || allParam == "true"

	fd.mu.Lock()
	result := make([]containerJSON, 0, len(fd.containers))
	for _, c := range fd.containers {
		if !all && !c.Running {
			continue
		}
		ports := make([]portJSON, 0, len(c.Ports))
		for _, p := range c.Ports {
			pj := portJSON{PrivatePort: p.Private, PublicPort: p.Public, Type: "tcp"}
			if p.Public != 0 {
				pj.IP = "0.0.0.0"
			}
			ports = append(ports, pj)
		}
		result = append(result, containerJSON{
			ID:      c.id,
			Names:   []string{"/" + c.Name},
			Image:   c.Image,
			ImageID: "sha256:" + fakeID(c.Image),
			Command: "/docker-entrypoint.sh",
			Created: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
			State:   stateString(c.Running),
			Status:  statusString(c.Running),
			Ports:   ports,
			Labels:  map[string]string{},
		})
	}
	fd.mu.Unlock()

	writeJSON(w, http.StatusOK, result)
}

func stateString(running bool) string {
	if running {
		return "running"
	}
	return "exited"
}

func statusString(running bool) string {
	if running {
		return "Up 2 hours"
	}
	return "Exited (0) 3 minutes ago"
}

func (fd *FakeDaemon) handleContainerInspect(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("id")

	fd.mu.Lock()
	c := fd.findLocked(ref)
	if c == nil {
		fd.mu.Unlock()
		writeError(w, http.StatusNotFound, "No such container: "+ref)
		return
	}
	resp := map[string]any{
		"Id":    c.id,
		"Name":  "/" + c.Name,
		"Image": "sha256:" + fakeID(c.Image),
		"State": map[string]any{
			"Status":  stateString(c.Running),
			"Running": c.Running,
			"Paused":  false,
			"Dead":    false,
		},
		"Config": map[string]any{"Image": c.Image},
	}
	fd.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (fd *FakeDaemon) handleContainerStart(w http.ResponseWriter, r *http.Request) {
	fd.transition(w, r, true)
}

func (fd *FakeDaemon) handleContainerStop(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	fd.lastStopT = r.URL.Query().Get("t")
	fd.mu.Unlock()
	fd.transition(w, r, false)
}

// transition mirrors dockerd: 404 for unknown containers, 304 when the
// container is already in the requested state, 204 otherwise.
func (fd *FakeDaemon) transition(w http.ResponseWriter, r *http.Request, running bool) {
	ref := r.PathValue("id")

	fd.mu.Lock()
	c := fd.findLocked(ref)
	if c == nil {
		fd.mu.Unlock()
		writeError(w, http.StatusNotFound, "No such container: "+ref)
		return
	}
	if c.Running == running {
		fd.mu.Unlock()
		w.WriteHeader(http.StatusNotModified)
		return
	}
	c.Running = running
	id := c.id
	fd.mu.Unlock()

	action := "stop"
	if running {
		action = "start"
	}
	fd.publishEvent("container", action, id)
	w.WriteHeader(http.StatusNoContent)
}

// --- Images ---

type imageJSON struct {
	ID          string            `json:"Id"`
	ParentID    string            `json:"ParentId"`
	RepoTags    []string          `json:"RepoTags"`
	RepoDigests []string          `json:"RepoDigests"`
	Created     int64             `json:"Created"`
	Size        int64             `json:"Size"`
	SharedSize  int64             `json:"SharedSize"`
	Labels      map[string]string `json:"Labels"`
	Containers  int64             `json:"Containers"`
}

func (fd *FakeDaemon) handleImageList(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	result := make([]imageJSON, 0, len(fd.images))
	for i, img := range fd.images {
		tags := []string{}
		if img.RepoTag != "" {
			tags = []string{img.RepoTag}
		}
		result = append(result, imageJSON{
			ID:          "sha256:" + fakeID(img.RepoTag+"#"+strconv.Itoa(i)),
			RepoTags:    tags,
			RepoDigests: []string{},
			Created:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
			Size:        img.Size,
			SharedSize:  -1,
			Labels:      map[string]string{},
			Containers:  -1,
		})
	}
	fd.mu.Unlock()

	writeJSON(w, http.StatusOK, result)
}

// --- Volumes ---

type volumeJSON struct {
	Name       string            `json:"Name"`
	Driver     string            `json:"Driver"`
	Mountpoint string            `json:"Mountpoint"`
	Scope      string            `json:"Scope"`
	CreatedAt  string            `json:"CreatedAt"`
	Labels     map[string]string `json:"Labels"`
}

type volumeListJSON struct {
	Volumes  []volumeJSON `json:"Volumes"`
	Warnings []string     `json:"Warnings"`
}

func (fd *FakeDaemon) handleVolumeList(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	volumes := make([]volumeJSON, 0, len(fd.volumes))
	for _, v := range fd.volumes {
		volumes = append(volumes, volumeJSON{
			Name:       v.Name,
			Driver:     v.Driver,
			Mountpoint: fmt.Sprintf("/var/lib/docker/volumes/%s/_data", v.Name),
			Scope:      "local",
			CreatedAt:  "2026-01-01T00:00:00Z",
			Labels:     map[string]string{},
		})
	}
	fd.mu.Unlock()

	writeJSON(w, http.StatusOK, volumeListJSON{Volumes: volumes, Warnings: []string{}})
}

// --- Events ---

func (fd *FakeDaemon) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	subID, ch := fd.subscribeEvents()
	defer fd.unsubscribeEvents(subID)

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if err := enc.Encode(evt); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

func (fd *FakeDaemon) subscribeEvents() (int, chan eventMessage) {
	fd.eventsMu.Lock()
	defer fd.eventsMu.Unlock()
	id := fd.nextSubID
	fd.nextSubID++
	ch := make(chan eventMessage, 64)
	fd.eventSubs[id] = ch
	return id, ch
}

func (fd *FakeDaemon) unsubscribeEvents(id int) {
	fd.eventsMu.Lock()
	defer fd.eventsMu.Unlock()
	delete(fd.eventSubs, id)
}

// Subscribers reports how many event streams are open.
func (fd *FakeDaemon) Subscribers() int {
	fd.eventsMu.Lock()
	defer fd.eventsMu.Unlock()
	return len(fd.eventSubs)
}

// PublishEvent emits an event to every open event stream.
func (fd *FakeDaemon) PublishEvent(typ, action, id string) {
	fd.publishEvent(typ, action, id)
}

func (fd *FakeDaemon) publishEvent(typ, action, id string) {
	fd.eventsMu.Lock()
	defer fd.eventsMu.Unlock()

	now := time.Now()
	evt := eventMessage{
		Type:     typ,
		Action:   action,
		Actor:    eventActor{ID: id, Attributes: map[string]string{}},
		Time:     now.Unix(),
		TimeNano: now.UnixNano(),
	}
	for _, ch := range fd.eventSubs {
		select {
		case ch <- evt:
		default:
		}
	}
}
