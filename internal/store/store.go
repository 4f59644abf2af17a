// Package store holds the canonical in-memory view of Docker resources.
//
// Writers go through a mutex; every write publishes a fresh immutable
// Snapshot through an atomic pointer, so readers never lock and never see a
// half-applied update.
package store

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/doctainr/doctainr/internal/docker"
)

// Class is one of the three resource lists.
type Class string

const (
	Containers Class = "containers"
	Images     Class = "images"
	Volumes    Class = "volumes"
)

// Classes lists every resource class in display order.
var Classes = []Class{Containers, Images, Volumes}

// Source identifies what produced an Error.
type Source string

const (
	SourceContainers Source = "containers"
	SourceImages     Source = "images"
	SourceVolumes    Source = "volumes"
	SourceActions    Source = "actions"
	SourceEngine     Source = "engine"
)

// SourceOf returns the error source for fetches of class c.
func SourceOf(c Class) Source {
	return Source(c)
}

// Error is the single user-visible failure kept by the store.
type Error struct {
	Source  Source      `json:"source"`
	Kind    docker.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Busy carries one in-progress flag per class.
type Busy struct {
	Containers bool `json:"containers"`
	Images     bool `json:"images"`
	Volumes    bool `json:"volumes"`
}

// Get returns the flag for c.
func (b Busy) Get(c Class) bool {
	switch c {
	case Containers:
		return b.Containers
	case Images:
		return b.Images
	case Volumes:
		return b.Volumes
	}
	return false
}

func (b *Busy) set(c Class, v bool) {
	switch c {
	case Containers:
		b.Containers = v
	case Images:
		b.Images = v
	case Volumes:
		b.Volumes = v
	}
}

// Snapshot is an immutable view of the store. Callers must not mutate the
// slices; they are shared with every other reader of the same version.
type Snapshot struct {
	Containers []docker.ContainerRecord `json:"containers"`
	Images     []docker.ImageRecord     `json:"images"`
	Volumes    []docker.VolumeRecord    `json:"volumes"`
	Busy       Busy                     `json:"busy"`
	Error      *Error                   `json:"error"`
	LastAction *string                  `json:"lastAction"`
	Connected  bool                     `json:"connected"`

	// Version increases by one on every write.
	Version uint64 `json:"-"`
}

// Container returns the record with the given ID or name.
func (s *Snapshot) Container(ref string) (docker.ContainerRecord, bool) {
	for _, c := range s.Containers {
		if c.ID == ref || c.Name == ref {
			return c, true
		}
	}
	return docker.ContainerRecord{}, false
}

// Store is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	cur  Snapshot // mutable working copy, guarded by mu
	snap atomic.Pointer[Snapshot]

	subsMu sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// New returns an empty store: no records, nothing busy, no error.
func New() *Store {
	s := &Store{subs: make(map[int]chan struct{})}
	s.cur = Snapshot{
		Containers: []docker.ContainerRecord{},
		Images:     []docker.ImageRecord{},
		Volumes:    []docker.VolumeRecord{},
	}
	first := s.cur
	s.snap.Store(&first)
	return s
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// update applies fn to the working copy and publishes the result.
func (s *Store) update(fn func(cur *Snapshot)) {
	s.mu.Lock()
	fn(&s.cur)
	s.cur.Version++
	pub := s.cur
	s.snap.Store(&pub)
	s.mu.Unlock()

	s.notify()
}

// ReplaceContainers swaps in a private copy of records as the container list.
func (s *Store) ReplaceContainers(records []docker.ContainerRecord) {
	list := slices.Clone(records)
	if list == nil {
		list = []docker.ContainerRecord{}
	}
	s.update(func(cur *Snapshot) { cur.Containers = list })
}

// ReplaceImages swaps in a private copy of records as the image list.
func (s *Store) ReplaceImages(records []docker.ImageRecord) {
	list := slices.Clone(records)
	if list == nil {
		list = []docker.ImageRecord{}
	}
	s.update(func(cur *Snapshot) { cur.Images = list })
}

// ReplaceVolumes swaps in a private copy of records as the volume list.
func (s *Store) ReplaceVolumes(records []docker.VolumeRecord) {
	list := slices.Clone(records)
	if list == nil {
		list = []docker.VolumeRecord{}
	}
	s.update(func(cur *Snapshot) { cur.Volumes = list })
}

// SetError overwrites the current error. A nil err clears it.
func (s *Store) SetError(err *Error) {
	var stored *Error
	if err != nil {
		e := *err
		stored = &e
	}
	s.update(func(cur *Snapshot) { cur.Error = stored })
}

func (s *Store) ClearError() {
	s.SetError(nil)
}

// ClearErrorFrom clears the current error only if one of sources produced
// it. It reports whether an error was cleared.
func (s *Store) ClearErrorFrom(sources ...Source) bool {
	s.mu.Lock()
	if s.cur.Error == nil || !slices.Contains(sources, s.cur.Error.Source) {
		s.mu.Unlock()
		return false
	}
	s.cur.Error = nil
	s.cur.Version++
	pub := s.cur
	s.snap.Store(&pub)
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *Store) SetLastAction(msg string) {
	s.update(func(cur *Snapshot) { cur.LastAction = &msg })
}

func (s *Store) ClearLastAction() {
	s.update(func(cur *Snapshot) { cur.LastAction = nil })
}

// SetBusy sets the in-progress flag for class c.
func (s *Store) SetBusy(c Class, busy bool) {
	s.update(func(cur *Snapshot) { cur.Busy.set(c, busy) })
}

func (s *Store) SetConnected(connected bool) {
	s.update(func(cur *Snapshot) { cur.Connected = connected })
}

// Subscribe returns a channel that receives a value after one or more
// writes. Notifications coalesce: a slow reader sees at most one pending
// signal and should read Snapshot for the latest state. The returned func
// unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) notify() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
