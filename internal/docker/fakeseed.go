package docker

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FakeSeed is the initial world of a FakeDaemon, loadable from YAML:
//
//	containers:
//	  - name: web
//	    image: nginx:latest
//	    running: true
//	    ports: [{private: 80, public: 8080}]
//	images:
//	  - repoTag: nginx:latest
//	    size: 196608000
//	volumes:
//	  - name: pgdata
type FakeSeed struct {
	Containers []FakeContainer `yaml:"containers"`
	Images     []FakeImage     `yaml:"images"`
	Volumes    []FakeVolume    `yaml:"volumes"`
}

// DefaultFakeSeed is a small mixed world used by the mock daemon when no
// seed file is given.
func DefaultFakeSeed() FakeSeed {
	return FakeSeed{
		Containers: []FakeContainer{
			{Name: "web", Image: "nginx:latest", Running: true, Ports: []FakePort{{Private: 80, Public: 8080}}},
			{Name: "api", Image: "node:22-alpine", Running: true, Ports: []FakePort{{Private: 3000, Public: 3000}}},
			{Name: "db", Image: "postgres:16", Running: true, Ports: []FakePort{{Private: 5432}}},
			{Name: "worker", Image: "node:22-alpine"},
			{Name: "migrate", Image: "registry.local:5000/team/migrate:1.4.2"},
		},
		Images: []FakeImage{
			{RepoTag: "nginx:latest", Size: 196_608_000},
			{RepoTag: "node:22-alpine", Size: 161_480_704},
			{RepoTag: "postgres:16", Size: 453_984_256},
			{RepoTag: "registry.local:5000/team/migrate:1.4.2", Size: 24_117_248},
			{Size: 7_340_032},
		},
		Volumes: []FakeVolume{
			{Name: "pgdata", Driver: "local"},
			{Name: "node_modules", Driver: "local"},
		},
	}
}

// LoadFakeSeed reads a seed from a YAML file.
func LoadFakeSeed(path string) (FakeSeed, error) {
	var seed FakeSeed
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("read seed: %w", err)
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return seed, nil
}

// Seed adds everything in seed to the daemon.
func (fd *FakeDaemon) Seed(seed FakeSeed) {
	for _, c := range seed.Containers {
		fd.AddContainer(c)
	}
	for _, img := range seed.Images {
		fd.AddImage(img)
	}
	for _, v := range seed.Volumes {
		fd.AddVolume(v)
	}
}
