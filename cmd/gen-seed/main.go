// gen-seed writes a large, deterministic seed file for mock-daemon, used to
// check how the UI and broadcaster behave with hundreds of resources.
//
// Usage: go run ./cmd/gen-seed [-containers 200] [-o seed.yaml]
package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/doctainr/doctainr/internal/docker"
)

var baseImages = []struct {
	ref  string
	size int64
	port uint16
}{
	{"nginx:latest", 196_608_000, 80},
	{"redis:7-alpine", 41_943_040, 6379},
	{"postgres:16", 453_984_256, 5432},
	{"node:22-alpine", 161_480_704, 3000},
	{"registry.local:5000/team/api:2.1.0", 88_080_384, 8080},
}

func main() {
	var (
		containers int
		out        string
	)
	flag.IntVar(&containers, "containers", 200, "Number of containers to generate")
	flag.StringVar(&out, "o", "", "Output file (default: stdout)")
	flag.Parse()

	seed := generate(containers)

	data, err := yaml.Marshal(seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal seed: %v\n", err)
		os.Exit(1)
	}
	if out == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", out, err)
		os.Exit(1)
	}
	fmt.Printf("Generated %d containers, %d images, %d volumes in %s\n",
		len(seed.Containers), len(seed.Images), len(seed.Volumes), out)
}

func generate(n int) docker.FakeSeed {
	var seed docker.FakeSeed
	for _, img := range baseImages {
		seed.Images = append(seed.Images, docker.FakeImage{RepoTag: img.ref, Size: img.size})
	}

	for i := 0; i < n; i++ {
		img := baseImages[i%len(baseImages)]
		c := docker.FakeContainer{
			Name:    fmt.Sprintf("app-%03d", i),
			Image:   img.ref,
			Running: fillerRunning(i),
		}
		// Every third container publishes its port.
		if i%3 == 0 {
			c.Ports = []docker.FakePort{{Private: img.port, Public: uint16(20000 + i)}}
		} else {
			c.Ports = []docker.FakePort{{Private: img.port}}
		}
		seed.Containers = append(seed.Containers, c)

		if i%4 == 0 {
			seed.Volumes = append(seed.Volumes, docker.FakeVolume{
				Name:   fmt.Sprintf("app-%03d-data", i),
				Driver: "local",
			})
		}
	}
	return seed
}

// fillerRunning gives a 3:2 running/stopped mix.
func fillerRunning(i int) bool {
	switch i % 5 {
	case 0, 1, 2:
		return true
	default:
		return false
	}
}
