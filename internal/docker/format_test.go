package docker

import (
	"testing"

	"github.com/docker/docker/api/types/container"
)

func TestDeriveState(t *testing.T) {
	tests := []struct {
		status string
		want   State
	}{
		{"Up 2 hours", Running},
		{"Up 5 seconds (healthy)", Running},
		{"up About a minute", Running},
		{"running", Running},
		{"Exited (0) 3 minutes ago", Stopped},
		{"Created", Stopped},
		{"Restarting (1) 2 seconds ago", Stopped},
		{"", Stopped},
		{"unknown", Stopped},
	}
	for _, tt := range tests {
		if got := DeriveState(tt.status); got != tt.want {
			t.Errorf("DeriveState(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0B"},
		{100, "100B"},
		{1023, "1023B"},
		{1024, "1.0KB"},
		{1536, "1.5KB"},
		{1048576, "1.0MB"},
		{1073741824, "1.0GB"},
		{1099511627776, "1.0TB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatPorts(t *testing.T) {
	if got := formatPorts(nil); got != "--" {
		t.Errorf("no ports = %q, want --", got)
	}
	got := formatPorts([]container.Port{
		{PrivatePort: 80, PublicPort: 8080, Type: "tcp"},
		{PrivatePort: 5432, Type: "tcp"},
	})
	if got != "8080:80, 5432" {
		t.Errorf("ports = %q", got)
	}
}

func TestSplitRepoTag(t *testing.T) {
	tests := []struct {
		ref, repo, tag string
	}{
		{"nginx:latest", "nginx", "latest"},
		{"library/postgres:16-alpine", "library/postgres", "16-alpine"},
		{"registry.local:5000/team/app:1.2", "registry.local:5000/team/app", "1.2"},
		{"registry.local:5000/team/app", "registry.local:5000/team/app", "<none>"},
		{"alpine", "alpine", "<none>"},
		{"<none>:<none>", "<none>", "<none>"},
		{"", "<none>", "<none>"},
		{"app@sha256:abcd", "app", "<none>"},
	}
	for _, tt := range tests {
		repo, tag := splitRepoTag(tt.ref)
		if repo != tt.repo || tag != tt.tag {
			t.Errorf("splitRepoTag(%q) = %q, %q; want %q, %q", tt.ref, repo, tag, tt.repo, tt.tag)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID(short) = %q", got)
	}
	if got := shortID(""); got != "unknown" {
		t.Errorf("shortID(empty) = %q", got)
	}
}
