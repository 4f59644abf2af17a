package docker

import (
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-units"
)

const (
	shortIDLen  = 12
	noneTag     = "<none>"
	noPorts     = "--"
	unknownText = "unknown"
)

// DeriveState maps a daemon status string ("Up 2 hours", "Exited (0) 3
// minutes ago") to a lifecycle State. Statuses starting with "up" or
// "running" are Running, everything else is Stopped.
func DeriveState(status string) State {
	s := strings.ToLower(strings.TrimSpace(status))
	if strings.HasPrefix(s, "up") || strings.HasPrefix(s, "running") {
		return Running
	}
	return Stopped
}

// shortID truncates a daemon ID to the 12 characters shown by the docker CLI.
func shortID(id string) string {
	if id == "" {
		return unknownText
	}
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

// formatSize renders a byte count as "512B", "1.0KB", "150.3MB", ...
func formatSize(b int64) string {
	if b < 1024 {
		return strconv.FormatInt(b, 10) + "B"
	}
	return units.CustomSize("%.1f%s", float64(b), 1024.0, []string{"B", "KB", "MB", "GB", "TB", "PB"})
}

// formatPorts renders port bindings as "public:private" (or "private" when
// unpublished) joined with ", ". No bindings renders as "--".
func formatPorts(ports []container.Port) string {
	if len(ports) == 0 {
		return noPorts
	}
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.PublicPort != 0 {
			parts = append(parts, strconv.Itoa(int(p.PublicPort))+":"+strconv.Itoa(int(p.PrivatePort)))
		} else {
			parts = append(parts, strconv.Itoa(int(p.PrivatePort)))
		}
	}
	return strings.Join(parts, ", ")
}

// splitRepoTag splits "registry:5000/org/app:1.2" into repository and tag.
// The tag separator is the last ':' after the last '/', so registry ports
// stay part of the repository. Missing parts come back as "<none>".
func splitRepoTag(ref string) (string, string) {
	if ref == "" || ref == "<none>:<none>" {
		return noneTag, noneTag
	}
	// Digest references carry no tag.
	if at := strings.IndexByte(ref, '@'); at >= 0 {
		return ref[:at], noneTag
	}
	slash := strings.LastIndexByte(ref, '/')
	colon := strings.LastIndexByte(ref, ':')
	if colon <= slash {
		return ref, noneTag
	}
	return ref[:colon], ref[colon+1:]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
