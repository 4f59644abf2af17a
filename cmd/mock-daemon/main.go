// Command mock-daemon runs a standalone fake Docker daemon on a Unix socket,
// so doctainr can be developed without a real Docker installation.
//
// Usage:
//
//	mock-daemon --socket /tmp/doctainr-mock/docker.sock --seed seed.yaml
//	DOCKER_HOST=unix:///tmp/doctainr-mock/docker.sock doctainr
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/doctainr/doctainr/internal/docker"
)

func main() {
	var (
		socketPath string
		seedPath   string
		logLevel   string
	)

	flag.StringVar(&socketPath, "socket", "", "Unix socket path (default: /tmp/doctainr-mock-<pid>/docker.sock)")
	flag.StringVar(&seedPath, "seed", "", "YAML file with the initial containers, images and volumes")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(logLevel),
	})))

	// Default socket path if not specified
	if socketPath == "" {
		dir := fmt.Sprintf("/tmp/doctainr-mock-%d", os.Getpid())
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("create socket dir", "err", err)
			os.Exit(1)
		}
		socketPath = dir + "/docker.sock"
	}

	seed := docker.DefaultFakeSeed()
	if seedPath != "" {
		var err error
		if seed, err = docker.LoadFakeSeed(seedPath); err != nil {
			slog.Error("load seed", "err", err)
			os.Exit(1)
		}
	}

	fd, err := docker.StartFakeDaemonOnSocket(socketPath)
	if err != nil {
		slog.Error("start fake daemon", "err", err)
		os.Exit(1)
	}
	defer fd.Close()
	fd.Seed(seed)

	// Print socket path to stdout so parent processes can discover it
	fmt.Println(socketPath)

	slog.Info("mock daemon started",
		"socket", socketPath,
		"containers", len(seed.Containers),
		"images", len(seed.Images),
		"volumes", len(seed.Volumes),
	)

	// Wait for SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("mock daemon shutting down")
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
