package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DOCTAINR_CONFIG", "DOCTAINR_PORT", "DOCTAINR_DOCKER_HOST", "DOCTAINR_STOP_TIMEOUT",
		"DOCTAINR_REQUEST_TIMEOUT", "DOCTAINR_LOG_LEVEL", "DOCTAINR_WATCH_EVENTS", "DOCTAINR_WATCH_SOCKET",
	} {
		t.Setenv(k, "")
	}
}

func TestParseArgs_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if cfg.Port != 5002 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.DockerHost != "" {
		t.Errorf("DockerHost = %q", cfg.DockerHost)
	}
	if cfg.StopTimeout != 10*time.Second {
		t.Errorf("StopTimeout = %v", cfg.StopTimeout)
	}
	if cfg.RequestTimeout != 0 {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.WatchEvents || !cfg.WatchSocket {
		t.Errorf("WatchEvents = %v, WatchSocket = %v", cfg.WatchEvents, cfg.WatchSocket)
	}
}

func TestParseArgs_Flags(t *testing.T) {
	clearEnv(t)

	cfg, err := ParseArgs([]string{
		"-port", "8080", "-docker-host", "tcp://10.0.0.5:2376",
		"-stop-timeout", "3s", "-request-timeout", "15s",
		"-log-level", "debug", "-watch-events",
	})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if cfg.Port != 8080 || cfg.DockerHost != "tcp://10.0.0.5:2376" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.StopTimeout != 3*time.Second || cfg.RequestTimeout != 15*time.Second {
		t.Errorf("timeouts = %v, %v", cfg.StopTimeout, cfg.RequestTimeout)
	}
	if cfg.LogLevel != slog.LevelDebug || !cfg.WatchEvents {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestParseArgs_FileBeneathFlagsBeneathEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "doctainr.yaml")
	if err := os.WriteFile(path, []byte(`port: 7000
dockerHost: unix:///run/user/1000/docker.sock
stopTimeout: 20s
logLevel: warn
watchSocket: false
`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseArgs([]string{"-config", path, "-port", "9000"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("explicit flag should beat file: Port = %d", cfg.Port)
	}
	if cfg.DockerHost != "unix:///run/user/1000/docker.sock" {
		t.Errorf("DockerHost = %q", cfg.DockerHost)
	}
	if cfg.StopTimeout != 20*time.Second {
		t.Errorf("StopTimeout = %v", cfg.StopTimeout)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.WatchSocket {
		t.Error("WatchSocket should come from file")
	}

	t.Setenv("DOCTAINR_PORT", "9100")
	t.Setenv("DOCTAINR_LOG_LEVEL", "error")
	cfg, err = ParseArgs([]string{"-config", path, "-port", "9000"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("env should win: Port = %d", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelError {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestParseArgs_BadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("stopTimeout: soon\n"), 0o644)

	if _, err := ParseArgs([]string{"-config", path}); err == nil {
		t.Error("expected error for invalid duration")
	}
	if _, err := ParseArgs([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseArgs_NegativeTimeout(t *testing.T) {
	clearEnv(t)
	if _, err := ParseArgs([]string{"-stop-timeout", "-1s"}); err == nil {
		t.Error("expected error for negative timeout")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
