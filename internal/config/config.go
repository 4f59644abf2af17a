package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           int
	DockerHost     string        // empty means DOCKER_HOST or the platform default
	StopTimeout    time.Duration // grace period before a stopped container is killed
	RequestTimeout time.Duration // per Gateway call, 0 = none
	LogLevel       slog.Level    // Parsed log level (debug, info, warn, error)
	WatchEvents    bool          // refresh on daemon events
	WatchSocket    bool          // reconnect when the daemon socket appears
}

// fileConfig is the optional YAML file. Unset keys leave the flag value alone.
type fileConfig struct {
	Port           *int    `yaml:"port"`
	DockerHost     *string `yaml:"dockerHost"`
	StopTimeout    *string `yaml:"stopTimeout"`
	RequestTimeout *string `yaml:"requestTimeout"`
	LogLevel       *string `yaml:"logLevel"`
	WatchEvents    *bool   `yaml:"watchEvents"`
	WatchSocket    *bool   `yaml:"watchSocket"`
}

// Parse reads os.Args and the environment, exiting on bad input.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// ParseArgs resolves configuration in increasing precedence: defaults, the
// -config YAML file, explicitly set flags, then DOCTAINR_* env vars.
func ParseArgs(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("doctainr", flag.ContinueOnError)

	var logLevel, configPath string
	fs.IntVar(&cfg.Port, "port", 5002, "HTTP server port")
	fs.StringVar(&cfg.DockerHost, "docker-host", "", "Docker daemon endpoint (default: DOCKER_HOST or platform socket)")
	fs.DurationVar(&cfg.StopTimeout, "stop-timeout", 10*time.Second, "Grace period before a stopping container is killed")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", 0, "Timeout for each Docker API call (0 = none)")
	fs.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.WatchEvents, "watch-events", false, "Refresh automatically on Docker events")
	fs.BoolVar(&cfg.WatchSocket, "watch-socket", true, "Reconnect when the Docker socket appears")
	fs.StringVar(&configPath, "config", "", "Path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if v := os.Getenv("DOCTAINR_CONFIG"); v != "" && configPath == "" {
		configPath = v
	}
	if configPath != "" {
		set := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if err := applyFile(cfg, &logLevel, configPath, set); err != nil {
			return nil, err
		}
	}

	// Env vars override flags (if set)
	if v := os.Getenv("DOCTAINR_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("DOCTAINR_DOCKER_HOST"); v != "" {
		cfg.DockerHost = v
	}
	if v := os.Getenv("DOCTAINR_STOP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StopTimeout = d
		}
	}
	if v := os.Getenv("DOCTAINR_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("DOCTAINR_LOG_LEVEL"); v != "" {
		logLevel = v
	}
	if v := os.Getenv("DOCTAINR_WATCH_EVENTS"); v != "" {
		cfg.WatchEvents = v == "1" || v == "true"
	}
	if v := os.Getenv("DOCTAINR_WATCH_SOCKET"); v != "" {
		cfg.WatchSocket = v == "1" || v == "true"
	}

	cfg.LogLevel = parseLogLevel(logLevel)

	if cfg.StopTimeout < 0 || cfg.RequestTimeout < 0 {
		return nil, fmt.Errorf("timeouts must not be negative")
	}
	return cfg, nil
}

// applyFile loads path and copies every key whose flag was not given on the
// command line.
func applyFile(cfg *Config, logLevel *string, path string, set map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Port != nil && !set["port"] {
		cfg.Port = *fc.Port
	}
	if fc.DockerHost != nil && !set["docker-host"] {
		cfg.DockerHost = *fc.DockerHost
	}
	if fc.StopTimeout != nil && !set["stop-timeout"] {
		d, err := time.ParseDuration(*fc.StopTimeout)
		if err != nil {
			return fmt.Errorf("config stopTimeout: %w", err)
		}
		cfg.StopTimeout = d
	}
	if fc.RequestTimeout != nil && !set["request-timeout"] {
		d, err := time.ParseDuration(*fc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("config requestTimeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if fc.LogLevel != nil && !set["log-level"] {
		*logLevel = *fc.LogLevel
	}
	if fc.WatchEvents != nil && !set["watch-events"] {
		cfg.WatchEvents = *fc.WatchEvents
	}
	if fc.WatchSocket != nil && !set["watch-socket"] {
		cfg.WatchSocket = *fc.WatchSocket
	}
	return nil
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
