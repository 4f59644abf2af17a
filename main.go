package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/doctainr/doctainr/internal/config"
	"github.com/doctainr/doctainr/internal/docker"
	"github.com/doctainr/doctainr/internal/engine"
	"github.com/doctainr/doctainr/internal/handlers"
	"github.com/doctainr/doctainr/internal/store"
	"github.com/doctainr/doctainr/internal/ws"
)

// version is set at build time via -ldflags="-X main.version=..."
var version = "0.1.0"

func main() {
	// Quick healthcheck mode, used by Docker HEALTHCHECK from a scratch
	// image: hit /healthz and exit without initializing anything.
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		port := "5002"
		if v := os.Getenv("DOCTAINR_PORT"); v != "" {
			port = v
		}
		resp, err := http.Get("http://127.0.0.1:" + port + "/healthz")
		if err != nil || resp.StatusCode != 200 {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg := config.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	host := docker.ResolveHost(cfg.DockerHost)
	slog.Info("starting doctainr",
		"version", version,
		"port", cfg.Port,
		"dockerHost", host,
		"stopTimeout", cfg.StopTimeout,
		"requestTimeout", cfg.RequestTimeout,
		"watchEvents", cfg.WatchEvents,
		"logLevel", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dockerOpts := docker.Options{Host: host, StopTimeout: cfg.StopTimeout}
	st := store.New()
	engOpts := engine.Options{RequestTimeout: cfg.RequestTimeout, StopTimeout: cfg.StopTimeout}

	// An unreachable daemon is not fatal: the engine runs degraded and the
	// UI shows the connection error until the daemon comes back.
	var eng *engine.Engine
	gw, err := docker.Connect(ctx, dockerOpts)
	if err != nil {
		eng = engine.NewDegraded(host, err, st, engOpts)
		if cfg.WatchSocket {
			if err := eng.ReconnectOnSocket(ctx, dockerOpts); err != nil {
				slog.Warn("docker socket watcher not started", "err", err)
			}
		}
	} else {
		eng = engine.New(gw, st, engOpts)
		eng.RefreshAll()
	}
	defer eng.Close()

	if cfg.WatchEvents {
		eng.WatchEvents(ctx)
	}

	wss := ws.NewServer()
	app := handlers.NewApp(eng, wss, version)
	app.StartBroadcaster(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cancel()
	wss.CloseAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}
