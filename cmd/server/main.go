package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kisshan13/evstream/internal/bridge"
	"github.com/kisshan13/evstream/internal/config"
	"github.com/kisshan13/evstream/internal/hub"
	"github.com/kisshan13/evstream/internal/logging"
	"github.com/kisshan13/evstream/internal/server"
	"github.com/kisshan13/evstream/internal/state"
	"github.com/kisshan13/evstream/internal/version"
)

const (
	channelsTopic    = "evstream:channels"
	lifecycleTopic   = "evstream:lifecycle"
	stateTopicPrefix = "evstream:state:"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupTransport(cfg *config.Config) (bridge.Transport, server.ReadyChecker) {
	if cfg.RedisURL == "" {
		slog.Info("No REDIS_URL configured, running single-process with in-memory transport")
		return bridge.NewMemoryTransport(), nil
	}

	transport, err := bridge.NewRedisTransport(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create redis transport", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := transport.Ping(ctx); err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}

	return transport, transport
}

func runGracefulShutdown(srv *server.Server, h *hub.Hub, states *state.Registry, channels *bridge.Bridge, adapter *bridge.Adapter, transport bridge.Transport) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		h.CloseAll()
		states.Close()
		channels.Close()
		adapter.Close()
		if err := transport.Close(); err != nil {
			slog.Error("Transport close error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	cfg := setupConfig()
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	info := version.Get()
	slog.Info("Starting evstream", "version", info.Version, "commit", info.Commit, "go", info.GoVersion)

	transport, ready := setupTransport(cfg)

	h := hub.New(hub.Options{
		MaxConnections:         cfg.MaxConnections,
		MaxListenersPerChannel: cfg.MaxListenersPerChannel,
		IDPrefix:               cfg.ConnectionIDPrefix,
		HeartbeatInterval:      cfg.HeartbeatInterval,
	})

	channels, err := bridge.New(transport, channelsTopic)
	if err != nil {
		slog.Error("Failed to create channel bridge", "error", err)
		os.Exit(1)
	}
	bridge.BindChannels(channels, h.Broadcaster())

	lifecycle, err := bridge.New(transport, lifecycleTopic)
	if err != nil {
		slog.Error("Failed to create lifecycle bridge", "error", err)
		os.Exit(1)
	}

	adapter := bridge.NewAdapter(transport, stateTopicPrefix)
	states := state.NewRegistry(h.Broadcaster(), adapter, lifecycle)

	srv := server.New(cfg, h, states, nil, ready)
	done := runGracefulShutdown(srv, h, states, channels, adapter, transport)

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("Shutdown complete")
}
