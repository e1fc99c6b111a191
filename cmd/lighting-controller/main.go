package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dmxctl/dmxctl-server/internal/api"
	"github.com/dmxctl/dmxctl-server/internal/config"
	"github.com/dmxctl/dmxctl-server/internal/controller"
	"github.com/dmxctl/dmxctl-server/internal/events"
	"github.com/dmxctl/dmxctl-server/internal/server"
	"github.com/dmxctl/dmxctl-server/internal/storage"
	"github.com/dmxctl/dmxctl-server/internal/transport"
)

func main() {
	var configPath = flag.String("config", "config/lighting-controller.yml", "configuration file path")
	var validateOnly = flag.Bool("validate", false, "validate configuration and exit")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if *validateOnly {
		fmt.Printf("configuration OK: transport=%s tick_rate=%d rdm=%v\n",
			cfg.DMX.Transport, cfg.DMX.TickRate, cfg.RDM.Enabled)
		return
	}

	log.Info().Str("config_path", *configPath).Str("transport", cfg.DMX.Transport).
		Msg("Lighting controller starting")

	// Store: Postgres when a DSN is configured, otherwise in-memory.
	var store storage.Store
	if cfg.Database.DSN != "" {
		store, err = storage.NewPostgresStore(cfg.Database.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
	} else {
		log.Warn().Msg("No database configured, patch will not survive restarts")
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	bus := events.NewBus()

	tr, err := transport.New(cfg, bus)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open DMX transport")
	}

	ctrl := controller.New(cfg, store, tr, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start controller")
	}

	// NATS bridge is optional.
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()

		bridge := server.NewNATSBridge(nc, ctrl, bus)
		go func() {
			if err := bridge.Start(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("NATS bridge stopped")
			}
		}()
	}

	restServer := api.NewRESTServer(cfg, ctrl)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := restServer.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("REST API server stopped")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("REST API shutdown failed")
	}
	if err := ctrl.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Controller shutdown failed")
	}

	log.Info().Msg("Lighting controller stopped")
}
