package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chasescene/internal/config"
	"chasescene/internal/recorder"
	"chasescene/internal/shared/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHASE_CONFIG"), "path to a JSON, YAML or TOML config file")
	flag.Parse()

	boot := logger.New("sceneserver")
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("config load failed")
	}
	log := logger.NewWithWriter(os.Stdout, "sceneserver", cfg.LogLevel)

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec, err = recorder.Open(cfg.Recorder.Path, log.With().Str("component", "recorder").Logger(),
			recorder.Options{Every: cfg.Recorder.Every})
		if err != nil {
			log.Fatal().Err(err).Msg("recorder open failed")
		}
	}

	s, err := newServer(cfg, log, rec)
	if err != nil {
		log.Fatal().Err(err).Msg("scene setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.runSimulationLoop(ctx)
	go s.runReplicationLoop(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("scene", cfg.Scene.ID).
		Int("tick_hz", cfg.Server.TickHz).
		Int("replication_hz", cfg.Server.ReplicationHz).
		Bool("recording", rec != nil).
		Msg("scene server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.close(closeCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("scene server stopped")
}
