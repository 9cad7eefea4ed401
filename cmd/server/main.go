package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Signal/internal/adapters/http"
	"github.com/dkeye/Signal/internal/app"
	"github.com/dkeye/Signal/internal/app/orch"
	"github.com/dkeye/Signal/internal/config"
	"github.com/dkeye/Signal/internal/engine"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	eng, err := engine.New(engine.Options{
		ListenIps: cfg.ListenIps,
		MinPort:   cfg.RtcMinPort,
		MaxPort:   cfg.RtcMaxPort,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media engine")
	}
	defer eng.Close()

	// A dead engine leaves no routing domain consistent; shut the whole
	// process down rather than limp on per-session.
	eng.OnFatal(func(err error) {
		log.Error().Err(err).Msg("media engine died, shutting down")
		cancel()
	})

	o := &orch.Orchestrator{
		Registry:    app.NewRegistry(),
		Producers:   app.NewProducerIndex(),
		Engine:      eng,
		MediaCodecs: engine.DefaultMediaCodecs(cfg.StartBitrate),
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Signal server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
