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

	router "github.com/dkeye/intercom/internal/adapters/http"
	"github.com/dkeye/intercom/internal/admission"
	"github.com/dkeye/intercom/internal/channel"
	"github.com/dkeye/intercom/internal/client"
	"github.com/dkeye/intercom/internal/config"
	"github.com/dkeye/intercom/internal/media"
	"github.com/dkeye/intercom/internal/routing"
	"github.com/dkeye/intercom/internal/signaling"
)

// fatalExitCode distinguishes a Media Worker death or fatal init error
// from a clean shutdown, so an external supervisor can tell them apart
// (§6: "nonzero on fatal initialization error or Media Worker death").
const fatalExitCode = 1

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(fatalExitCode)
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.LogLevel))

	channels := channel.New()
	clients := client.New()
	adm := admission.New(cfg.ServerSecret, cfg.AdminSecret, clients)

	worker, err := media.New(media.Config{
		ListenIP:    cfg.MediaListenIP,
		AnnouncedIP: cfg.MediaAnnouncedIP,
		PortMin:     uint16(cfg.MediaPortMin),
		PortMax:     uint16(cfg.MediaPortMax),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "main").Msg("failed to start media worker")
		os.Exit(fatalExitCode)
	}

	router_ := routing.New(channels, clients, worker, cfg.SpeakingHoldOff)

	sig := signaling.NewServer(signaling.Config{
		RequestTimeout:    cfg.RequestTimeout,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, adm, channels, clients, worker, router_)

	// The routing core's Sink is the signaling server: it fans out the
	// events the router decides to raise. Attach it now that both exist.
	router_.SetSink(sig)

	go router_.RunEventLoop()
	go router_.RunSpeakingLoop(cfg.SpeakingThresholdDB, cfg.SpeakingInterval)

	r := router.SetupRouter(cfg, sig)
	addr := fmt.Sprintf(":%d", cfg.SignalingPort)

	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		log.Info().Str("module", "main").Str("addr", addr).Msg("intercom server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("module", "main").Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Str("module", "main").Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("server forced to shutdown")
	}
	worker.Close()
	log.Info().Str("module", "main").Msg("server exited gracefully")
}

func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}
