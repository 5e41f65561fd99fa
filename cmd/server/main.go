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

	router "github.com/teamhub/callwire/internal/adapters/http"
	wssignal "github.com/teamhub/callwire/internal/adapters/signal"
	"github.com/teamhub/callwire/internal/app"
	"github.com/teamhub/callwire/internal/app/sfu"
	"github.com/teamhub/callwire/internal/config"
	"github.com/teamhub/callwire/internal/core"
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
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	clock := app.SystemClock()

	channel := core.NewGroupChannel()
	registry := app.NewSessionRegistry(clock)
	users := app.NewUserRegistry()
	presence := app.NewPresenceTracker(clock, cfg.PresenceWindow)
	relay := app.NewSignalRelay(channel)

	sfuClient := sfu.NewClient(cfg.SFUBaseURL, cfg.SFUTimeout)
	bridge := sfu.NewMediaUnitBridge(sfuClient, relay)

	coordinator := app.NewCallCoordinator(registry, channel, bridge, clock)

	limiter := wssignal.NewCallRateLimiter(cfg.CallRateLimit, cfg.CallRateInterval)
	ctl := wssignal.NewController(&wssignal.Services{
		Calls:    coordinator,
		Relay:    relay,
		Presence: presence,
		Users:    users,
		Bridge:   bridge,
		Channel:  channel,
		Policy:   app.SimplePolicy{},
	}, limiter)

	r := router.SetupRouter(ctx, cfg, ctl, registry, bridge)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("sfu", cfg.SFUBaseURL).Msg("callwire server started")
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
