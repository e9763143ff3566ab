package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/hospital-appointments/internal/api"
	"github.com/hackgods/hospital-appointments/internal/app"
	"github.com/hackgods/hospital-appointments/internal/config"
	"github.com/hackgods/hospital-appointments/internal/observability"
	"github.com/hackgods/hospital-appointments/internal/scheduler"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logger := observability.InitLogger("api-server", cfg.Env)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	var sched *scheduler.Service
	if cfg.SchedulerEnabled {
		sched, err = a.Scheduler()
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler setup failed")
		}
		sched.Start()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(a.RouterConfig(sched, version)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("scheduler stop error")
		}
	}
}
