package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/hospital-appointments/internal/app"
	"github.com/hackgods/hospital-appointments/internal/config"
	"github.com/hackgods/hospital-appointments/internal/observability"
	"github.com/hackgods/hospital-appointments/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logger := observability.InitLogger("scheduler", cfg.Env)
	logger.Info().
		Str("env", cfg.Env).
		Str("timezone", cfg.Timezone).
		Msg("scheduler starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	sched, err := a.Scheduler()
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler setup failed")
	}

	// Catch up on yesterday right away in case the process was down at
	// midnight; both jobs are idempotent.
	for _, job := range []string{scheduler.JobAppointmentCleanup, scheduler.JobDailyStats} {
		if _, err := sched.RunNow(rootCtx, job); err != nil {
			logger.Error().Err(err).Str("job", job).Msg("startup run failed")
		}
	}

	sched.Start()
	for _, st := range sched.Status() {
		ev := logger.Info().Str("job", st.Name).Str("schedule", st.Schedule)
		if st.NextRun != nil {
			ev = ev.Time("next_run", *st.NextRun)
		}
		ev.Msg("job scheduled")
	}

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping scheduler")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("scheduler stop error")
	}
}
