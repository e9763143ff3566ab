// Package app wires the services of one process from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointments/internal/api"
	"github.com/hackgods/hospital-appointments/internal/appointment"
	"github.com/hackgods/hospital-appointments/internal/calendar"
	"github.com/hackgods/hospital-appointments/internal/clinic"
	"github.com/hackgods/hospital-appointments/internal/config"
	"github.com/hackgods/hospital-appointments/internal/db"
	redisclient "github.com/hackgods/hospital-appointments/internal/redis"
	"github.com/hackgods/hospital-appointments/internal/scheduler"
	"github.com/hackgods/hospital-appointments/internal/stats"
)

type App struct {
	Config config.Config
	Log    zerolog.Logger
	Clock  calendar.Clock

	Pool *pgxpool.Pool
	// Redis is nil when it could not be reached at startup; the process
	// then runs without slot locks, caching or reminder publishing.
	Redis *redis.Client

	Ledger       *appointment.PgLedger
	Clinic       *clinic.PgStore
	Appointments *appointment.Service
	Stats        *stats.Service
}

// New connects Postgres (required) and Redis (optional) and builds the
// domain services.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("postgres connection error: %w", err)
	}
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(ctx, redisclient.ClientOptions{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		Name:     "hospital-appointments",
	})
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, continuing without it")
		rdb = nil
	} else {
		log.Info().Msg("connected to Redis")
	}

	a := &App{
		Config: cfg,
		Log:    log,
		Clock:  calendar.SystemClock{Location: cfg.Location()},
		Pool:   pool,
		Redis:  rdb,
	}

	a.Ledger = appointment.NewPgLedger(pool)
	a.Clinic = clinic.NewPgStore(pool, a.Clock)

	var store clinic.Store = a.Clinic
	var locker redisclient.Locker = redisclient.NopLocker{}
	if rdb != nil {
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
		if cfg.DoctorCacheTTL > 0 {
			store = clinic.NewCachedStore(a.Clinic, rdb, cfg.DoctorCacheTTL, log)
		}
	}

	a.Appointments = appointment.NewService(a.Ledger, store, db.NewPgTransactor(pool), locker, appointment.Options{
		HorizonDays: cfg.BookingHorizonDays,
		Clock:       a.Clock,
		Logger:      log.With().Str("component", "booking").Logger(),
	})
	a.Stats = stats.NewService(
		stats.NewPgStore(pool),
		stats.NewBuilder(a.Ledger, store),
		a.Clock,
		log.With().Str("component", "stats").Logger(),
	)
	return a, nil
}

// runKeyRetention keeps a finished run's key past the longest run period,
// so a replica firing late sees the day as done.
const runKeyRetention = 25 * time.Hour

// Scheduler builds the lifecycle job runner. It is not started.
func (a *App) Scheduler() (*scheduler.Service, error) {
	var sink scheduler.ReminderSink = scheduler.NewLogSink(a.Log.With().Str("component", "reminders").Logger())
	var locker redisclient.Locker = redisclient.NopLocker{}
	if a.Redis != nil {
		locker = redisclient.NewRunLocker(a.Redis, a.Config.JobTimeout, runKeyRetention)
		if a.Config.ReminderChannel != "" {
			sink = scheduler.NewPublisherSink(redisclient.NewPublisher(a.Redis, a.Config.ReminderChannel), a.Log)
		}
	}

	jobs := scheduler.DefaultJobs(&a.Config, scheduler.Deps{
		Appointments:       a.Appointments,
		Ledger:             a.Ledger,
		Stats:              a.Stats,
		Patients:           a.Clinic,
		Sink:               sink,
		Clock:              a.Clock,
		StatsRetention:     a.Config.StatsRetention,
		InactivePatientAge: a.Config.InactivePatientAge,
	})

	return scheduler.New(jobs, scheduler.Options{
		Location: a.Config.Location(),
		Timeout:  a.Config.JobTimeout,
		Locker:   locker,
		Clock:    a.Clock,
		Logger:   a.Log,
	})
}

// RouterConfig fills the HTTP router's dependencies. sched may be nil.
func (a *App) RouterConfig(sched *scheduler.Service, version string) api.RouterConfig {
	cfg := api.RouterConfig{
		Appointments: a.Appointments,
		Stats:        a.Stats,
		Scheduler:    sched,
		Postgres:     a.Pool,
		JWTSecret:    []byte(a.Config.JWTSecret),
		Logger:       a.Log,
		Env:          a.Config.Env,
		Version:      version,
	}
	if a.Redis != nil {
		rdb := a.Redis
		cfg.Redis = api.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	return cfg
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("error closing redis")
		}
	}
	a.Pool.Close()
}
