package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointments/internal/appointment"
	"github.com/hackgods/hospital-appointments/internal/auth"
	"github.com/hackgods/hospital-appointments/internal/scheduler"
	"github.com/hackgods/hospital-appointments/internal/stats"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Stats        *stats.Service
	// Scheduler is optional; its routes are mounted only when set.
	Scheduler *scheduler.Service
	Postgres  Pinger
	Redis     Pinger
	JWTSecret []byte
	Logger    zerolog.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(auth.Middleware(cfg.JWTSecret))

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	staffRoles := auth.RequireRole(auth.RoleAdmin, auth.RoleSubAdmin, auth.RoleStaff, auth.RoleDoctor)
	anyRole := auth.RequireRole(auth.RoleAdmin, auth.RoleSubAdmin, auth.RoleStaff, auth.RoleDoctor, auth.RolePatient)
	adminOnly := auth.RequireRole(auth.RoleAdmin)
	management := auth.RequireRole(auth.RoleAdmin, auth.RoleSubAdmin)

	// Appointment endpoints
	r.Post("/appointments/book", bookAppointmentHandler(cfg.Appointments))
	r.With(staffRoles).Get("/appointments", listAppointmentsHandler(cfg.Appointments))
	r.With(adminOnly).Post("/appointments/mark-missed", markMissedHandler(cfg.Appointments))
	r.With(anyRole).Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
	r.With(staffRoles).Put("/appointments/{id}/status", updateStatusHandler(cfg.Appointments))

	// Patient self-service, keyed by the human-readable patient ID
	r.Get("/patients/{patientId}/appointments", patientHistoryHandler(cfg.Appointments))
	r.Delete("/patients/{patientId}/appointments/{id}", cancelAppointmentHandler(cfg.Appointments))

	// Availability
	r.Get("/doctors/{id}/slots", openSlotsHandler(cfg.Appointments))
	r.Get("/doctors/{id}/next-available", nextAvailableHandler(cfg.Appointments))

	// Statistics
	r.Route("/stats", func(r chi.Router) {
		r.Use(management)
		r.Get("/daily", listStatsHandler(cfg.Stats))
		r.Get("/daily/{date}", getStatsHandler(cfg.Stats))
		r.Get("/latest", latestStatsHandler(cfg.Stats))
		r.Get("/summary", statsSummaryHandler(cfg.Stats))
		r.With(adminOnly).Post("/generate", generateStatsHandler(cfg.Stats))
	})

	if cfg.Scheduler != nil {
		r.Route("/scheduler", func(r chi.Router) {
			r.With(management).Get("/status", schedulerStatusHandler(cfg.Scheduler))
			r.With(adminOnly).Post("/jobs/{name}/run", runJobHandler(cfg.Scheduler))
		})
	}

	return r
}
