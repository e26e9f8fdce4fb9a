package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careloop/scheduling/internal/booking"
	"github.com/careloop/scheduling/internal/ws"
)

type RouterConfig struct {
	Service     *booking.Service
	Calendar    *ws.Handler
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Log         zerolog.Logger
	Env         string
	Version     string
	DefaultDays int
	MaxDays     int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/doctors/{doctorID}/availability", getAvailabilityHandler(cfg.Service, cfg.DefaultDays, cfg.MaxDays))
		r.Put("/doctors/{doctorID}/schedule", updateScheduleHandler(cfg.Service))

		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/confirm", transitionHandler(cfg.Service.Confirm))
		r.Post("/appointments/{id}/checkin", transitionHandler(cfg.Service.CheckIn))
		r.Post("/appointments/{id}/complete", transitionHandler(cfg.Service.Complete))
		r.Post("/appointments/{id}/no-show", transitionHandler(cfg.Service.MarkNoShow))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
	})

	if cfg.Calendar != nil {
		r.Get("/ws/calendar", cfg.Calendar.ServeCalendar)
	}

	return r
}
