package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/booking-service/internal/booking"
	"github.com/clinicdesk/booking-service/internal/identity"
	"github.com/clinicdesk/booking-service/pkg/logging"
)

type RouterConfig struct {
	Bookings *booking.Service
	Identity *identity.Service
	Issuer   *identity.SessionIssuer
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Logger   *logging.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Auth endpoints
	r.Post("/auth/register", registerHandler(cfg.Identity))
	r.Post("/auth/login", loginHandler(cfg.Identity, cfg.Issuer))
	r.Post("/auth/federated", federatedLoginHandler(cfg.Identity, cfg.Issuer))

	// Appointment endpoints, session required
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Issuer, cfg.Identity))

		r.Get("/appointments", listAppointmentsHandler(cfg.Bookings))
		r.Post("/appointments", createAppointmentHandler(cfg.Bookings))
		r.Patch("/appointments/{id}", editAppointmentHandler(cfg.Bookings))
		r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Bookings))
	})

	return r
}
