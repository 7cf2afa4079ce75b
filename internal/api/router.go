package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careportal/booking-core/internal/booking"
	"github.com/careportal/booking-core/internal/payment"
)

type RouterConfig struct {
	Booking  *booking.Service
	Payments *payment.Service
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	v := newValidator()

	r.Get("/doctors/{id}/slots", listSlotsHandler(cfg.Booking, cfg.Logger))
	r.Post("/bookings", createBookingHandler(cfg.Booking, v, cfg.Logger))
	r.Post("/transactions", createTransactionHandler(cfg.Payments, v, cfg.Logger))

	return r
}
