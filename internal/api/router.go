package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medlink/doctor-referrals/internal/referral"
)

type RouterConfig struct {
	Service   *referral.Service
	PgPool    *pgxpool.Pool // nil when running on the in-memory store
	Redis     *redis.Client // nil when running without Redis
	JWTSecret []byte
	Env       string
	Version   string
	Logger    zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Referral endpoints, all behind auth
	r.Route("/referrals", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/", createReferralHandler(cfg.Service))
		r.Get("/made", listMadeHandler(cfg.Service))
		r.Get("/received", listReceivedHandler(cfg.Service))
		r.Get("/mine", listMineHandler(cfg.Service))
		r.Get("/patient/{patientID}", patientHistoryHandler(cfg.Service))
		r.Get("/stats/summary", statsHandler(cfg.Service))

		r.Get("/{id}", getReferralHandler(cfg.Service))
		r.Post("/{id}/accept", acceptReferralHandler(cfg.Service))
		r.Post("/{id}/decline", declineReferralHandler(cfg.Service))
		r.Post("/{id}/link-appointment", linkAppointmentHandler(cfg.Service))
		r.Post("/{id}/complete", completeReferralHandler(cfg.Service))
		r.Post("/{id}/cancel", cancelReferralHandler(cfg.Service))
		r.Post("/{id}/viewed", markViewedHandler(cfg.Service))
	})

	return r
}
