package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/infra/http/middleware"
)

// Routes agrupa o que o roteador precisa. Accounts e Limiter são opcionais.
type Routes struct {
	Payments *PaymentHandler
	Accounts *AccountHandler
	Limiter  *middleware.RateLimiter
}

func NewRouter(routes Routes) http.Handler {
	router := chi.NewRouter()

	// Middlewares básicos
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer) // Evita crash se der panic
	router.Use(chiMiddleware.Timeout(60 * time.Second))

	// Rota de Health Check (para o Docker saber se estamos vivos)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("Falha ao escrever resposta de health check")
		}
	})

	router.Group(func(r chi.Router) {
		if routes.Limiter != nil {
			r.Use(routes.Limiter.Handler)
		}
		r.Use(middleware.IdempotencyKey)
		r.Post("/payments", routes.Payments.Create)
	})
	router.Get("/payments/{id}", routes.Payments.Get)
	router.Get("/payments/{id}/audit", routes.Payments.Audit)

	if routes.Accounts != nil {
		router.Put("/accounts", routes.Accounts.Put)
		router.Get("/accounts/{id}", routes.Accounts.Get)
	}
	return router
}
