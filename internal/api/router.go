// Package api exposes the verifier over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/optimode/mxprobe/internal/ratelimit"
)

// NewRouter creates a chi.Mux with all routes and middleware configured.
// limiter and metrics are optional; when nil, verification is unthrottled
// and /metrics is not registered.
func NewRouter(v Verifier, log zerolog.Logger, limiter *ratelimit.Limiter, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))

	r.Get("/healthz", HealthzHandler())
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if limiter != nil {
			r.Use(RateLimitMiddleware(limiter))
		}
		r.Get("/verify", VerifyHandler(v))
	})

	return r
}
