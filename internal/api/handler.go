package api

import (
	"context"
	"net/http"

	"github.com/optimode/mxprobe"
	"github.com/optimode/mxprobe/internal/logger"
)

// Verifier is the part of *mxprobe.Verifier the handlers need.
type Verifier interface {
	Verify(ctx context.Context, address string) (mxprobe.Outcome, error)
}

// HealthzHandler always reports ok.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// VerifyHandler handles GET /v1/verify?address=. A failed verification is
// still a 200; the outcome carries the verdict.
func VerifyHandler(v Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if address == "" {
			respondError(w, http.StatusBadRequest, "address query parameter is required")
			return
		}

		outcome, err := v.Verify(r.Context(), address)
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("verifier misconfigured")
			respondError(w, http.StatusInternalServerError, "verifier unavailable")
			return
		}
		respondJSON(w, http.StatusOK, outcome)
	}
}
