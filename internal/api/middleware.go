package api

import (
	"log/slog"
	"net/http"

	"github.com/voltsight/twin-gateway/internal/auth"
	"github.com/voltsight/twin-gateway/internal/metrics"
	"github.com/voltsight/twin-gateway/internal/utils"
)

const (
	msgUnauthorized = "Unauthorized: No token provided."
	msgForbidden    = "Forbidden: Invalid token."
)

// requireIdentity verifies the bearer token before any downstream handler runs.
func requireIdentity(logger *slog.Logger, verifier auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.Authenticate(r.Context(), verifier, r.Header.Get("Authorization"))
			if err != nil {
				kind := utils.KindOf(err)
				metrics.ObserveAuthFailure(kind.String())
				if kind == utils.KindUnauthenticated {
					writeText(w, http.StatusUnauthorized, msgUnauthorized)
					return
				}
				logger.Warn("token verification failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				writeText(w, http.StatusForbidden, msgForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}
