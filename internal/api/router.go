package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/voltsight/twin-gateway/internal/auth"
	"github.com/voltsight/twin-gateway/internal/metrics"
)

// NewRouter wires the public and authenticated routes.
func NewRouter(logger *slog.Logger, handlers *Handlers, verifier auth.TokenVerifier, allowedOrigins []string) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handlers.Health)
	r.Get("/api/batteries", handlers.ListBatteries)
	r.Get("/api/batteries/{id}", handlers.GetBattery)

	r.Group(func(r chi.Router) {
		r.Use(requireIdentity(logger, verifier))
		r.Post("/api/analyze-guided", handlers.AnalyzeGuided)
		r.Get("/api/analyses", handlers.ListAnalyses)
	})

	return r
}

// instrument records request counts and latency under the matched route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveHTTPRequest(r.Method, route, status, time.Since(start))
	})
}
