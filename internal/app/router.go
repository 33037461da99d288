package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"outreach-auth/internal/auth"
	"outreach-auth/internal/maintenance"
	"outreach-auth/internal/observability"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type RouterDeps struct {
	Logger  *observability.Logger
	Auth    *auth.Handler
	Cleanup *maintenance.CleanupHandler
	Health  Pinger
	// TrustProxyHeaders lets forwarding headers override RemoteAddr. Session
	// rows and audit events record whichever address wins.
	TrustProxyHeaders bool
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if deps.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(observability.RecoverMiddleware(deps.Logger))
	r.Use(observability.RequestLoggingMiddleware(deps.Logger))

	r.Get("/health", healthHandler(deps.Health))
	r.Get("/internal/maintenance/cleanup", deps.Cleanup.Handle)
	r.Post("/internal/maintenance/cleanup", deps.Cleanup.Handle)

	deps.Auth.Mount(r)
	return r
}

func healthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := pinger.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
