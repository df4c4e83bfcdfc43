package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/StudioGate/internal/middleware"
)

// MountRoutes registers the edge API and, on every other path, the edge
// pipeline in front of the upstream proxy. limiter may be nil.
func MountRoutes(r chi.Router, h *Handlers, edge *middleware.Edge, limiter *middleware.RateLimiter, proxy http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(SecurityHeaders)
		r.Get("/health", h.Health)
		r.Get("/health/ready", h.Ready)
		r.Get("/edge/v1/tenant", h.CurrentTenant)

		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Handler)
			}
			r.Get("/auth/continue", h.Continue)
		})
	})

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Handler)
		}
		r.Use(edge.Handler)
		r.Handle("/*", proxy)
	})
}
