package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/StudioGate/internal/domain/tenant"
	"github.com/Strob0t/StudioGate/internal/domain/user"
	"github.com/Strob0t/StudioGate/internal/routing"
	"github.com/Strob0t/StudioGate/internal/service"
	"github.com/Strob0t/StudioGate/internal/session"
)

const readyTimeout = 2 * time.Second

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// LandingRecorder counts post-login redirects by destination kind.
type LandingRecorder interface {
	RecordLanding(ctx context.Context, target string)
}

// Handlers holds the edge API endpoints.
type Handlers struct {
	Directory *tenant.Directory
	Resolver  *routing.Resolver
	Auth      session.Authenticator
	Landing   *service.LandingService
	Recorder  LandingRecorder           // optional
	Checks    map[string]ReadinessCheck // optional, keyed by dependency name
}

// Health reports liveness. It never consults dependencies.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Ready runs every readiness check and answers 503 if any fails.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Status: "ready", Checks: make(map[string]string, len(h.Checks))}
	code := http.StatusOK

	for name, check := range h.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			slog.WarnContext(r.Context(), "readiness check failed", "check", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, code, resp)
}

// CurrentTenant returns the branding of the tenant serving the request
// host, or of the default tenant when the host is not mapped.
func (h *Handlers) CurrentTenant(w http.ResponseWriter, r *http.Request) {
	slug, _ := h.Resolver.ResolveTenantForHost(r.Host)
	t := h.Directory.Current(slug)
	w.Header().Set("Vary", "Host")
	writeJSON(w, http.StatusOK, t)
}

// Continue sends a freshly signed-in caller to their destination: a safe
// redirectTo, else the portal of their role. Callers without a session go
// back to the login page.
func (h *Handlers) Continue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.Auth.Authenticate(ctx, r.Cookies())
	if res != nil {
		for _, c := range res.SetCookies {
			http.SetCookie(w, c)
		}
	}

	var p *user.Principal
	switch {
	case err == nil:
		p = res.Principal
	case errors.Is(err, session.ErrNotConfigured):
	default:
		slog.WarnContext(ctx, "landing authentication failed", "error", err)
	}

	redirectTo := r.URL.Query().Get("redirectTo")
	target := h.Landing.Destination(ctx, p, redirectTo)
	if h.Recorder != nil {
		h.Recorder.RecordLanding(ctx, landingKind(target, redirectTo, h.Landing))
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// landingKind buckets a destination for metrics: "login", "redirect_to",
// or the portal route itself.
func landingKind(target, redirectTo string, s *service.LandingService) string {
	switch {
	case strings.HasPrefix(target, s.LoginPath()):
		return "login"
	case redirectTo != "" && target == redirectTo:
		return "redirect_to"
	default:
		return target
	}
}
