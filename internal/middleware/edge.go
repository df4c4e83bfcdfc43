package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/Strob0t/StudioGate/internal/domain/user"
	"github.com/Strob0t/StudioGate/internal/logger"
	"github.com/Strob0t/StudioGate/internal/routing"
	"github.com/Strob0t/StudioGate/internal/session"
)

// Headers set on proxied requests. Client-supplied copies are dropped.
const (
	HeaderTenantSlug = "X-Tenant-Slug"
	HeaderUserID     = "X-User-ID"
)

// Pipeline outcomes, as recorded by a DecisionRecorder.
const (
	OutcomeExcluded = "excluded"
	OutcomePass     = "pass"
	OutcomeRewrite  = "rewrite"
	OutcomeRedirect = "redirect"
	OutcomeFailOpen = "fail_open"
)

// DecisionRecorder receives one outcome per request.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, outcome, tenant string)
	RecordAuthFailure(ctx context.Context)
}

// Edge is the per-request routing pipeline in front of the upstream app:
// resolve the tenant, authenticate, guard the portals, rewrite the path.
type Edge struct {
	resolver *routing.Resolver
	auth     session.Authenticator
	guard    *routing.Guard
	recorder DecisionRecorder
	log      *slog.Logger
}

// NewEdge creates the pipeline. recorder may be nil.
func NewEdge(resolver *routing.Resolver, auth session.Authenticator, guard *routing.Guard, recorder DecisionRecorder, log *slog.Logger) *Edge {
	if log == nil {
		log = slog.Default()
	}
	return &Edge{resolver: resolver, auth: auth, guard: guard, recorder: recorder, log: log}
}

// outcome is filled in step by step so the cookies gathered before a
// failure still reach the response.
type outcome struct {
	slug     string
	cookies  []*http.Cookie
	redirect string
	req      *http.Request
}

// Handler returns the pipeline as middleware. Any error or panic while
// evaluating a request is logged and the original request is forwarded
// unmodified. Authentication is a convenience here; the upstream enforces
// authorization for every data-changing action.
func (e *Edge) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if routing.IsExcluded(r.URL.Path) {
			e.record(r.Context(), OutcomeExcluded, "")
			next.ServeHTTP(w, r)
			return
		}

		out, err := e.evaluate(r)
		for _, c := range out.cookies {
			http.SetCookie(w, c)
		}

		switch {
		case err != nil:
			e.log.ErrorContext(r.Context(), "edge pipeline failed, forwarding unmodified",
				"path", r.URL.Path, "host", r.Host, "error", err)
			e.record(r.Context(), OutcomeFailOpen, out.slug)
			next.ServeHTTP(w, r)
		case out.redirect != "":
			e.record(r.Context(), OutcomeRedirect, out.slug)
			http.Redirect(w, r, out.redirect, http.StatusTemporaryRedirect)
		default:
			kind := OutcomePass
			if out.req.URL.Path != r.URL.Path {
				kind = OutcomeRewrite
			}
			e.record(out.req.Context(), kind, out.slug)
			next.ServeHTTP(w, out.req)
		}
	})
}

// Explanation describes what the pipeline does with one request.
type Explanation struct {
	Outcome  string `json:"outcome"`
	Tenant   string `json:"tenant,omitempty"`
	Path     string `json:"path,omitempty"` // path forwarded upstream
	Redirect string `json:"redirect,omitempty"`
}

// Explain evaluates r without forwarding it. On a pipeline failure the
// returned explanation is the fail-open outcome along with the error.
func (e *Edge) Explain(r *http.Request) (Explanation, error) {
	if routing.IsExcluded(r.URL.Path) {
		return Explanation{Outcome: OutcomeExcluded, Path: r.URL.Path}, nil
	}
	out, err := e.evaluate(r)
	switch {
	case err != nil:
		return Explanation{Outcome: OutcomeFailOpen, Tenant: out.slug, Path: r.URL.Path}, err
	case out.redirect != "":
		return Explanation{Outcome: OutcomeRedirect, Tenant: out.slug, Redirect: out.redirect}, nil
	case out.req.URL.Path != r.URL.Path:
		return Explanation{Outcome: OutcomeRewrite, Tenant: out.slug, Path: out.req.URL.Path}, nil
	default:
		return Explanation{Outcome: OutcomePass, Tenant: out.slug, Path: r.URL.Path}, nil
	}
}

func (e *Edge) evaluate(r *http.Request) (out *outcome, err error) {
	out = &outcome{}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()

	ctx := r.Context()
	path := r.URL.Path

	slug, ok := e.resolver.ResolveTenantForHost(r.Host)
	if !ok {
		slug, _ = e.resolver.ResolveTenantFromPath(path)
	}
	out.slug = slug

	var p *user.Principal
	res, authErr := e.auth.Authenticate(ctx, r.Cookies())
	if res != nil {
		out.cookies = res.SetCookies
	}
	switch {
	case authErr == nil:
		p = res.Principal
		// A slug-prefixed path is checked as the portal path it names; the
		// redirect still targets what the browser asked for.
		checkPath := path
		if slug != "" {
			checkPath = routing.TrimSlugPrefix(path, slug)
		}
		if d := e.guard.DecideFor(checkPath, path, p); !d.Allowed() {
			out.redirect = d.RedirectTo
			return out, nil
		}
	case errors.Is(authErr, session.ErrNotConfigured):
		e.log.DebugContext(ctx, "session provider not configured, skipping auth", "path", path)
	default:
		if e.recorder != nil {
			e.recorder.RecordAuthFailure(ctx)
		}
		return out, fmt.Errorf("authenticate: %w", authErr)
	}

	ctx = WithPrincipal(ctx, p)
	if slug != "" {
		ctx = WithTenant(ctx, slug)
		ctx = logger.WithTenant(ctx, slug)
	}
	out.req = rewriteRequest(r.WithContext(ctx), slug)
	return out, nil
}

// rewriteRequest returns r with its path moved into the tenant namespace.
// The URL is copied so the caller's request is left untouched.
func rewriteRequest(r *http.Request, slug string) *http.Request {
	internal := routing.Rewrite(r.URL.Path, slug)
	if internal == r.URL.Path {
		return r
	}
	u := *r.URL
	u.Path = internal
	if u.RawPath != "" {
		u.RawPath = routing.Rewrite(u.RawPath, slug)
	}
	r.URL = &u
	return r
}

func (e *Edge) record(ctx context.Context, kind, slug string) {
	if e.recorder != nil {
		e.recorder.RecordDecision(ctx, kind, slug)
	}
}

// SetIdentityHeaders replaces the upstream identity headers on h with the
// values carried by ctx.
func SetIdentityHeaders(ctx context.Context, h http.Header) {
	h.Del(HeaderTenantSlug)
	h.Del(HeaderUserID)
	if slug, ok := TenantFromContext(ctx); ok {
		h.Set(HeaderTenantSlug, slug)
	}
	if p := PrincipalFromContext(ctx); p != nil {
		h.Set(HeaderUserID, p.UserID)
	}
}
