package middleware

import (
	"context"

	"github.com/Strob0t/StudioGate/internal/domain/user"
)

type principalCtxKey struct{}

// WithPrincipal stores the authenticated caller in ctx.
func WithPrincipal(ctx context.Context, p *user.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext returns the caller, or nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) *user.Principal {
	p, _ := ctx.Value(principalCtxKey{}).(*user.Principal)
	return p
}
