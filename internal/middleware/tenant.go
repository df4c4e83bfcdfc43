package middleware

import (
	"context"
)

type tenantCtxKey struct{}

// WithTenant stores the resolved tenant slug in ctx.
func WithTenant(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, slug)
}

// TenantFromContext returns the tenant slug resolved for this request.
// ok is false when the edge resolved no tenant.
func TenantFromContext(ctx context.Context) (slug string, ok bool) {
	slug, ok = ctx.Value(tenantCtxKey{}).(string)
	return slug, ok && slug != ""
}
