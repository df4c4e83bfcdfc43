// Package session authenticates inbound requests against the identity
// provider's session cookie.
package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/Strob0t/StudioGate/internal/domain/user"
)

// ErrNotConfigured is returned when no provider URL or API key is set.
// Callers skip authentication entirely in that case.
var ErrNotConfigured = errors.New("session provider not configured")

// Authenticator validates (and if needed refreshes) the session carried by
// a request's cookies. It is called at most once per request.
type Authenticator interface {
	Authenticate(ctx context.Context, cookies []*http.Cookie) (*Result, error)
}

// Result is the outcome of one authentication.
type Result struct {
	// Principal is nil for anonymous callers.
	Principal *user.Principal
	// SetCookies must be written to the response on every exit path.
	SetCookies []*http.Cookie
}

// Anonymous reports whether no valid session was found.
func (r *Result) Anonymous() bool {
	return r == nil || r.Principal == nil
}

// Disabled is the Authenticator used when the provider is not configured.
type Disabled struct{}

// Authenticate always reports ErrNotConfigured.
func (Disabled) Authenticate(context.Context, []*http.Cookie) (*Result, error) {
	return &Result{}, ErrNotConfigured
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, cookies []*http.Cookie) (*Result, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, cookies []*http.Cookie) (*Result, error) {
	return f(ctx, cookies)
}
