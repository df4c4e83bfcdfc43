package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/StudioGate/internal/domain"
	"github.com/Strob0t/StudioGate/internal/domain/user"
	"github.com/Strob0t/StudioGate/internal/port/database"
	"github.com/Strob0t/StudioGate/internal/routing"
)

// LandingService decides where a caller goes after signing in.
type LandingService struct {
	guard    *routing.Guard
	profiles database.ProfileStore
	cache    *RoleCache
	lookups  singleflight.Group
}

// NewLandingService creates a landing service. profiles and cache may be
// nil, in which case the session's role claim is used directly.
func NewLandingService(guard *routing.Guard, profiles database.ProfileStore, cache *RoleCache) *LandingService {
	return &LandingService{guard: guard, profiles: profiles, cache: cache}
}

// Destination returns the redirect target for p. Anonymous callers go
// to the login page, keeping a safe redirectTo. Signed-in callers go to
// redirectTo when it is a safe local path, else to their role's portal.
func (s *LandingService) Destination(ctx context.Context, p *user.Principal, redirectTo string) string {
	safe := SafeRedirect(redirectTo)
	if p == nil {
		if safe {
			return s.guard.LoginURL(redirectTo)
		}
		return s.guard.LoginPath()
	}
	if safe {
		return redirectTo
	}
	role := s.RoleOf(ctx, p)
	if !role.Valid() {
		slog.InfoContext(ctx, "unknown portal role, using default route", "user_id", p.UserID, "role", role)
	}
	return routing.RouteForRole(string(role))
}

// RoleOf resolves p's role: cache, then the profile store, then the
// session claim. It never fails; the role router maps "" to the default.
func (s *LandingService) RoleOf(ctx context.Context, p *user.Principal) user.Role {
	if s.profiles == nil {
		return p.Role
	}
	if s.cache != nil {
		if role, ok := s.cache.Get(ctx, p.UserID); ok {
			return role
		}
	}

	v, err, _ := s.lookups.Do(p.UserID, func() (any, error) {
		role, err := s.profiles.RoleOf(ctx, p.UserID)
		if err != nil {
			return user.Role(""), err
		}
		if s.cache != nil {
			s.cache.Set(ctx, p.UserID, role)
		}
		return role, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.InfoContext(ctx, "profile not found, using session role", "user_id", p.UserID)
		} else {
			slog.WarnContext(ctx, "profile lookup failed, using session role", "user_id", p.UserID, "error", err)
		}
		return p.Role
	}
	return v.(user.Role)
}

// LoginPath returns the sign-in page anonymous callers are sent to.
func (s *LandingService) LoginPath() string {
	return s.guard.LoginPath()
}

// SafeRedirect reports whether target is a same-origin path: it starts
// with "/" but not "//", carries no backslash and no control character
// (raw or percent-encoded), and parses without a scheme or host. Browsers
// drop tab and newline from URLs, so "/\t/evil" would land on "//evil".
func SafeRedirect(target string) bool {
	if !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") ||
		strings.Contains(target, `\`) ||
		hasControl(target) {
		return false
	}
	decoded, err := url.PathUnescape(target)
	if err != nil || hasControl(decoded) || strings.Contains(decoded, `\`) {
		return false
	}
	u, err := url.Parse(target)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func hasControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c == 0x7f {
			return true
		}
	}
	return false
}
