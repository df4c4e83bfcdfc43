package routing

import (
	"net/url"
	"strings"

	"github.com/Strob0t/StudioGate/internal/domain/user"
)

// DefaultLoginPath is where anonymous callers are sent from portal areas.
const DefaultLoginPath = "/login"

// DefaultProtectedPrefixes are the role portal areas that need a session.
var DefaultProtectedPrefixes = []string{
	"/diretora",
	"/professor",
	"/monitor",
	"/aluno",
	"/responsavel",
	"/superadmin",
}

// Decision is the guard outcome for one request. The zero value allows.
type Decision struct {
	// RedirectTo is the login URL when the request must be redirected.
	RedirectTo string
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.RedirectTo == ""
}

// Guard decides whether a path requires a session. Matching is by
// case-sensitive string prefix on the path only, never the method.
type Guard struct {
	loginPath string
	prefixes  []string
}

// NewGuard returns a guard for the given login path and protected
// prefixes. Empty arguments select the defaults.
func NewGuard(loginPath string, prefixes []string) *Guard {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	if len(prefixes) == 0 {
		prefixes = DefaultProtectedPrefixes
	}
	return &Guard{loginPath: loginPath, prefixes: append([]string(nil), prefixes...)}
}

// LoginPath returns the configured login path.
func (g *Guard) LoginPath() string {
	return g.loginPath
}

// IsProtected reports whether path falls inside a portal area.
func (g *Guard) IsProtected(path string) bool {
	if g.isLogin(path) {
		return false
	}
	for _, p := range g.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Decide redirects anonymous callers away from protected paths, keeping
// the original destination in the redirectTo query parameter.
func (g *Guard) Decide(path string, p *user.Principal) Decision {
	return g.DecideFor(path, path, p)
}

// DecideFor checks checkPath but records target as the post-login
// destination. The pipeline uses it for slug-prefixed paths, where the
// portal part is checked without the slug and the full external path is
// what the user should return to.
func (g *Guard) DecideFor(checkPath, target string, p *user.Principal) Decision {
	if p != nil || !g.IsProtected(checkPath) {
		return Decision{}
	}
	return Decision{RedirectTo: g.LoginURL(target)}
}

// LoginURL returns the login path with redirectTo set to target.
func (g *Guard) LoginURL(target string) string {
	if target == "" {
		return g.loginPath
	}
	q := url.Values{"redirectTo": {target}}
	return g.loginPath + "?" + q.Encode()
}

func (g *Guard) isLogin(path string) bool {
	return path == g.loginPath || strings.HasPrefix(path, g.loginPath+"/")
}
