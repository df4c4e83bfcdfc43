package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/StudioGate/internal/config"
	"github.com/Strob0t/StudioGate/internal/domain/user"
	"github.com/Strob0t/StudioGate/internal/resilience"
)

// expirySkew refreshes tokens slightly before they lapse.
const expirySkew = 10 * time.Second

// errRejected marks a 4xx answer from the provider: the token or refresh
// token is no longer valid. It never trips the breaker.
var errRejected = errors.New("session rejected by provider")

// Client authenticates against a Supabase-compatible auth API.
type Client struct {
	baseURL    string
	anonKey    string
	secret     []byte
	timeout    time.Duration
	cookies    cookieWriter
	httpClient *http.Client
	breaker    *resilience.Breaker
	inFlight   *resilience.Bulkhead
	keys       SecretSource
	refreshes  singleflight.Group
	now        func() time.Time
}

// NewClient creates a client from cfg. It returns ErrNotConfigured when the
// provider URL or API key is missing.
func NewClient(cfg config.Session) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	name := cfg.CookieName
	if name == "" {
		name = CookieNameFor(cfg.URL)
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		timeout: cfg.Timeout,
		cookies: cookieWriter{name: name, secure: cfg.Secure},
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		inFlight: resilience.NewBulkhead(cfg.MaxInFlight),
		now:      time.Now,
	}
	if cfg.JWTSecret != "" {
		c.secret = []byte(cfg.JWTSecret)
	}
	return c, nil
}

// SetBreaker attaches a circuit breaker to all outgoing provider calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// SecretSource supplies rotated provider credentials by name.
type SecretSource interface {
	Get(key string) string
}

// Secret names looked up in a SecretSource.
const (
	SecretAnonKey   = "SUPABASE_ANON_KEY"
	SecretJWTSecret = "SUPABASE_JWT_SECRET"
)

// SetSecrets makes the client read its API key and JWT secret from src on
// every call. Names missing from src keep the configured values.
func (c *Client) SetSecrets(src SecretSource) {
	c.keys = src
}

func (c *Client) apiKey() string {
	if c.keys != nil {
		if v := c.keys.Get(SecretAnonKey); v != "" {
			return v
		}
	}
	return c.anonKey
}

func (c *Client) jwtSecret() []byte {
	if c.keys != nil {
		if v := c.keys.Get(SecretJWTSecret); v != "" {
			return []byte(v)
		}
	}
	return c.secret
}

// LocalVerify reports whether access tokens are currently checked against
// a JWT secret instead of the provider's user endpoint.
func (c *Client) LocalVerify() bool {
	return c.jwtSecret() != nil
}

// CookieName returns the session cookie base name.
func (c *Client) CookieName() string {
	return c.cookies.name
}

// Authenticate resolves the principal for the session cookie, refreshing
// an expired access token. A missing, corrupt or rejected session yields
// an anonymous result (clearing stale cookies); only provider failures
// are returned as errors.
func (c *Client) Authenticate(ctx context.Context, cookies []*http.Cookie) (*Result, error) {
	raw, ok := readCookie(cookies, c.cookies.name)
	if !ok {
		return &Result{}, nil
	}
	ts, err := decodeSession(raw)
	if err != nil {
		return &Result{SetCookies: c.cookies.clear(cookies)}, nil
	}

	if !c.expired(ts) {
		p, err := c.principalFor(ctx, ts)
		switch {
		case err == nil:
			return &Result{Principal: p}, nil
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, errRejected):
			// fall through to refresh
		case isTokenInvalid(err):
			return &Result{SetCookies: c.cookies.clear(cookies)}, nil
		default:
			return nil, err
		}
	}

	return c.refresh(ctx, ts.RefreshToken, cookies)
}

func (c *Client) expired(ts *tokenSet) bool {
	exp := ts.expiry()
	return !exp.IsZero() && !c.now().Add(expirySkew).Before(exp)
}

// principalFor validates the access token locally when a secret is set,
// otherwise asks the provider.
func (c *Client) principalFor(ctx context.Context, ts *tokenSet) (*user.Principal, error) {
	if secret := c.jwtSecret(); secret != nil {
		return c.verify(ts.AccessToken, secret)
	}
	var u providerUser
	if err := c.call(ctx, http.MethodGet, "/auth/v1/user", ts.AccessToken, nil, &u); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u.principal(ts.expiry())
}

// claims are the access token claims StudioGate reads.
type claims struct {
	Email        string         `json:"email,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

func (c *Client) verify(token string, secret []byte) (*user.Principal, error) {
	cl := &claims{}
	_, err := jwt.ParseWithClaims(token, cl, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	if _, err := uuid.Parse(cl.Subject); err != nil {
		return nil, fmt.Errorf("verify access token: %w: bad subject", jwt.ErrTokenInvalidClaims)
	}
	return &user.Principal{
		UserID:    cl.Subject,
		Email:     cl.Email,
		Role:      roleFrom(cl.AppMetadata, cl.UserMetadata),
		ExpiresAt: cl.ExpiresAt.Time,
	}, nil
}

func isTokenInvalid(err error) bool {
	return errors.Is(err, jwt.ErrTokenMalformed) ||
		errors.Is(err, jwt.ErrTokenSignatureInvalid) ||
		errors.Is(err, jwt.ErrTokenUnverifiable) ||
		errors.Is(err, jwt.ErrTokenInvalidClaims) ||
		errors.Is(err, jwt.ErrTokenNotValidYet) ||
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing)
}

// providerUser is the user object returned by the auth API.
type providerUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u *providerUser) principal(exp time.Time) (*user.Principal, error) {
	if _, err := uuid.Parse(u.ID); err != nil {
		return nil, fmt.Errorf("provider user id %q: %w", u.ID, err)
	}
	return &user.Principal{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      roleFrom(u.AppMetadata, u.UserMetadata),
		ExpiresAt: exp,
	}, nil
}

// roleFrom reads the portal role hint. app_metadata is only writable
// server-side, so it wins over user_metadata.
func roleFrom(app, usr map[string]any) user.Role {
	for _, m := range []map[string]any{app, usr} {
		if r, ok := m["role"].(string); ok && r != "" {
			return user.Role(r)
		}
	}
	return ""
}

type refreshed struct {
	ts   *tokenSet
	user providerUser
}

// refresh exchanges the refresh token. Concurrent requests carrying the
// same refresh token share one provider call, since the provider rotates
// refresh tokens on use.
func (c *Client) refresh(ctx context.Context, refreshToken string, cookies []*http.Cookie) (*Result, error) {
	if refreshToken == "" {
		return &Result{SetCookies: c.cookies.clear(cookies)}, nil
	}

	// Waiters share one call; it outlives a cancelled first caller and is
	// bounded by c.timeout.
	shared := context.WithoutCancel(ctx)
	ch := c.refreshes.DoChan(refreshToken, func() (any, error) {
		var body struct {
			tokenSet
			User providerUser `json:"user"`
		}
		req := map[string]string{"refresh_token": refreshToken}
		if err := c.call(shared, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", req, &body); err != nil {
			return nil, err
		}
		ts := body.tokenSet
		if ts.ExpiresAt == 0 && ts.ExpiresIn > 0 {
			ts.ExpiresAt = c.now().Add(time.Duration(ts.ExpiresIn) * time.Second).Unix()
		}
		if raw, err := json.Marshal(body.User); err == nil {
			ts.User = raw
		}
		return &refreshed{ts: &ts, user: body.User}, nil
	})

	var v any
	var err error
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("refresh session: %w", ctx.Err())
	}
	if errors.Is(err, errRejected) {
		return &Result{SetCookies: c.cookies.clear(cookies)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	r := v.(*refreshed)
	p, err := r.user.principal(r.ts.expiry())
	if err != nil {
		return &Result{SetCookies: c.cookies.clear(cookies)}, nil
	}
	value, err := encodeSession(r.ts)
	if err != nil {
		return nil, err
	}
	set, err := c.cookies.write(value, cookies)
	if err != nil {
		return nil, err
	}
	return &Result{Principal: p, SetCookies: set}, nil
}

// call performs one provider request under the breaker and timeout. 4xx
// answers resolve to errRejected without counting against the breaker.
func (c *Client) call(ctx context.Context, method, path, bearer string, in, out any) error {
	var rejected bool
	do := func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
			var body io.Reader
			if in != nil {
				b, err := json.Marshal(in)
				if err != nil {
					return fmt.Errorf("marshal request: %w", err)
				}
				body = bytes.NewReader(b)
			}
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("apikey", c.apiKey())
			req.Header.Set("Content-Type", "application/json")
			if bearer != "" {
				req.Header.Set("Authorization", "Bearer "+bearer)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("http request: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			switch {
			case resp.StatusCode >= 500:
				return fmt.Errorf("auth API error %d: %s", resp.StatusCode, string(data))
			case resp.StatusCode >= 400:
				rejected = true
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
			return nil
		})
	}

	err := c.inFlight.Do(ctx, func(ctx context.Context) error {
		if c.breaker != nil {
			return c.breaker.Do(ctx, do)
		}
		return do(ctx)
	})
	if err != nil {
		return err
	}
	if rejected {
		return errRejected
	}
	return nil
}
