package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	base64Prefix = "base64-"
	// maxChunkSize matches the browser client's chunking so both sides
	// read each other's cookies.
	maxChunkSize = 3180
	// cookieMaxAge is the provider client's default persistence (400 days).
	cookieMaxAge = 400 * 24 * 60 * 60
	// maxChunks bounds how many numbered chunks are read or cleared.
	maxChunks = 16
)

// ErrSessionTooLarge is returned when a session needs more than maxChunks
// cookies; readCookie would silently truncate it.
var ErrSessionTooLarge = errors.New("session exceeds cookie capacity")

// tokenSet is the session object stored in the auth cookie.
type tokenSet struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type,omitempty"`
	ExpiresIn    int64           `json:"expires_in,omitempty"`
	ExpiresAt    int64           `json:"expires_at,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

func (t *tokenSet) expiry() time.Time {
	if t.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(t.ExpiresAt, 0)
}

// CookieNameFor derives the provider's default cookie name from its URL:
// sb-<first host label>-auth-token.
func CookieNameFor(providerURL string) string {
	u, err := url.Parse(providerURL)
	if err != nil || u.Hostname() == "" {
		return "sb-auth-token"
	}
	ref, _, _ := strings.Cut(u.Hostname(), ".")
	return "sb-" + ref + "-auth-token"
}

// readCookie returns the session value, joining numbered chunks when the
// unsuffixed cookie is absent.
func readCookie(cookies []*http.Cookie, name string) (string, bool) {
	byName := make(map[string]string, len(cookies))
	for _, c := range cookies {
		byName[c.Name] = c.Value
	}
	if v, ok := byName[name]; ok && v != "" {
		return v, true
	}

	var b strings.Builder
	for i := range maxChunks {
		v, ok := byName[chunkName(name, i)]
		if !ok {
			break
		}
		b.WriteString(v)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func chunkName(name string, i int) string {
	return name + "." + strconv.Itoa(i)
}

// decodeSession accepts raw JSON or the base64- form.
func decodeSession(value string) (*tokenSet, error) {
	raw := []byte(value)
	if strings.HasPrefix(value, base64Prefix) {
		enc := strings.TrimRight(strings.TrimPrefix(value, base64Prefix), "=")
		b, err := base64.RawURLEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("decode session cookie: %w", err)
		}
		raw = b
	} else if unescaped, err := url.QueryUnescape(value); err == nil {
		raw = []byte(unescaped)
	}

	var ts tokenSet
	if err := json.Unmarshal(raw, &ts); err != nil {
		return nil, fmt.Errorf("unmarshal session cookie: %w", err)
	}
	if ts.AccessToken == "" {
		return nil, fmt.Errorf("session cookie: missing access token")
	}
	return &ts, nil
}

func encodeSession(ts *tokenSet) (string, error) {
	b, err := json.Marshal(ts)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	return base64Prefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// cookieWriter builds Set-Cookie values with consistent attributes.
type cookieWriter struct {
	name   string
	secure bool
}

func (w cookieWriter) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   w.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// write splits value into chunks and expires any previously sent cookie
// for this session that the new value no longer uses.
func (w cookieWriter) write(value string, existing []*http.Cookie) ([]*http.Cookie, error) {
	if len(value) > maxChunks*maxChunkSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrSessionTooLarge, len(value))
	}
	var out []*http.Cookie
	keep := map[string]bool{}

	if len(value) <= maxChunkSize {
		out = append(out, w.cookie(w.name, value, cookieMaxAge))
		keep[w.name] = true
	} else {
		for i := 0; len(value) > 0; i++ {
			n := min(maxChunkSize, len(value))
			name := chunkName(w.name, i)
			out = append(out, w.cookie(name, value[:n], cookieMaxAge))
			keep[name] = true
			value = value[n:]
		}
	}

	for _, c := range existing {
		if w.owns(c.Name) && !keep[c.Name] {
			out = append(out, w.cookie(c.Name, "", -1))
		}
	}
	return out, nil
}

// clear expires every cookie belonging to this session.
func (w cookieWriter) clear(existing []*http.Cookie) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range existing {
		if w.owns(c.Name) {
			out = append(out, w.cookie(c.Name, "", -1))
		}
	}
	return out
}

func (w cookieWriter) owns(name string) bool {
	if name == w.name {
		return true
	}
	rest, ok := strings.CutPrefix(name, w.name+".")
	if !ok {
		return false
	}
	i, err := strconv.Atoi(rest)
	return err == nil && i >= 0 && i < maxChunks
}
