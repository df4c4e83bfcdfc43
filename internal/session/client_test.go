package session_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Strob0t/StudioGate/internal/config"
	"github.com/Strob0t/StudioGate/internal/domain/user"
	"github.com/Strob0t/StudioGate/internal/resilience"
	"github.com/Strob0t/StudioGate/internal/session"
)

const (
	testSecret = "super-secret-jwt-token-with-at-least-32-characters"
	testUserID = "0b7c7f3e-49c5-4d0e-8a36-2f6a4a0f4e11"
	testCookie = "sb-test-auth-token"
)

func signToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          sub,
		"email":        "ana@example.com",
		"exp":          exp.Unix(),
		"app_metadata": map[string]any{"role": "professor"},
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func sessionCookies(t *testing.T, access, refresh string, exp time.Time) []*http.Cookie {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_at":    exp.Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return []*http.Cookie{{Name: testCookie, Value: "base64-" + base64.RawURLEncoding.EncodeToString(b)}}
}

func newClient(t *testing.T, url, secret string) *session.Client {
	t.Helper()
	c, err := session.NewClient(config.Session{
		URL:        url,
		AnonKey:    "anon-key",
		JWTSecret:  secret,
		CookieName: testCookie,
		Timeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// refreshServer answers token refreshes with status, counting hits.
func refreshServer(t *testing.T, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Errorf("missing apikey header")
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != "refresh-1" {
			t.Errorf("refresh_token = %q", body["refresh_token"])
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  signToken(t, testUserID, time.Now().Add(time.Hour)),
			"refresh_token": "refresh-2",
			"expires_in":    3600,
			"token_type":    "bearer",
			"user":          map[string]any{"id": testUserID, "email": "ana@example.com"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_NotConfigured(t *testing.T) {
	_, err := session.NewClient(config.Session{URL: "https://x.supabase.co"})
	if !errors.Is(err, session.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDisabled(t *testing.T) {
	res, err := session.Disabled{}.Authenticate(context.Background(), nil)
	if !errors.Is(err, session.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if !res.Anonymous() {
		t.Fatal("expected anonymous result")
	}
}

func TestAuthenticate_NoCookie(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1", testSecret)
	res, err := c.Authenticate(context.Background(), []*http.Cookie{{Name: "other", Value: "x"}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Anonymous() || len(res.SetCookies) != 0 {
		t.Fatalf("expected anonymous without cookies, got %+v", res)
	}
}

func TestAuthenticate_LocalVerify(t *testing.T) {
	var hits atomic.Int32
	srv := refreshServer(t, http.StatusOK, &hits)
	c := newClient(t, srv.URL, testSecret)

	exp := time.Now().Add(time.Hour)
	res, err := c.Authenticate(context.Background(), sessionCookies(t, signToken(t, testUserID, exp), "refresh-1", exp))
	if err != nil {
		t.Fatal(err)
	}
	if res.Anonymous() {
		t.Fatal("expected principal")
	}
	if res.Principal.UserID != testUserID || res.Principal.Role != user.RoleTeacher {
		t.Fatalf("unexpected principal %+v", res.Principal)
	}
	if len(res.SetCookies) != 0 {
		t.Fatalf("valid session should not rewrite cookies, got %d", len(res.SetCookies))
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no provider calls, got %d", hits.Load())
	}
}

func TestAuthenticate_BadSignatureClears(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1", "another-secret-another-secret-another-secret")
	exp := time.Now().Add(time.Hour)
	res, err := c.Authenticate(context.Background(), sessionCookies(t, signToken(t, testUserID, exp), "refresh-1", exp))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Anonymous() || len(res.SetCookies) != 1 || res.SetCookies[0].MaxAge != -1 {
		t.Fatalf("expected anonymous with cleared cookie, got %+v", res)
	}
}

func TestAuthenticate_ExpiredRefreshes(t *testing.T) {
	var hits atomic.Int32
	srv := refreshServer(t, http.StatusOK, &hits)
	c := newClient(t, srv.URL, testSecret)

	exp := time.Now().Add(-time.Minute)
	res, err := c.Authenticate(context.Background(), sessionCookies(t, signToken(t, testUserID, exp), "refresh-1", exp))
	if err != nil {
		t.Fatal(err)
	}
	if res.Anonymous() || res.Principal.UserID != testUserID {
		t.Fatalf("expected refreshed principal, got %+v", res)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 refresh call, got %d", hits.Load())
	}
	if len(res.SetCookies) != 1 || res.SetCookies[0].Name != testCookie || res.SetCookies[0].MaxAge <= 0 {
		t.Fatalf("expected rewritten session cookie, got %+v", res.SetCookies)
	}

	// The rewritten cookie authenticates on its own.
	res2, err := c.Authenticate(context.Background(), res.SetCookies)
	if err != nil || res2.Anonymous() {
		t.Fatalf("rewritten cookie did not authenticate: %+v, %v", res2, err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected no further refresh, got %d calls", hits.Load())
	}
}

func TestAuthenticate_SharedRefreshSurvivesCancelledCaller(t *testing.T) {
	var hits atomic.Int32
	arrived := make(chan struct{}, 4)
	release := make(chan struct{})
	var once sync.Once
	open := func() { once.Do(func() { close(release) }) }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		arrived <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  signToken(t, testUserID, time.Now().Add(time.Hour)),
			"refresh_token": "refresh-2",
			"expires_in":    3600,
			"user":          map[string]any{"id": testUserID},
		})
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(open)

	c := newClient(t, srv.URL, testSecret)
	exp := time.Now().Add(-time.Minute)
	cookies := sessionCookies(t, signToken(t, testUserID, exp), "refresh-1", exp)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Authenticate(first, cookies)
		firstErr <- err
	}()
	<-arrived

	type outcome struct {
		res *session.Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := c.Authenticate(context.Background(), cookies)
		second <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond) // let the second caller join the refresh

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}

	open()
	got := <-second
	if got.err != nil {
		t.Fatalf("live caller failed: %v", got.err)
	}
	if got.res.Anonymous() || got.res.Principal.UserID != testUserID {
		t.Fatalf("live caller expected refreshed principal, got %+v", got.res)
	}
	if len(got.res.SetCookies) == 0 {
		t.Fatal("live caller lost the refreshed cookies")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("expected one shared refresh call, got %d", n)
	}
}

func TestAuthenticate_RefreshRejectedClears(t *testing.T) {
	var hits atomic.Int32
	srv := refreshServer(t, http.StatusBadRequest, &hits)
	c := newClient(t, srv.URL, testSecret)

	exp := time.Now().Add(-time.Minute)
	res, err := c.Authenticate(context.Background(), sessionCookies(t, signToken(t, testUserID, exp), "refresh-1", exp))
	if err != nil {
		t.Fatalf("rejected refresh should be anonymous, got error %v", err)
	}
	if !res.Anonymous() {
		t.Fatal("expected anonymous")
	}
	if len(res.SetCookies) != 1 || res.SetCookies[0].MaxAge != -1 {
		t.Fatalf("expected cleared cookie, got %+v", res.SetCookies)
	}
}

func TestAuthenticate_ProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newClient(t, url, testSecret)
	exp := time.Now().Add(-time.Minute)
	_, err := c.Authenticate(context.Background(), sessionCookies(t, signToken(t, testUserID, exp), "refresh-1", exp))
	if err == nil {
		t.Fatal("expected transport error")
	}
}

func TestAuthenticate_RemoteUser(t *testing.T) {
	access := "opaque-access"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer "+access {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            testUserID,
			"email":         "ana@example.com",
			"user_metadata": map[string]any{"role": "aluno"},
		})
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, "")
	res, err := c.Authenticate(context.Background(), sessionCookies(t, access, "refresh-1", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatal(err)
	}
	if res.Anonymous() || res.Principal.Role != user.RoleStudent {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAuthenticate_RemoteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, "")
	_, err := c.Authenticate(context.Background(), sessionCookies(t, "opaque", "refresh-1", time.Now().Add(time.Hour)))
	if err == nil {
		t.Fatal("expected provider error")
	}
}

func TestAuthenticate_CorruptCookieClears(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1", testSecret)
	res, err := c.Authenticate(context.Background(), []*http.Cookie{{Name: testCookie, Value: "base64-%%%"}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Anonymous() || len(res.SetCookies) != 1 {
		t.Fatalf("expected anonymous with cleared cookie, got %+v", res)
	}
}

func TestAuthenticate_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, "")
	b := resilience.NewBreaker(2, time.Minute)
	c.SetBreaker(b)

	cookies := sessionCookies(t, "opaque", "refresh-1", time.Now().Add(time.Hour))
	for range 2 {
		_, _ = c.Authenticate(context.Background(), cookies)
	}
	_, err := c.Authenticate(context.Background(), cookies)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 provider calls, got %d", hits.Load())
	}
	if b.State() != resilience.StateOpen {
		t.Fatalf("breaker state = %s", b.State())
	}
}

type staticSecrets map[string]string

func (s staticSecrets) Get(key string) string { return s[key] }

func TestLocalVerify(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1", "")
	if c.LocalVerify() {
		t.Fatal("no secret configured, expected remote verification")
	}
	c.SetSecrets(staticSecrets{session.SecretAnonKey: "rotated-anon"})
	if c.LocalVerify() {
		t.Fatal("anon key alone must not enable local verification")
	}
	c.SetSecrets(staticSecrets{session.SecretJWTSecret: testSecret})
	if !c.LocalVerify() {
		t.Fatal("secret from the secrets file should enable local verification")
	}
	if !newClient(t, "http://127.0.0.1:1", testSecret).LocalVerify() {
		t.Fatal("configured secret should enable local verification")
	}
}

func TestAuthenticate_RotatedSecret(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1", "stale-secret-stale-secret-stale-secret-stale")
	c.SetSecrets(staticSecrets{session.SecretJWTSecret: testSecret})

	exp := time.Now().Add(time.Hour)
	res, err := c.Authenticate(context.Background(), sessionCookies(t, signToken(t, testUserID, exp), "refresh-1", exp))
	if err != nil {
		t.Fatal(err)
	}
	if res.Anonymous() {
		t.Fatal("token signed with the rotated secret should verify")
	}
}
