package http

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/Strob0t/StudioGate/internal/middleware"
)

// NewProxy returns the reverse proxy that forwards edge traffic to the
// upstream application. The inbound Host is preserved so the upstream
// sees the school's own domain, and the identity headers are rebuilt from
// the request context. timeout bounds the wait for response headers; zero
// means no limit.
func NewProxy(upstream *url.URL, timeout time.Duration) http.Handler {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.Host = pr.In.Host
			pr.SetXForwarded()
			middleware.SetIdentityHeaders(pr.In.Context(), pr.Out.Header)
		},
		Transport:     transport,
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.ErrorContext(r.Context(), "upstream request failed",
				"path", r.URL.Path, "host", r.Host, "error", err)
			writeError(w, http.StatusBadGateway, "upstream unavailable")
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		noteTenant(r)
		rp.ServeHTTP(w, r)
	})
}
