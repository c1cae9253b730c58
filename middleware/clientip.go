package middleware

import (
	"net/http"

	"github.com/tunehub/authcore/internal/requestctx"
)

// ClientIP attaches the host part of r.RemoteAddr to the request context
// unless an IP is already present. Put a trusted proxy rewriter such as
// chi's middleware.RealIP in front of it when running behind a proxy.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, withClientIP(r))
	})
}

func withClientIP(r *http.Request) *http.Request {
	if _, ok := requestctx.ClientIP(r.Context()); ok {
		return r
	}
	ip := requestctx.RemoteIP(r)
	if ip == "" {
		return r
	}
	return r.WithContext(requestctx.WithClientIP(r.Context(), ip))
}
