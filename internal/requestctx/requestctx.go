// Package requestctx carries per-request values (client IP) through
// context.Context so session operations never reach into ambient state.
package requestctx

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// MissingIPMessage is logged whenever an IP-keyed operation runs without a
// resolved client address.
const MissingIPMessage = "IP Address cannot be null or empty."

// WithClientIP attaches ip to ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the IP attached to ctx. ok is false when none was attached
// or the attached value is blank.
func ClientIP(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	ip, _ := ctx.Value(clientIPKey{}).(string)
	ip = strings.TrimSpace(ip)
	return ip, ip != ""
}

// RemoteIP extracts the host part of r.RemoteAddr. It returns "" when the
// request carries no address.
func RemoteIP(r *http.Request) string {
	if r == nil || r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
