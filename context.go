package authcore

import (
	"context"

	"github.com/tunehub/authcore/internal/requestctx"
	"github.com/tunehub/authcore/jwt"
)

type principalContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Every session
// operation keys the whitelist by this value.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return requestctx.WithClientIP(ctx, ip)
}

// ClientIP returns the IP attached by WithClientIP.
func ClientIP(ctx context.Context) (string, bool) {
	return requestctx.ClientIP(ctx)
}

// WithPrincipal stores a verified principal in ctx.
func WithPrincipal(ctx context.Context, p *jwt.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*jwt.Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalContextKey{}).(*jwt.Principal)
	return p, ok && p != nil
}
