package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/tunehub/authcore"
)

// Renewer is the part of *authcore.Engine used by Renewal.
type Renewer interface {
	Renew(ctx context.Context, w http.ResponseWriter, r *http.Request) authcore.RenewalResult
}

type renewalContextKey struct{}

// RenewalFromContext returns the result recorded by Renewal for this request.
func RenewalFromContext(ctx context.Context) (authcore.RenewalResult, bool) {
	res, ok := ctx.Value(renewalContextKey{}).(authcore.RenewalResult)
	return res, ok
}

// Renewal validates the access_token cookie on every request and renews it
// from the refresh_token cookie when expired. The request always leaves with
// an Authorization header, "Bearer " followed by the possibly renewed token.
func Renewal(engine Renewer, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = withClientIP(r)
			ctx := r.Context()

			res := engine.Renew(ctx, w, r)
			if res.State == authcore.RenewalRenewed || res.State == authcore.RenewalStale {
				logger.Debug("access token renewal",
					zap.Stringer("state", res.State),
					zap.String("user_id", res.UserID),
				)
			}

			r = r.WithContext(context.WithValue(ctx, renewalContextKey{}, res))
			r.Header.Set("Authorization", "Bearer "+res.AccessToken)
			next.ServeHTTP(w, r)
		})
	}
}
