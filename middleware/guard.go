package middleware

import (
	"net/http"
	"strings"

	"github.com/tunehub/authcore"
)

// Validator is the part of *authcore.Engine used by Guard.
type Validator interface {
	ValidateAccess(token string) (*authcore.Principal, error)
}

// Guard rejects requests without a valid bearer token with 401 and stores the
// principal in the request context otherwise.
func Guard(v Validator) func(http.Handler) http.Handler {
	return RequireRole(v)
}

// RequireRole is Guard plus a role check: the principal must hold at least
// one of roles, or the request is rejected with 403. No roles means any
// authenticated principal passes.
func RequireRole(v Validator, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			p, err := v.ValidateAccess(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if len(roles) > 0 && !hasAny(p, roles) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(authcore.WithPrincipal(r.Context(), p)))
		})
	}
}

func hasAny(p *authcore.Principal, roles []string) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
