// Package cookie moves the access and refresh tokens between the server and
// the browser as HttpOnly cookies.
package cookie

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Cookie names read by every client of the site. Do not change.
const (
	AccessTokenName  = "access_token"
	RefreshTokenName = "refresh_token"
)

// RefreshLifetime is the Expires offset of the refresh_token cookie.
const RefreshLifetime = 30 * 24 * time.Hour

// Config controls cookie attributes.
type Config struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
	Path     string
}

// DefaultConfig returns Lax, non-Secure cookies scoped to "/".
func DefaultConfig() Config {
	return Config{
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
}

// Transport reads and writes the token cookies.
type Transport struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewTransport returns a Transport. A nil logger discards output.
func NewTransport(cfg Config, logger *zap.Logger) *Transport {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{cfg: cfg, logger: logger, now: time.Now}
}

// WithClock returns a copy of t using now for expiry calculation.
func (t *Transport) WithClock(now func() time.Time) *Transport {
	cp := *t
	cp.now = now
	return &cp
}

func (t *Transport) base(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     t.cfg.Path,
		Domain:   t.cfg.Domain,
		Secure:   t.cfg.Secure,
		HttpOnly: true,
		SameSite: t.cfg.SameSite,
	}
}

// SetTokens writes both cookies. access_token is a session cookie;
// refresh_token expires after RefreshLifetime.
func (t *Transport) SetTokens(w http.ResponseWriter, access, refresh string) {
	if w == nil {
		t.logger.Error("cannot set token cookies without a response writer")
		return
	}

	http.SetCookie(w, t.base(AccessTokenName, access))

	rc := t.base(RefreshTokenName, refresh)
	rc.Expires = t.now().Add(RefreshLifetime).UTC()
	http.SetCookie(w, rc)
}

// GetAccessToken returns the access_token cookie value.
func (t *Transport) GetAccessToken(r *http.Request) (string, bool) {
	return t.read(r, AccessTokenName)
}

// GetRefreshToken returns the refresh_token cookie value.
func (t *Transport) GetRefreshToken(r *http.Request) (string, bool) {
	return t.read(r, RefreshTokenName)
}

func (t *Transport) read(r *http.Request, name string) (string, bool) {
	if r == nil {
		t.logger.Error("cannot read token cookie without a request", zap.String("cookie", name))
		return "", false
	}
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// DeleteTokens expires both cookies on the client.
func (t *Transport) DeleteTokens(w http.ResponseWriter) {
	if w == nil {
		t.logger.Error("cannot delete token cookies without a response writer")
		return
	}
	for _, name := range []string{AccessTokenName, RefreshTokenName} {
		c := t.base(name, "")
		c.Expires = time.Unix(0, 0).UTC()
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}
