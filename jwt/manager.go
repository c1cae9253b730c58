package jwt

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim types written into access tokens. The values match the claim URIs
// used by the site's other services so tokens stay interchangeable.
const (
	ClaimName           = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"
	ClaimNameIdentifier = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	ClaimRole           = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
)

// DefaultAccessTTL is the access-token lifetime used when Config.AccessTTL is zero.
const DefaultAccessTTL = 10 * time.Minute

const refreshTokenSize = 32

var (
	// ErrMissingKey is returned by NewManager when no signing key is configured.
	ErrMissingKey = errors.New("jwt: signing key required")
	// ErrInvalidTTL is returned by NewManager for a negative access TTL.
	ErrInvalidTTL = errors.New("jwt: invalid access ttl")
	// ErrInvalidToken is returned by ValidateAccess for any token that fails verification.
	ErrInvalidToken = errors.New("jwt: invalid token")
)

// Claim is a single typed fact about the authenticated subject.
type Claim struct {
	Type  string
	Value string
}

// Principal is the verified identity carried by an access token.
type Principal struct {
	UserID    string
	Username  string
	Roles     []string
	ExpiresAt time.Time
}

// HasRole reports whether the principal carries role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Config controls signing and verification.
type Config struct {
	Key       []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Manager issues and verifies HS256 access tokens and mints opaque refresh
// tokens. A Manager is immutable after NewManager and safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Key) == 0 {
		return nil, ErrMissingKey
	}
	if cfg.AccessTTL < 0 {
		return nil, ErrInvalidTTL
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Key = append([]byte(nil), cfg.Key...)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// IssueTokens signs claims into a new access token and generates a fresh
// refresh token. It has no side effects beyond reading the random source.
func (m *Manager) IssueTokens(claims []Claim) (string, string, error) {
	access, err := m.createAccess(claims)
	if err != nil {
		return "", "", err
	}

	refresh, err := NewRefreshToken()
	if err != nil {
		return "", "", err
	}

	return access, refresh, nil
}

// NewRefreshToken returns 32 bytes from crypto/rand, base64 encoded.
func NewRefreshToken() (string, error) {
	var raw [refreshTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("jwt: refresh token entropy: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}

func (m *Manager) createAccess(claims []Claim) (string, error) {
	now := m.config.Now()

	payload := jwt.MapClaims{
		"iat": jwt.NewNumericDate(now),
		"nbf": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
	}
	if m.config.Issuer != "" {
		payload["iss"] = m.config.Issuer
	}
	if m.config.Audience != "" {
		payload["aud"] = m.config.Audience
	}

	var roles []string
	for _, c := range claims {
		switch c.Type {
		case "":
			continue
		case ClaimRole:
			roles = append(roles, c.Value)
		default:
			payload[c.Type] = c.Value
		}
	}
	switch len(roles) {
	case 0:
	case 1:
		payload[ClaimRole] = roles[0]
	default:
		payload[ClaimRole] = roles
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	return token.SignedString(m.config.Key)
}

// IsAccessTokenValid verifies signature, issuer, audience and expiry. A token
// whose expiry is at or before now is invalid. It never panics.
func (m *Manager) IsAccessTokenValid(token string) (valid bool) {
	defer func() {
		if recover() != nil {
			valid = false
		}
	}()

	_, err := m.parse(token, true)
	return err == nil
}

// ExtractClaims returns the claim set of a token this Manager signed, ignoring
// expiry. Foreign, tampered or garbled tokens yield false.
func (m *Manager) ExtractClaims(token string) (claims []Claim, ok bool) {
	defer func() {
		if recover() != nil {
			claims, ok = nil, false
		}
	}()

	mc, err := m.parse(token, false)
	if err != nil {
		return nil, false
	}
	return flatten(mc), true
}

// ValidateAccess verifies token and returns its principal.
func (m *Manager) ValidateAccess(token string) (*Principal, error) {
	mc, err := m.parse(token, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := flatten(mc)
	p := &Principal{
		UserID:   Find(claims, ClaimNameIdentifier),
		Username: Find(claims, ClaimName),
		Roles:    FindAll(claims, ClaimRole),
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		p.ExpiresAt = exp.Time
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("%w: missing subject id", ErrInvalidToken)
	}
	return p, nil
}

func (m *Manager) parse(token string, checkExpiry bool) (jwt.MapClaims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}
	if checkExpiry {
		options = append(options, jwt.WithExpirationRequired())
	} else {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	mc := jwt.MapClaims{}
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, mc, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Key, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	if !checkExpiry {
		// Claims validation is off on this path; issuer and audience still bind.
		if err := m.checkIssuerAudience(mc); err != nil {
			return nil, err
		}
		return mc, nil
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, jwt.ErrTokenRequiredClaimMissing
	}
	if !m.config.Now().Before(exp.Time) {
		return nil, jwt.ErrTokenExpired
	}
	return mc, nil
}

func (m *Manager) checkIssuerAudience(mc jwt.MapClaims) error {
	if m.config.Issuer != "" {
		iss, err := mc.GetIssuer()
		if err != nil || iss != m.config.Issuer {
			return jwt.ErrTokenInvalidIssuer
		}
	}
	if m.config.Audience != "" {
		aud, err := mc.GetAudience()
		if err != nil {
			return jwt.ErrTokenInvalidAudience
		}
		for _, a := range aud {
			if a == m.config.Audience {
				return nil
			}
		}
		return jwt.ErrTokenInvalidAudience
	}
	return nil
}

var registered = map[string]struct{}{
	"iss": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {}, "sub": {}, "jti": {},
}

// flatten converts map claims back into ordered Claim pairs. Role arrays expand
// into one Claim per role.
func flatten(mc jwt.MapClaims) []Claim {
	out := make([]Claim, 0, len(mc))
	for _, typ := range []string{ClaimName, ClaimNameIdentifier} {
		if v, ok := mc[typ].(string); ok {
			out = append(out, Claim{Type: typ, Value: v})
		}
	}
	switch v := mc[ClaimRole].(type) {
	case string:
		out = append(out, Claim{Type: ClaimRole, Value: v})
	case []interface{}:
		for _, r := range v {
			if s, ok := r.(string); ok {
				out = append(out, Claim{Type: ClaimRole, Value: s})
			}
		}
	}
	for typ, raw := range mc {
		if _, skip := registered[typ]; skip {
			continue
		}
		if typ == ClaimName || typ == ClaimNameIdentifier || typ == ClaimRole {
			continue
		}
		if s, ok := raw.(string); ok {
			out = append(out, Claim{Type: typ, Value: s})
		}
	}
	return out
}

// Find returns the first value of claim type typ.
func Find(claims []Claim, typ string) string {
	for _, c := range claims {
		if c.Type == typ {
			return c.Value
		}
	}
	return ""
}

// FindAll returns every value of claim type typ in order.
func FindAll(claims []Claim, typ string) []string {
	var out []string
	for _, c := range claims {
		if c.Type == typ {
			out = append(out, c.Value)
		}
	}
	return out
}

// IdentityClaims builds the standard claim set for a user.
func IdentityClaims(userID, username string, roles []string) []Claim {
	claims := make([]Claim, 0, 2+len(roles))
	claims = append(claims,
		Claim{Type: ClaimName, Value: username},
		Claim{Type: ClaimNameIdentifier, Value: userID},
	)
	for _, r := range roles {
		claims = append(claims, Claim{Type: ClaimRole, Value: r})
	}
	return claims
}
