package authcore

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tunehub/authcore/cookie"
	"github.com/tunehub/authcore/internal/audit"
	"github.com/tunehub/authcore/jwt"
)

// MinKeyBytes is the shortest accepted HS256 signing key.
const MinKeyBytes = 32

// Config is the engine configuration. Start from DefaultConfig.
type Config struct {
	JWT     JWTConfig
	Cookie  cookie.Config
	Audit   AuditConfig
	Metrics MetricsConfig
}

// JWTConfig mirrors the JwtSettings section of the application config.
type JWTConfig struct {
	Key       string
	Issuer    string
	Audience  string
	AccessTTL time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// DefaultConfig returns a configuration with every field set except the
// signing key, issuer and audience.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: jwt.DefaultAccessTTL,
		},
		Cookie: cookie.DefaultConfig(),
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "authcore",
		},
	}
}

// Validate checks c for values the engine cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Key) == "" {
		return fmt.Errorf("%w: JwtSettings.KEY is required", ErrInvalidConfig)
	}
	if len(c.JWT.Key) < MinKeyBytes {
		return fmt.Errorf("%w: JwtSettings.KEY must be at least %d bytes", ErrInvalidConfig, MinKeyBytes)
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return fmt.Errorf("%w: JwtSettings.ISSUER is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.JWT.Audience) == "" {
		return fmt.Errorf("%w: JwtSettings.AUDIENCE is required", ErrInvalidConfig)
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.AccessTTL > time.Hour {
		return fmt.Errorf("%w: access token ttl must be in (0, 1h]", ErrInvalidConfig)
	}
	switch c.Cookie.SameSite {
	case 0, http.SameSiteDefaultMode, http.SameSiteLaxMode, http.SameSiteStrictMode:
	case http.SameSiteNoneMode:
		if !c.Cookie.Secure {
			return fmt.Errorf("%w: SameSite=None cookies must be Secure", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown SameSite mode %d", ErrInvalidConfig, c.Cookie.SameSite)
	}
	if c.Audit.BufferSize < 0 {
		return fmt.Errorf("%w: audit buffer size must be >= 0", ErrInvalidConfig)
	}
	return nil
}

func (c AuditConfig) dispatcherConfig() audit.Config {
	return audit.Config{
		Enabled:    c.Enabled,
		BufferSize: c.BufferSize,
		DropIfFull: c.DropIfFull,
	}
}
