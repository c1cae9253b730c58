// Package config loads the service configuration from an optional YAML file
// and the environment.
//
// Application keys read from AUTHCORE_<SECTION>_<KEY> (for example
// AUTHCORE_HTTP_ADDR). The signing settings also accept the
// JWTSETTINGS__KEY, JWTSETTINGS__ISSUER and JWTSETTINGS__AUDIENCE variables
// used by the other services of the site.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tunehub/authcore"
	"github.com/tunehub/authcore/cookie"
)

// Session backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	Env         string         `mapstructure:"env"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Log         LogConfig      `mapstructure:"log"`
	JwtSettings JwtSettings    `mapstructure:"jwtsettings"`
	Cookie      CookieConfig   `mapstructure:"cookie"`
	Session     SessionConfig  `mapstructure:"session"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Throttle    ThrottleConfig `mapstructure:"throttle"`
	Audit       AuditConfig    `mapstructure:"audit"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustProxy      bool          `mapstructure:"trust_proxy"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type JwtSettings struct {
	Key       string        `mapstructure:"key"`
	Issuer    string        `mapstructure:"issuer"`
	Audience  string        `mapstructure:"audience"`
	AccessTTL time.Duration `mapstructure:"access_ttl"`
}

type CookieConfig struct {
	Secure   bool   `mapstructure:"secure"`
	SameSite string `mapstructure:"same_site"`
	Domain   string `mapstructure:"domain"`
}

type SessionConfig struct {
	Backend     string        `mapstructure:"backend"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ThrottleConfig limits failed logins. It needs redis.addr.
type ThrottleConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
	PerIP       bool          `mapstructure:"per_ip"`
}

type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("jwtsettings.key", "")
	v.SetDefault("jwtsettings.issuer", "")
	v.SetDefault("jwtsettings.audience", "")
	v.SetDefault("jwtsettings.access_ttl", 10*time.Minute)
	v.SetDefault("cookie.secure", false)
	v.SetDefault("cookie.same_site", "lax")
	v.SetDefault("cookie.domain", "")
	v.SetDefault("session.backend", BackendPostgres)
	v.SetDefault("session.redis_prefix", "authcore:sessions")
	v.SetDefault("session.redis_ttl", cookie.RefreshLifetime)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "authcore.audit")
	v.SetDefault("throttle.enabled", false)
	v.SetDefault("throttle.max_attempts", 5)
	v.SetDefault("throttle.window", 15*time.Minute)
	v.SetDefault("throttle.per_ip", true)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", 1024)
	v.SetDefault("audit.drop_if_full", true)
	v.SetDefault("metrics.enabled", true)
}

// Load reads path when non-empty, then overlays environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AUTHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"key", "issuer", "audience"} {
		name := "jwtsettings." + key
		if err := v.BindEnv(name, "AUTHCORE_JWTSETTINGS_"+strings.ToUpper(key), "JWTSETTINGS__"+strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings the engine config does not cover.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case BackendPostgres:
		if c.Database.URL == "" {
			return errors.New("config: database.url is required for the postgres session backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("config: redis.addr is required for the redis session backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	if c.Throttle.Enabled && c.Redis.Addr == "" {
		return errors.New("config: redis.addr is required for the login throttle")
	}
	if _, err := parseSameSite(c.Cookie.SameSite); err != nil {
		return err
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Session.Backend == BackendRedis || c.Throttle.Enabled
}

// Engine converts the loaded settings into an authcore.Config.
func (c *Config) Engine() authcore.Config {
	ec := authcore.DefaultConfig()
	ec.JWT = authcore.JWTConfig{
		Key:       c.JwtSettings.Key,
		Issuer:    c.JwtSettings.Issuer,
		Audience:  c.JwtSettings.Audience,
		AccessTTL: c.JwtSettings.AccessTTL,
	}
	ec.Cookie.Secure = c.Cookie.Secure
	ec.Cookie.Domain = c.Cookie.Domain
	ec.Cookie.SameSite, _ = parseSameSite(c.Cookie.SameSite)
	ec.Audit = authcore.AuditConfig{
		Enabled:    c.Audit.Enabled,
		BufferSize: c.Audit.BufferSize,
		DropIfFull: c.Audit.DropIfFull,
	}
	ec.Metrics.Enabled = c.Metrics.Enabled
	return ec
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("config: unknown cookie.same_site %q", s)
	}
}
