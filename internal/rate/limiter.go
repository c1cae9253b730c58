package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces the counters.
const DefaultPrefix = "authcore:login"

// Config holds limiter tuning.
type Config struct {
	Prefix string
	// MaxAttempts failed logins are allowed per window; the next one is refused.
	MaxAttempts int
	Window      time.Duration
	// ThrottleIP also counts failures per client IP.
	ThrottleIP bool
}

// DefaultConfig allows five failures per username and IP every fifteen minutes.
func DefaultConfig() Config {
	return Config{
		Prefix:      DefaultPrefix,
		MaxAttempts: 5,
		Window:      15 * time.Minute,
		ThrottleIP:  true,
	}
}

// Limiter counts failed logins per username and IP.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New returns a Limiter. Zero fields in cfg take their DefaultConfig values.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &Limiter{redis: redisClient, config: cfg}
}

// Allow returns ErrRateLimited once username or ip has used up its budget.
func (l *Limiter) Allow(ctx context.Context, username, ip string) error {
	if err := l.checkCounter(ctx, l.userKey(username)); err != nil {
		return err
	}
	if l.config.ThrottleIP && ip != "" {
		return l.checkCounter(ctx, l.ipKey(ip))
	}
	return nil
}

// Failure records a failed attempt for the pair.
func (l *Limiter) Failure(ctx context.Context, username, ip string) error {
	if _, err := l.incrementWithTTL(ctx, l.userKey(username)); err != nil {
		return err
	}
	if l.config.ThrottleIP && ip != "" {
		if _, err := l.incrementWithTTL(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the username counter after a successful login. The IP
// counter keeps running so one good account cannot launder guesses
// against others.
func (l *Limiter) Reset(ctx context.Context, username, _ string) error {
	if err := l.redis.Del(ctx, l.userKey(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the failure count for username in the current window.
func (l *Limiter) Attempts(ctx context.Context, username string) (int, error) {
	count, err := l.redis.Get(ctx, l.userKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) userKey(username string) string {
	return l.config.Prefix + ":user:" + strings.ToLower(strings.TrimSpace(username))
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.Prefix + ":ip:" + ip
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
