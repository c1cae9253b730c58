package rate

import "errors"

var (
	// ErrRateLimited means the login attempt budget is spent for this window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport failures. Callers fail open on it.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
