package authcore

import (
	"errors"

	"github.com/tunehub/authcore/internal/rate"
)

var (
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("authcore: builder already used")
	// ErrMissingUserStore is returned by Build without WithUserStore.
	ErrMissingUserStore = errors.New("authcore: user store required")
	// ErrMissingSessionRepository is returned by Build without WithSessionRepository.
	ErrMissingSessionRepository = errors.New("authcore: session repository required")
	// ErrInvalidConfig wraps every Config.Validate failure.
	ErrInvalidConfig = errors.New("authcore: invalid config")
	// ErrUserStore wraps failures of the identity store surfaced by Register and Login.
	ErrUserStore = errors.New("authcore: user store failure")
	// ErrLoginThrottled is the error a LoginThrottle returns to refuse an attempt.
	ErrLoginThrottled = rate.ErrRateLimited
)
