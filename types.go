package authcore

import (
	"context"

	"github.com/tunehub/authcore/identity"
	"github.com/tunehub/authcore/jwt"
	"github.com/tunehub/authcore/session"
)

// Principal is the verified identity carried by an access token.
type Principal = jwt.Principal

// UserStore is the identity collaborator consulted by the engine.
type UserStore = identity.Store

// SessionRepository persists the session whitelist.
type SessionRepository = session.Repository

// LoginResult distinguishes the three ways a credential check can end.
type LoginResult int

const (
	// LoginInvalidCredentials covers unknown users and wrong passwords.
	LoginInvalidCredentials LoginResult = iota
	// LoginSucceeded means cookies were written and a session was stored.
	LoginSucceeded
	// LoginBanned means the credentials matched a user with no roles.
	// No cookies were written.
	LoginBanned
	// LoginThrottled means the attempt was refused before the password was
	// checked because too many recent attempts failed.
	LoginThrottled
)

// LoginThrottle limits password guessing. Allow returns an error wrapping
// ErrLoginThrottled to refuse an attempt; any other error lets it through.
type LoginThrottle interface {
	Allow(ctx context.Context, username, ip string) error
	Failure(ctx context.Context, username, ip string) error
	Reset(ctx context.Context, username, ip string) error
}

func (r LoginResult) String() string {
	switch r {
	case LoginSucceeded:
		return "success"
	case LoginBanned:
		return "banned"
	case LoginThrottled:
		return "throttled"
	default:
		return "invalid_credentials"
	}
}

// RenewalState is the access-token status observed by Renew.
type RenewalState int

const (
	// RenewalAbsent means the request carried no access_token cookie.
	RenewalAbsent RenewalState = iota
	// RenewalValid means the access token verified as is.
	RenewalValid
	// RenewalRenewed means an expired token was exchanged for a fresh pair.
	RenewalRenewed
	// RenewalStale means the token was invalid and could not be renewed.
	RenewalStale
)

func (s RenewalState) String() string {
	switch s {
	case RenewalAbsent:
		return "absent"
	case RenewalValid:
		return "valid"
	case RenewalRenewed:
		return "renewed"
	case RenewalStale:
		return "stale"
	default:
		return "unknown"
	}
}

// RenewalResult reports what Renew did. AccessToken is the token the request
// should carry downstream, possibly empty.
type RenewalResult struct {
	State       RenewalState
	AccessToken string
	UserID      string
}
