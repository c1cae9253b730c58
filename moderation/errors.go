package moderation

import "errors"

// ErrBanned is returned when promoting a user who holds no roles.
var ErrBanned = errors.New("moderation: user is banned")
