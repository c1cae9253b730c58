// Package rate throttles password guessing with Redis counters.
//
// Counters use fixed windows: INCR, then EXPIRE on the first hit. Keys live
// under the configured prefix:
//   - <prefix>:user:<username> failed logins per username
//   - <prefix>:ip:<ip>         failed logins per client IP
//
// Usernames are lower-cased so the counter follows the case-insensitive
// lookup of the user store.
package rate
