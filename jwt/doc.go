// Package jwt signs and verifies the short-lived HS256 access tokens handed to
// browsers and mints the opaque refresh tokens that back them.
//
// Verification fails closed: IsAccessTokenValid and ExtractClaims convert every
// parse, signature, issuer, audience or expiry failure into a negative result
// and never panic. ExtractClaims deliberately skips the expiry check so the
// renewal path can recover the identity of a token that has just expired.
package jwt
