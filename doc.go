// Package authcore issues and renews the cookie-borne credentials of the site.
//
// An [Engine] coordinates four collaborators: the JWT manager (short-lived
// HS256 access tokens and opaque refresh tokens), the session store (a
// per-user whitelist mapping client IP to refresh token, capped at five
// devices), the cookie transport and the identity store.
//
// # Flows
//
//   - Register and Login create a session for the caller's IP and write the
//     access_token and refresh_token cookies.
//   - Logout clears both cookies and the caller's whitelist entry.
//   - Renew runs on every request (see the middleware package). An expired
//     access token is exchanged for a fresh pair when the refresh cookie
//     matches the whitelist entry for the caller's IP.
//
// The client IP travels in the request context; attach it with [WithClientIP].
//
// Session-side failures never fail a request. They are logged, counted and
// reported to callers only through the Outcome values of the session package.
package authcore
