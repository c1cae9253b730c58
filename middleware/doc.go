// Package middleware adapts the authcore engine to net/http.
//
//   - [ClientIP] attaches the caller's address to the request context.
//   - [Renewal] runs the per-request token renewal step and always sets the
//     Authorization header to "Bearer <token>", with an empty token when the
//     request has none.
//   - [Guard] and [RequireRole] authorize requests from that header.
//
// Mount them in this order: ClientIP, Renewal, then Guard on protected routes.
package middleware
