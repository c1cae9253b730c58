// Package session owns the per-user session whitelist: one Record per user
// mapping client IP to the refresh token currently valid from that address.
//
// # Storage
//
// [Store] implements the whitelist rules on top of a [Repository]. Three
// repositories ship with the package: [PostgresRepository] (session_records
// table, jsonb column), [RedisRepository] (versioned binary encoding, see
// [Encode]) and [MemoryRepository].
//
// # Failure policy
//
// Store operations never return errors to the login or renewal paths. Backend
// failures and a missing client IP are logged and reported as an [Outcome].
//
// This package does not interpret access tokens or roles.
package session
