// Package stores holds the Redis-backed single-use challenge state behind
// password reset, email verification, and MFA sign-in: short-lived records
// that must be consumable exactly once and must count failed attempts
// atomically.
//
// Tokens handed to users are never persisted; only their SHA-256 digests
// are stored, so a Redis snapshot cannot be replayed into live challenges.
package stores
