// Package session implements the Redis-backed session store: persistence,
// lazy expiry, refresh-token rotation with reuse detection, and per-user
// revocation.
//
// # Rotation protocol
//
// A refresh token encodes the session ID and an opaque secret; only the
// SHA-256 of the secret is stored. Rotation is a single Lua
// compare-and-swap: the provided hash must match the live hash, the old
// hash is demoted to a short grace slot, and a new hash and expiry are
// installed atomically. Two concurrent refreshes therefore converge on one
// winner; the loser's token keeps validating until the grace deadline and
// then dies. A token that matches neither slot is treated as reuse of a
// stolen token and destroys the session.
//
// # What this package must NOT do
//
//   - Hold session state in process memory; Redis is authoritative.
//   - Store refresh secrets in recoverable form.
package session
