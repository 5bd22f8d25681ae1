// Package ratelimit implements Redis-backed sliding-window abuse control
// keyed by (identifier, action) with escalating blocks.
//
// # Window semantics
//
// Each (identifier, action) pair owns a window counter and, once the
// attempt budget is exhausted, a block key whose TTL outlives the window.
// The whole check (block lookup, increment, compare, block creation) runs
// as a single Lua script, so concurrent checks on the same key are
// linearizable and two racing callers can never both slip past the limit.
//
// Attempts are NOT incremented while a block is active: continued hammering
// does not extend the block. When the block key expires the counter is
// already gone, so the next check starts a fresh window at attempts=1.
//
// # What this package must NOT do
//
//   - Keep any in-process counter state; Redis is the only source of truth.
//   - Fail open: a Redis error surfaces to the caller, who must deny.
package ratelimit
