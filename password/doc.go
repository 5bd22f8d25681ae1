// Package password covers the credential-quality surface: argon2id hashing
// in PHC string format, the strength scoring engine, and the Redis-backed
// reuse history.
//
// Scoring and validation are deliberately separate: Score is advisory UI
// feedback, Validate is the hard gate. A password is only accepted when the
// hard requirements pass AND it does not verify against any recent hash in
// the user's history.
package password
