// Package authcore is a Redis-backed authentication engine: credential
// sign-up and sign-in, TOTP and backup-code MFA, opaque rotating refresh
// tokens with short-lived JWT access tokens, escalating rate limits,
// password policy and history, CSRF tokens, and an async audit trail.
//
// The engine owns no user database. Callers implement [UserProvider]
// against their own storage; authcore drives the security protocol around
// it. Construct an [Engine] through the [Builder]:
//
//	engine, err := authcore.New().
//		WithRedis(rdb).
//		WithUserProvider(provider).
//		WithAuditSink(sink).
//		Build()
//
// All engine operations take a context; attach request metadata with
// [WithClientIP] and [WithUserAgent] so rate limiting and audit events can
// see the caller.
package authcore
