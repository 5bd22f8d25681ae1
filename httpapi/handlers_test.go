package httpapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUpAndVerifyFlow(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.request(t, http.MethodPost, "/auth/signup", map[string]any{
		"email":       "flow@example.com",
		"password":    testPassword,
		"fullName":    "Flow Tester",
		"acceptTerms": true,
	}, nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["verificationPending"])
	assert.NotEmpty(t, body["userId"])

	// Unverified accounts cannot sign in yet.
	resp, body = ts.request(t, http.MethodPost, "/auth/signin", map[string]any{
		"email":    "flow@example.com",
		"password": testPassword,
	}, nil, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "email_not_verified", body["error"])
	assert.Nil(t, cookieNamed(resp.Cookies(), cookieAccess), "no session cookie before verification")

	token := ts.verify.tokenFor("flow@example.com")
	require.NotEmpty(t, token)
	resp, _ = ts.request(t, http.MethodPost, "/auth/verify-email", map[string]any{"token": token}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.request(t, http.MethodPost, "/auth/signin", map[string]any{
		"email":    "flow@example.com",
		"password": testPassword,
	}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["csrfToken"])

	access := cookieNamed(resp.Cookies(), cookieAccess)
	refresh := cookieNamed(resp.Cookies(), cookieRefresh)
	csrf := cookieNamed(resp.Cookies(), cookieCSRF)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	require.NotNil(t, csrf)
	assert.True(t, access.HttpOnly)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, "/auth", refresh.Path)
}

func TestSignUpRejections(t *testing.T) {
	ts := newTestServer(t)

	// Terms not accepted.
	resp, body := ts.request(t, http.MethodPost, "/auth/signup", map[string]any{
		"email":       "terms@example.com",
		"password":    testPassword,
		"acceptTerms": false,
	}, nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "terms_not_accepted", body["error"])

	// Weak password carries field feedback.
	resp, body = ts.request(t, http.MethodPost, "/auth/signup", map[string]any{
		"email":       "weak@example.com",
		"password":    "short",
		"acceptTerms": true,
	}, nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "password_policy", body["error"])
	assert.NotEmpty(t, body["fields"])

	// Duplicate email.
	signup := map[string]any{
		"email":       "dup@example.com",
		"password":    testPassword,
		"acceptTerms": true,
	}
	resp, _ = ts.request(t, http.MethodPost, "/auth/signup", signup, nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body = ts.request(t, http.MethodPost, "/auth/signup", signup, nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "account_exists", body["error"])
}

func TestSignInGenericFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.signUpVerified(t, "generic@example.com")

	// Wrong password and unknown account read identically.
	resp, body := ts.request(t, http.MethodPost, "/auth/signin", map[string]any{
		"email":    "generic@example.com",
		"password": "Wrong!Pass2024x",
	}, nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", body["error"])

	resp, body = ts.request(t, http.MethodPost, "/auth/signin", map[string]any{
		"email":    "ghost@example.com",
		"password": "Wrong!Pass2024x",
	}, nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", body["error"])
}

func TestSignInRateLimitHeaders(t *testing.T) {
	ts := newTestServer(t)
	ts.signUpVerified(t, "throttled@example.com")

	for i := 0; i < 5; i++ {
		resp, _ := ts.request(t, http.MethodPost, "/auth/signin", map[string]any{
			"email":    "throttled@example.com",
			"password": "Wrong!Pass2024x",
		}, nil, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	// The 6th attempt is refused before credentials are checked, even
	// though the password is now correct.
	resp, body := ts.request(t, http.MethodPost, "/auth/signin", map[string]any{
		"email":    "throttled@example.com",
		"password": testPassword,
	}, nil, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", body["error"])
	assert.Equal(t, "5", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestMFAFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.signUpVerified(t, "mfa-http@example.com")

	// Enable the authenticator through the API.
	cookies, csrf := ts.signIn(t, "mfa-http@example.com", testPassword)
	csrfHeader := map[string]string{headerCSRF: csrf}

	resp, body := ts.request(t, http.MethodPost, "/auth/totp/enroll", nil, cookies, csrfHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["secret"])

	userID := ts.provider.byEmail["mfa-http@example.com"]
	secret := ts.provider.totpSecret(userID)
	require.NotEmpty(t, secret)

	resp, _ = ts.request(t, http.MethodPost, "/auth/totp/confirm", map[string]any{
		"code": totpNow(secret),
	}, cookies, csrfHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Fresh sign-in now stops at the challenge, with no cookies.
	resp, body = ts.request(t, http.MethodPost, "/auth/signin", map[string]any{
		"email":    "mfa-http@example.com",
		"password": testPassword,
	}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["mfaRequired"])
	challengeID, _ := body["challengeId"].(string)
	require.NotEmpty(t, challengeID)
	assert.Nil(t, cookieNamed(resp.Cookies(), cookieAccess))
	assert.Nil(t, cookieNamed(resp.Cookies(), cookieRefresh))
	assert.Empty(t, body["accessToken"])

	// Wrong code is a 401; right code opens the session.
	resp, body = ts.request(t, http.MethodPost, "/auth/mfa/verify", map[string]any{
		"challengeId": challengeID,
		"code":        "000000",
	}, nil, nil)
	if resp.StatusCode == http.StatusOK {
		t.Fatal("wrong code accepted")
	}
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = ts.request(t, http.MethodPost, "/auth/mfa/verify", map[string]any{
		"challengeId": challengeID,
		"code":        totpNow(secret),
	}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, cookieNamed(resp.Cookies(), cookieAccess))
	assert.NotEmpty(t, body["accessToken"])
}

func TestCSRFEnforcement(t *testing.T) {
	ts := newTestServer(t)
	ts.signUpVerified(t, "csrf-a@example.com")
	ts.signUpVerified(t, "csrf-b@example.com")

	cookiesA, csrfA := ts.signIn(t, "csrf-a@example.com", testPassword)
	_, csrfB := ts.signIn(t, "csrf-b@example.com", testPassword)

	// Missing header.
	resp, body := ts.request(t, http.MethodPost, "/auth/signout", nil, cookiesA, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "csrf_invalid", body["error"])

	// Tampered header: flip one character.
	bad := []byte(csrfA)
	if bad[0] == 'a' {
		bad[0] = 'b'
	} else {
		bad[0] = 'a'
	}
	resp, _ = ts.request(t, http.MethodPost, "/auth/signout", nil, cookiesA, map[string]string{headerCSRF: string(bad)})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// A token minted for another session never transfers.
	resp, _ = ts.request(t, http.MethodPost, "/auth/signout", nil, cookiesA, map[string]string{headerCSRF: csrfB})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The matching token clears the session and expires the cookies.
	resp, _ = ts.request(t, http.MethodPost, "/auth/signout", nil, cookiesA, map[string]string{headerCSRF: csrfA})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := cookieNamed(resp.Cookies(), cookieAccess)
	require.NotNil(t, cleared)
	assert.True(t, cleared.MaxAge < 0 || cleared.Value == "")
}

func TestRefreshEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.signUpVerified(t, "refresh-http@example.com")

	cookies, _ := ts.signIn(t, "refresh-http@example.com", testPassword)

	resp, body := ts.request(t, http.MethodPost, "/auth/refresh", nil, cookies, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotNil(t, cookieNamed(resp.Cookies(), cookieAccess))

	// Without the cookie there is nothing to refresh.
	resp, body = ts.request(t, http.MethodPost, "/auth/refresh", nil, nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "session_invalid", body["error"])
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.request(t, http.MethodGet, "/auth/sessions", nil, nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", body["error"])

	resp, _ = ts.request(t, http.MethodPost, "/auth/totp/enroll", nil, nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.signUpVerified(t, "sessions@example.com")

	cookies, _ := ts.signIn(t, "sessions@example.com", testPassword)
	_, _ = ts.signIn(t, "sessions@example.com", testPassword)

	resp, body := ts.request(t, http.MethodGet, "/auth/sessions", nil, cookies, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessions, ok := body["sessions"].([]any)
	require.True(t, ok)
	assert.Len(t, sessions, 2)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.signUpVerified(t, "reset-http@example.com")

	// Requests for unknown accounts are indistinguishable from success.
	resp, _ := ts.request(t, http.MethodPost, "/auth/reset-password", map[string]any{
		"email": "ghost@example.com",
	}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, ts.reset.tokenFor("ghost@example.com"))

	resp, _ = ts.request(t, http.MethodPost, "/auth/reset-password", map[string]any{
		"email": "reset-http@example.com",
	}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := ts.reset.tokenFor("reset-http@example.com")
	require.NotEmpty(t, token)

	// Mismatched confirmation never reaches the engine.
	resp, body := ts.request(t, http.MethodPost, "/auth/reset-password/confirm", map[string]any{
		"token":           token,
		"password":        newPassword,
		"confirmPassword": "Different!Pass24",
	}, nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "passwords_do_not_match", body["error"])

	resp, _ = ts.request(t, http.MethodPost, "/auth/reset-password/confirm", map[string]any{
		"token":           token,
		"password":        newPassword,
		"confirmPassword": newPassword,
	}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Old password is dead, new one works.
	resp, _ = ts.request(t, http.MethodPost, "/auth/signin", map[string]any{
		"email":    "reset-http@example.com",
		"password": testPassword,
	}, nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, _ = ts.signIn(t, "reset-http@example.com", newPassword)
}

func TestBackupCodesOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.signUpVerified(t, "codes@example.com")

	cookies, csrf := ts.signIn(t, "codes@example.com", testPassword)
	csrfHeader := map[string]string{headerCSRF: csrf}

	// Codes require an enabled authenticator.
	resp, body := ts.request(t, http.MethodPost, "/auth/backup-codes", nil, cookies, csrfHeader)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "totp_not_enrolled", body["error"])

	resp, _ = ts.request(t, http.MethodPost, "/auth/totp/enroll", nil, cookies, csrfHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	userID := ts.provider.byEmail["codes@example.com"]
	secret := ts.provider.totpSecret(userID)
	resp, _ = ts.request(t, http.MethodPost, "/auth/totp/confirm", map[string]any{
		"code": totpNow(secret),
	}, cookies, csrfHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.request(t, http.MethodPost, "/auth/backup-codes", nil, cookies, csrfHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	codes, ok := body["codes"].([]any)
	require.True(t, ok)
	assert.Len(t, codes, 10)

	// Backup code completes an MFA challenge end to end.
	resp, body = ts.request(t, http.MethodPost, "/auth/signin", map[string]any{
		"email":    "codes@example.com",
		"password": testPassword,
	}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["mfaRequired"])
	challengeID, _ := body["challengeId"].(string)

	resp, _ = ts.request(t, http.MethodPost, "/auth/mfa/backup", map[string]any{
		"challengeId": challengeID,
		"code":        codes[0],
	}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, cookieNamed(resp.Cookies(), cookieAccess))
}

func TestResendVerificationOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.request(t, http.MethodPost, "/auth/signup", map[string]any{
		"email":       "pending@example.com",
		"password":    testPassword,
		"acceptTerms": true,
	}, nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := ts.verify.tokenFor("pending@example.com")

	resp, _ = ts.request(t, http.MethodPost, "/auth/verify-email/resend", map[string]any{
		"email": "pending@example.com",
	}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := ts.verify.tokenFor("pending@example.com")
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second)

	resp, _ = ts.request(t, http.MethodPost, "/auth/verify-email", map[string]any{"token": second}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A resend for the now-verified address looks exactly like a resend
	// for an unknown one: generic success, no token delivered.
	resp, body := ts.request(t, http.MethodPost, "/auth/verify-email/resend", map[string]any{
		"email": "pending@example.com",
	}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "verification_sent", body["message"])
	assert.Equal(t, second, ts.verify.tokenFor("pending@example.com"))

	resp, body = ts.request(t, http.MethodPost, "/auth/verify-email/resend", map[string]any{
		"email": "nobody@example.com",
	}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "verification_sent", body["message"])
}

func TestSignOutWithoutCookieStillClears(t *testing.T) {
	ts := newTestServer(t)
	ts.signUpVerified(t, "lone@example.com")
	cookies, csrf := ts.signIn(t, "lone@example.com", testPassword)

	// Signing out twice with the same cookie set is harmless.
	for i := 0; i < 2; i++ {
		resp, _ := ts.request(t, http.MethodPost, "/auth/signout", nil, cookies, map[string]string{headerCSRF: csrf})
		require.Equal(t, http.StatusOK, resp.StatusCode, "iteration %d", i)
	}
}

func TestTOTPCodeExpiryWindow(t *testing.T) {
	// The handler path accepts a code from the previous 30s step, which
	// keeps slow typists working across a boundary.
	ts := newTestServer(t)
	ts.signUpVerified(t, "skew@example.com")

	cookies, csrf := ts.signIn(t, "skew@example.com", testPassword)
	csrfHeader := map[string]string{headerCSRF: csrf}

	resp, _ := ts.request(t, http.MethodPost, "/auth/totp/enroll", nil, cookies, csrfHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	userID := ts.provider.byEmail["skew@example.com"]
	secret := ts.provider.totpSecret(userID)

	code := totpAt(secret, time.Now().Unix()/30-1)

	resp, _ = ts.request(t, http.MethodPost, "/auth/totp/confirm", map[string]any{"code": code}, cookies, csrfHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
