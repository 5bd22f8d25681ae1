package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/contractdesk/authcore"
	"github.com/contractdesk/authcore/password"
)

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("httpapi: response encode failed: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}

// writeEngineError maps engine sentinels onto the HTTP error contract.
// Credential failures collapse onto one generic message so the response
// never reveals which part of the credential was wrong.
func writeEngineError(w http.ResponseWriter, err error) {
	var rle *authcore.RateLimitError
	if errors.As(err, &rle) {
		writeRateLimited(w, rle)
		return
	}

	var violation *password.PolicyViolationError
	if errors.Is(err, authcore.ErrPasswordPolicy) && errors.As(err, &violation) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "password_policy",
			Fields: violation.Feedback,
		})
		return
	}

	switch {
	case errors.Is(err, authcore.ErrSignUpInvalid):
		writeError(w, http.StatusBadRequest, "invalid_signup")
	case errors.Is(err, authcore.ErrPasswordPolicy):
		writeError(w, http.StatusBadRequest, "password_policy")
	case errors.Is(err, authcore.ErrPasswordReused):
		writeError(w, http.StatusBadRequest, "password_reused")
	case errors.Is(err, authcore.ErrAccountExists):
		writeError(w, http.StatusConflict, "account_exists")
	case errors.Is(err, authcore.ErrAccountUnverified):
		writeError(w, http.StatusForbidden, "email_not_verified")
	case errors.Is(err, authcore.ErrAccountDisabled), errors.Is(err, authcore.ErrAccountLocked):
		writeError(w, http.StatusForbidden, "account_unavailable")
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, authcore.ErrMFAChallengeInvalid):
		writeError(w, http.StatusUnauthorized, "mfa_challenge_invalid")
	case errors.Is(err, authcore.ErrMFAAttemptsExceeded):
		writeError(w, http.StatusUnauthorized, "mfa_attempts_exceeded")
	case errors.Is(err, authcore.ErrTOTPInvalid), errors.Is(err, authcore.ErrBackupCodeInvalid):
		writeError(w, http.StatusUnauthorized, "invalid_code")
	case errors.Is(err, authcore.ErrTOTPNotEnrolled):
		writeError(w, http.StatusBadRequest, "totp_not_enrolled")
	case errors.Is(err, authcore.ErrTOTPAlreadyEnabled):
		writeError(w, http.StatusConflict, "totp_already_enabled")
	case errors.Is(err, authcore.ErrRefreshInvalid),
		errors.Is(err, authcore.ErrRefreshReuse),
		errors.Is(err, authcore.ErrSessionNotFound),
		errors.Is(err, authcore.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, "session_invalid")
	case errors.Is(err, authcore.ErrVerificationInvalid):
		writeError(w, http.StatusBadRequest, "verification_invalid")
	case errors.Is(err, authcore.ErrResetInvalid):
		writeError(w, http.StatusBadRequest, "reset_invalid")
	case errors.Is(err, authcore.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable")
	default:
		log.Printf("httpapi: unmapped engine error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func writeRateLimited(w http.ResponseWriter, rle *authcore.RateLimitError) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rle.Limit))
	w.Header().Set("X-RateLimit-Remaining", "0")
	if !rle.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rle.ResetAt.Unix(), 10))
	}
	if rle.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds()+0.999)))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return false
	}
	return true
}
