package httpapi

import (
	"net/http"
	"strings"
	"time"
)

type resetRequest struct {
	Email string `json:"email"`
}

// handleResetRequest always answers 200 for well-formed input. Whether an
// account exists is deliberately unobservable here.
func (h *Handler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email_required")
		return
	}

	token, err := h.engine.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if token != "" && h.opts.ResetNotifier != nil {
		h.opts.ResetNotifier(req.Email, token)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "reset_requested"})
}

type resetConfirmRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "token_and_password_required")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "passwords_do_not_match")
		return
	}

	if err := h.engine.CompletePasswordReset(r.Context(), req.Token, req.Password); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password_updated"})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token_required")
		return
	}

	if err := h.engine.ConfirmEmail(r.Context(), req.Token); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "email_verified"})
}

func (h *Handler) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email_required")
		return
	}

	token, err := h.engine.ResendVerification(r.Context(), req.Email)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if token != "" && h.opts.VerificationNotifier != nil {
		h.opts.VerificationNotifier(req.Email, token)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "verification_sent"})
}

type sessionView struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	auth := authResultFrom(r)
	if auth == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	sessions, err := h.engine.ActiveSessions(r.Context(), auth.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:        s.ID,
			IP:        s.IP,
			UserAgent: s.UserAgent,
			CreatedAt: time.Unix(s.CreatedAt, 0).UTC(),
			ExpiresAt: time.Unix(s.ExpiresAt, 0).UTC(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

type totpEnrollResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

func (h *Handler) handleTOTPEnroll(w http.ResponseWriter, r *http.Request) {
	auth := authResultFrom(r)
	if auth == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	enrollment, err := h.engine.EnrollTOTP(r.Context(), auth.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totpEnrollResponse{
		Secret: enrollment.SecretBase32,
		URI:    enrollment.URI,
	})
}

type totpCodeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleTOTPConfirm(w http.ResponseWriter, r *http.Request) {
	auth := authResultFrom(r)
	if auth == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req totpCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code_required")
		return
	}

	if err := h.engine.ConfirmTOTPEnrollment(r.Context(), auth.UserID, req.Code); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "totp_enabled"})
}

func (h *Handler) handleTOTPDisable(w http.ResponseWriter, r *http.Request) {
	auth := authResultFrom(r)
	if auth == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req totpCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code_required")
		return
	}

	if err := h.engine.DisableTOTP(r.Context(), auth.UserID, req.Code); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "totp_disabled"})
}

func (h *Handler) handleBackupCodes(w http.ResponseWriter, r *http.Request) {
	auth := authResultFrom(r)
	if auth == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	codes, err := h.engine.GenerateBackupCodes(r.Context(), auth.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"codes": codes})
}
