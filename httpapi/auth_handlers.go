package httpapi

import (
	"net/http"
	"strings"

	"github.com/contractdesk/authcore"
)

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"fullName"`
	AcceptTerms bool   `json:"acceptTerms"`
}

type signUpResponse struct {
	UserID              string `json:"userId"`
	VerificationPending bool   `json:"verificationPending"`
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.AcceptTerms {
		writeError(w, http.StatusBadRequest, "terms_not_accepted")
		return
	}

	result, err := h.engine.SignUp(r.Context(), authcore.SignUpInput{
		Email:    req.Email,
		Name:     strings.TrimSpace(req.FullName),
		Password: req.Password,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if result.VerificationToken != "" && h.opts.VerificationNotifier != nil {
		h.opts.VerificationNotifier(req.Email, result.VerificationToken)
	}

	writeJSON(w, http.StatusCreated, signUpResponse{
		UserID:              result.UserID,
		VerificationPending: result.VerificationToken != "",
	})
}

type signInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type signInResponse struct {
	UserID       string `json:"userId"`
	MFARequired  bool   `json:"mfaRequired,omitempty"`
	ChallengeID  string `json:"challengeId,omitempty"`
	CSRFToken    string `json:"csrfToken,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email_and_password_required")
		return
	}

	result, err := h.engine.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if result.MFARequired {
		// No cookies until the second factor clears.
		writeJSON(w, http.StatusOK, signInResponse{
			UserID:      result.UserID,
			MFARequired: true,
			ChallengeID: result.MFAChallengeID,
		})
		return
	}

	h.completeSignIn(w, result)
}

// completeSignIn sets the session cookies and writes the signed-in body.
// The tokens ride in the JSON as well for non-browser clients.
func (h *Handler) completeSignIn(w http.ResponseWriter, result *authcore.SignInResult) {
	h.setSessionCookies(w, result)
	writeJSON(w, http.StatusOK, signInResponse{
		UserID:       result.UserID,
		CSRFToken:    result.CSRFToken,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

type mfaRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

func (h *Handler) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	var req mfaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ChallengeID == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "challenge_and_code_required")
		return
	}

	result, err := h.engine.ConfirmTOTP(r.Context(), req.ChallengeID, req.Code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.completeSignIn(w, result)
}

func (h *Handler) handleMFABackup(w http.ResponseWriter, r *http.Request) {
	var req mfaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ChallengeID == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "challenge_and_code_required")
		return
	}

	result, err := h.engine.ConfirmBackupCode(r.Context(), req.ChallengeID, req.Code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.completeSignIn(w, result)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refresh := cookieValue(r, cookieRefresh)
	if refresh == "" {
		writeError(w, http.StatusUnauthorized, "session_invalid")
		return
	}

	result, err := h.engine.RefreshSession(r.Context(), refresh)
	if err != nil {
		h.clearSessionCookies(w)
		writeEngineError(w, err)
		return
	}
	h.completeSignIn(w, result)
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	refresh := cookieValue(r, cookieRefresh)
	if refresh != "" {
		if err := h.engine.SignOut(r.Context(), refresh); err != nil {
			writeEngineError(w, err)
			return
		}
	}
	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed_out"})
}

func (h *Handler) handleSignOutAll(w http.ResponseWriter, r *http.Request) {
	auth := authResultFrom(r)
	if auth == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	if err := h.engine.SignOutAll(r.Context(), auth.UserID); err != nil {
		writeEngineError(w, err)
		return
	}
	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed_out"})
}
