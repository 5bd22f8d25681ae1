// Package httpapi exposes the auth engine over HTTP. It owns the cookie
// contract (auth-token, refresh-token, csrf-token), the rate-limit
// response headers, and the mapping from engine sentinels to status
// codes. Everything stateful lives in the engine; handlers here only
// translate.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/contractdesk/authcore"
)

const (
	cookieAccess  = "auth-token"
	cookieRefresh = "refresh-token"
	cookieCSRF    = "csrf-token"

	headerCSRF = "X-CSRF-Token"
)

// Notifier delivers a token that must reach the user out of band, such
// as a verification or reset link. The HTTP layer never returns these
// tokens in responses.
type Notifier func(email, token string)

// Options tune the HTTP boundary. Zero values get sane defaults.
type Options struct {
	// SecureCookies sets the Secure flag; leave false only for local dev.
	SecureCookies bool
	CookieDomain  string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// VerificationNotifier receives email verification tokens.
	VerificationNotifier Notifier
	// ResetNotifier receives password reset tokens.
	ResetNotifier Notifier
}

// Handler serves the /auth API backed by an [authcore.Engine].
type Handler struct {
	engine *authcore.Engine
	opts   Options
}

func NewHandler(engine *authcore.Engine, opts Options) *Handler {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 8 * time.Hour
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Handler{engine: engine, opts: opts}
}

// Router assembles the chi routing tree.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.withRequestMeta)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.handleSignUp)
		r.Post("/signin", h.handleSignIn)
		r.Post("/mfa/verify", h.handleMFAVerify)
		r.Post("/mfa/backup", h.handleMFABackup)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/reset-password", h.handleResetRequest)
		r.Post("/reset-password/confirm", h.handleResetConfirm)
		r.Post("/verify-email", h.handleVerifyEmail)
		r.Post("/verify-email/resend", h.handleResendVerification)

		// Session-bound operations need the csrf double-submit.
		r.Group(func(r chi.Router) {
			r.Use(h.requireCSRF)
			r.Post("/signout", h.handleSignOut)
		})

		// Account security operations need a live access token as well.
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/sessions", h.handleSessions)

			r.Group(func(r chi.Router) {
				r.Use(h.requireCSRF)
				r.Post("/signout-all", h.handleSignOutAll)
				r.Post("/totp/enroll", h.handleTOTPEnroll)
				r.Post("/totp/confirm", h.handleTOTPConfirm)
				r.Post("/totp/disable", h.handleTOTPDisable)
				r.Post("/backup-codes", h.handleBackupCodes)
			})
		})
	})

	return r
}

// setSessionCookies installs the full cookie set for a signed-in session.
func (h *Handler) setSessionCookies(w http.ResponseWriter, result *authcore.SignInResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieAccess,
		Value:    result.AccessToken,
		Path:     "/",
		Domain:   h.opts.CookieDomain,
		MaxAge:   int(h.opts.AccessTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     cookieRefresh,
		Value:    result.RefreshToken,
		Path:     "/auth",
		Domain:   h.opts.CookieDomain,
		MaxAge:   int(h.opts.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     cookieCSRF,
		Value:    result.CSRFToken,
		Path:     "/",
		Domain:   h.opts.CookieDomain,
		MaxAge:   int(h.opts.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for _, spec := range []struct {
		name string
		path string
	}{
		{cookieAccess, "/"},
		{cookieRefresh, "/auth"},
		{cookieCSRF, "/"},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     spec.name,
			Value:    "",
			Path:     spec.path,
			Domain:   h.opts.CookieDomain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.opts.SecureCookies,
		})
	}
}
