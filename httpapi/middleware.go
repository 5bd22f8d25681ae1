package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/contractdesk/authcore"
)

type ctxKey int

const authResultKey ctxKey = iota

// withRequestMeta stamps client IP and user agent onto the context so the
// engine can rate-limit by source and attribute audit events.
func (h *Handler) withRequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ip := clientIP(r); ip != "" {
			ctx = authcore.WithClientIP(ctx, ip)
		}
		if ua := r.UserAgent(); ua != "" {
			ctx = authcore.WithUserAgent(ctx, ua)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth admits requests carrying a valid access token, either as
// the auth-token cookie or an Authorization bearer header.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := accessTokenFrom(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		auth, err := h.engine.ValidateAccess(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		ctx := context.WithValue(r.Context(), authResultKey, auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireCSRF enforces the double-submit check: the X-CSRF-Token header
// must match the HMAC derived from the refresh-token cookie.
func (h *Handler) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh := cookieValue(r, cookieRefresh)
		provided := r.Header.Get(headerCSRF)
		if refresh == "" || provided == "" || !h.engine.ValidateCSRF(provided, refresh) {
			writeError(w, http.StatusForbidden, "csrf_invalid")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authResultFrom(r *http.Request) *authcore.AuthResult {
	auth, _ := r.Context().Value(authResultKey).(*authcore.AuthResult)
	return auth
}

func accessTokenFrom(r *http.Request) string {
	if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
		return strings.TrimPrefix(bearer, "Bearer ")
	}
	return cookieValue(r, cookieAccess)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware already folded X-Forwarded-For / X-Real-IP
	// into RemoteAddr.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
