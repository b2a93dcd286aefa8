package session

import (
	"net/http"
	"strings"
	"time"
)

// CookieName is the session cookie set on login.
const CookieName = "admin_session"

// SetSessionCookie stores the token in an HttpOnly, SameSite=Strict cookie.
func SetSessionCookie(w http.ResponseWriter, token string, claims *Claims, secure bool) {
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(DefaultTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
	if claims != nil && claims.ExpiresAt != nil {
		cookie.Expires = claims.ExpiresAt.Time.UTC()
		if claims.IssuedAt != nil {
			cookie.MaxAge = int(claims.ExpiresAt.Sub(claims.IssuedAt.Time) / time.Second)
		}
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie instructs the client to discard the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// TokenFromRequest reads the session cookie, falling back to a bearer token.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}
