package auth

import (
	"net/http"
	"strings"
	"time"
)

const (
	// CookieName is the session cookie.
	CookieName = "authToken"
	// RefreshedTokenHeader carries a re-issued token for non-cookie clients.
	RefreshedTokenHeader = "X-Auth-Token"
)

// ExtractToken returns the session token from the cookie, falling back to an
// Authorization bearer header.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// CookieConfig controls how the session cookie is written.
type CookieConfig struct {
	Secure bool
	MaxAge time.Duration
}

// SetSessionCookie writes token as the session cookie.
func SetSessionCookie(w http.ResponseWriter, cfg CookieConfig, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
