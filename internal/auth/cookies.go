package auth

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookieName  = "access_token"
	RefreshTokenCookieName = "refresh_token"

	// The refresh cookie is scoped to the refresh endpoint so it never
	// rides along on ordinary API calls.
	refreshCookiePath = "/auth/refresh"
)

// CookieConfig holds session cookie settings.
type CookieConfig struct {
	Domain string // Empty string = current host only
	Secure bool   // HTTPS only; true in production
}

// SetSessionCookies stores both tokens as HTTP-only, SameSite=Strict
// cookies with lifetimes matching the token expiries.
func SetSessionCookies(w http.ResponseWriter, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookieName,
		Value:    accessToken,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(accessTTL),
		MaxAge:   int(accessTTL.Seconds()),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookieName,
		Value:    refreshToken,
		Path:     refreshCookiePath,
		Domain:   config.Domain,
		Expires:  time.Now().Add(refreshTTL),
		MaxAge:   int(refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookies revokes the session at the transport by deleting both
// token cookies.
func ClearSessionCookies(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetAccessTokenCookie retrieves the access token from cookies.
func GetAccessTokenCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(AccessTokenCookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetRefreshTokenCookie retrieves the refresh token from cookies.
func GetRefreshTokenCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(RefreshTokenCookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
