package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

const (
	// CSRFCookieName holds the cookie-resident copy of the double-submit pair.
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName carries the second copy on unsafe requests.
	CSRFHeaderName = "X-CSRF-Token"
	// CSRFFormField is the body fallback for form posts.
	CSRFFormField = "csrf_token"
)

// CSRFGuard implements double-submit cookie protection. A request passes
// only when the cookie copy and the header/body copy are both present and
// byte-equal. Verification never mutates state and never returns an error;
// every failure mode is a plain false.
type CSRFGuard struct {
	tokenTTL time.Duration
	secure   bool
}

// NewCSRFGuard creates a guard. secure controls the Secure cookie flag and
// should be true in production.
func NewCSRFGuard(tokenTTL time.Duration, secure bool) *CSRFGuard {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &CSRFGuard{tokenTTL: tokenTTL, secure: secure}
}

// Issue generates a new CSRF token: 32 random bytes, hex-encoded.
func (g *CSRFGuard) Issue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Attach ensures the request carries a CSRF cookie, issuing and setting one
// when absent. Returns the token in effect after the call. Tokens are not
// rotated on verification; they persist until TTL expiry or reissue.
func (g *CSRFGuard) Attach(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(CSRFCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	token, err := g.Issue()
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.tokenTTL.Seconds()),
		Expires:  time.Now().Add(g.tokenTTL),
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

// Verify checks the double-submit pair. Safe methods always pass. Unsafe
// methods require both copies present and exactly equal; any absence or
// mismatch fails closed.
func (g *CSRFGuard) Verify(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}

	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	presented := r.Header.Get(CSRFHeaderName)
	if presented == "" {
		presented = r.PostFormValue(CSRFFormField)
	}
	if presented == "" {
		return false
	}

	if len(presented) != len(cookie.Value) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(cookie.Value)) == 1
}

// Clear removes the CSRF cookie, forcing a reissue on the next Attach.
func (g *CSRFGuard) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
