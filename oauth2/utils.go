package oauth2

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

const stateCookieName = "oauthstate"

// GenerateState produces the anti-forgery state value for one OAuth flow
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// SetStateCookie binds a state value to the caller's pre-auth context via a
// short-lived cookie
func SetStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// CheckState compares the state echoed by the provider against the value
// stored in the caller's cookie, then clears the cookie. A missing or
// mismatched state fails with ErrInvalidState: this is the CSRF defense for
// the OAuth dance.
func CheckState(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(stateCookieName)
	ClearStateCookie(w)
	if err != nil || cookie.Value == "" {
		return ErrInvalidState
	}
	got := r.FormValue("state")
	if subtle.ConstantTimeCompare([]byte(got), []byte(cookie.Value)) != 1 {
		return ErrInvalidState
	}
	return nil
}

// ClearStateCookie removes the state cookie so it cannot be replayed
func ClearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:    stateCookieName,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
}
