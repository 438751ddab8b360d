package authgate

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

type ctxKey string

// Context key under which middleware stores the authenticated user id
const userIDKey ctxKey = "authgate.userID"

// UserIDFromRequest returns the user id middleware attached to the request,
// or "" for anonymous requests
func UserIDFromRequest(r *http.Request) string {
	if v, ok := r.Context().Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// resolveUser finds the authenticated user for a request: the server-side
// session first, then the signed auth token from cookie or header.
func (a *Auth) resolveUser(r *http.Request) (string, error) {
	if userID, err := a.Sessions.Validate(r.Context()); err == nil {
		return userID, nil
	}

	// Header.Values returns the live slice; trim into a copy so the request's
	// Authorization header survives for downstream handlers
	var tokens []string
	for _, t := range r.Header.Values("Authorization") {
		if len(t) > 7 && (t[:7] == "Bearer " || t[:7] == "bearer ") {
			t = t[7:]
		}
		tokens = append(tokens, t)
	}
	for _, cookie := range r.CookiesNamed(AuthTokenCookieName) {
		if cookie.Value != "" {
			tokens = append(tokens, cookie.Value)
		}
	}

	var lastErr error = ErrNoSession
	for _, t := range tokens {
		userID, err := a.VerifyAuthToken(t)
		if err == nil && userID != "" {
			return userID, nil
		}
		if errors.Is(err, ErrSessionExpired) {
			lastErr = err
		}
	}
	return "", lastErr
}

// ExtractUser attaches the authenticated user id, when there is one, to the
// request context. It never rejects a request; use EnsureUser for that.
func (a *Auth) ExtractUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := a.resolveUser(r)
		next.ServeHTTP(w, withUserID(r, userID))
	})
}

// EnsureUser requires an authenticated user. Requests without one are
// redirected to the login URL with the original path in the callbackURL
// param, rather than errored.
func (a *Auth) EnsureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.resolveUser(r)
		if err != nil {
			loginURL := a.Config.LoginURL
			if loginURL == "" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			target := loginURL + "?callbackURL=" + url.QueryEscape(r.URL.Path)
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		next.ServeHTTP(w, withUserID(r, userID))
	})
}

func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
}
