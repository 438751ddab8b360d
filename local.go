package authgate

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// HandleRegister processes local account registration.
// Body: email, username, password (form or JSON), optional confirm_password.
func (a *Auth) HandleRegister(w http.ResponseWriter, r *http.Request) {
	fields, authErr := parseBody(r, "email", "username", "password", "confirm_password")
	if authErr != nil {
		writeAuthError(w, http.StatusBadRequest, authErr)
		return
	}

	creds := &Credentials{
		Email:    fields["email"],
		Username: fields["username"],
		Password: fields["password"],
	}
	if authErr := ValidateRegistration(creds); authErr != nil {
		writeAuthError(w, http.StatusBadRequest, authErr)
		return
	}
	if confirm, ok := fields["confirm_password"]; ok && confirm != "" && confirm != creds.Password {
		writeAuthError(w, http.StatusBadRequest,
			NewAuthError(ErrCodeMissingField, "Passwords do not match", "confirm_password"))
		return
	}

	result, err := a.Register(creds.Email, creds.Username, creds.Password)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicateUsername) {
			status = http.StatusConflict
		}
		writeAuthError(w, status, NewAuthError(errorCode(err), err.Error(), dupField(err)))
		return
	}

	// Account creation and mail delivery are reported independently: the
	// account exists either way, pending verification.
	resp := map[string]any{
		"message":    "User created. Please check your email to verify your account.",
		"user_id":    result.User.ID,
		"email_sent": result.EmailSent,
	}
	if result.EmailErr != nil {
		resp["email_error"] = "verification email could not be sent; use resend-verification"
	}
	writeJSON(w, http.StatusCreated, resp)
}

// HandleLogin processes local email/password login
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	fields, authErr := parseBody(r, "email", "password")
	if authErr != nil {
		writeAuthError(w, http.StatusBadRequest, authErr)
		return
	}
	email, password := fields["email"], fields["password"]
	if email == "" || password == "" {
		writeAuthError(w, http.StatusBadRequest,
			NewAuthError(ErrCodeMissingField, "Email and password required", "email"))
		return
	}

	user, err := a.Login(r.Context(), email, password)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, ErrNotVerified) {
			status = http.StatusForbidden
		}
		writeAuthError(w, status, NewAuthError(errorCode(err), err.Error(), ""))
		return
	}

	a.finishLogin(w, r, user)
}

// HandleVerifyEmail redeems the token from the verification link
func (a *Auth) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	tokenValue := r.URL.Query().Get("token")
	if tokenValue == "" {
		writeAuthError(w, http.StatusBadRequest,
			NewAuthError(ErrCodeMissingField, "Token required", "token"))
		return
	}

	user, err := a.VerifyEmail(tokenValue)
	if err != nil {
		writeAuthError(w, http.StatusBadRequest, NewAuthError(errorCode(err), err.Error(), "token"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Email verified successfully",
		"user_id": user.ID,
	})
}

// HandleResendVerification re-issues the verification email for an
// unverified account
func (a *Auth) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	fields, authErr := parseBody(r, "email")
	if authErr != nil {
		writeAuthError(w, http.StatusBadRequest, authErr)
		return
	}
	email := fields["email"]
	if email == "" {
		writeAuthError(w, http.StatusBadRequest,
			NewAuthError(ErrCodeMissingField, "Email required", "email"))
		return
	}

	if err := a.ResendVerification(email); err != nil {
		// don't reveal whether the email exists; delivery failures are real
		if errors.Is(err, ErrUserNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
		writeAuthError(w, http.StatusBadGateway,
			NewAuthError("delivery_failed", "could not send the verification email", ""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleLogout destroys the current session unconditionally
func (a *Auth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Logout(r.Context()); err != nil {
		slog.Warn("logout failed", "err", err)
	}
	clearAuthCookie(w)
	if to := r.URL.Query().Get("to"); to != "" && strings.HasPrefix(to, "/") {
		http.Redirect(w, r, to, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
}

// finishLogin issues the tamper-evident auth token next to the established
// session and writes the login response
func (a *Auth) finishLogin(w http.ResponseWriter, r *http.Request, user *User) {
	token, err := a.signAuthToken(user.ID)
	if err != nil {
		slog.Warn("failed to sign auth token", "err", err)
	} else {
		setAuthCookie(w, token, a.Config.SessionTTL)
	}

	// OAuth flows arrive by redirect from the provider; send the browser back
	// to the app instead of returning JSON
	if r.Method == http.MethodGet {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": map[string]any{
			"id":       user.ID,
			"email":    user.Email,
			"username": user.Username,
		},
		"token": token,
	})
}

// parseBody reads the named fields from a urlencoded form or a JSON body
func parseBody(r *http.Request, names ...string) (map[string]string, *AuthError) {
	out := map[string]string{}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return nil, NewAuthError("parse_error", "Invalid post body", "")
		}
		for _, name := range names {
			if v, ok := data[name].(string); ok {
				out[name] = v
			}
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, NewAuthError("parse_error", "Error parsing form", "")
	}
	for _, name := range names {
		out[name] = r.FormValue(name)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeAuthError(w http.ResponseWriter, status int, authErr *AuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": authErr.Message,
		"code":  authErr.Code,
		"field": authErr.Field,
	})
}

// dupField names the offending field for duplicate errors
func dupField(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return "email"
	case errors.Is(err, ErrDuplicateUsername):
		return "username"
	default:
		return ""
	}
}
