package authgate

import "errors"

// Sentinel errors for every failure the auth state machine can surface.
// Store implementations translate backend-specific failures (unique constraint
// violations, missing rows) into these before returning, so callers never see
// raw storage errors.
var (
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrUserNotFound      = errors.New("user not found")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotVerified        = errors.New("email not verified")

	ErrTokenNotFound = errors.New("verification token not found")
	ErrTokenExpired  = errors.New("verification token expired")
	ErrTokenConsumed = errors.New("verification token already used")

	ErrDeliveryFailed = errors.New("verification email delivery failed")

	ErrNoSession      = errors.New("no active session")
	ErrSessionExpired = errors.New("session expired")
)

// Error codes used in JSON error responses
const (
	ErrCodeEmailExists     = "email_exists"
	ErrCodeUsernameTaken   = "username_taken"
	ErrCodeInvalidCreds    = "invalid_credentials"
	ErrCodeNotVerified     = "not_verified"
	ErrCodeTokenNotFound   = "token_not_found"
	ErrCodeTokenExpired    = "token_expired"
	ErrCodeTokenConsumed   = "token_consumed"
	ErrCodeInvalidState    = "invalid_oauth_state"
	ErrCodeOAuthFailed     = "oauth_failed"
	ErrCodeMissingEmail    = "missing_email_claim"
	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidEmail    = "invalid_email"
	ErrCodeInvalidUsername = "invalid_username"
	ErrCodeWeakPassword    = "weak_password"
	ErrCodeNoSession       = "no_session"
)

// AuthError is a structured authentication error for HTTP responses
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"` // which input field caused the error, if any
}

func (e *AuthError) Error() string {
	return e.Message
}

func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// errorCode maps a sentinel error to its wire-level error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return ErrCodeEmailExists
	case errors.Is(err, ErrDuplicateUsername):
		return ErrCodeUsernameTaken
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserNotFound):
		return ErrCodeInvalidCreds
	case errors.Is(err, ErrNotVerified):
		return ErrCodeNotVerified
	case errors.Is(err, ErrTokenNotFound):
		return ErrCodeTokenNotFound
	case errors.Is(err, ErrTokenExpired):
		return ErrCodeTokenExpired
	case errors.Is(err, ErrTokenConsumed):
		return ErrCodeTokenConsumed
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrSessionExpired):
		return ErrCodeNoSession
	default:
		return "auth_failed"
	}
}
