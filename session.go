package authgate

import (
	"context"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
)

// Session variable holding the authenticated user id
const sessionUserKey = "loggedInUserId"

// Sessions is the injected session capability: establish on login, validate on
// every authenticated request, destroy on logout. Sessions carry no
// authorization scope beyond the user id.
type Sessions interface {
	// Establish binds the request's session to userID, invalidating any prior
	// session token first (session fixation defense)
	Establish(ctx context.Context, userID string) error

	// Validate returns the user id bound to the current session.
	// Fails with ErrNoSession or ErrSessionExpired.
	Validate(ctx context.Context) (string, error)

	// Destroy removes the current session. No-op if none exists.
	Destroy(ctx context.Context) error
}

// SCSSessions implements Sessions on top of alexedwards/scs server-side
// sessions. Handlers must run under the Middleware (scs LoadAndSave) so the
// request context carries the session data.
type SCSSessions struct {
	Manager *scs.SessionManager
}

func NewSCSSessions(ttl time.Duration) *SCSSessions {
	m := scs.New()
	if ttl > 0 {
		m.Lifetime = ttl
	}
	m.Cookie.HttpOnly = true
	m.Cookie.SameSite = http.SameSiteLaxMode
	return &SCSSessions{Manager: m}
}

// Middleware loads and saves session data for wrapped handlers
func (s *SCSSessions) Middleware(next http.Handler) http.Handler {
	return s.Manager.LoadAndSave(next)
}

func (s *SCSSessions) Establish(ctx context.Context, userID string) error {
	// Rotate the session token before binding the user so an attacker-chosen
	// pre-auth token never becomes an authenticated one
	if err := s.Manager.RenewToken(ctx); err != nil {
		return err
	}
	s.Manager.Put(ctx, sessionUserKey, userID)
	return nil
}

func (s *SCSSessions) Validate(ctx context.Context) (string, error) {
	userID := s.Manager.GetString(ctx, sessionUserKey)
	if userID == "" {
		return "", ErrNoSession
	}
	return userID, nil
}

func (s *SCSSessions) Destroy(ctx context.Context) error {
	// scs treats destroying an empty session as a no-op, which matches the
	// logout contract
	return s.Manager.Destroy(ctx)
}
