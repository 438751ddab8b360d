package authgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	oa2 "github.com/trainlog/authgate/oauth2"
)

// Auth is the orchestrator tying the stores, the mailer, the OAuth providers
// and the session manager together. Every entry point (register, verify,
// login, oauth callback, logout) goes through it.
//
// Per registration attempt the account moves Unregistered ->
// PendingVerification -> Verified; there is no locked-out or disabled state.
type Auth struct {
	Users    UserStore
	Tokens   TokenStore
	Email    EmailSender
	Sessions Sessions

	// Closed set of federated login variants, keyed by provider name
	Providers map[string]oa2.Provider

	Config *Config
}

// New builds the orchestrator from its explicit dependencies. Providers are
// registered from the config; only configured ones are enabled.
func New(cfg *Config, users UserStore, tokens TokenStore, email EmailSender, sessions Sessions) *Auth {
	a := &Auth{
		Users:     users,
		Tokens:    tokens,
		Email:     email,
		Sessions:  sessions,
		Providers: map[string]oa2.Provider{},
		Config:    cfg,
	}
	if cfg.GoogleClientID != "" {
		a.AddProvider(oa2.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret,
			cfg.BaseURL+"/auth/google/callback"))
	}
	if cfg.GithubClientID != "" {
		a.AddProvider(oa2.NewGithub(cfg.GithubClientID, cfg.GithubClientSecret,
			cfg.BaseURL+"/auth/github/callback"))
	}
	return a
}

// AddProvider registers a federated login variant
func (a *Auth) AddProvider(p oa2.Provider) *Auth {
	a.Providers[p.Name()] = p
	return a
}

// Routes mounts the auth endpoints on a gorilla/mux router. Callers wrap the
// router (or the whole server) with Sessions middleware so session data is
// loaded for every request.
func (a *Auth) Routes(r *mux.Router) {
	r.HandleFunc("/auth/register", a.HandleRegister).Methods("POST")
	r.HandleFunc("/auth/login", a.HandleLogin).Methods("POST")
	r.HandleFunc("/auth/logout", a.HandleLogout).Methods("POST")
	r.HandleFunc("/auth/verify", a.HandleVerifyEmail).Methods("GET")
	r.HandleFunc("/auth/resend-verification", a.HandleResendVerification).Methods("POST")
	r.HandleFunc("/auth/{provider}", a.HandleOAuthStart).Methods("GET")
	r.HandleFunc("/auth/{provider}/callback", a.HandleOAuthCallback).Methods("GET")
}

// =============================================================================
// Core state machine operations
// =============================================================================

// RegisterResult reports the two independent outcomes of a registration:
// account creation and verification-mail delivery. Registration succeeds even
// when the mail could not be sent; EmailErr carries the delivery failure so
// the caller can offer a resend.
type RegisterResult struct {
	User      *User
	EmailSent bool
	EmailErr  error
}

// Register creates a local account in PendingVerification and sends the
// verification email. Fails with ErrDuplicateEmail or ErrDuplicateUsername.
func (a *Auth) Register(email, username, password string) (*RegisterResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := a.Users.CreateLocalUser(email, username, string(hash))
	if err != nil {
		return nil, err
	}

	result := &RegisterResult{User: user}
	result.EmailSent, result.EmailErr = a.sendVerification(user)
	return result, nil
}

// sendVerification issues a fresh token and mails the verification link
func (a *Auth) sendVerification(user *User) (bool, error) {
	token, err := a.Tokens.CreateToken(user.ID, user.Email, a.Config.VerificationTTL)
	if err != nil {
		return false, err
	}
	link := fmt.Sprintf("%s/auth/verify?token=%s", a.Config.BaseURL, token.Token)
	if err := a.Email.SendVerificationEmail(user.Email, link); err != nil {
		slog.Warn("verification email delivery failed", "email", user.Email, "err", err)
		return false, err
	}
	return true, nil
}

// VerifyEmail redeems a verification token and transitions the owning user to
// Verified. On any token failure no state changes and the specific failure
// kind is returned.
func (a *Auth) VerifyEmail(tokenValue string) (*User, error) {
	userID, err := a.Tokens.RedeemToken(tokenValue)
	if err != nil {
		return nil, err
	}
	if err := a.Users.MarkVerified(userID); err != nil {
		return nil, err
	}
	return a.Users.GetUserById(userID)
}

// Login verifies a local credential and establishes a session. User absence,
// password mismatch and a missing local credential are indistinguishable to
// the caller (ErrInvalidCredentials); an unverified account fails with
// ErrNotVerified before any session is created.
func (a *Auth) Login(ctx context.Context, email, password string) (*User, error) {
	user, err := a.Users.GetUserByEmail(email)
	if err != nil {
		// burn a comparison anyway so user absence is not observable by timing
		bcrypt.CompareHashAndPassword([]byte("$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinval"), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if !user.HasLocalCredential() {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Verified {
		return nil, ErrNotVerified
	}
	if err := a.Sessions.Establish(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// OAuthLogin resolves a verified provider identity to a user (creating or
// linking as needed) and establishes a session. OAuth accounts are verified
// implicitly by the provider.
func (a *Auth) OAuthLogin(ctx context.Context, provider string, ident *oa2.Identity) (*User, error) {
	user, err := a.Users.CreateOrLinkOAuthUser(provider, ident.SubjectID, ident.Email, ident.DisplayName)
	if err != nil {
		return nil, err
	}
	if err := a.Sessions.Establish(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout destroys the current session. No-op when none exists.
func (a *Auth) Logout(ctx context.Context) error {
	return a.Sessions.Destroy(ctx)
}

// CurrentUserID returns the user id bound to the request's session
func (a *Auth) CurrentUserID(ctx context.Context) (string, error) {
	return a.Sessions.Validate(ctx)
}

// ResendVerification issues a new token for an unverified local account.
// Idempotent no-op for already verified users.
func (a *Auth) ResendVerification(email string) error {
	user, err := a.Users.GetUserByEmail(email)
	if err != nil {
		return err
	}
	if user.Verified {
		return nil
	}
	// old tokens stay valid until expiry; only the newest is mailed
	if _, err := a.sendVerification(user); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// OAuth HTTP handlers
// =============================================================================

// HandleOAuthStart redirects the caller to the provider's authorization URL,
// binding a fresh state value to the pre-auth context
func (a *Auth) HandleOAuthStart(w http.ResponseWriter, r *http.Request) {
	provider, ok := a.Providers[mux.Vars(r)["provider"]]
	if !ok {
		http.NotFound(w, r)
		return
	}
	state, err := oa2.GenerateState()
	if err != nil {
		http.Error(w, "failed to start oauth flow", http.StatusInternalServerError)
		return
	}
	oa2.SetStateCookie(w, state)
	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// HandleOAuthCallback completes the authorization-code flow: state check,
// code exchange, profile fetch, create-or-link, session. On any failure no
// user and no session is created.
func (a *Auth) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := a.Providers[mux.Vars(r)["provider"]]
	if !ok {
		http.NotFound(w, r)
		return
	}

	if err := oa2.CheckState(w, r); err != nil {
		writeAuthError(w, http.StatusBadRequest,
			NewAuthError(ErrCodeInvalidState, "OAuth state mismatch, please retry the login", ""))
		return
	}

	ident, err := provider.ExchangeCodeForIdentity(r.Context(), r.FormValue("code"))
	if err != nil {
		slog.Info("oauth identity exchange failed", "provider", provider.Name(), "err", err)
		writeAuthError(w, http.StatusBadGateway, oauthAuthError(provider.Name(), err))
		return
	}

	user, err := a.OAuthLogin(r.Context(), provider.Name(), ident)
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized,
			NewAuthError(ErrCodeOAuthFailed, err.Error(), ""))
		return
	}

	a.finishLogin(w, r, user)
}

// oauthAuthError translates adapter failures into user-facing errors
func oauthAuthError(provider string, err error) *AuthError {
	switch {
	case errors.Is(err, oa2.ErrMissingEmailClaim):
		return NewAuthError(ErrCodeMissingEmail,
			fmt.Sprintf("%s did not share your email; make it public or use another login method", provider), "")
	case errors.Is(err, oa2.ErrCodeExchangeFailed):
		return NewAuthError(ErrCodeOAuthFailed, "could not complete the login with "+provider, "")
	case errors.Is(err, oa2.ErrProfileFetchFailed):
		return NewAuthError(ErrCodeOAuthFailed, "could not fetch your profile from "+provider, "")
	default:
		return NewAuthError(ErrCodeOAuthFailed, "login with "+provider+" failed", "")
	}
}
