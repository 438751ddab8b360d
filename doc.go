// Package authgate is the authentication layer for the training dashboard:
// local email/password accounts with email verification, federated login via
// Google and GitHub, and server-side sessions.
//
// # Architecture
//
// The orchestrator (Auth) ties four injected capabilities together:
//
// UserStore: persists accounts and enforces the email/username uniqueness
// invariants at the storage level.
//
// TokenStore: issues and atomically redeems single-use, time-limited email
// verification tokens.
//
// EmailSender: delivers verification mail. Delivery failure never fails a
// registration; it is reported separately so the caller can offer a resend.
//
// Sessions: establishes, validates and destroys the authenticated session.
// The scs-backed implementation rotates the session token on login.
//
// # Basic Usage
//
// Wire the stores and providers into the orchestrator:
//
//	cfg, _ := authgate.LoadConfig()
//	users := stores.NewFSUserStore(storagePath)
//	tokens := stores.NewFSTokenStore(storagePath)
//	sessions := authgate.NewSCSSessions(cfg.SessionTTL)
//	auth := authgate.New(cfg, users, tokens, &authgate.ConsoleEmailSender{}, sessions)
//
// Mount the HTTP endpoints:
//
//	r := mux.NewRouter()
//	auth.Routes(r)
//	http.ListenAndServe(":8080", sessions.Middleware(r))
//
// Protect dashboard routes with auth.EnsureUser; read the authenticated user
// with authgate.UserIDFromRequest.
//
// # Store Implementations
//
// The stores package provides file-based implementations suitable for
// development and small deployments, and stores/gorm provides
// database-backed ones for production use.
//
// # Security
//
// Passwords are hashed with bcrypt at default cost. Verification tokens are
// cryptographically secure 32-byte values, hex-encoded, single-use, expiring
// after 24 hours. OAuth flows are protected by a per-flow state value bound
// to the caller's pre-auth context. Sessions are server-side; the signed JWT
// issued next to them is integrity-protected for API and gRPC callers.
package authgate
