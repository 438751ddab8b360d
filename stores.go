package authgate

import (
	"strings"
	"time"
)

// User is a single account in the system. A user always has either a password
// hash (local account) or at least one linked OAuth identity, never neither.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`    // unique, stored lowercase
	Username     string    `json:"username"` // unique, required for local accounts
	PasswordHash string    `json:"password_hash,omitempty"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Linked federated identities, at most one per provider
	Identities []OAuthIdentity `json:"identities,omitempty"`
}

// HasLocalCredential reports whether the user can log in with a password
func (u *User) HasLocalCredential() bool {
	return u.PasswordHash != ""
}

// IdentityFor returns the linked identity for a provider, if any
func (u *User) IdentityFor(provider string) (*OAuthIdentity, bool) {
	for i := range u.Identities {
		if u.Identities[i].Provider == provider {
			return &u.Identities[i], true
		}
	}
	return nil, false
}

// OAuthIdentity links a user to a federated identity at one provider
type OAuthIdentity struct {
	Provider    string    `json:"provider"`   // "google", "github"
	SubjectID   string    `json:"subject_id"` // provider-issued stable user id
	DisplayName string    `json:"display_name,omitempty"`
	LinkedAt    time.Time `json:"linked_at"`
}

// NormalizeEmail canonicalizes an email for storage and lookup.
// Email uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserStore persists user records and enforces the uniqueness invariants.
//
// All mutations must be atomic with respect to email/username uniqueness:
// implementations back the checks with a storage-level constraint (or an
// equivalent store-wide lock), not just a read-then-write.
type UserStore interface {
	// CreateLocalUser creates an unverified local account.
	// Fails with ErrDuplicateEmail or ErrDuplicateUsername.
	CreateLocalUser(email, username, passwordHash string) (*User, error)

	// CreateOrLinkOAuthUser resolves a federated identity to a user:
	// an existing user with this provider+subjectId is returned as is;
	// an existing user with this email gets the identity linked;
	// otherwise a new, already-verified user is created.
	CreateOrLinkOAuthUser(provider, subjectID, email, displayName string) (*User, error)

	// GetUserByEmail looks a user up by email (case-insensitive).
	// Fails with ErrUserNotFound.
	GetUserByEmail(email string) (*User, error)

	// GetUserById retrieves a user by id. Fails with ErrUserNotFound.
	GetUserById(userID string) (*User, error)

	// MarkVerified flips the user to verified. No-op if already verified.
	MarkVerified(userID string) error

	// SetPasswordHash replaces the user's password hash
	SetPasswordHash(userID, passwordHash string) error
}
