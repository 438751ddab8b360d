package authgate

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Default expiry for email verification tokens
const TokenExpiryEmailVerification = 24 * time.Hour

// VerificationToken is a single-use credential proving ownership of an email
// address. A token is permanently invalid once consumed or expired.
type VerificationToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
}

// TokenStore manages verification tokens.
//
// RedeemToken must be serializable per token value: when multiple callers race
// on the same token, exactly one succeeds and the rest fail with
// ErrTokenConsumed. Implementations use a single conditional update on the
// consumed flag, not a read-then-write.
type TokenStore interface {
	// CreateToken issues a fresh token for userID expiring at now + ttl
	CreateToken(userID, email string, ttl time.Duration) (*VerificationToken, error)

	// RedeemToken atomically consumes a token and returns the owning user id.
	// Fails with ErrTokenNotFound, ErrTokenExpired or ErrTokenConsumed.
	RedeemToken(token string) (userID string, err error)

	// DeleteUserTokens removes all tokens issued to a user
	DeleteUserTokens(userID string) error
}

// GenerateSecureToken generates a cryptographically secure random token:
// 32 bytes of entropy, hex-encoded to 64 characters.
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsExpired checks if a token has expired
func (t *VerificationToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
