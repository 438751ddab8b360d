package stores

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	ag "github.com/trainlog/authgate"
)

// FSTokenStore stores verification tokens as JSON files. The mutex makes the
// check-expiry-and-consume sequence atomic, so two concurrent redeems of the
// same token cannot both succeed.
type FSTokenStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSTokenStore(storagePath string) *FSTokenStore {
	return &FSTokenStore{StoragePath: storagePath}
}

func (s *FSTokenStore) tokenPath(token string) string {
	return filepath.Join(s.StoragePath, "tokens", token+".json")
}

func (s *FSTokenStore) CreateToken(userID, email string, ttl time.Duration) (*ag.VerificationToken, error) {
	value, err := ag.GenerateSecureToken()
	if err != nil {
		return nil, err
	}

	token := &ag.VerificationToken{
		Token:     value,
		UserID:    userID,
		Email:     email,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	path := s.tokenPath(value)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeAtomicFile(path, data); err != nil {
		return nil, err
	}
	return token, nil
}

func (s *FSTokenStore) RedeemToken(tokenValue string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.tokenPath(tokenValue)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ag.ErrTokenNotFound
		}
		return "", err
	}

	var token ag.VerificationToken
	if err := json.Unmarshal(data, &token); err != nil {
		return "", err
	}

	if token.Consumed {
		return "", ag.ErrTokenConsumed
	}
	if token.IsExpired() {
		return "", ag.ErrTokenExpired
	}

	// mark consumed before releasing the lock; losers of the race see the
	// consumed flag above
	token.Consumed = true
	updated, err := json.MarshalIndent(&token, "", "  ")
	if err != nil {
		return "", err
	}
	if err := writeAtomicFile(path, updated); err != nil {
		return "", err
	}
	return token.UserID, nil
}

func (s *FSTokenStore) DeleteUserTokens(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokensDir := filepath.Join(s.StoragePath, "tokens")
	entries, err := os.ReadDir(tokensDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(tokensDir, entry.Name()))
		if err != nil {
			continue
		}
		var token ag.VerificationToken
		if err := json.Unmarshal(data, &token); err != nil {
			continue
		}
		if token.UserID == userID {
			_ = os.Remove(filepath.Join(tokensDir, entry.Name()))
		}
	}
	return nil
}
