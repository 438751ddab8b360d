// Package stores provides file-based implementations of the authgate store
// interfaces, suitable for development and small deployments. Records are
// JSON files under the storage path; uniqueness indexes are small files
// mapping a key to a user id.
package stores

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	ag "github.com/trainlog/authgate"
)

// FSUserStore stores users as JSON files. A store-wide mutex stands in for
// the uniqueness constraints a database would enforce, closing the
// check-then-insert race.
type FSUserStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{StoragePath: storagePath}
}

func (s *FSUserStore) userPath(userID string) string {
	return filepath.Join(s.StoragePath, "users", userID+".json")
}

// index files: byemail/<key>, byusername/<key>, byoauth/<key>. Keys are
// hashed so attacker-chosen values (emails with path separators) can never
// name a file outside the index directory.
func (s *FSUserStore) indexPath(kind, key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.StoragePath, kind, hex.EncodeToString(sum[:]))
}

func (s *FSUserStore) CreateLocalUser(email, username, passwordHash string) (*ag.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = ag.NormalizeEmail(email)
	if _, err := s.lookupIndex("byemail", email); err == nil {
		return nil, ag.ErrDuplicateEmail
	}
	if _, err := s.lookupIndex("byusername", strings.ToLower(username)); err == nil {
		return nil, ag.ErrDuplicateUsername
	}

	now := time.Now()
	user := &ag.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.saveUserLocked(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *FSUserStore) CreateOrLinkOAuthUser(provider, subjectID, email, displayName string) (*ag.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = ag.NormalizeEmail(email)

	// 1. same provider+subject resolves to the same account, always
	if userID, err := s.lookupIndex("byoauth", provider+":"+subjectID); err == nil {
		return s.getUserLocked(userID)
	}

	// 2. an existing account with this email gets the identity linked
	if userID, err := s.lookupIndex("byemail", email); err == nil {
		user, err := s.getUserLocked(userID)
		if err != nil {
			return nil, err
		}
		// at most one identity per provider: a different subject claiming an
		// already-linked email is a conflict, not a second link
		if _, linked := user.IdentityFor(provider); linked {
			return nil, ag.ErrDuplicateEmail
		}
		user.Identities = append(user.Identities, ag.OAuthIdentity{
			Provider:    provider,
			SubjectID:   subjectID,
			DisplayName: displayName,
			LinkedAt:    time.Now(),
		})
		user.UpdatedAt = time.Now()
		if err := s.saveUserLocked(user); err != nil {
			return nil, err
		}
		return user, nil
	}

	// 3. new account, verified implicitly by the provider
	now := time.Now()
	user := &ag.User{
		ID:        uuid.NewString(),
		Email:     email,
		Username:  s.deriveUsernameLocked(email),
		Verified:  true,
		CreatedAt: now,
		UpdatedAt: now,
		Identities: []ag.OAuthIdentity{{
			Provider:    provider,
			SubjectID:   subjectID,
			DisplayName: displayName,
			LinkedAt:    now,
		}},
	}
	if err := s.saveUserLocked(user); err != nil {
		return nil, err
	}
	return user, nil
}

// deriveUsernameLocked picks a free handle from the email local-part
func (s *FSUserStore) deriveUsernameLocked(email string) string {
	base := strings.SplitN(email, "@", 2)[0]
	candidate := base
	for i := 1; ; i++ {
		if _, err := s.lookupIndex("byusername", strings.ToLower(candidate)); err != nil {
			return candidate
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

func (s *FSUserStore) GetUserByEmail(email string) (*ag.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, err := s.lookupIndex("byemail", ag.NormalizeEmail(email))
	if err != nil {
		return nil, ag.ErrUserNotFound
	}
	return s.getUserLocked(userID)
}

func (s *FSUserStore) GetUserById(userID string) (*ag.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUserLocked(userID)
}

func (s *FSUserStore) MarkVerified(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.getUserLocked(userID)
	if err != nil {
		return err
	}
	if user.Verified {
		return nil
	}
	user.Verified = true
	user.UpdatedAt = time.Now()
	return s.saveUserLocked(user)
}

func (s *FSUserStore) SetPasswordHash(userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.getUserLocked(userID)
	if err != nil {
		return err
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now()
	return s.saveUserLocked(user)
}

func (s *FSUserStore) getUserLocked(userID string) (*ag.User, error) {
	data, err := os.ReadFile(s.userPath(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ag.ErrUserNotFound
		}
		return nil, err
	}
	var user ag.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// saveUserLocked writes the user record and refreshes all its index entries
func (s *FSUserStore) saveUserLocked(user *ag.User) error {
	path := s.userPath(user.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomicFile(path, data); err != nil {
		return err
	}

	if err := s.writeIndex("byemail", user.Email, user.ID); err != nil {
		return err
	}
	if user.Username != "" {
		if err := s.writeIndex("byusername", strings.ToLower(user.Username), user.ID); err != nil {
			return err
		}
	}
	for _, ident := range user.Identities {
		if err := s.writeIndex("byoauth", ident.Provider+":"+ident.SubjectID, user.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *FSUserStore) lookupIndex(kind, key string) (string, error) {
	data, err := os.ReadFile(s.indexPath(kind, key))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FSUserStore) writeIndex(kind, key, userID string) error {
	path := s.indexPath(kind, key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return writeAtomicFile(path, []byte(userID))
}
