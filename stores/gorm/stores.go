package gorm

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	ag "github.com/trainlog/authgate"
)

// AutoMigrate runs database migrations for all authgate tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&OAuthIdentityModel{},
		&VerificationTokenModel{},
	)
}

// =============================================================================
// UserStore
// =============================================================================

// UserStore implements ag.UserStore using GORM. The caller supplies the
// *gorm.DB; any dialect with unique index support works.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateLocalUser(email, username, passwordHash string) (*ag.User, error) {
	model := &UserModel{
		ID:           uuid.NewString(),
		Email:        ag.NormalizeEmail(email),
		Username:     username,
		PasswordHash: passwordHash,
	}
	if err := s.db.Create(model).Error; err != nil {
		return nil, translateDuplicate(s.db, err, model.Email, username)
	}
	return model.ToUser(), nil
}

// translateDuplicate turns a unique-constraint violation into the named
// duplicate error; raw storage errors never leave the store boundary.
func translateDuplicate(db *gorm.DB, err error, email, username string) error {
	if !errors.Is(err, gorm.ErrDuplicatedKey) && !isUniqueViolation(err) {
		return fmt.Errorf("create user: %w", err)
	}
	// the violated constraint is not always named; probe which value clashes
	var count int64
	db.Model(&UserModel{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		return ag.ErrDuplicateEmail
	}
	return ag.ErrDuplicateUsername
}

// isUniqueViolation matches drivers that don't go through gorm's error
// translation
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func (s *UserStore) CreateOrLinkOAuthUser(provider, subjectID, email, displayName string) (*ag.User, error) {
	email = ag.NormalizeEmail(email)

	var out *ag.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// 1. provider+subject already linked
		var ident OAuthIdentityModel
		err := tx.First(&ident, "provider = ? AND subject_id = ?", provider, subjectID).Error
		if err == nil {
			user, err := s.loadUser(tx, "id = ?", ident.UserID)
			if err != nil {
				return err
			}
			out = user
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// 2. account with this email exists: link the identity to it
		var model UserModel
		err = tx.Preload("Identities").First(&model, "email = ?", email).Error
		if err == nil {
			// at most one identity per provider: a different subject claiming
			// an already-linked email is a conflict, not a second link
			for _, existing := range model.Identities {
				if existing.Provider == provider {
					return ag.ErrDuplicateEmail
				}
			}
			link := OAuthIdentityModel{
				Provider:    provider,
				SubjectID:   subjectID,
				UserID:      model.ID,
				DisplayName: displayName,
			}
			if err := tx.Create(&link).Error; err != nil {
				return fmt.Errorf("link identity: %w", err)
			}
			model.Identities = append(model.Identities, link)
			out = model.ToUser()
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// 3. brand new user, implicitly verified by the provider
		model = UserModel{
			ID:       uuid.NewString(),
			Email:    email,
			Username: deriveUsername(tx, email),
			Verified: true,
		}
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("create oauth user: %w", err)
		}
		link := OAuthIdentityModel{
			Provider:    provider,
			SubjectID:   subjectID,
			UserID:      model.ID,
			DisplayName: displayName,
		}
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("link identity: %w", err)
		}
		model.Identities = []OAuthIdentityModel{link}
		out = model.ToUser()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// deriveUsername picks a free handle from the email local-part
func deriveUsername(tx *gorm.DB, email string) string {
	base := strings.SplitN(email, "@", 2)[0]
	candidate := base
	for i := 1; ; i++ {
		var count int64
		tx.Model(&UserModel{}).Where("username = ?", candidate).Count(&count)
		if count == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

func (s *UserStore) GetUserByEmail(email string) (*ag.User, error) {
	return s.loadUser(s.db, "email = ?", ag.NormalizeEmail(email))
}

func (s *UserStore) GetUserById(userID string) (*ag.User, error) {
	return s.loadUser(s.db, "id = ?", userID)
}

func (s *UserStore) loadUser(tx *gorm.DB, query string, arg any) (*ag.User, error) {
	var model UserModel
	if err := tx.Preload("Identities").First(&model, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ag.ErrUserNotFound
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) MarkVerified(userID string) error {
	// existence is checked with a read, not via RowsAffected: MySQL reports
	// changed rows by default, so an already-verified user would look missing
	var model UserModel
	if err := s.db.Select("id", "verified").First(&model, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ag.ErrUserNotFound
		}
		return err
	}
	if model.Verified {
		return nil
	}
	return s.db.Model(&UserModel{}).
		Where("id = ?", userID).
		Update("verified", true).Error
}

func (s *UserStore) SetPasswordHash(userID, passwordHash string) error {
	var model UserModel
	if err := s.db.Select("id").First(&model, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ag.ErrUserNotFound
		}
		return err
	}
	return s.db.Model(&UserModel{}).
		Where("id = ?", userID).
		Update("password_hash", passwordHash).Error
}

// =============================================================================
// TokenStore
// =============================================================================

// TokenStore implements ag.TokenStore using GORM
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) CreateToken(userID, email string, ttl time.Duration) (*ag.VerificationToken, error) {
	value, err := ag.GenerateSecureToken()
	if err != nil {
		return nil, err
	}
	model := &VerificationTokenModel{
		Token:     value,
		UserID:    userID,
		Email:     email,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := s.db.Create(model).Error; err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}
	return &ag.VerificationToken{
		Token:     model.Token,
		UserID:    model.UserID,
		Email:     model.Email,
		CreatedAt: model.CreatedAt,
		ExpiresAt: model.ExpiresAt,
	}, nil
}

// RedeemToken consumes a token with a single conditional update: concurrent
// redeems of the same value race on the consumed flag and exactly one wins.
func (s *TokenStore) RedeemToken(tokenValue string) (string, error) {
	var model VerificationTokenModel
	if err := s.db.First(&model, "token = ?", tokenValue).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ag.ErrTokenNotFound
		}
		return "", err
	}

	if model.Consumed {
		return "", ag.ErrTokenConsumed
	}
	if time.Now().After(model.ExpiresAt) {
		return "", ag.ErrTokenExpired
	}

	res := s.db.Model(&VerificationTokenModel{}).
		Where("token = ? AND consumed = ?", tokenValue, false).
		Update("consumed", true)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		// lost the race to a concurrent redeem
		return "", ag.ErrTokenConsumed
	}
	return model.UserID, nil
}

func (s *TokenStore) DeleteUserTokens(userID string) error {
	return s.db.Where("user_id = ?", userID).Delete(&VerificationTokenModel{}).Error
}
