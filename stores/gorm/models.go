package gorm

import (
	"time"

	ag "github.com/trainlog/authgate"
)

// UserModel is the GORM model for users. Email and username carry unique
// indexes so the uniqueness invariants hold at the storage level, not just in
// application checks.
type UserModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Email        string    `gorm:"size:255;uniqueIndex;not null"`
	Username     string    `gorm:"size:80;uniqueIndex"`
	PasswordHash string    `gorm:"size:255"`
	Verified     bool      `gorm:"default:false"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`

	Identities []OAuthIdentityModel `gorm:"foreignKey:UserID"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *ag.User {
	user := &ag.User{
		ID:           m.ID,
		Email:        m.Email,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Verified:     m.Verified,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	for _, ident := range m.Identities {
		user.Identities = append(user.Identities, ag.OAuthIdentity{
			Provider:    ident.Provider,
			SubjectID:   ident.SubjectID,
			DisplayName: ident.DisplayName,
			LinkedAt:    ident.CreatedAt,
		})
	}
	return user
}

// OAuthIdentityModel links one federated identity to a user. The
// provider+subject pair is unique across all users.
type OAuthIdentityModel struct {
	Provider    string    `gorm:"primaryKey;size:32"`
	SubjectID   string    `gorm:"primaryKey;size:128"`
	UserID      string    `gorm:"size:64;index;not null"`
	DisplayName string    `gorm:"size:255"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (OAuthIdentityModel) TableName() string {
	return "oauth_identities"
}

// VerificationTokenModel is the GORM model for single-use email verification
// tokens
type VerificationTokenModel struct {
	Token     string    `gorm:"primaryKey;size:128"`
	UserID    string    `gorm:"size:64;index;not null"`
	Email     string    `gorm:"size:255"`
	Consumed  bool      `gorm:"default:false"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (VerificationTokenModel) TableName() string {
	return "verification_tokens"
}
