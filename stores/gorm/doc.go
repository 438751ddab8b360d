// Package gorm provides GORM-based implementations of the authgate store
// interfaces. It supports any database that GORM supports (PostgreSQL,
// MySQL, SQLite, etc.) and is suitable for production deployments.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: accounts with unique email and username
//   - oauth_identities: federated identities, unique per provider+subject
//   - verification_tokens: single-use email verification tokens
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	users := gormstore.NewUserStore(db)
//	tokens := gormstore.NewTokenStore(db)
package gorm
