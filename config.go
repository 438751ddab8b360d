package authgate

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every environment-level knob the auth layer consumes. It is
// passed explicitly into New; there are no process-wide mutable singletons.
type Config struct {
	// BaseURL is the externally visible origin, used to build verification
	// links and OAuth redirect URLs
	BaseURL string `env:"AUTHGATE_BASE_URL" envDefault:"http://localhost:8080"`

	// LoginURL is where unauthenticated requests are redirected
	LoginURL string `env:"AUTHGATE_LOGIN_URL" envDefault:"/auth/login"`

	// SecretKey signs the auth JWT issued alongside the session cookie
	SecretKey string `env:"AUTHGATE_SECRET_KEY"`

	// JwtIssuer is the "iss" claim on issued auth tokens
	JwtIssuer string `env:"AUTHGATE_JWT_ISSUER" envDefault:"authgate"`

	SessionTTL      time.Duration `env:"AUTHGATE_SESSION_TTL" envDefault:"24h"`
	VerificationTTL time.Duration `env:"AUTHGATE_VERIFICATION_TTL" envDefault:"24h"`

	GoogleClientID     string `env:"AUTHGATE_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"AUTHGATE_GOOGLE_CLIENT_SECRET"`
	GithubClientID     string `env:"AUTHGATE_GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"AUTHGATE_GITHUB_CLIENT_SECRET"`

	SMTPHost     string `env:"AUTHGATE_SMTP_HOST"`
	SMTPPort     int    `env:"AUTHGATE_SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"AUTHGATE_SMTP_USER"`
	SMTPPassword string `env:"AUTHGATE_SMTP_PASSWORD"`
	SMTPFrom     string `env:"AUTHGATE_SMTP_FROM"`
}

// LoadConfig parses the configuration from environment variables
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
