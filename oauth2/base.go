// Package oauth2 implements the authorization-code flow against the supported
// identity providers. Each provider is a variant behind the Provider
// interface: adding one means adding a variant here, not branching on
// provider strings in the orchestrator.
package oauth2

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Failure kinds for the OAuth dance. The orchestrator surfaces these to the
// user as recoverable errors; none of them leave partial user or session
// state behind.
var (
	ErrInvalidState       = errors.New("oauth state mismatch")
	ErrCodeExchangeFailed = errors.New("oauth code exchange failed")
	ErrProfileFetchFailed = errors.New("oauth profile fetch failed")
	ErrMissingEmailClaim  = errors.New("provider did not return an email")
)

// Identity is what a provider asserts about the authenticated user
type Identity struct {
	SubjectID   string // provider-issued stable user id
	Email       string
	DisplayName string
}

// Provider performs the code exchange and profile fetch for one identity
// provider. Both network calls run under the caller's context and the
// provider's bounded timeout, failing closed rather than hanging.
type Provider interface {
	Name() string

	// AuthCodeURL builds the provider authorization URL carrying the
	// anti-forgery state value
	AuthCodeURL(state string) string

	// ExchangeCodeForIdentity trades the short-lived code for the provider's
	// identity claims. Fails with ErrCodeExchangeFailed, ErrProfileFetchFailed
	// or ErrMissingEmailClaim.
	ExchangeCodeForIdentity(ctx context.Context, code string) (*Identity, error)
}

// Default timeout for each provider round-trip
const defaultTimeout = 10 * time.Second

// baseProvider holds the pieces shared by all variants
type baseProvider struct {
	name   string
	config oauth2.Config

	// UserInfoURL is where the profile is fetched from. Overridable for tests.
	userInfoURL string

	// HTTPClient used for the profile fetch. Defaults to a client with a
	// bounded timeout.
	httpClient *http.Client

	timeout time.Duration
}

func (b *baseProvider) Name() string { return b.name }

// OverrideEndpoints repoints the provider at different auth/token/userinfo
// URLs. Intended for tests against a mock provider server.
func (b *baseProvider) OverrideEndpoints(authURL, tokenURL, userInfoURL string) {
	b.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	b.userInfoURL = userInfoURL
}

// SetHTTPClient swaps the HTTP client used for provider round-trips
func (b *baseProvider) SetHTTPClient(c *http.Client) {
	b.httpClient = c
}

func (b *baseProvider) AuthCodeURL(state string) string {
	return b.config.AuthCodeURL(state)
}

func (b *baseProvider) client() *http.Client {
	if b.httpClient != nil {
		return b.httpClient
	}
	return &http.Client{Timeout: b.timeout}
}

// exchange performs the code-for-token exchange with a bounded deadline
func (b *baseProvider) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	// route the exchange through our bounded client as well
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.client())
	token, err := b.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeExchangeFailed, err)
	}
	return token, nil
}
