package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleProvider authenticates users against Google
type GoogleProvider struct {
	baseProvider
}

func NewGoogle(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		baseProvider: baseProvider{
			name: "google",
			config: oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RedirectURL:  redirectURL,
				Scopes: []string{
					"https://www.googleapis.com/auth/userinfo.email",
					"https://www.googleapis.com/auth/userinfo.profile",
				},
				Endpoint: google.Endpoint,
			},
			userInfoURL: googleUserInfoURL,
			timeout:     defaultTimeout,
		},
	}
}

func (g *GoogleProvider) ExchangeCodeForIdentity(ctx context.Context, code string) (*Identity, error) {
	token, err := g.exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	info, err := g.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	subject, _ := info["id"].(string)
	email, _ := info["email"].(string)
	name, _ := info["name"].(string)
	if subject == "" {
		return nil, fmt.Errorf("%w: no subject id in google response", ErrProfileFetchFailed)
	}
	if email == "" {
		return nil, ErrMissingEmailClaim
	}

	return &Identity{
		SubjectID:   subject,
		Email:       email,
		DisplayName: name,
	}, nil
}

func (g *GoogleProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := g.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo returned %d", ErrProfileFetchFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}

	var info map[string]any
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	return info, nil
}
