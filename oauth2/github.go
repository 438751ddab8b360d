package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubUserInfoURL = "https://api.github.com/user"

// GithubProvider authenticates users against GitHub
type GithubProvider struct {
	baseProvider
}

func NewGithub(clientID, clientSecret, redirectURL string) *GithubProvider {
	return &GithubProvider{
		baseProvider: baseProvider{
			name: "github",
			config: oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RedirectURL:  redirectURL,
				Scopes:       []string{"read:user", "user:email"},
				Endpoint:     github.Endpoint,
			},
			userInfoURL: githubUserInfoURL,
			timeout:     defaultTimeout,
		},
	}
}

func (g *GithubProvider) ExchangeCodeForIdentity(ctx context.Context, code string) (*Identity, error) {
	token, err := g.exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	info, err := g.fetchUser(ctx, token)
	if err != nil {
		return nil, err
	}

	// GitHub returns the numeric user id as a JSON number
	var subject string
	switch id := info["id"].(type) {
	case float64:
		subject = strconv.FormatInt(int64(id), 10)
	case string:
		subject = id
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: no subject id in github response", ErrProfileFetchFailed)
	}

	// Users can keep their email private, in which case the user endpoint
	// returns email: null. We refuse to fabricate one; the caller surfaces
	// this as "make your email public or use another method".
	email, _ := info["email"].(string)
	if email == "" {
		return nil, ErrMissingEmailClaim
	}

	login, _ := info["login"].(string)
	name, _ := info["name"].(string)
	if name == "" {
		name = login
	}

	return &Identity{
		SubjectID:   subject,
		Email:       email,
		DisplayName: name,
	}, nil
}

func (g *GithubProvider) fetchUser(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: github user endpoint returned %d", ErrProfileFetchFailed, resp.StatusCode)
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
