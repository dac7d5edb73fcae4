package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/ngi-firn/firn-auth/pkg/identity"
)

const githubAPIBaseURL = "https://api.github.com"

// GitHubConfig configures the secondary (linking) provider.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// AuthURL, TokenURL, and APIBaseURL override the GitHub endpoints. Tests
	// point them at a stub.
	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

// GitHubProvider implements the secondary OAuth2 flow. It produces the profile
// snapshot the account linker binds; matching by GitHub e-mail never happens
// because GitHub e-mails are user-editable.
type GitHubProvider struct {
	oauth2Config *oauth2.Config
	apiBase      string
}

// NewGitHubProvider prepares the code-exchange client.
func NewGitHubProvider(config GitHubConfig) *GitHubProvider {
	endpoint := githuboauth.Endpoint
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}
	apiBase := config.APIBaseURL
	if apiBase == "" {
		apiBase = githubAPIBaseURL
	}

	return &GitHubProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBase: apiBase,
	}
}

// AuthCodeURL returns the authorization redirect target for the given state.
func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// Exchange trades the callback code for the GitHub profile. When the public
// profile hides the e-mail, the primary verified address is fetched separately;
// it is stored for display only, never used for matching.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (identity.GitHubIdentity, error) {
	var zero identity.GitHubIdentity

	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return zero, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	client := p.oauth2Config.Client(ctx, oauth2Token)

	var profile githubProfile
	if err := p.getJSON(ctx, client, "/user", &profile); err != nil {
		return zero, err
	}
	if profile.ID == 0 {
		return zero, fmt.Errorf("missing user id in GitHub profile")
	}

	email := profile.Email
	if email == "" {
		email = p.primaryEmail(ctx, client)
	}

	name := profile.Name
	if name == "" {
		name = profile.Login
	}

	return identity.GitHubIdentity{
		GitHubID: strconv.FormatInt(profile.ID, 10),
		NodeID:   profile.NodeID,
		Name:     name,
		Avatar:   profile.AvatarURL,
		Email:    email,
		URL:      profile.HTMLURL,
	}, nil
}

type githubProfile struct {
	ID        int64  `json:"id"`
	NodeID    string `json:"node_id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
	HTMLURL   string `json:"html_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// primaryEmail is best-effort; a hidden e-mail just stays empty.
func (p *GitHubProvider) primaryEmail(ctx context.Context, client *http.Client) string {
	var emails []githubEmail
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return ""
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

func (p *GitHubProvider) getJSON(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build GitHub request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call GitHub %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GitHub %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode GitHub %s response: %w", path, err)
	}
	return nil
}
