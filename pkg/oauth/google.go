package oauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/ngi-firn/firn-auth/pkg/identity"
)

// GoogleIssuerURL is Google's fixed OIDC issuer.
const GoogleIssuerURL = "https://accounts.google.com"

// GoogleConfig configures the primary sign-in provider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// AllowedDomain restricts sign-ins to one Google Workspace domain when
	// non-empty. Checked against the verified hd claim, with the verified e-mail
	// suffix accepted for accounts whose token carries no hd.
	AllowedDomain string

	// IssuerURL overrides the discovery issuer. Tests point it at a stub.
	IssuerURL string
}

// GoogleProvider implements the primary OpenID Connect sign-in flow.
type GoogleProvider struct {
	config       GoogleConfig
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewGoogleProvider discovers the issuer and prepares the code-exchange client.
func NewGoogleProvider(ctx context.Context, config GoogleConfig) (*GoogleProvider, error) {
	issuer := config.IssuerURL
	if issuer == "" {
		issuer = GoogleIssuerURL
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover Google OIDC provider: %w", err)
	}

	return &GoogleProvider{
		config:   config,
		verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

// AuthCodeURL returns the authorization redirect target for the given state.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// Exchange trades the callback code for a verified identity assertion. The
// allowed-domain restriction is enforced here; callers never see an identity
// from outside the organization.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (identity.GoogleIdentity, error) {
	var zero identity.GoogleIdentity

	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return zero, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return zero, fmt.Errorf("missing id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return zero, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return zero, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	return googleIdentityFromClaims(idToken.Subject, claims, p.config.AllowedDomain)
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	HostedDomain  string `json:"hd"`
}

func googleIdentityFromClaims(subject string, claims googleClaims, allowedDomain string) (identity.GoogleIdentity, error) {
	var zero identity.GoogleIdentity

	if subject == "" {
		return zero, fmt.Errorf("missing subject in ID token")
	}
	if claims.Email == "" {
		return zero, fmt.Errorf("missing email in ID token")
	}
	if err := checkGoogleDomain(claims, allowedDomain); err != nil {
		return zero, err
	}

	return identity.GoogleIdentity{
		GoogleID:      subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		GivenName:     claims.GivenName,
		FamilyName:    claims.FamilyName,
		Avatar:        claims.Picture,
		HostedDomain:  claims.HostedDomain,
	}, nil
}

func checkGoogleDomain(claims googleClaims, allowedDomain string) error {
	if allowedDomain == "" {
		return nil
	}
	if strings.EqualFold(claims.HostedDomain, allowedDomain) {
		return nil
	}
	// Tokens without an hd claim fall back to the verified e-mail suffix.
	if claims.HostedDomain == "" && claims.EmailVerified &&
		strings.HasSuffix(strings.ToLower(claims.Email), "@"+strings.ToLower(allowedDomain)) {
		return nil
	}
	return ErrDomainNotAllowed
}
