// Package oidc adapts an OpenID Connect identity provider for the login
// handshake: it builds the implicit-flow authorization URL carrying the
// handshake nonce and verifies returned ID tokens.
package oidc

import (
	"context"
	"errors"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	dErrors "zkbadge/pkg/domain-errors"
)

// Config identifies the relying party at the provider.
type Config struct {
	ClientID    string
	IssuerURL   string
	AuthURL     string
	RedirectURI string
}

// Claims are the verified ID token claims the handshake consumes.
type Claims struct {
	Issuer        string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Nonce         string
	Expiry        time.Time
}

// Provider verifies tokens issued by one OpenID provider.
type Provider struct {
	oauth    *oauth2.Config
	verifier *gooidc.IDTokenVerifier
}

// NewProvider discovers the provider's endpoints and signing keys.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, dErrors.New(dErrors.CodeMisconfigured, "oauth client id is not configured")
	}
	discovered, err := gooidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMisconfigured, "failed to discover identity provider")
	}
	endpoint := discovered.Endpoint()
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	return &Provider{
		oauth:    oauthConfig(cfg, endpoint),
		verifier: discovered.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// NewWithKeySet builds a provider from a fixed key set without discovery.
// now may be nil.
func NewWithKeySet(cfg Config, keySet gooidc.KeySet, now func() time.Time) *Provider {
	verifier := gooidc.NewVerifier(cfg.IssuerURL, keySet, &gooidc.Config{
		ClientID: cfg.ClientID,
		Now:      now,
	})
	return &Provider{
		oauth:    oauthConfig(cfg, oauth2.Endpoint{AuthURL: cfg.AuthURL}),
		verifier: verifier,
	}
}

func oauthConfig(cfg Config, endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURI,
		Endpoint:    endpoint,
		Scopes:      []string{gooidc.ScopeOpenID, "email", "profile"},
	}
}

// AuthURL returns the authorization URL requesting an ID token directly
// (response_type=id_token) bound to nonce.
func (p *Provider) AuthURL(nonce string) string {
	return p.oauth.AuthCodeURL("",
		oauth2.SetAuthURLParam("response_type", "id_token"),
		oauth2.SetAuthURLParam("nonce", nonce),
	)
}

// Verify checks signature, issuer, audience and expiry before any claim is
// read.
func (p *Provider) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	token, err := p.verifier.Verify(ctx, rawToken)
	if err != nil {
		var expired *gooidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, dErrors.Wrap(err, dErrors.CodeTokenExpired, "identity token has expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeTokenInvalid, "identity token failed verification")
	}

	var extra struct {
		Email         string `json:"email"`
		EmailVerified any    `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := token.Claims(&extra); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTokenInvalid, "identity token claims are malformed")
	}

	return &Claims{
		Issuer:        token.Issuer,
		Subject:       token.Subject,
		Email:         extra.Email,
		EmailVerified: truthy(extra.EmailVerified),
		Name:          extra.Name,
		Nonce:         token.Nonce,
		Expiry:        token.Expiry,
	}, nil
}

// truthy accepts email_verified as a bool or the string "true"; some
// providers send the latter.
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}
