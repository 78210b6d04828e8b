// Package google signs users in with Google and keeps their credential
// fresh. Endpoints are obtained by OIDC discovery on first use.
package google

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/store"
)

// DefaultIssuer is Google's OIDC issuer.
const DefaultIssuer = "https://accounts.google.com"

// GmailReadonlyScope grants read access to the mailbox.
const GmailReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

// DefaultScopes are requested at login.
var DefaultScopes = []string{oidc.ScopeOpenID, "email", "profile", GmailReadonlyScope}

// Config configures a Provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Issuer       string
	Scopes       []string
	// HTTPClient is used for discovery and token calls. Nil uses
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Provider is the Google identity provider.
type Provider struct {
	config Config

	mu     sync.Mutex
	oidc   *oidc.Provider
	oauth2 *oauth2.Config
}

// NewProvider creates a Provider. No network call is made until first use.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, apperrors.InvalidArgument("google client id and secret are required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	return &Provider{config: cfg}, nil
}

func (p *Provider) withClient(ctx context.Context) context.Context {
	if p.config.HTTPClient == nil {
		return ctx
	}
	ctx = oidc.ClientContext(ctx, p.config.HTTPClient)
	return context.WithValue(ctx, oauth2.HTTPClient, p.config.HTTPClient)
}

// discover returns the cached discovery result, fetching it when missing.
// A failed discovery is not cached.
func (p *Provider) discover(ctx context.Context) (*oidc.Provider, *oauth2.Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.oidc != nil {
		return p.oidc, p.oauth2, nil
	}

	provider, err := oidc.NewProvider(p.withClient(ctx), p.config.Issuer)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeUpstreamRejected, "oidc discovery failed").
			WithContext("service", "google")
	}
	p.oidc = provider
	p.oauth2 = &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		RedirectURL:  p.config.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       p.config.Scopes,
	}
	return p.oidc, p.oauth2, nil
}

// AuthCodeURL returns the consent screen URL carrying state. Offline access
// and a forced consent prompt make Google issue a refresh token every time.
func (p *Provider) AuthCodeURL(ctx context.Context, state string) (string, error) {
	_, cfg, err := p.discover(ctx)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// Exchange trades an authorization code for a credential and looks up the
// user it belongs to.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, store.Identity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, store.Identity{}, apperrors.InvalidArgument("authorization code is required")
	}
	provider, cfg, err := p.discover(ctx)
	if err != nil {
		return nil, store.Identity{}, err
	}

	ctx = p.withClient(ctx)
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, store.Identity{}, mapTokenError(err, "failed to exchange authorization code")
	}

	info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, store.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeUpstreamRejected, "failed to fetch user info").
			WithContext("service", "google")
	}
	var profile struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := info.Claims(&profile); err != nil {
		return nil, store.Identity{}, errors.Wrap(err, "failed to decode user info")
	}

	identity := store.Identity{
		ID:      info.Subject,
		Email:   info.Email,
		Name:    profile.Name,
		Picture: profile.Picture,
	}
	if identity.ID == "" && identity.Email == "" {
		return nil, store.Identity{}, apperrors.UpstreamRejected("google", http.StatusOK, "user info carries no subject")
	}
	return tok, identity, nil
}

// Refresh obtains a new credential from a refresh token.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, apperrors.CredentialExpired("no refresh token", nil)
	}
	_, cfg, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := cfg.TokenSource(p.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, mapTokenError(err, "failed to refresh credential")
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

// Client returns an HTTP client that authorizes requests with tok.
func (p *Provider) Client(ctx context.Context, tok *oauth2.Token) *http.Client {
	c := oauth2.NewClient(p.withClient(ctx), oauth2.StaticTokenSource(tok))
	// oauth2.NewClient keeps only the transport of the configured client.
	if p.config.HTTPClient != nil {
		c.Timeout = p.config.HTTPClient.Timeout
	}
	return c
}

func mapTokenError(err error, msg string) error {
	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		detail := retrieveErr.ErrorCode
		if retrieveErr.ErrorDescription != "" {
			detail = retrieveErr.ErrorCode + ": " + retrieveErr.ErrorDescription
		}
		if detail == "" {
			detail = string(retrieveErr.Body)
		}
		return apperrors.UpstreamRejected("google", status, detail)
	}
	return apperrors.Wrap(err, apperrors.ErrCodeUpstreamRejected, msg).WithContext("service", "google")
}
