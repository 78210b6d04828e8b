package auth

import (
	"context"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/plugin/ai/timeout"
	"github.com/hrygo/autotask/store"
)

// DefaultRefreshWindow is how close to expiry a credential gets refreshed.
const DefaultRefreshWindow = 5 * time.Minute

// TokenRefresher exchanges a refresh token for a new access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// RefreshOutcome reports what RefreshIfNeeded did. Warning is a soft
// CREDENTIAL_EXPIRED error; the request continues with the old credential.
type RefreshOutcome struct {
	Refreshed bool
	Warning   error
}

// Refresher renews provider credentials that are about to expire.
type Refresher struct {
	source TokenRefresher
	window time.Duration
	now    func() time.Time
	group  singleflight.Group
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithRefreshWindow overrides DefaultRefreshWindow.
func WithRefreshWindow(d time.Duration) RefresherOption {
	return func(r *Refresher) { r.window = d }
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) RefresherOption {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher creates a Refresher backed by source.
func NewRefresher(source TokenRefresher, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		source: source,
		window: DefaultRefreshWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NeedsRefresh reports whether cred expires within the refresh window.
// Credentials with an unknown expiry are never refreshed.
func (r *Refresher) NeedsRefresh(cred store.ProviderCredential) bool {
	if cred.Expiry.IsZero() {
		return false
	}
	return cred.Expiry.Sub(r.now()) < r.window
}

// RefreshIfNeeded returns a renewed credential when cred is close to expiry.
// On any failure it returns cred unchanged with a warning.
func (r *Refresher) RefreshIfNeeded(ctx context.Context, cred store.ProviderCredential) (store.ProviderCredential, RefreshOutcome) {
	if !r.NeedsRefresh(cred) {
		return cred, RefreshOutcome{}
	}
	if cred.RefreshToken == "" {
		return cred, RefreshOutcome{Warning: apperrors.CredentialExpired("credential expiring and no refresh token is available", nil)}
	}
	if r.source == nil {
		return cred, RefreshOutcome{Warning: apperrors.CredentialExpired("no token refresher configured", nil)}
	}

	// Concurrent requests for one session share a single refresh call, so
	// it must outlive the request that happened to start it.
	v, err, _ := r.group.Do(cred.RefreshToken, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout.ProviderTimeout)
		defer cancel()
		return r.source.Refresh(sctx, cred.RefreshToken)
	})
	if err != nil {
		return cred, RefreshOutcome{Warning: apperrors.CredentialExpired("failed to refresh credential", err)}
	}
	tok, _ := v.(*oauth2.Token)
	if tok == nil || tok.AccessToken == "" {
		return cred, RefreshOutcome{Warning: apperrors.CredentialExpired("refresh returned no access token", nil)}
	}

	next := cred
	next.AccessToken = tok.AccessToken
	next.Expiry = tok.Expiry
	if tok.TokenType != "" {
		next.TokenType = tok.TokenType
	}
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	return next, RefreshOutcome{Refreshed: true}
}

// OAuth2Token converts a stored credential for use with oauth2 clients.
func OAuth2Token(cred *store.ProviderCredential) *oauth2.Token {
	if cred == nil {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       cred.Expiry,
	}
}

// CredentialFromToken converts an oauth2 token for storage.
func CredentialFromToken(tok *oauth2.Token) *store.ProviderCredential {
	if tok == nil {
		return nil
	}
	return &store.ProviderCredential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
}
