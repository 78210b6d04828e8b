package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	apperrors "github.com/hrygo/autotask/internal/errors"
)

type mockIssuer struct {
	srv           *httptest.Server
	discoveryHits atomic.Int32
	lastGrant     atomic.Value
}

func newMockIssuer(t *testing.T) *mockIssuer {
	t.Helper()
	m := &mockIssuer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		m.discoveryHits.Add(1)
		issuer := m.srv.URL
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                   issuer,
			"authorization_endpoint":   issuer + "/o/oauth2/auth",
			"token_endpoint":           issuer + "/token",
			"userinfo_endpoint":        issuer + "/userinfo",
			"jwks_uri":                 issuer + "/certs",
			"response_types_supported": []string{"code"},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		m.lastGrant.Store(r.PostForm.Encode())
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.PostForm.Get("code") == "bad":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Bad Request"}`))
		case r.PostForm.Get("grant_type") == "refresh_token":
			_, _ = w.Write([]byte(`{"access_token":"refreshed-at","token_type":"Bearer","expires_in":3600}`))
		default:
			_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
		}
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"1177","email":"dana@example.com","email_verified":true,"name":"Dana","picture":"https://example.com/d.png"}`))
	})
	m.srv = httptest.NewServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

func newTestProvider(t *testing.T, m *mockIssuer) *Provider {
	t.Helper()
	p, err := NewProvider(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		Issuer:       m.srv.URL,
	})
	require.NoError(t, err)
	return p
}

func TestNewProviderRequiresCredentials(t *testing.T) {
	_, err := NewProvider(Config{ClientID: "id"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
}

func TestAuthCodeURL(t *testing.T) {
	m := newMockIssuer(t)
	p := newTestProvider(t, m)

	raw, err := p.AuthCodeURL(context.Background(), "state-123")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/o/oauth2/auth", u.Path)
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Contains(t, q.Get("scope"), GmailReadonlyScope)
	assert.Equal(t, "client-id", q.Get("client_id"))

	_, err = p.AuthCodeURL(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, int32(1), m.discoveryHits.Load())
}

func TestExchange(t *testing.T) {
	m := newMockIssuer(t)
	p := newTestProvider(t, m)

	tok, identity, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "rt-1", tok.RefreshToken)
	assert.False(t, tok.Expiry.IsZero())
	assert.Equal(t, "1177", identity.ID)
	assert.Equal(t, "dana@example.com", identity.Email)
	assert.Equal(t, "Dana", identity.Name)
	assert.Equal(t, "https://example.com/d.png", identity.Picture)
}

func TestExchangeRejected(t *testing.T) {
	p := newTestProvider(t, newMockIssuer(t))

	_, _, err := p.Exchange(context.Background(), "bad")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeUpstreamRejected, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.Context["status"])
	assert.Contains(t, appErr.Context["detail"], "invalid_grant")

	_, _, err = p.Exchange(context.Background(), " ")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
}

func TestRefresh(t *testing.T) {
	m := newMockIssuer(t)
	p := newTestProvider(t, m)

	tok, err := p.Refresh(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-at", tok.AccessToken)
	assert.Equal(t, "rt-1", tok.RefreshToken, "refresh token is kept when the issuer does not rotate it")

	grant, _ := m.lastGrant.Load().(string)
	values, err := url.ParseQuery(grant)
	require.NoError(t, err)
	assert.Equal(t, "refresh_token", values.Get("grant_type"))
	assert.Equal(t, "rt-1", values.Get("refresh_token"))

	_, err = p.Refresh(context.Background(), "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCredentialExpired))
}

func TestDiscoveryFailureIsNotCached(t *testing.T) {
	p, err := NewProvider(Config{ClientID: "id", ClientSecret: "secret", Issuer: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = p.AuthCodeURL(context.Background(), "s")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUpstreamRejected))
	assert.Nil(t, p.oidc)
}

func TestClientKeepsConfiguredTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(slow.Close)

	p, err := NewProvider(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		HTTPClient:   &http.Client{Timeout: 20 * time.Millisecond},
	})
	require.NoError(t, err)

	c := p.Client(context.Background(), &oauth2.Token{AccessToken: "at", TokenType: "Bearer"})
	assert.Equal(t, 20*time.Millisecond, c.Timeout)

	_, err = c.Get(slow.URL)
	require.Error(t, err)
}
