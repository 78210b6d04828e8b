package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/hrygo/autotask/store"
)

func runMiddleware(t *testing.T, a *Authenticator, req *http.Request) (*Session, bool, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	var got *Session
	var ok bool
	handler := a.Middleware()(func(c echo.Context) error {
		got, ok = SessionFromContext(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})
	require.NoError(t, handler(e.NewContext(req, rec)))
	return got, ok, rec
}

func TestAuthenticatorMiddleware(t *testing.T) {
	codec := newTestCodec(t, WithClock(func() time.Time { return refreshNow }))
	src := &fakeTokenSource{token: &oauth2.Token{AccessToken: "fresh", Expiry: refreshNow.Add(time.Hour)}}
	a := NewAuthenticator(codec, newTestRefresher(src), CookieConfig{MaxAge: 24 * time.Hour})

	t.Run("no token", func(t *testing.T) {
		_, ok, _ := runMiddleware(t, a, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.False(t, ok)
	})

	t.Run("invalid token degrades to unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		_, ok, _ := runMiddleware(t, a, req)
		assert.False(t, ok)
	})

	t.Run("valid token without refresh", func(t *testing.T) {
		state := sampleState()
		state.ProviderCredential.Expiry = refreshNow.Add(time.Hour)
		result, err := codec.Encode(state)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: result.Token})
		sess, ok, rec := runMiddleware(t, a, req)
		require.True(t, ok)
		assert.False(t, sess.Refreshed)
		assert.Equal(t, "108", sess.State.Key())
		assert.Empty(t, rec.Header().Get(RefreshedTokenHeader))
		assert.Equal(t, int32(0), src.calls.Load())
	})

	t.Run("expiring credential is refreshed and re-issued", func(t *testing.T) {
		state := sampleState()
		state.ProviderCredential.Expiry = refreshNow.Add(-time.Minute)
		result, err := codec.Encode(state)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: result.Token})
		sess, ok, rec := runMiddleware(t, a, req)
		require.True(t, ok)
		assert.True(t, sess.Refreshed)
		assert.Equal(t, "fresh", sess.State.ProviderCredential.AccessToken)

		reissued := rec.Header().Get(RefreshedTokenHeader)
		require.NotEmpty(t, reissued)
		decoded, err := codec.Decode(reissued)
		require.NoError(t, err)
		assert.Equal(t, "fresh", decoded.ProviderCredential.AccessToken)
		assert.NotEmpty(t, rec.Result().Cookies())
	})
}

func TestSessionFromContextRequiresState(t *testing.T) {
	ctx := WithSession(httptest.NewRequest(http.MethodGet, "/", nil).Context(), &Session{})
	_, ok := SessionFromContext(ctx)
	assert.False(t, ok)

	ctx = WithSession(ctx, &Session{State: &store.SessionState{}})
	_, ok = SessionFromContext(ctx)
	assert.True(t, ok)
}
