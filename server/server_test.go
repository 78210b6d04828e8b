package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/hrygo/autotask/internal/profile"
	"github.com/hrygo/autotask/plugin/ai"
	"github.com/hrygo/autotask/plugin/clickup"
	"github.com/hrygo/autotask/store"
)

type stubIdentity struct{}

func (stubIdentity) AuthCodeURL(context.Context, string) (string, error) {
	return "https://accounts.example.com/auth", nil
}

func (stubIdentity) Exchange(context.Context, string) (*oauth2.Token, store.Identity, error) {
	return &oauth2.Token{AccessToken: "at"}, store.Identity{ID: "u1"}, nil
}

type stubMail struct{}

func (stubMail) ListRecent(context.Context, *oauth2.Token, int) ([]store.Item, error) {
	return nil, nil
}

type stubCompletion struct{}

func (stubCompletion) Complete(context.Context, ai.CompletionRequest) (*ai.Completion, error) {
	return &ai.Completion{Text: `{"task_title":"x"}`}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	p := &profile.Profile{Mode: "dev", Port: 8081, Secret: "s3cret", Version: "test"}
	require.NoError(t, p.Validate())

	s, err := NewServerWithDeps(context.Background(), p, Deps{
		Identity:   stubIdentity{},
		Mail:       stubMail{},
		Workspace:  clickup.NewClient(clickup.Config{BaseURL: "http://127.0.0.1:0"}),
		Completion: stubCompletion{},
	}, nil)
	require.NoError(t, err)
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Contains(t, body, "metrics")
	assert.InDelta(t, 100.0, body["success_rate"], 0.001)
}

func TestUnknownRouteUsesErrorBody(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"NOT_FOUND","message":"Not Found"}}`, rec.Body.String())
}

func TestAPIRateLimit(t *testing.T) {
	s := newTestServer(t)
	s.SetRateLimit(rate.Limit(0.001), 2)

	for i := 0; i < 2; i++ {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/user-state", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/user-state", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSAllowsInstanceOrigin(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/user-state", nil)
	req.Header.Set(echo.HeaderOrigin, s.Profile.InstanceURL)
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	rec := serve(s, req)

	assert.Equal(t, s.Profile.InstanceURL, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
}
