package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/server/auth"
	"github.com/hrygo/autotask/server/internal/observability"
	"github.com/hrygo/autotask/server/session"
	"github.com/hrygo/autotask/store"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 10 * time.Minute
)

// UserStateResponse is the body of GET /api/user-state.
type UserStateResponse struct {
	Authenticated bool                        `json:"authenticated"`
	User          *store.Identity             `json:"user,omitempty"`
	Items         []store.Item                `json:"items"`
	Workspace     *WorkspaceStatus            `json:"workspace,omitempty"`
	Sources       *session.Sources            `json:"sources,omitempty"`
	Warning       string                      `json:"warning,omitempty"`
	Pending       *pendingWorkspaceDescriptor `json:"pendingWorkspace,omitempty"`
}

type pendingWorkspaceDescriptor struct {
	ClientID string `json:"clientId"`
}

// GetUserState reports who is signed in and the current state.
// GET /api/user-state
func (s *APIV1Service) GetUserState(c echo.Context) error {
	sess, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusOK, UserStateResponse{Items: []store.Item{}})
	}
	eff := s.resolve(c, sess, session.ClientFields{})

	resp := UserStateResponse{
		Authenticated: true,
		User:          &eff.Identity,
		Items:         eff.Items,
		Workspace:     newWorkspaceStatus(eff.Workspace),
		Sources:       &eff.Sources,
	}
	if resp.Items == nil {
		resp.Items = []store.Item{}
	}
	if eff.PendingWorkspace != nil {
		resp.Pending = &pendingWorkspaceDescriptor{ClientID: eff.PendingWorkspace.ClientID}
	}
	switch {
	case sess.Truncated:
		resp.Warning = WarningPayloadTooLarge
	case sess.Warning != nil:
		resp.Warning = WarningCredentialExpired
	}
	return c.JSON(http.StatusOK, resp)
}

// GoogleLogin redirects to the identity provider's consent screen.
// GET /auth/google/login
func (s *APIV1Service) GoogleLogin(c echo.Context) error {
	state := shortuuid.New()
	authURL, err := s.Identity.AuthCodeURL(c.Request().Context(), state)
	if err != nil {
		return writeError(c, err)
	}
	c.SetCookie(&http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int(oauthStateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, authURL)
}

// GoogleCallback completes sign-in and issues the session token.
// GET /auth/google/callback
func (s *APIV1Service) GoogleCallback(c echo.Context) error {
	ctx := c.Request().Context()
	logger := observability.Logger(ctx)

	expected := ""
	if cookie, err := c.Cookie(oauthStateCookie); err == nil {
		expected = cookie.Value
	}
	c.SetCookie(&http.Cookie{Name: oauthStateCookie, Path: "/auth/google", MaxAge: -1, HttpOnly: true, Secure: s.Cookie.Secure})

	if errParam := c.QueryParam("error"); errParam != "" {
		logger.Warn("identity provider returned an error", slog.String("error", errParam))
		return c.Redirect(http.StatusFound, "/?error=auth_failed")
	}
	if expected == "" || c.QueryParam("state") != expected {
		logger.Warn("oauth state mismatch")
		return c.Redirect(http.StatusFound, "/?error=auth_failed")
	}

	tok, identity, err := s.Identity.Exchange(ctx, c.QueryParam("code"))
	if err != nil {
		logger.Error("failed to complete sign-in", err,
			slog.String(observability.LogFieldErrorCode, string(apperrors.GetCodeFromError(err, apperrors.ErrCodeInternal))))
		return c.Redirect(http.StatusFound, "/?error=auth_failed")
	}

	state := &store.SessionState{
		Identity:           identity,
		ProviderCredential: auth.CredentialFromToken(tok),
	}
	sess := &auth.Session{State: state}
	eff := s.resolve(c, sess, session.ClientFields{})
	logger.UserID = eff.Key()
	if _, err := s.persist(c, sess, &eff); err != nil {
		logger.Error("failed to issue session token", err)
		return c.Redirect(http.StatusFound, "/?error=auth_failed")
	}
	logger.Info("user signed in")
	return c.Redirect(http.StatusFound, "/")
}

// Logout clears the session cookie and the cached state.
// POST /auth/logout
func (s *APIV1Service) Logout(c echo.Context) error {
	if sess, ok := auth.SessionFromContext(c.Request().Context()); ok {
		if key := sess.State.Key(); key != "" {
			s.States.Delete(key)
		}
	}
	auth.ClearSessionCookie(c.Response(), s.Cookie)
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
