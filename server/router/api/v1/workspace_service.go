package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/plugin/clickup"
	"github.com/hrygo/autotask/server/internal/observability"
	"github.com/hrygo/autotask/server/session"
	"github.com/hrygo/autotask/store"
)

// WorkspaceStatus is the public view of a workspace integration. It never
// carries the access token.
type WorkspaceStatus struct {
	Authenticated      bool               `json:"authenticated"`
	Configured         bool               `json:"configured"`
	DefaultDestination *store.Destination `json:"defaultDestination"`
	TeamsCount         int                `json:"teamsCount"`
}

func newWorkspaceStatus(w *store.WorkspaceIntegration) *WorkspaceStatus {
	if w == nil {
		return &WorkspaceStatus{}
	}
	return &WorkspaceStatus{
		Authenticated:      w.AccessToken != "",
		Configured:         w.IsConfigured(),
		DefaultDestination: w.DefaultDestination,
		TeamsCount:         len(w.Teams),
	}
}

// PrepareWorkspaceRequest is the body of POST /api/workspace/prepare.
type PrepareWorkspaceRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// PrepareWorkspace stores the client-supplied app credentials in the session
// ahead of the authorization round trip.
// POST /api/workspace/prepare
func (s *APIV1Service) PrepareWorkspace(c echo.Context) error {
	sess, err := requireSession(c)
	if err != nil {
		return writeError(c, err)
	}
	var req PrepareWorkspaceRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.ClientSecret = strings.TrimSpace(req.ClientSecret)
	if req.ClientID == "" || req.ClientSecret == "" {
		return writeError(c, apperrors.InvalidArgument("workspace client id and secret are required"))
	}

	eff := s.resolve(c, sess, session.ClientFields{})
	eff.PendingWorkspace = &store.PendingWorkspaceCredential{ClientID: req.ClientID, ClientSecret: req.ClientSecret}
	warning, err := s.persist(c, sess, &eff)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"authUrl": s.Workspace.AuthorizeURL(req.ClientID, s.Profile.ClickUpRedirectURL()),
		"warning": warning,
	})
}

// WorkspaceCallback completes the workspace authorization. The pending
// credential is consumed whatever the outcome.
// GET /api/workspace/callback
func (s *APIV1Service) WorkspaceCallback(c echo.Context) error {
	const (
		success = "/?workspace_auth=success"
		failure = "/?workspace_auth=error"
	)
	sess, err := requireSession(c)
	if err != nil {
		return c.Redirect(http.StatusFound, failure)
	}
	ctx := c.Request().Context()
	logger := observability.Logger(ctx)

	eff := s.resolve(c, sess, session.ClientFields{})
	pending := eff.PendingWorkspace
	eff.PendingWorkspace = nil

	fail := func(reason string, cause error) error {
		logger.Error("workspace authorization failed", cause, slog.String("reason", reason))
		if _, err := s.persist(c, sess, &eff); err != nil {
			logger.Error("failed to clear pending workspace credential", err)
		}
		return c.Redirect(http.StatusFound, failure)
	}

	code := c.QueryParam("code")
	if pending == nil {
		return fail("no pending credential", nil)
	}
	if code == "" {
		return fail("missing code", nil)
	}
	token, err := s.Workspace.ExchangeCode(ctx, pending.ClientID, pending.ClientSecret, code)
	if err != nil {
		return fail("code exchange", err)
	}
	teams, err := s.Workspace.ListTeams(ctx, token)
	if err != nil {
		return fail("list teams", err)
	}

	eff.Workspace = &store.WorkspaceIntegration{AccessToken: token, Teams: teams}
	if _, err := s.persist(c, sess, &eff); err != nil {
		logger.Error("failed to store workspace integration", err)
		return c.Redirect(http.StatusFound, failure)
	}
	logger.Info("workspace authorized", slog.Int("teams", len(teams)))
	return c.Redirect(http.StatusFound, success)
}

// ListWorkspaces returns the team, space and list hierarchy.
// GET /api/workspace/workspaces
func (s *APIV1Service) ListWorkspaces(c echo.Context) error {
	sess, err := requireSession(c)
	if err != nil {
		return writeError(c, err)
	}
	eff := s.resolve(c, sess, session.ClientFields{})
	if eff.Workspace == nil || eff.Workspace.AccessToken == "" {
		return writeError(c, apperrors.Unauthorized("workspace not authorized"))
	}
	workspaces, err := s.Workspace.Hierarchy(c.Request().Context(), eff.Workspace.AccessToken, eff.Workspace.Teams)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string][]clickup.Workspace{"workspaces": workspaces})
}

// ConfigureWorkspaceRequest is the body of POST /api/workspace/configure.
type ConfigureWorkspaceRequest struct {
	ListID    string `json:"listId"`
	ListName  string `json:"listName"`
	SpaceName string `json:"spaceName"`
	TeamName  string `json:"teamName"`
	Reset     bool   `json:"reset"`
}

// ConfigureWorkspace sets or clears the default destination.
// POST /api/workspace/configure
func (s *APIV1Service) ConfigureWorkspace(c echo.Context) error {
	sess, err := requireSession(c)
	if err != nil {
		return writeError(c, err)
	}
	var req ConfigureWorkspaceRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}

	eff := s.resolve(c, sess, session.ClientFields{})
	if req.Reset {
		if eff.Workspace != nil {
			eff.Workspace.Configured = false
			eff.Workspace.DefaultDestination = nil
		}
		warning, err := s.persist(c, sess, &eff)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "configuration reset", "warning": warning})
	}

	if strings.TrimSpace(req.ListID) == "" {
		return writeError(c, apperrors.InvalidArgument("list id is required"))
	}
	if eff.Workspace == nil || eff.Workspace.AccessToken == "" {
		return writeError(c, apperrors.Unauthorized("workspace not authorized"))
	}
	eff.Workspace.Configured = true
	eff.Workspace.DefaultDestination = &store.Destination{
		ID:        req.ListID,
		Name:      req.ListName,
		SpaceName: req.SpaceName,
		TeamName:  req.TeamName,
	}
	warning, err := s.persist(c, sess, &eff)
	if err != nil {
		return writeError(c, err)
	}
	observability.Logger(c.Request().Context()).Info("default destination configured", slog.String("list_id", req.ListID))
	return c.JSON(http.StatusOK, map[string]any{
		"success":            true,
		"message":            "configuration saved",
		"defaultDestination": eff.Workspace.DefaultDestination,
		"warning":            warning,
	})
}

// GetWorkspaceStatus reports whether tasks can be published.
// GET /api/workspace/status
func (s *APIV1Service) GetWorkspaceStatus(c echo.Context) error {
	sess, err := requireSession(c)
	if err != nil {
		return writeError(c, err)
	}
	eff := s.resolve(c, sess, session.ClientFields{})
	return c.JSON(http.StatusOK, newWorkspaceStatus(eff.Workspace))
}
