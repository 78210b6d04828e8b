package v1

import (
	"context"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/hrygo/autotask/internal/profile"
	"github.com/hrygo/autotask/plugin/ai/agent"
	"github.com/hrygo/autotask/plugin/clickup"
	"github.com/hrygo/autotask/server/auth"
	"github.com/hrygo/autotask/server/internal/observability"
	"github.com/hrygo/autotask/store"
)

// IdentityProvider signs users in.
type IdentityProvider interface {
	AuthCodeURL(ctx context.Context, state string) (string, error)
	Exchange(ctx context.Context, code string) (*oauth2.Token, store.Identity, error)
}

// MessageSource lists a user's recent messages.
type MessageSource interface {
	ListRecent(ctx context.Context, tok *oauth2.Token, limit int) ([]store.Item, error)
}

// WorkspaceClient talks to the task workspace.
type WorkspaceClient interface {
	AuthorizeURL(clientID, redirectURI string) string
	ExchangeCode(ctx context.Context, clientID, clientSecret, code string) (string, error)
	ListTeams(ctx context.Context, token string) ([]store.Team, error)
	Hierarchy(ctx context.Context, token string, teams []store.Team) ([]clickup.Workspace, error)
	Publisher(token string) agent.TaskPublisher
}

// APIV1Service serves the JSON API. Every request rebuilds its state from
// the session token, the state store and the request body; nothing else is
// kept between requests.
type APIV1Service struct {
	Profile   *profile.Profile
	Codec     *auth.TokenCodec
	Cookie    auth.CookieConfig
	States    *store.StateStore
	Identity  IdentityProvider
	Mail      MessageSource
	Workspace WorkspaceClient
	Processor *agent.Processor
	Metrics   *observability.Metrics
}

// RegisterRoutes mounts the API on e. The authenticator middleware must
// already be installed.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/user-state", s.GetUserState)

	authGroup := e.Group("/auth")
	authGroup.GET("/google/login", s.GoogleLogin)
	authGroup.GET("/google/callback", s.GoogleCallback)
	authGroup.POST("/logout", s.Logout)

	items := e.Group("/api/items")
	items.POST("/fetch", s.FetchItems)
	items.POST("/:id/process", s.ProcessItem)

	workspace := e.Group("/api/workspace")
	workspace.POST("/prepare", s.PrepareWorkspace)
	workspace.GET("/callback", s.WorkspaceCallback)
	workspace.GET("/workspaces", s.ListWorkspaces)
	workspace.POST("/configure", s.ConfigureWorkspace)
	workspace.GET("/status", s.GetWorkspaceStatus)

	config := e.Group("/api/config")
	config.GET("/callback-urls", s.GetCallbackURLs)
	config.POST("/validate", s.ValidateConfig)
}
