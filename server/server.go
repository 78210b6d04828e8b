package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/hrygo/autotask/internal/profile"
	"github.com/hrygo/autotask/plugin/ai"
	"github.com/hrygo/autotask/plugin/ai/agent"
	"github.com/hrygo/autotask/plugin/ai/timeout"
	"github.com/hrygo/autotask/plugin/clickup"
	"github.com/hrygo/autotask/plugin/idp/google"
	"github.com/hrygo/autotask/plugin/mail/gmail"
	"github.com/hrygo/autotask/server/auth"
	"github.com/hrygo/autotask/server/internal/observability"
	apimiddleware "github.com/hrygo/autotask/server/middleware"
	apiv1 "github.com/hrygo/autotask/server/router/api/v1"
	"github.com/hrygo/autotask/store"
)

const (
	janitorInterval = 10 * time.Minute
	limiterIdle     = 30 * time.Minute
	bodyLimit       = "1M"
)

// Deps are the collaborators the server talks to.
type Deps struct {
	Identity   apiv1.IdentityProvider
	Refresher  auth.TokenRefresher
	Mail       apiv1.MessageSource
	Workspace  apiv1.WorkspaceClient
	Completion ai.CompletionService
}

type Server struct {
	Profile *profile.Profile
	Metrics *observability.Metrics
	States  *store.StateStore

	logger     *slog.Logger
	echoServer *echo.Echo
	limiter    *apimiddleware.RateLimiter
	cancel     context.CancelFunc
}

// NewLogger builds the process logger for p.
func NewLogger(p *profile.Profile) *slog.Logger {
	return observability.NewLogger(observability.Options{Mode: p.Mode, Level: p.LogLevel})
}

// NewServer builds the server with the production collaborators.
func NewServer(ctx context.Context, p *profile.Profile, logger *slog.Logger) (*Server, error) {
	provider, err := google.NewProvider(google.Config{
		ClientID:     p.GoogleClientID,
		ClientSecret: p.GoogleClientSecret,
		RedirectURL:  p.GoogleRedirectURL(),
		Issuer:       p.GoogleIssuer,
		HTTPClient:   &http.Client{Timeout: timeout.ProviderTimeout},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create identity provider")
	}

	deps := Deps{
		Identity:  provider,
		Refresher: provider,
		Mail:      gmail.NewClient(p.GmailBaseURL, gmail.WithHTTPClient(provider.Client)),
		Workspace: clickup.NewClient(clickup.Config{
			BaseURL:      p.ClickUpBaseURL,
			AuthorizeURL: p.ClickUpAuthorizeURL,
		}),
		Completion: ai.NewChippClient(ai.NewConfigFromProfile(p)),
	}
	return NewServerWithDeps(ctx, p, deps, logger)
}

// NewServerWithDeps builds the server around the given collaborators.
func NewServerWithDeps(_ context.Context, p *profile.Profile, deps Deps, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	codec, err := auth.NewTokenCodec([]byte(p.Secret))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create token codec")
	}

	s := &Server{
		Profile: p,
		Metrics: observability.NewMetrics(),
		States:  store.NewStateStore(p.CacheCapacity, p.CacheTTL),
		logger:  logger,
		limiter: apimiddleware.NewRateLimiter(0, 0),
	}

	var refresher *auth.Refresher
	if deps.Refresher != nil {
		refresher = auth.NewRefresher(deps.Refresher)
	}
	cookie := auth.CookieConfig{Secure: p.CookieSecure, MaxAge: codec.TTL()}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.HTTPErrorHandler = apiv1.HTTPErrorHandler
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	echoServer.Use(s.requestContext())
	echoServer.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{p.InstanceURL},
		AllowCredentials: true,
		ExposeHeaders:    []string{auth.RefreshedTokenHeader, echo.HeaderXRequestID},
	}))
	echoServer.Use(middleware.BodyLimit(bodyLimit))
	echoServer.Use(auth.NewAuthenticator(codec, refresher, cookie).Middleware())
	echoServer.Use(s.rateLimit())
	s.echoServer = echoServer

	echoServer.GET("/healthz", s.healthz)

	processor := agent.NewProcessor(deps.Completion,
		agent.WithRecovery(agent.NewRecovery(deps.Completion, agent.WithDelay(p.RecoveryDelay))),
	)
	apiV1Service := &apiv1.APIV1Service{
		Profile:   p,
		Codec:     codec,
		Cookie:    cookie,
		States:    s.States,
		Identity:  deps.Identity,
		Mail:      deps.Mail,
		Workspace: deps.Workspace,
		Processor: processor,
		Metrics:   s.Metrics,
	}
	apiV1Service.RegisterRoutes(echoServer)

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	janitorCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.States.RunJanitor(janitorCtx, janitorInterval)
	go s.limiter.RunJanitor(janitorCtx, janitorInterval, limiterIdle)

	s.echoServer.Listener = listener
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to start echo server", slog.String("error", err.Error()))
		}
	}()
	s.logger.Info("server started", slog.String("address", listener.Addr().String()), slog.String("mode", s.Profile.Mode))
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, timeout.ShutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.echoServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	s.logger.Info("server stopped properly")
}

func (s *Server) healthz(c echo.Context) error {
	snapshot := s.Metrics.Snapshot()
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.Profile.Version,
		"sessions": s.States.Len(),
		"metrics":  snapshot,
		// Percentage of /api requests that did not fail.
		"success_rate": snapshot.SuccessRate(),
	})
}

// requestContext attaches a request-scoped logger and logs the outcome of
// every request.
func (s *Server) requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			reqCtx := observability.NewRequestContextWithID(s.logger, requestID, c.Request().Method+" "+c.Path())
			c.SetRequest(c.Request().WithContext(observability.WithRequestContext(c.Request().Context(), reqCtx)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			reqCtx.Debug("request completed",
				slog.Int(observability.LogFieldStatus, c.Response().Status),
				slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
			)
			return nil
		}
	}
}

// rateLimit throttles /api per session owner, falling back to the client IP.
func (s *Server) rateLimit() echo.MiddlewareFunc {
	keyFn := func(c echo.Context) string {
		if sess, ok := auth.SessionFromContext(c.Request().Context()); ok {
			return sess.State.Key()
		}
		return ""
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, "/api/") {
				return next(c)
			}
			return s.limiter.Middleware(keyFn, nil)(next)(c)
		}
	}
}

// SetRateLimit replaces the /api rate limit. It must be called before Start.
func (s *Server) SetRateLimit(every rate.Limit, burst int) {
	s.limiter = apimiddleware.NewRateLimiter(every, burst)
}
