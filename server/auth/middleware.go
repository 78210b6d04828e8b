package auth

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/server/internal/observability"
	"github.com/hrygo/autotask/store"
)

// Session is the authenticated state of one request.
type Session struct {
	State *store.SessionState
	// Refreshed is set when the provider credential was renewed and the
	// token re-issued before the handler ran.
	Refreshed bool
	// Truncated is set when the re-issued token dropped its items.
	Truncated bool
	// Warning is a soft CREDENTIAL_EXPIRED error.
	Warning error
}

type sessionKey struct{}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the session stored by the authenticator.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*Session)
	return sess, ok && sess != nil && sess.State != nil
}

// Authenticator turns a request token into a Session.
type Authenticator struct {
	codec     *TokenCodec
	refresher *Refresher
	cookie    CookieConfig
}

// NewAuthenticator creates an Authenticator. refresher may be nil.
func NewAuthenticator(codec *TokenCodec, refresher *Refresher, cookie CookieConfig) *Authenticator {
	return &Authenticator{codec: codec, refresher: refresher, cookie: cookie}
}

// Authenticate decodes token and renews the provider credential when it is
// close to expiry. Decode failures are returned as AUTH_INVALID.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Session, error) {
	state, err := a.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	sess := &Session{State: state}
	if state.ProviderCredential == nil || a.refresher == nil {
		return sess, nil
	}

	cred, outcome := a.refresher.RefreshIfNeeded(ctx, *state.ProviderCredential)
	sess.Warning = outcome.Warning
	if outcome.Refreshed {
		state.ProviderCredential = &cred
		sess.Refreshed = true
	}
	return sess, nil
}

// Middleware authenticates every request that carries a token. Requests
// without a valid token continue unauthenticated. A renewed credential is
// re-encoded and sent back before the handler runs.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := ExtractToken(c.Request())
			if token == "" {
				return next(c)
			}

			ctx := c.Request().Context()
			logger := observability.Logger(ctx)
			sess, err := a.Authenticate(ctx, token)
			if err != nil {
				logger.Debug("ignoring invalid session token", slog.String(observability.LogFieldErrorCode, string(apperrors.GetCodeFromError(err, apperrors.ErrCodeAuthInvalid))))
				return next(c)
			}

			logger.UserID = sess.State.Key()
			if sess.Warning != nil {
				logger.Warn("provider credential not refreshed", slog.String("reason", sess.Warning.Error()))
			}
			if sess.Refreshed {
				result, err := a.codec.Encode(sess.State)
				if err != nil {
					logger.Error("failed to re-issue session token", err)
				} else {
					SetSessionCookie(c.Response(), a.cookie, result.Token)
					c.Response().Header().Set(RefreshedTokenHeader, result.Token)
					sess.Truncated = result.Truncated
					logger.Info("provider credential refreshed", slog.Bool("truncated", result.Truncated))
				}
			}

			c.SetRequest(c.Request().WithContext(WithSession(ctx, sess)))
			return next(c)
		}
	}
}
