package v1

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/server/auth"
	"github.com/hrygo/autotask/server/internal/observability"
	"github.com/hrygo/autotask/server/session"
	"github.com/hrygo/autotask/store"
)

// Warning values returned alongside successful responses.
const (
	WarningPayloadTooLarge   = string(apperrors.ErrCodePayloadTooLarge)
	WarningCredentialExpired = string(apperrors.ErrCodeCredentialExpired)
)

// requireSession returns the authenticated session or UNAUTHORIZED.
func requireSession(c echo.Context) (*auth.Session, error) {
	sess, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return nil, apperrors.Unauthorized("authentication required")
	}
	return sess, nil
}

// resolve builds the effective state for this request.
func (s *APIV1Service) resolve(c echo.Context, sess *auth.Session, client session.ClientFields) session.EffectiveState {
	var entry *store.CacheEntry
	if key := sess.State.Key(); key != "" {
		entry, _ = s.States.Get(key)
	}
	eff := session.Resolve(sess.State, entry, client)

	logger := observability.Logger(c.Request().Context())
	logger.Debug("resolved session state", eff.Sources.Attrs()...)
	return eff
}

// persist re-issues the session token for eff, sets it on the response and
// writes the mutable fields to the state store. The returned warning is
// empty unless the token had to drop its items or the provider credential
// could not be renewed.
func (s *APIV1Service) persist(c echo.Context, sess *auth.Session, eff *session.EffectiveState) (string, error) {
	logger := observability.Logger(c.Request().Context())

	result, err := s.Codec.Encode(eff.ToSessionState())
	if err != nil {
		return "", err
	}
	auth.SetSessionCookie(c.Response(), s.Cookie, result.Token)
	c.Response().Header().Set(auth.RefreshedTokenHeader, result.Token)

	if key := eff.Key(); key != "" {
		s.States.Put(key, &store.CacheEntry{
			Items:     store.CloneItems(eff.Items),
			Workspace: eff.Workspace.Clone(),
		})
	}

	warning := ""
	switch {
	case result.Truncated || (sess != nil && sess.Truncated):
		warning = WarningPayloadTooLarge
		if s.Metrics != nil {
			s.Metrics.RecordTruncation()
		}
		logger.Warn("session token dropped its items", slog.Int("items", len(eff.Items)))
	case sess != nil && sess.Warning != nil:
		warning = WarningCredentialExpired
	}
	return warning, nil
}
