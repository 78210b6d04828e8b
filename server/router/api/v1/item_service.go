package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/plugin/ai"
	"github.com/hrygo/autotask/plugin/ai/agent"
	"github.com/hrygo/autotask/server/auth"
	"github.com/hrygo/autotask/server/internal/observability"
	"github.com/hrygo/autotask/server/session"
	"github.com/hrygo/autotask/store"
)

// FetchItemsResponse is the body of POST /api/items/fetch.
type FetchItemsResponse struct {
	Items   []store.Item `json:"items"`
	Warning string       `json:"warning,omitempty"`
}

// FetchItems reads the newest messages from the mailbox. Extractions already
// recorded for a message are kept.
// POST /api/items/fetch
func (s *APIV1Service) FetchItems(c echo.Context) error {
	start := time.Now()
	sess, err := requireSession(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx := c.Request().Context()
	eff := s.resolve(c, sess, session.ClientFields{})
	if eff.ProviderCredential == nil || eff.ProviderCredential.AccessToken == "" {
		return writeError(c, apperrors.CredentialExpired("mailbox credential is missing", nil))
	}

	items, err := s.Mail.ListRecent(ctx, auth.OAuth2Token(eff.ProviderCredential), s.Profile.MaxItems)
	s.recordRequest("items.fetch", start, err)
	if err != nil {
		return writeError(c, err)
	}
	if items == nil {
		items = []store.Item{}
	}
	for i := range items {
		if j := store.FindItem(eff.Items, items[i].ID); j >= 0 && eff.Items[j].Extraction != nil {
			items[i].Extraction = eff.Items[j].Extraction
		}
	}
	eff.Items = items

	warning, err := s.persist(c, sess, &eff)
	if err != nil {
		return writeError(c, err)
	}
	observability.Logger(ctx).Info("items fetched", slog.Int("count", len(items)))
	return c.JSON(http.StatusOK, FetchItemsResponse{Items: eff.Items, Warning: warning})
}

// ProcessItemRequest is the body of POST /api/items/:id/process. Items, when
// present, is the client-held list and takes precedence over stored state.
type ProcessItemRequest struct {
	APIKey string        `json:"apiKey"`
	Items  *[]store.Item `json:"items,omitempty"`
}

// ProcessItemResponse is the body of POST /api/items/:id/process.
type ProcessItemResponse struct {
	Item    store.Item           `json:"item"`
	Result  *agent.ProcessResult `json:"result"`
	Warning string               `json:"warning,omitempty"`
}

// ProcessItem extracts a task from one item and publishes it when a default
// destination is configured.
// POST /api/items/:id/process
func (s *APIV1Service) ProcessItem(c echo.Context) error {
	start := time.Now()
	sess, err := requireSession(c)
	if err != nil {
		return writeError(c, err)
	}
	var req ProcessItemRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}
	if err := ai.ValidateAPIKey(req.APIKey); err != nil {
		return writeError(c, apperrors.InvalidArgument(err.Error()))
	}

	var client session.ClientFields
	if req.Items != nil {
		client.Items = *req.Items
		if client.Items == nil {
			client.Items = []store.Item{}
		}
	}
	eff := s.resolve(c, sess, client)
	item, ok := eff.FindItem(c.Param("id"))
	if !ok {
		return writeError(c, apperrors.NotFound("item not found"))
	}

	ctx := c.Request().Context()
	logger := observability.Logger(ctx)
	preq := agent.ProcessRequest{Item: *item, APIKey: req.APIKey}
	if eff.Workspace.IsConfigured() {
		preq.Destination = eff.Workspace.DefaultDestination
		preq.Publisher = s.Workspace.Publisher(eff.Workspace.AccessToken)
	}

	result, err := s.Processor.Process(ctx, preq)
	s.recordRequest("items.process", start, err)
	if err != nil {
		return writeError(c, err)
	}
	if s.Metrics != nil {
		s.Metrics.RecordOutcome(result.Outcome)
		if result.Recovery.Attempted {
			s.Metrics.RecordRecovery()
		}
	}
	item.Extraction = result.Extraction()
	logger.Info("item processed",
		slog.String("item_id", item.ID),
		slog.String("outcome", result.Outcome),
		slog.String("strategy", result.Strategy),
		slog.Bool("recovered", result.Recovery.Recovered),
	)

	warning, err := s.persist(c, sess, &eff)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ProcessItemResponse{Item: *item, Result: result, Warning: warning})
}

func (s *APIV1Service) recordRequest(operation string, start time.Time, err error) {
	if s.Metrics != nil {
		s.Metrics.RecordRequest(operation, time.Since(start), err != nil)
	}
}
