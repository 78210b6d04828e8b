package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/autotask/plugin/ai"
)

// CallbackURL describes one redirect URI to register with a provider.
type CallbackURL struct {
	RedirectURI  string `json:"redirectUri"`
	Instructions string `json:"instructions"`
}

// CallbackURLsResponse is the body of GET /api/config/callback-urls.
type CallbackURLsResponse struct {
	BaseURL   string      `json:"baseUrl"`
	Google    CallbackURL `json:"google"`
	Workspace CallbackURL `json:"workspace"`
}

// GetCallbackURLs lists the redirect URIs this instance expects.
// GET /api/config/callback-urls
func (s *APIV1Service) GetCallbackURLs(c echo.Context) error {
	return c.JSON(http.StatusOK, CallbackURLsResponse{
		BaseURL: s.Profile.InstanceURL,
		Google: CallbackURL{
			RedirectURI:  s.Profile.GoogleRedirectURL(),
			Instructions: "Add this URL to the OAuth 2.0 client in Google Cloud Console",
		},
		Workspace: CallbackURL{
			RedirectURI:  s.Profile.ClickUpRedirectURL(),
			Instructions: "Add this URL to the ClickUp app settings",
		},
	})
}

// ValidateConfigRequest carries settings the client keeps locally.
type ValidateConfigRequest struct {
	CompletionAPIKey      string `json:"chippApiKey"`
	WorkspaceClientID     string `json:"clickupClientId"`
	WorkspaceClientSecret string `json:"clickupClientSecret"`
}

// FieldValidation is the verdict on one group of settings.
type FieldValidation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// ValidateConfigResponse is the body of POST /api/config/validate.
type ValidateConfigResponse struct {
	Valid      bool                       `json:"valid"`
	Validation map[string]FieldValidation `json:"validation"`
	Message    string                     `json:"message"`
}

// ValidateConfig checks the shape of client-held settings without calling
// any provider.
// POST /api/config/validate
func (s *APIV1Service) ValidateConfig(c echo.Context) error {
	var req ValidateConfigRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}

	completion := FieldValidation{Valid: true, Message: "valid"}
	if err := ai.ValidateAPIKey(req.CompletionAPIKey); err != nil {
		completion = FieldValidation{Message: err.Error()}
	}
	workspace := FieldValidation{Valid: true, Message: "valid"}
	if strings.TrimSpace(req.WorkspaceClientID) == "" || strings.TrimSpace(req.WorkspaceClientSecret) == "" {
		workspace = FieldValidation{Message: "both client id and secret are required"}
	}

	resp := ValidateConfigResponse{
		Valid:      completion.Valid && workspace.Valid,
		Validation: map[string]FieldValidation{"completion": completion, "workspace": workspace},
		Message:    "all settings are valid",
	}
	if !resp.Valid {
		resp.Message = "some settings need attention"
	}
	return c.JSON(http.StatusOK, resp)
}
