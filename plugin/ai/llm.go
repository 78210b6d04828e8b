package ai

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	apperrors "github.com/hrygo/autotask/internal/errors"
)

// Usage is the token accounting reported for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is a single user turn. ConversationID continues an
// existing conversation when set.
type CompletionRequest struct {
	APIKey         string
	Message        string
	ConversationID string
}

// Completion is the answer to a CompletionRequest.
type Completion struct {
	Text           string
	ConversationID string
	Usage          Usage
}

// CompletionService produces completions.
type CompletionService interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// ChippClient talks to an OpenAI-compatible chat completion endpoint that
// threads conversations through a chatSessionId body field.
type ChippClient struct {
	config *Config
	base   http.RoundTripper
}

// NewChippClient creates a client. A nil config uses DefaultConfig.
func NewChippClient(cfg *Config) *ChippClient {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ChippClient{config: cfg, base: http.DefaultTransport}
}

// WithTransport returns a copy of the client using rt for outbound requests.
func (c *ChippClient) WithTransport(rt http.RoundTripper) *ChippClient {
	return &ChippClient{config: c.config, base: rt}
}

// Complete sends one user message. The API key belongs to the caller, so a
// client is built per call.
func (c *ChippClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, apperrors.InvalidArgument("completion API key is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperrors.InvalidArgument("completion message is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	transport := &sessionTransport{base: c.base, conversationID: req.ConversationID}
	clientConfig := openai.DefaultConfig(req.APIKey)
	clientConfig.BaseURL = c.config.BaseURL
	clientConfig.HTTPClient = &http.Client{Transport: transport}
	client := openai.NewClientWithConfig(clientConfig)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Message},
		},
		Stream: false,
	})
	if err != nil {
		return nil, mapCompletionError(ctx, err)
	}

	out := &Completion{
		ConversationID: transport.captured(),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if out.ConversationID == "" {
		out.ConversationID = req.ConversationID
	}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
	}
	return out, nil
}

func mapCompletionError(ctx context.Context, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Timeout("completion request timed out", err)
	}
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return apperrors.UpstreamRejected("completion", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		detail := reqErr.HTTPStatus
		if reqErr.Err != nil {
			detail = reqErr.Err.Error()
		}
		return apperrors.UpstreamRejected("completion", reqErr.HTTPStatusCode, detail)
	}
	return apperrors.Wrap(err, apperrors.ErrCodeUpstreamRejected, "completion request failed")
}
