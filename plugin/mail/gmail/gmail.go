// Package gmail reads recent messages from a Gmail mailbox.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/internal/util"
	"github.com/hrygo/autotask/store"
)

// DefaultBaseURL is the Gmail REST endpoint.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

const (
	// MaxBodyRunes caps an extracted message body.
	MaxBodyRunes = 10000
	// DefaultMaxResults is the number of messages fetched when none is given.
	DefaultMaxResults = 5

	defaultSubject = "No Subject"
	defaultSender  = "Unknown Sender"
)

var (
	plainText = contenttype.NewMediaType("text/plain")
	htmlText  = contenttype.NewMediaType("text/html")
)

// HTTPClientFunc returns a client that authorizes requests with tok.
type HTTPClientFunc func(ctx context.Context, tok *oauth2.Token) *http.Client

// Client lists messages.
type Client struct {
	baseURL    string
	httpClient HTTPClientFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the authorized client factory.
func WithHTTPClient(fn HTTPClientFunc) Option {
	return func(c *Client) { c.httpClient = fn }
}

// NewClient creates a Client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: func(ctx context.Context, tok *oauth2.Token) *http.Client {
			return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Header is a message header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PartBody is the content of a message part.
type PartBody struct {
	Data string `json:"data"`
	Size int    `json:"size"`
}

// MessagePart is a node of the MIME tree.
type MessagePart struct {
	MimeType string         `json:"mimeType"`
	Headers  []Header       `json:"headers"`
	Body     PartBody       `json:"body"`
	Parts    []*MessagePart `json:"parts"`
}

// Message is a full message as returned by messages.get.
type Message struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"threadId"`
	Snippet      string       `json:"snippet"`
	InternalDate string       `json:"internalDate"`
	Payload      *MessagePart `json:"payload"`
}

type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// ListRecent returns up to limit of the newest messages, newest first.
func (c *Client) ListRecent(ctx context.Context, tok *oauth2.Token, limit int) ([]store.Item, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, apperrors.CredentialExpired("mailbox credential is missing", nil)
	}
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	client := c.httpClient(ctx, tok)

	var list listResponse
	q := url.Values{"maxResults": {strconv.Itoa(limit)}}
	if err := c.get(ctx, client, "/users/me/messages?"+q.Encode(), &list); err != nil {
		return nil, err
	}

	items := make([]store.Item, 0, len(list.Messages))
	for _, ref := range list.Messages {
		var msg Message
		path := "/users/me/messages/" + url.PathEscape(ref.ID) + "?format=full"
		if err := c.get(ctx, client, path, &msg); err != nil {
			return nil, err
		}
		items = append(items, ToItem(&msg))
	}
	slog.Debug("fetched messages", slog.Int("count", len(items)))
	return items, nil
}

func (c *Client) get(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.Timeout("mailbox request cancelled", err)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamRejected, "mailbox request failed").WithContext("service", "gmail")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.UpstreamRejected("gmail", resp.StatusCode, googleErrorMessage(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func googleErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return util.Truncate(strings.TrimSpace(string(body)), 200)
}

// ToItem converts a full message into an Item.
func ToItem(msg *Message) store.Item {
	item := store.Item{
		ID:      msg.ID,
		Subject: defaultSubject,
		From:    defaultSender,
		Snippet: util.NormalizeText(msg.Snippet, 0),
	}
	if msg.Payload != nil {
		if v := headerValue(msg.Payload.Headers, "Subject"); v != "" {
			item.Subject = v
		}
		if v := headerValue(msg.Payload.Headers, "From"); v != "" {
			item.From = v
		}
		item.Body = ExtractBody(msg.Payload)
	}
	if ms, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil {
		item.Timestamp = ms
	}
	return item
}

func headerValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return strings.TrimSpace(h.Value)
		}
	}
	return ""
}

// ExtractBody returns the readable text of a message. The first text/plain
// part wins; otherwise the first text/html part is used with tags removed.
func ExtractBody(payload *MessagePart) string {
	if payload == nil {
		return ""
	}
	part := findPart(payload, plainText)
	isHTML := false
	if part == nil {
		part = findPart(payload, htmlText)
		isHTML = part != nil
	}
	if part == nil {
		// Single-part messages with an unusual type still carry their body.
		if len(payload.Parts) > 0 || payload.Body.Data == "" {
			return ""
		}
		part = payload
	}

	text, err := decodeData(part.Body.Data)
	if err != nil {
		slog.Debug("failed to decode message part", slog.String("mime_type", part.MimeType), slog.String("error", err.Error()))
		return ""
	}
	if isHTML || strings.Contains(text, "</") {
		return util.NormalizePlain(util.StripTags(text), MaxBodyRunes)
	}
	return util.NormalizeText(text, MaxBodyRunes)
}

func findPart(p *MessagePart, want contenttype.MediaType) *MessagePart {
	if len(p.Parts) == 0 {
		if p.Body.Data == "" {
			return nil
		}
		mt, err := contenttype.ParseMediaType(p.MimeType)
		if err != nil || !mt.Matches(want) {
			return nil
		}
		return p
	}
	for _, child := range p.Parts {
		if found := findPart(child, want); found != nil {
			return found
		}
	}
	return nil
}

// decodeData accepts base64url with or without padding.
func decodeData(data string) (string, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return "", nil
	}
	enc := base64.URLEncoding
	if !strings.HasSuffix(data, "=") {
		enc = base64.RawURLEncoding
	}
	b, err := enc.DecodeString(data)
	if err != nil {
		// Some senders use the standard alphabet.
		if b2, err2 := base64.StdEncoding.DecodeString(data); err2 == nil {
			return string(b2), nil
		}
		return "", errors.Wrap(err, "invalid base64 body")
	}
	return string(b), nil
}
