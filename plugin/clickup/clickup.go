// Package clickup is a small client for the ClickUp v2 API covering the
// authorization round trip, the team/space/list hierarchy and task creation.
package clickup

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/internal/util"
	"github.com/hrygo/autotask/plugin/ai/timeout"
	"github.com/hrygo/autotask/store"
)

const (
	// DefaultBaseURL is the ClickUp REST endpoint.
	DefaultBaseURL = "https://api.clickup.com/api/v2"
	// DefaultAuthorizeURL is the ClickUp consent screen.
	DefaultAuthorizeURL = "https://app.clickup.com/api"
)

// Config configures a Client.
type Config struct {
	BaseURL      string
	AuthorizeURL string
	Timeout      time.Duration
}

// Client calls the ClickUp API. Tokens are passed per call because every
// user has their own.
type Client struct {
	baseURL      string
	authorizeURL string
	http         *http.Client
}

// NewClient creates a Client, filling defaults for empty fields.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = DefaultAuthorizeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeout.WorkspaceTimeout
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		authorizeURL: cfg.AuthorizeURL,
		http:         &http.Client{Timeout: cfg.Timeout},
	}
}

// AuthorizeURL returns the consent screen URL for clientID.
func (c *Client) AuthorizeURL(clientID, redirectURI string) string {
	q := url.Values{"client_id": {clientID}, "redirect_uri": {redirectURI}}
	return c.authorizeURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, clientID, clientSecret, code string) (string, error) {
	if clientID == "" || clientSecret == "" {
		return "", apperrors.InvalidArgument("workspace client id and secret are required")
	}
	if code == "" {
		return "", apperrors.InvalidArgument("authorization code is required")
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	in := map[string]string{"client_id": clientID, "client_secret": clientSecret, "code": code}
	if err := c.do(ctx, http.MethodPost, "/oauth/token", "", in, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", apperrors.UpstreamRejected("clickup", http.StatusOK, "no access token in response")
	}
	return out.AccessToken, nil
}

type namedObject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListTeams returns the teams the token can see.
func (c *Client) ListTeams(ctx context.Context, token string) ([]store.Team, error) {
	var out struct {
		Teams []namedObject `json:"teams"`
	}
	if err := c.do(ctx, http.MethodGet, "/team", token, nil, &out); err != nil {
		return nil, err
	}
	teams := make([]store.Team, 0, len(out.Teams))
	for _, t := range out.Teams {
		teams = append(teams, store.Team{ID: t.ID, Name: t.Name})
	}
	return teams, nil
}

// Space is a container of lists inside a team.
type Space struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List is a task destination.
type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListSpaces returns the spaces of a team.
func (c *Client) ListSpaces(ctx context.Context, token, teamID string) ([]Space, error) {
	var out struct {
		Spaces []namedObject `json:"spaces"`
	}
	if err := c.do(ctx, http.MethodGet, "/team/"+url.PathEscape(teamID)+"/space", token, nil, &out); err != nil {
		return nil, err
	}
	spaces := make([]Space, 0, len(out.Spaces))
	for _, s := range out.Spaces {
		spaces = append(spaces, Space(s))
	}
	return spaces, nil
}

// ListLists returns the folderless lists of a space.
func (c *Client) ListLists(ctx context.Context, token, spaceID string) ([]List, error) {
	var out struct {
		Lists []namedObject `json:"lists"`
	}
	if err := c.do(ctx, http.MethodGet, "/space/"+url.PathEscape(spaceID)+"/list", token, nil, &out); err != nil {
		return nil, err
	}
	lists := make([]List, 0, len(out.Lists))
	for _, l := range out.Lists {
		lists = append(lists, List(l))
	}
	return lists, nil
}

// Workspace is one team/space pair with its lists.
type Workspace struct {
	Team  store.Team `json:"team"`
	Space Space      `json:"space"`
	Lists []List     `json:"lists"`
}

// Hierarchy walks team, space and list in order.
func (c *Client) Hierarchy(ctx context.Context, token string, teams []store.Team) ([]Workspace, error) {
	out := []Workspace{}
	for _, team := range teams {
		spaces, err := c.ListSpaces(ctx, token, team.ID)
		if err != nil {
			return nil, err
		}
		for _, space := range spaces {
			lists, err := c.ListLists(ctx, token, space.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, Workspace{Team: team, Space: space, Lists: lists})
		}
	}
	return out, nil
}

// CreateTaskRequest is the body of a task creation call.
type CreateTaskRequest struct {
	Name                string   `json:"name"`
	MarkdownDescription string   `json:"markdown_description,omitempty"`
	Priority            *int     `json:"priority,omitempty"`
	DueDate             *int64   `json:"due_date,omitempty"`
	DueDateTime         *bool    `json:"due_date_time,omitempty"`
	Tags                []string `json:"tags,omitempty"`
}

// Task is a created task.
type Task struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// NewCreateTaskRequest maps a TaskRecord onto the create-task body.
func NewCreateTaskRequest(rec *store.TaskRecord) CreateTaskRequest {
	req := CreateTaskRequest{
		Name:                rec.Title,
		MarkdownDescription: rec.Description,
		Tags:                rec.Tags,
	}
	if level := rec.Priority.Level(); level > 0 {
		req.Priority = &level
	}
	if rec.DueDate != nil {
		due := *rec.DueDate
		withTime := false
		req.DueDate = &due
		req.DueDateTime = &withTime
	}
	return req
}

// CreateTask creates a task in listID.
func (c *Client) CreateTask(ctx context.Context, token, listID string, in CreateTaskRequest) (*Task, error) {
	if listID == "" {
		return nil, apperrors.InvalidArgument("destination list id is required")
	}
	var out Task
	if err := c.do(ctx, http.MethodPost, "/list/"+url.PathEscape(listID)+"/task", token, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		// ClickUp expects the bare token.
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.Timeout("workspace request cancelled", err)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamRejected, "workspace request failed").WithContext("service", "clickup")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.UpstreamRejected("clickup", resp.StatusCode, errorDetail(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

// errorDetail reads ClickUp's {"err": ..., "ECODE": ...} body.
func errorDetail(raw []byte) string {
	if gjson.ValidBytes(raw) {
		res := gjson.ParseBytes(raw)
		msg := res.Get("err").String()
		if code := res.Get("ECODE").String(); code != "" {
			if msg == "" {
				return code
			}
			return msg + " (" + code + ")"
		}
		if msg != "" {
			return msg
		}
	}
	return util.Truncate(strings.TrimSpace(string(raw)), 200)
}
