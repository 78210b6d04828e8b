package store

import (
	"slices"
	"time"

	apperrors "github.com/hrygo/autotask/internal/errors"
)

// Identity is the logged-in user as reported by the identity provider.
// It does not change for the life of a login.
type Identity struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// ProviderCredential is the identity provider's OAuth credential.
// A zero Expiry means the expiry is unknown.
type ProviderCredential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// Team is a top-level workspace container.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Destination is the list new tasks are created in.
type Destination struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SpaceName string `json:"space_name,omitempty"`
	TeamName  string `json:"team_name,omitempty"`
}

// WorkspaceIntegration holds the workspace credential and the user's
// default destination.
type WorkspaceIntegration struct {
	AccessToken        string       `json:"access_token"`
	Teams              []Team       `json:"teams,omitempty"`
	Configured         bool         `json:"configured"`
	DefaultDestination *Destination `json:"default_destination,omitempty"`
}

// IsConfigured reports whether tasks can be published without asking the user.
func (w *WorkspaceIntegration) IsConfigured() bool {
	return w != nil && w.Configured && w.DefaultDestination != nil && w.DefaultDestination.ID != ""
}

// Clone returns a deep copy.
func (w *WorkspaceIntegration) Clone() *WorkspaceIntegration {
	if w == nil {
		return nil
	}
	c := *w
	c.Teams = slices.Clone(w.Teams)
	if w.DefaultDestination != nil {
		d := *w.DefaultDestination
		c.DefaultDestination = &d
	}
	return &c
}

// PendingWorkspaceCredential is the client id and secret supplied by the user
// ahead of the workspace authorization round trip. It is consumed by the
// callback.
type PendingWorkspaceCredential struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Item is one inbound message.
type Item struct {
	ID         string      `json:"id"`
	Subject    string      `json:"subject"`
	From       string      `json:"from"`
	Snippet    string      `json:"snippet,omitempty"`
	Body       string      `json:"body,omitempty"`
	Timestamp  int64       `json:"timestamp"`
	Extraction *Extraction `json:"extraction,omitempty"`
}

// Extraction outcomes.
const (
	OutcomeCreated       = "created"
	OutcomeSuggested     = "suggested"
	OutcomePublishFailed = "publish_failed"
	OutcomeUnparsed      = "unparsed"
)

// Extraction is the last processing result recorded on an item.
type Extraction struct {
	Outcome     string            `json:"outcome"`
	Strategy    string            `json:"strategy,omitempty"`
	Raw         string            `json:"raw,omitempty"`
	Record      *TaskRecord       `json:"record,omitempty"`
	TaskID      string            `json:"task_id,omitempty"`
	TaskURL     string            `json:"task_url,omitempty"`
	Error       *apperrors.Detail `json:"error,omitempty"`
	ProcessedAt int64             `json:"processed_at"`
}

// SessionState is everything the signed session token carries.
// A nil Items slice means the token does not carry items; an empty non-nil
// slice means it carries an empty list.
type SessionState struct {
	Identity           Identity                    `json:"identity"`
	ProviderCredential *ProviderCredential         `json:"provider_credential,omitempty"`
	Workspace          *WorkspaceIntegration       `json:"workspace,omitempty"`
	PendingWorkspace   *PendingWorkspaceCredential `json:"pending_workspace,omitempty"`
	Items              []Item                      `json:"items"`
}

// Key identifies the session owner in the state store.
func (s *SessionState) Key() string {
	if s == nil {
		return ""
	}
	if s.Identity.ID != "" {
		return s.Identity.ID
	}
	return s.Identity.Email
}

// Clone returns a deep copy.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	c := *s
	if s.ProviderCredential != nil {
		pc := *s.ProviderCredential
		c.ProviderCredential = &pc
	}
	c.Workspace = s.Workspace.Clone()
	if s.PendingWorkspace != nil {
		pw := *s.PendingWorkspace
		c.PendingWorkspace = &pw
	}
	c.Items = CloneItems(s.Items)
	return &c
}

// CacheEntry is the server-side copy of the mutable parts of a session.
// Nil fields are absent.
type CacheEntry struct {
	Items     []Item                `json:"items,omitempty"`
	Workspace *WorkspaceIntegration `json:"workspace,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Clone returns a deep copy.
func (e *CacheEntry) Clone() *CacheEntry {
	if e == nil {
		return nil
	}
	return &CacheEntry{
		Items:     CloneItems(e.Items),
		Workspace: e.Workspace.Clone(),
		UpdatedAt: e.UpdatedAt,
	}
}

// CloneItems deep-copies items, keeping nil distinct from empty.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it
		if it.Extraction != nil {
			ex := *it.Extraction
			ex.Record = it.Extraction.Record.Clone()
			ex.Error = it.Extraction.Error.Clone()
			out[i].Extraction = &ex
		}
	}
	return out
}

// FindItem returns the index of the item with the given id, or -1.
func FindItem(items []Item, id string) int {
	return slices.IndexFunc(items, func(it Item) bool { return it.ID == id })
}
