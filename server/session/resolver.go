// Package session merges the three places session state can come from:
// the signed token, the server-side cache, and what the client sends.
package session

import (
	"log/slog"

	"github.com/hrygo/autotask/store"
)

// Source says where a resolved field came from.
type Source int

const (
	SourceNone Source = iota
	SourceToken
	SourceCache
	SourceClient
)

func (s Source) String() string {
	switch s {
	case SourceToken:
		return "token"
	case SourceCache:
		return "cache"
	case SourceClient:
		return "client"
	default:
		return "none"
	}
}

// MarshalText renders the source name in JSON responses.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a source name. Unknown names read as none.
func (s *Source) UnmarshalText(b []byte) error {
	switch string(b) {
	case "token":
		*s = SourceToken
	case "cache":
		*s = SourceCache
	case "client":
		*s = SourceClient
	default:
		*s = SourceNone
	}
	return nil
}

// ClientFields are the fields a client may supply with a request.
// A nil field was not supplied.
type ClientFields struct {
	Items     []store.Item
	Workspace *store.WorkspaceIntegration
}

// Sources records the origin of each resolved field.
type Sources struct {
	Items     Source `json:"items"`
	Workspace Source `json:"workspace"`
}

// Attrs renders the sources for a diagnostic log line.
func (s Sources) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("items_source", s.Items.String()),
		slog.String("workspace_source", s.Workspace.String()),
	}
}

// EffectiveState is the merged view a handler works with.
type EffectiveState struct {
	Identity           store.Identity
	ProviderCredential *store.ProviderCredential
	PendingWorkspace   *store.PendingWorkspaceCredential
	Workspace          *store.WorkspaceIntegration
	Items              []store.Item
	Sources            Sources
}

// Resolve merges token, cache entry and client fields. Items and workspace
// are resolved independently with precedence client, then cache, then token;
// an absent value never overrides a present one. Identity and credentials
// always come from the token. Inputs are not modified and the result shares
// no memory with them.
func Resolve(token *store.SessionState, entry *store.CacheEntry, client ClientFields) EffectiveState {
	var eff EffectiveState
	var tokenItems []store.Item
	var tokenWorkspace *store.WorkspaceIntegration
	if token != nil {
		eff.Identity = token.Identity
		if token.ProviderCredential != nil {
			pc := *token.ProviderCredential
			eff.ProviderCredential = &pc
		}
		if token.PendingWorkspace != nil {
			pw := *token.PendingWorkspace
			eff.PendingWorkspace = &pw
		}
		tokenItems = token.Items
		tokenWorkspace = token.Workspace
	}

	var cacheItems []store.Item
	var cacheWorkspace *store.WorkspaceIntegration
	if entry != nil {
		cacheItems = entry.Items
		cacheWorkspace = entry.Workspace
	}

	switch {
	case client.Items != nil:
		eff.Items, eff.Sources.Items = client.Items, SourceClient
	case cacheItems != nil:
		eff.Items, eff.Sources.Items = cacheItems, SourceCache
	case tokenItems != nil:
		eff.Items, eff.Sources.Items = tokenItems, SourceToken
	}
	eff.Items = store.CloneItems(eff.Items)

	switch {
	case client.Workspace != nil:
		eff.Workspace, eff.Sources.Workspace = client.Workspace, SourceClient
	case cacheWorkspace != nil:
		eff.Workspace, eff.Sources.Workspace = cacheWorkspace, SourceCache
	case tokenWorkspace != nil:
		eff.Workspace, eff.Sources.Workspace = tokenWorkspace, SourceToken
	}
	eff.Workspace = eff.Workspace.Clone()

	return eff
}

// Authenticated reports whether the state carries an identity.
func (e *EffectiveState) Authenticated() bool {
	return e.Identity.ID != "" || e.Identity.Email != ""
}

// Key identifies the session owner in the state store.
func (e *EffectiveState) Key() string {
	if e.Identity.ID != "" {
		return e.Identity.ID
	}
	return e.Identity.Email
}

// FindItem returns the item with the given id.
func (e *EffectiveState) FindItem(id string) (*store.Item, bool) {
	i := store.FindItem(e.Items, id)
	if i < 0 {
		return nil, false
	}
	return &e.Items[i], true
}

// ToSessionState builds the state to encode into the next token.
func (e *EffectiveState) ToSessionState() *store.SessionState {
	s := &store.SessionState{
		Identity:  e.Identity,
		Workspace: e.Workspace.Clone(),
		Items:     store.CloneItems(e.Items),
	}
	if e.ProviderCredential != nil {
		pc := *e.ProviderCredential
		s.ProviderCredential = &pc
	}
	if e.PendingWorkspace != nil {
		pw := *e.PendingWorkspace
		s.PendingWorkspace = &pw
	}
	return s
}
