// Package timeout defines centralized timeout constants for outbound calls.
package timeout

import "time"

const (
	// CompletionTimeout bounds a single completion request.
	CompletionTimeout = 30 * time.Second

	// RecoveryDelay is the pause before the single follow-up completion.
	RecoveryDelay = 2 * time.Second

	// ProviderTimeout bounds calls to the identity provider and message source.
	ProviderTimeout = 15 * time.Second

	// WorkspaceTimeout bounds calls to the workspace integration.
	WorkspaceTimeout = 15 * time.Second

	// ShutdownTimeout bounds graceful server shutdown.
	ShutdownTimeout = 10 * time.Second
)
