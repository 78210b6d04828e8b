// Package agent turns one inbound item into a structured task: it asks the
// completion service, recovers from empty answers, extracts a TaskRecord and
// publishes it to the workspace.
package agent

import "errors"

var (
	// ErrEmptyCompletion means the completion service answered with no text.
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrNoPublisher means the workspace is configured but no publisher was
	// supplied for the request.
	ErrNoPublisher = errors.New("no task publisher")
)
