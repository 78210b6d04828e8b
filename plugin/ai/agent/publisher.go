package agent

import (
	"context"

	"github.com/hrygo/autotask/store"
)

// PublishedTask identifies a task created in the workspace.
type PublishedTask struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// TaskPublisher creates a task in the workspace destination.
type TaskPublisher interface {
	Publish(ctx context.Context, destinationID string, record *store.TaskRecord) (*PublishedTask, error)
}

// PublisherFunc adapts a function to TaskPublisher.
type PublisherFunc func(ctx context.Context, destinationID string, record *store.TaskRecord) (*PublishedTask, error)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, destinationID string, record *store.TaskRecord) (*PublishedTask, error) {
	return f(ctx, destinationID, record)
}
