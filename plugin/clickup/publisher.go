package clickup

import (
	"context"
	"log/slog"

	"github.com/hrygo/autotask/plugin/ai/agent"
	"github.com/hrygo/autotask/store"
)

// Publisher creates tasks with one user's workspace token.
type Publisher struct {
	client *Client
	token  string
}

var _ agent.TaskPublisher = (*Publisher)(nil)

// NewPublisher creates a Publisher.
func NewPublisher(client *Client, token string) *Publisher {
	return &Publisher{client: client, token: token}
}

// Publish creates record in destinationID.
func (p *Publisher) Publish(ctx context.Context, destinationID string, record *store.TaskRecord) (*agent.PublishedTask, error) {
	task, err := p.client.CreateTask(ctx, p.token, destinationID, NewCreateTaskRequest(record))
	if err != nil {
		return nil, err
	}
	slog.Info("task created", slog.String("task_id", task.ID), slog.String("destination_id", destinationID))
	return &agent.PublishedTask{ID: task.ID, URL: task.URL}, nil
}

// Publisher returns a TaskPublisher bound to token.
func (c *Client) Publisher(token string) agent.TaskPublisher {
	return NewPublisher(c, token)
}
