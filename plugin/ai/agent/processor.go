package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/plugin/ai"
	"github.com/hrygo/autotask/plugin/ai/extract"
	"github.com/hrygo/autotask/store"
)

// Processor runs one inbound item through completion, recovery, extraction
// and publishing.
type Processor struct {
	completion ai.CompletionService
	recovery   *Recovery
	pipeline   *extract.Pipeline
	now        func() time.Time
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRecovery replaces the default Recovery.
func WithRecovery(r *Recovery) ProcessorOption {
	return func(p *Processor) { p.recovery = r }
}

// WithPipeline replaces the default extraction pipeline.
func WithPipeline(pl *extract.Pipeline) ProcessorOption {
	return func(p *Processor) { p.pipeline = pl }
}

// WithProcessorClock sets the clock used for ProcessedAt.
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a Processor using svc for completions.
func NewProcessor(svc ai.CompletionService, opts ...ProcessorOption) *Processor {
	p := &Processor{
		completion: svc,
		pipeline:   extract.NewPipeline(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.recovery == nil {
		p.recovery = NewRecovery(svc)
	}
	return p
}

// ProcessRequest is the input of Process. Destination and Publisher are
// both required for a task to be published.
type ProcessRequest struct {
	Item        store.Item
	APIKey      string
	Destination *store.Destination
	Publisher   TaskPublisher
}

// ProcessResult is the outcome of Process.
type ProcessResult struct {
	Outcome    string            `json:"outcome"`
	Strategy   string            `json:"strategy,omitempty"`
	Raw        string            `json:"raw"`
	Record     *store.TaskRecord `json:"record,omitempty"`
	Task       *PublishedTask    `json:"task,omitempty"`
	PublishErr error             `json:"-"`
	// Error describes why no task was created. It carries the upstream
	// detail of a rejected publish.
	Error       *apperrors.Detail `json:"error,omitempty"`
	Recovery    RecoveryResult    `json:"recovery"`
	Usage       ai.Usage          `json:"usage"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// Extraction converts the result into the form stored on the item.
func (r *ProcessResult) Extraction() *store.Extraction {
	ex := &store.Extraction{
		Outcome:     r.Outcome,
		Strategy:    r.Strategy,
		Raw:         r.Raw,
		Record:      r.Record.Clone(),
		ProcessedAt: r.ProcessedAt.UnixMilli(),
	}
	if r.Task != nil {
		ex.TaskID = r.Task.ID
		ex.TaskURL = r.Task.URL
	}
	ex.Error = r.Error.Clone()
	return ex
}

// Process runs the flow for one item. A failed completion call is returned as
// an error. Everything after that, including a failed publish, is reported in
// the result.
func (p *Processor) Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	creq := ai.CompletionRequest{
		APIKey:  req.APIKey,
		Message: BuildPrompt(req.Item),
	}
	first, err := p.completion.Complete(ctx, creq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to complete")
	}

	result := &ProcessResult{Raw: first.Text, Usage: first.Usage, ProcessedAt: p.now()}
	if NeedsRecovery(first) {
		slog.Info("empty completion, sending follow-up",
			slog.String("item_id", req.Item.ID),
			slog.String("conversation_id", first.ConversationID),
			slog.Int("completion_tokens", first.Usage.CompletionTokens),
		)
		result.Recovery = p.recovery.Recover(ctx, creq, first)
		result.Raw = result.Recovery.Text
		if c := result.Recovery.Completion; c != nil {
			result.Usage.PromptTokens += c.Usage.PromptTokens
			result.Usage.CompletionTokens += c.Usage.CompletionTokens
			result.Usage.TotalTokens += c.Usage.TotalTokens
		}
	}

	ext := p.pipeline.Extract(result.Raw)
	if ext.Empty {
		result.Outcome = store.OutcomeUnparsed
		result.Error = apperrors.DetailOf(apperrors.ExtractionEmpty(), apperrors.ErrCodeExtractionEmpty)
		return result, nil
	}
	result.Strategy = ext.Strategy
	result.Record = ext.Record

	switch {
	case req.Destination == nil || req.Destination.ID == "":
		result.Outcome = store.OutcomeSuggested
		return result, nil
	case req.Publisher == nil:
		result.Outcome = store.OutcomeSuggested
		result.PublishErr = ErrNoPublisher
		result.Error = apperrors.DetailOf(ErrNoPublisher, apperrors.ErrCodeInternal)
		return result, nil
	}

	task, err := req.Publisher.Publish(ctx, req.Destination.ID, ext.Record)
	if err != nil {
		slog.Warn("failed to publish task",
			slog.String("item_id", req.Item.ID),
			slog.String("destination_id", req.Destination.ID),
			slog.String("error_code", string(apperrors.GetCodeFromError(err, apperrors.ErrCodeUpstreamRejected))),
		)
		result.Outcome = store.OutcomePublishFailed
		result.PublishErr = err
		result.Error = apperrors.DetailOf(err, apperrors.ErrCodeUpstreamRejected)
		return result, nil
	}
	result.Outcome = store.OutcomeCreated
	result.Task = task
	return result, nil
}
